package openapi

import "embed"

// V1Path is the v1 document inside FS.
const V1Path = "v1/dispatch.yaml"

// FS contains the versioned OpenAPI documents embedded into the binary.
//go:embed v1/*
var FS embed.FS

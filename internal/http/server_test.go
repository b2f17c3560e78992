package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VerteraIO/dispatch/internal/config"
	"github.com/VerteraIO/dispatch/internal/controlplane"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	svc, err := controlplane.New(config.DefaultScheduler(), controlplane.WithRegistry(prom.NewRegistry()))
	require.NoError(t, err)
	return NewServer(svc)
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestAPIPrefixEnforced(t *testing.T) {
	s := newHandler(t)

	rec := serve(s, http.MethodGet, "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unversioned path")
	assert.Contains(t, rec.Body.String(), `"supported":["v1"]`)

	rec = serve(s, http.MethodGet, "/api/v1/status")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newHandler(t)

	rec := serve(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dispatch_stale_workers")

	rec = serve(s, http.MethodGet, "/docs")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/v1/docs/index.html", rec.Header().Get("Location"))

	rec = serve(s, http.MethodGet, "/api/v1/openapi.yaml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "openapi: 3"))
}

func TestDeprecationHeaders(t *testing.T) {
	h := Deprecation("true", "2027-01-01", "/api/v2/docs")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := serve(h, http.MethodGet, "/api/v1/status")
	assert.Equal(t, "true", rec.Header().Get("Deprecation"))
	assert.Equal(t, "2027-01-01", rec.Header().Get("Sunset"))
	assert.Equal(t, `</api/v2/docs>; rel="successor-version"`, rec.Header().Get("Link"))
}

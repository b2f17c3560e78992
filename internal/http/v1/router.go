package v1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	openapi "github.com/VerteraIO/dispatch/api/openapi"
	"github.com/VerteraIO/dispatch/internal/controlplane"
)

type handlers struct {
	svc *controlplane.Service
}

// Router returns the chi.Router for REST API v1.
func Router(svc *controlplane.Service) chi.Router {
	h := &handlers{svc: svc}
	r := chi.NewRouter()

	// Docs (Swagger UI) and OpenAPI document under the versioned prefix
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/api/v1/openapi.yaml"),
	))
	r.Get("/openapi.yaml", serveOpenAPIStaticAsset)

	// Worker-facing endpoints
	r.Post("/register_worker", h.registerWorker)
	r.Post("/heartbeat", h.heartbeat)
	r.Post("/task_complete", h.taskComplete)

	// Client-facing endpoints
	r.Post("/submit_task", h.submitTask)
	r.Get("/tasks/{taskId}", h.getTask)

	// Reports
	r.Get("/status", h.status)
	r.Get("/experiment_results", h.experimentResults)
	r.Get("/experiment_summary", h.experimentSummary)

	return r
}

func serveOpenAPIStaticAsset(w http.ResponseWriter, r *http.Request) {
	data, err := openapi.FS.ReadFile(openapi.V1Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read OpenAPI document: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(data)
}

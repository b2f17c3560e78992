package v1

import "net/http"

// status handles GET /status
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// experimentResults handles GET /experiment_results
func (h *handlers) experimentResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ExperimentResults())
}

// experimentSummary handles GET /experiment_summary
func (h *handlers) experimentSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ExperimentSummary())
}

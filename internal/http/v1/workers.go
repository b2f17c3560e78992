package v1

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

type registerRequest struct {
	WorkerID  string `json:"worker_id"`
	WorkerURL string `json:"worker_url"`
}

// registerWorker handles POST /register_worker
func (h *handlers) registerWorker(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	if err := h.svc.RegisterWorker(req.WorkerID, req.WorkerURL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Worker registered successfully"})
}

// heartbeat handles POST /heartbeat?worker_id=... or a {"worker_id": ...} body.
func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("worker_id")
	if id == "" && r.ContentLength != 0 {
		var body struct {
			WorkerID string `json:"worker_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errors.Wrap(errBadRequest, err.Error()))
			return
		}
		id = body.WorkerID
	}
	if id == "" {
		writeError(w, errors.Wrap(errBadRequest, "worker_id is required"))
		return
	}
	h.svc.Heartbeat(id)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Heartbeat received from " + id})
}

package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
)

type submitRequest struct {
	TaskID   *int64 `json:"task_id"`
	Duration int    `json:"duration"`
}

type submitResponse struct {
	Message  string `json:"message"`
	TaskID   int64  `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// submitTask handles POST /submit_task
func (h *handlers) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	if req.TaskID == nil {
		writeError(w, errors.Wrap(errBadRequest, "task_id is required"))
		return
	}
	p := tasks.Payload{TaskID: *req.TaskID, Duration: req.Duration}
	worker, err := h.svc.SubmitTask(p)
	if err != nil {
		writeError(w, err)
		return
	}

	// Return 202 with Location header to the task resource.
	w.Header().Set("Location", fmt.Sprintf("/api/v1/tasks/%d", p.TaskID))
	writeJSON(w, http.StatusAccepted, submitResponse{
		Message:  fmt.Sprintf("Task %d assigned to %s", p.TaskID, worker.ID),
		TaskID:   p.TaskID,
		WorkerID: worker.ID,
	})
}

// taskComplete handles POST /task_complete?task_id=... or a {"task_id": ...} body.
// Unknown ids are acknowledged.
func (h *handlers) taskComplete(w http.ResponseWriter, r *http.Request) {
	var id int64
	if raw := r.URL.Query().Get("task_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, errors.Wrapf(errBadRequest, "task_id %q", raw))
			return
		}
		id = parsed
	} else {
		var body struct {
			TaskID *int64 `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TaskID == nil {
			writeError(w, errors.Wrap(errBadRequest, "task_id is required"))
			return
		}
		id = *body.TaskID
	}
	h.svc.TaskComplete(id)
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Task %d marked as completed", id)})
}

// getTask handles GET /tasks/{taskId}
func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "taskId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, errors.Wrapf(errBadRequest, "taskId %q", raw))
		return
	}
	t, err := h.svc.GetTask(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

package v1

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/VerteraIO/dispatch/internal/controlplane"
	"github.com/VerteraIO/dispatch/internal/controlplane/scheduler"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	code, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, controlplane.ErrInvalidWorker),
		errors.Is(err, controlplane.ErrInvalidTask):
		code, kind = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, tasks.ErrDuplicateTask):
		code, kind = http.StatusConflict, "duplicate_task"
	case errors.Is(err, tasks.ErrTaskNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, scheduler.ErrNoWorkers):
		code, kind = http.StatusServiceUnavailable, "no_workers"
	}
	writeJSON(w, code, errorResponse{Error: kind, Message: err.Error()})
}

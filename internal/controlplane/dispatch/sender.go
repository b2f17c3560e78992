package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"

	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
)

// ExecuteTaskPath is the worker route that accepts a task payload.
const ExecuteTaskPath = "/execute_task"

// HTTPSender posts task payloads to {worker_url}/execute_task.
type HTTPSender struct {
	cl *http.Client
}

// NewHTTPSender returns a sender on a pooled client without a global timeout;
// callers bound requests through the context.
func NewHTTPSender(cl *http.Client) *HTTPSender {
	if cl == nil {
		cl = cleanhttp.DefaultPooledClient()
	}
	return &HTTPSender{cl: cl}
}

func (s *HTTPSender) ExecuteTask(ctx context.Context, w registry.Worker, p tasks.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding task payload")
	}
	url := strings.TrimRight(w.URL, "/") + ExecuteTaskPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "building request for worker %s", w.ID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cl.Do(req)
	if err != nil {
		return errors.Wrapf(err, "sending task %d to worker %s", p.TaskID, w.ID)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("worker %s rejected task %d: %d %s",
			w.ID, p.TaskID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Package client calls the scheduler's v1 REST API on behalf of a worker.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
)

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the scheduler at baseURL, e.g. http://localhost:8000.
func New(baseURL string, cl *http.Client) *Client {
	if cl == nil {
		cl = cleanhttp.DefaultPooledClient()
	}
	return &Client{base: strings.TrimRight(baseURL, "/") + "/api/v1", http: cl}
}

func (c *Client) Register(ctx context.Context, workerID, workerURL string) error {
	body, err := json.Marshal(map[string]string{"worker_id": workerID, "worker_url": workerURL})
	if err != nil {
		return err
	}
	return c.post(ctx, "/register_worker", nil, body)
}

func (c *Client) Heartbeat(ctx context.Context, workerID string) error {
	return c.post(ctx, "/heartbeat", url.Values{"worker_id": {workerID}}, nil)
}

func (c *Client) TaskComplete(ctx context.Context, taskID int64) error {
	return c.post(ctx, "/task_complete", url.Values{"task_id": {strconv.FormatInt(taskID, 10)}}, nil)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, body []byte) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

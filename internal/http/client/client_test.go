package client_test

import (
	"context"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VerteraIO/dispatch/internal/config"
	"github.com/VerteraIO/dispatch/internal/controlplane"
	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
	httpserver "github.com/VerteraIO/dispatch/internal/http"
	"github.com/VerteraIO/dispatch/internal/http/client"
)

type nopSender struct{}

func (nopSender) ExecuteTask(context.Context, registry.Worker, tasks.Payload) error { return nil }

func TestClientAgainstScheduler(t *testing.T) {
	svc, err := controlplane.New(config.DefaultScheduler(),
		controlplane.WithSender(nopSender{}),
		controlplane.WithRegistry(prom.NewRegistry()),
	)
	require.NoError(t, err)
	ts := httptest.NewServer(httpserver.NewServer(svc))
	defer ts.Close()

	ctx := context.Background()
	c := client.New(ts.URL+"/", nil)
	require.NoError(t, c.Register(ctx, "w1", "http://w1"))
	require.NoError(t, c.Heartbeat(ctx, "w1"))

	_, err = svc.SubmitTask(tasks.Payload{TaskID: 5, Duration: 1})
	require.NoError(t, err)
	require.NoError(t, c.TaskComplete(ctx, 5))

	task, err := svc.GetTask(5)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Contains(t, svc.Status().LastSeen, "w1")

	err = c.Register(ctx, "", "http://w2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

package controller

import (
	"context"
	"net"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/VerteraIO/dispatch/internal/config"
	"github.com/VerteraIO/dispatch/internal/controlplane"
	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
	"github.com/VerteraIO/dispatch/internal/grpc/agent"
)

type nopSender struct{}

func (nopSender) ExecuteTask(context.Context, registry.Worker, tasks.Payload) error { return nil }

func startServer(t *testing.T) (*controlplane.Service, *agent.Client) {
	t.Helper()
	svc, err := controlplane.New(config.DefaultScheduler(),
		controlplane.WithSender(nopSender{}),
		controlplane.WithRegistry(prom.NewRegistry()),
	)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	s := NewServer(svc)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cli, err := agent.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return svc, cli
}

func TestAgentLifecycleOverGRPC(t *testing.T) {
	svc, cli := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, cli.Register(ctx, "w1", "http://w1"))
	require.NoError(t, cli.Heartbeat(ctx, "w1"))

	st := svc.Status()
	assert.Equal(t, []string{"w1"}, st.Workers)
	assert.Contains(t, st.LastSeen, "w1")

	_, err := svc.SubmitTask(tasks.Payload{TaskID: 7, Duration: 1})
	require.NoError(t, err)
	require.NoError(t, cli.TaskComplete(ctx, 7))

	task, err := svc.GetTask(7)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCompleted, task.Status)

	// Unknown ids are acknowledged.
	assert.NoError(t, cli.TaskComplete(ctx, 99))
}

func TestInvalidArguments(t *testing.T) {
	_, cli := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := cli.Register(ctx, "", "http://w1")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = cli.Heartbeat(ctx, "")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

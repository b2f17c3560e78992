package agent

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/VerteraIO/dispatch/internal/grpc/agentpb"
)

// Client reports worker state to the scheduler over gRPC.
type Client struct {
	conn *grpc.ClientConn
	cli  *agentpb.AgentServiceClient
}

// Dial connects to the scheduler at addr. Optional dial options can be
// provided (e.g., grpc.WithTransportCredentials()); insecure is the default.
func Dial(addr string, dialOpts ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(agentpb.Codec{})),
	}
	conn, err := grpc.NewClient(addr, append(opts, dialOpts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial scheduler %s", addr)
	}
	return &Client{conn: conn, cli: agentpb.NewAgentServiceClient(conn)}, nil
}

func (c *Client) Register(ctx context.Context, workerID, workerURL string) error {
	_, err := c.cli.Register(ctx, &agentpb.RegisterRequest{WorkerID: workerID, WorkerURL: workerURL})
	return errors.Wrap(err, "register")
}

func (c *Client) Heartbeat(ctx context.Context, workerID string) error {
	_, err := c.cli.Heartbeat(ctx, &agentpb.HeartbeatRequest{WorkerID: workerID})
	return errors.Wrap(err, "heartbeat")
}

func (c *Client) TaskComplete(ctx context.Context, taskID int64) error {
	_, err := c.cli.TaskComplete(ctx, &agentpb.TaskCompleteRequest{TaskID: taskID})
	return errors.Wrap(err, "task complete")
}

func (c *Client) Close() error { return c.conn.Close() }

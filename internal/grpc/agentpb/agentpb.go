// Package agentpb defines the dispatch.v1.AgentService wire contract. Messages
// travel as JSON through Codec, so no generated protobuf code is needed.
package agentpb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

const ServiceName = "dispatch.v1.AgentService"

const (
	registerMethod     = "/" + ServiceName + "/Register"
	heartbeatMethod    = "/" + ServiceName + "/Heartbeat"
	taskCompleteMethod = "/" + ServiceName + "/TaskComplete"
)

type RegisterRequest struct {
	WorkerID  string `json:"worker_id"`
	WorkerURL string `json:"worker_url"`
}

type HeartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

type TaskCompleteRequest struct {
	TaskID int64 `json:"task_id"`
}

type Ack struct {
	Message string `json:"message"`
}

// Codec is the JSON codec both ends must force.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (Codec) Name() string                       { return "json" }

// AgentServiceServer is the scheduler side of the worker channel.
type AgentServiceServer interface {
	Register(context.Context, *RegisterRequest) (*Ack, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*Ack, error)
	TaskComplete(context.Context, *TaskCompleteRequest) (*Ack, error)
}

func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req any](
	method string,
	call func(AgentServiceServer, context.Context, *Req) (*Ack, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(registerMethod, AgentServiceServer.Register)},
		{MethodName: "Heartbeat", Handler: unary(heartbeatMethod, AgentServiceServer.Heartbeat)},
		{MethodName: "TaskComplete", Handler: unary(taskCompleteMethod, AgentServiceServer.TaskComplete)},
	},
	Metadata: "dispatch/v1/agent.proto",
}

// AgentServiceClient calls the scheduler from a worker.
type AgentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAgentServiceClient(cc grpc.ClientConnInterface) *AgentServiceClient {
	return &AgentServiceClient{cc: cc}
}

func (c *AgentServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, registerMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AgentServiceClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, heartbeatMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AgentServiceClient) TaskComplete(ctx context.Context, in *TaskCompleteRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, taskCompleteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

package controller

import (
	"context"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/VerteraIO/dispatch/internal/controlplane"
	"github.com/VerteraIO/dispatch/internal/grpc/agentpb"
)

type AgentServiceServer struct {
	svc *controlplane.Service
	log *log.Entry
}

func NewAgentServiceServer(svc *controlplane.Service) *AgentServiceServer {
	return &AgentServiceServer{svc: svc, log: log.WithField("component", "grpc-controller")}
}

// NewServer returns a gRPC server with the agent service registered.
func NewServer(svc *controlplane.Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(agentpb.Codec{})}, opts...)
	s := grpc.NewServer(opts...)
	agentpb.RegisterAgentServiceServer(s, NewAgentServiceServer(svc))
	return s
}

// Run serves on addr until ctx is done.
func Run(ctx context.Context, addr string, svc *controlplane.Service, opts ...grpc.ServerOption) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s := NewServer(svc, opts...)
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	log.WithField("addr", addr).Info("gRPC controller listening")
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *AgentServiceServer) Register(ctx context.Context, req *agentpb.RegisterRequest) (*agentpb.Ack, error) {
	if err := s.svc.RegisterWorker(req.WorkerID, req.WorkerURL); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.log.WithField("worker_id", req.WorkerID).Debug("worker registered over gRPC")
	return &agentpb.Ack{Message: "Worker registered successfully"}, nil
}

func (s *AgentServiceServer) Heartbeat(ctx context.Context, req *agentpb.HeartbeatRequest) (*agentpb.Ack, error) {
	if req.WorkerID == "" {
		return nil, status.Error(codes.InvalidArgument, "worker_id is required")
	}
	s.svc.Heartbeat(req.WorkerID)
	return &agentpb.Ack{Message: "Heartbeat received from " + req.WorkerID}, nil
}

func (s *AgentServiceServer) TaskComplete(ctx context.Context, req *agentpb.TaskCompleteRequest) (*agentpb.Ack, error) {
	s.svc.TaskComplete(req.TaskID)
	return &agentpb.Ack{Message: fmt.Sprintf("Task %d marked as completed", req.TaskID)}, nil
}

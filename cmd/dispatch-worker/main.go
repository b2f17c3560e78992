package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VerteraIO/dispatch/internal/agent/executor"
	"github.com/VerteraIO/dispatch/internal/agent/runtime"
	"github.com/VerteraIO/dispatch/internal/config"
	agentgrpc "github.com/VerteraIO/dispatch/internal/grpc/agent"
	"github.com/VerteraIO/dispatch/internal/http/client"
	"github.com/VerteraIO/dispatch/internal/logger"
)

// version is set at link time.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:           "dispatch-worker",
		Short:         "Simulated worker for the dispatch scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWorker(v)
			if err != nil {
				log.Error(fmt.Sprintf("%+v", err))
				return err
			}
			logger.SetLogrus(cfg.Log)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg.Worker); err != nil {
				log.Error(fmt.Sprintf("%+v", err))
				return err
			}
			return nil
		},
	}
	config.RegisterWorkerFlags(v, cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config.WorkerSettings) error {
	if cfg.ID == "" {
		cfg.ID = "worker-" + uuid.NewString()[:8]
	}

	var sched runtime.Scheduler
	switch cfg.Transport {
	case config.TransportGRPC:
		c, err := agentgrpc.Dial(cfg.SchedulerGRPC)
		if err != nil {
			return err
		}
		defer c.Close()
		sched = c
	default:
		sched = client.New(cfg.SchedulerURL, nil)
	}

	agent := runtime.New(runtime.Config{
		ID:                cfg.ID,
		AdvertiseURL:      cfg.AdvertiseURL,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, sched, executor.NewSleep(nil, cfg.Unit), nil)

	g, ctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           agent.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.WithFields(log.Fields{"addr": cfg.ListenAddr, "worker_id": cfg.ID}).Info("dispatch-worker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error { return agent.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VerteraIO/dispatch/internal/config"
	"github.com/VerteraIO/dispatch/internal/controlplane"
	grpccontroller "github.com/VerteraIO/dispatch/internal/grpc/controller"
	httpserver "github.com/VerteraIO/dispatch/internal/http"
	"github.com/VerteraIO/dispatch/internal/logger"
	"github.com/VerteraIO/dispatch/internal/tracing"
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
		Use:           "dispatch-scheduler",
		Short:         "Heartbeat-aware task dispatch scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadScheduler(v)
			if err != nil {
				log.Error(fmt.Sprintf("%+v", err))
				return err
			}
			logger.SetLogrus(cfg.Log)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg); err != nil {
				log.Error(fmt.Sprintf("%+v", err))
				return err
			}
			return nil
		},
	}
	config.RegisterSchedulerFlags(v, cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config.Scheduler) error {
	if cfg.Tracing.Enabled {
		if err := tracing.Init("dispatch-scheduler", version, cfg.Tracing.Output); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tracing.Shutdown(sctx); err != nil {
				log.WithError(err).Warn("failed to flush traces")
			}
		}()
	}

	svc, err := controlplane.New(cfg)
	if err != nil {
		return errors.Wrap(err, "building scheduler")
	}

	g, ctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpserver.NewServer(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error {
		log.WithField("addr", cfg.HTTP.Addr).Info("dispatch-scheduler listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if cfg.GRPC.Addr != "" {
		g.Go(func() error {
			return errors.Wrap(grpccontroller.Run(ctx, cfg.GRPC.Addr, svc), "grpc server")
		})
	}

	err = g.Wait()
	log.Info("dispatch-scheduler stopped")
	return err
}

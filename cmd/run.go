package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Starts the worker pool and the HTTP server",
		Long: `Consumes jobs from the configured queue with worker.concurrency workers and
serves /healthz, /readyz, /metrics and POST /v1/jobs until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	logger := e.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := newApp(ctx, e.cfg, logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.Warn("failed to close services", zap.Error(cerr))
		}
	}()

	dispatch, err := services.NewDispatcher()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", e.cfg.Server.Port),
		Handler:           services.NewServer(dispatch).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("starting the OG worker",
		zap.Int("port", e.cfg.Server.Port),
		zap.Int("concurrency", e.cfg.Worker.Concurrency),
		zap.String("queue_backend", e.cfg.Queue.Backend),
		zap.String("storage_backend", e.cfg.Storage.Backend),
	)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatch.Run(ctx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}

	// In-flight jobs run on a detached context and finish before workers return.
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not stop before shutdown timeout")
	}
	return nil
}

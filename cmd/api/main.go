package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/healsmart/cmd/mainconfig"
	"github.com/wolfman30/healsmart/internal/app/bootstrap"
	appconfig "github.com/wolfman30/healsmart/internal/config"
	"github.com/wolfman30/healsmart/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting healsmart API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"docstore", cfg.DocstoreBackend,
		"notify_provider", cfg.NotifyProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

// run serves the API and drains the notification queue until ctx is done.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	app, err := bootstrap.New(ctx, bootstrap.Options{
		Config: cfg,
		Logger: logger,
		AWS: func(ctx context.Context) (aws.Config, error) {
			return mainconfig.LoadAWSConfig(ctx, cfg)
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close app", "error", err)
		}
	}()

	srv := newServer(cfg.Port, app.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		app.Dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Live view sockets are long-lived; gorilla sets its own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

func shutdownTimeout(cfg *appconfig.Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/techsheet/internal/adapters/http"
	"github.com/kirillkom/techsheet/internal/bootstrap"
	"github.com/kirillkom/techsheet/internal/config"
	"github.com/kirillkom/techsheet/internal/observability/logging"
	"github.com/kirillkom/techsheet/internal/observability/metrics"
)

const service = "techsheet-api"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger(service, "info").Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Service:   service,
		WithQueue: cfg.ProcessingMode == config.ModeQueue,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(service, app.Registry)
	router := httpadapter.NewRouter(cfg, app.IngestUC, app.Repo,
		httpadapter.WithLogger(logger),
		httpadapter.WithMetrics(metrics.Handler(app.Registry), httpMetrics.Middleware),
	)

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router.Handler(),
		ReadTimeout: 60 * time.Second,
		// sync mode holds the request for the whole pipeline run
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "processing_mode", cfg.ProcessingMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

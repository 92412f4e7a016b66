package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/course-rag-assistant/internal/adapters/http"
	"github.com/kirillkom/course-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/course-rag-assistant/internal/config"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
	"github.com/kirillkom/course-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/course-rag-assistant/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    "api",
		Registerer: serverMetrics.Registry(),
		Runs:       cfg.PostgresDSN != "" && cfg.NATSURL != "",
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var (
		enqueuer ports.RunEnqueuer
		runs     ports.RunReader
	)
	if app.EnqueueUC != nil {
		enqueuer, runs = app.EnqueueUC, app.EnqueueUC
	}

	router := httpadapter.NewRouter(cfg, app.QueryUC, enqueuer, runs,
		httpadapter.WithMetrics(serverMetrics),
		httpadapter.WithBreakerStates(app.Executor.BreakerStates),
	).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "partitions", len(app.Partitions))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
}

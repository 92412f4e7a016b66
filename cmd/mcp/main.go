package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/course-rag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/course-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/course-rag-assistant/internal/config"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
	"github.com/kirillkom/course-rag-assistant/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{
		Service: "mcp",
		Runs:    cfg.PostgresDSN != "" && cfg.NATSURL != "",
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var runs ports.RunReader
	if app.EnqueueUC != nil {
		runs = app.EnqueueUC
	}

	slog.Info("mcp_stdio_starting", "partitions", len(app.Partitions))
	if err := mcpserver.ServeStdio(mcpadapter.NewServer(app.QueryUC, runs)); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}

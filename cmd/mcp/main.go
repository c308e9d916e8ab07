package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/medhelp-assistant/internal/adapters/mcp"
	"github.com/kirillkom/medhelp-assistant/internal/bootstrap"
	"github.com/kirillkom/medhelp-assistant/internal/config"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
	"github.com/kirillkom/medhelp-assistant/internal/observability/logging"
)

const (
	serviceName = "medhelp-mcp"
	version     = "0.1.0"
)

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{
		ClientName: serviceName,
		Store:      cfg.MCPWithStore,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var unanswered ports.UnansweredReader
	if app.Unanswered != nil {
		unanswered = app.Unanswered
	}

	srv := mcpadapter.New(app.Answer, unanswered).MCPServer(serviceName, version)
	if err := server.ServeStdio(srv); err != nil {
		slog.Error("mcp_server_error", "error", err)
		os.Exit(1)
	}
}

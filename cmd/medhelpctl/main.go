package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirillkom/medhelp-assistant/internal/bootstrap"
	"github.com/kirillkom/medhelp-assistant/internal/cli"
	"github.com/kirillkom/medhelp-assistant/internal/config"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
	"github.com/kirillkom/medhelp-assistant/internal/observability/logging"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "medhelpctl", cfg.LogLevel))

	root := cli.NewRootCommand(cli.Deps{
		OpenAnswer: func(ctx context.Context) (ports.AnswerService, func(), error) {
			app, err := bootstrap.New(ctx, cfg, bootstrap.Options{ClientName: "medhelpctl"})
			if err != nil {
				return nil, nil, err
			}
			return app.Answer, app.Close, nil
		},
		OpenUnanswered: func(ctx context.Context) (ports.UnansweredReader, func(), error) {
			app, err := bootstrap.New(ctx, cfg, bootstrap.Options{ClientName: "medhelpctl", Store: true})
			if err != nil {
				return nil, nil, err
			}
			return app.Unanswered, app.Close, nil
		},
		PolicyFile: cfg.PolicyFile,
		Version:    version,
	})
	if err := root.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

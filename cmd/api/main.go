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

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/medhelp-assistant/internal/adapters/http"
	"github.com/kirillkom/medhelp-assistant/internal/bootstrap"
	"github.com/kirillkom/medhelp-assistant/internal/config"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
	"github.com/kirillkom/medhelp-assistant/internal/observability/logging"
	"github.com/kirillkom/medhelp-assistant/internal/observability/metrics"
)

const serviceName = "medhelp-api"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		ClientName: serviceName,
		Queue:      cfg.FallbackEnabled,
		Store:      true,
		Observer:   m.ResilienceObserver(serviceName),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var reporter ports.FallbackReporter
	if app.Fallback != nil {
		reporter = app.Fallback
	}
	router := httpadapter.NewRouter(httpadapter.Options{
		Service:           serviceName,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
		MaxInFlight:       cfg.MaxInFlight,
		MaxRequestBytes:   cfg.MaxRequestBytes,
		FallbackTimeout:   cfg.FallbackTimeout,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, app.Answer, reporter, app.Unanswered, m).
		WithReadiness("ollama", app.Ollama).
		WithReadiness("qdrant", app.Qdrant)
	if app.Queue != nil {
		router.WithReadiness("nats", bootstrap.QueuePinger{Queue: app.Queue})
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ClassifyTimeout + 2*cfg.RetrievalTimeout + cfg.GenerateTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("api_server_error", "error", err)
		os.Exit(1)
	}
	slog.Info("api_stopped")
}

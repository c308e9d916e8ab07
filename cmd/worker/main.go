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

	"github.com/kirillkom/medhelp-assistant/internal/bootstrap"
	"github.com/kirillkom/medhelp-assistant/internal/config"
	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/observability/logging"
	"github.com/kirillkom/medhelp-assistant/internal/observability/metrics"
)

const serviceName = "medhelp-worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		ClientName: serviceName,
		Queue:      true,
		Store:      true,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeFallback(ctx, func(handlerCtx context.Context, event domain.FallbackEvent) error {
		if !event.CreatedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.CreatedAt))
		}
		workerMetrics.StartRecord()
		start := time.Now()

		recordCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		stored, err := app.Unanswered.Record(recordCtx, event)
		workerMetrics.FinishRecord(serviceName, time.Since(start), err)
		if err == nil {
			workerMetrics.ObserveCategory(serviceName, stored.Category)
		}
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

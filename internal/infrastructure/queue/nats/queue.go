package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/resilience"
)

const workerQueueGroup = "unanswered-recorders"

// Queue carries fallback events from the API to the worker.
type Queue struct {
	conn         *nats.Conn
	subject      string
	executor     *resilience.Executor
	drainTimeout time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ClientName           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// DrainTimeout bounds how long buffered events keep being handled after shutdown.
	DrainTimeout         time.Duration
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	name := strings.TrimSpace(options.ClientName)
	if name == "" {
		name = "medhelp-assistant"
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:         conn,
		subject:      subject,
		executor:     options.ResilienceExecutor,
		drainTimeout: drainTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Connected reports whether the underlying connection is usable.
func (q *Queue) Connected() bool {
	return q.conn != nil && q.conn.IsConnected()
}

func (q *Queue) PublishFallback(ctx context.Context, event domain.FallbackEvent) error {
	data, err := encodeFallbackEvent(event)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return toDomainError(err, len(data))
}

// SubscribeFallback delivers events to handler until ctx is done, then drains: events
// already buffered are still handled, bounded by the drain timeout.
func (q *Queue) SubscribeFallback(ctx context.Context, handler func(context.Context, domain.FallbackEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, fallbackMsgHandler(ctx, handler))
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}

	deadline := time.NewTimer(q.drainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for sub.IsValid() {
		select {
		case <-deadline.C:
			pending, _, _ := sub.Pending()
			slog.Warn("fallback_drain_timeout", "pending", pending, "timeout", q.drainTimeout.String())
			_ = sub.Unsubscribe()
			return nil
		case <-tick.C:
		}
	}
	slog.Info("fallback_subscription_drained")
	return nil
}

// fallbackMsgHandler decodes and dispatches one message. Handlers run detached from
// ctx cancellation so the events delivered during a drain are not lost.
func fallbackMsgHandler(ctx context.Context, handler func(context.Context, domain.FallbackEvent) error) nats.MsgHandler {
	base := context.WithoutCancel(ctx)
	return func(msg *nats.Msg) {
		event, err := decodeFallbackEvent(msg.Data)
		if err != nil {
			slog.Error("fallback_event_decode_failed", "error", err, "bytes", len(msg.Data))
			return
		}
		if err := handler(base, event); err != nil {
			slog.Error("fallback_event_handler_failed", "event_id", event.ID, "error", err)
		}
	}
}

func encodeFallbackEvent(event domain.FallbackEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal fallback event: %w", err)
	}
	return data, nil
}

func decodeFallbackEvent(data []byte) (domain.FallbackEvent, error) {
	var event domain.FallbackEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.FallbackEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode fallback event", err)
	}
	if strings.TrimSpace(event.Question) == "" {
		return domain.FallbackEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode fallback event", errors.New("question is empty"))
	}
	return event, nil
}

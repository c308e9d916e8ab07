package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/resilience"
)

const publishOperation = "publish fallback event"

// classifyPublishError retries only while the client may still reconnect.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrConnectionClosed):
		// Closed connections never come back.
		return resilience.ErrorClassification{RecordFailure: true}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// toDomainError maps a failed publish of size bytes onto the domain error kinds.
func toDomainError(err error, size int) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case errors.Is(err, nats.ErrMaxPayload):
		return domain.WrapError(domain.ErrInvalidInput, publishOperation,
			fmt.Errorf("event of %d bytes exceeds server max payload: %w", size, err))
	case errors.Is(err, nats.ErrBadSubject):
		return domain.WrapError(domain.ErrInvalidInput, publishOperation, err)
	case errors.Is(err, nats.ErrConnectionClosed):
		return domain.WrapError(domain.ErrUnavailable, publishOperation, err)
	case classifyPublishError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, publishOperation, err)
	default:
		return err
	}
}

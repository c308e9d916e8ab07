package ports

import (
	"context"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

// AnswerService is the inbound contract for the answer-decision pipeline.
// It never fails: degraded paths are reported through the decision metadata.
type AnswerService interface {
	Answer(ctx context.Context, question string, recentTurns []domain.Turn) domain.AnswerDecision
}

// FallbackReporter records decisions that were not grounded in the knowledge base.
type FallbackReporter interface {
	Report(ctx context.Context, question, location string, decision domain.AnswerDecision) (bool, error)
}

// UnansweredReader is the inbound read model for the unanswered-query log.
type UnansweredReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.UnansweredQuery, error)
}

// FallbackRecorder persists consumed fallback events.
type FallbackRecorder interface {
	Record(ctx context.Context, event domain.FallbackEvent) (domain.UnansweredQuery, error)
}

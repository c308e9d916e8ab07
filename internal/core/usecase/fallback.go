package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

const reasonSystemError = "system_error"

// FallbackReportUseCase publishes a fallback event for every decision that was not
// grounded in the knowledge base.
type FallbackReportUseCase struct {
	publisher ports.FallbackPublisher
	now       func() time.Time
}

func NewFallbackReportUseCase(publisher ports.FallbackPublisher) *FallbackReportUseCase {
	return &FallbackReportUseCase{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Report returns true when an event was published.
func (uc *FallbackReportUseCase) Report(ctx context.Context, question, location string, decision domain.AnswerDecision) (bool, error) {
	if !decision.NeedsFallbackRecord() {
		return false, nil
	}
	event := domain.FallbackEvent{
		ID:        uuid.NewString(),
		Question:  strings.TrimSpace(question),
		Location:  strings.TrimSpace(location),
		Reason:    FallbackReason(decision.Metadata),
		Score:     decision.Metadata.BlendedScore,
		CreatedAt: uc.now(),
	}
	if err := uc.publisher.PublishFallback(ctx, event); err != nil {
		return false, fmt.Errorf("publish fallback event: %w", err)
	}
	return true, nil
}

func FallbackReason(meta domain.AnswerMetadata) string {
	if meta.Error {
		return reasonSystemError + ": generation failed"
	}
	return fmt.Sprintf("medical_question_no_rag<%s score:%.3f>", meta.RetrievalOutcome, meta.BlendedScore)
}

// RecordUnansweredUseCase categorizes consumed fallback events and persists them.
type RecordUnansweredUseCase struct {
	categorizer ports.QuestionCategorizer
	store       ports.UnansweredStore
}

func NewRecordUnansweredUseCase(categorizer ports.QuestionCategorizer, store ports.UnansweredStore) *RecordUnansweredUseCase {
	return &RecordUnansweredUseCase{categorizer: categorizer, store: store}
}

// Record returns the stored record. Categorization is best-effort.
func (uc *RecordUnansweredUseCase) Record(ctx context.Context, event domain.FallbackEvent) (domain.UnansweredQuery, error) {
	if strings.TrimSpace(event.Question) == "" {
		return domain.UnansweredQuery{}, domain.WrapError(domain.ErrInvalidInput, "record unanswered", fmt.Errorf("question is empty"))
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	record := domain.UnansweredQuery{
		ID:        event.ID,
		Text:      event.Question,
		Location:  event.Location,
		Reason:    event.Reason,
		Score:     event.Score,
		CreatedAt: event.CreatedAt,
	}
	if uc.categorizer != nil {
		category, err := uc.categorizer.Categorize(ctx, event.Question)
		if err != nil {
			slog.Warn("question_categorize_failed", "id", record.ID, "error", err)
		} else {
			record.Category = category.Category
			record.Condition = category.Condition
		}
	}

	if err := uc.store.Record(ctx, record); err != nil {
		return domain.UnansweredQuery{}, fmt.Errorf("store unanswered query: %w", err)
	}
	return record, nil
}

// ListRecent returns the newest records first.
func (uc *RecordUnansweredUseCase) ListRecent(ctx context.Context, limit int) ([]domain.UnansweredQuery, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	return uc.store.ListRecent(ctx, limit)
}

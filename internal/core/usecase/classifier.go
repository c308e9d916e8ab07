package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

const (
	labelMedical = "MEDICAL"
	labelGeneral = "GENERAL"
)

// Classifier labels a question as in-domain (medical) or general conversation.
type Classifier struct {
	generator ports.Generator
	timeout   time.Duration
	maxTokens int
}

func NewClassifier(generator ports.Generator, limits domain.AnswerLimits) *Classifier {
	limits = limits.Normalize()
	return &Classifier{
		generator: generator,
		timeout:   limits.ClassifyTimeout,
		maxTokens: limits.ClassifyMaxTokens,
	}
}

// Classify returns true for medical questions. Any failure or unexpected label resolves
// to true so retrieval is never skipped on an ambiguous question.
func (c *Classifier) Classify(ctx context.Context, question string) bool {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.generator.Generate(callCtx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: classificationPrompt},
		{Role: domain.RoleUser, Content: question},
	}, domain.GenerationOptions{Temperature: 0, MaxTokens: c.maxTokens})
	if err != nil {
		slog.Warn("classification_failed", "error", err, "default", labelMedical)
		return true
	}

	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case labelMedical:
		return true
	case labelGeneral:
		return false
	default:
		slog.Warn("classification_unexpected_label", "label", raw, "default", labelMedical)
		return true
	}
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

const (
	CategorySymptoms   = "Symptoms & Diagnosis"
	CategoryTreatment  = "Treatment & Medication"
	CategoryPrevention = "Prevention & Lifestyle"
	CategoryGeneral    = "General"
)

// Categories lists the topic categories assigned to unanswered questions.
func Categories() []string {
	return []string{CategorySymptoms, CategoryTreatment, CategoryPrevention, CategoryGeneral}
}

// Categorizer assigns a topic category and optional condition to a question.
type Categorizer struct {
	generator ports.Generator
	timeout   time.Duration
}

func NewCategorizer(generator ports.Generator, timeout time.Duration) *Categorizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Categorizer{generator: generator, timeout: timeout}
}

func (c *Categorizer) Categorize(ctx context.Context, question string) (domain.QuestionCategory, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.generator.Generate(callCtx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: categorizationPrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Question: %q\nCategory:", question)},
	}, domain.GenerationOptions{Temperature: 0.1, MaxTokens: 20})
	if err != nil {
		return domain.QuestionCategory{}, fmt.Errorf("categorize question: %w", err)
	}
	return parseCategory(raw), nil
}

// parseCategory reads "Category[, Condition]". Unknown categories fall back to
// Symptoms & Diagnosis.
func parseCategory(raw string) domain.QuestionCategory {
	cleaned := strings.Trim(strings.TrimSpace(raw), `"'.`)
	category, condition, _ := strings.Cut(cleaned, ",")
	category = strings.TrimSpace(category)
	condition = strings.TrimSpace(condition)

	for _, known := range Categories() {
		if strings.EqualFold(category, known) {
			if known == CategoryGeneral {
				condition = ""
			}
			return domain.QuestionCategory{Category: known, Condition: condition}
		}
	}
	slog.Debug("unexpected_category_label", "label", raw)
	return domain.QuestionCategory{Category: CategorySymptoms, Condition: condition}
}

package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

// ApologyText is returned whenever the final generation cannot be completed.
const ApologyText = "I'm having trouble responding right now. Please try again in a moment."

var errEmptyGeneration = errors.New("generation returned empty text")

// AnswerUseCase runs the answer-decision pipeline:
// classify, conditionally retrieve, generate, attribute sources.
type AnswerUseCase struct {
	classifier *Classifier
	scorer     *WeightedScorer
	formatter  *SourceFormatter
	generator  ports.Generator
	limits     domain.AnswerLimits
}

func NewAnswerUseCase(
	retriever ports.Retriever,
	generator ports.Generator,
	policy domain.RetrievalPolicy,
	limits domain.AnswerLimits,
) *AnswerUseCase {
	limits = limits.Normalize()
	return &AnswerUseCase{
		classifier: NewClassifier(generator, limits),
		scorer:     NewWeightedScorer(retriever, policy, limits),
		formatter:  NewSourceFormatter(policy),
		generator:  generator,
		limits:     limits,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string, recentTurns []domain.Turn) domain.AnswerDecision {
	turns := recentHistory(recentTurns, uc.limits.HistoryTurns)

	inDomain := uc.classifier.Classify(ctx, question)

	score := domain.ScoreResult{Sources: []string{}, Outcome: domain.RetrievalSkipped}
	if inDomain {
		score = uc.scorer.Score(ctx, question, turns)
	}
	slog.Info("answer_classified",
		"in_domain", inDomain,
		"retrieval_outcome", string(score.Outcome),
		"blended_score", score.BlendedScore,
		"sources", len(score.Sources),
		"turns", len(turns),
	)

	meta := domain.AnswerMetadata{
		IsInDomain:          inDomain,
		UsedGroundedContext: score.HasContext,
		BlendedScore:        score.BlendedScore,
		TurnsConsidered:     len(turns),
		RetrievalOutcome:    score.Outcome,
	}

	text, err := uc.generate(ctx, question, turns, score, inDomain)
	if err != nil {
		slog.Error("answer_generation_failed", "error", err, "in_domain", inDomain)
		meta.UsedGroundedContext = false
		meta.Error = true
		return domain.AnswerDecision{
			Text:     ApologyText,
			Sources:  []string{},
			Metadata: meta,
		}
	}

	candidates := score.Sources
	if !score.HasContext {
		candidates = nil
	}
	finalText, finalSources := uc.formatter.Format(text, candidates, meta)
	if finalSources == nil {
		finalSources = []string{}
	}

	return domain.AnswerDecision{
		Text:     finalText,
		Sources:  finalSources,
		Metadata: meta,
	}
}

func (uc *AnswerUseCase) generate(
	ctx context.Context,
	question string,
	turns []domain.Turn,
	score domain.ScoreResult,
	inDomain bool,
) (string, error) {
	messages := make([]domain.ChatMessage, 0, len(turns)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildSystemPrompt(score.Context, score.HasContext, inDomain),
	})
	for _, turn := range turns {
		messages = append(messages, domain.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})

	callCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
	defer cancel()

	text, err := uc.generator.Generate(callCtx, messages, domain.GenerationOptions{
		Temperature: uc.limits.AnswerTemperature,
		MaxTokens:   uc.limits.AnswerMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyGeneration
	}
	return text, nil
}

// recentHistory keeps the last limit turns that carry a known role and non-empty text.
func recentHistory(turns []domain.Turn, limit int) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns))
	for _, turn := range turns {
		role, ok := domain.ParseRole(string(turn.Role))
		if !ok || strings.TrimSpace(turn.Content) == "" {
			continue
		}
		out = append(out, domain.Turn{Role: role, Content: strings.TrimSpace(turn.Content)})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

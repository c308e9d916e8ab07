package usecase

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

// WeightedScorer blends question-only and conversation-aware retrieval confidence and
// decides whether the knowledge base can ground the answer.
type WeightedScorer struct {
	retriever ports.Retriever
	policy    domain.RetrievalPolicy
	timeout   time.Duration
}

func NewWeightedScorer(retriever ports.Retriever, policy domain.RetrievalPolicy, limits domain.AnswerLimits) *WeightedScorer {
	if policy.Validate() != nil {
		policy = domain.DefaultRetrievalPolicy()
	}
	return &WeightedScorer{
		retriever: retriever,
		policy:    policy,
		timeout:   limits.Normalize().RetrievalTimeout,
	}
}

func (s *WeightedScorer) Score(ctx context.Context, question string, recentTurns []domain.Turn) domain.ScoreResult {
	primary, err := s.retrieve(ctx, question)
	if err != nil {
		slog.Warn("primary_retrieval_failed", "error", err)
		return domain.ScoreResult{Sources: []string{}, Outcome: domain.RetrievalError}
	}
	if len(primary) == 0 {
		return domain.ScoreResult{Sources: []string{}, Outcome: domain.RetrievalNoResults}
	}

	secondaryTop := 0.0
	if len(recentTurns) > 0 {
		blendedQuery := buildBlendedQuery(question, recentTurns, s.policy.BlendTurns)
		secondary, err := s.retrieve(ctx, blendedQuery)
		switch {
		case err != nil:
			slog.Warn("context_retrieval_failed", "error", err)
		case len(secondary) > 0:
			secondaryTop = secondary[0].Score
		}
	}

	blended := s.policy.PrimaryWeight*primary[0].Score + s.policy.ContextWeight*secondaryTop
	sources := collectSources(primary)

	if !s.anyApproved(sources) {
		slog.Info("retrieval_off_domain", "sources", len(sources), "raw_score", blended)
		return domain.ScoreResult{Sources: sources, Outcome: domain.RetrievalOffDomain}
	}

	if blended < s.policy.AcceptanceThreshold {
		return domain.ScoreResult{
			BlendedScore: blended,
			Sources:      sources,
			Outcome:      domain.RetrievalLowConfidence,
		}
	}

	bar := s.policy.PassageBar()
	texts := make([]string, 0, len(primary))
	for _, p := range primary {
		if p.Score >= bar && strings.TrimSpace(p.Text) != "" {
			texts = append(texts, strings.TrimSpace(p.Text))
		}
	}
	if len(texts) == 0 {
		// Accepted blend but no single passage clears the per-passage bar.
		return domain.ScoreResult{
			BlendedScore: blended,
			Sources:      sources,
			Outcome:      domain.RetrievalLowConfidence,
		}
	}

	return domain.ScoreResult{
		Context:      strings.Join(texts, "\n\n"),
		HasContext:   true,
		BlendedScore: blended,
		Sources:      sources,
		Outcome:      domain.RetrievalAccepted,
	}
}

func (s *WeightedScorer) retrieve(ctx context.Context, query string) ([]domain.Passage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.retriever.Retrieve(callCtx, query, s.policy.TopK)
}

func (s *WeightedScorer) anyApproved(sources []string) bool {
	for _, src := range sources {
		if _, ok := matchApprovedDomain(src, s.policy.ApprovedDomains); ok {
			return true
		}
	}
	return false
}

func collectSources(passages []domain.Passage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if src := strings.TrimSpace(p.Source); src != "" {
			out = append(out, src)
		}
	}
	return out
}

// matchApprovedDomain finds the allow-list entry whose domain equals the source host or
// is a parent of it.
func matchApprovedDomain(source string, approved []domain.ApprovedDomain) (domain.ApprovedDomain, bool) {
	host := sourceHost(source)
	if host == "" {
		return domain.ApprovedDomain{}, false
	}
	for _, entry := range approved {
		d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(entry.Domain), "."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return entry, true
		}
	}
	return domain.ApprovedDomain{}, false
}

func sourceHost(source string) string {
	raw := strings.TrimSpace(source)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

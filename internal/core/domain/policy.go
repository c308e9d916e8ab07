package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ApprovedDomain is a source origin trusted enough to ground an answer.
type ApprovedDomain struct {
	Domain string `json:"domain" yaml:"domain"`
	Label  string `json:"label" yaml:"label"`
}

// RetrievalPolicy holds the fixed knobs of the weighted retrieval decision.
type RetrievalPolicy struct {
	PrimaryWeight       float64          `json:"primary_weight" yaml:"primary_weight"`
	ContextWeight       float64          `json:"context_weight" yaml:"context_weight"`
	AcceptanceThreshold float64          `json:"acceptance_threshold" yaml:"acceptance_threshold"`
	PassageFactor       float64          `json:"passage_factor" yaml:"passage_factor"`
	TopK                int              `json:"top_k" yaml:"top_k"`
	BlendTurns          int              `json:"blend_turns" yaml:"blend_turns"`
	ApprovedDomains     []ApprovedDomain `json:"approved_domains" yaml:"approved_domains"`
	AuthoritativeSite   string           `json:"authoritative_site" yaml:"authoritative_site"`
}

func DefaultRetrievalPolicy() RetrievalPolicy {
	return RetrievalPolicy{
		PrimaryWeight:       0.8,
		ContextWeight:       0.2,
		AcceptanceThreshold: 0.30,
		PassageFactor:       0.8,
		TopK:                4,
		BlendTurns:          2,
		ApprovedDomains: []ApprovedDomain{
			{Domain: "nhs.uk", Label: "NHS"},
			{Domain: "cancerresearchuk.org", Label: "Cancer Research UK"},
		},
		AuthoritativeSite: "https://www.nhs.uk",
	}
}

// PassageBar is the per-passage inclusion score, looser than the blended gate.
func (p RetrievalPolicy) PassageBar() float64 {
	return p.PassageFactor * p.AcceptanceThreshold
}

func (p RetrievalPolicy) Validate() error {
	if p.PrimaryWeight < 0 || p.ContextWeight < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if math.Abs(p.PrimaryWeight+p.ContextWeight-1.0) > 1e-9 {
		return fmt.Errorf("primary_weight + context_weight must equal 1.0, got %.4f", p.PrimaryWeight+p.ContextWeight)
	}
	if p.AcceptanceThreshold <= 0 || p.AcceptanceThreshold > 1 {
		return fmt.Errorf("acceptance_threshold must be in (0, 1], got %.4f", p.AcceptanceThreshold)
	}
	if p.PassageFactor <= 0 || p.PassageFactor > 1 {
		return fmt.Errorf("passage_factor must be in (0, 1], got %.4f", p.PassageFactor)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if p.BlendTurns < 0 {
		return fmt.Errorf("blend_turns must not be negative")
	}
	if len(p.ApprovedDomains) == 0 {
		return fmt.Errorf("at least one approved domain is required")
	}
	for _, d := range p.ApprovedDomains {
		if strings.TrimSpace(d.Domain) == "" {
			return fmt.Errorf("approved domain entry has empty domain")
		}
	}
	return nil
}

// AnswerLimits bounds the external calls made during one answer computation.
type AnswerLimits struct {
	ClassifyTimeout   time.Duration `json:"classify_timeout"`
	RetrievalTimeout  time.Duration `json:"retrieval_timeout"`
	GenerateTimeout   time.Duration `json:"generate_timeout"`
	HistoryTurns      int           `json:"history_turns"`
	ClassifyMaxTokens int           `json:"classify_max_tokens"`
	AnswerMaxTokens   int           `json:"answer_max_tokens"`
	AnswerTemperature float64       `json:"answer_temperature"`
}

func DefaultAnswerLimits() AnswerLimits {
	return AnswerLimits{
		ClassifyTimeout:   10 * time.Second,
		RetrievalTimeout:  15 * time.Second,
		GenerateTimeout:   60 * time.Second,
		HistoryTurns:      10,
		ClassifyMaxTokens: 5,
		AnswerMaxTokens:   800,
		AnswerTemperature: 0.7,
	}
}

// Normalize fills zero or negative fields with defaults.
func (l AnswerLimits) Normalize() AnswerLimits {
	out := l
	def := DefaultAnswerLimits()
	if out.ClassifyTimeout <= 0 {
		out.ClassifyTimeout = def.ClassifyTimeout
	}
	if out.RetrievalTimeout <= 0 {
		out.RetrievalTimeout = def.RetrievalTimeout
	}
	if out.GenerateTimeout <= 0 {
		out.GenerateTimeout = def.GenerateTimeout
	}
	if out.HistoryTurns <= 0 {
		out.HistoryTurns = def.HistoryTurns
	}
	if out.ClassifyMaxTokens <= 0 {
		out.ClassifyMaxTokens = def.ClassifyMaxTokens
	}
	if out.AnswerMaxTokens <= 0 {
		out.AnswerMaxTokens = def.AnswerMaxTokens
	}
	if out.AnswerTemperature < 0 {
		out.AnswerTemperature = def.AnswerTemperature
	}
	return out
}

package domain

type AnswerMetadata struct {
	IsInDomain          bool             `json:"is_in_domain"`
	UsedGroundedContext bool             `json:"used_grounded_context"`
	BlendedScore        float64          `json:"blended_score"`
	TurnsConsidered     int              `json:"turns_considered"`
	RetrievalOutcome    RetrievalOutcome `json:"retrieval_outcome"`
	Error               bool             `json:"error,omitempty"`
}

// AnswerDecision is the result of one answer computation.
type AnswerDecision struct {
	Text     string         `json:"response"`
	Sources  []string       `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}

// NeedsFallbackRecord reports whether the decision should be logged as unanswered:
// an in-domain question that was not grounded, or a failed generation.
func (d AnswerDecision) NeedsFallbackRecord() bool {
	if d.Metadata.Error {
		return true
	}
	return d.Metadata.IsInDomain && !d.Metadata.UsedGroundedContext
}

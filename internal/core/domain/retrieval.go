package domain

// Passage is one ranked hit returned by the retrieval service.
type Passage struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
}

type RetrievalOutcome string

const (
	RetrievalSkipped       RetrievalOutcome = "skipped"
	RetrievalNoResults     RetrievalOutcome = "no_results"
	RetrievalError         RetrievalOutcome = "retrieval_error"
	RetrievalOffDomain     RetrievalOutcome = "off_domain"
	RetrievalLowConfidence RetrievalOutcome = "low_confidence"
	RetrievalAccepted      RetrievalOutcome = "accepted"
)

// ScoreResult is the weighted retrieval verdict for one question.
// HasContext is false whenever Context must not be used for grounding.
type ScoreResult struct {
	Context      string           `json:"context,omitempty"`
	HasContext   bool             `json:"has_context"`
	BlendedScore float64          `json:"blended_score"`
	Sources      []string         `json:"sources"`
	Outcome      RetrievalOutcome `json:"outcome"`
}

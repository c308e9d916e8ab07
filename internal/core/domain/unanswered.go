package domain

import "time"

// FallbackEvent is emitted when a question could not be answered from the knowledge base.
type FallbackEvent struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Location  string    `json:"location,omitempty"`
	Reason    string    `json:"reason"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type QuestionCategory struct {
	Category  string `json:"category"`
	Condition string `json:"condition,omitempty"`
}

// UnansweredQuery is the persisted analytics record of a fallback event.
type UnansweredQuery struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Location  string    `json:"location,omitempty"`
	Reason    string    `json:"reason"`
	Score     float64   `json:"score"`
	Category  string    `json:"category,omitempty"`
	Condition string    `json:"condition,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

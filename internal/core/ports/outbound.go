package ports

import (
	"context"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

// Retriever returns ranked knowledge-base passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.Passage, error)
}

// Generator produces text for an ordered list of chat messages.
type Generator interface {
	Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (string, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher performs semantic search over the knowledge-base collection.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.Passage, error)
}

// QuestionCategorizer assigns a topic category to an unanswered question.
type QuestionCategorizer interface {
	Categorize(ctx context.Context, question string) (domain.QuestionCategory, error)
}

// FallbackPublisher emits fallback events to the analytics pipeline.
type FallbackPublisher interface {
	PublishFallback(ctx context.Context, event domain.FallbackEvent) error
}

// FallbackSubscriber consumes fallback events until ctx is done.
type FallbackSubscriber interface {
	SubscribeFallback(ctx context.Context, handler func(context.Context, domain.FallbackEvent) error) error
}

// UnansweredStore persists and lists unanswered-query records.
type UnansweredStore interface {
	Record(ctx context.Context, query domain.UnansweredQuery) error
	ListRecent(ctx context.Context, limit int) ([]domain.UnansweredQuery, error)
}

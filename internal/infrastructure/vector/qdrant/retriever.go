package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

// Retriever embeds the query and searches the collection.
type Retriever struct {
	embedder ports.Embedder
	searcher ports.VectorSearcher
}

func NewRetriever(embedder ports.Embedder, searcher ports.VectorSearcher) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.Passage{}, nil
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	passages, err := r.searcher.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}
	return passages, nil
}

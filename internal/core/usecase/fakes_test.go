package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

type retrieverFake struct {
	mu      sync.Mutex
	results [][]domain.Passage
	errs    []error
	queries []string
}

func (f *retrieverFake) Retrieve(_ context.Context, query string, _ int) ([]domain.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.queries)
	f.queries = append(f.queries, query)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return nil, nil
}

func (f *retrieverFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type generateCall struct {
	messages []domain.ChatMessage
	opts     domain.GenerationOptions
}

// generatorFake answers classification calls with label and everything else with answer.
type generatorFake struct {
	mu        sync.Mutex
	label     string
	labelErr  error
	answer    string
	answerErr error
	calls     []generateCall
}

func (f *generatorFake) Generate(_ context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{messages: messages, opts: opts})
	if len(messages) > 0 && messages[0].Content == classificationPrompt {
		return f.label, f.labelErr
	}
	return f.answer, f.answerErr
}

func (f *generatorFake) lastCall() generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/resilience"
)

func TestGeneratorSendsChatMessagesAndOptions(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  MEDICAL \n"},"done":true}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "llama3", "nomic"), nil)
	out, err := gen.Generate(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "classify"},
		{Role: domain.RoleUser, Content: "What is asthma?"},
	}, domain.GenerationOptions{Temperature: 0, MaxTokens: 5})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "MEDICAL" {
		t.Fatalf("expected trimmed content, got %q", out)
	}
	if captured.Model != "llama3" || captured.Stream {
		t.Fatalf("unexpected request header fields: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "What is asthma?" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
	if got, _ := captured.Options["num_predict"].(float64); got != 5 {
		t.Fatalf("expected num_predict=5, got %v", captured.Options["num_predict"])
	}
	if got, ok := captured.Options["temperature"].(float64); !ok || got != 0 {
		t.Fatalf("expected temperature=0, got %v", captured.Options["temperature"])
	}
}

func TestGeneratorRejectsEmptyMessages(t *testing.T) {
	gen := NewGenerator(New("http://127.0.0.1:0", "gen", "embed"), nil)
	_, err := gen.Generate(context.Background(), nil, domain.GenerationOptions{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed"), nil)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be wrapped as temporary, got %v", err)
	}
}

func TestEmbedQueryRetriesThroughExecutor(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	vec, err := NewEmbedder(New(server.URL, "gen", "embed"), exec).EmbedQuery(context.Background(), "fever")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestBadRequestIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, BreakerEnabled: false})
	gen := NewGenerator(New(server.URL, "gen", "embed"), exec)
	_, err := gen.Generate(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, domain.GenerationOptions{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single call, got %d", got)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"nomic-embed-text:latest"}]}`))
	}))
	defer server.Close()

	if err := New(server.URL, "llama3.1:8b", "nomic-embed-text").Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	err := New(server.URL, "llama3.1:70b", "nomic-embed-text").Ping(context.Background())
	if !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable for missing model, got %v", err)
	}
	if !strings.Contains(err.Error(), `"llama3.1:70b"`) {
		t.Fatalf("expected model name in error, got %v", err)
	}
}

func TestMissingModelIsUnavailableAndNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama3.1:8b\" not found, try pulling it first"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	gen := NewGenerator(New(server.URL, "llama3.1:8b", "embed"), exec)
	_, err := gen.Generate(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, domain.GenerationOptions{})
	if !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("missing model must not be temporary: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single call, got %d", got)
	}
}

func TestContextOverflowIsInvalidInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"input length exceeds the context length"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed"), nil)
	_, err := gen.Generate(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, domain.GenerationOptions{MaxTokens: 1 << 20})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHasModel(t *testing.T) {
	names := []string{"llama3.1:8b", "nomic-embed-text:latest", "phi3"}
	cases := map[string]bool{
		"llama3.1:8b":             true,
		"llama3.1":                false,
		"nomic-embed-text":        true,
		"nomic-embed-text:latest": true,
		"phi3:latest":             true,
		"mistral":                 false,
		"":                        true,
	}
	for model, want := range cases {
		if got := hasModel(names, model); got != want {
			t.Fatalf("hasModel(%q) = %v, want %v", model, got, want)
		}
	}
}

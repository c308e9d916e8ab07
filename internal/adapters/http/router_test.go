package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/observability/metrics"
)

type answerFake struct {
	decision domain.AnswerDecision
	question string
	turns    []domain.Turn
}

func (f *answerFake) Answer(_ context.Context, question string, turns []domain.Turn) domain.AnswerDecision {
	f.question = question
	f.turns = turns
	return f.decision
}

type reporterFake struct {
	calls    int
	location string
	err      error
}

func (f *reporterFake) Report(_ context.Context, _ string, location string, decision domain.AnswerDecision) (bool, error) {
	f.calls++
	f.location = location
	return decision.NeedsFallbackRecord(), f.err
}

type unansweredFake struct {
	items []domain.UnansweredQuery
	limit int
	err   error
}

func (f *unansweredFake) ListRecent(_ context.Context, limit int) ([]domain.UnansweredQuery, error) {
	f.limit = limit
	return f.items, f.err
}

type pingFake struct{ err error }

func (p pingFake) Ping(context.Context) error { return p.err }

func postChat(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestChatReturnsDecisionAndReportsFallback(t *testing.T) {
	answers := &answerFake{decision: domain.AnswerDecision{
		Text:    "General advice.",
		Sources: []string{},
		Metadata: domain.AnswerMetadata{
			IsInDomain:       true,
			BlendedScore:     0.12,
			RetrievalOutcome: domain.RetrievalLowConfidence,
			TurnsConsidered:  1,
		},
	}}
	reporter := &reporterFake{}
	handler := NewRouter(Options{}, answers, reporter, nil, metrics.NewHTTPServerMetrics("test")).Handler()

	res := postChat(t, handler, `{"message":"  What is gout?  ","location":"Leeds","recent_turns":[{"role":"user","content":"hi"}]}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if answers.question != "What is gout?" || len(answers.turns) != 1 || answers.turns[0].Role != domain.RoleUser {
		t.Fatalf("unexpected answer input: %q %+v", answers.question, answers.turns)
	}
	if reporter.calls != 1 || reporter.location != "Leeds" {
		t.Fatalf("expected fallback report with location, got %+v", reporter)
	}

	var body struct {
		Response string                `json:"response"`
		Sources  []string              `json:"sources"`
		Metadata domain.AnswerMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Response != "General advice." || body.Sources == nil || !body.Metadata.IsInDomain {
		t.Fatalf("unexpected response %+v", body)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestChatSucceedsWhenFallbackReportFails(t *testing.T) {
	answers := &answerFake{decision: domain.AnswerDecision{Text: "x", Sources: []string{}, Metadata: domain.AnswerMetadata{Error: true}}}
	reporter := &reporterFake{err: errors.New("nats down")}
	handler := NewRouter(Options{}, answers, reporter, nil, nil).Handler()

	if res := postChat(t, handler, `{"message":"q"}`); res.Code != http.StatusOK {
		t.Fatalf("expected 200 despite report failure, got %d", res.Code)
	}
}

func TestChatValidatesInput(t *testing.T) {
	handler := NewRouter(Options{MaxRequestBytes: 128}, &answerFake{}, nil, nil, nil).Handler()

	cases := map[string]int{
		`not json`:                 http.StatusBadRequest,
		`{"message":"   "}`:        http.StatusBadRequest,
		`{"message":"q","recent_turns":[{"role":"tool","content":"x"}]}`: http.StatusBadRequest,
		`{"message":"` + strings.Repeat("a", 200) + `"}`:                 http.StatusRequestEntityTooLarge,
	}
	for body, want := range cases {
		if res := postChat(t, handler, body); res.Code != want {
			t.Fatalf("body %.40q: expected %d, got %d", body, want, res.Code)
		}
	}
}

func TestChatRejectsWrongMethod(t *testing.T) {
	handler := NewRouter(Options{}, &answerFake{}, nil, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestListUnansweredDefaultsAndValidatesLimit(t *testing.T) {
	store := &unansweredFake{}
	handler := NewRouter(Options{}, &answerFake{}, nil, store, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/admin/unanswered", nil))
	if res.Code != http.StatusOK || store.limit != 20 {
		t.Fatalf("expected default limit 20, got code=%d limit=%d", res.Code, store.limit)
	}
	if !strings.Contains(res.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/admin/unanswered?limit=abc", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

func TestListUnansweredMapsStoreErrors(t *testing.T) {
	store := &unansweredFake{err: domain.WrapError(domain.ErrTemporary, "list", errors.New("db down"))}
	handler := NewRouter(Options{}, &answerFake{}, nil, store, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/admin/unanswered?limit=5", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	handler := NewRouter(Options{}, &answerFake{}, nil, nil, nil).
		WithReadiness("ollama", pingFake{}).
		WithReadiness("qdrant", pingFake{err: errors.New("connection refused")}).
		Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if body.Checks["ollama"] != "ok" || body.Checks["qdrant"] != "connection refused" {
		t.Fatalf("unexpected checks %v", body.Checks)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")): http.StatusBadRequest,
		domain.WrapError(domain.ErrNotFound, "op", errors.New("x")):     http.StatusNotFound,
		domain.WrapError(domain.ErrTemporary, "op", errors.New("x")):    http.StatusServiceUnavailable,
		errors.New("boom"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := mapErrorToHTTPStatus(err); got != want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}

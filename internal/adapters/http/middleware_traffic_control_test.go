package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	answers := &answerFake{decision: domain.AnswerDecision{Text: "ok", Sources: []string{}}}
	handler := NewRouter(Options{RateLimitRPS: 1, RateLimitBurst: 1}, answers, nil, nil, nil).Handler()

	res1 := postChat(t, handler, `{"message":"q"}`)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := postChat(t, handler, `{"message":"q"}`)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	health := httptest.NewRecorder()
	handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("health checks must bypass the limiter, got %d", health.Code)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	rl := newRateLimiter(1, 1, false)
	if !rl.limiterFor("10.0.0.1").Allow() || !rl.limiterFor("10.0.0.2").Allow() {
		t.Fatalf("distinct clients must have distinct buckets")
	}
	if rl.limiterFor("10.0.0.1").Allow() {
		t.Fatalf("second request from same client must be limited")
	}
}

func TestClientIPIgnoresForwardedForUnlessTrusted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.4")

	if got := clientIP(req, false); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	if got := clientIP(req, true); got != "198.51.100.4" {
		t.Fatalf("expected proxy-appended client, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := clientIP(req, true); got != "192.0.2.1" {
		t.Fatalf("expected fallback to remote host, got %q", got)
	}
}

func TestRateLimitCannotBeDodgedWithForwardedFor(t *testing.T) {
	answers := &answerFake{decision: domain.AnswerDecision{Text: "ok", Sources: []string{}}}
	handler := NewRouter(Options{RateLimitRPS: 1, RateLimitBurst: 1}, answers, nil, nil, nil).Handler()

	admitted := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"q"}`))
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.0.%d", i))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code == http.StatusOK {
			admitted++
		} else if res.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: unexpected status %d", i, res.Code)
		}
	}
	if admitted != 1 {
		t.Fatalf("expected 1 admitted request at burst=1, got %d", admitted)
	}
}

func TestRateLimitUsesForwardedForBehindTrustedProxy(t *testing.T) {
	answers := &answerFake{decision: domain.AnswerDecision{Text: "ok", Sources: []string{}}}
	handler := NewRouter(Options{RateLimitRPS: 1, RateLimitBurst: 1, TrustProxyHeaders: true}, answers, nil, nil, nil).Handler()

	for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"q"}`))
		req.RemoteAddr = "10.0.0.2:8080"
		req.Header.Set("X-Forwarded-For", client)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("client %s behind proxy expected 200, got %d", client, res.Code)
		}
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	rejected := ""
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond, func(reason string) { rejected = reason })

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}
	if rejected != "overloaded" {
		t.Fatalf("expected overloaded rejection callback, got %q", rejected)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

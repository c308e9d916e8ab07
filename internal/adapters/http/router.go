package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
	"github.com/kirillkom/medhelp-assistant/internal/observability/metrics"
)

// Pinger is a dependency probed by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Service         string
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	QueueWait       time.Duration
	MaxRequestBytes int64
	FallbackTimeout time.Duration

	// TrustProxyHeaders keys rate limits and logs by X-Forwarded-For.
	TrustProxyHeaders bool
}

func (o Options) normalize() Options {
	out := o
	if strings.TrimSpace(out.Service) == "" {
		out.Service = "medhelp-api"
	}
	if out.MaxRequestBytes <= 0 {
		out.MaxRequestBytes = 64 << 10
	}
	if out.QueueWait <= 0 {
		out.QueueWait = 250 * time.Millisecond
	}
	if out.FallbackTimeout <= 0 {
		out.FallbackTimeout = 3 * time.Second
	}
	return out
}

type Router struct {
	opts       Options
	answers    ports.AnswerService
	reporter   ports.FallbackReporter
	unanswered ports.UnansweredReader
	metrics    *metrics.HTTPServerMetrics
	readiness  map[string]Pinger
}

// NewRouter wires the HTTP surface. reporter, unanswered and m may be nil.
func NewRouter(
	opts Options,
	answers ports.AnswerService,
	reporter ports.FallbackReporter,
	unanswered ports.UnansweredReader,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		opts:       opts.normalize(),
		answers:    answers,
		reporter:   reporter,
		unanswered: unanswered,
		metrics:    m,
		readiness:  map[string]Pinger{},
	}
}

func (rt *Router) WithReadiness(name string, p Pinger) *Router {
	if p != nil {
		rt.readiness[name] = p
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat", rt.chat)
	if rt.unanswered != nil {
		api.HandleFunc("GET /v1/admin/unanswered", rt.listUnanswered)
	}

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.opts.MaxInFlight, rt.opts.QueueWait, rt.onReject)
	guarded = newRateLimiter(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.opts.TrustProxyHeaders).middleware(guarded, rt.onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler, rt.opts.TrustProxyHeaders)
	return requestIDMiddleware(handler)
}

func (rt *Router) onReject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(rt.opts.Service, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.readiness))
	for name, p := range rt.readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

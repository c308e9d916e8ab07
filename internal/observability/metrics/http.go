package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

const namespace = "medhelp"

// Decision paths reported for every answer.
const (
	PathGrounded         = "grounded"
	PathGeneralKnowledge = "general_knowledge"
	PathOutOfDomain      = "out_of_domain"
	PathError            = "error"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	answerDecisionsTotal *prometheus.CounterVec
	retrievalOutcomes    *prometheus.CounterVec
	blendedScore         *prometheus.HistogramVec
	answerDuration       *prometheus.HistogramVec
	fallbackEventsTotal  *prometheus.CounterVec

	dependencyRetries *prometheus.CounterVec
	breakerOpen       *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected before reaching a handler, by reason.",
		},
		[]string{"service", "reason"},
	)
	answerDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "decisions_total",
			Help:      "Answer decisions by path.",
		},
		[]string{"service", "endpoint", "path"},
	)
	retrievalOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "outcomes_total",
			Help:      "Retrieval scoring outcomes.",
		},
		[]string{"service", "outcome"},
	)
	blendedScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "blended_score",
			Help:      "Distribution of blended retrieval confidence for in-domain questions.",
			Buckets:   []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.6, 0.8, 1},
		},
		[]string{"service"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "Answer computation duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 90},
		},
		[]string{"service", "endpoint", "path"},
	)
	fallbackEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "events_total",
			Help:      "Fallback events by publish status.",
		},
		[]string{"service", "status"},
	)
	dependencyRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		answerDecisionsTotal,
		retrievalOutcomes,
		blendedScore,
		answerDuration,
		fallbackEventsTotal,
		dependencyRetries,
		breakerOpen,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		rejectedTotal:        rejectedTotal,
		answerDecisionsTotal: answerDecisionsTotal,
		retrievalOutcomes:    retrievalOutcomes,
		blendedScore:         blendedScore,
		answerDuration:       answerDuration,
		fallbackEventsTotal:  fallbackEventsTotal,
		dependencyRetries:    dependencyRetries,
		breakerOpen:          breakerOpen,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		// Route patterns keep label cardinality bounded.
		path := "unmatched"
		if r.Pattern != "" {
			path = r.Pattern
		}
		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// DecisionPath names the branch an answer took.
func DecisionPath(meta domain.AnswerMetadata) string {
	switch {
	case meta.Error:
		return PathError
	case !meta.IsInDomain:
		return PathOutOfDomain
	case meta.UsedGroundedContext:
		return PathGrounded
	default:
		return PathGeneralKnowledge
	}
}

func (m *HTTPServerMetrics) RecordAnswer(service, endpoint string, meta domain.AnswerMetadata, duration time.Duration) {
	path := DecisionPath(meta)
	m.answerDecisionsTotal.WithLabelValues(service, endpoint, path).Inc()
	m.answerDuration.WithLabelValues(service, endpoint, path).Observe(duration.Seconds())

	outcome := string(meta.RetrievalOutcome)
	if outcome == "" {
		outcome = "unknown"
	}
	m.retrievalOutcomes.WithLabelValues(service, outcome).Inc()
	if meta.IsInDomain && meta.RetrievalOutcome != domain.RetrievalOffDomain && meta.RetrievalOutcome != domain.RetrievalSkipped {
		m.blendedScore.WithLabelValues(service).Observe(meta.BlendedScore)
	}
}

func (m *HTTPServerMetrics) RecordFallbackEvent(service string, published bool, err error) {
	status := "skipped"
	switch {
	case err != nil:
		status = "failed"
	case published:
		status = "published"
	}
	m.fallbackEventsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

// ResilienceObserver adapts the metrics to the resilience executor hooks.
func (m *HTTPServerMetrics) ResilienceObserver(service string) *DependencyObserver {
	return &DependencyObserver{service: service, retries: m.dependencyRetries, breakerOpen: m.breakerOpen}
}

type DependencyObserver struct {
	service     string
	retries     *prometheus.CounterVec
	breakerOpen *prometheus.GaugeVec
}

func (o *DependencyObserver) ObserveRetry(operation string) {
	o.retries.WithLabelValues(o.service, operation).Inc()
}

func (o *DependencyObserver) ObserveBreakerState(operation, state string) {
	value := 1.0
	if state == "closed" {
		value = 0
	}
	o.breakerOpen.WithLabelValues(o.service, operation).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scribe_engine"

// HTTP metrics, recorded by InstrumentHandler.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})

	HTTPResponseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_size_bytes",
		Help:      "HTTP response size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7), // 100B → 100MB
	}, []string{"method", "path_pattern"})
)

// Billing counters (incremented by the ledger).
var (
	PaymentVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_verifications_total",
		Help:      "Payment verifications by resulting stored status.",
	}, []string{"status"})

	PaymentsCreditedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_credited_total",
		Help:      "Approved payments that credited a balance.",
	})

	MinutesCreditedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "minutes_credited_total",
		Help:      "Minutes added to balances by approved payments.",
	})

	MinutesDebitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "minutes_debited_total",
		Help:      "Minutes removed from balances by transcriptions.",
	})

	DebitsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debits_rejected_total",
		Help:      "Balance debits refused, by reason.",
	}, []string{"reason"})
)

// Provider metrics (incremented by the AssemblyAI and Wompi call sites).
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Outbound provider requests by provider, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Outbound provider request duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms → ~100s
	}, []string{"provider", "operation"})

	TranscriptPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcript_polls_total",
		Help:      "Server-side transcript polls by outcome (completed, error, exhausted, cancelled).",
	}, []string{"outcome"})

	StatusCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_cache_lookups_total",
		Help:      "Transcript status cache lookups by result.",
	}, []string{"result"})

	AudioArchivedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_archived_bytes_total",
		Help:      "Bytes of uploaded audio written to the archive.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPResponseSize,
		PaymentVerificationsTotal,
		PaymentsCreditedTotal,
		MinutesCreditedTotal,
		MinutesDebitedTotal,
		DebitsRejectedTotal,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		TranscriptPollsTotal,
		StatusCacheTotal,
		AudioArchivedBytes,
	)
}

// ObserveProvider records one outbound provider call.
func ObserveProvider(provider, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(duration)
		HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(sw.written))
	})
}

// statusWriter wraps http.ResponseWriter to capture status code and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Hijack lets WebSocket upgrades through the instrumented writer.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers (e.g. http.Hijacker for WebSocket upgrades).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

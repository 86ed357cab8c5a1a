package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Quota metrics
	QuotaChecksTotal  *prometheus.CounterVec
	QuotaDenialsTotal *prometheus.CounterVec

	// Deletion metrics
	DeletionRunsTotal   *prometheus.CounterVec
	DeletionStepsTotal  *prometheus.CounterVec
	DeletionRunDuration prometheus.Histogram
	RowsDeletedTotal    *prometheus.CounterVec

	// Admin gateway metrics
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "familygallery_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_quota_checks_total",
				Help: "Quota checks by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_quota_create_denials_total",
				Help: "Creates refused because the owner was at its plan limit",
			},
			[]string{"resource"},
		),
		DeletionRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_account_deletions_total",
				Help: "Account deletion runs by outcome",
			},
			[]string{"outcome"},
		),
		DeletionStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_account_deletion_steps_total",
				Help: "Account deletion steps by step name and outcome",
			},
			[]string{"step", "outcome"},
		),
		DeletionRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "familygallery_account_deletion_duration_seconds",
				Help:    "Wall-clock duration of account deletion runs",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		RowsDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_rows_deleted_total",
				Help: "Rows removed by account deletion, per table",
			},
			[]string{"table"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familygallery_admin_rate_limited_total",
				Help: "Admin requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.QuotaChecksTotal,
		m.QuotaDenialsTotal,
		m.DeletionRunsTotal,
		m.DeletionStepsTotal,
		m.DeletionRunDuration,
		m.RowsDeletedTotal,
		m.RateLimitedTotal,
	)

	return m
}

// QuotaCheck records the outcome of one quota evaluation
func (m *Metrics) QuotaCheck(resource, outcome string) {
	if m == nil {
		return
	}
	m.QuotaChecksTotal.WithLabelValues(resource, outcome).Inc()
}

// QuotaDenied records a create refused at the plan limit
func (m *Metrics) QuotaDenied(resource string) {
	if m == nil {
		return
	}
	m.QuotaDenialsTotal.WithLabelValues(resource).Inc()
}

// DeletionStep records one deletion step and the rows it removed
func (m *Metrics) DeletionStep(step, table string, rows int64, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.DeletionStepsTotal.WithLabelValues(step, outcome).Inc()
	if table != "" && rows > 0 {
		m.RowsDeletedTotal.WithLabelValues(table).Add(float64(rows))
	}
}

// DeletionRun records a finished deletion run
func (m *Metrics) DeletionRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DeletionRunsTotal.WithLabelValues(outcome).Inc()
	m.DeletionRunDuration.Observe(elapsed.Seconds())
}

// RateLimited records a rejected admin request
func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the ServeMux pattern that matched them.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

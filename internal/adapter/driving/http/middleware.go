package httphandler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MiddlewareOptions configures ApplyMiddleware.
type MiddlewareOptions struct {
	// AdminUser and AdminPass enable basic auth when both are non-empty.
	AdminUser string
	AdminPass string
	// Metrics records request counts and latencies when non-nil.
	Metrics *Metrics
}

// ApplyMiddleware wraps h with recovery, basic auth, metrics and request
// logging, in that order from the inside out.
func ApplyMiddleware(h http.Handler, logger *slog.Logger, opts MiddlewareOptions) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, h)
	if opts.AdminUser != "" && opts.AdminPass != "" {
		wrapped = basicAuthMiddleware(opts.AdminUser, opts.AdminPass, wrapped)
	}
	if opts.Metrics != nil {
		wrapped = opts.Metrics.middleware(wrapped)
	}
	return loggingMiddleware(logger, wrapped)
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authExempt lists paths that stay reachable without credentials.
var authExempt = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// basicAuthMiddleware requires HTTP basic credentials on every path except
// the health and metrics endpoints. Both fields are compared in constant time.
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	wantUser := []byte(user)
	wantPass := []byte(pass)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		gotUser, gotPass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Authentication required.", http.StatusUnauthorized)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(gotUser), wantUser) == 1
		passOK := subtle.ConstantTimeCompare([]byte(gotPass), wantPass) == 1
		if !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Invalid credentials.", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Metrics holds the Prometheus collectors for the HTTP server on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the request collectors plus the Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insightpanel",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "insightpanel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterMetricsRoute exposes m at GET /metrics.
func RegisterMetricsRoute(mux *http.ServeMux, m *Metrics) {
	mux.Handle("GET /metrics", m.Handler())
}

// middleware labels requests by the matched ServeMux pattern so ids in paths
// do not create new series.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bcr",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bcr",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bcr",
		Name:      "cache_hits_total",
		Help:      "Cache lookups answered without an upstream fetch.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bcr",
		Name:      "cache_misses_total",
		Help:      "Cache lookups that triggered an upstream fetch.",
	})

	ScrapeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bcr",
		Name:      "scrape_failures_total",
		Help:      "Upstream fetches that failed, by source and kind.",
	}, []string{"source", "kind"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per chi route pattern, so
// /rankings/MS and /rankings/WS share one series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

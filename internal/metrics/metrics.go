// Package metrics provides Prometheus instrumentation for the report relay.
//
// Metrics registered here:
//
//	csp_reports_received_total{parse}       counter: normalized reports by parse state
//	csp_cluster_lookups_total{result}       counter: cluster detail resolutions (hit, fetched, failed)
//	csp_reports_forwarded_total{result}     counter: analytics submissions (ok, failed)
//	csp_forward_duration_seconds            histogram: analytics submission latency
//	csp_http_requests_total{method,code}    counter: HTTP requests served
//	csp_http_request_duration_seconds       histogram: HTTP latency by method
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup results.
const (
	LookupHit     = "hit"
	LookupFetched = "fetched"
	LookupFailed  = "failed"
)

// Metrics groups the relay's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ReportsReceived  *prometheus.CounterVec
	ClusterLookups   *prometheus.CounterVec
	ReportsForwarded *prometheus.CounterVec
	ForwardDuration  prometheus.Histogram
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the relay's collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReportsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "csp_reports_received_total",
			Help: "CSP reports received, by parse state.",
		}, []string{"parse"}),
		ClusterLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "csp_cluster_lookups_total",
			Help: "Cluster detail resolutions, by result.",
		}, []string{"result"}),
		ReportsForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "csp_reports_forwarded_total",
			Help: "Analytics submissions, by result.",
		}, []string{"result"}),
		ForwardDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "csp_forward_duration_seconds",
			Help:    "Analytics submission latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "csp_http_requests_total",
			Help: "HTTP requests handled.",
		}, []string{"method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "csp_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveReport counts a normalized report.
func (m *Metrics) ObserveReport(parse string) {
	if m == nil {
		return
	}
	m.ReportsReceived.WithLabelValues(parse).Inc()
}

// ObserveLookup counts a cluster detail resolution.
func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.ClusterLookups.WithLabelValues(result).Inc()
}

// ObserveForward records the outcome and latency of an analytics submission.
func (m *Metrics) ObserveForward(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ReportsForwarded.WithLabelValues(result).Inc()
	m.ForwardDuration.Observe(d.Seconds())
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snoop := httpsnoop.CaptureMetrics(next, w, r)
		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(snoop.Code)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method).Observe(snoop.Duration.Seconds())
	})
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

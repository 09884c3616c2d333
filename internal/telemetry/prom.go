package telemetry

import "github.com/prometheus/client_golang/prometheus"

// PromMetrics is the operational Prometheus surface, adapted from the
// corpus's pkg/metrics (CounterVec/GaugeVec over a route label) and
// exposed publicly at /metrics via promhttp, separate from the
// authenticated, request-level /admin/metrics JSON view the Tracker
// backs.
type PromMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
	UpstreamErrors  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveBlocks    prometheus.Gauge
	AnomalyKeys     prometheus.Gauge
}

// NewPromMetrics registers every gauge/counter/histogram on reg and
// returns the bundle.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total proxied requests by route and status class.",
		}, []string{"route", "status"}),
		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Requests that failed to reach their upstream, by route.",
		}, []string{"route"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end proxied request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ActiveBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_mitigation_active_blocks",
			Help: "Clients currently blocked by adaptive mitigation.",
		}),
		AnomalyKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_anomaly_tracked_keys",
			Help: "Route/client keys currently tracked by the anomaly detector.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RateLimitedTotal, m.UpstreamErrors,
		m.RequestDuration, m.ActiveBlocks, m.AnomalyKeys,
	)
	return m
}

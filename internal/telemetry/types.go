// Package telemetry implements spec.md §4.5's per-route request
// tracking: an in-memory ring of recent request metrics plus
// aggregated per-route counters, grounded on original_source's
// request_tracking/middleware.py (the tracking singleton) and
// types/request_tracking.py (the field names below). It also wires the
// corpus's prometheus stack (pkg/metrics) alongside this tracker so the
// gateway exposes both the operational /metrics surface and the
// request-level /admin/metrics JSON view.
package telemetry

import "time"

// RequestMetric is one recorded proxied request.
type RequestMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	RoutePrefix  string    `json:"route_prefix"`
	StatusCode   int       `json:"status_code"`
	DurationMS   float64   `json:"duration_ms"`
	RateLimited  bool      `json:"rate_limited"`
	ClientID     string    `json:"client_id"`
}

// RouteMetrics aggregates RequestMetrics for one route prefix.
type RouteMetrics struct {
	RoutePrefix      string  `json:"route_prefix"`
	TotalRequests    int64   `json:"total_requests"`
	RateLimitedCount int64   `json:"rate_limited_count"`
	ErrorCount       int64   `json:"error_count"`
	AvgDurationMS    float64 `json:"avg_duration_ms"`
}

// Snapshot is the full /admin/metrics response shape.
type Snapshot struct {
	Routes []RouteMetrics  `json:"routes"`
	Recent []RequestMetric `json:"recent"`
}

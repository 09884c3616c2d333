// Package dispatcher implements the gateway's main proxied-request path:
// route lookup, the pre/post rule chain, upstream forwarding, and
// request tracking. Grounded on original_source's
// gateway/middleware.py GatewayMiddleware.process_request loop, carried
// into the teacher's chi-based router shape (internal/httpserver/router.go).
package dispatcher

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portcall/gateway/internal/errs"
	"github.com/portcall/gateway/internal/proxy"
	"github.com/portcall/gateway/internal/ratelimit"
	"github.com/portcall/gateway/internal/route"
	"github.com/portcall/gateway/internal/rules"
	"github.com/portcall/gateway/internal/telemetry"
)

// Dispatcher matches an inbound request against the route table, runs
// the rule chain, forwards upstream, and records metrics.
type Dispatcher struct {
	Table     *route.Table
	Chain     *rules.Chain
	Forwarder *proxy.Forwarder
	Tracker   *telemetry.Tracker
	Prom      *telemetry.PromMetrics
}

// ServeHTTP is the catch-all handler mounted for every path the admin
// sub-router doesn't claim.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	cfg, prefix, ok := d.Table.Lookup(r.URL.Path)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Route not found")
		return
	}

	rc := &rules.Context{
		Req:           r,
		Route:         cfg,
		Prefix:        prefix,
		RewrittenPath: r.URL.Path,
	}

	preResult, err := d.Chain.RunPre(r.Context(), rc)
	if err != nil {
		log.Error().Err(err).Str("route", prefix).Msg("dispatcher: pre-chain error")
		d.record(rc, start, http.StatusInternalServerError, false)
		var counterErr *errs.CounterStoreUnavailable
		if errors.As(err, &counterErr) {
			writeDetail(w, http.StatusInternalServerError, "Rate limiting error")
		} else {
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	if preResult.Reject {
		d.record(rc, start, preResult.RejectStatus, preResult.RejectStatus == http.StatusTooManyRequests)
		if d.Prom != nil && preResult.RejectStatus == http.StatusTooManyRequests {
			d.Prom.RateLimitedTotal.WithLabelValues(prefix).Inc()
		}
		body := preResult.RejectBody
		if body == "" {
			body = `{"detail":"Rejected"}`
		}
		status := preResult.RejectStatus
		if status == 0 {
			status = http.StatusForbidden
		}
		for k, v := range preResult.RejectHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
		return
	}

	resp, err := d.Forwarder.Forward(r.Context(), r, cfg.TargetURL, rc.RewrittenPath)
	if err != nil {
		var upstreamErr *errs.UpstreamTransportError
		if errors.As(err, &upstreamErr) {
			log.Error().Err(upstreamErr.Err).Str("route", prefix).Str("target", upstreamErr.TargetURL).Msg("dispatcher: upstream forward failed")
		} else {
			log.Error().Err(err).Str("route", prefix).Str("target", cfg.TargetURL).Msg("dispatcher: upstream forward failed")
		}
		d.record(rc, start, http.StatusInternalServerError, false)
		if d.Prom != nil {
			d.Prom.UpstreamErrors.WithLabelValues(prefix).Inc()
		}
		writeDetail(w, http.StatusInternalServerError, "Upstream request failed")
		return
	}

	rc.Resp = &rules.ProxyResponse{StatusCode: resp.StatusCode, Header: resp.Header}
	if err := d.Chain.RunPost(r.Context(), rc); err != nil {
		log.Error().Err(err).Str("route", prefix).Msg("dispatcher: post-chain error")
	}

	for k, vv := range rc.Resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rc.Resp.StatusCode)
	w.Write(resp.Body)

	d.record(rc, start, rc.Resp.StatusCode, false)
	if d.Prom != nil {
		d.Prom.RequestsTotal.WithLabelValues(prefix, strconv.Itoa(rc.Resp.StatusCode/100*100)).Inc()
		d.Prom.RequestDuration.WithLabelValues(prefix).Observe(time.Since(start).Seconds())
	}
}

// writeDetail writes the gateway's standard error envelope,
// {"detail": "<string>"}, matching every other error body emitted across
// the core and admin surfaces.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func (d *Dispatcher) record(rc *rules.Context, start time.Time, status int, rateLimited bool) {
	clientID := rc.ClientID
	if clientID == "" {
		clientID = ratelimit.ClientID(rc.Req)
	}
	d.Tracker.Record(telemetry.RequestMetric{
		Timestamp:   start,
		Method:      rc.Req.Method,
		Path:        rc.Req.URL.Path,
		RoutePrefix: rc.Prefix,
		StatusCode:  status,
		DurationMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		RateLimited: rateLimited,
		ClientID:    clientID,
	})
}

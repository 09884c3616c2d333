package rules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/portcall/gateway/internal/anomaly"
	"github.com/portcall/gateway/internal/ratelimit"
)

// RateLimitRule enforces a route's sliding-window request limit in the
// pre phase and stamps X-RateLimit-Remaining in the post phase.
// Grounded on original_source's rate_limiter.py RateLimitRule, which is
// likewise split across the middleware's before/after hooks, and its
// check_rate_limit helper, which sets Retry-After and X-RateLimit-Reset
// alongside X-RateLimit-Limit on a 429.
type RateLimitRule struct {
	Limiter  *ratelimit.Limiter
	Detector *anomaly.Detector // nil disables anomaly tracking
	// Window is only used to compute X-RateLimit-Reset; it should match
	// the Limiter's own window.
	Window time.Duration
}

func (r *RateLimitRule) Name() string { return "rate_limit" }
func (r *RateLimitRule) Phase() Phase { return Both }

func (r *RateLimitRule) Apply(ctx context.Context, rc *Context) (Result, error) {
	if rc.Resp != nil {
		return r.applyPost(ctx, rc)
	}
	return r.applyPre(ctx, rc)
}

func (r *RateLimitRule) applyPre(ctx context.Context, rc *Context) (Result, error) {
	if !rc.Route.RateLimited() {
		rc.RateLimit = 0
		rc.RateLimitRemaining = -1
		return allow(), nil
	}

	clientID := ratelimit.ClientID(rc.Req)
	rc.ClientID = clientID

	if r.Detector != nil {
		r.Detector.Observe(rc.Prefix, clientID)
	}

	decision, err := r.Limiter.Check(ctx, rc.Prefix, clientID, rc.Route.RateLimit)
	if err != nil {
		return Result{}, fmt.Errorf("rules: rate_limit check: %w", err)
	}

	rc.RateLimit = decision.Limit
	rc.RateLimitRemaining = decision.Remaining

	if !decision.Allowed {
		return Result{
			Reject:       true,
			RejectStatus: 429,
			RejectBody:   `{"detail":"Too many requests"}`,
			RejectHeaders: map[string]string{
				"Retry-After":       strconv.Itoa(r.windowSeconds()),
				"X-RateLimit-Limit": strconv.Itoa(decision.Limit),
				"X-RateLimit-Reset": strconv.Itoa(r.resetSeconds()),
			},
		}, nil
	}
	return allow(), nil
}

// applyPost re-queries the counter store for the current count rather
// than reusing the pre-phase decision, so a request racing in on the
// same key between the two phases is reflected in the header.
func (r *RateLimitRule) applyPost(ctx context.Context, rc *Context) (Result, error) {
	if rc.RateLimit > 0 {
		remaining, err := r.Limiter.Remaining(ctx, rc.Prefix, rc.ClientID, rc.RateLimit)
		if err != nil {
			remaining = rc.RateLimitRemaining
		}
		rc.Resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(rc.RateLimit))
		rc.Resp.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		rc.Resp.Header.Set("X-RateLimit-Reset", strconv.Itoa(r.resetSeconds()))
	}
	return allow(), nil
}

func (r *RateLimitRule) windowSeconds() int {
	if r.Window > 0 {
		return int(r.Window / time.Second)
	}
	return 60
}

// resetSeconds computes X-RateLimit-Reset as window - (now mod window),
// matching original_source's rate_limiter.py check_rate_limit, which
// sets it to str(60 - (current % 60)) rather than the constant window.
func (r *RateLimitRule) resetSeconds() int {
	w := r.windowSeconds()
	now := time.Now()
	if r.Limiter != nil {
		now = r.Limiter.Now()
	}
	return w - int(now.Unix())%w
}

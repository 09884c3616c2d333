// Package ratelimit implements the per-route sliding-window rate limit
// check described in spec.md §4.2, backed by a counterstore.Store. It
// also carries forward the teacher's adaptive-mitigation subsystem
// (internal/rl/mitigation.go in the corpus), re-keyed on route prefix and
// client identifier, as a supplemented feature layered on top of the
// core sliding-window decision.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portcall/gateway/internal/counterstore"
	"github.com/portcall/gateway/internal/errs"
)

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// FailedOpen is true when the decision was made without consulting the
	// counter store because it was unreachable (see Limiter.FailOpen).
	FailedOpen bool
}

// Limiter evaluates the sliding-window request count for a route+client
// pair against the route's configured limit.
type Limiter struct {
	store      counterstore.Store
	window     time.Duration
	mitigator  Mitigator
	// FailOpen decides what happens when the counter store errors: true
	// means traffic is allowed through (availability over strictness),
	// false means it's rejected (strictness over availability). The
	// corpus's limiter fails open; a gateway sitting in front of
	// authentication-sensitive routes may want the opposite, so it's
	// configurable rather than hardcoded.
	FailOpen bool
	now      func() time.Time
}

// New builds a Limiter. window is the sliding-window duration shared by
// every route (spec.md keeps the window global and varies only the
// per-route limit). mit may be nil, disabling adaptive mitigation.
func New(store counterstore.Store, window time.Duration, mit Mitigator) *Limiter {
	return &Limiter{
		store:     store,
		window:    window,
		mitigator: mit,
		FailOpen:  true,
		now:       time.Now,
	}
}

// Check records one request for (routePrefix, clientID) and reports
// whether it's within limit. A limit of 0 means the route is unlimited
// and Check always allows without touching the counter store.
func (l *Limiter) Check(ctx context.Context, routePrefix, clientID string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: 0, Remaining: -1}, nil
	}

	if l.mitigator != nil {
		if blocked, until := l.mitigator.IsBlocked(routePrefix, clientID); blocked {
			log.Debug().Str("route", routePrefix).Str("client", clientID).
				Time("until", until).Msg("ratelimit: request rejected by mitigation block")
			return Decision{Allowed: false, Limit: limit, Remaining: 0}, nil
		}
		if override, ok := l.mitigator.Override(routePrefix, clientID); ok {
			limit = override
		}
	}

	key := counterKey(routePrefix, clientID)
	count, err := l.store.RecordAndCount(ctx, key, l.now(), l.window)
	if err != nil {
		if l.mitigator != nil {
			l.mitigator.RecordOutcome(routePrefix, clientID, !l.FailOpen)
		}
		if l.FailOpen {
			log.Warn().Err(err).Str("route", routePrefix).Msg("ratelimit: counter store unavailable, failing open")
			return Decision{Allowed: true, Limit: limit, Remaining: limit, FailedOpen: true}, nil
		}
		return Decision{}, &errs.CounterStoreUnavailable{Err: err}
	}

	allowed := count <= int64(limit)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if l.mitigator != nil {
		l.mitigator.RecordOutcome(routePrefix, clientID, !allowed)
	}

	return Decision{Allowed: allowed, Limit: limit, Remaining: remaining}, nil
}

// Remaining reports X-RateLimit-Remaining without perturbing the window,
// for use in the post-phase after a request has already been let through
// by Check.
func (l *Limiter) Remaining(ctx context.Context, routePrefix, clientID string, limit int) (int, error) {
	if limit <= 0 {
		return -1, nil
	}
	key := counterKey(routePrefix, clientID)
	count, err := l.store.Count(ctx, key, l.now(), l.window)
	if err != nil {
		if l.FailOpen {
			return limit, nil
		}
		return 0, fmt.Errorf("ratelimit: remaining %s: %w", key, err)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func counterKey(routePrefix, clientID string) string {
	return "rate_limit:" + routePrefix + ":" + clientID
}

// Now exposes the Limiter's clock so callers computing derived values
// (like X-RateLimit-Reset) stay consistent with the clock Check used.
func (l *Limiter) Now() time.Time { return l.now() }

// ErrNoMitigator is returned by callers that require adaptive mitigation
// to be configured but it wasn't.
var ErrNoMitigator = errors.New("ratelimit: no mitigator configured")

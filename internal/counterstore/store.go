// Package counterstore implements the shared counter store spec.md §4.2
// describes: a sliding-window request counter keyed by (route, client),
// evicted on every read, backed by Redis sorted sets so multiple gateway
// instances share one view of a client's recent request timestamps.
package counterstore

import (
	"context"
	"time"
)

// Store records a request at the given instant and reports how many
// requests from the same key fall within the trailing window ending at
// that instant. Implementations must evict entries older than the
// window before counting, matching the original sliding-window
// algorithm: remove, insert, count, refresh expiry, in that order.
type Store interface {
	// RecordAndCount adds one event at now to key's window, evicts events
	// older than now-window, and returns the count remaining in-window
	// (including the just-added event).
	RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// Count reports the in-window count without recording a new event.
	// Used by the post-phase to compute X-RateLimit-Remaining without
	// perturbing the window.
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// Clear deletes every key matching pattern (e.g. "rate_limit:*" for a
	// full flush, or "rate_limit:{prefix}:*" to invalidate one route),
	// per the admin route-mutation and flush contract.
	Clear(ctx context.Context, pattern string) error

	Close() error
}

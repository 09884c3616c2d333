// Package anomaly adapts the corpus's traffic anomaly detector
// (internal/anom/detector.go) to the gateway's own vocabulary: it tracks
// a per-(route, client) request-rate baseline via an exponentially
// weighted moving average over fixed-width buckets, and flags bursts
// that exceed the baseline by a configurable factor. It is a
// supplemented feature (spec.md's distillation dropped it, but nothing
// in its Non-goals excludes it). The rate-limit rule calls Observe for
// every rate-limited request; the verdict Observe returns is not passed
// to ratelimit.Mitigator and does not affect the rate-limit decision.
package anomaly

import (
	"sync"
	"time"
)

// Detector tracks request bursts per (route, client) key.
type Detector struct {
	mu      sync.Mutex
	buckets map[string]*bucketState

	// BucketWidth is the duration of one counting bucket.
	BucketWidth time.Duration
	// EWMAAlpha weights the current bucket against the running average;
	// closer to 1 reacts faster to change, closer to 0 smooths more.
	EWMAAlpha float64
	// BurstFactor flags a bucket whose count exceeds baseline*BurstFactor.
	BurstFactor float64
	// MinBaseline is a floor under which small baselines don't trigger
	// every innocuous request (avoids flagging a cold key's first burst).
	MinBaseline float64

	now func() time.Time
}

type bucketState struct {
	windowStart time.Time
	count       int
	baseline    float64
}

// New builds a Detector with the corpus's defaults: one-second buckets,
// alpha 0.3, burst factor 5x baseline, minimum baseline of 2 req/bucket.
func New() *Detector {
	return &Detector{
		buckets:     make(map[string]*bucketState),
		BucketWidth: time.Second,
		EWMAAlpha:   0.3,
		BurstFactor: 5,
		MinBaseline: 2,
		now:         time.Now,
	}
}

func key(routePrefix, clientID string) string {
	return routePrefix + "|" + clientID
}

// Observe records one request for (routePrefix, clientID) and reports
// whether the bucket it falls into looks anomalous relative to the
// key's learned baseline.
func (d *Detector) Observe(routePrefix, clientID string) (anomalous bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key(routePrefix, clientID)
	now := d.now()

	s, ok := d.buckets[k]
	if !ok {
		s = &bucketState{windowStart: now, count: 0, baseline: d.MinBaseline}
		d.buckets[k] = s
	}

	if now.Sub(s.windowStart) >= d.BucketWidth {
		d.rollBucket(s, now)
	}

	s.count++

	baseline := s.baseline
	if baseline < d.MinBaseline {
		baseline = d.MinBaseline
	}
	return float64(s.count) > baseline*d.BurstFactor
}

// rollBucket folds the finished bucket's count into the EWMA baseline
// and starts a fresh bucket. Caller holds d.mu.
func (d *Detector) rollBucket(s *bucketState, now time.Time) {
	s.baseline = d.EWMAAlpha*float64(s.count) + (1-d.EWMAAlpha)*s.baseline
	s.count = 0
	s.windowStart = now
}

// Janitor periodically drops keys idle past maxIdle, bounding memory for
// a long-running gateway. Blocks until stop is closed; run it in its own
// goroutine, mirroring the corpus's detector janitor loop.
func (d *Detector) Janitor(stop <-chan struct{}, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cutoff := d.now().Add(-maxIdle)
			d.mu.Lock()
			for k, s := range d.buckets {
				if s.windowStart.Before(cutoff) {
					delete(d.buckets, k)
				}
			}
			d.mu.Unlock()
		}
	}
}

// Len reports how many (route, client) keys are currently tracked, for
// the operational gauge mirroring the corpus's RefreshActiveGauges.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buckets)
}

package telemetry

import "sync"

// ringSize bounds the recent-request ring, matching the original
// tracker's fixed-size in-memory deque.
const ringSize = 100

// Tracker is the in-memory request/route metrics store. One Tracker is
// shared across the whole gateway; every proxied request records into
// it in the dispatcher's post phase.
type Tracker struct {
	mu      sync.Mutex
	ring    []RequestMetric
	ringPos int

	byRoute map[string]*routeAccum
}

type routeAccum struct {
	total       int64
	rateLimited int64
	errors      int64
	durationSum float64
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ring:    make([]RequestMetric, 0, ringSize),
		byRoute: make(map[string]*routeAccum),
	}
}

// Record appends m to the recent ring (evicting the oldest entry once
// full, FIFO) and folds it into its route's running aggregate.
func (t *Tracker) Record(m RequestMetric) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ring) < ringSize {
		t.ring = append(t.ring, m)
	} else {
		t.ring[t.ringPos] = m
		t.ringPos = (t.ringPos + 1) % ringSize
	}

	a, ok := t.byRoute[m.RoutePrefix]
	if !ok {
		a = &routeAccum{}
		t.byRoute[m.RoutePrefix] = a
	}
	a.total++
	if m.RateLimited {
		a.rateLimited++
	}
	if m.StatusCode >= 400 && !m.RateLimited {
		a.errors++
	}
	a.durationSum += m.DurationMS
}

// Snapshot returns the current aggregates and recent-request ring,
// oldest first.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := make([]RequestMetric, 0, len(t.ring))
	if len(t.ring) < ringSize {
		recent = append(recent, t.ring...)
	} else {
		recent = append(recent, t.ring[t.ringPos:]...)
		recent = append(recent, t.ring[:t.ringPos]...)
	}

	routes := make([]RouteMetrics, 0, len(t.byRoute))
	for prefix, a := range t.byRoute {
		avg := 0.0
		if a.total > 0 {
			avg = a.durationSum / float64(a.total)
		}
		routes = append(routes, RouteMetrics{
			RoutePrefix:      prefix,
			TotalRequests:    a.total,
			RateLimitedCount: a.rateLimited,
			ErrorCount:       a.errors,
			AvgDurationMS:    avg,
		})
	}

	return Snapshot{Routes: routes, Recent: recent}
}

// Clear resets all tracked state, for the admin "clear metrics" endpoint.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ring = t.ring[:0]
	t.ringPos = 0
	t.byRoute = make(map[string]*routeAccum)
}

package ratelimit

import (
	"sync"
	"time"
)

// Mitigator adapts rate-limit enforcement in response to sustained abuse
// from a single client on a single route: after enough consecutive
// rejections it tightens the effective limit (Override), and after
// continued abuse blocks the client outright for a cooldown period.
// Adapted from the corpus's internal/rl/mitigation.go, re-keyed on
// (routePrefix, clientID) instead of an ad hoc route string.
type Mitigator interface {
	// RecordOutcome reports whether the most recent request on (route,
	// client) was rejected, updating the abuse streak.
	RecordOutcome(routePrefix, clientID string, rejected bool)

	// Override returns a tightened limit to apply instead of the route's
	// configured one, if this client is partway into an abuse streak.
	Override(routePrefix, clientID string) (limit int, ok bool)

	// IsBlocked reports whether this client is currently blocked outright
	// on this route, and until when.
	IsBlocked(routePrefix, clientID string) (blocked bool, until time.Time)
}

// StreakMitigator is the in-memory Mitigator. A client accumulates a
// rejection streak; reaching OverrideThreshold overrides its effective
// limit to 1, and reaching BlockThreshold blocks it for BlockFor.
// Any allowed request resets the streak to zero.
type StreakMitigator struct {
	mu    sync.Mutex
	state map[string]*clientState

	OverrideThreshold int
	BlockThreshold    int
	BlockFor          time.Duration

	now func() time.Time
}

type clientState struct {
	streak      int
	blockedTill time.Time
}

// NewStreakMitigator builds a StreakMitigator with the corpus's defaults:
// override after 3 consecutive rejections, block after 10, for 5 minutes.
func NewStreakMitigator() *StreakMitigator {
	return &StreakMitigator{
		state:             make(map[string]*clientState),
		OverrideThreshold: 3,
		BlockThreshold:    10,
		BlockFor:          5 * time.Minute,
		now:               time.Now,
	}
}

func (m *StreakMitigator) key(routePrefix, clientID string) string {
	return routePrefix + "|" + clientID
}

func (m *StreakMitigator) RecordOutcome(routePrefix, clientID string, rejected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.key(routePrefix, clientID)
	s, ok := m.state[k]
	if !ok {
		s = &clientState{}
		m.state[k] = s
	}

	if !rejected {
		s.streak = 0
		return
	}

	s.streak++
	if s.streak >= m.BlockThreshold {
		s.blockedTill = m.now().Add(m.BlockFor)
	}
}

func (m *StreakMitigator) Override(routePrefix, clientID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.state[m.key(routePrefix, clientID)]
	if !ok || s.streak < m.OverrideThreshold {
		return 0, false
	}
	return 1, true
}

func (m *StreakMitigator) IsBlocked(routePrefix, clientID string) (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.state[m.key(routePrefix, clientID)]
	if !ok || s.blockedTill.IsZero() {
		return false, time.Time{}
	}
	if m.now().After(s.blockedTill) {
		return false, time.Time{}
	}
	return true, s.blockedTill
}

// ActiveBlocks reports how many clients are currently blocked, for the
// anomaly/metrics gauges that mirror the corpus's RefreshActiveGauges.
func (m *StreakMitigator) ActiveBlocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, s := range m.state {
		if !s.blockedTill.IsZero() && now.Before(s.blockedTill) {
			n++
		}
	}
	return n
}

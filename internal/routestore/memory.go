package routestore

import (
	"context"
	"sync"

	"github.com/portcall/gateway/internal/route"
)

// Memory is an in-process Store, used when no Postgres DSN is configured
// (local dev, tests) and for the config-loaded seed set at boot. It
// implements the same CRUD-by-prefix-plus-soft-delete contract as the
// Postgres-backed Store so the rest of the gateway is storage-agnostic.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]route.Config
}

// NewMemory seeds a Memory store from an initial config set (e.g. loaded
// from the policy file at boot). IDs are assigned in order.
func NewMemory(seed []route.Config) *Memory {
	m := &Memory{rows: make(map[int64]route.Config)}
	for _, c := range seed {
		m.nextID++
		c.ID = m.nextID
		c.Active = true
		m.rows[c.ID] = c
	}
	return m
}

func (m *Memory) LoadActive(_ context.Context) ([]route.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]route.Config, 0, len(m.rows))
	for _, c := range m.rows {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ReplaceActive(_ context.Context, configs []route.Config) ([]route.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if seen[c.Prefix] {
			return nil, ErrDuplicatePrefix
		}
		seen[c.Prefix] = true
	}

	// Deactivate every currently-active row whose prefix isn't in the new set.
	for id, existing := range m.rows {
		if existing.Active && !seen[existing.Prefix] {
			existing.Active = false
			m.rows[id] = existing
		}
	}

	// Upsert by prefix.
	byPrefix := make(map[string]int64, len(m.rows))
	for id, existing := range m.rows {
		byPrefix[existing.Prefix] = id
	}

	out := make([]route.Config, 0, len(configs))
	for _, c := range configs {
		c.Active = true
		if id, exists := byPrefix[c.Prefix]; exists {
			c.ID = id
		} else {
			m.nextID++
			c.ID = m.nextID
		}
		m.rows[c.ID] = c
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) SoftDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.Active = false
	m.rows[id] = row
	return nil
}

func (m *Memory) Close() {}

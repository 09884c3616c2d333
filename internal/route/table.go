package route

import (
	"sort"
	"sync/atomic"
)

// snapshot is the immutable value a Table publishes on every Reload. A
// reader that loaded a snapshot always sees it in full, never a partial
// update, because the pointer swap is the only mutation.
type snapshot struct {
	byPrefix map[string]Config
	// prefixes is byPrefix's keys, sorted longest-first, so Lookup can walk
	// it in order and return on the first (and therefore longest) match.
	prefixes []string
}

// Table is the gateway's routing table: a single-writer, many-reader
// store of active RouteConfigs, published via copy-on-write so lookups
// never block on a reload. Mirrors the teacher's chi-route sort-by-length
// trick (internal/httpserver/router.go), generalized from a fixed set of
// chi sub-routes to a fully dynamic snapshot.
type Table struct {
	cur atomic.Pointer[snapshot]
}

// New builds a Table from an initial set of configs (inactive ones are
// dropped immediately, as they're invisible to lookups).
func New(configs []Config) *Table {
	t := &Table{}
	t.Reload(configs)
	return t
}

// Reload atomically replaces the active route set. Readers in flight keep
// using the snapshot they already loaded; new lookups see the new one.
func (t *Table) Reload(configs []Config) {
	byPrefix := make(map[string]Config, len(configs))
	prefixes := make([]string, 0, len(configs))
	for _, c := range configs {
		if !c.Active {
			continue
		}
		byPrefix[c.Prefix] = c
		prefixes = append(prefixes, c.Prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	t.cur.Store(&snapshot{byPrefix: byPrefix, prefixes: prefixes})
}

// Lookup returns the active RouteConfig whose prefix is the longest
// prefix of path, and the matched prefix itself. ok is false if no active
// config's prefix matches.
func (t *Table) Lookup(path string) (cfg Config, matchedPrefix string, ok bool) {
	snap := t.cur.Load()
	if snap == nil {
		return Config{}, "", false
	}
	for _, prefix := range snap.prefixes {
		if hasPrefix(path, prefix) {
			return snap.byPrefix[prefix], prefix, true
		}
	}
	return Config{}, "", false
}

// Snapshot returns every currently active RouteConfig, keyed by prefix.
// Used by admin GET /admin/routes.
func (t *Table) Snapshot() map[string]Config {
	snap := t.cur.Load()
	if snap == nil {
		return map[string]Config{}
	}
	out := make(map[string]Config, len(snap.byPrefix))
	for k, v := range snap.byPrefix {
		out[k] = v
	}
	return out
}

func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

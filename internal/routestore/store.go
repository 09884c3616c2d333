// Package routestore implements the persistence collaborator spec.md §6
// describes: "any key/value store supporting CRUD by prefix plus a
// soft-delete flag". It is explicitly out of the hard core (§1) — the
// gateway only needs a loader that produces the route set and an
// invalidator called on admin mutation — so this package stays a thin
// repository, not a domain service.
package routestore

import (
	"context"
	"errors"

	"github.com/portcall/gateway/internal/route"
)

// ErrDuplicatePrefix is returned by ReplaceActive when the submitted set
// lists one prefix twice, violating the route table's uniqueness invariant.
var ErrDuplicatePrefix = errors.New("routestore: prefix already active")

// ErrNotFound is returned when SoftDelete addresses a route id that
// doesn't exist.
var ErrNotFound = errors.New("routestore: not found")

// Store is the RouteConfig repository. LoadActive is the "loader that
// produces the route set"; ReplaceActive/SoftDelete are the admin mutation
// path that must be followed by an invalidation of the in-memory route.Table.
type Store interface {
	// LoadActive returns every route with Active == true.
	LoadActive(ctx context.Context) ([]route.Config, error)

	// ReplaceActive atomically replaces the whole active route set:
	// existing active rows whose prefix isn't in configs are soft-deleted,
	// and configs are upserted by prefix. Returns the resulting active set.
	ReplaceActive(ctx context.Context, configs []route.Config) ([]route.Config, error)

	// SoftDelete marks one route inactive by id.
	SoftDelete(ctx context.Context, id int64) error

	// Close releases any held connections.
	Close()
}

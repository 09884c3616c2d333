package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/portcall/gateway/internal/counterstore"
	"github.com/portcall/gateway/internal/route"
	"github.com/portcall/gateway/internal/routestore"
	"github.com/portcall/gateway/internal/telemetry"
)

// rateLimitKeyPattern matches every counter-store key the rate limiter
// writes (internal/ratelimit's "rate_limit:{prefix}:{client_id}" shape),
// for the flush-on-mutation and explicit-flush endpoints.
const rateLimitKeyPattern = "rate_limit:*"

// Handlers bundles everything the admin surface needs to serve
// spec.md §4.6's endpoints: login/session management, route CRUD, and
// the request-tracking view.
type Handlers struct {
	Auth     *Authenticator
	Table    *route.Table
	Store    routestore.Store
	Counters counterstore.Store
	Tracker  *telemetry.Tracker

	Profile string
	Version string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies basic credentials in the request body and, on success,
// issues a session cookie. Unlike Verify's Basic-auth fallback, this is
// the JSON login flow an admin UI form posts to.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed login request")
		return
	}

	if !constantTimeEqual(req.Username, h.Auth.creds.Username) || !constantTimeEqual(req.Password, h.Auth.creds.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.Auth.IssueSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"username": req.Username})
}

// Logout clears the caller's session cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me reports the authenticated admin's identity.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.Auth.Verify(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": user})
}

// HealthCheck reports liveness and build identity. It's intentionally
// unauthenticated, matching the original gateway's health probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"profile": h.Profile,
		"version": h.Version,
	})
}

// ListRoutes returns every active route, keyed by prefix.
func (h *Handlers) ListRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]map[string]route.Config{"routes": h.Table.Snapshot()})
}

// ReplaceRoutes accepts the full desired active route set, persists it,
// republishes the in-memory route table, and invalidates every
// rate-limit key so the new limits take effect immediately rather than
// inheriting whatever window state the old route left behind.
func (h *Handlers) ReplaceRoutes(w http.ResponseWriter, r *http.Request) {
	var configs []route.Config
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed route set")
		return
	}

	active, err := h.Store.ReplaceActive(r.Context(), configs)
	if err != nil {
		if errors.Is(err, routestore.ErrDuplicatePrefix) {
			writeError(w, http.StatusConflict, "Duplicate route prefix")
			return
		}
		log.Error().Err(err).Msg("admin: replace routes failed")
		writeError(w, http.StatusInternalServerError, "Failed to persist routes")
		return
	}

	h.Table.Reload(active)
	h.clearRateLimitKeys(r.Context())
	writeJSON(w, http.StatusOK, active)
}

// DeleteRoute soft-deletes one route by id, republishes the table, and
// invalidates rate-limit keys like ReplaceRoutes.
func (h *Handlers) DeleteRoute(w http.ResponseWriter, r *http.Request, idParam string) {
	id, err := strconv.ParseInt(strings.TrimSpace(idParam), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid route id")
		return
	}

	if err := h.Store.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, routestore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Route not found")
			return
		}
		log.Error().Err(err).Int64("id", id).Msg("admin: delete route failed")
		writeError(w, http.StatusInternalServerError, "Failed to delete route")
		return
	}

	if err := h.refreshTable(r.Context()); err != nil {
		log.Error().Err(err).Msg("admin: refresh table after delete failed")
	}
	h.clearRateLimitKeys(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) clearRateLimitKeys(ctx context.Context) {
	if h.Counters == nil {
		return
	}
	if err := h.Counters.Clear(ctx, rateLimitKeyPattern); err != nil {
		log.Error().Err(err).Msg("admin: clear rate limit keys failed")
	}
}

// ClearCounters flushes every rate-limit key from the counter store.
func (h *Handlers) ClearCounters(w http.ResponseWriter, r *http.Request) {
	if h.Counters == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.Counters.Clear(r.Context(), rateLimitKeyPattern); err != nil {
		log.Error().Err(err).Msg("admin: clear counters failed")
		writeError(w, http.StatusInternalServerError, "Failed to clear counter store")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) refreshTable(ctx context.Context) error {
	active, err := h.Store.LoadActive(ctx)
	if err != nil {
		return err
	}
	h.Table.Reload(active)
	return nil
}

// Metrics returns the tracked request/route metrics snapshot.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Tracker.Snapshot())
}

// ClearMetrics resets all tracked request/route metrics.
func (h *Handlers) ClearMetrics(w http.ResponseWriter, r *http.Request) {
	h.Tracker.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/portcall/gateway/internal/route"
	"github.com/portcall/gateway/internal/routestore"
	"github.com/portcall/gateway/internal/telemetry"
)

type fakeCounterStore struct {
	cleared []string
}

func (f *fakeCounterStore) RecordAndCount(_ context.Context, _ string, _ time.Time, _ time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeCounterStore) Count(_ context.Context, _ string, _ time.Time, _ time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeCounterStore) Clear(_ context.Context, pattern string) error {
	f.cleared = append(f.cleared, pattern)
	return nil
}
func (f *fakeCounterStore) Close() error { return nil }

func newTestHandlers() (*Handlers, *fakeCounterStore) {
	tbl := route.New([]route.Config{{Prefix: "/api", TargetURL: "http://backend", Active: true}})
	store := routestore.NewMemory([]route.Config{{Prefix: "/api", TargetURL: "http://backend", RateLimit: 10}})
	counters := &fakeCounterStore{}
	auth := NewAuthenticator(Credentials{Username: "ops", Password: "hunter2"})
	return &Handlers{
		Auth:     auth,
		Table:    tbl,
		Store:    store,
		Counters: counters,
		Tracker:  telemetry.NewTracker(),
		Profile:  "test",
		Version:  "test",
	}, counters
}

func TestMe_ReportsNameField(t *testing.T) {
	h, _ := newTestHandlers()
	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	r.SetBasicAuth("ops", "hunter2")
	w := httptest.NewRecorder()

	h.Me(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["name"] != "ops" {
		t.Fatalf("want name=ops, got %v", body)
	}
}

func TestMe_UnauthorizedUsesDetailEnvelope(t *testing.T) {
	h, _ := newTestHandlers()
	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"detail"`) {
		t.Fatalf("want a detail envelope, got %s", w.Body.String())
	}
}

func TestListRoutes_WrapsSnapshotByPrefix(t *testing.T) {
	h, _ := newTestHandlers()
	r := httptest.NewRequest(http.MethodGet, "/admin/routes", nil)
	w := httptest.NewRecorder()

	h.ListRoutes(w, r)

	var body struct {
		Routes map[string]route.Config `json:"routes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg, ok := body.Routes["/api"]
	if !ok {
		t.Fatalf("want /api in routes, got %v", body.Routes)
	}
	if cfg.TargetURL != "http://backend" {
		t.Fatalf("want target http://backend, got %s", cfg.TargetURL)
	}
}

func TestReplaceRoutes_ClearsRateLimitKeys(t *testing.T) {
	h, counters := newTestHandlers()
	body := `[{"Prefix":"/api","TargetURL":"http://backend","Active":true}]`
	r := httptest.NewRequest(http.MethodPut, "/admin/routes", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.ReplaceRoutes(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(counters.cleared) != 1 || counters.cleared[0] != rateLimitKeyPattern {
		t.Fatalf("want one clear of %q, got %v", rateLimitKeyPattern, counters.cleared)
	}
}

func TestClearCounters_FlushesPattern(t *testing.T) {
	h, counters := newTestHandlers()
	r := httptest.NewRequest(http.MethodPost, "/admin/clear", nil)
	w := httptest.NewRecorder()

	h.ClearCounters(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", w.Code)
	}
	if len(counters.cleared) != 1 || counters.cleared[0] != rateLimitKeyPattern {
		t.Fatalf("want one clear of %q, got %v", rateLimitKeyPattern, counters.cleared)
	}
}

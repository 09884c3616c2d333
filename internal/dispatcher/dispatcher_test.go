package dispatcher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/portcall/gateway/internal/dispatcher"
	"github.com/portcall/gateway/internal/proxy"
	"github.com/portcall/gateway/internal/ratelimit"
	"github.com/portcall/gateway/internal/route"
	"github.com/portcall/gateway/internal/rules"
	"github.com/portcall/gateway/internal/telemetry"
)

type memCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{counts: make(map[string]int64)}
}

func (s *memCounterStore) RecordAndCount(_ context.Context, key string, _ time.Time, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memCounterStore) Count(_ context.Context, key string, _ time.Time, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *memCounterStore) Clear(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int64)
	return nil
}

func (s *memCounterStore) Close() error { return nil }

func buildDispatcher(t *testing.T, upstream *httptest.Server, limit int) *dispatcher.Dispatcher {
	t.Helper()
	tbl := route.New([]route.Config{
		{Prefix: "/api", TargetURL: upstream.URL, RateLimit: limit, Active: true},
	})

	limiter := ratelimit.New(newMemCounterStore(), time.Minute, nil)
	chain := rules.NewChain(
		rules.RewriteRule{},
		&rules.RateLimitRule{Limiter: limiter},
	)

	return &dispatcher.Dispatcher{
		Table:     tbl,
		Chain:     chain,
		Forwarder: proxy.New(5 * time.Second),
		Tracker:   telemetry.NewTracker(),
	}
}

func TestServeHTTP_ForwardsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hi"))
	}))
	defer upstream.Close()

	d := buildDispatcher(t, upstream, 0)
	r := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if w.Body.String() != "hi" {
		t.Fatalf("want body hi, got %s", w.Body.String())
	}
}

func TestServeHTTP_NoRouteReturns404(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	d := buildDispatcher(t, upstream, 0)
	r := httptest.NewRequest(http.MethodGet, "/unmatched", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}

func TestServeHTTP_RateLimitRejectsOverLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	d := buildDispatcher(t, upstream, 1)

	r1 := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	w1 := httptest.NewRecorder()
	d.ServeHTTP(w1, r1)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w1.Code)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	w2 := httptest.NewRecorder()
	d.ServeHTTP(w2, r2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate limited, got %d", w2.Code)
	}
}

func TestServeHTTP_UpstreamTransportErrorReturns500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close() // guarantees connection refused

	d := buildDispatcher(t, upstream, 0)
	r := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["detail"]; !ok {
		t.Fatalf("want a detail field, got %v", body)
	}
}

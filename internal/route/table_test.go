package route_test

import (
	"testing"

	"github.com/portcall/gateway/internal/route"
)

func TestLookup_LongestPrefixWins(t *testing.T) {
	tbl := route.New([]route.Config{
		{Prefix: "/api", TargetURL: "http://a", Active: true},
		{Prefix: "/api/users", TargetURL: "http://b", Active: true},
	})

	cfg, prefix, ok := tbl.Lookup("/api/users/42")
	if !ok {
		t.Fatal("expected a match")
	}
	if prefix != "/api/users" {
		t.Fatalf("want longest prefix /api/users, got %s", prefix)
	}
	if cfg.TargetURL != "http://b" {
		t.Fatalf("want target http://b, got %s", cfg.TargetURL)
	}
}

func TestLookup_InactiveInvisible(t *testing.T) {
	tbl := route.New([]route.Config{
		{Prefix: "/api", TargetURL: "http://a", Active: false},
	})
	if _, _, ok := tbl.Lookup("/api/x"); ok {
		t.Fatal("inactive route must not match")
	}
}

func TestLookup_NoMatch(t *testing.T) {
	tbl := route.New([]route.Config{
		{Prefix: "/api", TargetURL: "http://a", Active: true},
	})
	if _, _, ok := tbl.Lookup("/other"); ok {
		t.Fatal("expected no match")
	}
}

func TestReload_Atomic(t *testing.T) {
	tbl := route.New([]route.Config{
		{Prefix: "/api", TargetURL: "http://old", Active: true},
	})

	cfg, _, _ := tbl.Lookup("/api/x")
	if cfg.TargetURL != "http://old" {
		t.Fatalf("want http://old, got %s", cfg.TargetURL)
	}

	tbl.Reload([]route.Config{
		{Prefix: "/api", TargetURL: "http://new", Active: true},
	})

	cfg, _, _ = tbl.Lookup("/api/x")
	if cfg.TargetURL != "http://new" {
		t.Fatalf("want http://new after reload, got %s", cfg.TargetURL)
	}
}

func TestLookup_IsPureFunctionOfSnapshot(t *testing.T) {
	tbl := route.New([]route.Config{
		{Prefix: "/api/limited", TargetURL: "http://up", RateLimit: 2, Active: true},
		{Prefix: "/api/unlimited", TargetURL: "http://up", RateLimit: 0, Active: true},
	})

	for i := 0; i < 5; i++ {
		cfg, prefix, ok := tbl.Lookup("/api/limited/x")
		if !ok || prefix != "/api/limited" || cfg.RateLimit != 2 {
			t.Fatalf("lookup %d: inconsistent result", i)
		}
	}
}

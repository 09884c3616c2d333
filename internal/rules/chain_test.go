package rules_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portcall/gateway/internal/route"
	"github.com/portcall/gateway/internal/rules"
)

type recordingRule struct {
	name    string
	phase   rules.Phase
	calls   *[]string
	reject  bool
}

func (r recordingRule) Name() string    { return r.name }
func (r recordingRule) Phase() rules.Phase { return r.phase }
func (r recordingRule) Apply(_ context.Context, rc *rules.Context) (rules.Result, error) {
	*r.calls = append(*r.calls, r.name)
	if r.reject {
		return rules.Result{Reject: true, RejectStatus: http.StatusForbidden}, nil
	}
	return rules.Result{}, nil
}

func TestChain_PreStopsOnReject(t *testing.T) {
	var calls []string
	chain := rules.NewChain(
		recordingRule{name: "a", phase: rules.Pre, calls: &calls, reject: true},
		recordingRule{name: "b", phase: rules.Pre, calls: &calls},
	)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rc := &rules.Context{Req: req, Route: route.Config{Prefix: "/x"}, RewrittenPath: "/x"}

	res, err := chain.RunPre(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Reject {
		t.Fatal("expected rejection")
	}
	if len(calls) != 1 || calls[0] != "a" {
		t.Fatalf("expected chain to stop after first rejecting rule, got %v", calls)
	}
}

func TestChain_RunsOnlyMatchingPhase(t *testing.T) {
	var calls []string
	chain := rules.NewChain(
		recordingRule{name: "pre-only", phase: rules.Pre, calls: &calls},
		recordingRule{name: "post-only", phase: rules.Post, calls: &calls},
		recordingRule{name: "both", phase: rules.Both, calls: &calls},
	)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rc := &rules.Context{Req: req, Route: route.Config{Prefix: "/x"}, RewrittenPath: "/x"}

	if _, err := chain.RunPre(context.Background(), rc); err != nil {
		t.Fatalf("pre: %v", err)
	}
	rc.Resp = &rules.ProxyResponse{StatusCode: 200, Header: http.Header{}}
	if err := chain.RunPost(context.Background(), rc); err != nil {
		t.Fatalf("post: %v", err)
	}

	want := []string{"pre-only", "both", "post-only", "both"}
	if len(calls) != len(want) {
		t.Fatalf("want calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("want calls %v, got %v", want, calls)
		}
	}
}

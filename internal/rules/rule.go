// Package rules implements the pluggable pre/post processing chain
// spec.md §4.4 describes, grounded on original_source's rules/asbtract.py
// (the Rule/RulePhase base) and rules/middleware.py (the chain-walking
// loop that applies each rule in its declared phase).
package rules

import (
	"context"
	"net/http"

	"github.com/portcall/gateway/internal/route"
)

// Phase selects when a Rule runs relative to upstream forwarding.
type Phase int

const (
	// Pre rules run before the request is forwarded upstream, and may
	// short-circuit the chain (e.g. a rate limit rejection).
	Pre Phase = iota
	// Post rules run after the upstream response is available.
	Post
	// Both rules run in both phases.
	Both
)

// Context carries everything a Rule needs across the pre/post split of
// a single proxied request.
type Context struct {
	Req    *http.Request
	Route  route.Config
	Prefix string

	// RewrittenPath is the path to forward upstream; pre-phase rewrite
	// rules update it in place.
	RewrittenPath string

	// ClientID is the identifier the rate limit rule keyed its decision on,
	// stashed here so post-phase rules (and the dispatcher) don't need to
	// recompute it.
	ClientID string
	// RateLimitRemaining is set by the rate limit rule's pre-phase check.
	// Its post-phase half re-queries the counter store for
	// X-RateLimit-Remaining and falls back to this value if that query fails.
	RateLimitRemaining int
	// RateLimit is the limit that applied to this request, or 0 if unlimited.
	RateLimit int

	// Resp is nil during the pre phase and populated before post rules run.
	Resp *ProxyResponse
}

// ProxyResponse is the subset of the upstream reply rules may inspect or
// adjust before it's written back to the client.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
}

// Result is what a Rule returns after running.
type Result struct {
	// Reject, if true, stops the chain and the forwarding it would have
	// done, and wraps the client in a response with RejectStatus.
	Reject        bool
	RejectStatus  int
	RejectBody    string
	RejectHeaders map[string]string
}

func allow() Result { return Result{} }

// Rule is one link in the processing chain.
type Rule interface {
	Name() string
	Phase() Phase
	Apply(ctx context.Context, rc *Context) (Result, error)
}

// Chain runs an ordered list of Rules, split by phase.
type Chain struct {
	rules []Rule
}

// NewChain builds a Chain from rules in application order.
func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// RunPre applies every Pre and Both rule in order, stopping at the first
// rejection.
func (c *Chain) RunPre(ctx context.Context, rc *Context) (Result, error) {
	for _, r := range c.rules {
		if r.Phase() != Pre && r.Phase() != Both {
			continue
		}
		res, err := r.Apply(ctx, rc)
		if err != nil {
			return Result{}, err
		}
		if res.Reject {
			return res, nil
		}
	}
	return allow(), nil
}

// RunPost applies every Post and Both rule in order. Post rules don't
// reject (the response has already left the upstream), but may still
// return an error to log.
func (c *Chain) RunPost(ctx context.Context, rc *Context) error {
	for _, r := range c.rules {
		if r.Phase() != Post && r.Phase() != Both {
			continue
		}
		if _, err := r.Apply(ctx, rc); err != nil {
			return err
		}
	}
	return nil
}

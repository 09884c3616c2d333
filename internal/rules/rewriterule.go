package rules

import (
	"context"

	"github.com/portcall/gateway/internal/rewrite"
)

// RewriteRule applies a route's ordered URL rewrite table to the
// request path before forwarding. Pre-phase only: rewriting the
// upstream path after the response has already been fetched would be
// meaningless.
type RewriteRule struct{}

func (RewriteRule) Name() string { return "url_rewrite" }
func (RewriteRule) Phase() Phase { return Pre }

func (RewriteRule) Apply(_ context.Context, rc *Context) (Result, error) {
	rc.RewrittenPath = rewrite.Apply(rc.RewrittenPath, rc.Route.URLRewrite)
	return allow(), nil
}

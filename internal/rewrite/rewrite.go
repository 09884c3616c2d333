// Package rewrite applies a route's ordered URL rewrite rules, adapted
// from original_source's url_rewrite.py. Go has no ordered map literal,
// so route.RewriteRule is a slice rather than a map — first-match-wins
// is preserved by walking it in order instead of relying on dict
// insertion order.
package rewrite

import (
	"strings"

	"github.com/portcall/gateway/internal/route"
)

// Apply rewrites path by replacing the first matching rule's From
// prefix with its To value. Rules are tried in order; the first whose
// From is a prefix of path wins. If no rule matches, path is returned
// unchanged.
func Apply(path string, rules []route.RewriteRule) string {
	for _, rule := range rules {
		if strings.HasPrefix(path, rule.From) {
			return rule.To + strings.TrimPrefix(path, rule.From)
		}
	}
	return path
}

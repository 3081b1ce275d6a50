// Package origin decides which browser origins may call the service.
package origin

import (
	"strings"
)

// DefaultPatterns admit browser extension pages only
var DefaultPatterns = []string{"chrome-extension://*", "moz-extension://*"}

// Policy matches request origins against exact origins, "scheme://*"
// prefixes, or "*" for any origin. A request without an Origin header comes
// from a non-browser client and is always allowed.
type Policy struct {
	any      bool
	exact    map[string]struct{}
	prefixes []string
}

// NewPolicy builds a policy; no patterns selects DefaultPatterns
func NewPolicy(patterns []string) *Policy {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	p := &Policy{exact: make(map[string]struct{})}
	for _, pattern := range patterns {
		pattern = strings.TrimRight(strings.TrimSpace(pattern), "/")
		switch {
		case pattern == "":
		case pattern == "*":
			p.any = true
		case strings.HasSuffix(pattern, "*"):
			p.prefixes = append(p.prefixes, strings.TrimSuffix(pattern, "*"))
		default:
			p.exact[strings.ToLower(pattern)] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether a request carrying origin may proceed
func (p *Policy) Allowed(origin string) bool {
	if origin == "" || p.any {
		return true
	}

	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(origin, prefix) && len(origin) > len(prefix) {
			return true
		}
	}
	return false
}

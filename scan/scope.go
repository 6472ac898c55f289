package scan

import (
	"fmt"
	"strings"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// Scope is the allow-list of domains that may be scanned. Scanning is an
// active operation against third-party infrastructure, so the default is
// deny: an empty scope authorizes nothing.
//
// Entries are either exact domains ("example.com") or wildcard patterns
// ("*.example.com") matching one additional label. Matching is
// case-insensitive.
type Scope struct {
	allowed []string
}

// NewScope builds a scope from configured allow-list entries. Entries are
// normalized to lowercase; empty entries are dropped.
func NewScope(domains []string) *Scope {
	allowed := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			allowed = append(allowed, d)
		}
	}
	return &Scope{allowed: allowed}
}

// Authorize returns nil when the target is on the allow-list. Rejections
// wrap ErrUnauthorizedTarget so callers can test with errors.Is.
func (s *Scope) Authorize(target string) error {
	const op = "Scope.Authorize"

	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return exposuregraph.NewValidationError(op, fmt.Errorf("target domain is required"))
	}

	for _, pattern := range s.allowed {
		if domainMatches(target, pattern) {
			return nil
		}
	}

	return exposuregraph.NewConfigurationError(op,
		fmt.Errorf("%w: %q is not on the authorized targets list", exposuregraph.ErrUnauthorizedTarget, target))
}

// Allowed returns the normalized allow-list entries.
func (s *Scope) Allowed() []string {
	return append([]string(nil), s.allowed...)
}

// domainMatches reports whether target satisfies the pattern.
//
//   - "example.com" matches only the exact string "example.com".
//   - "*.example.com" matches "api.example.com" but not "example.com" or
//     "a.b.example.com" (a single wildcard label).
func domainMatches(target, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return target == pattern
	}

	suffix := pattern[2:]
	if !strings.HasSuffix(target, "."+suffix) {
		return false
	}

	label := target[:len(target)-len(suffix)-1]
	return label != "" && !strings.Contains(label, ".")
}

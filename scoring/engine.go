// Package scoring implements the risk scoring engine for web service assets.
//
// Scoring is pure and deterministic: the same attributes always produce the
// same score and the same ordered factor list. Rules are evaluated in a fixed,
// documented order and each applied rule contributes exactly one factor with
// a human-readable rationale. Missing attributes mean a rule does not apply;
// they are never an error.
package scoring

import (
	"fmt"
	"regexp"
	"strings"
)

// BaseScore is the number of points every exposed service starts with.
const BaseScore = 20

// MaxScore is the upper clamp for a risk score.
const MaxScore = 100

// nonProdIndicators are URL substrings that mark non-production environments.
var nonProdIndicators = []string{"staging", "dev", "test", "uat", "sandbox", "demo", "qa", "preprod"}

// versionPattern detects version numbers in server headers (e.g. "nginx/1.18.0").
var versionPattern = regexp.MustCompile(`/\d+[.\d]*`)

// Attributes is the minimal view of a web service the engine evaluates.
// It can be built from live probe results or from a stored WebService node.
// Zero values mean the attribute was not observed.
type Attributes struct {
	// URL is the full URL of the service (e.g. "https://api.example.com").
	URL string

	// Scheme is the URL scheme ("http" or "https"). Derived from URL when empty.
	Scheme string

	// StatusCode is the HTTP response status code.
	StatusCode int

	// Title is the HTML page title, if any.
	Title string

	// Server is the Server response header value, if any.
	Server string

	// Technologies lists detected technologies (e.g. "PHP/5.6").
	Technologies []string
}

// Factor is one named, signed point contribution explaining part of a score.
type Factor struct {
	// Name identifies the rule that applied (e.g. "Version Disclosure").
	Name string `json:"name"`

	// Points is the signed contribution to the total score.
	Points int `json:"points"`

	// Rationale explains why the rule applied, in one short sentence.
	Rationale string `json:"rationale"`
}

// Result is a complete risk assessment: a clamped score and the ordered
// list of factors that produced it.
type Result struct {
	// Score is the total risk score in [0, 100].
	Score int `json:"score"`

	// Factors lists contributing factors in rule-evaluation order.
	Factors []Factor `json:"factors"`
}

// rule is one entry in the ordered rule table. apply returns the rationale
// string and whether the rule contributes to the score.
type rule struct {
	name   string
	points int
	apply  func(Attributes) (string, bool)
}

// Engine calculates risk scores with explainable factors.
//
// The engine holds no mutable state; a single Engine is safe for concurrent
// use and repeated scoring of identical attributes yields identical results.
type Engine struct {
	rules []rule
}

// NewEngine creates a scoring engine with the standard rule table.
func NewEngine() *Engine {
	return &Engine{rules: []rule{
		{
			name:   "Base Exposure",
			points: BaseScore,
			apply: func(Attributes) (string, bool) {
				return "Every internet-facing service carries inherent exposure risk", true
			},
		},
		{
			name:   "Live Service",
			points: 30,
			apply: func(a Attributes) (string, bool) {
				if a.StatusCode != 200 {
					return "", false
				}
				return "Service responds with HTTP 200, confirming it is live and accessible", true
			},
		},
		{
			name:   "Non-Production Exposed",
			points: 15,
			apply: func(a Attributes) (string, bool) {
				indicator, ok := MatchNonProduction(a.URL)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("URL contains %q, indicating a non-production environment exposed to the internet", indicator), true
			},
		},
		{
			name:   "Version Disclosure",
			points: 10,
			apply: func(a Attributes) (string, bool) {
				if a.Server == "" || !versionPattern.MatchString(a.Server) {
					return "", false
				}
				return fmt.Sprintf("Server header %q reveals version information, aiding attackers in finding known vulnerabilities", a.Server), true
			},
		},
		{
			name:   "Outdated Technology",
			points: 20,
			apply: func(a Attributes) (string, bool) {
				match, ok := matchEndOfLife(a)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("Detected %q: %s", match.Pattern, match.Reason), true
			},
		},
		{
			name:   "No HTTPS",
			points: 15,
			apply: func(a Attributes) (string, bool) {
				scheme := a.Scheme
				if scheme == "" {
					scheme = schemeOf(a.URL)
				}
				if scheme == "" || strings.EqualFold(scheme, "https") {
					return "", false
				}
				return "Service uses unencrypted HTTP, exposing data in transit to interception and tampering", true
			},
		},
		{
			name:   "Directory Listing",
			points: 10,
			apply: func(a Attributes) (string, bool) {
				if !strings.Contains(strings.ToLower(a.Title), "index of") {
					return "", false
				}
				return "Page title suggests directory listing is enabled, potentially exposing sensitive files and structure", true
			},
		},
	}}
}

// Score evaluates the rule table against the given attributes.
//
// The returned factor list contains one entry per applied rule, in rule
// order; rules that do not apply contribute nothing. The score equals the
// sum of factor points clamped to [0, MaxScore].
func (e *Engine) Score(attrs Attributes) Result {
	var factors []Factor
	total := 0

	for _, r := range e.rules {
		rationale, ok := r.apply(attrs)
		if !ok {
			continue
		}
		factors = append(factors, Factor{
			Name:      r.name,
			Points:    r.points,
			Rationale: rationale,
		})
		total += r.points
	}

	if total > MaxScore {
		total = MaxScore
	}
	if total < 0 {
		total = 0
	}

	return Result{Score: total, Factors: factors}
}

// MatchNonProduction returns the first non-production indicator contained in
// the URL. Matching is a plain lowercase substring check; the indicator list
// is the documented contract and is deliberately not extended with
// normalization such as punycode folding.
func MatchNonProduction(url string) (string, bool) {
	lower := strings.ToLower(url)
	for _, indicator := range nonProdIndicators {
		if strings.Contains(lower, indicator) {
			return indicator, true
		}
	}
	return "", false
}

// NonProductionIndicators returns a copy of the indicator list, in match
// order. Exposed so the gateway can publish the scoring model as a resource
// document.
func NonProductionIndicators() []string {
	out := make([]string, len(nonProdIndicators))
	copy(out, nonProdIndicators)
	return out
}

// schemeOf extracts the scheme from a URL string, or "" if absent.
func schemeOf(url string) string {
	idx := strings.Index(url, "://")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(url[:idx])
}

// Level classifies a numeric score into a named risk level.
func Level(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

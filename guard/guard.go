// Package guard validates query text before it may reach the graph store.
//
// The guard sits on every path to the store: machine-translated queries and
// queries supplied verbatim by external agents all pass through Validate,
// because caller-declared trust is never a substitute for validation.
// A rejection is a normal, expected outcome, not a fault.
package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// Defaults applied when the caller does not configure bounds.
const (
	DefaultRowCap  = 100
	DefaultTimeout = 15 * time.Second
)

// mutationKeywords are Cypher keywords that modify the graph. Matching is
// word-boundary based so property names like "reset_count" or "offset" do
// not trip the check.
var mutationKeywords = []string{"CREATE", "MERGE", "DELETE", "DETACH", "SET", "REMOVE", "DROP"}

var (
	mutationPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(mutationKeywords, "|") + `)\b`)
	limitPattern    = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)
)

// Validated is a query that passed all guard checks, together with the
// execution bounds the store must enforce. The query text may differ from
// the input: a missing LIMIT clause is injected here.
type Validated struct {
	// Query is the single read-only statement to execute.
	Query string

	// RowCap is the maximum number of result rows the store may return.
	RowCap int

	// Timeout is the execution deadline for the statement.
	Timeout time.Duration
}

// Guard enforces the read-only, single-statement, bounded-result contract.
// A zero-configured Guard uses DefaultRowCap and DefaultTimeout.
type Guard struct {
	rowCap  int
	timeout time.Duration
}

// New creates a Guard with the given row cap and execution timeout.
// Non-positive values fall back to the defaults.
func New(rowCap int, timeout time.Duration) *Guard {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{rowCap: rowCap, timeout: timeout}
}

// RowCap returns the configured result-row cap.
func (g *Guard) RowCap() int { return g.rowCap }

// Timeout returns the configured execution timeout.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// Validate checks query text against the read-only contract and returns the
// bounded statement to execute.
//
// Checks, in order:
//  1. the text is non-empty
//  2. it contains exactly one statement
//  3. it contains no mutation keywords
//  4. a row cap is present and within bounds, or is injected
//
// On rejection the returned error wraps exposuregraph.ErrQueryRejected with
// KindValidation and carries the human-readable reason; the query never
// reaches the store.
func (g *Guard) Validate(query string) (Validated, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Validated{}, reject("query is empty", query)
	}

	single, ok := singleStatement(trimmed)
	if !ok {
		return Validated{}, reject("multiple statements are not allowed", query)
	}

	if m := mutationPattern.FindString(single); m != "" {
		return Validated{}, reject(
			fmt.Sprintf("mutation keyword %q is not allowed; only read queries are permitted", strings.ToUpper(m)),
			query,
		)
	}

	bounded, err := g.enforceRowCap(single)
	if err != nil {
		return Validated{}, err
	}

	return Validated{
		Query:   bounded,
		RowCap:  g.rowCap,
		Timeout: g.timeout,
	}, nil
}

// singleStatement strips at most one trailing semicolon and reports whether
// the remainder is free of statement separators.
func singleStatement(query string) (string, bool) {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if strings.Contains(query, ";") {
		return "", false
	}
	return query, true
}

// enforceRowCap ensures the statement carries a LIMIT within the cap,
// injecting one when absent.
func (g *Guard) enforceRowCap(query string) (string, error) {
	matches := limitPattern.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return fmt.Sprintf("%s LIMIT %d", query, g.rowCap), nil
	}

	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > g.rowCap {
			return "", reject(
				fmt.Sprintf("LIMIT %s exceeds the configured row cap of %d", m[1], g.rowCap),
				query,
			)
		}
	}

	return query, nil
}

func reject(reason, query string) error {
	return exposuregraph.NewValidationError("Guard.Validate",
		fmt.Errorf("%w: %s", exposuregraph.ErrQueryRejected, reason),
	).WithContext(map[string]any{"query": query})
}

// Reason extracts the human-readable rejection reason from a guard error.
// Returns the full error string for non-guard errors.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.LastIndex(msg, exposuregraph.ErrQueryRejected.Error()+": "); idx >= 0 {
		rest := msg[idx+len(exposuregraph.ErrQueryRejected.Error())+2:]
		if end := strings.Index(rest, " [context:"); end >= 0 {
			rest = rest[:end]
		}
		return rest
	}
	return msg
}

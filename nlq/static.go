package nlq

import (
	"context"
	"strings"
)

// canonicalQueries maps normalized canonical questions to fixed queries.
// The keys mirror the few-shot examples in the translation prompt.
var canonicalQueries = map[string]string{
	"what are the riskiest assets": "MATCH (w:WebService) RETURN w.url AS url, w.risk_score AS risk_score, w.risk_factors AS risk_factors ORDER BY w.risk_score DESC LIMIT 5",
	"show staging servers":         "MATCH (w:WebService) WHERE toLower(w.url) CONTAINS 'staging' RETURN w.url AS url, w.risk_score AS risk_score",
	"how many subdomains":          "MATCH (s:Subdomain) RETURN count(s) AS total",
	"list all domains":             "MATCH (d:Domain) RETURN d.name AS domain, d.source AS source ORDER BY d.name",
	"what services are running nginx": "MATCH (w:WebService) WHERE w.server CONTAINS 'nginx' RETURN w.url AS url, w.server AS server, w.risk_score AS risk_score",
	"show high risk services above 70": "MATCH (w:WebService) WHERE w.risk_score >= 70 RETURN w.url AS url, w.risk_score AS risk_score, w.title AS title ORDER BY w.risk_score DESC",
	"show the full path from domain to services": "MATCH (d:Domain)-[:HAS_SUBDOMAIN]->(s:Subdomain)-[:HOSTS]->(w:WebService) RETURN d.name AS domain, s.fqdn AS subdomain, w.url AS service, w.risk_score AS risk_score ORDER BY w.risk_score DESC LIMIT 10",
	"what subdomains belong to example.com":      "MATCH (d:Domain {name: 'example.com'})-[:HAS_SUBDOMAIN]->(s:Subdomain) RETURN s.fqdn AS subdomain ORDER BY s.fqdn",
}

// StaticStrategy maps questions to fixed queries with no model involved.
// Identical questions always yield byte-identical Cypher, which makes the
// whole pipeline reproducible in tests and demos.
type StaticStrategy struct{}

// NewStaticStrategy creates a deterministic translation strategy.
func NewStaticStrategy() *StaticStrategy {
	return &StaticStrategy{}
}

// Name identifies the strategy in logs and answers.
func (s *StaticStrategy) Name() string {
	return "static"
}

// Translate resolves the question against the canonical table, falling back
// to keyword heuristics. It never fails; feedback is ignored because the
// output cannot be improved by retrying.
func (s *StaticStrategy) Translate(ctx context.Context, question, feedback string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	normalized := normalizeQuestion(question)
	if cypher, ok := canonicalQueries[normalized]; ok {
		return cypher, nil
	}

	switch {
	case strings.Contains(normalized, "riskiest") || strings.Contains(normalized, "risk"):
		return "MATCH (w:WebService) RETURN w.url AS url, w.risk_score AS risk_score ORDER BY w.risk_score DESC LIMIT 5", nil
	case strings.Contains(normalized, "subdomain"):
		return "MATCH (s:Subdomain) RETURN s.fqdn AS fqdn LIMIT 10", nil
	case strings.Contains(normalized, "count") || strings.Contains(normalized, "how many"):
		return "MATCH (n) RETURN labels(n)[0] AS type, count(n) AS count", nil
	case strings.Contains(normalized, "domain"):
		return "MATCH (d:Domain) RETURN d.name AS domain, d.source AS source ORDER BY d.name", nil
	default:
		return "MATCH (w:WebService) RETURN w.url AS url, w.risk_score AS risk_score LIMIT 5", nil
	}
}

// normalizeQuestion lowercases and strips surrounding whitespace, quotes and
// trailing punctuation so canonical lookups tolerate minor phrasing noise.
func normalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.Trim(q, `"'`)
	q = strings.TrimRight(q, "?!. ")
	return q
}

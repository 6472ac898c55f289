package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/graph/query"
	"github.com/exposure-graph/exposuregraph/scoring"
)

// Bounds for the store's own statements. Callers of RunRead supply their own.
const (
	writeTimeout = 10 * time.Second
	readTimeout  = 15 * time.Second
)

// EnsureIndexes creates the lookup indexes used by the read paths.
// Safe to call repeatedly; intended for initial setup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX domain_name IF NOT EXISTS FOR (d:Domain) ON (d.name)",
		"CREATE INDEX subdomain_fqdn IF NOT EXISTS FOR (s:Subdomain) ON (s.fqdn)",
		"CREATE INDEX webservice_url IF NOT EXISTS FOR (w:WebService) ON (w.url)",
		"CREATE INDEX webservice_risk IF NOT EXISTS FOR (w:WebService) ON (w.risk_score)",
	}
	for _, stmt := range indexes {
		if _, err := s.run(ctx, stmt, nil, writeTimeout); err != nil {
			return err
		}
	}
	s.logger.Info("graph indexes ensured", "count", len(indexes))
	return nil
}

// UpsertDomain merges a Domain node by name. Idempotent.
func (s *Store) UpsertDomain(ctx context.Context, name, source string) error {
	const stmt = `MERGE (d:Domain {name: $name})
ON CREATE SET d.discovered_at = datetime(), d.source = $source
ON MATCH SET d.source = $source`

	_, err := s.run(ctx, stmt, map[string]any{
		"name":   strings.ToLower(name),
		"source": source,
	}, writeTimeout)
	if err != nil {
		return err
	}
	s.logger.Info("domain upserted", "domain", name)
	return nil
}

// UpsertSubdomain merges a Subdomain node by FQDN and links it to its parent
// Domain, creating the parent if it does not exist yet. Idempotent.
func (s *Store) UpsertSubdomain(ctx context.Context, fqdn, parentDomain string) error {
	const stmt = `MERGE (d:Domain {name: $parent})
ON CREATE SET d.discovered_at = datetime(), d.source = 'scan'
MERGE (s:Subdomain {fqdn: $fqdn})
ON CREATE SET s.discovered_at = datetime()
MERGE (d)-[:HAS_SUBDOMAIN]->(s)`

	_, err := s.run(ctx, stmt, map[string]any{
		"fqdn":   strings.ToLower(fqdn),
		"parent": strings.ToLower(parentDomain),
	}, writeTimeout)
	if err != nil {
		return err
	}
	s.logger.Info("subdomain upserted", "fqdn", fqdn)
	return nil
}

// UpsertWebService merges a WebService node by URL under its hosting
// Subdomain and overwrites its observed attributes. Idempotent; the write is
// atomic per node, so last-write-wins is acceptable for concurrent rescoring.
func (s *Store) UpsertWebService(ctx context.Context, svc WebService, subdomainFQDN string) error {
	factors, err := marshalFactors(svc.RiskFactors)
	if err != nil {
		return exposuregraph.NewInternalError("Store.UpsertWebService", err)
	}

	scheme := svc.Scheme
	if scheme == "" {
		scheme = SchemeOf(svc.URL)
	}

	params := map[string]any{
		"fqdn":         strings.ToLower(subdomainFQDN),
		"url":          svc.URL,
		"status_code":  svc.StatusCode,
		"title":        svc.Title,
		"server":       svc.Server,
		"technologies": svc.Technologies,
		"scheme":       scheme,
	}
	if svc.RiskScore != nil {
		params["risk_score"] = *svc.RiskScore
		params["risk_factors"] = factors
	} else {
		params["risk_score"] = nil
		params["risk_factors"] = nil
	}

	const stmt = `MERGE (s:Subdomain {fqdn: $fqdn})
ON CREATE SET s.discovered_at = datetime()
MERGE (w:WebService {url: $url})
ON CREATE SET w.discovered_at = datetime()
SET w.status_code = $status_code,
    w.title = $title,
    w.server = $server,
    w.technologies = $technologies,
    w.scheme = $scheme,
    w.risk_score = $risk_score,
    w.risk_factors = $risk_factors
MERGE (s)-[:HOSTS]->(w)`

	if _, err := s.run(ctx, stmt, params, writeTimeout); err != nil {
		return err
	}
	s.logger.Info("web service upserted", "url", svc.URL)
	return nil
}

// UpdateRiskScore writes derived score state back to an existing service.
// Returns false when no service with the given URL exists.
func (s *Store) UpdateRiskScore(ctx context.Context, url string, result scoring.Result) (bool, error) {
	factors, err := marshalFactors(result.Factors)
	if err != nil {
		return false, exposuregraph.NewInternalError("Store.UpdateRiskScore", err)
	}

	const stmt = `MATCH (w:WebService {url: $url})
SET w.risk_score = $risk_score, w.risk_factors = $risk_factors
RETURN w.url AS url`

	rows, err := s.run(ctx, stmt, map[string]any{
		"url":          url,
		"risk_score":   result.Score,
		"risk_factors": factors,
	}, writeTimeout)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		s.logger.Warn("web service not found for risk update", "url", url)
		return false, nil
	}
	s.logger.Debug("risk score updated", "url", url, "score", result.Score)
	return true, nil
}

// Stats returns node counts for the whole graph.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	const stmt = `MATCH (d:Domain) WITH count(d) AS domains
MATCH (s:Subdomain) WITH domains, count(s) AS subdomains
MATCH (w:WebService) WITH domains, subdomains, count(w) AS webservices
RETURN domains, subdomains, webservices`

	rows, err := s.run(ctx, stmt, nil, readTimeout)
	if err != nil {
		return Stats{}, err
	}
	if len(rows) == 0 {
		return Stats{}, nil
	}
	return Stats{
		Domains:     asInt(rows[0]["domains"]),
		Subdomains:  asInt(rows[0]["subdomains"]),
		WebServices: asInt(rows[0]["webservices"]),
	}, nil
}

// Domains returns all Domain nodes ordered by name.
func (s *Store) Domains(ctx context.Context) ([]Domain, error) {
	cypher, params := query.Match(LabelDomain, "d").
		Return("name", "source").
		OrderByAsc("name").
		Build()

	rows, err := s.run(ctx, cypher, params, readTimeout)
	if err != nil {
		return nil, err
	}

	domains := make([]Domain, 0, len(rows))
	for _, row := range rows {
		domains = append(domains, Domain{
			Name:   asString(row["d.name"]),
			Source: asString(row["d.source"]),
		})
	}
	return domains, nil
}

// SubdomainsForDomain returns the subdomains beneath a domain, ordered by FQDN.
func (s *Store) SubdomainsForDomain(ctx context.Context, domainName string) ([]Subdomain, error) {
	cypher, params := query.Match(LabelDomain, "d").
		Where(query.Predicate{Field: "name", Op: query.Eq, Value: strings.ToLower(domainName)}).
		Through(query.Traversal{Relationship: RelHasSubdomain, TargetType: LabelSubdomain, TargetAlias: "s"}).
		Return("fqdn").
		OrderByAsc("fqdn").
		Build()

	rows, err := s.run(ctx, cypher, params, readTimeout)
	if err != nil {
		return nil, err
	}

	subs := make([]Subdomain, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, Subdomain{FQDN: asString(row["s.fqdn"])})
	}
	return subs, nil
}

// ServicesForSubdomain returns the web services hosted by a subdomain.
func (s *Store) ServicesForSubdomain(ctx context.Context, fqdn string) ([]WebService, error) {
	cypher, params := query.Match(LabelSubdomain, "s").
		Where(query.Predicate{Field: "fqdn", Op: query.Eq, Value: strings.ToLower(fqdn)}).
		Through(query.Traversal{Relationship: RelHosts, TargetType: LabelWebService, TargetAlias: "w"}).
		Return(serviceFields...).
		OrderByAsc("url").
		Build()

	rows, err := s.run(ctx, cypher, params, readTimeout)
	if err != nil {
		return nil, err
	}
	return decodeServices(rows), nil
}

// WebServicesByRisk returns scored services ordered by risk, highest first.
// An optional domain restricts results to URLs containing that domain;
// finer-grained filtering (e.g. non-production indicators) happens in the
// caller, which sees decoded attributes.
func (s *Store) WebServicesByRisk(ctx context.Context, minScore, limit int, domain string) ([]WebService, error) {
	stmt := query.Match(LabelWebService, "w").
		Where(query.Predicate{Field: "risk_score", Op: query.Gte, Value: minScore})

	if domain != "" {
		stmt.Where(query.Predicate{Field: "url", Op: query.ContainsLower, Value: strings.ToLower(domain)})
	}

	cypher, params := stmt.
		Return(serviceFields...).
		OrderByDesc("risk_score").
		Limit(limit).
		Build()

	rows, err := s.run(ctx, cypher, params, readTimeout)
	if err != nil {
		return nil, err
	}
	return decodeServices(rows), nil
}

// UnscoredServices returns services whose risk score has not been derived yet.
func (s *Store) UnscoredServices(ctx context.Context) ([]WebService, error) {
	cypher, params := query.Match(LabelWebService, "w").
		Where(query.Predicate{Field: "risk_score", Op: query.IsNull}).
		Return(serviceFields...).
		Build()

	rows, err := s.run(ctx, cypher, params, readTimeout)
	if err != nil {
		return nil, err
	}
	return decodeServices(rows), nil
}

// serviceFields are the WebService properties selected by the read helpers.
var serviceFields = []string{"url", "status_code", "title", "server", "technologies", "scheme", "risk_score", "risk_factors"}

// decodeServices converts raw result rows into WebService values.
func decodeServices(rows []map[string]any) []WebService {
	services := make([]WebService, 0, len(rows))
	for _, row := range rows {
		svc := WebService{
			URL:          asString(row["w.url"]),
			StatusCode:   asInt(row["w.status_code"]),
			Title:        asString(row["w.title"]),
			Server:       asString(row["w.server"]),
			Scheme:       asString(row["w.scheme"]),
			Technologies: asStrings(row["w.technologies"]),
			RiskFactors:  unmarshalFactors(asString(row["w.risk_factors"])),
		}
		if v, ok := row["w.risk_score"]; ok && v != nil {
			score := asInt(v)
			svc.RiskScore = &score
		}
		services = append(services, svc)
	}
	return services
}

// asInt converts JSON-decoded numeric values, which arrive as float64.
func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ErrNotFound reports a missing node in a way callers can test with errors.Is.
func ErrNotFound(what, key string) error {
	return exposuregraph.NewNotFoundError("Store",
		fmt.Errorf("%s %q not found", what, key))
}

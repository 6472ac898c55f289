// Package gateway exposes the asset graph to external agents as a closed
// catalogue of typed operations.
//
// Every operation re-validates its inputs even though the transport layer
// has its own checks, and every query-shaped input flows through the guard.
// The gateway holds no state of its own; it composes the store, the scoring
// engine, the guard, and the question executor.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/guard"
	"github.com/exposure-graph/exposuregraph/nlq"
	"github.com/exposure-graph/exposuregraph/scoring"
)

// overviewScanLimit bounds how many scored services the overview and report
// operations pull for aggregation.
const overviewScanLimit = 1000

// maxTopRiskyLimit caps the result size of the top_risky operation.
const maxTopRiskyLimit = 100

// AssetStore is the graph surface the gateway reads from. *graph.Store
// satisfies it.
type AssetStore interface {
	Stats(ctx context.Context) (graph.Stats, error)
	WebServicesByRisk(ctx context.Context, minScore, limit int, domain string) ([]graph.WebService, error)
	SubdomainsForDomain(ctx context.Context, domainName string) ([]graph.Subdomain, error)
	ServicesForSubdomain(ctx context.Context, fqdn string) ([]graph.WebService, error)
	RunRead(ctx context.Context, cypher string, params map[string]any, rowCap int, timeout time.Duration) ([]map[string]any, error)
}

// Asker answers natural-language questions. *nlq.Executor satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (nlq.Answer, error)
}

// Config wires the gateway's collaborators.
type Config struct {
	Store  AssetStore
	Engine *scoring.Engine
	Guard  *guard.Guard
	Asker  Asker
	Logger *slog.Logger

	// Clock supplies report timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Gateway is the typed operation surface for external agents.
type Gateway struct {
	store  AssetStore
	engine *scoring.Engine
	guard  *guard.Guard
	asker  Asker
	logger *slog.Logger
	clock  func() time.Time
}

// New creates a gateway from the given configuration.
func New(cfg Config) (*Gateway, error) {
	const op = "gateway.New"

	if cfg.Store == nil {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: asset store is required", exposuregraph.ErrInvalidConfig))
	}

	engine := cfg.Engine
	if engine == nil {
		engine = scoring.NewEngine()
	}

	g := cfg.Guard
	if g == nil {
		g = guard.New(0, 0)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Gateway{
		store:  cfg.Store,
		engine: engine,
		guard:  g,
		asker:  cfg.Asker,
		logger: logger,
		clock:  clock,
	}, nil
}

// Overview is dashboard-level posture: counts, score distribution, average.
type Overview struct {
	AssetCounts         graph.Stats    `json:"asset_counts"`
	RiskDistribution    map[string]int `json:"risk_distribution"`
	AverageRiskScore    float64        `json:"average_risk_score"`
	TotalScoredServices int            `json:"total_scored_services"`
}

// Overview aggregates posture statistics across the whole graph.
func (g *Gateway) Overview(ctx context.Context) (Overview, error) {
	stats, err := g.store.Stats(ctx)
	if err != nil {
		return Overview{}, err
	}

	services, err := g.store.WebServicesByRisk(ctx, 0, overviewScanLimit, "")
	if err != nil {
		return Overview{}, err
	}

	distribution := map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0}
	total, scored := 0, 0
	for _, svc := range services {
		if svc.RiskScore == nil {
			continue
		}
		distribution[scoring.Level(*svc.RiskScore)]++
		total += *svc.RiskScore
		scored++
	}

	avg := 0.0
	if scored > 0 {
		avg = round1(float64(total) / float64(scored))
	}

	return Overview{
		AssetCounts:         stats,
		RiskDistribution:    distribution,
		AverageRiskScore:    avg,
		TotalScoredServices: scored,
	}, nil
}

// TopRiskyInput selects and filters the riskiest services.
type TopRiskyInput struct {
	// MinScore excludes services scoring below it. Range [0, 100].
	MinScore int `json:"min_score"`

	// Limit caps the result size. Range (0, 100]; defaults to 10 when zero.
	Limit int `json:"limit"`

	// Domain restricts results to services whose URL contains it. Optional.
	Domain string `json:"domain,omitempty"`

	// NonProdOnly keeps only services on non-production URLs.
	NonProdOnly bool `json:"non_prod_only,omitempty"`
}

// RiskyAsset is one service in a risk-ordered listing.
type RiskyAsset struct {
	URL          string           `json:"url"`
	RiskScore    *int             `json:"risk_score"`
	RiskLevel    string           `json:"risk_level"`
	StatusCode   int              `json:"status_code"`
	Server       string           `json:"server,omitempty"`
	Title        string           `json:"title,omitempty"`
	Technologies []string         `json:"technologies,omitempty"`
	RiskFactors  []scoring.Factor `json:"risk_factors,omitempty"`
}

// TopRisky lists the riskiest services, highest score first.
func (g *Gateway) TopRisky(ctx context.Context, in TopRiskyInput) ([]RiskyAsset, error) {
	const op = "Gateway.TopRisky"

	if in.MinScore < 0 || in.MinScore > scoring.MaxScore {
		return nil, exposuregraph.NewValidationError(op,
			fmt.Errorf("min_score %d outside [0, %d]", in.MinScore, scoring.MaxScore))
	}
	if in.Limit == 0 {
		in.Limit = 10
	}
	if in.Limit < 0 || in.Limit > maxTopRiskyLimit {
		return nil, exposuregraph.NewValidationError(op,
			fmt.Errorf("limit %d outside (0, %d]", in.Limit, maxTopRiskyLimit))
	}

	services, err := g.store.WebServicesByRisk(ctx, in.MinScore, in.Limit, strings.TrimSpace(in.Domain))
	if err != nil {
		return nil, err
	}

	assets := make([]RiskyAsset, 0, len(services))
	for _, svc := range services {
		if in.NonProdOnly {
			if _, ok := scoring.MatchNonProduction(svc.URL); !ok {
				continue
			}
		}
		assets = append(assets, toRiskyAsset(svc))
	}
	return assets, nil
}

// DomainAssets is the subtree beneath one domain.
type DomainAssets struct {
	Domain         string          `json:"domain"`
	SubdomainCount int             `json:"subdomain_count"`
	Subdomains     []SubdomainNode `json:"subdomains"`
}

// SubdomainNode is one subdomain with its hosted services.
type SubdomainNode struct {
	FQDN     string       `json:"fqdn"`
	Services []RiskyAsset `json:"services,omitempty"`
}

// AssetsForDomain returns the subdomains of a domain with their services.
func (g *Gateway) AssetsForDomain(ctx context.Context, domainName string) (DomainAssets, error) {
	const op = "Gateway.AssetsForDomain"

	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" {
		return DomainAssets{}, exposuregraph.NewValidationError(op,
			fmt.Errorf("domain name is required"))
	}

	subdomains, err := g.store.SubdomainsForDomain(ctx, domainName)
	if err != nil {
		return DomainAssets{}, err
	}

	out := DomainAssets{
		Domain:         domainName,
		SubdomainCount: len(subdomains),
		Subdomains:     make([]SubdomainNode, 0, len(subdomains)),
	}
	for _, sub := range subdomains {
		services, err := g.store.ServicesForSubdomain(ctx, sub.FQDN)
		if err != nil {
			return DomainAssets{}, err
		}
		node := SubdomainNode{FQDN: sub.FQDN}
		for _, svc := range services {
			node.Services = append(node.Services, toRiskyAsset(svc))
		}
		out.Subdomains = append(out.Subdomains, node)
	}
	return out, nil
}

// WhatIfInput describes a hypothetical service to score. Nothing is persisted.
type WhatIfInput struct {
	URL          string   `json:"url"`
	StatusCode   int      `json:"status_code"`
	Server       string   `json:"server,omitempty"`
	Title        string   `json:"title,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// WhatIfResult is the explained score for a hypothetical service.
type WhatIfResult struct {
	URL       string           `json:"url"`
	RiskScore int              `json:"risk_score"`
	RiskLevel string           `json:"risk_level"`
	Factors   []scoring.Factor `json:"factors"`
}

// WhatIfScore scores a hypothetical service without touching the graph.
func (g *Gateway) WhatIfScore(ctx context.Context, in WhatIfInput) (WhatIfResult, error) {
	const op = "Gateway.WhatIfScore"

	if strings.TrimSpace(in.URL) == "" {
		return WhatIfResult{}, exposuregraph.NewValidationError(op,
			fmt.Errorf("url is required"))
	}
	if in.StatusCode < 0 || in.StatusCode > 599 {
		return WhatIfResult{}, exposuregraph.NewValidationError(op,
			fmt.Errorf("status_code %d is not a valid HTTP status", in.StatusCode))
	}

	result := g.engine.Score(scoring.Attributes{
		URL:          in.URL,
		StatusCode:   in.StatusCode,
		Server:       in.Server,
		Title:        in.Title,
		Technologies: in.Technologies,
	})

	return WhatIfResult{
		URL:       in.URL,
		RiskScore: result.Score,
		RiskLevel: scoring.Level(result.Score),
		Factors:   result.Factors,
	}, nil
}

// QueryOutput is the result of a raw read query.
type QueryOutput struct {
	Query       string           `json:"query"`
	ResultCount int              `json:"result_count"`
	Rows        []map[string]any `json:"rows"`
}

// RawQuery validates caller-supplied query text through the guard and runs
// it. A guard rejection comes back as a validation-kind error; it is an
// expected outcome, not a fault.
func (g *Gateway) RawQuery(ctx context.Context, cypher string) (QueryOutput, error) {
	validated, err := g.guard.Validate(cypher)
	if err != nil {
		g.logger.Info("raw query rejected", "reason", guard.Reason(err))
		return QueryOutput{}, err
	}

	rows, err := g.store.RunRead(ctx, validated.Query, nil, validated.RowCap, validated.Timeout)
	if err != nil {
		return QueryOutput{}, err
	}

	return QueryOutput{
		Query:       validated.Query,
		ResultCount: len(rows),
		Rows:        rows,
	}, nil
}

// Ask answers a natural-language question about the graph.
func (g *Gateway) Ask(ctx context.Context, question string) (nlq.Answer, error) {
	const op = "Gateway.Ask"

	if strings.TrimSpace(question) == "" {
		return nlq.Answer{}, exposuregraph.NewValidationError(op,
			fmt.Errorf("question is required"))
	}
	if g.asker == nil {
		return nlq.Answer{}, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: no question executor configured", exposuregraph.ErrInvalidConfig))
	}
	return g.asker.Ask(ctx, question)
}

// toRiskyAsset converts a stored service into the listing shape.
func toRiskyAsset(svc graph.WebService) RiskyAsset {
	level := "unknown"
	if svc.RiskScore != nil {
		level = scoring.Level(*svc.RiskScore)
	}
	return RiskyAsset{
		URL:          svc.URL,
		RiskScore:    svc.RiskScore,
		RiskLevel:    level,
		StatusCode:   svc.StatusCode,
		Server:       svc.Server,
		Title:        svc.Title,
		Technologies: svc.Technologies,
		RiskFactors:  svc.RiskFactors,
	}
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

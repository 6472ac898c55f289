// Package scan orchestrates the discovery pipeline: authorize the target,
// enumerate subdomains, probe for live web services, score them, and upsert
// everything into the asset graph. The scope check runs before any collector
// touches the network.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/collector"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/scoring"
)

// DefaultConcurrency bounds parallel graph writes during a scan.
const DefaultConcurrency = 8

// Enumerator discovers subdomains of a root domain. *collector.Subfinder
// implements it.
type Enumerator interface {
	Discover(ctx context.Context, domain string) ([]string, error)
}

// Prober checks which hosts answer HTTP and fingerprints them.
// *collector.Httpx implements it.
type Prober interface {
	Probe(ctx context.Context, hosts []string) ([]collector.Service, error)
}

// GraphWriter is the slice of the asset store the pipeline writes through.
type GraphWriter interface {
	UpsertDomain(ctx context.Context, name, source string) error
	UpsertSubdomain(ctx context.Context, fqdn, parentDomain string) error
	UpsertWebService(ctx context.Context, svc graph.WebService, subdomainFQDN string) error
	UpdateRiskScore(ctx context.Context, url string, result scoring.Result) (bool, error)
	UnscoredServices(ctx context.Context) ([]graph.WebService, error)
}

// Config wires a Scanner.
type Config struct {
	// Enumerator discovers subdomains. Required.
	Enumerator Enumerator

	// Prober finds live web services. Required.
	Prober Prober

	// Store receives the discovered assets. Required.
	Store GraphWriter

	// Engine scores probed services. Defaults to scoring.NewEngine().
	Engine *scoring.Engine

	// Scope is the authorized-targets allow-list. Defaults to an empty
	// scope, which rejects every target.
	Scope *Scope

	// Concurrency bounds parallel graph writes. Defaults to
	// DefaultConcurrency.
	Concurrency int

	// Logger receives pipeline events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Scanner runs the discovery pipeline for one domain at a time.
type Scanner struct {
	enumerator  Enumerator
	prober      Prober
	store       GraphWriter
	engine      *scoring.Engine
	scope       *Scope
	concurrency int
	logger      *slog.Logger
}

// Summary reports what one scan found and wrote.
type Summary struct {
	Domain       string        `json:"domain"`
	Subdomains   int           `json:"subdomains"`
	LiveServices int           `json:"live_services"`
	Scored       int           `json:"scored"`
	Duration     time.Duration `json:"duration"`
}

// New validates the wiring and returns a Scanner.
func New(cfg Config) (*Scanner, error) {
	const op = "scan.New"

	if cfg.Enumerator == nil {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("enumerator is required"))
	}
	if cfg.Prober == nil {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("prober is required"))
	}
	if cfg.Store == nil {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("store is required"))
	}
	if cfg.Engine == nil {
		cfg.Engine = scoring.NewEngine()
	}
	if cfg.Scope == nil {
		cfg.Scope = NewScope(nil)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scanner{
		enumerator:  cfg.Enumerator,
		prober:      cfg.Prober,
		store:       cfg.Store,
		engine:      cfg.Engine,
		scope:       cfg.Scope,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}, nil
}

// Scan runs the full pipeline for one root domain. The scope check happens
// first: an unauthorized target is rejected before the enumerator runs, so
// nothing reaches the network or the graph.
func (s *Scanner) Scan(ctx context.Context, domain string) (Summary, error) {
	start := time.Now()
	domain = strings.ToLower(strings.TrimSpace(domain))

	if err := s.scope.Authorize(domain); err != nil {
		s.logger.Warn("scan rejected", "domain", domain, "error", err)
		return Summary{}, err
	}

	tracer := otel.Tracer("exposuregraph/scan")
	ctx, span := tracer.Start(ctx, "scan.run")
	span.SetAttributes(attribute.String("scan.domain", domain))
	defer span.End()

	s.logger.Info("scan started", "domain", domain)

	subdomains, err := s.enumerator.Discover(ctx, domain)
	if err != nil {
		return Summary{}, err
	}

	if err := s.store.UpsertDomain(ctx, domain, "scan"); err != nil {
		return Summary{}, err
	}
	if err := s.upsertSubdomains(ctx, domain, subdomains); err != nil {
		return Summary{}, err
	}

	services, err := s.prober.Probe(ctx, subdomains)
	if err != nil {
		return Summary{}, err
	}

	scored, err := s.scoreAndStore(ctx, services)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Domain:       domain,
		Subdomains:   len(subdomains),
		LiveServices: len(services),
		Scored:       scored,
		Duration:     time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("scan.subdomains", summary.Subdomains),
		attribute.Int("scan.live_services", summary.LiveServices),
	)
	s.logger.Info("scan finished",
		"domain", domain,
		"subdomains", summary.Subdomains,
		"live_services", summary.LiveServices,
		"scored", summary.Scored,
		"duration", summary.Duration)
	return summary, nil
}

// Rescore derives scores for services that do not have one yet and writes
// them back. Scores are derived state; this can run at any time.
func (s *Scanner) Rescore(ctx context.Context) (int, error) {
	services, err := s.store.UnscoredServices(ctx)
	if err != nil {
		return 0, err
	}

	var updated atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, svc := range services {
		g.Go(func() error {
			result := s.engine.Score(scoring.Attributes{
				URL:          svc.URL,
				Scheme:       svc.Scheme,
				StatusCode:   svc.StatusCode,
				Title:        svc.Title,
				Server:       svc.Server,
				Technologies: svc.Technologies,
			})
			found, err := s.store.UpdateRiskScore(ctx, svc.URL, result)
			if err != nil {
				return err
			}
			if found {
				updated.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(updated.Load()), err
	}
	s.logger.Info("rescore pass finished", "updated", updated.Load())
	return int(updated.Load()), nil
}

// upsertSubdomains writes subdomain nodes with bounded parallelism.
func (s *Scanner) upsertSubdomains(ctx context.Context, domain string, subdomains []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, fqdn := range subdomains {
		g.Go(func() error {
			return s.store.UpsertSubdomain(ctx, fqdn, domain)
		})
	}
	return g.Wait()
}

// scoreAndStore scores each probed service and upserts it under its
// subdomain. Services whose host could not be determined are skipped.
func (s *Scanner) scoreAndStore(ctx context.Context, services []collector.Service) (int, error) {
	var scored atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, svc := range services {
		if svc.Host == "" {
			s.logger.Warn("skipping service without a host", "url", svc.URL)
			continue
		}

		g.Go(func() error {
			result := s.engine.Score(scoring.Attributes{
				URL:          svc.URL,
				StatusCode:   svc.StatusCode,
				Title:        svc.Title,
				Server:       svc.WebServer,
				Technologies: svc.Technologies,
			})

			node := graph.WebService{
				URL:          svc.URL,
				StatusCode:   svc.StatusCode,
				Title:        svc.Title,
				Server:       svc.WebServer,
				Technologies: svc.Technologies,
				RiskScore:    &result.Score,
				RiskFactors:  result.Factors,
			}
			if err := s.store.UpsertWebService(ctx, node, svc.Host); err != nil {
				return err
			}
			scored.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(scored.Load()), err
	}
	return int(scored.Load()), nil
}

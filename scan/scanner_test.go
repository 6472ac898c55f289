package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/collector"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/scoring"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnumerator struct {
	subdomains []string
	err        error
	calls      int
}

func (f *fakeEnumerator) Discover(ctx context.Context, domain string) ([]string, error) {
	f.calls++
	return f.subdomains, f.err
}

type fakeProber struct {
	services []collector.Service
	err      error
	calls    int
	gotHosts []string
}

func (f *fakeProber) Probe(ctx context.Context, hosts []string) ([]collector.Service, error) {
	f.calls++
	f.gotHosts = hosts
	return f.services, f.err
}

// fakeGraphWriter records upserts; methods are called concurrently.
type fakeGraphWriter struct {
	mu         sync.Mutex
	domains    []string
	subdomains map[string]string // fqdn -> parent
	services   map[string]graph.WebService
	hosts      map[string]string // url -> subdomain fqdn
	rescored   map[string]scoring.Result
	unscored   []graph.WebService
	upsertErr  error
}

func newFakeGraphWriter() *fakeGraphWriter {
	return &fakeGraphWriter{
		subdomains: make(map[string]string),
		services:   make(map[string]graph.WebService),
		hosts:      make(map[string]string),
		rescored:   make(map[string]scoring.Result),
	}
}

func (f *fakeGraphWriter) UpsertDomain(ctx context.Context, name, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains = append(f.domains, name)
	return nil
}

func (f *fakeGraphWriter) UpsertSubdomain(ctx context.Context, fqdn, parentDomain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subdomains[fqdn] = parentDomain
	return nil
}

func (f *fakeGraphWriter) UpsertWebService(ctx context.Context, svc graph.WebService, subdomainFQDN string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.services[svc.URL] = svc
	f.hosts[svc.URL] = subdomainFQDN
	return nil
}

func (f *fakeGraphWriter) UpdateRiskScore(ctx context.Context, url string, result scoring.Result) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescored[url] = result
	return true, nil
}

func (f *fakeGraphWriter) UnscoredServices(ctx context.Context) ([]graph.WebService, error) {
	return f.unscored, nil
}

func (f *fakeGraphWriter) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.domains) + len(f.subdomains) + len(f.services)
}

// demoAssets is the seed fixture used across pipeline tests: one domain with
// a mix of production, staging, and dead services.
func demoAssets() ([]string, []collector.Service) {
	subdomains := []string{"www.example.com", "api.example.com", "staging.example.com"}
	services := []collector.Service{
		{URL: "https://www.example.com", Host: "www.example.com", StatusCode: 200,
			Title: "Example", WebServer: "nginx/1.24.0"},
		{URL: "https://api.example.com", Host: "api.example.com", StatusCode: 200,
			WebServer: "nginx/1.24.0", Technologies: []string{"Go"}},
		{URL: "http://staging.example.com", Host: "staging.example.com", StatusCode: 200,
			WebServer: "nginx/1.18.0", Technologies: []string{"PHP/5.6"}},
	}
	return subdomains, services
}

func newTestScanner(t *testing.T, enum *fakeEnumerator, prober *fakeProber, store *fakeGraphWriter) *Scanner {
	t.Helper()
	s, err := New(Config{
		Enumerator: enum,
		Prober:     prober,
		Store:      store,
		Scope:      NewScope([]string{"example.com"}),
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	return s
}

func TestScanPipeline(t *testing.T) {
	subdomains, services := demoAssets()
	enum := &fakeEnumerator{subdomains: subdomains}
	prober := &fakeProber{services: services}
	store := newFakeGraphWriter()

	s := newTestScanner(t, enum, prober, store)

	summary, err := s.Scan(context.Background(), "Example.com")
	require.NoError(t, err)

	assert.Equal(t, "example.com", summary.Domain)
	assert.Equal(t, 3, summary.Subdomains)
	assert.Equal(t, 3, summary.LiveServices)
	assert.Equal(t, 3, summary.Scored)

	assert.Equal(t, []string{"example.com"}, store.domains)
	assert.Equal(t, "example.com", store.subdomains["api.example.com"])
	assert.Equal(t, subdomains, prober.gotHosts)

	// Every stored service carries a derived score and its factors.
	staging := store.services["http://staging.example.com"]
	require.NotNil(t, staging.RiskScore)
	assert.Equal(t, 100, *staging.RiskScore)
	assert.NotEmpty(t, staging.RiskFactors)
	assert.Equal(t, "staging.example.com", store.hosts["http://staging.example.com"])

	www := store.services["https://www.example.com"]
	require.NotNil(t, www.RiskScore)
	assert.Equal(t, 60, *www.RiskScore)
}

func TestScanUnauthorizedTargetTouchesNothing(t *testing.T) {
	enum := &fakeEnumerator{subdomains: []string{"a.evil.com"}}
	prober := &fakeProber{}
	store := newFakeGraphWriter()

	s := newTestScanner(t, enum, prober, store)

	_, err := s.Scan(context.Background(), "evil.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exposuregraph.ErrUnauthorizedTarget))

	assert.Zero(t, enum.calls, "enumerator must not run for unauthorized targets")
	assert.Zero(t, prober.calls, "prober must not run for unauthorized targets")
	assert.Zero(t, store.writeCount(), "graph must not be written for unauthorized targets")
}

func TestScanEnumerationFailureStopsPipeline(t *testing.T) {
	enum := &fakeEnumerator{err: exposuregraph.NewExecutionError("Subfinder.Discover", errors.New("boom"))}
	prober := &fakeProber{}
	store := newFakeGraphWriter()

	s := newTestScanner(t, enum, prober, store)

	_, err := s.Scan(context.Background(), "example.com")
	require.Error(t, err)
	assert.Zero(t, prober.calls)
	assert.Zero(t, store.writeCount())
}

func TestScanSkipsServicesWithoutHost(t *testing.T) {
	enum := &fakeEnumerator{subdomains: []string{"www.example.com"}}
	prober := &fakeProber{services: []collector.Service{
		{URL: "https://www.example.com", Host: "www.example.com", StatusCode: 200},
		{URL: "https://orphan.example.com", StatusCode: 200},
	}}
	store := newFakeGraphWriter()

	s := newTestScanner(t, enum, prober, store)

	summary, err := s.Scan(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scored)
	assert.NotContains(t, store.services, "https://orphan.example.com")
}

func TestScanUpsertFailurePropagates(t *testing.T) {
	subdomains, services := demoAssets()
	enum := &fakeEnumerator{subdomains: subdomains}
	prober := &fakeProber{services: services}
	store := newFakeGraphWriter()
	store.upsertErr = exposuregraph.NewExecutionError("Store.UpsertWebService", errors.New("db down"))

	s := newTestScanner(t, enum, prober, store)

	_, err := s.Scan(context.Background(), "example.com")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindExecution, exposuregraph.KindOf(err))
}

func TestRescore(t *testing.T) {
	store := newFakeGraphWriter()
	store.unscored = []graph.WebService{
		{URL: "http://staging.example.com", StatusCode: 200,
			Server: "nginx/1.18.0", Scheme: "http"},
		{URL: "https://www.example.com", StatusCode: 200, Scheme: "https"},
	}

	s := newTestScanner(t, &fakeEnumerator{}, &fakeProber{}, store)

	updated, err := s.Rescore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	assert.Equal(t, 90, store.rescored["http://staging.example.com"].Score)
	assert.Equal(t, 50, store.rescored["https://www.example.com"].Score)
}

func TestNewValidation(t *testing.T) {
	store := newFakeGraphWriter()

	_, err := New(Config{Prober: &fakeProber{}, Store: store})
	assert.Error(t, err)

	_, err = New(Config{Enumerator: &fakeEnumerator{}, Store: store})
	assert.Error(t, err)

	_, err = New(Config{Enumerator: &fakeEnumerator{}, Prober: &fakeProber{}})
	assert.Error(t, err)
}

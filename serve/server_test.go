package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposure-graph/exposuregraph/gateway"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/guard"
	"github.com/exposure-graph/exposuregraph/scoring"
)

func intPtr(n int) *int { return &n }

// stubStore is the minimal gateway.AssetStore for transport tests.
type stubStore struct {
	services []graph.WebService
	rows     []map[string]any
}

func (s *stubStore) Stats(ctx context.Context) (graph.Stats, error) {
	return graph.Stats{Domains: 1, Subdomains: 2, WebServices: len(s.services)}, nil
}

func (s *stubStore) WebServicesByRisk(ctx context.Context, minScore, limit int, domain string) ([]graph.WebService, error) {
	return s.services, nil
}

func (s *stubStore) SubdomainsForDomain(ctx context.Context, domainName string) ([]graph.Subdomain, error) {
	return []graph.Subdomain{{FQDN: "api.example.com"}}, nil
}

func (s *stubStore) ServicesForSubdomain(ctx context.Context, fqdn string) ([]graph.WebService, error) {
	return s.services, nil
}

func (s *stubStore) RunRead(ctx context.Context, cypher string, params map[string]any, rowCap int, timeout time.Duration) ([]map[string]any, error) {
	return s.rows, nil
}

// roundTrip feeds newline-delimited requests to a server and decodes the
// responses it writes.
func roundTrip(t *testing.T, requests ...string) []map[string]any {
	t.Helper()

	store := &stubStore{
		services: []graph.WebService{
			{URL: "http://staging.example.com", StatusCode: 200, RiskScore: intPtr(80),
				RiskFactors: []scoring.Factor{{Name: "Base Exposure", Points: 20, Rationale: "exposed"}}},
		},
		rows: []map[string]any{{"total": float64(2)}},
	}
	gw, err := gateway.New(gateway.Config{Store: store, Guard: guard.New(10, time.Second)})
	require.NoError(t, err)

	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer

	srv, err := NewServer(gw,
		WithStreams(in, &out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	require.NoError(t, srv.Run(context.Background()))

	var responses []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func result(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	require.Nil(t, resp["error"], "unexpected rpc error: %v", resp["error"])
	r, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	return r
}

func toolText(t *testing.T, resp map[string]any) (string, bool) {
	t.Helper()
	r := result(t, resp)
	content := r["content"].([]any)
	first := content[0].(map[string]any)
	return first["text"].(string), r["isError"].(bool)
}

func TestInitialize(t *testing.T) {
	responses := roundTrip(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Len(t, responses, 1)

	r := result(t, responses[0])
	assert.Equal(t, protocolVersion, r["protocolVersion"])
	info := r["serverInfo"].(map[string]any)
	assert.Equal(t, "exposuregraph", info["name"])
}

func TestToolsList(t *testing.T) {
	responses := roundTrip(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Len(t, responses, 1)

	r := result(t, responses[0])
	tools := r["tools"].([]any)
	assert.Len(t, tools, 7)
}

func TestToolsCall(t *testing.T) {
	responses := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_risky_assets","arguments":{"limit":5}}}`)
	require.Len(t, responses, 1)

	text, isError := toolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "http://staging.example.com")
	assert.Contains(t, text, `"risk_level": "critical"`)
}

func TestToolsCallReportIsPlainText(t *testing.T) {
	responses := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate_risk_report","arguments":{}}}`)

	text, isError := toolText(t, responses[0])
	assert.False(t, isError)
	assert.True(t, strings.HasPrefix(text, "# ExposureGraph Risk Report"))
}

func TestToolsCallRejectionIsResultNotProtocolError(t *testing.T) {
	responses := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_cypher_query","arguments":{"cypher":"MATCH (n) DELETE n"}}}`)
	require.Len(t, responses, 1)

	text, isError := toolText(t, responses[0])
	assert.True(t, isError)
	assert.Contains(t, text, `"kind": "validation"`)
	assert.Contains(t, text, "DELETE")
}

func TestToolsCallUnknownTool(t *testing.T) {
	responses := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`)
	require.Len(t, responses, 1)

	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(codeMethodNotFound), rpcErr["code"])
}

func TestResourcesListAndRead(t *testing.T) {
	responses := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"exposuregraph://schema"}}`)
	require.Len(t, responses, 2)

	list := result(t, responses[0])
	assert.Len(t, list["resources"].([]any), 2)

	read := result(t, responses[1])
	contents := read["contents"].([]any)
	first := contents[0].(map[string]any)
	assert.Equal(t, "exposuregraph://schema", first["uri"])
	assert.Contains(t, first["text"].(string), "HAS_SUBDOMAIN")
}

func TestUnknownMethod(t *testing.T) {
	responses := roundTrip(t, `{"jsonrpc":"2.0","id":1,"method":"shutdown/now"}`)
	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(codeMethodNotFound), rpcErr["code"])
}

func TestParseError(t *testing.T) {
	responses := roundTrip(t, `{this is not json`)
	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(codeParseError), rpcErr["code"])
}

func TestNotificationGetsNoResponse(t *testing.T) {
	responses := roundTrip(t,
		`{"jsonrpc":"2.0","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":9,"method":"ping"}`)

	// Only the ping (which has an ID) is answered.
	require.Len(t, responses, 1)
	assert.Equal(t, float64(9), responses[0]["id"])
}

func TestNewServerRequiresGateway(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockCypherSystem = "You are a Neo4j Cypher expert."
const mockSummarySystem = "Summarize these query results."

func TestMockCypherResponses(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "risk question",
			prompt: "What are the riskiest services?",
			want:   "MATCH (w:WebService) RETURN w.url, w.risk_score ORDER BY w.risk_score DESC LIMIT 5",
		},
		{
			name:   "subdomain question",
			prompt: "List all subdomains",
			want:   "MATCH (s:Subdomain) RETURN s.fqdn LIMIT 10",
		},
		{
			name:   "count question",
			prompt: "How many assets do we have?",
			want:   "MATCH (n) RETURN labels(n)[0] as type, count(n) as count",
		},
		{
			name:   "fallback",
			prompt: "Show me the web services",
			want:   "MATCH (w:WebService) RETURN w.url, w.risk_score LIMIT 5",
		},
	}

	mock := NewMock()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mock.Complete(context.Background(), mockCypherSystem, tt.prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMockDeterminism(t *testing.T) {
	mock := NewMock()

	first, err := mock.Complete(context.Background(), mockCypherSystem, "riskiest services?")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := mock.Complete(context.Background(), mockCypherSystem, "riskiest services?")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMockSummaryResponse(t *testing.T) {
	mock := NewMock()
	got, err := mock.Complete(context.Background(), mockSummarySystem, "rows: ...")
	require.NoError(t, err)
	assert.True(t, strings.Contains(got, "risk scores"))
}

func TestMockGenericResponse(t *testing.T) {
	mock := NewMock()
	got, err := mock.Complete(context.Background(), "", "hello there")
	require.NoError(t, err)
	assert.Contains(t, got, "hello there")
}

func TestMockHonorsCanceledContext(t *testing.T) {
	mock := NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Complete(ctx, mockCypherSystem, "anything")
	assert.Error(t, err)
}

func TestMockCheckConnection(t *testing.T) {
	mock := NewMock()
	assert.NoError(t, mock.CheckConnection(context.Background()))
	assert.Equal(t, "mock", mock.Model())
}

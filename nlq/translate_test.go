package nlq

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/llm"
)

func TestExtractCypher(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare query",
			response: "MATCH (d:Domain) RETURN d.name AS domain",
			want:     "MATCH (d:Domain) RETURN d.name AS domain",
		},
		{
			name:     "fenced with tag",
			response: "Here you go:\n```cypher\nMATCH (s:Subdomain) RETURN s.fqdn\n```\nHope that helps!",
			want:     "MATCH (s:Subdomain) RETURN s.fqdn",
		},
		{
			name:     "fenced without tag",
			response: "```\nMATCH (w:WebService) RETURN w.url LIMIT 5\n```",
			want:     "MATCH (w:WebService) RETURN w.url LIMIT 5",
		},
		{
			name:     "prose before query",
			response: "Sure, this query finds them:\nMATCH (w:WebService)\nWHERE w.risk_score >= 70\nRETURN w.url AS url\nThis will list the services.",
			want:     "MATCH (w:WebService) WHERE w.risk_score >= 70 RETURN w.url AS url",
		},
		{
			name:     "multiline clauses joined",
			response: "MATCH (d:Domain)-[:HAS_SUBDOMAIN]->(s:Subdomain)\nRETURN d.name, s.fqdn\nORDER BY d.name",
			want:     "MATCH (d:Domain)-[:HAS_SUBDOMAIN]->(s:Subdomain) RETURN d.name, s.fqdn ORDER BY d.name",
		},
		{
			name:     "no match keyword falls back to whole response",
			response: "  RETURN 1  ",
			want:     "RETURN 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCypher(tt.response))
		})
	}
}

func TestModelStrategyTranslate(t *testing.T) {
	strategy := NewModelStrategy(llm.NewMock())

	cypher, err := strategy.Translate(context.Background(), "What are the riskiest services?", "")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (w:WebService) RETURN w.url, w.risk_score ORDER BY w.risk_score DESC LIMIT 5", cypher)
	assert.Equal(t, "model:mock", strategy.Name())
}

type failingClient struct{ err error }

func (c *failingClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	return "", c.err
}
func (c *failingClient) CheckConnection(ctx context.Context) error { return c.err }
func (c *failingClient) Model() string                             { return "failing" }

func TestModelStrategyWrapsClientError(t *testing.T) {
	strategy := NewModelStrategy(&failingClient{err: errors.New("connection refused")})

	_, err := strategy.Translate(context.Background(), "anything", "")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindTranslation, exposuregraph.KindOf(err))
}

func TestStaticStrategyCanonicalQuestions(t *testing.T) {
	strategy := NewStaticStrategy()

	tests := []struct {
		question string
		want     string
	}{
		{
			question: "List all domains",
			want:     "MATCH (d:Domain) RETURN d.name AS domain, d.source AS source ORDER BY d.name",
		},
		{
			question: "How many subdomains?",
			want:     "MATCH (s:Subdomain) RETURN count(s) AS total",
		},
		{
			question: `"What are the riskiest assets?"`,
			want:     "MATCH (w:WebService) RETURN w.url AS url, w.risk_score AS risk_score, w.risk_factors AS risk_factors ORDER BY w.risk_score DESC LIMIT 5",
		},
		{
			question: "What subdomains belong to example.com?",
			want:     "MATCH (d:Domain {name: 'example.com'})-[:HAS_SUBDOMAIN]->(s:Subdomain) RETURN s.fqdn AS subdomain ORDER BY s.fqdn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := strategy.Translate(context.Background(), tt.question, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCypherPromptEmbedsGraphSchema(t *testing.T) {
	assert.Contains(t, cypherSystemPrompt, graph.SchemaSummary)
}

func TestCanonicalTableCoversPromptExamples(t *testing.T) {
	re := regexp.MustCompile(`(?m)^Q: "(.+)"$`)
	matches := re.FindAllStringSubmatch(cypherSystemPrompt, -1)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		_, ok := canonicalQueries[normalizeQuestion(m[1])]
		assert.True(t, ok, "no canonical query for prompt example %q", m[1])
	}
}

func TestStaticStrategyByteIdentical(t *testing.T) {
	strategy := NewStaticStrategy()

	first, err := strategy.Translate(context.Background(), "show me something about risk", "")
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		again, err := strategy.Translate(context.Background(), "show me something about risk", "")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestStaticStrategyIgnoresFeedback(t *testing.T) {
	strategy := NewStaticStrategy()

	plain, err := strategy.Translate(context.Background(), "list all domains", "")
	require.NoError(t, err)
	withFeedback, err := strategy.Translate(context.Background(), "list all domains", "previous candidate rejected")
	require.NoError(t, err)
	assert.Equal(t, plain, withFeedback)
}

package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mock is a deterministic Client for running the pipeline without a model
// server. Responses depend only on the system and user prompt text: cypher
// contexts get canned read queries keyed on question keywords, summary
// contexts get a fixed narrative. Identical inputs always produce identical
// outputs.
type Mock struct{}

// NewMock creates a mock completion client.
func NewMock() *Mock {
	return &Mock{}
}

// Model identifies the mock backend.
func (m *Mock) Model() string {
	return "mock"
}

// CheckConnection always succeeds; there is nothing to connect to.
func (m *Mock) CheckConnection(ctx context.Context) error {
	return nil
}

// Complete returns a canned response chosen by prompt keywords.
func (m *Mock) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	promptLower := strings.ToLower(prompt)
	systemLower := strings.ToLower(system)

	if strings.Contains(systemLower, "cypher") {
		switch {
		case strings.Contains(promptLower, "riskiest") || strings.Contains(promptLower, "risk"):
			return "MATCH (w:WebService) RETURN w.url, w.risk_score ORDER BY w.risk_score DESC LIMIT 5", nil
		case strings.Contains(promptLower, "subdomain"):
			return "MATCH (s:Subdomain) RETURN s.fqdn LIMIT 10", nil
		case strings.Contains(promptLower, "count") || strings.Contains(promptLower, "how many"):
			return "MATCH (n) RETURN labels(n)[0] as type, count(n) as count", nil
		default:
			return "MATCH (w:WebService) RETURN w.url, w.risk_score LIMIT 5", nil
		}
	}

	if strings.Contains(systemLower, "summarize") {
		return "Based on the query results, there are several web services " +
			"in the graph with varying risk scores. The highest risk " +
			"services should be prioritized for security review.", nil
	}

	return fmt.Sprintf("[mock response for: %.50s]", prompt), nil
}

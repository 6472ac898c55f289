package gateway

import (
	"context"
	"fmt"
	"strings"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// Descriptor describes one catalogue operation to external agents.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Descriptors returns the closed operation catalogue. Agents cannot invoke
// anything that is not listed here.
func (g *Gateway) Descriptors() []Descriptor {
	return []Descriptor{
		{
			Name: "get_risk_overview",
			Description: "Get dashboard-level statistics about the attack surface: " +
				"risk distribution, asset counts, and average risk score.",
			InputSchema: objectSchema(nil, nil),
		},
		{
			Name: "get_risky_assets",
			Description: "Get the riskiest web services, sorted by risk score descending, " +
				"including URL, score, server header, and risk factors.",
			InputSchema: objectSchema(map[string]any{
				"min_score":     prop("integer", "Minimum risk score to include (0-100). Default 0."),
				"limit":         prop("integer", "Maximum number of results. Default 10, max 100."),
				"domain":        prop("string", "Restrict to services whose URL contains this domain."),
				"non_prod_only": prop("boolean", "Keep only services on non-production URLs."),
			}, nil),
		},
		{
			Name:        "get_assets_for_domain",
			Description: "Get all subdomains and their web services for a given domain.",
			InputSchema: objectSchema(map[string]any{
				"domain_name": prop("string", `The domain to look up (e.g. "acme-corp.com").`),
			}, []string{"domain_name"}),
		},
		{
			Name: "calculate_risk_score",
			Description: "Calculate a what-if risk score for a hypothetical or real web service. " +
				"Nothing is persisted.",
			InputSchema: objectSchema(map[string]any{
				"url":          prop("string", "The URL of the web service."),
				"status_code":  prop("integer", "HTTP status code (e.g. 200, 404)."),
				"server":       prop("string", `Server header value (e.g. "nginx/1.18.0").`),
				"title":        prop("string", "HTML page title."),
				"technologies": prop("string", `Comma-separated technologies (e.g. "PHP/5.6,jQuery/1.12").`),
			}, []string{"url", "status_code"}),
		},
		{
			Name: "run_cypher_query",
			Description: "Execute a read-only Cypher query against the asset graph. " +
				"Write operations are blocked; a missing LIMIT is bounded automatically.",
			InputSchema: objectSchema(map[string]any{
				"cypher": prop("string", "The Cypher query string."),
			}, []string{"cypher"}),
		},
		{
			Name: "query_graph",
			Description: "Ask a natural-language question about the asset graph. The question " +
				"is translated to a guarded query, executed, and summarized.",
			InputSchema: objectSchema(map[string]any{
				"question": prop("string", `A natural-language question (e.g. "What are our riskiest assets?").`),
			}, []string{"question"}),
		},
		{
			Name:        "generate_risk_report",
			Description: "Generate a markdown risk report from the asset graph.",
			InputSchema: objectSchema(map[string]any{
				"format":    prop("string", `"executive" for a high-level summary, "technical" for detailed findings. Default "executive".`),
				"framework": prop("string", `Compliance framework context: "general", "nist", or "cis". Default "general".`),
			}, nil),
		},
	}
}

// Call dispatches a catalogue operation by name with loosely-typed
// arguments, as they arrive from the transport layer. Unknown names return
// a not_found error wrapping ErrToolNotFound.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "get_risk_overview":
		return g.Overview(ctx)

	case "get_risky_assets":
		return g.TopRisky(ctx, TopRiskyInput{
			MinScore:    intArg(args, "min_score", 0),
			Limit:       intArg(args, "limit", 0),
			Domain:      stringArg(args, "domain"),
			NonProdOnly: boolArg(args, "non_prod_only"),
		})

	case "get_assets_for_domain":
		return g.AssetsForDomain(ctx, stringArg(args, "domain_name"))

	case "calculate_risk_score":
		return g.WhatIfScore(ctx, WhatIfInput{
			URL:          stringArg(args, "url"),
			StatusCode:   intArg(args, "status_code", 0),
			Server:       stringArg(args, "server"),
			Title:        stringArg(args, "title"),
			Technologies: splitCSV(stringArg(args, "technologies")),
		})

	case "run_cypher_query":
		return g.RawQuery(ctx, stringArg(args, "cypher"))

	case "query_graph":
		return g.Ask(ctx, stringArg(args, "question"))

	case "generate_risk_report":
		return g.Report(ctx, ReportInput{
			Format:    stringArg(args, "format"),
			Framework: stringArg(args, "framework"),
		})

	default:
		return nil, exposuregraph.NewNotFoundError("Gateway.Call",
			fmt.Errorf("%w: %q", exposuregraph.ErrToolNotFound, name))
	}
}

func objectSchema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func stringArg(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

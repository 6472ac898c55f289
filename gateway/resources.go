package gateway

import (
	"fmt"
	"strings"

	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/scoring"
)

// Resource is a static document agents can read for self-discovery.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType"`
	Text        string `json:"-"`
}

// Resource URIs.
const (
	SchemaResourceURI       = "exposuregraph://schema"
	ScoringModelResourceURI = "exposuregraph://scoring-model"
)

// Resources returns the static resource documents: the graph schema and the
// scoring model. Both are generated from the same constants the code runs
// on, so they cannot drift from behavior.
func (g *Gateway) Resources() []Resource {
	return []Resource{
		{
			URI:         SchemaResourceURI,
			Name:        "Graph Schema",
			Description: "Node types, properties, and relationships of the asset graph.",
			MIMEType:    "text/markdown",
			Text:        graph.SchemaDocument,
		},
		{
			URI:         ScoringModelResourceURI,
			Name:        "Risk Scoring Model",
			Description: "How risk scores are calculated: base score, factors, levels.",
			MIMEType:    "text/markdown",
			Text:        scoringModelDocument(),
		},
	}
}

// ReadResource returns the text of one resource by URI, or false when the
// URI is not in the catalogue.
func (g *Gateway) ReadResource(uri string) (Resource, bool) {
	for _, r := range g.Resources() {
		if r.URI == uri {
			return r, true
		}
	}
	return Resource{}, false
}

// scoringModelDocument renders the scoring rule table as markdown.
func scoringModelDocument() string {
	var b strings.Builder

	b.WriteString("# ExposureGraph Risk Scoring Model\n\n")
	b.WriteString("## Overview\n\n")
	b.WriteString("Risk scores range from 0 to 100. Every exposed service starts with a\n")
	b.WriteString("base score and accumulates points from observable risk indicators.\n")
	b.WriteString("The model is fully transparent: every score includes the contributing\n")
	b.WriteString("factors and their explanations.\n\n")

	fmt.Fprintf(&b, "## Base Score: %d points\n\n", scoring.BaseScore)
	b.WriteString("Every internet-facing service has inherent risk from being exposed.\n\n")

	b.WriteString("## Risk Factors\n\n")
	b.WriteString("| Factor | Points | Condition |\n|--------|--------|-----------|\n")
	fmt.Fprintf(&b, "| Live Service | +30 | HTTP status code is 200 |\n")
	fmt.Fprintf(&b, "| Non-Production Exposed | +15 | URL contains %s |\n",
		strings.Join(scoring.NonProductionIndicators(), ", "))
	fmt.Fprintf(&b, "| Version Disclosure | +10 | Server header contains a version number (e.g. nginx/1.18.0) |\n")
	fmt.Fprintf(&b, "| Outdated Technology | +20 | Server or technologies match known EOL software |\n")
	fmt.Fprintf(&b, "| No HTTPS | +15 | URL scheme is not https |\n")
	fmt.Fprintf(&b, "| Directory Listing | +10 | Page title contains \"Index of\" |\n\n")

	fmt.Fprintf(&b, "## Maximum Score: %d\n\n", scoring.MaxScore)
	b.WriteString("Scores are capped even if factors sum higher.\n\n")

	b.WriteString("## Risk Levels\n\n")
	b.WriteString("| Level | Score Range |\n|-------|-------------|\n")
	b.WriteString("| Critical | 80-100 |\n| High | 60-79 |\n| Medium | 40-59 |\n| Low | 0-39 |\n\n")

	b.WriteString("## Outdated Technology Database\n\n")
	b.WriteString("| Signature | Reason |\n|-----------|--------|\n")
	for _, sig := range scoring.EOLSignatures() {
		fmt.Fprintf(&b, "| %s | %s |\n", sig.Pattern, sig.Reason)
	}
	b.WriteString("\n")

	b.WriteString("## Example\n\n")
	b.WriteString("A service at http://staging.example.com returning 200 with server\n")
	b.WriteString("header \"nginx/1.0.5\" would score:\n")
	b.WriteString("- Base: 20\n- Live Service: +30\n- Non-Production Exposed: +15\n")
	b.WriteString("- Version Disclosure: +10\n- Outdated Technology: +20 (nginx/1.0)\n- No HTTPS: +15\n")
	b.WriteString("- **Total: 100** (capped from 110)\n")

	return b.String()
}

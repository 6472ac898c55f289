package gateway

import (
	"context"
	"fmt"
	"strings"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/scoring"
)

// Report formats.
const (
	ReportExecutive = "executive"
	ReportTechnical = "technical"
)

// criticalFindingsLimit caps how many critical assets a report names.
const criticalFindingsLimit = 5

// technicalTableLimit caps the per-service table in technical reports.
const technicalTableLimit = 25

// frameworkLabels maps framework identifiers to report headings.
var frameworkLabels = map[string]string{
	"general": "General Security Assessment",
	"nist":    "NIST Cybersecurity Framework",
	"cis":     "CIS Controls v8",
}

// ReportInput selects the report rendering.
type ReportInput struct {
	// Format is "executive" or "technical". Defaults to executive.
	Format string `json:"format,omitempty"`

	// Framework is "general", "nist", or "cis". Defaults to general.
	Framework string `json:"framework,omitempty"`
}

// Report renders a markdown risk report over the current graph.
//
// The executive format stays at the level of counts and asset names; factor
// detail and query text belong to the technical format only.
func (g *Gateway) Report(ctx context.Context, in ReportInput) (string, error) {
	const op = "Gateway.Report"

	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" {
		format = ReportExecutive
	}
	if format != ReportExecutive && format != ReportTechnical {
		return "", exposuregraph.NewValidationError(op,
			fmt.Errorf("format %q is not one of executive, technical", in.Format))
	}

	framework := strings.ToLower(strings.TrimSpace(in.Framework))
	if framework == "" {
		framework = "general"
	}
	frameworkLabel, ok := frameworkLabels[framework]
	if !ok {
		return "", exposuregraph.NewValidationError(op,
			fmt.Errorf("framework %q is not one of general, nist, cis", in.Framework))
	}

	stats, err := g.store.Stats(ctx)
	if err != nil {
		return "", err
	}
	services, err := g.store.WebServicesByRisk(ctx, 0, overviewScanLimit, "")
	if err != nil {
		return "", err
	}

	distribution := map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0}
	var critical, scored []graph.WebService
	total := 0
	for _, svc := range services {
		if svc.RiskScore == nil {
			continue
		}
		level := scoring.Level(*svc.RiskScore)
		distribution[level]++
		total += *svc.RiskScore
		scored = append(scored, svc)
		if level == "critical" {
			critical = append(critical, svc)
		}
	}

	avg := 0.0
	if len(scored) > 0 {
		avg = round1(float64(total) / float64(len(scored)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# ExposureGraph Risk Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", g.clock().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Framework:** %s\n", frameworkLabel)
	fmt.Fprintf(&b, "**Report Type:** %s\n\n", strings.ToUpper(format[:1])+format[1:])
	b.WriteString("---\n\n")

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "The attack surface consists of **%d domains**, **%d subdomains**, and **%d web services**.\n\n",
		stats.Domains, stats.Subdomains, stats.WebServices)
	fmt.Fprintf(&b, "**Average Risk Score:** %.1f/100\n\n", avg)

	b.WriteString("### Risk Distribution\n\n")
	b.WriteString("| Level | Count |\n|-------|-------|\n")
	fmt.Fprintf(&b, "| Critical (80-100) | %d |\n", distribution["critical"])
	fmt.Fprintf(&b, "| High (60-79) | %d |\n", distribution["high"])
	fmt.Fprintf(&b, "| Medium (40-59) | %d |\n", distribution["medium"])
	fmt.Fprintf(&b, "| Low (0-39) | %d |\n\n", distribution["low"])

	if len(critical) > 0 {
		b.WriteString("## Critical Findings\n\n")
		b.WriteString("The following assets require immediate attention:\n\n")
		for i, svc := range critical {
			if i == criticalFindingsLimit {
				break
			}
			if format == ReportTechnical && len(svc.RiskFactors) > 0 {
				names := make([]string, 0, len(svc.RiskFactors))
				for _, f := range svc.RiskFactors {
					names = append(names, f.Name)
				}
				fmt.Fprintf(&b, "- **%s** (Score: %d) — Factors: %s\n", svc.URL, *svc.RiskScore, strings.Join(names, ", "))
			} else {
				fmt.Fprintf(&b, "- **%s** (Score: %d)\n", svc.URL, *svc.RiskScore)
			}
		}
		b.WriteString("\n")
	}

	if format == ReportTechnical {
		b.WriteString("## Technical Details\n\n### All Scored Services\n\n")
		b.WriteString("| URL | Score | Level | Server |\n|-----|-------|-------|--------|\n")
		for i, svc := range scored {
			if i == technicalTableLimit {
				break
			}
			server := svc.Server
			if server == "" {
				server = "N/A"
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", svc.URL, *svc.RiskScore, scoring.Level(*svc.RiskScore), server)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	fmt.Fprintf(&b, "1. **Address Critical Assets First** — %d services scored 80+ and need immediate remediation.\n", distribution["critical"])
	b.WriteString("2. **Reduce Version Disclosure** — Remove version information from server headers.\n")
	b.WriteString("3. **Enforce HTTPS** — Migrate all HTTP services to HTTPS.\n")
	b.WriteString("4. **Decommission Non-Production** — Remove or restrict access to staging/dev environments exposed to the internet.\n\n")
	b.WriteString("---\n*Report generated by ExposureGraph*\n")

	return b.String(), nil
}

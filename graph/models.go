package graph

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/exposure-graph/exposuregraph/scoring"
)

// Node labels and relationship types in the asset graph.
// Domain -HAS_SUBDOMAIN-> Subdomain -HOSTS-> WebService forms a strict tree.
const (
	LabelDomain     = "Domain"
	LabelSubdomain  = "Subdomain"
	LabelWebService = "WebService"

	RelHasSubdomain = "HAS_SUBDOMAIN"
	RelHosts        = "HOSTS"
)

// Domain is a registrable root name being monitored (e.g. "acme-corp.com").
// Domains are created on first discovery of any subdomain beneath them and
// never deleted automatically.
type Domain struct {
	// Name is the domain name, the unique key.
	Name string `json:"name"`

	// Source records how the domain was discovered ("manual" or "scan").
	Source string `json:"source,omitempty"`

	// DiscoveredAt is when the domain was first added.
	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
}

// Subdomain is a fully-qualified domain name under exactly one Domain.
type Subdomain struct {
	// FQDN is the fully qualified domain name, the unique key.
	FQDN string `json:"fqdn"`

	// DiscoveredAt is when the subdomain was discovered.
	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
}

// WebService is an observed HTTP(S) endpoint hosted by exactly one Subdomain.
//
// RiskScore and RiskFactors are derived, recomputable state: they are written
// back by the scoring engine and are never an input to scoring itself.
type WebService struct {
	// URL is the full URL of the service, unique within its subdomain.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code observed.
	StatusCode int `json:"status_code"`

	// Title is the HTML page title, if any.
	Title string `json:"title,omitempty"`

	// Server is the Server response header value, if any.
	Server string `json:"server,omitempty"`

	// Technologies lists detected technologies.
	Technologies []string `json:"technologies,omitempty"`

	// Scheme is the URL scheme ("http" or "https").
	Scheme string `json:"scheme,omitempty"`

	// RiskScore is the derived risk score in [0,100]; nil when not yet scored.
	RiskScore *int `json:"risk_score,omitempty"`

	// RiskFactors is the derived, ordered factor list explaining RiskScore.
	RiskFactors []scoring.Factor `json:"risk_factors,omitempty"`

	// DiscoveredAt is when the service was discovered.
	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
}

// Attributes converts the stored service into the scoring engine's input.
// Derived fields (RiskScore, RiskFactors) deliberately do not participate.
func (w WebService) Attributes() scoring.Attributes {
	return scoring.Attributes{
		URL:          w.URL,
		Scheme:       w.Scheme,
		StatusCode:   w.StatusCode,
		Title:        w.Title,
		Server:       w.Server,
		Technologies: w.Technologies,
	}
}

// Scored reports whether the service has a persisted risk score.
func (w WebService) Scored() bool {
	return w.RiskScore != nil
}

// Stats holds node counts for the whole graph.
type Stats struct {
	Domains     int `json:"domains"`
	Subdomains  int `json:"subdomains"`
	WebServices int `json:"webservices"`
}

// SchemeOf extracts the scheme from a URL string, or "" when absent.
func SchemeOf(url string) string {
	idx := strings.Index(url, "://")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(url[:idx])
}

// marshalFactors encodes a factor list as the JSON string stored on the node.
func marshalFactors(factors []scoring.Factor) (string, error) {
	if len(factors) == 0 {
		return "", nil
	}
	data, err := json.Marshal(factors)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalFactors decodes the stored JSON string back into a factor list.
// Malformed or empty stored values decode to nil rather than failing a read.
func unmarshalFactors(raw string) []scoring.Factor {
	if raw == "" {
		return nil
	}
	var factors []scoring.Factor
	if err := json.Unmarshal([]byte(raw), &factors); err != nil {
		return nil
	}
	return factors
}

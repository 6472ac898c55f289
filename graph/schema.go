package graph

// SchemaSummary is the static description of the asset graph embedded in the
// query translator's prompt. It names node labels, relationship types, and
// property keys only; it contains no live data.
const SchemaSummary = `Nodes:
- (:Domain {name, source, discovered_at})
- (:Subdomain {fqdn, discovered_at})
- (:WebService {url, status_code, title, server, technologies, scheme, risk_score, risk_factors, discovered_at})

Relationships:
- (:Domain)-[:HAS_SUBDOMAIN]->(:Subdomain)
- (:Subdomain)-[:HOSTS]->(:WebService)

Notes:
- risk_score is an integer 0-100; risk_factors is a JSON string
- the three labels form a strict tree: every Subdomain has exactly one
  Domain, every WebService exactly one Subdomain`

// SchemaDocument is the long-form schema resource for agent self-discovery.
const SchemaDocument = `# ExposureGraph Schema

## Nodes

### Domain
Properties:
  - name: String (e.g. "acme-corp.com") — unique key
  - source: String ("manual" | "scan")
  - discovered_at: DateTime

### Subdomain
Properties:
  - fqdn: String (e.g. "api.acme-corp.com") — unique key
  - discovered_at: DateTime

### WebService
Properties:
  - url: String (e.g. "https://api.acme-corp.com") — unique key within a subdomain
  - status_code: Integer (e.g. 200, 404)
  - title: String (HTML page title)
  - server: String (e.g. "nginx/1.18.0")
  - technologies: List<String>
  - scheme: String ("http" | "https")
  - risk_score: Integer (0-100, derived)
  - risk_factors: String (JSON array of factor objects, derived)
  - discovered_at: DateTime

## Relationships

(:Domain)-[:HAS_SUBDOMAIN]->(:Subdomain)
(:Subdomain)-[:HOSTS]->(:WebService)

## Indexes

- domain_name: Domain.name
- subdomain_fqdn: Subdomain.fqdn
- webservice_url: WebService.url
- webservice_risk: WebService.risk_score
`

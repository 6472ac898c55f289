// Package exposuregraph maintains a graph-structured inventory of
// internet-facing assets and answers questions about it.
//
// The repository is organized as a set of focused packages around two cores:
// a deterministic, explainable risk scoring engine and a safety-gated
// natural-language query pipeline that turns free-form questions into
// validated, read-only graph queries.
//
//   - graph: adapter for the external graph store (Neo4j), with merge-by-key
//     upserts and bounded read execution
//   - graph/query: type-safe Cypher builder with parameterized predicates
//   - scoring: pure risk scoring over asset attributes with an ordered,
//     documented rule table
//   - guard: read-only allow-list validation applied to every query,
//     regardless of where it came from
//   - llm: language-model adapter with a live Ollama client and a
//     deterministic mock for offline operation
//   - nlq: question translation and the translate → validate → execute →
//     summarize pipeline
//   - gateway: the closed catalogue of typed operations exposed to external
//     agents and the dashboard
//   - serve: JSON-RPC over stdio transport for the gateway
//   - registry: etcd self-registration so agents can discover a running gateway
//   - queue: redis-backed distribution of scan jobs
//   - collector, scan: external collector wrappers and the allow-list gated
//     scan pipeline
//
// This root package holds the shared structured error type and its kinds;
// every stage returns an outcome tagged with a kind so callers can tell
// "I was not allowed to run that" apart from "the system failed while
// running it".
package exposuregraph

// Version is the module version reported to agents during the transport
// handshake and by the CLI.
const Version = "0.3.0"

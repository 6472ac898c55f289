// Package llm provides the completion client used by the query translator
// and the answer summarizer.
//
// Two implementations exist: Ollama talks to a local model server over HTTP,
// and Mock returns canned, deterministic responses so the whole pipeline can
// run without a model. Both satisfy Client.
package llm

import "context"

// Client generates text completions.
type Client interface {
	// Complete sends a system+user prompt pair and returns the model's text.
	Complete(ctx context.Context, system, prompt string) (string, error)

	// CheckConnection verifies the backing model is reachable and available.
	CheckConnection(ctx context.Context) error

	// Model returns the model identifier in use.
	Model() string
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "llama3.2"

// defaultCompletionTimeout bounds a single completion round trip. Local
// models can be slow on first load, so this is generous.
const defaultCompletionTimeout = 120 * time.Second

// OllamaConfig holds connection settings for a local Ollama server.
type OllamaConfig struct {
	// Host is the server base URL (e.g. "http://localhost:11434").
	Host string

	// Model is the model name, optionally with a tag (e.g. "llama3.2:3b").
	Model string

	// Timeout bounds each completion request. Zero means the default.
	Timeout time.Duration

	// Logger receives request lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Ollama is a Client backed by a local Ollama server's chat endpoint.
type Ollama struct {
	host   string
	model  string
	client *http.Client
	logger *slog.Logger
}

// NewOllama creates an Ollama client from the given configuration.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.Host == "" {
		return nil, exposuregraph.NewConfigurationError("llm.NewOllama",
			fmt.Errorf("%w: ollama host is required", exposuregraph.ErrInvalidConfig))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ollama{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string {
	return o.model
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// Complete sends one chat turn and returns the model's reply text.
func (o *Ollama) Complete(ctx context.Context, system, prompt string) (string, error) {
	const op = "Ollama.Complete"

	body, err := json.Marshal(chatRequest{
		Model:    o.model,
		Messages: Conversation(system, prompt),
		Stream:   false,
	})
	if err != nil {
		return "", exposuregraph.NewInternalError(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", exposuregraph.NewInternalError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug("sending completion request", "model", o.model, "prompt_bytes", len(prompt))

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", exposuregraph.NewTimeoutError(op, err)
		}
		return "", exposuregraph.NewNetworkError(op,
			fmt.Errorf("cannot reach ollama at %s: %w", o.host, err))
	}
	defer exposuregraph.CloseWithLog(resp.Body, o.logger, "ollama response body")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", exposuregraph.NewNetworkError(op, err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", exposuregraph.NewNetworkError(op, fmt.Errorf("malformed ollama response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(strings.ToLower(decoded.Error), "not found") {
			return "", exposuregraph.NewConfigurationError(op,
				fmt.Errorf("model %q not found, pull it with: ollama pull %s", o.model, o.model))
		}
		return "", exposuregraph.NewNetworkError(op,
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, decoded.Error))
	}

	content := decoded.Message.Content
	o.logger.Debug("received completion", "model", o.model, "response_bytes", len(content))
	return content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckConnection lists the server's models and verifies the configured
// model is present, tolerating tag variations ("llama3.2" matches
// "llama3.2:3b").
func (o *Ollama) CheckConnection(ctx context.Context) error {
	const op = "Ollama.CheckConnection"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return exposuregraph.NewInternalError(op, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return exposuregraph.NewNetworkError(op,
			fmt.Errorf("cannot reach ollama at %s: %w", o.host, err))
	}
	defer exposuregraph.CloseWithLog(resp.Body, o.logger, "ollama tags body")

	if resp.StatusCode != http.StatusOK {
		return exposuregraph.NewNetworkError(op,
			fmt.Errorf("ollama returned status %d", resp.StatusCode))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return exposuregraph.NewNetworkError(op, fmt.Errorf("malformed tags response: %w", err))
	}

	base, _, _ := strings.Cut(o.model, ":")
	for _, m := range tags.Models {
		if strings.Contains(m.Name, base) {
			o.logger.Info("ollama connection verified", "model", o.model)
			return nil
		}
	}

	return exposuregraph.NewConfigurationError(op,
		fmt.Errorf("model %q not found, pull it with: ollama pull %s", o.model, o.model))
}

// Package graph is the adapter for the external graph store.
//
// It wraps Neo4j's HTTP transaction API and owns nothing but connection
// lifecycle, merge-by-key upserts, and parameterized read execution with
// row-cap and timeout enforcement. Business logic lives elsewhere.
//
// Write methods are plain Go methods on the Store and are never reachable
// from query text: guarded traffic only ever flows through RunRead.
package graph

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

// Reader is the read-only surface of the store. The query executor and the
// gateway depend on this interface so tests can substitute a fake.
type Reader interface {
	// RunRead executes a single validated read statement with parameters,
	// returning at most rowCap rows within the given timeout.
	RunRead(ctx context.Context, cypher string, params map[string]any, rowCap int, timeout time.Duration) ([]map[string]any, error)
}

// Config holds connection settings for the graph store.
type Config struct {
	// URI is the HTTP endpoint of the store (e.g. "http://localhost:7474").
	URI string

	// Username and Password authenticate against the store. Password may be
	// empty for auth-disabled deployments.
	Username string
	Password string

	// Database is the target database name. Defaults to "neo4j".
	Database string

	// Logger receives connection lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a client for the asset graph. All methods are safe for
// concurrent use; upserts are idempotent merge-by-key operations, so
// concurrent writers for the same key converge to the same node.
type Store struct {
	baseURL  string
	username string
	password string
	database string
	client   *http.Client
	logger   *slog.Logger
}

// NewStore creates a graph store client from the given configuration.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, exposuregraph.NewConfigurationError("graph.NewStore",
			fmt.Errorf("%w: graph store URI is required", exposuregraph.ErrInvalidConfig))
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		baseURL:  strings.TrimRight(cfg.URI, "/"),
		username: cfg.Username,
		password: cfg.Password,
		database: database,
		client:   &http.Client{},
		logger:   logger,
	}, nil
}

// Ping verifies connectivity by running a trivial statement.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.run(ctx, "RETURN 1 AS ok", nil, 5*time.Second)
	return err
}

// Close releases the client's idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// RunRead executes a validated read statement. The row cap is enforced here
// as well as by the guard's LIMIT injection, so a caller always gets at most
// rowCap rows even if the underlying result set is larger.
func (s *Store) RunRead(ctx context.Context, cypher string, params map[string]any, rowCap int, timeout time.Duration) ([]map[string]any, error) {
	rows, err := s.run(ctx, cypher, params, timeout)
	if err != nil {
		return nil, err
	}
	if rowCap > 0 && len(rows) > rowCap {
		rows = rows[:rowCap]
	}
	return rows, nil
}

// txRequest and txResponse mirror the Neo4j HTTP transaction API payloads.
type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// run executes one statement in an auto-commit transaction and decodes the
// result rows into column-keyed maps.
func (s *Store) run(ctx context.Context, cypher string, params map[string]any, timeout time.Duration) ([]map[string]any, error) {
	const op = "Store.RunRead"

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: cypher, Parameters: params}},
	})
	if err != nil {
		return nil, exposuregraph.NewInternalError(op, err)
	}

	url := fmt.Sprintf("%s/db/%s/tx/commit", s.baseURL, s.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, exposuregraph.NewInternalError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, exposuregraph.NewTimeoutError(op, err)
		}
		return nil, exposuregraph.NewExecutionError(op,
			fmt.Errorf("%w: %v", exposuregraph.ErrStoreUnavailable, err))
	}
	defer exposuregraph.CloseWithLog(resp.Body, s.logger, "graph response body")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exposuregraph.NewExecutionError(op, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, exposuregraph.NewExecutionError(op,
			fmt.Errorf("graph store returned status %d", resp.StatusCode)).
			WithContext(map[string]any{"body": truncate(string(raw), 200)})
	}

	var decoded txResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, exposuregraph.NewExecutionError(op, fmt.Errorf("malformed store response: %w", err))
	}

	if len(decoded.Errors) > 0 {
		first := decoded.Errors[0]
		return nil, exposuregraph.NewExecutionError(op,
			fmt.Errorf("store fault %s: %s", first.Code, first.Message))
	}

	if len(decoded.Results) == 0 {
		return nil, nil
	}

	result := decoded.Results[0]
	rows := make([]map[string]any, 0, len(result.Data))
	for _, d := range result.Data {
		row := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(d.Row) {
				row[col] = d.Row[i]
			}
		}
		rows = append(rows, row)
	}

	s.logger.Debug("graph statement executed", "rows", len(rows))
	return rows, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package serve exposes the gateway catalogue to external agents over
// JSON-RPC 2.0 on stdio.
//
// The transport is line-delimited: one JSON-RPC message per line on stdin,
// one response per line on stdout. Because stdout carries the protocol, all
// logging MUST go to stderr; a single stray stdout write corrupts the
// stream.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/gateway"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// protocolVersion is the agent protocol revision this server speaks.
const protocolVersion = "2024-11-05"

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server dispatches JSON-RPC requests to the gateway.
type Server struct {
	gateway *gateway.Gateway
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger

	mu sync.Mutex // serializes writes to out
}

// Option configures a Server.
type Option func(*Server)

// WithStreams overrides the transport streams, for tests.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// WithLogger sets the server logger. It must write to stderr or a file,
// never to stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a stdio JSON-RPC server over the given gateway.
func NewServer(gw *gateway.Gateway, opts ...Option) (*Server, error) {
	if gw == nil {
		return nil, exposuregraph.NewConfigurationError("serve.NewServer",
			fmt.Errorf("%w: gateway is required", exposuregraph.ErrInvalidConfig))
	}

	s := &Server{gateway: gw, in: os.Stdin, out: os.Stdout, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run reads requests until the input stream closes or the context is
// canceled. Each request is handled synchronously; agents that want
// concurrency pipeline their requests.
func (s *Server) Run(ctx context.Context) error {
	if s.in == nil || s.out == nil {
		return exposuregraph.NewConfigurationError("Server.Run",
			fmt.Errorf("%w: transport streams are not set", exposuregraph.ErrInvalidConfig))
	}

	s.logger.Info("serving gateway catalogue on stdio")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}})
			continue
		}

		resp := s.handle(ctx, req)
		if resp != nil {
			s.write(*resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return exposuregraph.NewNetworkError("Server.Run", err)
	}
	s.logger.Info("input stream closed, shutting down")
	return nil
}

// handle dispatches one request. Notifications (no ID) get no response.
func (s *Server) handle(ctx context.Context, req request) *response {
	logger := s.logger.With("method", req.Method)

	result, rpcErr := s.dispatch(ctx, req)
	if req.ID == nil {
		// Notification: nothing to send, but faults are still worth a log line.
		if rpcErr != nil {
			logger.Warn("notification failed", "code", rpcErr.Code, "message", rpcErr.Message)
		}
		return nil
	}

	resp := &response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		logger.Warn("request failed", "code", rpcErr.Code, "message", rpcErr.Message)
		resp.Error = rpcErr
		return resp
	}
	resp.Result = result
	return resp
}

func (s *Server) dispatch(ctx context.Context, req request) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": "exposuregraph", "version": exposuregraph.Version},
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
		}, nil

	case "ping":
		return map[string]any{}, nil

	case "tools/list":
		return map[string]any{"tools": s.gateway.Descriptors()}, nil

	case "tools/call":
		return s.callTool(ctx, req.Params)

	case "resources/list":
		return map[string]any{"resources": s.gateway.Resources()}, nil

	case "resources/read":
		return s.readResource(req.Params)

	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// callTool invokes a catalogue operation. Domain failures — a rejected
// query, an unreachable store — are reported inside the result with
// isError set, not as protocol errors: the call itself succeeded.
func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid tool call parameters"}
	}
	if p.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "tool name is required"}
	}

	result, err := s.gateway.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		if errors.Is(err, exposuregraph.ErrToolNotFound) {
			return nil, &rpcError{Code: codeMethodNotFound, Message: err.Error()}
		}
		return toolResult(map[string]any{
			"error": err.Error(),
			"kind":  exposuregraph.KindOf(err),
		}, true), nil
	}
	return toolResult(result, false), nil
}

// toolResult wraps an operation outcome in the agent protocol's content
// envelope. Strings pass through; everything else is rendered as JSON.
func toolResult(v any, isError bool) map[string]any {
	text, ok := v.(string)
	if !ok {
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(encoded)
		}
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	}
}

type readParams struct {
	URI string `json:"uri"`
}

func (s *Server) readResource(params json.RawMessage) (any, *rpcError) {
	var p readParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid resource read parameters"}
	}

	resource, ok := s.gateway.ReadResource(p.URI)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown resource %q", p.URI)}
	}

	return map[string]any{
		"contents": []map[string]any{{
			"uri":      resource.URI,
			"mimeType": resource.MIMEType,
			"text":     resource.Text,
		}},
	}, nil
}

func (s *Server) write(resp response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
	if _, err := s.out.Write(append(encoded, '\n')); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

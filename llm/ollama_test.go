package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

func TestNewOllamaRequiresHost(t *testing.T) {
	_, err := NewOllama(OllamaConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exposuregraph.ErrInvalidConfig))
}

func TestNewOllamaDefaults(t *testing.T) {
	client, err := NewOllama(OllamaConfig{Host: "http://localhost:11434/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, "http://localhost:11434", client.host)
}

func TestOllamaComplete(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: Message{Role: RoleAssistant, Content: "MATCH (d:Domain) RETURN d.name"},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := NewOllama(OllamaConfig{Host: srv.URL, Model: "llama3.2:3b"})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "You are a Cypher expert.", "list all domains")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (d:Domain) RETURN d.name", out)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, RoleSystem, gotReq.Messages[0].Role)
	assert.Equal(t, RoleUser, gotReq.Messages[1].Role)
	assert.Equal(t, "llama3.2:3b", gotReq.Model)
	assert.False(t, gotReq.Stream)
}

func TestOllamaCompleteOmitsEmptySystem(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "ok"}})
	}))
	t.Cleanup(srv.Close)

	client, err := NewOllama(OllamaConfig{Host: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "hello")
	require.NoError(t, err)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, RoleUser, gotReq.Messages[0].Role)
}

func TestOllamaCompleteModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(chatResponse{Error: `model "nope" not found`})
	}))
	t.Cleanup(srv.Close)

	client, err := NewOllama(OllamaConfig{Host: srv.URL, Model: "nope"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindConfiguration, exposuregraph.KindOf(err))
	assert.Contains(t, err.Error(), "ollama pull nope")
}

func TestOllamaCompleteUnreachable(t *testing.T) {
	client, err := NewOllama(OllamaConfig{Host: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindNetwork, exposuregraph.KindOf(err))
}

func TestOllamaCompleteDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewOllama(OllamaConfig{Host: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, "", "hello")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindTimeout, exposuregraph.KindOf(err))
}

func TestOllamaCheckConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:3b"},{"name":"mistral:latest"}]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewOllama(OllamaConfig{Host: srv.URL, Model: "llama3.2"})
	require.NoError(t, err)
	assert.NoError(t, client.CheckConnection(context.Background()))

	missing, err := NewOllama(OllamaConfig{Host: srv.URL, Model: "phi4"})
	require.NoError(t, err)
	err = missing.CheckConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindConfiguration, exposuregraph.KindOf(err))
}

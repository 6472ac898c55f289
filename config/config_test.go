package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exposuregraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:7474", cfg.Graph.URI)
	assert.Equal(t, "llama3.2", cfg.Ollama.Model)
	assert.Equal(t, 100, cfg.Query.RowCap)
	assert.Equal(t, 15*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 2*time.Minute, cfg.Scan.GetSubfinderTimeout())
	assert.Empty(t, cfg.Scan.AllowedTargets, "scanning is denied until targets are listed")
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
graph:
  uri: http://neo4j:7474
  user: neo4j
  password: secret
ollama:
  host: http://ollama:11434
  model: llama3.1:8b
scan:
  allowed_targets: [scanme.sh, example.com]
  concurrency: 4
  subfinder_timeout: 90s
query:
  row_cap: 50
redis:
  url: redis://redis:6379
registry:
  endpoints: [etcd:2379]
  ttl: 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://neo4j:7474", cfg.Graph.URI)
	assert.Equal(t, "secret", cfg.Graph.Password)
	assert.Equal(t, "llama3.1:8b", cfg.Ollama.Model)
	assert.Equal(t, []string{"scanme.sh", "example.com"}, cfg.Scan.AllowedTargets)
	assert.Equal(t, 90*time.Second, cfg.Scan.GetSubfinderTimeout())
	assert.Equal(t, 3*time.Minute, cfg.Scan.GetHttpxTimeout())
	assert.Equal(t, 50, cfg.Query.RowCap)
	assert.Equal(t, "redis://redis:6379", cfg.Redis.URL)
	assert.Equal(t, []string{"etcd:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, 15, cfg.Registry.TTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
graph:
  uri: http://from-file:7474
`)

	t.Setenv("NEO4J_URI", "http://from-env:7474")
	t.Setenv("NEO4J_PASSWORD", "hunter2")
	t.Setenv("MOCK_LLM", "true")
	t.Setenv("ALLOWED_TARGETS", "scanme.sh, example.com ,")
	t.Setenv("ETCD_ENDPOINTS", "etcd-a:2379,etcd-b:2379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:7474", cfg.Graph.URI)
	assert.Equal(t, "hunter2", cfg.Graph.Password)
	assert.True(t, cfg.Ollama.Mock)
	assert.Equal(t, []string{"scanme.sh", "example.com"}, cfg.Scan.AllowedTargets)
	assert.Equal(t, []string{"etcd-a:2379", "etcd-b:2379"}, cfg.Registry.Endpoints)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindConfiguration, exposuregraph.KindOf(err))
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "graph: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindConfiguration, exposuregraph.KindOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"missing graph uri", func(c *Config) { c.Graph.URI = "" }, "graph.uri"},
		{"missing ollama host", func(c *Config) { c.Ollama.Host = "" }, "ollama.host"},
		{"zero row cap", func(c *Config) { c.Query.RowCap = 0 }, "row_cap"},
		{"unknown translator", func(c *Config) { c.Query.Translator = "oracle" }, "translator"},
		{"zero concurrency", func(c *Config) { c.Scan.Concurrency = 0 }, "concurrency"},
		{"bad duration", func(c *Config) { c.Query.Timeout = "soon" }, "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, exposuregraph.ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMockModeNeedsNoOllamaHost(t *testing.T) {
	cfg := Default()
	cfg.Ollama.Host = ""
	cfg.Ollama.Mock = true
	assert.NoError(t, cfg.Validate())
}

func TestStaticTranslatorNeedsNoOllamaHost(t *testing.T) {
	cfg := Default()
	assert.Equal(t, TranslatorModel, cfg.Query.Translator)

	cfg.Ollama.Host = ""
	cfg.Query.Translator = TranslatorStatic
	assert.NoError(t, cfg.Validate())
}

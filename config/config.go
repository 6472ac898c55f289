// Package config loads the exposuregraph configuration: defaults, then an
// optional YAML file, then a .env file, then environment variables. Later
// sources override earlier ones, so a container can override a checked-in
// YAML file without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/registry"
)

// DefaultFile is the config file Load looks for when no path is given.
const DefaultFile = "exposuregraph.yaml"

// Config is the full application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Graph    GraphConfig     `yaml:"graph"`
	Ollama   OllamaConfig    `yaml:"ollama"`
	Scan     ScanConfig      `yaml:"scan"`
	Query    QueryConfig     `yaml:"query"`
	Redis    RedisConfig     `yaml:"redis"`
	Registry registry.Config `yaml:"registry"`
}

// GraphConfig points at the Neo4j HTTP endpoint.
type GraphConfig struct {
	// URI is the HTTP API base, e.g. "http://localhost:7474".
	URI string `yaml:"uri"`

	// User and Password authenticate against Neo4j. Leave both empty for a
	// local instance running with auth disabled.
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Database is the Neo4j database name.
	Database string `yaml:"database"`
}

// OllamaConfig configures the natural-language translator.
type OllamaConfig struct {
	// Host is the Ollama API base, e.g. "http://localhost:11434".
	Host string `yaml:"host"`

	// Model is the model tag, e.g. "llama3.2".
	Model string `yaml:"model"`

	// Mock replaces the model with deterministic canned responses. For
	// tests and demos without an Ollama install.
	Mock bool `yaml:"mock"`
}

// ScanConfig governs the discovery pipeline.
type ScanConfig struct {
	// AllowedTargets is the scan allow-list. Empty means nothing may be
	// scanned.
	AllowedTargets []string `yaml:"allowed_targets"`

	// Concurrency bounds parallel graph writes during a scan.
	Concurrency int `yaml:"concurrency"`

	// SubfinderPath and HttpxPath override PATH lookup for the collectors.
	SubfinderPath string `yaml:"subfinder_path"`
	HttpxPath     string `yaml:"httpx_path"`

	// SubfinderTimeout and HttpxTimeout are Go duration strings, e.g. "2m".
	SubfinderTimeout string `yaml:"subfinder_timeout"`
	HttpxTimeout     string `yaml:"httpx_timeout"`
}

// Translation strategy names for QueryConfig.Translator.
const (
	TranslatorModel  = "model"
	TranslatorStatic = "static"
)

// QueryConfig bounds what arbitrary read queries may do.
type QueryConfig struct {
	// RowCap is the maximum number of rows a query may return.
	RowCap int `yaml:"row_cap"`

	// Timeout is a Go duration string bounding query execution.
	Timeout string `yaml:"timeout"`

	// Translator selects how natural-language questions become queries:
	// "model" uses the configured language model, "static" uses the fixed
	// canonical question table and needs no model at all.
	Translator string `yaml:"translator"`
}

// RedisConfig enables the distributed scan queue when URL is set.
type RedisConfig struct {
	// URL is the redis connection string, empty to run scans inline.
	URL string `yaml:"url"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Graph: GraphConfig{
			URI:      "http://localhost:7474",
			User:     "neo4j",
			Database: "neo4j",
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "llama3.2",
		},
		Scan: ScanConfig{
			Concurrency:      8,
			SubfinderTimeout: "2m",
			HttpxTimeout:     "3m",
		},
		Query: QueryConfig{
			RowCap:     100,
			Timeout:    "15s",
			Translator: TranslatorModel,
		},
	}
}

// Load builds the configuration. path may be empty; then DefaultFile is
// read when it exists. A .env file in the working directory is applied
// before environment variables.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, exposuregraph.NewConfigurationError(op,
				fmt.Errorf("failed to read config file: %w", err))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, exposuregraph.NewConfigurationError(op,
				fmt.Errorf("failed to parse config file: %w", err))
		}
	}

	// A missing .env file is fine; explicit env vars still apply.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	const op = "Config.Validate"

	fail := func(format string, args ...any) error {
		return exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: %s", exposuregraph.ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fail("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	if c.Graph.URI == "" {
		return fail("graph.uri is required")
	}
	switch c.Query.Translator {
	case "", TranslatorModel, TranslatorStatic:
	default:
		return fail("query.translator %q is not one of model, static", c.Query.Translator)
	}
	if c.Ollama.Host == "" && !c.Ollama.Mock && c.Query.Translator != TranslatorStatic {
		return fail("ollama.host is required unless ollama.mock is set or query.translator is static")
	}
	if c.Query.RowCap <= 0 {
		return fail("query.row_cap must be positive, got %d", c.Query.RowCap)
	}
	if c.Scan.Concurrency <= 0 {
		return fail("scan.concurrency must be positive, got %d", c.Scan.Concurrency)
	}

	for name, value := range map[string]string{
		"scan.subfinder_timeout": c.Scan.SubfinderTimeout,
		"scan.httpx_timeout":     c.Scan.HttpxTimeout,
		"query.timeout":          c.Query.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fail("%s %q is not a valid duration", name, value)
		}
	}

	return nil
}

// QueryTimeout returns the parsed query timeout, defaulting to 15s.
func (c *Config) QueryTimeout() time.Duration {
	return durationOr(c.Query.Timeout, 15*time.Second)
}

// GetSubfinderTimeout returns the parsed enumeration timeout, defaulting to 2m.
func (c *ScanConfig) GetSubfinderTimeout() time.Duration {
	return durationOr(c.SubfinderTimeout, 2*time.Minute)
}

// GetHttpxTimeout returns the parsed probing timeout, defaulting to 3m.
func (c *ScanConfig) GetHttpxTimeout() time.Duration {
	return durationOr(c.HttpxTimeout, 3*time.Minute)
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnv overlays environment variables onto the configuration. Variable
// names follow the original deployment's .env contract.
func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Graph.URI, "NEO4J_URI")
	setString(&cfg.Graph.User, "NEO4J_USER")
	setString(&cfg.Graph.Password, "NEO4J_PASSWORD")
	setString(&cfg.Graph.Database, "NEO4J_DATABASE")
	setString(&cfg.Ollama.Host, "OLLAMA_HOST")
	setString(&cfg.Ollama.Model, "OLLAMA_MODEL")
	setBool(&cfg.Ollama.Mock, "MOCK_LLM")
	setString(&cfg.Redis.URL, "REDIS_URL")

	if v := os.Getenv("ALLOWED_TARGETS"); v != "" {
		cfg.Scan.AllowedTargets = splitList(v)
	}
	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		cfg.Registry.Endpoints = splitList(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

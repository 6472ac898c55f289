package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/config"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/guard"
	"github.com/exposure-graph/exposuregraph/llm"
	"github.com/exposure-graph/exposuregraph/nlq"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "exposuregraph",
	Short: "Graph-backed inventory of internet-facing assets with risk scoring",
	Long: `ExposureGraph discovers an organization's internet-facing assets, scores
their exposure risk, and stores everything as a graph: domains own
subdomains, subdomains host web services.

The graph is queried three ways: typed operations over a JSON-RPC gateway
(serve), natural-language questions translated to guarded read queries
(query), and scans that keep the inventory current (scan). Scanning is
gated by an allow-list of authorized targets.`,
	Version:       exposuregraph.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version", "completion":
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		// All logs go to stderr: the serve command speaks JSON-RPC on stdout.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel),
		}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default "+config.DefaultFile+" when present)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newStore connects to the configured graph database.
func newStore() (*graph.Store, error) {
	return graph.NewStore(graph.Config{
		URI:      cfg.Graph.URI,
		Username: cfg.Graph.User,
		Password: cfg.Graph.Password,
		Database: cfg.Graph.Database,
		Logger:   logger,
	})
}

// newGuard builds the query guard from the configured bounds.
func newGuard() *guard.Guard {
	return guard.New(cfg.Query.RowCap, cfg.QueryTimeout())
}

// newTranslatorClient returns the configured model client, or the
// deterministic mock when requested.
func newTranslatorClient(mock bool) (llm.Client, error) {
	if mock || cfg.Ollama.Mock {
		return llm.NewMock(), nil
	}
	return llm.NewOllama(llm.OllamaConfig{
		Host:   cfg.Ollama.Host,
		Model:  cfg.Ollama.Model,
		Logger: logger,
	})
}

// newAsker wires the natural-language query pipeline against a store. The
// static translator needs no model; summaries then use the counted fallback.
func newAsker(store *graph.Store, mock bool) (*nlq.Executor, error) {
	if cfg.Query.Translator == config.TranslatorStatic {
		return nlq.NewExecutor(nlq.ExecutorConfig{
			Strategy: nlq.NewStaticStrategy(),
			Guard:    newGuard(),
			Reader:   store,
			Logger:   logger,
		})
	}

	client, err := newTranslatorClient(mock)
	if err != nil {
		return nil, err
	}
	return nlq.NewExecutor(nlq.ExecutorConfig{
		Strategy:   nlq.NewModelStrategy(client),
		Guard:      newGuard(),
		Reader:     store,
		Summarizer: client,
		Logger:     logger,
	})
}

// pingStore verifies the graph is reachable before a command does real work,
// so connection problems surface as one clear error.
func pingStore(cmd *cobra.Command, store *graph.Store) error {
	ctx, cancel := contextWithTimeout(cmd, 10*time.Second)
	defer cancel()
	return store.Ping(ctx)
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}

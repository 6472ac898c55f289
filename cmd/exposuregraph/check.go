package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/config"
	"github.com/exposure-graph/exposuregraph/health"
	"github.com/exposure-graph/exposuregraph/queue"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that configured dependencies are usable",
	Long: `Probe every dependency the configuration names: the graph database,
the translator model, the collector binaries, and the redis queue. All
checks run; the command exits non-zero if any required dependency is
unusable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := []health.Check{
			health.BinaryCheck("subfinder", binaryOr(cfg.Scan.SubfinderPath, "subfinder")),
			health.BinaryCheck("httpx", binaryOr(cfg.Scan.HttpxPath, "httpx")),
			graphCheck(),
			modelCheck(),
			queueCheck(),
		}

		statuses := health.RunAll(cmd.Context(), checks...)
		for _, s := range statuses {
			cmd.Printf("%-11s %-10s %s\n", s.Name, s.State, s.Message)
		}

		if !health.Healthy(statuses) {
			return fmt.Errorf("some dependencies are unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func binaryOr(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func graphCheck() health.Check {
	return health.ConnectionCheck("graph", func(ctx context.Context) error {
		store, err := newStore()
		if err != nil {
			return err
		}
		defer exposuregraph.CloseWithLog(store, logger, "graph store")
		return store.Ping(ctx)
	})
}

func modelCheck() health.Check {
	if cfg.Ollama.Mock {
		return health.NotConfigured("model", "mock translator enabled")
	}
	if cfg.Query.Translator == config.TranslatorStatic {
		return health.NotConfigured("model", "static translator enabled, no model needed")
	}
	return health.ConnectionCheck("model", func(ctx context.Context) error {
		client, err := newTranslatorClient(false)
		if err != nil {
			return err
		}
		return client.CheckConnection(ctx)
	})
}

func queueCheck() health.Check {
	if cfg.Redis.URL == "" {
		return health.NotConfigured("queue", "no redis url configured, scans run inline")
	}
	return health.ConnectionCheck("queue", func(ctx context.Context) error {
		client, err := queue.NewRedisClient(queue.Options{URL: cfg.Redis.URL, Logger: logger})
		if err != nil {
			return err
		}
		return client.Close()
	})
}

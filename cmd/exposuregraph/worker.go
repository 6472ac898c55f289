package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/queue"
	"github.com/exposure-graph/exposuregraph/scan"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process scan jobs from the redis queue",
	Long: `Run a scan worker: pop jobs from the shared redis queue, run the
discovery pipeline for each, and publish a result per job. Multiple workers
can share one queue.

The worker enforces the same allowed_targets scope as an inline scan, so an
unauthorized job fails without touching the network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Redis.URL == "" {
			return fmt.Errorf("the worker needs a configured redis url")
		}

		scanner, cleanup, err := newScanner()
		if err != nil {
			return err
		}
		defer cleanup()

		client, err := queue.NewRedisClient(queue.Options{URL: cfg.Redis.URL, Logger: logger})
		if err != nil {
			return err
		}
		defer exposuregraph.CloseWithLog(client, logger, "queue client")

		worker, err := scan.NewWorker(client, scanner, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return worker.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/collector"
	"github.com/exposure-graph/exposuregraph/queue"
	"github.com/exposure-graph/exposuregraph/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan <domain>",
	Short: "Discover and score the assets of an authorized domain",
	Long: `Run the discovery pipeline for one root domain: enumerate subdomains
with subfinder, probe them with httpx, score each live service, and upsert
everything into the graph.

The domain must be on the configured allowed_targets list; unauthorized
targets are rejected before any tool runs.

With --enqueue the job is pushed to the redis scan queue for a worker to
pick up instead of running inline.

Examples:
  exposuregraph scan example.com
  exposuregraph scan example.com --enqueue --wait
  exposuregraph scan --rescore`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rescore, _ := cmd.Flags().GetBool("rescore")
		enqueue, _ := cmd.Flags().GetBool("enqueue")
		wait, _ := cmd.Flags().GetBool("wait")

		if rescore {
			return runRescore(cmd)
		}
		if len(args) == 0 {
			return fmt.Errorf("a target domain is required (or use --rescore)")
		}
		domain := args[0]

		if enqueue {
			return enqueueScan(cmd, domain, wait)
		}
		return runScan(cmd, domain)
	},
}

func init() {
	scanCmd.Flags().Bool("rescore", false, "score services that have no risk score yet, then exit")
	scanCmd.Flags().Bool("enqueue", false, "push the job to the redis scan queue instead of running inline")
	scanCmd.Flags().Bool("wait", false, "with --enqueue, wait for the worker's result")
	rootCmd.AddCommand(scanCmd)
}

// newScanner wires the inline pipeline, including the external collectors.
func newScanner() (*scan.Scanner, func(), error) {
	store, err := newStore()
	if err != nil {
		return nil, nil, err
	}

	subfinder, err := collector.NewSubfinder(cfg.Scan.SubfinderPath, cfg.Scan.GetSubfinderTimeout(), logger)
	if err != nil {
		return nil, nil, err
	}
	httpx, err := collector.NewHttpx(cfg.Scan.HttpxPath, cfg.Scan.GetHttpxTimeout(), logger)
	if err != nil {
		return nil, nil, err
	}

	scanner, err := scan.New(scan.Config{
		Enumerator:  subfinder,
		Prober:      httpx,
		Store:       store,
		Scope:       scan.NewScope(cfg.Scan.AllowedTargets),
		Concurrency: cfg.Scan.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() { exposuregraph.CloseWithLog(store, logger, "graph store") }
	return scanner, cleanup, nil
}

func runScan(cmd *cobra.Command, domain string) error {
	scanner, cleanup, err := newScanner()
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := scanner.Scan(cmd.Context(), domain)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)
	return nil
}

func runRescore(cmd *cobra.Command) error {
	scanner, cleanup, err := newScanner()
	if err != nil {
		return err
	}
	defer cleanup()

	updated, err := scanner.Rescore(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Rescored %d services\n", updated)
	return nil
}

// enqueueScan pushes the job to redis. The scope check still runs locally so
// an unauthorized target fails fast instead of poisoning the queue.
func enqueueScan(cmd *cobra.Command, domain string, wait bool) error {
	if cfg.Redis.URL == "" {
		return fmt.Errorf("--enqueue needs a configured redis url")
	}
	if err := scan.NewScope(cfg.Scan.AllowedTargets).Authorize(domain); err != nil {
		return err
	}

	client, err := queue.NewRedisClient(queue.Options{URL: cfg.Redis.URL, Logger: logger})
	if err != nil {
		return err
	}
	defer exposuregraph.CloseWithLog(client, logger, "queue client")

	job := queue.ScanJob{
		JobID:       uuid.NewString(),
		Domain:      domain,
		RequestedBy: "cli",
		SubmittedAt: time.Now().UnixMilli(),
	}

	ctx := cmd.Context()

	// Subscribe before pushing so the result cannot slip past.
	var results <-chan queue.ScanResult
	var cancel context.CancelFunc
	if wait {
		var subCtx context.Context
		subCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		results, err = client.SubscribeResults(subCtx, job.JobID)
		if err != nil {
			return err
		}
	}

	if err := client.Push(ctx, job); err != nil {
		return err
	}
	cmd.Printf("Enqueued scan job %s for %s\n", job.JobID, job.Domain)

	if !wait {
		return nil
	}

	select {
	case result := <-results:
		if result.HasError() {
			return fmt.Errorf("scan failed on worker %s: %s", result.WorkerID, result.Error)
		}
		printSummary(cmd, scan.Summary{
			Domain:       result.Domain,
			Subdomains:   result.Subdomains,
			LiveServices: result.LiveServices,
			Scored:       result.Scored,
			Duration:     result.Duration(),
		})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printSummary(cmd *cobra.Command, s scan.Summary) {
	cmd.Printf("Scan of %s finished in %s\n", s.Domain, s.Duration.Round(time.Millisecond))
	cmd.Printf("  Subdomains:    %d\n", s.Subdomains)
	cmd.Printf("  Live services: %d\n", s.LiveServices)
	cmd.Printf("  Scored:        %d\n", s.Scored)
}

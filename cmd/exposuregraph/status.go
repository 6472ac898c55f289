package main

import (
	"time"

	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show graph contents and running gateway instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newStore()
		if err != nil {
			return err
		}
		defer exposuregraph.CloseWithLog(store, logger, "graph store")

		if err := pingStore(cmd, store); err != nil {
			return err
		}

		ctx, cancel := contextWithTimeout(cmd, 30*time.Second)
		defer cancel()

		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("Graph: %s\n", cfg.Graph.URI)
		cmd.Printf("  Domains:      %d\n", stats.Domains)
		cmd.Printf("  Subdomains:   %d\n", stats.Subdomains)
		cmd.Printf("  Web services: %d\n", stats.WebServices)

		if len(cfg.Scan.AllowedTargets) == 0 {
			cmd.Println("Authorized targets: none (scanning disabled)")
		} else {
			cmd.Printf("Authorized targets: %v\n", cfg.Scan.AllowedTargets)
		}

		if len(cfg.Registry.Endpoints) == 0 {
			return nil
		}

		reg, err := registry.NewClient(cfg.Registry, logger)
		if err != nil {
			return err
		}
		defer exposuregraph.CloseWithLog(reg, logger, "registry client")

		instances, err := reg.Discover(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("Gateway instances: %d\n", len(instances))
		for _, inst := range instances {
			cmd.Printf("  %s  v%s  up since %s\n",
				inst.InstanceID, inst.Version, inst.StartedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

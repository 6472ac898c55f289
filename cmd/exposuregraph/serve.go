package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/gateway"
	"github.com/exposure-graph/exposuregraph/registry"
	"github.com/exposure-graph/exposuregraph/serve"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent gateway over stdio",
	Long: `Expose the typed operation catalogue as a JSON-RPC server on
stdin/stdout, for AI agents and other MCP-style clients.

Protocol traffic owns stdout; logs and traces go to stderr. When etcd
endpoints are configured the instance registers itself for discovery and
deregisters on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mock, _ := cmd.Flags().GetBool("mock")

		store, err := newStore()
		if err != nil {
			return err
		}
		defer exposuregraph.CloseWithLog(store, logger, "graph store")

		if err := pingStore(cmd, store); err != nil {
			return err
		}

		asker, err := newAsker(store, mock)
		if err != nil {
			return err
		}

		gw, err := gateway.New(gateway.Config{
			Store:  store,
			Guard:  newGuard(),
			Asker:  asker,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		srv, err := serve.NewServer(gw, serve.WithLogger(logger))
		if err != nil {
			return err
		}

		_, shutdownTracer := serve.NewTracerProvider(logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(cfg.Registry.Endpoints) > 0 {
			deregister, err := registerInstance(ctx, mock)
			if err != nil {
				return err
			}
			defer deregister()
		}

		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().Bool("mock", false, "use the deterministic mock translator")
	rootCmd.AddCommand(serveCmd)
}

// registerInstance announces this gateway in etcd and returns a deregister
// function for shutdown.
func registerInstance(ctx context.Context, mock bool) (func(), error) {
	reg, err := registry.NewClient(cfg.Registry, logger)
	if err != nil {
		return nil, err
	}

	inst := registry.Instance{
		Name:       "gateway",
		Version:    exposuregraph.Version,
		InstanceID: uuid.NewString(),
		Endpoint:   "exposuregraph serve",
		Metadata: map[string]string{
			"graph_uri": cfg.Graph.URI,
			"mock_llm":  strconv.FormatBool(mock || cfg.Ollama.Mock),
		},
		StartedAt: time.Now().UTC(),
	}
	if err := reg.Register(ctx, inst); err != nil {
		exposuregraph.CloseWithLog(reg, logger, "registry client")
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := reg.Deregister(ctx, inst); err != nil {
			logger.Warn("deregistration failed, lease will expire on its own", "error", err)
		}
		exposuregraph.CloseWithLog(reg, logger, "registry client")
	}, nil
}

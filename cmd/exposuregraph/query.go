package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask the graph a question in natural language",
	Long: `Translate a natural-language question into a guarded read-only graph
query, run it, and summarize the result.

With --mock the translator uses deterministic canned responses instead of
the configured model, for tests and demos without an Ollama install.

Examples:
  exposuregraph query "What are the riskiest assets?"
  exposuregraph query --mock "How many subdomains does example.com have?"
  exposuregraph query --json "Show me all staging services"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mock, _ := cmd.Flags().GetBool("mock")
		asJSON, _ := cmd.Flags().GetBool("json")
		question := strings.Join(args, " ")

		store, err := newStore()
		if err != nil {
			return err
		}
		defer exposuregraph.CloseWithLog(store, logger, "graph store")

		asker, err := newAsker(store, mock)
		if err != nil {
			return err
		}

		answer, err := asker.Ask(cmd.Context(), question)
		if err != nil {
			return fmt.Errorf("%s: %w", answer.State, err)
		}

		if asJSON {
			data, err := json.MarshalIndent(answer, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}

		cmd.Println(answer.AnswerText)
		cmd.Printf("\n(query: %s, rows: %d)\n", answer.QueryUsed, len(answer.Rows))
		return nil
	},
}

func init() {
	queryCmd.Flags().Bool("mock", false, "use the deterministic mock translator")
	queryCmd.Flags().Bool("json", false, "print the full answer as JSON")
	rootCmd.AddCommand(queryCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/docindex/internal/config"
)

func main() {
	// A missing .env is normal; the environment may already be set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "docindex",
		Short:         "Semantic search over a folder of documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file path (YAML)")
	pf.String("api-key", "", "Embedding API key (env AZURE_OPENAI_KEY)")
	pf.String("endpoint", "", "Embedding endpoint (env AZURE_OPENAI_ENDPOINT)")
	pf.String("embedding-deployment", "", "Embedding deployment name (env AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME)")
	pf.String("provider", "azure", "Embedding provider: azure or openai")
	pf.String("folder", ".", "Base folder; stored paths are relative to it")
	pf.String("project", config.DefaultProject, "Subfolder of --folder holding the documents and the index")
	pf.Int("tokens-per-chunk", 4096, "Max number of tokens per chunk")
	pf.Float64("chars-per-token", 2.5, "Average number of characters per token")
	pf.String("backend", "flat", "Vector backend: flat, qdrant or neo4j")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(
		newIndexCmd(&configPath),
		newSearchCmd(&configPath),
		newWorkerCmd(&configPath),
	)
	return rootCmd
}

func newIndexCmd(configPath *string) *cobra.Command {
	var (
		useTemporal bool
		noWait      bool
		jsonReport  bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the index for the documents folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown.Shutdown()
			if useTemporal {
				return a.submitIndex(cmd.OutOrStdout(), !noWait)
			}
			return a.runIndex(cmd.OutOrStdout(), jsonReport)
		},
	}
	cmd.Flags().BoolVar(&useTemporal, "temporal", false, "Run the build as a Temporal workflow")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "With --temporal, return once the workflow is started")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "Print the build report as JSON")
	return cmd
}

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		useTUI  bool
		asJSON  bool
		queries []string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the index interactively",
		Long: "Reads one query per line from stdin and prints the matching documents,\n" +
			"nearest first. Use --query for one-shot searches or --tui for the terminal UI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown.Shutdown()
			return a.runSearch(cmd.InOrStdin(), cmd.OutOrStdout(), searchMode{tui: useTUI, json: asJSON, queries: queries})
		},
	}
	cmd.Flags().Int("top", 15, "Number of nearest chunks fetched per query")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Use the terminal UI")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON lines")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Run the given query and exit (repeatable)")
	return cmd
}

func newWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker that executes index builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown.Shutdown()
			return a.runWorker(cmd.OutOrStdout())
		},
	}
}

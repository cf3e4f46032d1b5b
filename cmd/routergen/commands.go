package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Generation
// =============================================================================

type generateOptions struct {
	target      int
	maxBatches  int
	output      string
	metricsAddr string
	noLedger    bool
}

func buildGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate validated training examples",
		Long: `Sample scenarios, ask the configured models for batches, validate each item and
append the survivors to the raw output file until the target is reached.

SIGINT or SIGTERM stops the loop after the batch in flight is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.target, "target", "n", 0, "Accepted examples to stop at (overrides generation.target)")
	cmd.Flags().IntVar(&opts.maxBatches, "max-batches", 0, "Batch cap (default target/batch_size + 1)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Raw output file (default: timestamped file in corpus.raw_dir)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVar(&opts.noLedger, "no-ledger", false, "Do not record the run in the ledger")
	return cmd
}

func buildPromptCmd() *cobra.Command {
	var intent, style string
	var seed int64
	var batchSize int
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print a generation prompt for inspection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, intent, style, seed, batchSize)
		},
	}
	cmd.Flags().StringVar(&intent, "intent", "", "Intent name (default: sampled by weight)")
	cmd.Flags().StringVar(&style, "style", "", "Query style name (default: sampled)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Sampling seed (default: time based)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Batch size quoted in the prompt (default: generation.batch_size)")
	return cmd
}

// =============================================================================
// Corpus
// =============================================================================

func buildAuditCmd() *cobra.Command {
	var asJSON bool
	var maxItems int
	cmd := &cobra.Command{
		Use:   "audit [files...]",
		Short: "Report validation results for existing JSONL files",
		Long: `Run the three validation layers over JSONL files without modifying them.

With no arguments the newest raw file and processed/train.jsonl are audited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, args, asJSON, maxItems)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Audit at most this many lines per file")
	return cmd
}

func buildBuildCmd() *cobra.Command {
	var preview int
	var addBOS bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Aggregate raw files into train and test splits",
		Long: `Read every raw JSONL file, keep valid examples, drop repeated queries, split
them by status and write Llama-3 formatted train.jsonl and test.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, preview, addBOS, cmd.Flags().Changed("add-bos"))
		},
	}
	cmd.Flags().IntVar(&preview, "preview", 0, "Print this many rendered training samples")
	cmd.Flags().BoolVar(&addBOS, "add-bos", false, "Prefix every sample with <|begin_of_text|> (overrides corpus.add_bos)")
	return cmd
}

func buildPublishCmd() *cobra.Command {
	var skipExisting bool
	cmd := &cobra.Command{
		Use:       "publish raw|processed",
		Short:     "Upload corpus files to the configured store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"raw", "processed"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, args[0], skipExisting)
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip raw files already present in the store")
	return cmd
}

// =============================================================================
// Ledger and config
// =============================================================================

func buildRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded generation runs",
	}
	cmd.AddCommand(buildRunsListCmd())
	return cmd
}

func buildRunsListCmd() *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd, limit, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration tooling",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON Schema of the config file",
			RunE:  runConfigSchema,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load the config and report problems",
			RunE:  runConfigValidate,
		},
	)
	return cmd
}

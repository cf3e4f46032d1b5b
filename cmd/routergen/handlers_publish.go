package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/routergen/internal/publish"
)

// =============================================================================
// Publish Handlers
// =============================================================================

func runPublish(cmd *cobra.Command, kind string, skipExisting bool) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	store, err := publish.NewStore(ctx, cfg.Publish)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer store.Close()

	pub := publish.NewPublisher(store, cfg.Corpus.RawDir, cfg.Corpus.ProcessedDir, cfg.Publish,
		publish.WithLogger(logger.Slog()),
		publish.SkipExisting(skipExisting),
	)
	manifest, err := pub.Publish(ctx, publish.Kind(kind))
	if err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Published %d %s files to %s\n", len(manifest.Files), manifest.Kind, store.Name())
	for _, f := range manifest.Files {
		state := f.Reference
		if f.Skipped {
			state = "skipped (already present)"
		}
		fmt.Fprintf(out, "  %-28s %6d lines  %s\n", f.Name, f.Lines, state)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// Ledger Handlers
// =============================================================================

type runView struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	Target        int            `json:"target"`
	Accepted      int            `json:"accepted"`
	Batches       int            `json:"batches"`
	OutputFile    string         `json:"output_file"`
	PrimaryModels []string       `json:"primary_models"`
	FallbackModel string         `json:"fallback_model"`
	Outcomes      map[string]int `json:"outcomes,omitempty"`
}

func runRunsList(cmd *cobra.Command, limit int, asJSON bool) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	if !cfg.Ledger.Enabled {
		return errors.New("the run ledger is disabled (set ledger.enabled in config)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	book, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer book.Close()

	runs, err := book.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	views := make([]runView, 0, len(runs))
	for _, r := range runs {
		v := runView{
			ID:            r.ID,
			Status:        r.Status,
			StartedAt:     r.StartedAt,
			Target:        r.Target,
			Accepted:      r.Accepted,
			Batches:       r.Batches,
			OutputFile:    r.OutputFile,
			PrimaryModels: r.PrimaryModels,
			FallbackModel: r.FallbackModel,
		}
		if !r.FinishedAt.IsZero() {
			finished := r.FinishedAt
			v.FinishedAt = &finished
		}
		if v.Outcomes, err = book.OutcomeCounts(ctx, r.ID); err != nil {
			return fmt.Errorf("outcomes for %s: %w", r.ID, err)
		}
		views = append(views, v)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(out, "ID:       %s\n", v.ID)
		fmt.Fprintf(out, "Status:   %s\n", v.Status)
		fmt.Fprintf(out, "Started:  %s\n", v.StartedAt.Local().Format(time.DateTime))
		if v.FinishedAt != nil {
			fmt.Fprintf(out, "Duration: %s\n", v.FinishedAt.Sub(v.StartedAt).Round(time.Second))
		}
		fmt.Fprintf(out, "Accepted: %d / %d in %d batches\n", v.Accepted, v.Target, v.Batches)
		fmt.Fprintf(out, "Models:   %s (fallback %s)\n", strings.Join(v.PrimaryModels, ", "), v.FallbackModel)
		if len(v.Outcomes) > 0 {
			fmt.Fprintf(out, "Outcomes: %s\n", formatCounts(v.Outcomes))
		}
		fmt.Fprintf(out, "Output:   %s\n", v.OutputFile)
		fmt.Fprintln(out, "---")
	}
	return nil
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

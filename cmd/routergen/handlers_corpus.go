package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/routergen/internal/config"
	"github.com/haasonsaas/routergen/internal/corpus"
	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/validate"
)

// =============================================================================
// Corpus Handlers
// =============================================================================

func runAudit(cmd *cobra.Command, paths []string, asJSON bool, maxItems int) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	if len(paths) == 0 {
		paths, err = defaultAuditPaths(cfg)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("nothing to audit: no raw files in %s and no %s in %s",
				cfg.Corpus.RawDir, corpus.TrainFile, cfg.Corpus.ProcessedDir)
		}
	}

	var opts []validate.AuditOption
	if maxItems > 0 {
		opts = append(opts, validate.MaxItems(maxItems))
	}
	v := validate.New(cfg.Validation, logger.Slog())
	reports, err := v.ValidateFiles(cmd.Context(), paths, opts...)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, r := range reports {
		printAudit(out, r)
	}
	return nil
}

// defaultAuditPaths returns the most recently modified raw file and the
// processed train split, skipping whichever does not exist.
func defaultAuditPaths(cfg *config.Config) ([]string, error) {
	raws, err := filepath.Glob(filepath.Join(cfg.Corpus.RawDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	var paths []string
	var newest string
	var newestMod time.Time
	for _, p := range raws {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = p, info.ModTime()
		}
	}
	if newest != "" {
		paths = append(paths, newest)
	}
	train := filepath.Join(cfg.Corpus.ProcessedDir, corpus.TrainFile)
	if _, err := os.Stat(train); err == nil {
		paths = append(paths, train)
	}
	return paths, nil
}

func printAudit(out io.Writer, r validate.FileReport) {
	s := r.Stats
	fmt.Fprintf(out, "Audit: %s\n", r.Path)
	fmt.Fprintf(out, "  Total:              %d\n", s.Total)
	fmt.Fprintf(out, "  Valid:              %d\n", s.Valid)
	fmt.Fprintf(out, "  Invalid:            %d\n", s.Total-s.Valid)
	fmt.Fprintf(out, "  Valid %%:            %.2f%%\n", s.ValidPercent())
	fmt.Fprintf(out, "  Parse errors:       %d\n", s.ParseErrors)
	fmt.Fprintf(out, "  Structural errors:  %d\n", s.InvalidStructural)
	fmt.Fprintf(out, "  Quality errors:     %d\n", s.InvalidQuality)
	fmt.Fprintf(out, "  Domain errors:      %d\n", s.InvalidDomain)
	fmt.Fprintln(out, "---")
}

func runBuild(cmd *cobra.Command, preview int, addBOS, addBOSSet bool) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	if addBOSSet {
		cfg.Corpus.AddBOS = addBOS
	}

	tracer, shutdown := observability.NewTracer(cfg.Observability.Tracing)
	defer func() { _ = shutdown(cmd.Context()) }()
	ctx, span := tracer.TraceBuild(cmd.Context(), cfg.Corpus.RawDir)
	defer span.End()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	renderOpts := corpus.RenderOptions{AddBOS: cfg.Corpus.AddBOS}
	report, err := corpus.Build(ctx, corpus.BuildOptions{
		RawDir:       cfg.Corpus.RawDir,
		ProcessedDir: cfg.Corpus.ProcessedDir,
		TrainRatio:   cfg.Corpus.TrainRatio,
		Seed:         cfg.Corpus.Seed,
		Render:       renderOpts,
		Validator:    validate.New(cfg.Validation, logger.Slog()),
		Logger:       logger.Slog(),
		Metrics:      metrics,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("build: %w", err)
	}
	tracer.SetAttributes(span, "corpus.unique", report.Unique, "corpus.duplicates", report.Duplicates)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Files:       %d (%d skipped)\n", len(report.Files), report.FilesSkipped)
	fmt.Fprintf(out, "Unique:      %d (duplicates %d, dropped %d)\n", report.Unique, report.Duplicates, report.Dropped)
	fmt.Fprintf(out, "Train:       %d (complete %d, running %d) -> %s\n",
		report.Train.Total(), report.Train.Complete, report.Train.Running, report.TrainPath)
	fmt.Fprintf(out, "Test:        %d (complete %d, running %d) -> %s\n",
		report.Test.Total(), report.Test.Complete, report.Test.Running, report.TestPath)

	for i := 0; i < preview && i < len(report.TrainExamples); i++ {
		text, err := corpus.Render(report.TrainExamples[i], renderOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n--- sample %d ---\n%s\n", i+1, text)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/routergen/internal/config"
	"github.com/haasonsaas/routergen/internal/generate"
	"github.com/haasonsaas/routergen/internal/ledger"
	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/prompt"
	"github.com/haasonsaas/routergen/internal/providers"
	"github.com/haasonsaas/routergen/internal/scenario"
	"github.com/haasonsaas/routergen/internal/validate"
)

// =============================================================================
// Generation Handlers
// =============================================================================

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	if opts.target > 0 {
		cfg.Generation.Target = opts.target
	}
	if opts.maxBatches > 0 {
		cfg.Generation.MaxBatches = opts.maxBatches
	}
	if opts.output != "" {
		cfg.Generation.OutputFile = opts.output
	}
	if opts.metricsAddr != "" {
		cfg.Observability.MetricsAddr = opts.metricsAddr
	}
	if opts.noLedger {
		cfg.Ledger.Enabled = false
	}
	if err := cfg.RequireProviderKeys(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	tracer, shutdown := observability.NewTracer(cfg.Observability.Tracing)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}()
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		closeMetrics, err := serveMetrics(addr, reg, logger)
		if err != nil {
			return err
		}
		defer closeMetrics()
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	sampler := scenario.NewSampler(catalog, nil)
	builder, err := prompt.New(promptOptions(cfg))
	if err != nil {
		return err
	}

	providerCfgs, err := cfg.ProviderConfigs()
	if err != nil {
		return err
	}
	registry, err := providers.Build(ctx, cfg.Providers.Default, providerCfgs)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	orch, err := generate.NewOrchestrator(registry, builder, sampler, orchestratorConfig(cfg, logger, metrics, tracer))
	if err != nil {
		return err
	}

	runCfg := generate.RunnerConfig{
		Target:        cfg.Generation.Target,
		MaxBatches:    cfg.Generation.MaxBatches,
		BatchInterval: cfg.Generation.BatchInterval,
		OutputFile:    cfg.OutputFile(time.Now()),
		Logger:        logger.Slog(),
		Metrics:       metrics,
		Tracer:        tracer,
	}
	stderr := cmd.ErrOrStderr()
	if f, ok := stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		runCfg.Progress = stderr
	}

	book, err := openLedger(ctx, cfg, ledger.WithMetrics(metrics), ledger.WithTracer(tracer))
	if err != nil {
		logger.Warn("run ledger unavailable, continuing without it", "error", err)
	}
	if book != nil {
		defer book.Close()
		runCfg.Ledger = book
	}

	runner, err := generate.NewRunner(orch, sampler, validate.New(cfg.Validation, logger.Slog()), runCfg)
	if err != nil {
		return err
	}
	summary, err := runner.Run(ctx)
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

func orchestratorConfig(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) generate.OrchestratorConfig {
	o := cfg.Orchestrator
	return generate.OrchestratorConfig{
		PrimaryModels:    o.PrimaryModels,
		FallbackModel:    o.FallbackModel,
		RateLimitRetries: o.RateLimitRetries,
		SchemaRetries:    o.SchemaRetries,
		Policy:           o.Backoff,
		Temperature:      o.Temperature,
		MaxTokens:        o.MaxTokens,
		BatchSize:        cfg.Generation.BatchSize,
		RequestTimeout:   o.RequestTimeout,
		Logger:           logger.Slog(),
		Metrics:          metrics,
		Tracer:           tracer,
	}
}

// promptOptions keeps the thresholds quoted to the model in step with the
// validator.
func promptOptions(cfg *config.Config) prompt.Options {
	return prompt.Options{
		StyleExamples:   cfg.Generation.StyleExamples,
		MinThoughtWords: cfg.Validation.MinThoughtWords,
		MaxThoughtWords: cfg.Validation.MaxThoughtWords,
		MinAnswerLength: cfg.Validation.MinFinalAnswerLength,
	}
}

func printSummary(out io.Writer, s generate.Summary) {
	status := "completed"
	if s.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(out, "Run %s %s\n", s.RunID, status)
	fmt.Fprintf(out, "  Accepted:   %d / %d\n", s.Accepted, s.Target)
	fmt.Fprintf(out, "  Batches:    %d\n", s.Batches)
	fmt.Fprintf(out, "  Rejected:   %d (structural %d, quality %d, domain %d)\n",
		s.Validation.Invalid(), s.Validation.InvalidStructural, s.Validation.InvalidQuality, s.Validation.InvalidDomain)
	fmt.Fprintf(out, "  Attempts:   %d (rate limits %d, schema failures %d)\n",
		s.Orchestrator.Attempts, s.Orchestrator.RateLimits, s.Orchestrator.SchemaFailures)
	fmt.Fprintf(out, "  Duration:   %s (%.2f examples/sec)\n", s.Duration.Round(time.Millisecond), s.Rate())
	fmt.Fprintf(out, "  Output:     %s\n", s.OutputFile)
}

func runPrompt(cmd *cobra.Command, intentName, styleName string, seed int64, batchSize int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sampler := scenario.NewSampler(catalog, rand.New(rand.NewSource(seed))) // #nosec G404 -- sampling, not security
	sc := sampler.Sample()
	if intentName != "" {
		in, ok := catalog.Intent(intentName)
		if !ok {
			return fmt.Errorf("unknown intent %q", intentName)
		}
		sc.Intent = in
	}
	if styleName != "" {
		st, ok := catalog.Style(styleName)
		if !ok {
			return fmt.Errorf("unknown style %q", styleName)
		}
		sc.Style = st
	}
	if batchSize <= 0 {
		batchSize = cfg.Generation.BatchSize
	}

	builder, err := prompt.New(promptOptions(cfg))
	if err != nil {
		return err
	}
	text, err := builder.Build(sc, sc.Style, batchSize)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

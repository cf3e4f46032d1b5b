package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/routergen/internal/corpus"
	"github.com/haasonsaas/routergen/internal/ledger"
	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/ratelimit"
	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/scenario"
	"github.com/haasonsaas/routergen/internal/validate"
)

// Recorder persists run and batch outcomes. *ledger.Ledger implements it.
type Recorder interface {
	StartRun(ctx context.Context, run ledger.Run) error
	RecordBatch(ctx context.Context, b ledger.Batch) error
	FinishRun(ctx context.Context, runID string, f ledger.Finish) error
}

// RunnerConfig configures the generation loop.
type RunnerConfig struct {
	// Target is the number of accepted examples to stop at.
	Target int

	// MaxBatches caps the loop. Zero means Target/BatchSize + 1.
	MaxBatches int

	// BatchInterval is the minimum spacing between provider batches.
	BatchInterval time.Duration

	// OutputFile receives accepted examples, appended per batch.
	OutputFile string

	// ProgressEvery logs a progress line every N batches. Defaults to 10.
	ProgressEvery int

	// Progress, when set, receives a single-line counter after each batch.
	Progress io.Writer

	// Ledger records the run. Nil disables recording.
	Ledger Recorder

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Summary reports a finished run.
type Summary struct {
	RunID        string
	Target       int
	Accepted     int
	Batches      int
	OutputFile   string
	Duration     time.Duration
	Interrupted  bool
	Validation   validate.BatchStats
	Orchestrator OrchestratorStats
}

// Rate returns accepted examples per second.
func (s Summary) Rate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Accepted) / s.Duration.Seconds()
}

// Runner drives sampler, orchestrator, validator and corpus writer until the
// target is reached.
type Runner struct {
	orch      *Orchestrator
	sampler   *scenario.Sampler
	validator *validate.Validator
	cfg       RunnerConfig
	logger    *slog.Logger
	pacer     *ratelimit.Bucket
	now       func() time.Time
	newRunID  func() string
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(orch *Orchestrator, sampler *scenario.Sampler, v *validate.Validator, cfg RunnerConfig) (*Runner, error) {
	if orch == nil || sampler == nil || v == nil {
		return nil, errors.New("orchestrator, sampler and validator are required")
	}
	if cfg.Target <= 0 {
		return nil, fmt.Errorf("target must be positive, got %d", cfg.Target)
	}
	if cfg.OutputFile == "" {
		return nil, errors.New("output file is required")
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = cfg.Target/orch.Config().BatchSize + 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orch:      orch,
		sampler:   sampler,
		validator: v,
		cfg:       cfg,
		logger:    logger.With("component", "runner"),
		pacer:     ratelimit.NewBucket(ratelimit.EveryInterval(cfg.BatchInterval)),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}, nil
}

// Run generates until the target is reached, the batch cap is hit or ctx is
// cancelled. Cancellation is graceful: the batch in flight is still
// validated and appended, and the summary reports Interrupted.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	runID := r.newRunID()
	ctx = observability.AddRunID(ctx, runID)
	logger := observability.WithContext(ctx, r.logger)
	// Ledger writes outlive an interrupt so the run can be closed.
	bookCtx := context.WithoutCancel(ctx)

	start := r.now()
	summary := Summary{RunID: runID, Target: r.cfg.Target, OutputFile: r.cfg.OutputFile}
	ocfg := r.orch.Config()

	r.record(logger, "start run", func() error {
		return r.cfg.Ledger.StartRun(bookCtx, ledger.Run{
			ID:            runID,
			StartedAt:     start,
			Target:        r.cfg.Target,
			BatchSize:     ocfg.BatchSize,
			OutputFile:    r.cfg.OutputFile,
			PrimaryModels: ocfg.PrimaryModels,
			FallbackModel: ocfg.FallbackModel,
		})
	})
	logger.Info("generation started",
		"target", r.cfg.Target,
		"batch_size", ocfg.BatchSize,
		"max_batches", r.cfg.MaxBatches,
		"output_file", r.cfg.OutputFile,
	)

	var runErr error
	for summary.Accepted < r.cfg.Target && summary.Batches < r.cfg.MaxBatches {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
		if err := r.pacer.Wait(ctx); err != nil {
			summary.Interrupted = true
			break
		}

		accepted, stats, err := r.batch(ctx, bookCtx, summary.Batches+1)
		summary.Batches++
		summary.Accepted += accepted
		summary.Validation.Add(stats)
		if err != nil {
			runErr = err
			break
		}

		if summary.Batches%r.cfg.ProgressEvery == 0 {
			logger.Info("progress",
				"batches", summary.Batches,
				"accepted", summary.Accepted,
				"target", r.cfg.Target,
				"rejected", summary.Validation.Invalid(),
			)
		}
		if r.cfg.Progress != nil {
			fmt.Fprintf(r.cfg.Progress, "\rbatch %d/%d  accepted %d/%d", summary.Batches, r.cfg.MaxBatches, summary.Accepted, r.cfg.Target)
		}
	}
	if r.cfg.Progress != nil && summary.Batches > 0 {
		fmt.Fprintln(r.cfg.Progress)
	}

	summary.Duration = r.now().Sub(start)
	summary.Orchestrator = r.orch.Stats()

	status := ledger.StatusCompleted
	switch {
	case runErr != nil:
		status = ledger.StatusFailed
	case summary.Interrupted:
		status = ledger.StatusInterrupted
	}
	r.record(logger, "finish run", func() error {
		return r.cfg.Ledger.FinishRun(bookCtx, runID, ledger.Finish{
			Status:     status,
			Accepted:   summary.Accepted,
			Batches:    summary.Batches,
			FinishedAt: r.now(),
		})
	})

	logger.Info("generation finished",
		"status", status,
		"total", summary.Accepted,
		"target", summary.Target,
		"batches", summary.Batches,
		"duration", summary.Duration.Round(time.Millisecond).String(),
		"output_file", summary.OutputFile,
		"examples_per_sec", fmt.Sprintf("%.2f", summary.Rate()),
	)
	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

// batch runs one scenario through generation, validation and persistence.
// batch runs one scenario; the run ID travels in ctx.
func (r *Runner) batch(ctx, bookCtx context.Context, seq int) (int, validate.BatchStats, error) {
	sc := r.sampler.Sample()
	ctx = observability.AddScenarioID(ctx, sc.ID)
	ctx, span := r.cfg.Tracer.TraceScenario(ctx, sc.ID, sc.Intent.Name)
	defer span.End()

	out := r.orch.GenerateOutcome(ctx, sc)
	valid, stats := r.validator.ValidateBatch(out.Items)

	n, err := corpus.AppendBatch(r.cfg.OutputFile, valid)
	if err != nil {
		r.cfg.Tracer.RecordError(span, err)
		return 0, stats, fmt.Errorf("append batch: %w", err)
	}

	r.observe(valid, stats)
	r.cfg.Tracer.SetAttributes(span, "outcome", out.Class, "accepted", n, "attempts", out.Attempts)

	logger := observability.WithContext(ctx, r.logger)
	r.record(logger, "record batch", func() error {
		return r.cfg.Ledger.RecordBatch(bookCtx, ledger.Batch{
			RunID:              observability.GetRunID(ctx),
			Seq:                seq,
			ScenarioID:         sc.ID,
			Intent:             sc.Intent.Name,
			Model:              out.Model,
			Attempts:           out.Attempts,
			Outcome:            out.Class,
			Generated:          len(out.Items),
			Accepted:           n,
			RejectedStructural: stats.InvalidStructural,
			RejectedQuality:    stats.InvalidQuality,
			RejectedDomain:     stats.InvalidDomain,
			Warnings:           stats.Warnings,
			CreatedAt:          r.now(),
		})
	})
	logger.Debug("batch done", "seq", seq, "intent", sc.Intent.Name, "outcome", out.Class,
		"generated", len(out.Items), "accepted", n, "trace_id", observability.GetTraceID(ctx))
	return n, stats, nil
}

func (r *Runner) observe(valid []record.TrainingExample, stats validate.BatchStats) {
	m := r.cfg.Metrics
	counts := corpus.CountByStatus(valid)
	for _, status := range record.Statuses {
		m.RecordAccepted(string(status), counts[status])
	}
	for _, c := range validate.Categories {
		m.RecordRejected(string(c), stats.Rejected(c))
	}
	m.RecordWarnings(stats.Warnings)
	m.RecordBatch(len(valid) > 0)
}

// record runs a ledger write, logging instead of failing the run.
func (r *Runner) record(logger *slog.Logger, what string, fn func() error) {
	if r.cfg.Ledger == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Warn("ledger write failed", "op", what, "error", err)
	}
}

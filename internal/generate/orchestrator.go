// Package generate turns sampled scenarios into validated training examples.
//
// The Orchestrator owns one scenario's provider calls: model choice, bounded
// retries and rate-limit backoff. The Runner drives the orchestrator until a
// target number of accepted examples has been appended to the raw corpus.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/routergen/internal/backoff"
	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/prompt"
	"github.com/haasonsaas/routergen/internal/providers"
	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/scenario"
)

// Outcome labels for a Generate call, beyond the provider error classes.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomePrompt    = "prompt_error"
)

// OrchestratorConfig configures the retry loop.
type OrchestratorConfig struct {
	// PrimaryModels are sampled uniformly for the first attempt.
	PrimaryModels []string

	// FallbackModel serves every retry. Empty reuses a primary model.
	FallbackModel string

	// RateLimitRetries bounds retries after rate limits.
	RateLimitRetries int

	// SchemaRetries bounds retries after malformed replies.
	SchemaRetries int

	// Policy computes rate-limit waits.
	Policy backoff.Policy

	Temperature float64
	MaxTokens   int
	BatchSize   int

	// RequestTimeout bounds each provider call. Calls are detached from the
	// caller's cancellation so an interrupt never aborts a request mid-flight.
	RequestTimeout time.Duration

	// Sleeper waits between rate-limited attempts. Defaults to
	// backoff.SleepWithContext.
	Sleeper backoff.Sleeper

	// Rand drives model and jitter choice. Defaults to a time-seeded source.
	Rand *rand.Rand

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// DefaultOrchestratorConfig returns the retry bounds used by the CLI.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PrimaryModels:    []string{"groq/llama-3.3-70b-versatile", "groq/llama-3.1-8b-instant"},
		FallbackModel:    "groq/llama-3.1-8b-instant",
		RateLimitRetries: 4,
		SchemaRetries:    3,
		Policy:           backoff.DefaultPolicy(),
		Temperature:      0.85,
		MaxTokens:        4096,
		BatchSize:        5,
		RequestTimeout:   2 * time.Minute,
	}
}

// Outcome describes how one Generate call ended.
type Outcome struct {
	Items []record.TrainingExample

	// Model is the model used by the last attempt.
	Model string

	// Attempts counts provider calls.
	Attempts int

	// Class is OutcomeSuccess, OutcomeCancelled, OutcomePrompt or the
	// providers.Class of the last failure.
	Class string

	// Err is the last failure, if any.
	Err error
}

// OrchestratorStats are cumulative counters across calls.
type OrchestratorStats struct {
	Calls          int64
	Attempts       int64
	Retries        int64
	RateLimits     int64
	SchemaFailures int64
	Failures       int64
}

type orchestratorCounters struct {
	calls, attempts, retries, rateLimits, schemaFailures, failures atomic.Int64
}

// Orchestrator issues provider calls for scenarios. No retry state lives on
// the Orchestrator, so concurrent Generate calls are safe.
type Orchestrator struct {
	gen     providers.Generator
	prompts *prompt.Builder
	sampler *scenario.Sampler
	cfg     OrchestratorConfig
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	counters orchestratorCounters
}

// NewOrchestrator validates cfg and fills defaults for zero fields.
func NewOrchestrator(gen providers.Generator, prompts *prompt.Builder, sampler *scenario.Sampler, cfg OrchestratorConfig) (*Orchestrator, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if prompts == nil || sampler == nil {
		return nil, errors.New("prompt builder and sampler are required")
	}
	if len(cfg.PrimaryModels) == 0 {
		return nil, errors.New("at least one primary model is required")
	}
	def := DefaultOrchestratorConfig()
	if cfg.RateLimitRetries < 0 {
		cfg.RateLimitRetries = 0
	}
	if cfg.SchemaRetries < 0 {
		cfg.SchemaRetries = 0
	}
	if cfg.Policy == (backoff.Policy{}) {
		cfg.Policy = def.Policy
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = backoff.SleepWithContext
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- model choice and jitter only
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		gen:     gen,
		prompts: prompts,
		sampler: sampler,
		cfg:     cfg,
		logger:  logger.With("component", "orchestrator"),
		rng:     rng,
	}, nil
}

// Generate returns the items of the first successful attempt for sc, or an
// empty slice when the attempts are exhausted or fail permanently.
func (o *Orchestrator) Generate(ctx context.Context, sc scenario.Scenario) []record.TrainingExample {
	return o.GenerateOutcome(ctx, sc).Items
}

// GenerateOutcome is Generate with the attempt details the ledger records.
//
// Attempt 0 draws a primary model; every retry uses the fallback model. Rate
// limits wait on a non-decreasing backoff schedule and retry while
// retry < RateLimitRetries. Schema failures retry without waiting while
// retry < SchemaRetries. Any other failure ends the call.
func (o *Orchestrator) GenerateOutcome(ctx context.Context, sc scenario.Scenario) Outcome {
	o.counters.calls.Add(1)
	logger := observability.WithContext(ctx, o.logger)

	style := o.sampler.RandomStyle()
	text, err := o.prompts.Build(sc, style, o.cfg.BatchSize)
	if err != nil {
		logger.Error("prompt build failed", "intent", sc.Intent.Name, "error", err)
		return Outcome{Class: OutcomePrompt, Err: fmt.Errorf("build prompt: %w", err)}
	}

	var out Outcome
	sched := backoff.NewSchedule(o.cfg.Policy)
	for retry := 0; ; retry++ {
		model := o.pickModel(retry)
		out.Model = model
		out.Attempts++
		if retry > 0 {
			o.counters.retries.Add(1)
		}

		items, err := o.attempt(ctx, model, text, retry)
		if err == nil {
			out.Items, out.Class, out.Err = items, OutcomeSuccess, nil
			return out
		}

		class := providers.Classify(err)
		out.Class, out.Err = string(class), err

		switch class {
		case providers.ClassRateLimit:
			o.counters.rateLimits.Add(1)
			if retry >= o.cfg.RateLimitRetries {
				logger.Warn("rate limit retries exhausted", "model", model, "attempts", out.Attempts)
				o.counters.failures.Add(1)
				return out
			}
			wait := sched.Next(retry, o.jitter())
			o.cfg.Metrics.RecordBackoff(wait.Seconds())
			logger.Warn("rate limited, backing off", "model", model, "retry", retry, "wait", wait)
			if err := o.cfg.Sleeper(ctx, wait); err != nil {
				out.Class, out.Err = OutcomeCancelled, err
				return out
			}

		case providers.ClassSchema:
			o.counters.schemaFailures.Add(1)
			if retry >= o.cfg.SchemaRetries {
				logger.Warn("schema retries exhausted", "model", model, "attempts", out.Attempts, "error", err)
				o.counters.failures.Add(1)
				return out
			}
			logger.Info("reply failed schema, retrying", "model", model, "retry", retry, "error", err)

		default:
			logger.Error("provider call failed", "model", model, "class", class, "reason", providers.Reason(err), "error", err)
			o.counters.failures.Add(1)
			return out
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, model, text string, retry int) ([]record.TrainingExample, error) {
	o.counters.attempts.Add(1)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RequestTimeout)
	defer cancel()
	callCtx, span := o.cfg.Tracer.TraceProviderCall(callCtx, model, retry)
	defer span.End()

	start := time.Now()
	items, err := o.gen.GenerateBatch(callCtx, providers.BatchRequest{
		Model:       model,
		Prompt:      text,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	elapsed := time.Since(start).Seconds()

	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(providers.Classify(err))
		o.cfg.Tracer.RecordError(span, err)
	}
	o.cfg.Metrics.RecordAttempt(model, outcome, elapsed)
	o.cfg.Tracer.SetAttributes(span, "outcome", outcome, "items", len(items))
	return items, err
}

func (o *Orchestrator) pickModel(retry int) string {
	if retry > 0 && o.cfg.FallbackModel != "" {
		return o.cfg.FallbackModel
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.PrimaryModels[o.rng.Intn(len(o.cfg.PrimaryModels))]
}

func (o *Orchestrator) jitter() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Float64()
}

// Stats returns a snapshot of the cumulative counters.
func (o *Orchestrator) Stats() OrchestratorStats {
	return OrchestratorStats{
		Calls:          o.counters.calls.Load(),
		Attempts:       o.counters.attempts.Load(),
		Retries:        o.counters.retries.Load(),
		RateLimits:     o.counters.rateLimits.Load(),
		SchemaFailures: o.counters.schemaFailures.Load(),
		Failures:       o.counters.failures.Load(),
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() OrchestratorConfig { return o.cfg }

package generate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/routergen/internal/corpus"
	"github.com/haasonsaas/routergen/internal/ledger"
	"github.com/haasonsaas/routergen/internal/providers"
	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/validate"
)

type fakeLedger struct {
	mu       sync.Mutex
	run      ledger.Run
	batches  []ledger.Batch
	finished ledger.Finish
}

func (l *fakeLedger) StartRun(_ context.Context, run ledger.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.run = run
	return nil
}

func (l *fakeLedger) RecordBatch(_ context.Context, b ledger.Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, b)
	return nil
}

func (l *fakeLedger) FinishRun(ctx context.Context, runID string, f ledger.Finish) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	l.finished = f
	return nil
}

// cancellingGenerator cancels the run while its first call is in flight.
type cancellingGenerator struct {
	cancel context.CancelFunc
	items  []record.TrainingExample
}

func (g *cancellingGenerator) GenerateBatch(ctx context.Context, _ providers.BatchRequest) ([]record.TrainingExample, error) {
	g.cancel()
	return g.items, ctx.Err()
}

func newRunner(t *testing.T, gen providers.Generator, cfg RunnerConfig) *Runner {
	t.Helper()
	orch, sampler := newOrchestrator(t, gen, &sleepRecorder{}, func(c *OrchestratorConfig) {
		c.BatchSize = 2
	})
	if cfg.OutputFile == "" {
		cfg.OutputFile = filepath.Join(t.TempDir(), "raw", "out.jsonl")
	}
	r, err := NewRunner(orch, sampler, validate.New(validate.Config{}, nil), cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	n := 0
	err := corpus.ReadFile(context.Background(), path, func(l corpus.Line) error {
		if l.Err != nil {
			t.Errorf("line %d: %v", l.Number, l.Err)
		}
		n++
		return nil
	})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return n
}

func TestRunReachesTarget(t *testing.T) {
	items := goodItems(t, "where is the retry limit", "find the auth middleware")
	invalid := record.TrainingExample{UserQuery: "orphan query"}
	gen := &scriptedGenerator{replies: []reply{{items: append(items, invalid)}}}
	book := &fakeLedger{}
	var progress bytes.Buffer

	r := newRunner(t, gen, RunnerConfig{Target: 5, Ledger: book, Progress: &progress})
	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Batches != 3 || summary.Accepted != 6 || summary.Interrupted {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Validation.InvalidStructural != 3 || summary.Validation.Valid != 6 {
		t.Errorf("validation = %+v", summary.Validation)
	}
	if got := countLines(t, summary.OutputFile); got != 6 {
		t.Errorf("lines = %d, want 6", got)
	}

	if book.run.ID != summary.RunID || book.run.Target != 5 || book.run.BatchSize != 2 {
		t.Errorf("ledger run = %+v", book.run)
	}
	if len(book.batches) != 3 {
		t.Fatalf("ledger batches = %d", len(book.batches))
	}
	for _, batch := range book.batches {
		if batch.RunID != summary.RunID {
			t.Errorf("batch %d run id = %q, want %q", batch.Seq, batch.RunID, summary.RunID)
		}
	}
	b := book.batches[2]
	if b.Seq != 3 || b.Outcome != OutcomeSuccess || b.Generated != 3 || b.Accepted != 2 || b.RejectedStructural != 1 || b.Attempts != 1 {
		t.Errorf("batch = %+v", b)
	}
	if book.finished.Status != ledger.StatusCompleted || book.finished.Accepted != 6 || book.finished.Batches != 3 {
		t.Errorf("finish = %+v", book.finished)
	}
	if !strings.Contains(progress.String(), "accepted 6/5") {
		t.Errorf("progress = %q", progress.String())
	}
	if n := strings.Count(progress.String(), "\n"); n != 1 || !strings.HasSuffix(progress.String(), "\n") {
		t.Errorf("progress should end with one newline, got %d in %q", n, progress.String())
	}
}

func TestRunStopsAtBatchCap(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{err: &providers.ProviderError{Reason: providers.ReasonServerError, Status: 503}}}}
	book := &fakeLedger{}
	r := newRunner(t, gen, RunnerConfig{Target: 4, Ledger: book})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != 3 || summary.Accepted != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := os.Stat(summary.OutputFile); !os.IsNotExist(err) {
		t.Errorf("output file created for empty run: %v", err)
	}
	for _, b := range book.batches {
		if b.Outcome != string(providers.ClassAPI) {
			t.Errorf("batch outcome = %q", b.Outcome)
		}
	}
}

func TestRunMaxBatchesOverride(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{items: goodItems(t, "where is the retry limit")}}}
	r := newRunner(t, gen, RunnerConfig{Target: 100, MaxBatches: 2})

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Batches != 2 || summary.Accepted != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{replies: []reply{{items: goodItems(t, "where is the retry limit")}}}
	book := &fakeLedger{}
	r := newRunner(t, gen, RunnerConfig{Target: 5, Ledger: book})

	summary, err := r.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Interrupted || summary.Batches != 0 || len(gen.calls) != 0 {
		t.Fatalf("summary = %+v, calls = %d", summary, len(gen.calls))
	}
	if book.finished.Status != ledger.StatusInterrupted {
		t.Errorf("finish status = %q", book.finished.Status)
	}
}

func TestRunInterruptKeepsBatchInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &cancellingGenerator{cancel: cancel, items: goodItems(t, "where is the retry limit", "find the auth middleware")}
	book := &fakeLedger{}
	r := newRunner(t, gen, RunnerConfig{Target: 50, Ledger: book})

	summary, err := r.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Interrupted || summary.Batches != 1 || summary.Accepted != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := countLines(t, summary.OutputFile); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
	if book.finished.Status != ledger.StatusInterrupted {
		t.Errorf("finish status = %q", book.finished.Status)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{{}}}
	orch, sampler := newOrchestrator(t, gen, &sleepRecorder{}, nil)
	v := validate.New(validate.Config{}, nil)

	if _, err := NewRunner(orch, sampler, v, RunnerConfig{OutputFile: "x.jsonl"}); err == nil {
		t.Error("zero target accepted")
	}
	if _, err := NewRunner(orch, sampler, v, RunnerConfig{Target: 1}); err == nil {
		t.Error("missing output file accepted")
	}
}

func TestSummaryRate(t *testing.T) {
	if (Summary{Accepted: 10}).Rate() != 0 {
		t.Error("zero duration should give zero rate")
	}
}

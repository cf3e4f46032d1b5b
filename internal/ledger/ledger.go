// Package ledger records generation runs and per-batch outcomes in SQL.
//
// SQLite (modernc.org/sqlite, pure Go) is the default backend; Postgres is
// available through lib/pq. Queries are written with ? placeholders and
// rebound for drivers that use $N.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/routergen/internal/observability"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the ledger database.
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns a file-backed SQLite ledger under data/.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Driver:          DriverSQLite,
		DSN:             "data/ledger.db",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Run is one invocation of the generation loop.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	Target        int
	BatchSize     int
	OutputFile    string
	PrimaryModels []string
	FallbackModel string
	Accepted      int
	Batches       int
}

// Batch is the outcome of one scenario within a run.
type Batch struct {
	RunID              string
	Seq                int
	ScenarioID         string
	Intent             string
	Model              string
	Attempts           int
	Outcome            string
	Generated          int
	Accepted           int
	RejectedStructural int
	RejectedQuality    int
	RejectedDomain     int
	Warnings           int
	CreatedAt          time.Time
}

// Finish closes a run.
type Finish struct {
	Status     string
	Accepted   int
	Batches    int
	FinishedAt time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics records query counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithTracer wraps each query in a span.
func WithTracer(t *observability.Tracer) Option {
	return func(l *Ledger) { l.tracer = t }
}

// Ledger is the SQL-backed run ledger. It is safe for concurrent use.
type Ledger struct {
	db      *sql.DB
	driver  string
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// ErrRunNotFound is returned when FinishRun names an unknown run.
var ErrRunNotFound = errors.New("run not found")

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Ledger, error) {
	def := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = def.Driver
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
	if cfg.Driver == DriverSQLite && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := New(db, cfg.Driver, opts...)
	if err := l.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database. driver controls placeholder style.
func New(db *sql.DB, driver string, opts ...Option) *Ledger {
	l := &Ledger{db: db, driver: driver}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close releases database resources.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at BIGINT NOT NULL,
		finished_at BIGINT,
		status TEXT NOT NULL,
		target INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		output_file TEXT NOT NULL,
		primary_models TEXT NOT NULL,
		fallback_model TEXT NOT NULL,
		accepted INTEGER NOT NULL DEFAULT 0,
		batches INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		scenario_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		model TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		generated INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		rejected_structural INTEGER NOT NULL,
		rejected_quality INTEGER NOT NULL,
		rejected_domain INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at)`,
}

// Migrate creates the ledger tables if they do not exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := l.exec(ctx, "migrate", "schema", stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// StartRun inserts a run in the running state.
func (l *Ledger) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := l.exec(ctx, "insert", "runs", `
		INSERT INTO runs (id, started_at, status, target, batch_size, output_file, primary_models, fallback_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UnixMilli(),
		StatusRunning,
		run.Target,
		run.BatchSize,
		run.OutputFile,
		strings.Join(run.PrimaryModels, ","),
		run.FallbackModel,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordBatch inserts one batch outcome.
func (l *Ledger) RecordBatch(ctx context.Context, b Batch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	err := l.exec(ctx, "insert", "batches", `
		INSERT INTO batches (run_id, seq, scenario_id, intent, model, attempts, outcome, generated, accepted,
			rejected_structural, rejected_quality, rejected_domain, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.RunID,
		b.Seq,
		b.ScenarioID,
		b.Intent,
		b.Model,
		b.Attempts,
		b.Outcome,
		b.Generated,
		b.Accepted,
		b.RejectedStructural,
		b.RejectedQuality,
		b.RejectedDomain,
		b.Warnings,
		b.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}

// FinishRun stores the final status and totals of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID string, f Finish) error {
	if f.FinishedAt.IsZero() {
		f.FinishedAt = time.Now()
	}
	ctx, span := l.tracer.TraceDatabaseQuery(ctx, "update", "runs")
	defer span.End()

	start := time.Now()
	res, err := l.db.ExecContext(ctx, l.rebind(`
		UPDATE runs SET finished_at = ?, status = ?, accepted = ?, batches = ?
		WHERE id = ?`),
		f.FinishedAt.UnixMilli(), f.Status, f.Accepted, f.Batches, runID,
	)
	l.observe("update", "runs", start, err)
	if err != nil {
		l.tracer.RecordError(span, err)
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, target, batch_size, output_file,
			primary_models, fallback_model, accepted, batches
		FROM runs
		ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	ctx, span := l.tracer.TraceDatabaseQuery(ctx, "select", "runs")
	defer span.End()

	start := time.Now()
	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	l.observe("select", "runs", start, err)
	if err != nil {
		l.tracer.RecordError(span, err)
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			startedAt  int64
			finishedAt sql.NullInt64
			models     string
		)
		if err := rows.Scan(
			&run.ID,
			&startedAt,
			&finishedAt,
			&run.Status,
			&run.Target,
			&run.BatchSize,
			&run.OutputFile,
			&models,
			&run.FallbackModel,
			&run.Accepted,
			&run.Batches,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt)
		if finishedAt.Valid {
			run.FinishedAt = time.UnixMilli(finishedAt.Int64)
		}
		if models != "" {
			run.PrimaryModels = strings.Split(models, ",")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// OutcomeCounts returns how many batches of a run ended with each outcome.
func (l *Ledger) OutcomeCounts(ctx context.Context, runID string) (map[string]int, error) {
	ctx, span := l.tracer.TraceDatabaseQuery(ctx, "select", "batches")
	defer span.End()

	start := time.Now()
	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT outcome, COUNT(*) FROM batches WHERE run_id = ? GROUP BY outcome`), runID)
	l.observe("select", "batches", start, err)
	if err != nil {
		l.tracer.RecordError(span, err)
		return nil, fmt.Errorf("outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (l *Ledger) exec(ctx context.Context, op, table, query string, args ...any) error {
	ctx, span := l.tracer.TraceDatabaseQuery(ctx, op, table)
	defer span.End()

	start := time.Now()
	_, err := l.db.ExecContext(ctx, l.rebind(query), args...)
	l.observe(op, table, start, err)
	if err != nil {
		l.tracer.RecordError(span, err)
	}
	return err
}

func (l *Ledger) observe(op, table string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	l.metrics.RecordDatabaseQuery(op, table, status, time.Since(start).Seconds())
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres.
func (l *Ledger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package publish

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/routergen/internal/backoff"
	"github.com/haasonsaas/routergen/internal/corpus"
	"github.com/haasonsaas/routergen/internal/observability"
)

// Kind selects which corpus files are published.
type Kind string

const (
	KindRaw       Kind = "raw"
	KindProcessed Kind = "processed"
)

// ManifestName is the object written next to each published set.
const ManifestName = "manifest.json"

// ErrNothingToPublish is returned when the source directory has no files.
var ErrNothingToPublish = errors.New("nothing to publish")

// Config selects the store and the retry behavior.
type Config struct {
	// Store is "local" or "s3".
	Store       string         `yaml:"store"`
	LocalDir    string         `yaml:"local_dir"`
	S3          S3Config       `yaml:"s3"`
	MaxAttempts int            `yaml:"max_attempts"`
	Backoff     backoff.Policy `yaml:"backoff"`
}

// DefaultConfig mirrors into data/published.
func DefaultConfig() Config {
	return Config{
		Store:       "local",
		LocalDir:    "data/published",
		MaxAttempts: 3,
		Backoff: backoff.Policy{
			Base:      500 * time.Millisecond,
			Cap:       10 * time.Second,
			JitterMax: 500 * time.Millisecond,
		},
	}
}

// NewStore builds the configured store.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Store {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown publish store %q", cfg.Store)
	}
}

// File describes one published object.
type File struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	Reference string `json:"reference"`
	Bytes     int64  `json:"bytes"`
	Lines     int    `json:"lines"`
	SHA256    string `json:"sha256"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// Manifest lists a published set.
type Manifest struct {
	Kind        Kind      `json:"kind"`
	PublishedAt time.Time `json:"published_at"`
	Files       []File    `json:"files"`
}

// Publisher uploads corpus files to a Store.
type Publisher struct {
	store        Store
	rawDir       string
	processedDir string
	maxAttempts  int
	policy       backoff.Policy
	skipExisting bool
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	now          func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.logger = l } }

// WithMetrics records upload counts.
func WithMetrics(m *observability.Metrics) Option { return func(p *Publisher) { p.metrics = m } }

// WithTracer wraps each upload in a span.
func WithTracer(t *observability.Tracer) Option { return func(p *Publisher) { p.tracer = t } }

// SkipExisting leaves raw files that are already in the store untouched.
// Raw files are append-only per run, so a present key is treated as final.
func SkipExisting(skip bool) Option { return func(p *Publisher) { p.skipExisting = skip } }

// NewPublisher publishes from rawDir and processedDir into store.
func NewPublisher(store Store, rawDir, processedDir string, cfg Config, opts ...Option) *Publisher {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = def.Backoff
	}
	p := &Publisher{
		store:        store,
		rawDir:       rawDir,
		processedDir: processedDir,
		maxAttempts:  cfg.MaxAttempts,
		policy:       cfg.Backoff,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "publish", "store", store.Name())
	return p
}

// Sources lists the local files for kind in upload order.
func (p *Publisher) Sources(kind Kind) ([]string, error) {
	switch kind {
	case KindRaw:
		paths, err := filepath.Glob(filepath.Join(p.rawDir, "*.jsonl"))
		if err != nil {
			return nil, fmt.Errorf("glob raw files: %w", err)
		}
		sort.Strings(paths)
		return paths, nil
	case KindProcessed:
		var paths []string
		for _, name := range []string{corpus.TrainFile, corpus.TestFile} {
			candidate := filepath.Join(p.processedDir, name)
			if _, err := os.Stat(candidate); err == nil {
				paths = append(paths, candidate)
			}
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("unknown publish kind %q", kind)
	}
}

// Publish uploads every source file for kind followed by a manifest.
func (p *Publisher) Publish(ctx context.Context, kind Kind) (Manifest, error) {
	paths, err := p.Sources(kind)
	if err != nil {
		return Manifest{}, err
	}
	if len(paths) == 0 {
		return Manifest{}, fmt.Errorf("%s: %w", kind, ErrNothingToPublish)
	}

	manifest := Manifest{Kind: kind, PublishedAt: p.now().UTC()}
	for _, local := range paths {
		f, err := p.publishFile(ctx, kind, local)
		if err != nil {
			return manifest, err
		}
		manifest.Files = append(manifest.Files, f)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return manifest, fmt.Errorf("encode manifest: %w", err)
	}
	key := path.Join(string(kind), ManifestName)
	if _, err := p.upload(ctx, key, func() (io.ReadSeeker, func(), error) {
		return bytes.NewReader(data), func() {}, nil
	}, PutOptions{ContentType: "application/json"}); err != nil {
		return manifest, err
	}
	p.logger.Info("published", "kind", kind, "files", len(manifest.Files))
	return manifest, nil
}

func (p *Publisher) publishFile(ctx context.Context, kind Kind, local string) (File, error) {
	name := filepath.Base(local)
	key := path.Join(string(kind), name)

	f, err := describe(local)
	if err != nil {
		return File{}, err
	}
	f.Name, f.Key = name, key

	if kind == KindRaw && p.skipExisting {
		exists, err := p.store.Exists(ctx, key)
		if err != nil {
			return File{}, fmt.Errorf("check %s: %w", key, err)
		}
		if exists {
			f.Skipped = true
			p.logger.Info("already published", "key", key)
			return f, nil
		}
	}

	ref, err := p.upload(ctx, key, func() (io.ReadSeeker, func(), error) {
		fh, err := os.Open(local)
		if err != nil {
			return nil, nil, err
		}
		return fh, func() { _ = fh.Close() }, nil
	}, PutOptions{
		ContentType: "application/x-ndjson",
		Metadata:    map[string]string{"sha256": f.SHA256, "kind": string(kind)},
	})
	if err != nil {
		return File{}, err
	}
	f.Reference = ref
	p.logger.Info("uploaded", "file", local, "reference", ref, "lines", f.Lines)
	return f, nil
}

// upload puts one object, retrying with backoff. open is called per attempt
// so each attempt reads from the start.
func (p *Publisher) upload(ctx context.Context, key string, open func() (io.ReadSeeker, func(), error), opts PutOptions) (string, error) {
	var ref string
	err := observability.WithSpan(ctx, p.tracer, "publish.upload", func(ctx context.Context, span trace.Span) error {
		p.tracer.SetAttributes(span, "key", key, "store", p.store.Name())
		return backoff.Retry(ctx, p.policy, p.maxAttempts, func(attempt int) error {
			body, closeFn, err := open()
			if err != nil {
				return fmt.Errorf("open %s: %w", key, err)
			}
			defer closeFn()

			ref, err = p.store.Put(ctx, key, body, opts)
			if err != nil {
				p.logger.Warn("upload failed", "key", key, "attempt", attempt+1, "error", err)
			}
			return err
		})
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordUpload(p.store.Name(), status)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return ref, nil
}

// describe hashes a file and counts its non-blank lines.
func describe(local string) (File, error) {
	fh, err := os.Open(local)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()

	h := sha256.New()
	r := bufio.NewReader(io.TeeReader(fh, h))
	var f File
	for {
		line, err := r.ReadBytes('\n')
		f.Bytes += int64(len(line))
		if len(bytes.TrimSpace(line)) > 0 {
			f.Lines++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return File{}, fmt.Errorf("read %s: %w", local, err)
		}
	}
	f.SHA256 = hex.EncodeToString(h.Sum(nil))
	return f, nil
}

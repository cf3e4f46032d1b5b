package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/record"
)

var (
	// ErrNoInputFiles means the raw directory holds no *.jsonl files.
	ErrNoInputFiles = errors.New("corpus: no raw jsonl files found")
	// ErrNoValidData means no example survived aggregation.
	ErrNoValidData = errors.New("corpus: no valid data")
)

// Split file names inside the processed directory.
const (
	TrainFile = "train.jsonl"
	TestFile  = "test.jsonl"
)

// BuildOptions configures Build.
type BuildOptions struct {
	RawDir       string
	ProcessedDir string
	TrainRatio   float64
	Seed         int64
	Render       RenderOptions
	Validator    Validator
	Logger       *slog.Logger
	// Metrics receives per-split sizes once both files are written.
	Metrics *observability.Metrics
}

// SplitCounts is the per-status size of one split.
type SplitCounts struct {
	Complete int `json:"complete"`
	Running  int `json:"running"`
}

// Total is the split size.
func (c SplitCounts) Total() int { return c.Complete + c.Running }

// BuildReport summarises a Build.
type BuildReport struct {
	Files        []string    `json:"files"`
	FilesSkipped int         `json:"files_skipped"`
	Unique       int         `json:"unique"`
	Duplicates   int         `json:"duplicates"`
	Dropped      int         `json:"dropped"`
	Train        SplitCounts `json:"train"`
	Test         SplitCounts `json:"test"`
	TrainPath    string      `json:"train_path"`
	TestPath     string      `json:"test_path"`

	// TrainExamples is kept for previews; it is not serialised.
	TrainExamples []record.TrainingExample `json:"-"`
}

// Build aggregates every raw file, splits the result and writes the rendered
// train and test files. Both files are replaced atomically.
func Build(ctx context.Context, opts BuildOptions) (BuildReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Validator == nil {
		return BuildReport{}, errors.New("corpus: build needs a validator")
	}
	if opts.TrainRatio == 0 {
		opts.TrainRatio = DefaultTrainRatio
	}

	files, err := filepath.Glob(filepath.Join(opts.RawDir, "*.jsonl"))
	if err != nil {
		return BuildReport{}, fmt.Errorf("glob raw dir: %w", err)
	}
	if len(files) == 0 {
		return BuildReport{}, fmt.Errorf("%w in %s", ErrNoInputFiles, opts.RawDir)
	}
	sort.Strings(files)
	logger.Info("building corpus", "raw_dir", opts.RawDir, "files", len(files))

	agg, err := Aggregate(ctx, files, opts.Validator, logger)
	if err != nil {
		return BuildReport{}, err
	}
	report := BuildReport{
		Files:        files,
		FilesSkipped: agg.FilesSkipped,
		Unique:       len(agg.Examples),
		Duplicates:   agg.Duplicates,
		Dropped:      agg.Dropped,
	}
	if len(agg.Examples) == 0 {
		return report, ErrNoValidData
	}

	train, test := Split(agg.Examples, opts.TrainRatio, opts.Seed)
	report.Train = splitCounts(train)
	report.Test = splitCounts(test)
	report.TrainExamples = train

	report.TrainPath = filepath.Join(opts.ProcessedDir, TrainFile)
	report.TestPath = filepath.Join(opts.ProcessedDir, TestFile)
	if err := writeSplit(report.TrainPath, train, opts.Render); err != nil {
		return report, err
	}
	if err := writeSplit(report.TestPath, test, opts.Render); err != nil {
		return report, err
	}

	recordSplit(opts.Metrics, "train", report.Train)
	recordSplit(opts.Metrics, "test", report.Test)

	logger.Info("corpus written",
		"train", report.Train.Total(),
		"test", report.Test.Total(),
		"train_path", report.TrainPath,
		"test_path", report.TestPath)
	return report, nil
}

type renderedLine struct {
	Text string `json:"text"`
}

func writeSplit(path string, examples []record.TrainingExample, opts RenderOptions) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, ex := range examples {
		text, err := Render(ex, opts)
		if err != nil {
			return err
		}
		// Encode appends the newline.
		if err := enc.Encode(renderedLine{Text: text}); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func recordSplit(m *observability.Metrics, split string, c SplitCounts) {
	m.RecordBuild(split, string(record.StatusComplete), c.Complete)
	m.RecordBuild(split, string(record.StatusRunning), c.Running)
}

func splitCounts(examples []record.TrainingExample) SplitCounts {
	counts := CountByStatus(examples)
	return SplitCounts{Complete: counts[record.StatusComplete], Running: counts[record.StatusRunning]}
}

package validate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/routergen/internal/record"
)

// FileStats counts the outcome of auditing one JSONL file.
type FileStats struct {
	Total             int `json:"total"`
	Valid             int `json:"valid"`
	InvalidStructural int `json:"invalid_structural"`
	InvalidQuality    int `json:"invalid_quality"`
	InvalidDomain     int `json:"invalid_domain"`
	ParseErrors       int `json:"parse_errors"`
}

// Invalid is the number of decoded but rejected lines.
func (s FileStats) Invalid() int {
	return s.InvalidStructural + s.InvalidQuality + s.InvalidDomain
}

// ValidPercent is the share of valid lines, 0 for an empty file.
func (s FileStats) ValidPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Total) * 100
}

// Add merges o into s.
func (s *FileStats) Add(o FileStats) {
	s.Total += o.Total
	s.Valid += o.Valid
	s.InvalidStructural += o.InvalidStructural
	s.InvalidQuality += o.InvalidQuality
	s.InvalidDomain += o.InvalidDomain
	s.ParseErrors += o.ParseErrors
}

// AuditOption adjusts AuditFile.
type AuditOption func(*auditOptions)

type auditOptions struct {
	maxItems int
}

// MaxItems stops the audit after n non-blank lines. n <= 0 means no limit.
func MaxItems(n int) AuditOption {
	return func(o *auditOptions) { o.maxItems = n }
}

// AuditFile validates every line of a JSONL file without modifying it.
func (v *Validator) AuditFile(ctx context.Context, path string, opts ...AuditOption) (FileStats, error) {
	var o auditOptions
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return FileStats{}, err
	}
	defer f.Close()

	var stats FileStats
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if o.maxItems > 0 && stats.Total >= o.maxItems {
			break
		}
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return stats, fmt.Errorf("read %s: %w", path, readErr)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			stats.Total++
			v.auditLine(path, lineNo, trimmed, &stats)
		}
		if readErr != nil {
			break
		}
	}
	return stats, nil
}

func (v *Validator) auditLine(path string, lineNo int, line []byte, stats *FileStats) {
	var ex record.TrainingExample
	if err := json.Unmarshal(line, &ex); err != nil {
		stats.ParseErrors++
		v.logger.Warn("unparseable line", "file", path, "line", lineNo, "error", err)
		return
	}
	res := v.Validate(ex)
	switch {
	case res.Valid:
		stats.Valid++
		return
	case res.Category == CategoryStructural:
		stats.InvalidStructural++
	case res.Category == CategoryQuality:
		stats.InvalidQuality++
	case res.Category == CategoryDomain:
		stats.InvalidDomain++
	}
	if res.Category == CategoryDomain {
		v.logger.Warn("domain rejection", "file", path, "line", lineNo, "reason", res.Reason, "snippet", preview(string(line), 120))
	}
}

// FileReport pairs a path with its audit result.
type FileReport struct {
	Path  string    `json:"path"`
	Stats FileStats `json:"stats"`
}

// ValidateFiles audits paths concurrently. Reports keep the input order.
// The first failing file cancels the rest.
func (v *Validator) ValidateFiles(ctx context.Context, paths []string, opts ...AuditOption) ([]FileReport, error) {
	reports := make([]FileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			stats, err := v.AuditFile(gctx, path, opts...)
			if err != nil {
				return err
			}
			reports[i] = FileReport{Path: path, Stats: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

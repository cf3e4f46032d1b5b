// Package corpus reads and writes raw example files and turns them into a
// deduplicated, stratified train/test split.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/haasonsaas/routergen/internal/record"
)

// AppendBatch appends examples to a JSONL file, one per line, creating the
// file and its parent directories if needed. The file is closed before
// returning. It returns the number of lines written.
func AppendBatch(path string, examples []record.TrainingExample) (int, error) {
	if len(examples) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	var buf bytes.Buffer
	for _, ex := range examples {
		line, err := record.Marshal(ex)
		if err != nil {
			return 0, fmt.Errorf("encode example: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	return len(examples), nil
}

// Line is one non-blank line of a raw file. Err is set when the line does not
// decode; Example is then zero.
type Line struct {
	Number  int
	Example record.TrainingExample
	Err     error
}

// ErrStop can be returned from a ReadFile callback to end reading early
// without an error.
var ErrStop = errors.New("corpus: stop reading")

// ReadFile streams the decoded lines of a JSONL file to fn. Blank lines are
// skipped. A per-line decode failure is reported through Line.Err and does not
// stop the read.
func ReadFile(ctx context.Context, path string, fn func(Line) error) error {
	f, err := os.Open(path)
	if err != nil {
		// *PathError already names the file.
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read %s line %d: %w", path, n, readErr)
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			line := Line{Number: n}
			if err := json.Unmarshal(trimmed, &line.Example); err != nil {
				line.Err = err
			}
			if err := fn(line); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

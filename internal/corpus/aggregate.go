package corpus

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/validate"
)

// Validator is the subset of *validate.Validator aggregation needs.
type Validator interface {
	Validate(record.TrainingExample) validate.Result
}

// Aggregation is the merged, deduplicated content of several raw files.
type Aggregation struct {
	Examples     []record.TrainingExample
	Duplicates   int
	FilesRead    int
	FilesSkipped int
	// Dropped counts lines that failed to decode or validate.
	Dropped int
}

// Aggregate reads paths in order, keeps examples that pass v and drops later
// repeats of an exact user_query. A file that cannot be opened or read is
// skipped with a warning; examples already taken from it are discarded so a
// skipped file contributes nothing.
func Aggregate(ctx context.Context, paths []string, v Validator, logger *slog.Logger) (Aggregation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "corpus")

	var agg Aggregation
	seen := make(map[string]struct{})

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return agg, err
		}

		var (
			kept    []record.TrainingExample
			dropped int
		)
		err := ReadFile(ctx, path, func(l Line) error {
			if l.Err != nil {
				dropped++
				logger.Warn("skipping unparseable line", "file", path, "line", l.Number, "error", l.Err)
				return nil
			}
			if res := v.Validate(l.Example); !res.Valid {
				dropped++
				logger.Debug("dropping invalid example", "file", path, "line", l.Number, "category", res.Category, "reason", res.Reason)
				return nil
			}
			kept = append(kept, l.Example)
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return agg, ctx.Err()
			}
			agg.FilesSkipped++
			logger.Warn("skipping file", "file", path, "error", err)
			continue
		}

		agg.FilesRead++
		agg.Dropped += dropped
		for _, ex := range kept {
			if _, dup := seen[ex.UserQuery]; dup {
				agg.Duplicates++
				continue
			}
			seen[ex.UserQuery] = struct{}{}
			agg.Examples = append(agg.Examples, ex)
		}
		logger.Info("read raw file", "file", path, "kept", len(kept), "dropped", dropped)
	}

	logger.Info("aggregation complete",
		"unique", len(agg.Examples),
		"duplicates", agg.Duplicates,
		"files_read", agg.FilesRead,
		"files_skipped", agg.FilesSkipped)
	return agg, nil
}

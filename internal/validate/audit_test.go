package validate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/routergen/internal/record"
)

const (
	validLine    = `{"user_query":"where is the webhook retry limit","output":{"status":"running","thought":"Retry settings live in the delivery worker, so a hybrid search narrows the lookup quickly.","tool_use":{"tool_name":"codebase_search","arguments":{"query":"webhook retry limit","mode":"hybrid"}}}}`
	qualityLine  = `{"user_query":"find the payment retry code","output":{"status":"running","thought":"Search for it.","tool_use":{"tool_name":"codebase_search","arguments":{"query":"payment retry"}}}}`
	domainLine   = `{"user_query":"look through the code","output":{"status":"running","thought":"Retry settings live in the delivery worker, so a hybrid search narrows the lookup quickly.","tool_use":{"tool_name":"codebase_search","arguments":{"query":"todo"}}}}`
	answerLine   = `{"user_query":"what is a mutex","output":{"status":"complete","final_answer":"A lock that admits one holder at a time."}}`
	mixedLine    = `{"user_query":"what is a mutex","output":{"status":"complete","final_answer":"x","thought":"nope"}}`
	brokenLine   = `{"user_query": "unterminated`
	blankPadding = "   "
)

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateBatch(t *testing.T) {
	v := New(Config{}, nil)
	items := []record.TrainingExample{
		running(t, "where is the webhook retry limit", goodThought, search("webhook retry limit")),
		running(t, "find the payment retry code", "Search for it.", search("payment retry")),
		running(t, "look through the code", goodThought, search("todo")),
		{UserQuery: "orphan query"},
		complete("is PUT idempotent", "Maybe, it depends on the server implementation."),
	}

	valid, stats := v.ValidateBatch(items)
	want := BatchStats{Total: 5, Valid: 2, InvalidStructural: 1, InvalidQuality: 1, InvalidDomain: 1, Warnings: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(valid) != 2 || valid[0].UserQuery != items[0].UserQuery || valid[1].UserQuery != items[4].UserQuery {
		t.Fatalf("valid items out of order: %+v", valid)
	}
	if stats.Invalid() != 3 || stats.Rejected(CategoryDomain) != 1 {
		t.Errorf("Invalid() = %d, Rejected(domain) = %d", stats.Invalid(), stats.Rejected(CategoryDomain))
	}
}

func TestValidateBatchLogsDroppedTool(t *testing.T) {
	var buf bytes.Buffer
	v := New(Config{}, slog.New(slog.NewJSONHandler(&buf, nil)))
	v.ValidateBatch([]record.TrainingExample{
		running(t, "look through the code", goodThought, search("todo")),
	})
	out := buf.String()
	if !strings.Contains(out, `"msg":"dropped example"`) || !strings.Contains(out, "codebase_search(hybrid") {
		t.Fatalf("drop log = %s", out)
	}
}

func TestAuditFile(t *testing.T) {
	dir := t.TempDir()
	path := writeLines(t, dir, "raw.jsonl", validLine, qualityLine, blankPadding, domainLine, answerLine, mixedLine, brokenLine)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	v := New(Config{}, nil)
	stats, err := v.AuditFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AuditFile: %v", err)
	}
	want := FileStats{Total: 6, Valid: 2, InvalidQuality: 1, InvalidDomain: 1, ParseErrors: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if got := stats.ValidPercent(); got < 33.3 || got > 33.4 {
		t.Errorf("ValidPercent = %v", got)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("audit modified the file")
	}
}

func TestAuditFileMaxItems(t *testing.T) {
	path := writeLines(t, t.TempDir(), "raw.jsonl", validLine, blankPadding, qualityLine, domainLine)
	stats, err := New(Config{}, nil).AuditFile(context.Background(), path, MaxItems(2))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Valid != 1 || stats.InvalidQuality != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAuditFileMissing(t *testing.T) {
	_, err := New(Config{}, nil).AuditFile(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeLines(t, dir, "a.jsonl", validLine, qualityLine)
	b := writeLines(t, dir, "b.jsonl", answerLine)
	c := writeLines(t, dir, "c.jsonl", brokenLine, domainLine, validLine)

	v := New(Config{}, nil)
	reports, err := v.ValidateFiles(context.Background(), []string{a, b, c})
	if err != nil {
		t.Fatalf("ValidateFiles: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("reports = %d", len(reports))
	}
	for i, want := range []string{a, b, c} {
		if reports[i].Path != want {
			t.Errorf("report %d path = %s, want %s", i, reports[i].Path, want)
		}
	}
	var total FileStats
	for _, r := range reports {
		total.Add(r.Stats)
	}
	want := FileStats{Total: 6, Valid: 3, InvalidQuality: 1, InvalidDomain: 1, ParseErrors: 1}
	if total != want {
		t.Fatalf("total = %+v, want %+v", total, want)
	}

	if _, err := v.ValidateFiles(context.Background(), []string{a, filepath.Join(dir, "missing.jsonl")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

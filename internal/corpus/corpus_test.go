package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/validate"
)

func mustRunning(t *testing.T, query string) record.TrainingExample {
	t.Helper()
	tool, err := record.NewSearch("session cache eviction", record.ModeSemantic, "*.go")
	if err != nil {
		t.Fatal(err)
	}
	out, err := record.NewRunning("Eviction rules sit in the cache layer, so a semantic search over Go files finds them.", tool)
	if err != nil {
		t.Fatal(err)
	}
	ex, err := record.NewExample(query, out)
	if err != nil {
		t.Fatal(err)
	}
	return ex
}

func mustComplete(t *testing.T, query string) record.TrainingExample {
	t.Helper()
	out, err := record.NewComplete("A goroutine is a lightweight thread managed by the Go runtime.")
	if err != nil {
		t.Fatal(err)
	}
	ex, err := record.NewExample(query, out)
	if err != nil {
		t.Fatal(err)
	}
	return ex
}

func queries(examples []record.TrainingExample) []string {
	out := make([]string, len(examples))
	for i, ex := range examples {
		out[i] = ex.UserQuery
	}
	return out
}

func TestAppendBatchAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "raw.jsonl")

	n, err := AppendBatch(path, []record.TrainingExample{mustRunning(t, "where is cache eviction <b>"), mustComplete(t, "what is a goroutine")})
	if err != nil || n != 2 {
		t.Fatalf("AppendBatch = %d, %v", n, err)
	}
	if n, err := AppendBatch(path, []record.TrainingExample{mustComplete(t, "explain goroutines again")}); err != nil || n != 1 {
		t.Fatalf("second AppendBatch = %d, %v", n, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("null")) {
		t.Errorf("raw file contains null: %s", data)
	}
	if !bytes.Contains(data, []byte("<b>")) {
		t.Errorf("HTML should not be escaped: %s", data)
	}

	// Append garbage and a blank line to exercise per-line errors.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString("\n{not json}\n")
	_ = f.Close()

	var got []Line
	if err := ReadFile(context.Background(), path, func(l Line) error {
		got = append(got, l)
		return nil
	}); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("lines = %d, want 4", len(got))
	}
	if got[0].Example.UserQuery != "where is cache eviction <b>" || got[2].Number != 3 {
		t.Errorf("unexpected lines: %+v", got)
	}
	if got[3].Err == nil || got[3].Number != 5 {
		t.Errorf("bad line = %+v, want decode error on line 5", got[3])
	}

	var count int
	_ = ReadFile(context.Background(), path, func(Line) error {
		count++
		return ErrStop
	})
	if count != 1 {
		t.Errorf("ErrStop read %d lines", count)
	}
}

func TestReadFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonl")
	err := ReadFile(context.Background(), path, func(Line) error { return nil })
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
	if n := strings.Count(err.Error(), path); n != 1 {
		t.Errorf("error names the path %d times: %v", n, err)
	}
}

func TestAppendBatchUnwritable(t *testing.T) {
	// The target is a directory, so opening it for append fails.
	path := t.TempDir()
	_, err := AppendBatch(path, []record.TrainingExample{mustComplete(t, "what is a goroutine")})
	if err == nil {
		t.Fatal("expected error appending to a directory")
	}
	if n := strings.Count(err.Error(), path); n != 1 {
		t.Errorf("error names the path %d times: %v", n, err)
	}
}

func TestAppendBatchEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")
	if n, err := AppendBatch(path, nil); n != 0 || err != nil {
		t.Fatalf("AppendBatch(nil) = %d, %v", n, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("empty batch should not create the file")
	}
}

func TestAggregateDedupAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	b := filepath.Join(dir, "b.jsonl")
	shared := mustRunning(t, "where is cache eviction handled")
	if _, err := AppendBatch(a, []record.TrainingExample{shared, mustComplete(t, "what is a goroutine")}); err != nil {
		t.Fatal(err)
	}
	if _, err := AppendBatch(b, []record.TrainingExample{shared, mustComplete(t, "hi")}); err != nil {
		t.Fatal(err)
	}

	v := validate.New(validate.Config{}, nil)
	agg, err := Aggregate(context.Background(), []string{a, b, filepath.Join(dir, "missing.jsonl")}, v, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", agg.Duplicates)
	}
	if agg.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 (short query)", agg.Dropped)
	}
	if agg.FilesRead != 2 || agg.FilesSkipped != 1 {
		t.Errorf("FilesRead = %d, FilesSkipped = %d", agg.FilesRead, agg.FilesSkipped)
	}
	want := []string{"where is cache eviction handled", "what is a goroutine"}
	if got := queries(agg.Examples); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("examples = %v, want %v", got, want)
	}
}

func makeCorpus(t *testing.T, complete, running int) []record.TrainingExample {
	t.Helper()
	var out []record.TrainingExample
	for i := 0; i < complete; i++ {
		out = append(out, mustComplete(t, fmt.Sprintf("concept question %d", i)))
	}
	for i := 0; i < running; i++ {
		out = append(out, mustRunning(t, fmt.Sprintf("find cache code %d", i)))
	}
	return out
}

func TestSplitStratified(t *testing.T) {
	tests := []struct {
		name              string
		complete, running int
		ratio             float64
		wantTrainComplete int
		wantTrainRunning  int
	}{
		{"default ratio", 10, 25, 0.9, 9, 22},
		{"tiny classes", 1, 3, 0.9, 0, 2},
		{"all train", 4, 4, 1, 4, 4},
		{"all test", 4, 4, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := makeCorpus(t, tt.complete, tt.running)
			train, test := Split(data, tt.ratio, DefaultSeed)
			tc := CountByStatus(train)
			if tc[record.StatusComplete] != tt.wantTrainComplete || tc[record.StatusRunning] != tt.wantTrainRunning {
				t.Errorf("train counts = %v", tc)
			}
			if len(train)+len(test) != len(data) {
				t.Errorf("split lost examples: %d + %d != %d", len(train), len(test), len(data))
			}
		})
	}
}

func TestSplitReproducible(t *testing.T) {
	data := makeCorpus(t, 12, 30)
	snapshot := strings.Join(queries(data), "|")

	train1, test1 := Split(data, 0.8, 7)
	train2, test2 := Split(data, 0.8, 7)
	if strings.Join(queries(train1), "|") != strings.Join(queries(train2), "|") ||
		strings.Join(queries(test1), "|") != strings.Join(queries(test2), "|") {
		t.Fatal("same seed produced different splits")
	}
	if strings.Join(queries(data), "|") != snapshot {
		t.Fatal("Split modified its input")
	}

	train3, _ := Split(data, 0.8, 8)
	if strings.Join(queries(train1), "|") == strings.Join(queries(train3), "|") {
		t.Error("different seeds produced identical order")
	}
}

func TestRender(t *testing.T) {
	ex := mustComplete(t, "  what is a goroutine  ")
	got, err := Render(ex, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := "<|start_header_id|>system<|end_header_id|>\n\n" + SystemPrompt + "<|eot_id|>" +
		"<|start_header_id|>user<|end_header_id|>\n\nwhat is a goroutine<|eot_id|>" +
		`<|start_header_id|>assistant<|end_header_id|>` + "\n\n" +
		`{"status":"complete","final_answer":"A goroutine is a lightweight thread managed by the Go runtime."}<|eot_id|>`
	if got != want {
		t.Fatalf("Render =\n%s\nwant\n%s", got, want)
	}

	withBOS, _ := Render(ex, RenderOptions{AddBOS: true})
	if !strings.HasPrefix(withBOS, "<|begin_of_text|><|start_header_id|>system") {
		t.Errorf("BOS missing: %.60s", withBOS)
	}
}

func TestBuild(t *testing.T) {
	raw := t.TempDir()
	processed := filepath.Join(t.TempDir(), "processed")
	v := validate.New(validate.Config{}, nil)

	if _, err := Build(context.Background(), BuildOptions{RawDir: raw, ProcessedDir: processed, Validator: v}); !errors.Is(err, ErrNoInputFiles) {
		t.Fatalf("empty raw dir err = %v, want ErrNoInputFiles", err)
	}

	if _, err := AppendBatch(filepath.Join(raw, "bad.jsonl"), []record.TrainingExample{mustComplete(t, "hi")}); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(context.Background(), BuildOptions{RawDir: raw, ProcessedDir: processed, Validator: v}); !errors.Is(err, ErrNoValidData) {
		t.Fatalf("err = %v, want ErrNoValidData", err)
	}

	if _, err := AppendBatch(filepath.Join(raw, "good.jsonl"), makeCorpus(t, 10, 20)); err != nil {
		t.Fatal(err)
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	opts := BuildOptions{RawDir: raw, ProcessedDir: processed, TrainRatio: 0.9, Seed: DefaultSeed, Validator: v, Metrics: metrics}
	report, err := Build(context.Background(), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Unique != 30 || report.Dropped != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Train != (SplitCounts{Complete: 9, Running: 18}) || report.Test != (SplitCounts{Complete: 1, Running: 2}) {
		t.Errorf("train = %+v, test = %+v", report.Train, report.Test)
	}
	for _, tt := range []struct {
		split, status string
		want          float64
	}{
		{"train", "complete", 9},
		{"train", "running", 18},
		{"test", "complete", 1},
		{"test", "running", 2},
	} {
		if got := testutil.ToFloat64(metrics.BuildExamples.WithLabelValues(tt.split, tt.status)); got != tt.want {
			t.Errorf("build gauge %s/%s = %v, want %v", tt.split, tt.status, got, tt.want)
		}
	}

	first, err := os.ReadFile(report.TrainPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(first)), "\n")
	if len(lines) != 27 {
		t.Fatalf("train lines = %d", len(lines))
	}
	var row struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil || !strings.Contains(row.Text, "<|eot_id|>") {
		t.Fatalf("train row = %q, %v", lines[0], err)
	}
	if strings.Contains(string(first), `\u003c`) {
		t.Error("rendered text should not be HTML-escaped")
	}

	if _, err := Build(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(report.TrainPath)
	if !bytes.Equal(first, second) {
		t.Error("rebuild is not byte-identical")
	}
}

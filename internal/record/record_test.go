package record

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestNewRunningNormalizesThought(t *testing.T) {
	r, err := NewRunning("  look   for\tthe\nhandler  ", NewExec("print(1)", 0))
	if err != nil {
		t.Fatalf("NewRunning: %v", err)
	}
	if r.Thought != "look for the handler" {
		t.Fatalf("thought = %q", r.Thought)
	}
	if r.Tool.(Exec).Timeout != DefaultExecTimeout {
		t.Fatalf("timeout = %d, want %d", r.Tool.(Exec).Timeout, DefaultExecTimeout)
	}
}

func TestConstructorsRejectInvalidStates(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"running without thought", func() error { _, err := NewRunning("   ", NewEscalate("why?", "")); return err }},
		{"running without tool", func() error { _, err := NewRunning("a thought", nil); return err }},
		{"complete without answer", func() error { _, err := NewComplete(" "); return err }},
		{"example without query", func() error { _, err := NewExample("", Complete{FinalAnswer: "x"}); return err }},
		{"example without output", func() error { _, err := NewExample("q", nil); return err }},
		{"bad search mode", func() error { _, err := NewSearch("q", "fuzzy", ""); return err }},
		{"bad file op", func() error { _, err := NewFileOp("delete", "a.go", "", "", nil); return err }},
		{"write without content", func() error { _, err := NewFileOp(OpWrite, "a.go", "", "", nil); return err }},
		{"patch without target", func() error { _, err := NewFileOp(OpPatch, "a.go", "", "", strPtr("x")); return err }},
		{"patch without replacement", func() error { _, err := NewFileOp(OpPatch, "a.go", "", "x", nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestNewFileOpPatchAllowsEmptyReplacement(t *testing.T) {
	f, err := NewFileOp(OpPatch, "main.go", "ignored", "debug := true", strPtr(""))
	if err != nil {
		t.Fatalf("NewFileOp: %v", err)
	}
	if f.Replacement == nil || *f.Replacement != "" {
		t.Fatalf("replacement = %v", f.Replacement)
	}
	if f.Content != "" {
		t.Fatalf("content should be dropped for patch, got %q", f.Content)
	}
}

func TestNewSearchDefaultsHybrid(t *testing.T) {
	s, err := NewSearch("AuthMiddleware", "", "")
	if err != nil {
		t.Fatalf("NewSearch: %v", err)
	}
	if s.Mode != ModeHybrid {
		t.Fatalf("mode = %q", s.Mode)
	}
}

func TestExampleJSONRoundTrip(t *testing.T) {
	search, _ := NewSearch("func Login", ModeExact, "*.go")
	patch, _ := NewFileOp(OpPatch, "cfg.yaml", "", "debug: true", strPtr(""))
	running1, _ := NewRunning("The user wants the login handler so search for its definition", search)
	running2, _ := NewRunning("Disable debug in the config by removing the flag line entirely", patch)
	complete, _ := NewComplete("A goroutine is a lightweight thread managed by the Go runtime.")

	examples := []TrainingExample{
		{UserQuery: "where is Login defined?", Output: running1},
		{UserQuery: "turn off debug in cfg.yaml", Output: running2},
		{UserQuery: "what is a goroutine?", Output: complete},
	}
	for _, ex := range examples {
		data, err := Marshal(ex)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if strings.Contains(string(data), "null") {
			t.Fatalf("encoded form contains null: %s", data)
		}
		var got TrainingExample
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		again, _ := Marshal(got)
		if string(again) != string(data) {
			t.Fatalf("round trip mismatch:\n%s\n%s", data, again)
		}
	}
}

func TestMarshalKeepsAngleBrackets(t *testing.T) {
	out, _ := NewRunning("Run a comparison to check the inequality result", NewExec("print(1 < 2 && 3 > 2)", 10))
	data, err := Marshal(TrainingExample{UserQuery: "is 1 < 2?", Output: out})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "1 < 2 && 3 > 2") {
		t.Fatalf("html escaped: %s", data)
	}
	want := `{"user_query":"is 1 < 2?","output":{"status":"running","thought":"Run a comparison to check the inequality result","tool_use":{"tool_name":"sandbox_exec","arguments":{"code":"print(1 < 2 && 3 > 2)","timeout":10}}}}`
	if string(data) != want {
		t.Fatalf("got  %s\nwant %s", data, want)
	}
}

func TestUnmarshalRejectsMixedStates(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"running with answer", `{"user_query":"q","output":{"status":"running","thought":"t","tool_use":{"tool_name":"ask_human","arguments":{"question":"ok?"}},"final_answer":"done"}}`},
		{"running without tool", `{"user_query":"q","output":{"status":"running","thought":"t"}}`},
		{"running without thought", `{"user_query":"q","output":{"status":"running","tool_use":{"tool_name":"ask_human","arguments":{"question":"ok?"}}}}`},
		{"complete with thought", `{"user_query":"q","output":{"status":"complete","thought":"t","final_answer":"a"}}`},
		{"complete with tool", `{"user_query":"q","output":{"status":"complete","final_answer":"a","tool_use":{"tool_name":"ask_human","arguments":{"question":"ok?"}}}}`},
		{"unknown status", `{"user_query":"q","output":{"status":"paused"}}`},
		{"unknown tool", `{"user_query":"q","output":{"status":"running","thought":"t","tool_use":{"tool_name":"web_search","arguments":{}}}}`},
		{"patch missing replacement", `{"user_query":"q","output":{"status":"running","thought":"t","tool_use":{"tool_name":"file_manager","arguments":{"operation":"patch","path":"a","target_string":"x"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ex TrainingExample
			err := json.Unmarshal([]byte(tt.in), &ex)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	in := `{"user_query":"q","extra":1,"output":{"status":"complete","final_answer":"answer","ref":"x"}}`
	var ex TrainingExample
	if err := json.Unmarshal([]byte(in), &ex); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ex.Status() != StatusComplete {
		t.Fatalf("status = %q", ex.Status())
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(NewEscalate("Should I drop the table?", "")); !strings.HasPrefix(got, "ask_human(") {
		t.Fatalf("Describe = %q", got)
	}
	if got := Describe(nil); got != "<nil>" {
		t.Fatalf("Describe(nil) = %q", got)
	}
}

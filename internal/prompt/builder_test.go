package prompt

import (
	"strings"
	"testing"

	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/scenario"
)

func testScenario(t *testing.T, intent string) scenario.Scenario {
	t.Helper()
	c, err := scenario.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	in, ok := c.Intent(intent)
	if !ok {
		t.Fatalf("intent %q missing", intent)
	}
	return scenario.Scenario{ID: "s1", Intent: in, Domain: "Payments", Persona: "SRE on call", Style: c.Styles[0]}
}

func TestBuildToolPrompts(t *testing.T) {
	b, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	style := scenario.Style{
		Name:        "lazy_typist",
		Description: "lowercase, no punctuation",
		Examples:    []string{"fix the thing", "where is auth", "third example stays out"},
	}

	tests := []struct {
		intent string
		want   []string
	}{
		{"search", []string{"Use codebase_search", "exact: a literal identifier", `"tool_name":"codebase_search"`}},
		{"modify", []string{"Use file_manager", "target_string", `"tool_name":"file_manager"`}},
		{"compute", []string{"Use sandbox_exec", "print()", `"tool_name":"sandbox_exec"`}},
		{"escalate", []string{"Use ask_human", "irreversible", `"tool_name":"ask_human"`}},
	}
	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			got, err := b.Build(testScenario(t, tt.intent), style, 3)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			want := append([]string{
				"Produce exactly 3 distinct examples",
				"Domain: Payments",
				"Persona: SRE on call",
				"QUERY STYLE: LAZY TYPIST",
				`- "fix the thing"`,
				`- "where is auth"`,
				"8 to 100 words",
				"Generate 3 examples now.",
			}, tt.want...)
			for _, w := range want {
				if !strings.Contains(got, w) {
					t.Errorf("prompt missing %q", w)
				}
			}
			if strings.Contains(got, "third example stays out") {
				t.Error("prompt should quote only the first two style examples")
			}
		})
	}
}

func TestBuildDirectAnswer(t *testing.T) {
	b, err := New(Options{MinAnswerLength: 12})
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Build(testScenario(t, "answer"), scenario.Style{Name: "direct", Description: "plain"}, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, w := range []string{"none (answer directly)", `"status":"complete"`, "at least 12 characters", "Intent: Answer"} {
		if !strings.Contains(got, w) {
			t.Errorf("prompt missing %q", w)
		}
	}
	if strings.Contains(got, "tool_use\":{\"tool_name\"") {
		t.Error("direct answer prompt should not show tool examples")
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	b, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(testScenario(t, "search"), scenario.Style{Name: "x"}, 0); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	sc := testScenario(t, "search")
	sc.Intent.Tool = record.ToolName("web_search")
	if _, err := b.Build(sc, scenario.Style{Name: "x"}, 1); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestFewShotExamplesDecode(t *testing.T) {
	shots, answers, err := buildFewShot()
	if err != nil {
		t.Fatalf("buildFewShot: %v", err)
	}
	for _, name := range record.ToolNames {
		if len(shots[name]) == 0 {
			t.Errorf("no few-shot examples for %s", name)
		}
	}
	for _, line := range append(shots[record.ToolFile], answers...) {
		var ex record.TrainingExample
		if err := ex.UnmarshalJSON([]byte(line)); err != nil {
			t.Errorf("few-shot %s does not decode: %v", line, err)
		}
	}
}

// Package prompt renders a sampled scenario into a generation prompt.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/haasonsaas/routergen/internal/record"
	"github.com/haasonsaas/routergen/internal/scenario"
)

//go:embed prompt.tmpl
var promptTemplate string

// Options tune the thresholds quoted to the model. They should match the
// validator so the prompt does not ask for output that gets rejected.
type Options struct {
	StyleExamples   int
	MinThoughtWords int
	MaxThoughtWords int
	MinAnswerLength int
}

// DefaultOptions mirrors the validator defaults.
func DefaultOptions() Options {
	return Options{
		StyleExamples:   2,
		MinThoughtWords: 8,
		MaxThoughtWords: 100,
		MinAnswerLength: 10,
	}
}

// Builder renders prompts. It is safe for concurrent use.
type Builder struct {
	tmpl    *template.Template
	opts    Options
	fewShot map[record.ToolName][]string
	answers []string
}

type promptData struct {
	BatchSize         int
	Domain            string
	Persona           string
	IntentName        string
	IntentDescription string
	DirectAnswer      bool
	Tool              record.ToolName
	Routing           string
	Arguments         string
	Style             scenario.Style
	StyleExamples     []string
	FewShot           []string
	MinThoughtWords   int
	MaxThoughtWords   int
	MinAnswerLength   int
}

// New parses the embedded template. Zero option fields take defaults.
func New(opts Options) (*Builder, error) {
	def := DefaultOptions()
	if opts.StyleExamples <= 0 {
		opts.StyleExamples = def.StyleExamples
	}
	if opts.MinThoughtWords <= 0 {
		opts.MinThoughtWords = def.MinThoughtWords
	}
	if opts.MaxThoughtWords <= 0 {
		opts.MaxThoughtWords = def.MaxThoughtWords
	}
	if opts.MinAnswerLength <= 0 {
		opts.MinAnswerLength = def.MinAnswerLength
	}

	tmpl, err := template.New("routergen").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"title": func(s string) string {
				// Casers keep state, so each call gets its own.
				return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
			},
			"upper": func(s string) string {
				return cases.Upper(language.English).String(strings.ReplaceAll(s, "_", " "))
			},
		}).
		Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	fewShot, answers, err := buildFewShot()
	if err != nil {
		return nil, err
	}
	return &Builder{tmpl: tmpl, opts: opts, fewShot: fewShot, answers: answers}, nil
}

// Build renders the prompt for sc. style replaces the scenario's own style so
// callers can vary phrasing per attempt.
func (b *Builder) Build(sc scenario.Scenario, style scenario.Style, batchSize int) (string, error) {
	if batchSize <= 0 {
		return "", fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	data := promptData{
		BatchSize:         batchSize,
		Domain:            sc.Domain,
		Persona:           sc.Persona,
		IntentName:        sc.Intent.Name,
		IntentDescription: sc.Intent.Description,
		DirectAnswer:      sc.Intent.DirectAnswer(),
		Tool:              sc.Intent.Tool,
		Style:             style,
		StyleExamples:     firstN(style.Examples, b.opts.StyleExamples),
		MinThoughtWords:   b.opts.MinThoughtWords,
		MaxThoughtWords:   b.opts.MaxThoughtWords,
		MinAnswerLength:   b.opts.MinAnswerLength,
	}

	var err error
	if data.DirectAnswer {
		data.Routing, err = b.section("routing:answer", data)
		data.FewShot = b.answers
	} else {
		if data.Routing, err = b.section("routing:"+string(data.Tool), data); err != nil {
			return "", err
		}
		data.Arguments, err = b.section("args:"+string(data.Tool), data)
		data.FewShot = b.fewShot[data.Tool]
	}
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, "prompt", data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

func (b *Builder) section(name string, data promptData) (string, error) {
	if b.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("no prompt section %q", name)
	}
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

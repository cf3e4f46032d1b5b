// Package validate decides whether a generated example is fit for training.
//
// Checks run in three layers that short-circuit on the first rejection:
// structural (the output is a well-formed variant), quality (lengths,
// parroting) and domain policy (tool arguments make sense). Every rejection
// carries exactly one Category and a reason.
package validate

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/routergen/internal/record"
)

// Category classifies a rejection.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryQuality    Category = "quality"
	CategoryDomain     Category = "domain"
)

// Categories lists every rejection category.
var Categories = []Category{CategoryStructural, CategoryQuality, CategoryDomain}

// Result is the outcome of validating one example. Category and Reason are
// empty when Valid is true. Warnings never cause rejection.
type Result struct {
	Valid    bool
	Category Category
	Reason   string
	Warnings []string
}

func reject(cat Category, format string, args ...any) Result {
	return Result{Category: cat, Reason: fmt.Sprintf(format, args...)}
}

// Validator applies the three layers. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a validator. Zero config fields take defaults.
func New(cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg.withDefaults(), logger: logger.With("component", "validate")}
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

// Validate runs all layers against ex.
func (v *Validator) Validate(ex record.TrainingExample) Result {
	if res := v.structural(ex); !res.Valid {
		return res
	}
	res := v.quality(ex)
	if !res.Valid {
		return res
	}
	if dom := v.domain(ex); !dom.Valid {
		dom.Warnings = res.Warnings
		return dom
	}
	return res
}

func (v *Validator) structural(ex record.TrainingExample) Result {
	switch out := ex.Output.(type) {
	case record.Running:
		if out.Tool == nil {
			return reject(CategoryStructural, "running output without tool_use")
		}
		if strings.TrimSpace(out.Thought) == "" {
			return reject(CategoryStructural, "running output without thought")
		}
	case record.Complete:
		if strings.TrimSpace(out.FinalAnswer) == "" {
			return reject(CategoryStructural, "complete output without final_answer")
		}
	case nil:
		return reject(CategoryStructural, "missing output")
	default:
		return reject(CategoryStructural, "unknown output type %T", out)
	}
	return Result{Valid: true}
}

func (v *Validator) quality(ex record.TrainingExample) Result {
	var warnings []string

	query := strings.TrimSpace(ex.UserQuery)
	if n := utf8.RuneCountInString(query); n < v.cfg.MinQueryLength {
		return reject(CategoryQuality, "query too short: %d chars (min %d)", n, v.cfg.MinQueryLength)
	}
	if containsAny(strings.ToLower(query), v.cfg.PlaceholderMarkers) {
		warnings = append(warnings, "query contains placeholder-like text")
	}

	switch out := ex.Output.(type) {
	case record.Running:
		thought := strings.TrimSpace(out.Thought)
		words := len(strings.Fields(thought))
		if words < v.cfg.MinThoughtWords {
			return reject(CategoryQuality, "thought too short: %d words (min %d)", words, v.cfg.MinThoughtWords)
		}
		if words > v.cfg.MaxThoughtWords {
			return reject(CategoryQuality, "thought too long: %d words (max %d)", words, v.cfg.MaxThoughtWords)
		}
		if v.isParroting(query, thought) {
			return reject(CategoryQuality, "thought is parroting the query")
		}
		if containsAny(strings.ToLower(thought), v.cfg.GenericPhrases) {
			warnings = append(warnings, "thought contains generic phrasing")
		}
	case record.Complete:
		answer := strings.TrimSpace(out.FinalAnswer)
		if n := utf8.RuneCountInString(answer); n < v.cfg.MinFinalAnswerLength {
			return reject(CategoryQuality, "final answer too short: %d chars (min %d)", n, v.cfg.MinFinalAnswerLength)
		}
		if containsAny(strings.ToLower(answer), v.cfg.HedgePhrases) {
			warnings = append(warnings, "final answer contains hedging language")
		}
	}
	return Result{Valid: true, Warnings: warnings}
}

func (v *Validator) domain(ex record.TrainingExample) Result {
	tool, ok := ex.Tool()
	if !ok {
		return Result{Valid: true}
	}

	switch t := tool.(type) {
	case record.Search:
		q := strings.TrimSpace(t.Query)
		if utf8.RuneCountInString(q) < v.cfg.MinSearchQueryLength {
			return reject(CategoryDomain, "search query too short")
		}
		lower := strings.ToLower(q)
		for _, term := range v.cfg.GenericSearchTerms {
			if lower == term {
				return reject(CategoryDomain, "search query too generic: %q", q)
			}
		}
	case record.FileOp:
		if strings.TrimSpace(t.Path) == "" {
			return reject(CategoryDomain, "file_manager missing path")
		}
		switch t.Operation {
		case record.OpWrite:
			if t.Content == "" {
				return reject(CategoryDomain, "write operation missing content")
			}
		case record.OpPatch:
			if t.Target == "" {
				return reject(CategoryDomain, "patch operation missing target_string")
			}
			if t.Replacement == nil {
				return reject(CategoryDomain, "patch operation missing replacement_string")
			}
			if t.Target == *t.Replacement {
				return reject(CategoryDomain, "patch target and replacement are identical")
			}
		}
	case record.Exec:
		code := strings.TrimSpace(t.Code)
		if code == "" {
			return reject(CategoryDomain, "sandbox_exec missing code")
		}
		for _, p := range v.cfg.DangerousCodePatterns {
			if strings.Contains(code, p) {
				return reject(CategoryDomain, "sandbox code contains dangerous pattern %q", p)
			}
		}
	case record.Escalate:
		q := strings.TrimSpace(t.Question)
		if utf8.RuneCountInString(q) < v.cfg.MinQuestionLength {
			return reject(CategoryDomain, "ask_human question too short")
		}
		// Statements are fine when the user asked for something destructive.
		if !containsAny(strings.ToLower(q), v.cfg.QuestionMarkers) &&
			!containsAny(strings.ToLower(ex.UserQuery), v.cfg.EscalationKeywords) {
			return reject(CategoryDomain, "ask_human content is not a question")
		}
	default:
		return reject(CategoryDomain, "unknown tool %T", t)
	}
	return Result{Valid: true}
}

// isParroting reports whether thought merely restates query.
func (v *Validator) isParroting(query, thought string) bool {
	q := window(strings.ToLower(strings.TrimSpace(query)), v.cfg.ParrotingWindow)
	t := window(strings.ToLower(strings.TrimSpace(thought)), v.cfg.ParrotingWindow)

	if q != "" && window(t, v.cfg.ParrotingPrefix) == window(q, v.cfg.ParrotingPrefix) {
		return true
	}
	return jaccard(strings.Fields(q), strings.Fields(t)) >= v.cfg.ParrotingThreshold
}

// window truncates s to its first n runes.
func window(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// jaccard is the word-set similarity of a and b. Either set empty yields 0.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, w := range a {
		set[w] |= 1
	}
	for _, w := range b {
		set[w] |= 2
	}
	var inter int
	for _, bits := range set {
		if bits == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

package validate

import (
	"github.com/haasonsaas/routergen/internal/record"
)

// BatchStats counts the outcome of ValidateBatch.
type BatchStats struct {
	Total             int `json:"total"`
	Valid             int `json:"valid"`
	InvalidStructural int `json:"invalid_structural"`
	InvalidQuality    int `json:"invalid_quality"`
	InvalidDomain     int `json:"invalid_domain"`
	Warnings          int `json:"warnings"`
}

// Invalid is the number of rejected items.
func (s BatchStats) Invalid() int {
	return s.InvalidStructural + s.InvalidQuality + s.InvalidDomain
}

// Rejected returns the rejection count for one category.
func (s BatchStats) Rejected(c Category) int {
	switch c {
	case CategoryStructural:
		return s.InvalidStructural
	case CategoryQuality:
		return s.InvalidQuality
	case CategoryDomain:
		return s.InvalidDomain
	}
	return 0
}

// Add merges o into s.
func (s *BatchStats) Add(o BatchStats) {
	s.Total += o.Total
	s.Valid += o.Valid
	s.InvalidStructural += o.InvalidStructural
	s.InvalidQuality += o.InvalidQuality
	s.InvalidDomain += o.InvalidDomain
	s.Warnings += o.Warnings
}

func (s *BatchStats) countRejection(c Category) {
	switch c {
	case CategoryStructural:
		s.InvalidStructural++
	case CategoryQuality:
		s.InvalidQuality++
	case CategoryDomain:
		s.InvalidDomain++
	}
}

// ValidateBatch validates items in order and returns the accepted ones.
// Rejections and warnings are logged per item.
func (v *Validator) ValidateBatch(items []record.TrainingExample) ([]record.TrainingExample, BatchStats) {
	stats := BatchStats{Total: len(items)}
	valid := make([]record.TrainingExample, 0, len(items))

	for i, item := range items {
		res := v.Validate(item)
		if !res.Valid {
			stats.countRejection(res.Category)
			tool, _ := item.Tool()
			v.logger.Info("dropped example",
				"index", i,
				"category", res.Category,
				"reason", res.Reason,
				"query", preview(item.UserQuery, 50),
				"tool", record.Describe(tool))
			continue
		}
		valid = append(valid, item)
		stats.Valid++
		if len(res.Warnings) > 0 {
			stats.Warnings += len(res.Warnings)
			v.logger.Warn("example accepted with warnings", "index", i, "warnings", res.Warnings)
		}
	}
	return valid, stats
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

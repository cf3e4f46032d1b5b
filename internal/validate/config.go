package validate

// Config holds the validation thresholds and word lists. Lengths are counted
// in runes.
type Config struct {
	MinQueryLength       int     `yaml:"min_query_length"`
	MinThoughtWords      int     `yaml:"min_thought_words"`
	MaxThoughtWords      int     `yaml:"max_thought_words"`
	MinFinalAnswerLength int     `yaml:"min_final_answer_length"`
	ParrotingThreshold   float64 `yaml:"parroting_threshold"`
	ParrotingPrefix      int     `yaml:"parroting_prefix"`
	ParrotingWindow      int     `yaml:"parroting_window"`
	MinSearchQueryLength int     `yaml:"min_search_query_length"`
	MinQuestionLength    int     `yaml:"min_question_length"`

	GenericSearchTerms    []string `yaml:"generic_search_terms"`
	DangerousCodePatterns []string `yaml:"dangerous_code_patterns"`
	QuestionMarkers       []string `yaml:"question_markers"`
	EscalationKeywords    []string `yaml:"escalation_keywords"`
	PlaceholderMarkers    []string `yaml:"placeholder_markers"`
	GenericPhrases        []string `yaml:"generic_phrases"`
	HedgePhrases          []string `yaml:"hedge_phrases"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinQueryLength:        5,
		MinThoughtWords:       8,
		MaxThoughtWords:       100,
		MinFinalAnswerLength:  10,
		ParrotingThreshold:    0.8,
		ParrotingPrefix:       20,
		ParrotingWindow:       50,
		MinSearchQueryLength:  2,
		MinQuestionLength:     5,
		GenericSearchTerms:    []string{"code", "file", "function", "class", "todo"},
		DangerousCodePatterns: []string{"rm -rf", "os.system", "__import__", "eval("},
		QuestionMarkers:       []string{"?", "what", "how", "which", "should", "can", "could"},
		EscalationKeywords:    []string{"delete", "drop", "truncate", "format", "shutdown", "kill"},
		PlaceholderMarkers:    []string{"lorem ipsum", "test", "placeholder", "xxx"},
		GenericPhrases:        []string{"i need to", "i should", "let me", "i will", "the user wants", "the user is asking"},
		HedgePhrases:          []string{"i don't know", "not sure", "maybe", "perhaps", "i think"},
	}
}

// withDefaults fills zero fields from DefaultConfig. Explicitly empty lists
// are kept so a caller can switch a check off.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = d.MinQueryLength
	}
	if c.MinThoughtWords <= 0 {
		c.MinThoughtWords = d.MinThoughtWords
	}
	if c.MaxThoughtWords <= 0 {
		c.MaxThoughtWords = d.MaxThoughtWords
	}
	if c.MinFinalAnswerLength <= 0 {
		c.MinFinalAnswerLength = d.MinFinalAnswerLength
	}
	if c.ParrotingThreshold <= 0 {
		c.ParrotingThreshold = d.ParrotingThreshold
	}
	if c.ParrotingPrefix <= 0 {
		c.ParrotingPrefix = d.ParrotingPrefix
	}
	if c.ParrotingWindow <= 0 {
		c.ParrotingWindow = d.ParrotingWindow
	}
	if c.MinSearchQueryLength <= 0 {
		c.MinSearchQueryLength = d.MinSearchQueryLength
	}
	if c.MinQuestionLength <= 0 {
		c.MinQuestionLength = d.MinQuestionLength
	}
	if c.GenericSearchTerms == nil {
		c.GenericSearchTerms = d.GenericSearchTerms
	}
	if c.DangerousCodePatterns == nil {
		c.DangerousCodePatterns = d.DangerousCodePatterns
	}
	if c.QuestionMarkers == nil {
		c.QuestionMarkers = d.QuestionMarkers
	}
	if c.EscalationKeywords == nil {
		c.EscalationKeywords = d.EscalationKeywords
	}
	if c.PlaceholderMarkers == nil {
		c.PlaceholderMarkers = d.PlaceholderMarkers
	}
	if c.GenericPhrases == nil {
		c.GenericPhrases = d.GenericPhrases
	}
	if c.HedgePhrases == nil {
		c.HedgePhrases = d.HedgePhrases
	}
	return c
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every variable that overrides a config value.
const EnvPrefix = "ROUTERGEN_"

// LoadDotEnv loads KEY=value pairs from path into the environment. Variables
// already set win, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envOverrides = []envOverride{
	{"MIN_QUERY_LENGTH", intField(func(c *Config) *int { return &c.Validation.MinQueryLength })},
	{"MIN_THOUGHT_WORDS", intField(func(c *Config) *int { return &c.Validation.MinThoughtWords })},
	{"MAX_THOUGHT_WORDS", intField(func(c *Config) *int { return &c.Validation.MaxThoughtWords })},
	{"MIN_FINAL_ANSWER_LENGTH", intField(func(c *Config) *int { return &c.Validation.MinFinalAnswerLength })},
	{"MIN_SEARCH_QUERY_LENGTH", intField(func(c *Config) *int { return &c.Validation.MinSearchQueryLength })},
	{"PARROTING_THRESHOLD", floatField(func(c *Config) *float64 { return &c.Validation.ParrotingThreshold })},
	{"GENERATION_BATCH_SIZE", intField(func(c *Config) *int { return &c.Generation.BatchSize })},
	{"GENERATION_TARGET", intField(func(c *Config) *int { return &c.Generation.Target })},
	{"MAX_GENERATION_RETRIES", intField(func(c *Config) *int { return &c.Orchestrator.RateLimitRetries })},
	{"LOG_LEVEL", func(c *Config, v string) error {
		c.Logging.Level = v
		return nil
	}},
}

// applyEnvOverrides applies ROUTERGEN_* variables and returns one issue per
// value that does not parse.
func applyEnvOverrides(cfg *Config) []string {
	var issues []string
	for _, o := range envOverrides {
		key := EnvPrefix + o.name
		value, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := o.apply(cfg, strings.TrimSpace(value)); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", key, err))
		}
	}
	return issues
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not an integer", v)
		}
		*field(c) = n
		return nil
	}
}

func floatField(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", v)
		}
		*field(c) = f
		return nil
	}
}

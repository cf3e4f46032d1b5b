// Package config loads the routergen configuration: a YAML or JSON5 file
// with $include support, environment overrides and a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/routergen/internal/backoff"
	"github.com/haasonsaas/routergen/internal/corpus"
	"github.com/haasonsaas/routergen/internal/ledger"
	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/providers"
	"github.com/haasonsaas/routergen/internal/publish"
	"github.com/haasonsaas/routergen/internal/validate"
)

// Config is the main configuration structure for routergen.
type Config struct {
	Version       int                     `yaml:"version"`
	Generation    GenerationConfig        `yaml:"generation"`
	Orchestrator  OrchestratorConfig      `yaml:"orchestrator"`
	Providers     ProvidersConfig         `yaml:"providers"`
	Validation    validate.Config         `yaml:"validation"`
	Corpus        CorpusConfig            `yaml:"corpus"`
	Publish       publish.Config          `yaml:"publish"`
	Ledger        ledger.Config           `yaml:"ledger"`
	Logging       observability.LogConfig `yaml:"logging"`
	Observability ObservabilityConfig     `yaml:"observability"`
}

// GenerationConfig controls the generation loop.
type GenerationConfig struct {
	Target        int           `yaml:"target"`
	BatchSize     int           `yaml:"batch_size"`
	MaxBatches    int           `yaml:"max_batches"`
	BatchInterval time.Duration `yaml:"batch_interval"`

	// OutputFile defaults to a timestamped file under corpus.raw_dir.
	OutputFile string `yaml:"output_file"`

	// CatalogFile replaces the embedded scenario catalog.
	CatalogFile string `yaml:"catalog_file"`

	// StyleExamples is how many style examples each prompt quotes.
	StyleExamples int `yaml:"style_examples"`
}

// OrchestratorConfig controls model choice and retries.
type OrchestratorConfig struct {
	PrimaryModels    []string       `yaml:"primary_models"`
	FallbackModel    string         `yaml:"fallback_model"`
	RateLimitRetries int            `yaml:"rate_limit_retries"`
	SchemaRetries    int            `yaml:"schema_retries"`
	Backoff          backoff.Policy `yaml:"backoff"`
	Temperature      float64        `yaml:"temperature"`
	MaxTokens        int            `yaml:"max_tokens"`
	RequestTimeout   time.Duration  `yaml:"request_timeout"`
}

// ProvidersConfig names the provider endpoints models resolve to.
type ProvidersConfig struct {
	// Default is used for model refs without a "provider/" prefix.
	Default string                      `yaml:"default"`
	Entries map[string]providers.Config `yaml:"entries"`
}

// CorpusConfig controls the raw and processed corpus locations and the split.
type CorpusConfig struct {
	RawDir       string  `yaml:"raw_dir"`
	ProcessedDir string  `yaml:"processed_dir"`
	TrainRatio   float64 `yaml:"train_ratio"`
	Seed         int64   `yaml:"seed"`
	AddBOS       bool    `yaml:"add_bos"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	// MetricsAddr serves /metrics during generation when set.
	MetricsAddr string                    `yaml:"metrics_addr"`
	Tracing     observability.TraceConfig `yaml:"tracing"`
}

// providerKeyEnv maps well-known provider names to the variable holding
// their API key.
var providerKeyEnv = map[string]string{
	"groq":       "GROQ_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"gemini":     "GOOGLE_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// Default returns a configuration that works without a config file: Groq
// models over the OpenAI-compatible endpoint, a SQLite ledger and a local
// publish mirror. Load decodes files on top of it, so a file only names what
// it changes.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Generation: GenerationConfig{
			Target:        1000,
			BatchSize:     5,
			BatchInterval: 4 * time.Second,
			StyleExamples: 2,
		},
		Orchestrator: OrchestratorConfig{
			PrimaryModels:    []string{"groq/llama-3.3-70b-versatile", "groq/llama-3.1-8b-instant"},
			FallbackModel:    "groq/llama-3.1-8b-instant",
			RateLimitRetries: 4,
			SchemaRetries:    3,
			Backoff:          backoff.DefaultPolicy(),
			Temperature:      0.85,
			MaxTokens:        4096,
			RequestTimeout:   2 * time.Minute,
		},
		Providers: ProvidersConfig{
			Default: "groq",
			Entries: map[string]providers.Config{
				"groq": {Kind: providers.KindOpenAI, BaseURL: "https://api.groq.com/openai/v1"},
			},
		},
		Validation: validate.DefaultConfig(),
		Corpus: CorpusConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			TrainRatio:   corpus.DefaultTrainRatio,
			Seed:         corpus.DefaultSeed,
		},
		Publish: publish.DefaultConfig(),
		Ledger:  ledger.DefaultConfig(),
		Logging: observability.LogConfig{Level: "info", Format: "json"},
		Observability: ObservabilityConfig{
			Tracing: observability.TraceConfig{ServiceName: "routergen"},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills values derived from other fields once the file and
// environment have been applied.
func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	for name, entry := range cfg.Providers.Entries {
		entry.Name = name
		if entry.APIKey == "" {
			if env, ok := providerKeyEnv[name]; ok {
				entry.APIKey = os.Getenv(env)
			}
		}
		cfg.Providers.Entries[name] = entry
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB == 0 {
			cfg.Logging.MaxSizeMB = 10
		}
		if cfg.Logging.MaxBackups == 0 {
			cfg.Logging.MaxBackups = 5
		}
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "routergen"
	}
}

// OutputFile returns generation.output_file, or a timestamped file under
// corpus.raw_dir when it is unset.
func (c *Config) OutputFile(now time.Time) string {
	if c.Generation.OutputFile != "" {
		return c.Generation.OutputFile
	}
	return filepath.Join(c.Corpus.RawDir, "router_train_"+now.UTC().Format("20060102_150405")+".jsonl")
}

// ProvidersInUse returns the sorted provider names the orchestrator models
// resolve to.
func (c *Config) ProvidersInUse() ([]string, error) {
	seen := map[string]bool{}
	refs := append(append([]string{}, c.Orchestrator.PrimaryModels...), c.Orchestrator.FallbackModel)
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		parsed, err := providers.ParseModelRef(ref, c.Providers.Default)
		if err != nil {
			return nil, err
		}
		seen[parsed.Provider] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ProviderConfigs returns the entries for providers in use.
func (c *Config) ProviderConfigs() (map[string]providers.Config, error) {
	names, err := c.ProvidersInUse()
	if err != nil {
		return nil, err
	}
	out := make(map[string]providers.Config, len(names))
	for _, name := range names {
		entry, ok := c.Providers.Entries[name]
		if !ok {
			return nil, fmt.Errorf("provider %q is not configured", name)
		}
		out[name] = entry
	}
	return out, nil
}

// RequireProviderKeys reports providers in use that need an API key and have
// none. Only generation needs keys, so Load does not check this.
func (c *Config) RequireProviderKeys() error {
	entries, err := c.ProviderConfigs()
	if err != nil {
		return err
	}
	var issues []string
	for _, name := range sortedKeys(entries) {
		entry := entries[name]
		switch entry.Kind {
		case providers.KindBedrock, providers.KindOllama:
			continue
		}
		if strings.TrimSpace(entry.APIKey) != "" {
			continue
		}
		if env, ok := providerKeyEnv[name]; ok {
			issues = append(issues, fmt.Sprintf("providers.entries.%s.api_key is required (set %s)", name, env))
		} else {
			issues = append(issues, fmt.Sprintf("providers.entries.%s.api_key is required", name))
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

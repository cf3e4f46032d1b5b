package config

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/routergen/internal/ledger"
	"github.com/haasonsaas/routergen/internal/providers"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid config"
	}
	return "invalid config:\n  - " + strings.Join(e.Issues, "\n  - ")
}

// Load reads the configuration at path over Default, applies ROUTERGEN_*
// environment overrides and validates the result. An empty path loads the
// defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = decodeRawConfig(raw, cfg); err != nil {
			return nil, err
		}
		if err := ValidateVersion(cfg.Version); err != nil {
			return nil, err
		}
	}

	issues := applyEnvOverrides(cfg)
	applyDefaults(cfg)
	issues = append(issues, cfg.validate()...)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// Validate reports every problem in c.
func (c *Config) Validate() error {
	if issues := c.validate(); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func (c *Config) validate() []string {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	gen := c.Generation
	if gen.Target <= 0 {
		add("generation.target must be positive")
	}
	if gen.BatchSize <= 0 {
		add("generation.batch_size must be positive")
	}
	if gen.MaxBatches < 0 {
		add("generation.max_batches must not be negative")
	}
	if gen.BatchInterval < 0 {
		add("generation.batch_interval must not be negative")
	}

	orch := c.Orchestrator
	if len(orch.PrimaryModels) == 0 {
		add("orchestrator.primary_models must list at least one model")
	}
	if strings.TrimSpace(orch.FallbackModel) == "" {
		add("orchestrator.fallback_model is required")
	}
	if orch.RateLimitRetries < 0 || orch.SchemaRetries < 0 {
		add("orchestrator retry counts must not be negative")
	}
	if orch.Temperature < 0 || orch.Temperature > 2 {
		add("orchestrator.temperature must be between 0 and 2")
	}
	b := orch.Backoff
	if b.Base <= 0 || b.Cap < b.Base {
		add("orchestrator.backoff needs 0 < base <= cap")
	}
	if b.JitterMin < 0 || b.JitterMax < b.JitterMin {
		add("orchestrator.backoff needs 0 <= jitter_min <= jitter_max")
	}

	if _, err := c.ProviderConfigs(); err != nil {
		add("%v", err)
	}
	for _, name := range sortedKeys(c.Providers.Entries) {
		switch c.Providers.Entries[name].Kind {
		case providers.KindOpenAI, providers.KindAzure, providers.KindAnthropic,
			providers.KindGoogle, providers.KindBedrock, providers.KindOllama:
		default:
			add("providers.entries.%s.kind %q is not supported", name, c.Providers.Entries[name].Kind)
		}
	}

	v := c.Validation
	if v.MinThoughtWords > 0 && v.MaxThoughtWords > 0 && v.MinThoughtWords > v.MaxThoughtWords {
		add("validation.min_thought_words must not exceed max_thought_words")
	}
	if v.ParrotingThreshold < 0 || v.ParrotingThreshold > 1 {
		add("validation.parroting_threshold must be between 0 and 1")
	}

	if c.Corpus.TrainRatio <= 0 || c.Corpus.TrainRatio >= 1 {
		add("corpus.train_ratio must be between 0 and 1")
	}
	if strings.TrimSpace(c.Corpus.RawDir) == "" || strings.TrimSpace(c.Corpus.ProcessedDir) == "" {
		add("corpus.raw_dir and corpus.processed_dir are required")
	}

	switch c.Publish.Store {
	case "local":
		if strings.TrimSpace(c.Publish.LocalDir) == "" {
			add("publish.local_dir is required for the local store")
		}
	case "s3":
		if strings.TrimSpace(c.Publish.S3.Bucket) == "" {
			add("publish.s3.bucket is required for the s3 store")
		}
	default:
		add("publish.store %q must be local or s3", c.Publish.Store)
	}

	if c.Ledger.Enabled {
		switch c.Ledger.Driver {
		case ledger.DriverSQLite, ledger.DriverPostgres:
		default:
			add("ledger.driver %q must be sqlite or postgres", c.Ledger.Driver)
		}
		if strings.TrimSpace(c.Ledger.DSN) == "" {
			add("ledger.dsn is required when the ledger is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		add("logging.format %q must be json or text", c.Logging.Format)
	}
	return issues
}

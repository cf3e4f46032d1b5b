package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind selects the client implementation for a provider entry.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAzure     Kind = "azure"
	KindAnthropic Kind = "anthropic"
	KindGoogle    Kind = "google"
	KindBedrock   Kind = "bedrock"
	KindOllama    Kind = "ollama"
)

// Config describes one named provider. Name is filled from the map key of
// the providers section.
type Config struct {
	Name       string        `yaml:"-" json:"-"`
	Kind       Kind          `yaml:"kind" jsonschema:"enum=openai,enum=azure,enum=anthropic,enum=google,enum=bedrock,enum=ollama"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`

	// Bedrock only. Empty credentials use the default AWS chain.
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// New builds the provider described by cfg.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case KindOpenAI, KindAzure, "":
		return NewOpenAICompatProvider(cfg)
	case KindAnthropic:
		return NewAnthropicProvider(cfg)
	case KindGoogle:
		return NewGoogleProvider(ctx, cfg)
	case KindBedrock:
		return NewBedrockProvider(ctx, cfg)
	case KindOllama:
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// Build creates a registry with every configured provider. Bare model ids
// resolve to defaultProvider.
func Build(ctx context.Context, defaultProvider string, cfgs map[string]Config) (*Registry, error) {
	reg := NewRegistry(defaultProvider)
	for name, cfg := range cfgs {
		cfg.Name = name
		p, err := New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		reg.Register(p)
	}
	return reg, nil
}

package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/routergen/internal/record"
)

// GoogleProvider generates batches with the Gemini API in JSON response mode.
type GoogleProvider struct {
	name   string
	client *genai.Client
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider creates a Gemini API client from cfg.
func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Name)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" || cfg.Timeout > 0 {
		opts := genai.HTTPOptions{BaseURL: cfg.BaseURL}
		if cfg.Timeout > 0 {
			timeout := cfg.Timeout
			opts.Timeout = &timeout
		}
		clientCfg.HTTPOptions = opts
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create client: %w", cfg.Name, err)
	}
	return &GoogleProvider{name: cfg.Name, client: client}, nil
}

// Name returns the configured provider name.
func (p *GoogleProvider) Name() string {
	return p.name
}

// GenerateBatch asks for an application/json reply and parses it.
func (p *GoogleProvider) GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error) {
	temperature := float32(clampTemperature(req.Temperature, 2))
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}
	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		config.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	return parseReply(p.name, req.Model, resp.Text())
}

func (p *GoogleProvider) wrapError(err error, model string) error {
	providerErr := NewProviderError(p.name, model, err)

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "401") || strings.Contains(errMsg, "unauthenticated"):
		providerErr = providerErr.WithStatus(http.StatusUnauthorized)
	case strings.Contains(errMsg, "403") || strings.Contains(errMsg, "permission denied"):
		providerErr = providerErr.WithStatus(http.StatusForbidden)
	case strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") || strings.Contains(errMsg, "resource_exhausted"):
		providerErr = providerErr.WithStatus(http.StatusTooManyRequests)
	case strings.Contains(errMsg, "404") || strings.Contains(errMsg, "not found"):
		providerErr = providerErr.WithStatus(http.StatusNotFound)
	case strings.Contains(errMsg, "503"):
		providerErr = providerErr.WithStatus(http.StatusServiceUnavailable)
	case strings.Contains(errMsg, "500"):
		providerErr = providerErr.WithStatus(http.StatusInternalServerError)
	}
	return providerErr
}

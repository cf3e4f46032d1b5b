package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/routergen/internal/record"
)

const (
	anthropicDefaultMaxTokens = 4096
	anthropicJSONInstruction  = `Respond with a single JSON object of the form {"items": [...]} and nothing else.`
)

// AnthropicProvider generates batches through the Messages API.
type AnthropicProvider struct {
	name   string
	client anthropic.Client
}

var _ Provider = (*AnthropicProvider)(nil)

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

// NewAnthropicProvider creates a client from cfg.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Name)
	}
	// Retries belong to the orchestrator.
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(cfg.Timeout))
	}
	return &AnthropicProvider{
		name:   cfg.Name,
		client: anthropic.NewClient(options...),
	}, nil
}

// Name returns the configured provider name.
func (p *AnthropicProvider) Name() string {
	return p.name
}

// GenerateBatch sends the prompt and parses the concatenated text blocks.
func (p *AnthropicProvider) GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: anthropicJSONInstruction},
		},
		Temperature: anthropic.Float(clampTemperature(req.Temperature, 1)),
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseReply(p.name, req.Model, text.String())
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError(p.name, model, err)
	}

	providerErr := (&ProviderError{
		Provider: p.name,
		Model:    model,
		Cause:    err,
		Reason:   ReasonUnknown,
	}).WithStatus(apiErr.StatusCode)

	requestID := apiErr.RequestID
	if raw := apiErr.RawJSON(); raw != "" {
		var payload anthropicErrorPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			if payload.Error.Message != "" {
				providerErr = providerErr.WithMessage(payload.Error.Message)
			}
			if payload.Error.Type != "" {
				providerErr = providerErr.WithCode(payload.Error.Type)
			}
			if payload.RequestID != "" {
				requestID = payload.RequestID
			}
		}
	}
	if providerErr.Message == "" {
		providerErr.Message = "anthropic request failed"
	}
	if requestID != "" {
		providerErr = providerErr.WithRequestID(requestID)
	}
	return providerErr
}

// clampTemperature keeps t inside [0, limit].
func clampTemperature(t, limit float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > limit:
		return limit
	}
	return t
}

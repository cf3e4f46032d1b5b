package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/routergen/internal/record"
)

// Well-known OpenAI-compatible endpoints.
const (
	GroqBaseURL         = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL   = "https://openrouter.ai/api/v1"
	GoogleOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// OpenAICompatProvider talks to any endpoint that speaks the OpenAI chat
// completions API in JSON mode: Groq, OpenAI, OpenRouter, Azure OpenAI and
// Google's compatibility layer.
//
// Thread Safety: safe for concurrent use.
type OpenAICompatProvider struct {
	name   string
	client *openai.Client
}

var _ Provider = (*OpenAICompatProvider)(nil)

// NewOpenAICompatProvider builds a client from cfg. Kind "azure" selects
// Azure deployment routing.
func NewOpenAICompatProvider(cfg Config) (*OpenAICompatProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Name)
	}

	var clientCfg openai.ClientConfig
	if cfg.Kind == KindAzure {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%s: azure requires base_url", cfg.Name)
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAICompatProvider{
		name:   cfg.Name,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name returns the configured provider name.
func (p *OpenAICompatProvider) Name() string {
	return p.name
}

// GenerateBatch sends the prompt as a single user turn in JSON mode.
func (p *OpenAICompatProvider) GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	if len(resp.Choices) == 0 {
		return nil, newSchemaError(p.name, req.Model, &record.SchemaError{Cause: errors.New("response has no choices")})
	}
	return parseReply(p.name, req.Model, resp.Choices[0].Message.Content)
}

func (p *OpenAICompatProvider) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := (&ProviderError{
			Provider: p.name,
			Model:    model,
			Cause:    err,
			Reason:   ClassifyError(err),
			Message:  apiErr.Message,
		}).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		}
		if code := fmt.Sprint(apiErr.Code); apiErr.Code != nil && code != "" {
			providerErr = providerErr.WithCode(code)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(p.name, model, err).WithStatus(reqErr.HTTPStatusCode)
	}

	return NewProviderError(p.name, model, err)
}

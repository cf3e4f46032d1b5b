package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/routergen/internal/record"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// OllamaProvider generates batches from a local Ollama server using its
// JSON output format.
type OllamaProvider struct {
	name    string
	client  *http.Client
	baseURL string
}

var _ Provider = (*OllamaProvider)(nil)

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider for cfg.BaseURL (default localhost).
func NewOllamaProvider(cfg Config) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	name := cfg.Name
	if name == "" {
		name = "ollama"
	}
	return &OllamaProvider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name returns the configured provider name.
func (p *OllamaProvider) Name() string {
	return p.name
}

// GenerateBatch posts a non-streaming chat request to /api/chat.
func (p *OllamaProvider) GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error) {
	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: []ollamaChatMessage{{Role: "user", Content: req.Prompt}},
		Format:   "json",
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		payload.Options["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError(p.name, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(p.name, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(p.name, req.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if err != nil {
			return nil, NewProviderError(p.name, req.Model, fmt.Errorf("ollama status %d (read body failed: %w)", resp.StatusCode, err)).WithStatus(resp.StatusCode)
		}
		return nil, NewProviderError(p.name, req.Model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, NewProviderError(p.name, req.Model, fmt.Errorf("decode response: %w", err))
	}
	if chat.Error != "" {
		return nil, NewProviderError(p.name, req.Model, fmt.Errorf("ollama: %s", chat.Error))
	}
	return parseReply(p.name, req.Model, chat.Message.Content)
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/routergen/internal/record"
)

const batchJSON = `{"items":[{"user_query":"what does defer do in Go?","output":{"status":"complete","final_answer":"defer schedules a call to run when the surrounding function returns."}}]}`

func chatCompletionBody(content string) string {
	encoded, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"llama","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, encoded)
}

func newOpenAITestProvider(t *testing.T, handler http.HandlerFunc) *OpenAICompatProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAICompatProvider(Config{Name: "groq", Kind: KindOpenAI, APIKey: "test-key", BaseURL: server.URL + "/openai/v1"})
	if err != nil {
		t.Fatalf("NewOpenAICompatProvider: %v", err)
	}
	return p
}

func TestOpenAICompatGenerateBatch(t *testing.T) {
	var gotBody map[string]any
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/openai/v1/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletionBody(batchJSON))
	})

	items, err := p.GenerateBatch(context.Background(), BatchRequest{Model: "llama-3.3-70b-versatile", Prompt: "generate", Temperature: 0.85})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(items) != 1 || items[0].Status() != record.StatusComplete {
		t.Fatalf("items = %+v", items)
	}
	format, _ := gotBody["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", gotBody["response_format"])
	}
	if gotBody["model"] != "llama-3.3-70b-versatile" {
		t.Errorf("model = %v", gotBody["model"])
	}
}

func TestOpenAICompatErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Class
	}{
		{
			name:   "rate limit",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`,
			want:   ClassRateLimit,
		},
		{
			name:   "json validation",
			status: http.StatusBadRequest,
			body:   `{"error":{"message":"Failed to generate JSON","type":"invalid_request_error","code":"json_validate_failed"}}`,
			want:   ClassSchema,
		},
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   ClassAPI,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := p.GenerateBatch(context.Background(), BatchRequest{Model: "m", Prompt: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", err, got, tt.want)
			}
			perr, ok := GetProviderError(err)
			if !ok || perr.Status != tt.status {
				t.Fatalf("provider error = %+v", perr)
			}
		})
	}
}

func TestOpenAICompatMalformedReplyIsSchema(t *testing.T) {
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletionBody(`{"items":[{"user_query":"q","output":{"status":"running"}}]}`))
	})
	_, err := p.GenerateBatch(context.Background(), BatchRequest{Model: "m", Prompt: "p"})
	if Classify(err) != ClassSchema {
		t.Fatalf("Classify(%v) = %q, want schema", err, Classify(err))
	}
}

func TestOpenAICompatRequiresKey(t *testing.T) {
	if _, err := NewOpenAICompatProvider(Config{Name: "groq"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewOpenAICompatProvider(Config{Name: "az", Kind: KindAzure, APIKey: "k"}); err == nil {
		t.Fatal("expected error for azure without base_url")
	}
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaGenerateBatch(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		content, _ := json.Marshal(batchJSON)
		fmt.Fprintf(w, `{"model":"llama3.1","message":{"role":"assistant","content":%s},"done":true}`, content)
	}))
	defer server.Close()

	p := NewOllamaProvider(Config{Name: "local", BaseURL: server.URL + "/"})
	items, err := p.GenerateBatch(context.Background(), BatchRequest{Model: "llama3.1", Prompt: "generate", Temperature: 0.7, MaxTokens: 512})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if got.Format != "json" || got.Stream {
		t.Errorf("request format=%q stream=%v", got.Format, got.Stream)
	}
	if got.Options["num_predict"] != float64(512) {
		t.Errorf("num_predict = %v", got.Options["num_predict"])
	}
	if p.Name() != "local" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestOllamaStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   Class
	}{
		{http.StatusTooManyRequests, ClassRateLimit},
		{http.StatusNotFound, ClassAPI},
		{http.StatusInternalServerError, ClassAPI},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":"nope"}`)
			}))
			defer server.Close()

			p := NewOllamaProvider(Config{BaseURL: server.URL})
			_, err := p.GenerateBatch(context.Background(), BatchRequest{Model: "m", Prompt: "p"})
			if got := Classify(err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", err, got, tt.want)
			}
		})
	}
}

func TestOllamaDefaults(t *testing.T) {
	p := NewOllamaProvider(Config{})
	if p.baseURL != ollamaDefaultBaseURL {
		t.Errorf("baseURL = %q", p.baseURL)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q", p.Name())
	}
}

// Package providers turns a generation prompt into a batch of training
// examples through one of several LLM backends.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/routergen/internal/record"
)

// BatchRequest is a single structured generation call.
type BatchRequest struct {
	// Model is the provider-local model id, or a "provider/model" ref when
	// the request goes through a Registry.
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator produces a batch of examples for one prompt. Implementations
// return *ProviderError on failure; a reply that does not fit the batch
// schema is reported with ReasonSchema.
type Generator interface {
	GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error)
}

// Provider is a named Generator.
type Provider interface {
	Generator
	Name() string
}

// ModelRef identifies a model on a named provider.
type ModelRef struct {
	Provider string
	Model    string
}

func (r ModelRef) String() string {
	if r.Provider == "" {
		return r.Model
	}
	return r.Provider + "/" + r.Model
}

// ParseModelRef splits "provider/model" on the first slash, so model ids
// that themselves contain slashes (openrouter's "meta-llama/llama-3.1-8b")
// survive. A ref with no slash uses defaultProvider.
func ParseModelRef(ref, defaultProvider string) (ModelRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ModelRef{}, errors.New("empty model reference")
	}
	provider, model, ok := strings.Cut(ref, "/")
	if !ok {
		return ModelRef{Provider: defaultProvider, Model: ref}, nil
	}
	if provider == "" || model == "" {
		return ModelRef{}, fmt.Errorf("malformed model reference %q", ref)
	}
	return ModelRef{Provider: provider, Model: model}, nil
}

// Registry routes requests to providers by the provider half of the model
// ref. It implements Generator.
type Registry struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
}

// NewRegistry returns an empty registry. Bare model ids resolve to
// defaultProvider.
func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// Register adds p under its name, replacing any previous entry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerateBatch resolves req.Model and forwards the request with the
// provider-local model id.
func (r *Registry) GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error) {
	ref, err := ParseModelRef(req.Model, r.defaultProvider)
	if err != nil {
		return nil, &ProviderError{Reason: ReasonInvalidRequest, Model: req.Model, Message: err.Error(), Cause: err}
	}
	p, ok := r.Get(ref.Provider)
	if !ok {
		err := fmt.Errorf("provider %q is not configured", ref.Provider)
		return nil, &ProviderError{Reason: ReasonInvalidRequest, Provider: ref.Provider, Model: ref.Model, Message: err.Error(), Cause: err}
	}
	req.Model = ref.Model
	return p.GenerateBatch(ctx, req)
}

// parseReply converts raw model text into examples, tagging schema
// failures with the provider and model.
func parseReply(provider, model, text string) ([]record.TrainingExample, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newSchemaError(provider, model, &record.SchemaError{Cause: errors.New("empty completion")})
	}
	items, err := record.ParseBatch([]byte(text))
	if err != nil {
		return nil, newSchemaError(provider, model, err)
	}
	return items, nil
}

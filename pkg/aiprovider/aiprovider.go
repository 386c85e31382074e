// Package aiprovider abstracts the AI backend the planner and evaluator
// call into for classification, decomposition, and judgement. It covers
// only the two operations those components need — free-text generation
// and schema-constrained structured generation — rather than the full
// streaming chat/tool-calling surface a conversational agent would need.
package aiprovider

import (
	"context"
	"fmt"

	"github.com/QUSEIT/simacode-sub000/pkg/registry"
)

// Provider is the interface the planner and evaluator depend on.
type Provider interface {
	// GenerateText returns a free-text completion for prompt.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// GenerateStructured returns a completion constrained to schema (a JSON
	// Schema document) and unmarshals it into out.
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error

	Name() string
}

// Registry holds configured providers by name, selected at runtime by
// configuration (reasoning.provider).
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// Get resolves a provider by name, returning an error instead of a bool so
// call sites can wrap it with context.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.BaseRegistry.Get(name)
	if !ok {
		return nil, fmt.Errorf("aiprovider: no provider registered as %q", name)
	}
	return p, nil
}

package aiprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ name string }

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "ok", nil
}
func (f *fakeProvider) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("primary", &fakeProvider{name: "primary"}))

	p, err := reg.Get("primary")
	require.NoError(t, err)
	require.Equal(t, "primary", p.Name())
}

func TestRegistryGetMissingReturnsError(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("missing")
	require.Error(t, err)
}

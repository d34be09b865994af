// Package registry_test tests the provider registry.
package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-engine/internal/core"
	"github.com/book-expert/audiobook-engine/internal/registry"
)

// stubProvider is a minimal TTSProvider for registry tests.
type stubProvider struct {
	name       string
	sampleRate int
}

func (s *stubProvider) Name() string                { return s.name }
func (s *stubProvider) DisplayName() string         { return "Stub " + s.name }
func (s *stubProvider) InferenceMethods() []string  { return []string{"default"} }
func (s *stubProvider) SupportsVoiceCloning() bool  { return true }
func (s *stubProvider) RequiresPromptText() bool    { return false }
func (s *stubProvider) SampleRate() int             { return s.sampleRate }
func (s *stubProvider) LoadModel(context.Context) error { return nil }

func (s *stubProvider) GenerateAudio(_ context.Context, _ core.SynthesisRequest) (core.Clip, error) {
	return core.Clip{Samples: []float64{0}, SampleRate: s.sampleRate}, nil
}

func (s *stubProvider) MethodInfo(method string) core.MethodInfo {
	return core.MethodInfo{Name: method, DisplayName: method, Description: "", RequiresPromptText: false}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.Register(&stubProvider{name: "alpha", sampleRate: 16000})

	provider, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", provider.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.Register(&stubProvider{name: "alpha", sampleRate: 16000})
	reg.Register(&stubProvider{name: "alpha", sampleRate: 24000})

	provider, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, 24000, provider.SampleRate())

	infos := reg.List()
	require.Len(t, infos, 1)
}

func TestRegistry_DefaultIsFirstRegistered(t *testing.T) {
	t.Parallel()

	reg := registry.New()

	_, ok := reg.Default()
	assert.False(t, ok)

	reg.Register(&stubProvider{name: "first", sampleRate: 16000})
	reg.Register(&stubProvider{name: "second", sampleRate: 24000})

	provider, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "first", provider.Name())
}

func TestRegistry_ListOrder(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.Register(&stubProvider{name: "bravo", sampleRate: 16000})
	reg.Register(&stubProvider{name: "alpha", sampleRate: 24000})

	infos := reg.List()
	require.Len(t, infos, 2)

	assert.Equal(t, "bravo", infos[0].Name)
	assert.Equal(t, "alpha", infos[1].Name)
	assert.Equal(t, "Stub bravo", infos[0].DisplayName)
	assert.Equal(t, []string{"default"}, infos[0].Methods)
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.Register(&stubProvider{name: "alpha", sampleRate: 16000})
	reg.Reset()

	_, ok := reg.Get("alpha")
	assert.False(t, ok)

	_, ok = reg.Default()
	assert.False(t, ok)
	assert.Empty(t, reg.List())
}

// Package registry provides a name-keyed directory of live TTS provider
// instances.
//
// The registry is an explicitly constructed object passed into the
// orchestrator, not process-wide singleton state. It never loads a model
// itself: Register stores the lightweight wrapper and the heavy load cost is
// deferred to first use. Registration is expected from a single control
// goroutine at startup; the mutex only guards snapshot reads against that.
package registry

import (
	"sync"

	"github.com/book-expert/audiobook-engine/internal/core"
)

// ProviderInfo is an immutable snapshot of one provider's capabilities, used
// for UI listings.
type ProviderInfo struct {
	Name                 string   `json:"name"`
	DisplayName          string   `json:"display_name"`
	Methods              []string `json:"methods"`
	SupportsVoiceCloning bool     `json:"supports_voice_cloning"`
	RequiresPromptText   bool     `json:"requires_prompt_text"`
	SampleRate           int      `json:"sample_rate"`
}

// Registry holds provider instances keyed by their own declared name.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]core.TTSProvider
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		mu:        sync.RWMutex{},
		order:     nil,
		providers: make(map[string]core.TTSProvider),
	}
}

// Register stores a provider under its own declared name. The last
// registration for a given name wins; registration order is preserved for
// Default and List.
func (r *Registry) Register(provider core.TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = provider
}

// Get returns the provider registered under name, if any.
func (r *Registry) Get(name string) (core.TTSProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]

	return provider, ok
}

// Default returns the first-registered provider. It is used only when no
// explicit choice is available.
func (r *Registry) Default() (core.TTSProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil, false
	}

	return r.providers[r.order[0]], true
}

// List returns capability snapshots in registration order.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.order))

	for _, name := range r.order {
		provider := r.providers[name]
		infos = append(infos, ProviderInfo{
			Name:                 provider.Name(),
			DisplayName:          provider.DisplayName(),
			Methods:              provider.InferenceMethods(),
			SupportsVoiceCloning: provider.SupportsVoiceCloning(),
			RequiresPromptText:   provider.RequiresPromptText(),
			SampleRate:           provider.SampleRate(),
		})
	}

	return infos
}

// Reset clears all entries. Providers may hold exclusive accelerator memory,
// so this is also the explicit memory-reclamation boundary between sessions.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.providers = make(map[string]core.TTSProvider)
}

package agent

import (
	"fmt"
	"sync"

	"github.com/insightloop/core/pkg/llmprovider"
)

// ProviderFactory resolves a Profile's bound LLMBindingID to a live
// LanguageProvider. Implemented by the services layer so this package
// never imports the config/database layers.
type ProviderFactory interface {
	ProviderFor(llmBindingID string) (llmprovider.LanguageProvider, error)
}

// Factory builds a Runtime for a given Profile, caching runtimes per
// profile ID. The specialist agents are constructed by its callers.
type Factory struct {
	providers ProviderFactory
	sink      LogSink

	mu        sync.Mutex
	runtimes  map[string]*Runtime
}

func NewFactory(providers ProviderFactory, sink LogSink) *Factory {
	return &Factory{providers: providers, sink: sink, runtimes: make(map[string]*Runtime)}
}

// RuntimeFor returns a cached Runtime for profile, building one on first
// use.
func (f *Factory) RuntimeFor(profile Profile) (*Runtime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rt, ok := f.runtimes[profile.ID]; ok {
		return rt, nil
	}
	provider, err := f.providers.ProviderFor(profile.LLMBindingID)
	if err != nil {
		return nil, fmt.Errorf("agent: factory: resolve provider for profile %q: %w", profile.ID, err)
	}
	rt := NewRuntime(provider, profile, f.sink, nil)
	f.runtimes[profile.ID] = rt
	return rt, nil
}

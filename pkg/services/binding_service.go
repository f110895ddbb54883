package services

import (
	"fmt"
	"os"
	"sync"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/llmprovider"
	"github.com/insightloop/core/pkg/models"
)

// BindingService resolves an LLM binding id to a live LanguageProvider,
// caching one provider per binding. It satisfies the agent factory's
// provider-resolution interface.
//
// Resolution order when a request names no binding: the scene's binding,
// then the binding marked default. When neither exists the request fails
// with VALIDATION rather than silently picking an arbitrary binding.
type BindingService struct {
	bindings map[string]models.LLMBinding

	mu        sync.Mutex
	providers map[string]llmprovider.LanguageProvider
}

// NewBindingService creates a BindingService over the loaded bindings.
func NewBindingService(bindings map[string]models.LLMBinding) *BindingService {
	cp := make(map[string]models.LLMBinding, len(bindings))
	for k, v := range bindings {
		cp[k] = v
	}
	return &BindingService{
		bindings:  cp,
		providers: make(map[string]llmprovider.LanguageProvider),
	}
}

// ResolveBindingID picks the binding for a request: the explicit id if
// given, else the scene's binding, else the default.
func (s *BindingService) ResolveBindingID(explicitID string, scene models.Scene) (string, error) {
	if explicitID != "" {
		if _, ok := s.bindings[explicitID]; !ok {
			return "", errs.New(errs.KindNotFound, "llm binding not found: "+explicitID, nil)
		}
		return explicitID, nil
	}
	for id, b := range s.bindings {
		if scene != "" && b.Scene == scene {
			return id, nil
		}
	}
	for id, b := range s.bindings {
		if b.IsDefault {
			return id, nil
		}
	}
	return "", errs.New(errs.KindValidation,
		fmt.Sprintf("no llm binding for scene %q and no default binding configured", scene), nil)
}

// ProviderFor returns (building on first use) the provider for a binding.
func (s *BindingService) ProviderFor(llmBindingID string) (llmprovider.LanguageProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[llmBindingID]; ok {
		return p, nil
	}
	binding, ok := s.bindings[llmBindingID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "llm binding not found: "+llmBindingID, nil)
	}

	switch binding.Backend {
	case models.BackendAnthropic, "":
		apiKeyEnv := binding.APIKeyEnv
		if apiKeyEnv == "" {
			apiKeyEnv = "ANTHROPIC_API_KEY"
		}
		temperature := 0.0
		if binding.Temperature != nil {
			temperature = *binding.Temperature
		}
		p, err := llmprovider.NewAnthropicProvider(os.Getenv(apiKeyEnv), binding.Model, binding.MaxTokens, temperature)
		if err != nil {
			return nil, err
		}
		s.providers[llmBindingID] = p
		return p, nil
	default:
		return nil, errs.New(errs.KindValidation,
			fmt.Sprintf("unknown llm backend %q for binding %q", binding.Backend, llmBindingID), nil)
	}
}

// Close releases every cached provider.
func (s *BindingService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		_ = p.Close()
	}
	s.providers = make(map[string]llmprovider.LanguageProvider)
}

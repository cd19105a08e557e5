package model

import (
	"sort"
	"sync"
)

// Registry manages model selection based on capabilities.
// It maps capabilities to preferred models with fallback chains and
// tracks endpoint health.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaultModel string
	breaker      *breaker
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred" yaml:"preferred" toml:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `json:"fallback,omitempty" yaml:"fallback,omitempty" toml:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the wire format: "openai" (any OpenAI-compatible server) or "anthropic".
	Provider string `json:"provider" yaml:"provider" toml:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty" toml:"url"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model" toml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty" toml:"api_key_env"`

	// MinInterval is the minimum spacing between calls, e.g. "500ms".
	MinInterval string `json:"min_interval,omitempty" yaml:"min_interval,omitempty" toml:"min_interval"`
}

// NewRegistry creates a new model registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig, defaultModel string) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaultModel: defaultModel,
		breaker:      newBreaker(DefaultHealthConfig()),
	}
}

// NewDefaultRegistry creates a registry pointing every capability at an
// OpenAI-compatible Doubao endpoint with a local Ollama fallback.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityAnalysis:  {Preferred: []string{"doubao"}, Fallback: []string{"qwen"}},
			CapabilityItinerary: {Preferred: []string{"doubao"}, Fallback: []string{"qwen"}},
			CapabilityTips:      {Preferred: []string{"doubao"}, Fallback: []string{"qwen"}},
		},
		map[string]*EndpointConfig{
			"doubao": {
				Provider:  "openai",
				URL:       "https://ark.cn-beijing.volces.com/api/v3",
				Model:     "doubao-seed-1-6-250615",
				APIKeyEnv: "DOUBAO_API_KEY",
			},
			"qwen": {
				Provider: "openai",
				URL:      "http://localhost:11434/v1",
				Model:    "qwen2.5:14b",
			},
		},
		"doubao",
	)
}

// Resolve returns the preferred model for a capability.
func (r *Registry) Resolve(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaultModel
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	if r.defaultModel == "" {
		return nil
	}
	return []string{r.defaultModel}
}

// GetAvailableFallbackChain returns the fallback chain without endpoints
// whose circuit is open. If every endpoint is open the full chain is
// returned so the caller still has something to try.
func (r *Registry) GetAvailableFallbackChain(cap Capability) []string {
	chain := r.GetFallbackChain(cap)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// GetEndpoint returns the endpoint configuration for a model name.
// Returns nil if the model is not configured.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(cap Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[cap] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = cfg
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

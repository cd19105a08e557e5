package model

import (
	"fmt"
	"strings"
)

// RegistryConfig is the serializable form of a registry, embedded in the
// application config under "llm".
type RegistryConfig struct {
	Default      string                       `json:"default" yaml:"default" toml:"default"`
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
}

// Validate checks that every capability references configured endpoints.
func (c *RegistryConfig) Validate() error {
	for capName, capCfg := range c.Capabilities {
		if ParseCapability(capName) == "" {
			return fmt.Errorf("llm.capabilities: unknown capability %q", capName)
		}
		if capCfg == nil {
			continue
		}
		for _, name := range append(append([]string{}, capCfg.Preferred...), capCfg.Fallback...) {
			if _, ok := c.Endpoints[name]; !ok {
				return fmt.Errorf("llm.capabilities.%s: endpoint %q is not defined", capName, name)
			}
		}
	}
	for name, ep := range c.Endpoints {
		if ep == nil || ep.Model == "" {
			return fmt.Errorf("llm.endpoints.%s: model is required", name)
		}
		switch strings.ToLower(ep.Provider) {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("llm.endpoints.%s: unknown provider %q", name, ep.Provider)
		}
	}
	return nil
}

// Build converts the config into a Registry. An empty config yields the
// default registry.
func (c *RegistryConfig) Build() *Registry {
	if c == nil || len(c.Endpoints) == 0 {
		return NewDefaultRegistry()
	}
	caps := make(map[Capability]*CapabilityConfig, len(c.Capabilities))
	for k, v := range c.Capabilities {
		caps[Capability(k)] = v
	}
	endpoints := make(map[string]*EndpointConfig, len(c.Endpoints))
	for k, v := range c.Endpoints {
		cp := *v
		cp.Provider = strings.ToLower(cp.Provider)
		endpoints[k] = &cp
	}
	return NewRegistry(caps, endpoints, c.Default)
}

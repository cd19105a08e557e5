// Package llm provides a provider-agnostic LLM client with fallback
// across the endpoints configured for a capability. Retries, rate limits
// and caching are delegated to the resilient client.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/resilient"
	"github.com/google/uuid"
)

// providerPrefix namespaces LLM endpoints among resilient providers.
const providerPrefix = "llm/"

// Client is a provider-agnostic LLM client with fallback support.
type Client struct {
	registry   *model.Registry
	calls      *resilient.Client
	httpClient *http.Client
	logger     *slog.Logger
	getenv     func(string) string

	providers map[string]Provider

	mu         sync.Mutex
	registered map[string]bool
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Capability selects the endpoint chain.
	Capability model.Capability

	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses the capability default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the capability default.
	MaxTokens int

	// Cacheable allows identical requests to be answered from the cache.
	Cacheable bool
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this call in logs.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the model that answered.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Cached is true when the answer came from the response cache.
	Cached bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithProviders makes wire formats available by name.
func WithProviders(ps ...Provider) ClientOption {
	return func(client *Client) {
		for _, p := range ps {
			client.providers[p.Name()] = p
		}
	}
}

// WithEnv replaces the environment lookup used for API keys.
func WithEnv(getenv func(string) string) ClientOption {
	return func(client *Client) {
		client.getenv = getenv
	}
}

// NewClient creates a new LLM client. calls carries the retry, rate-limit
// and cache policy for every endpoint.
func NewClient(registry *model.Registry, calls *resilient.Client, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		calls:    calls,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger:     slog.Default(),
		getenv:     os.Getenv,
		providers:  make(map[string]Provider),
		registered: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a completion request, walking the capability's fallback
// chain until an endpoint answers.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if !req.Capability.IsValid() {
		return nil, fmt.Errorf("unknown capability %q", req.Capability)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	temperature, maxTokens := req.Capability.Sampling()
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	chain := c.registry.GetAvailableFallbackChain(req.Capability)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability %s", req.Capability)
	}

	requestID := uuid.New().String()
	params := map[string]any{
		"messages":    req.Messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}

	var lastErr error
	for _, name := range chain {
		ep := c.registry.GetEndpoint(name)
		if ep == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", name)
			continue
		}
		provider, ok := c.providers[ep.Provider]
		if !ok {
			lastErr = fmt.Errorf("unknown provider %q for model %s", ep.Provider, name)
			continue
		}
		if err := c.ensureRegistered(name, ep, provider); err != nil {
			lastErr = err
			continue
		}

		resp, err := c.calls.Call(ctx, providerPrefix+name, "chat", params, req.Cacheable)
		if err == nil {
			parsed, perr := provider.ParseResponse(resp.Payload, ep.Model)
			if perr == nil {
				c.registry.MarkEndpointSuccess(name)
				parsed.RequestID = requestID
				parsed.Cached = resp.Cached
				return parsed, nil
			}
			err = perr
		}

		lastErr = err
		if resilient.KindOf(err) != resilient.KindCanceled {
			c.registry.MarkEndpointFailure(name)
		}
		c.logger.Warn("Endpoint failed, trying fallback",
			"request_id", requestID,
			"model", name,
			"provider", ep.Provider,
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// ensureRegistered registers the endpoint with the resilient client the
// first time it is used.
func (c *Client) ensureRegistered(name string, ep *model.EndpointConfig, provider Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered[name] {
		return nil
	}

	var opts []resilient.ProviderOption
	if ep.MinInterval != "" {
		d, err := time.ParseDuration(ep.MinInterval)
		if err != nil {
			return fmt.Errorf("model %s: invalid min_interval: %w", name, err)
		}
		opts = append(opts, resilient.WithMinInterval(d), resilient.WithMaxInterval(8*d))
	}

	c.calls.Register(providerPrefix+name, c.transport(ep, provider), opts...)
	c.registered[name] = true
	return nil
}

// transport builds the HTTP call for one endpoint.
func (c *Client) transport(ep *model.EndpointConfig, provider Provider) resilient.Transport {
	url := provider.BuildURL(ep.URL)
	return resilient.TransportFunc(func(ctx context.Context, _ string, params map[string]any) ([]byte, error) {
		messages, _ := params["messages"].([]Message)
		temperature, _ := params["temperature"].(float64)
		maxTokens, _ := params["max_tokens"].(int)

		body, err := provider.BuildRequestBody(ep.Model, messages, &temperature, maxTokens)
		if err != nil {
			return nil, resilient.NewFatalError(fmt.Errorf("build request body: %w", err))
		}

		c.logger.Debug("Sending LLM request",
			"provider", ep.Provider,
			"model", ep.Model,
			"url", url,
			"messages", len(messages))

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, resilient.NewFatalError(fmt.Errorf("create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		var apiKey string
		if ep.APIKeyEnv != "" {
			apiKey = c.getenv(ep.APIKeyEnv)
		}
		provider.SetHeaders(httpReq, apiKey)

		payload, err := resilient.Fetch(c.httpClient, httpReq)
		if err != nil {
			return nil, err
		}
		// Unusable 2xx bodies are retried and never reach the cache.
		parsed, err := provider.ParseResponse(payload, ep.Model)
		if err != nil {
			return nil, resilient.NewTransientError(fmt.Errorf("parse response: %w", err))
		}
		if strings.TrimSpace(parsed.Content) == "" {
			return nil, resilient.NewTransientError(fmt.Errorf("empty completion from %s", ep.Model))
		}
		return payload, nil
	})
}

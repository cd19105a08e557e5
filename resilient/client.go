// Package resilient wraps every external provider call with a response
// cache, per-provider rate gates, retry with exponential backoff and
// quota-aware slowdown. Callers receive either a payload or a *ClientError
// and decide on fallback data themselves.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/c360studio/semtrip/resilient"

// Transport performs one raw call against a provider.
type Transport interface {
	Call(ctx context.Context, endpoint string, params map[string]any) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, endpoint string, params map[string]any) ([]byte, error)

// Call implements Transport.
func (f TransportFunc) Call(ctx context.Context, endpoint string, params map[string]any) ([]byte, error) {
	return f(ctx, endpoint, params)
}

// Response is the result of a successful call.
type Response struct {
	Payload  []byte
	Cached   bool
	Attempts int
}

// provider is the per-provider state: transport, gate and cache policy.
type provider struct {
	id          string
	transport   Transport
	gate        *Gate
	minInterval time.Duration
	maxInterval time.Duration
	secrets     []string
	ttl         time.Duration
}

// ProviderOption configures a registered provider.
type ProviderOption func(*provider)

// WithMinInterval sets the minimum spacing between calls.
func WithMinInterval(d time.Duration) ProviderOption {
	return func(p *provider) {
		p.minInterval = d
	}
}

// WithMaxInterval caps how far quota errors may stretch the spacing.
func WithMaxInterval(d time.Duration) ProviderOption {
	return func(p *provider) {
		p.maxInterval = d
	}
}

// WithSecretParams lists parameters excluded from cache keys.
func WithSecretParams(names ...string) ProviderOption {
	return func(p *provider) {
		p.secrets = append(p.secrets, names...)
	}
}

// WithProviderTTL overrides the cache TTL for one provider.
func WithProviderTTL(d time.Duration) ProviderOption {
	return func(p *provider) {
		p.ttl = d
	}
}

// Client dispatches calls to registered providers.
type Client struct {
	mu        sync.RWMutex
	providers map[string]*provider

	cache   Cache
	retry   RetryConfig
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache sets the cache backend shared by all providers.
func WithCache(c Cache) ClientOption {
	return func(client *Client) {
		client.cache = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithTTL sets the default cache TTL.
func WithTTL(d time.Duration) ClientOption {
	return func(client *Client) {
		client.ttl = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithMetrics sets the metric collectors.
func WithMetrics(m *Metrics) ClientOption {
	return func(client *Client) {
		client.metrics = m
	}
}

// WithTracer sets the tracer used for call spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(client *Client) {
		client.tracer = t
	}
}

// NewClient creates a client with an in-memory cache unless another cache
// is supplied.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]*provider),
		retry:     DefaultRetryConfig(),
		ttl:       DefaultTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c
}

// Register adds or replaces a provider.
func (c *Client) Register(id string, t Transport, opts ...ProviderOption) {
	p := &provider{id: id, transport: t}
	for _, opt := range opts {
		opt(p)
	}
	p.gate = NewGate(p.minInterval, p.maxInterval)

	c.mu.Lock()
	c.providers[id] = p
	c.mu.Unlock()

	c.metrics.setInterval(id, p.minInterval)
}

// Registered reports whether a provider id is known.
func (c *Client) Registered(id string) bool {
	return c.provider(id) != nil
}

// Interval returns the current minimum interval of a provider.
func (c *Client) Interval(id string) time.Duration {
	if p := c.provider(id); p != nil {
		return p.gate.Interval()
	}
	return 0
}

func (c *Client) provider(id string) *provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[id]
}

// Call issues endpoint on providerID with params. When cacheable is set a
// fresh cached payload is returned without touching the provider, and a
// successful payload refreshes the cache.
func (c *Client) Call(ctx context.Context, providerID, endpoint string, params map[string]any, cacheable bool) (*Response, error) {
	p := c.provider(providerID)
	if p == nil {
		return nil, &ClientError{
			Provider: providerID,
			Endpoint: endpoint,
			Kind:     KindFatal,
			Err:      fmt.Errorf("provider %q is not registered", providerID),
		}
	}

	ctx, span := c.tracer.Start(ctx, "provider.call", trace.WithAttributes(
		attribute.String("provider", providerID),
		attribute.String("endpoint", endpoint),
		attribute.Bool("cacheable", cacheable),
	))
	defer span.End()

	var key string
	if cacheable {
		key = CacheKey(providerID, endpoint, params, p.secrets)
		if payload, ok := c.cache.Get(ctx, key); ok {
			c.metrics.hit(providerID)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return &Response{Payload: payload, Cached: true}, nil
		}
	}

	var lastErr error
	attempts := 0
	for attempts < c.retry.MaxAttempts {
		attempts++

		if err := p.gate.Wait(ctx); err != nil {
			lastErr = canceled(ctx, err)
			break
		}

		started := time.Now()
		payload, err := p.transport.Call(ctx, endpoint, params)
		c.metrics.observe(providerID, time.Since(started))

		if err == nil {
			if cacheable {
				c.cache.Set(ctx, key, payload, c.ttlFor(p))
			}
			c.metrics.outcome(providerID, "success")
			span.SetAttributes(attribute.Int("attempts", attempts))
			return &Response{Payload: payload, Attempts: attempts}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			lastErr = canceled(ctx, err)
			break
		}
		if IsFatal(err) {
			break
		}

		if IsQuota(err) {
			next := p.gate.Escalate()
			c.metrics.setInterval(providerID, next)
			c.logger.Warn("Provider quota exceeded, slowing down",
				"provider", providerID,
				"endpoint", endpoint,
				"interval", next)
			continue
		}

		if attempts < c.retry.MaxAttempts {
			backoff := c.retry.Backoff(attempts)
			c.logger.Debug("Provider call failed, retrying",
				"provider", providerID,
				"endpoint", endpoint,
				"attempt", attempts,
				"max_attempts", c.retry.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				lastErr = canceled(ctx, err)
			case <-time.After(backoff):
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	cerr := &ClientError{
		Provider: providerID,
		Endpoint: endpoint,
		Attempts: attempts,
		Kind:     KindOf(lastErr),
		Err:      lastErr,
	}
	c.metrics.outcome(providerID, string(cerr.Kind))
	span.RecordError(cerr)
	span.SetStatus(codes.Error, cerr.Error())
	c.logger.Warn("Provider call failed",
		"provider", providerID,
		"endpoint", endpoint,
		"attempts", attempts,
		"kind", cerr.Kind,
		"error", lastErr)
	return nil, cerr
}

func (c *Client) ttlFor(p *provider) time.Duration {
	if p.ttl > 0 {
		return p.ttl
	}
	return c.ttl
}

// canceled returns an error that wraps the context error so KindOf
// reports a cancellation even when the limiter refused to wait.
func canceled(ctx context.Context, cause error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		ctxErr = context.DeadlineExceeded
	}
	if errors.Is(cause, ctxErr) {
		return cause
	}
	return fmt.Errorf("%w: %v", ctxErr, cause)
}

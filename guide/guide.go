// Package guide downloads destination travel guides and turns them into
// short markdown excerpts that ground the analysis prompt.
package guide

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semtrip/resilient"
)

// ProviderID is the resilient provider name for guide downloads.
const ProviderID = "guide"

// DefaultExcerptRunes bounds how much of a guide reaches the prompt.
const DefaultExcerptRunes = 1500

// Guide is a converted destination guide.
type Guide struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"-"`
	Excerpt  string `json:"excerpt"`
}

// PageFetcher downloads raw HTML.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Config configures the loader.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBytes     int64
	ExcerptRunes int
	MinInterval  time.Duration
	MaxInterval  time.Duration
	CacheTTL     time.Duration
}

// DefaultConfig returns loader defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		UserAgent:    "semtrip/1.0 (+https://github.com/c360studio/semtrip)",
		MaxBytes:     2 << 20,
		ExcerptRunes: DefaultExcerptRunes,
		MinInterval:  500 * time.Millisecond,
		MaxInterval:  5 * time.Second,
		CacheTTL:     time.Hour,
	}
}

// Loader fetches guides through the resilient client so downloads share
// its cache, rate gate and retry policy.
type Loader struct {
	calls     *resilient.Client
	converter *Converter
	excerpt   int
	logger    *slog.Logger
}

// NewLoader registers the guide provider on calls. A nil fetcher uses an
// SSRF-safe HTTP fetcher built from cfg.
func NewLoader(calls *resilient.Client, fetcher PageFetcher, cfg Config, logger *slog.Logger) *Loader {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.ExcerptRunes <= 0 {
		cfg.ExcerptRunes = def.ExcerptRunes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = NewFetcher(cfg.Timeout, cfg.UserAgent, cfg.MaxBytes)
	}

	calls.Register(ProviderID, resilient.TransportFunc(func(ctx context.Context, _ string, params map[string]any) ([]byte, error) {
		rawURL, _ := params["url"].(string)
		return fetcher.Fetch(ctx, rawURL)
	}),
		resilient.WithMinInterval(cfg.MinInterval),
		resilient.WithMaxInterval(cfg.MaxInterval),
		resilient.WithProviderTTL(cfg.CacheTTL),
	)

	return &Loader{
		calls:     calls,
		converter: NewConverter(),
		excerpt:   cfg.ExcerptRunes,
		logger:    logger,
	}
}

// Load downloads and converts the guide at rawURL.
func (l *Loader) Load(ctx context.Context, rawURL string) (*Guide, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	resp, err := l.calls.Call(ctx, ProviderID, "page", map[string]any{"url": rawURL}, true)
	if err != nil {
		return nil, fmt.Errorf("fetch guide: %w", err)
	}

	page, err := l.converter.Convert(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("convert guide: %w", err)
	}

	l.logger.Debug("Loaded destination guide",
		"url", rawURL,
		"title", page.Title,
		"cached", resp.Cached,
		"bytes", len(resp.Payload))

	return &Guide{
		URL:      rawURL,
		Title:    page.Title,
		Markdown: page.Markdown,
		Excerpt:  Excerpt(page.Markdown, l.excerpt),
	}, nil
}

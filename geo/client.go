// Package geo is a client for an AMap-style place and geocoding REST API.
// Every call goes through the resilient client under the "amap" provider.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/c360studio/semtrip/resilient"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/trip"
)

// ProviderID is the resilient provider name of the map service.
const ProviderID = "amap"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("map service is not configured")

// quotaInfos are AMap info codes that mean "slow down".
var quotaInfos = []string{"CUQPS_HAS_EXCEEDED_THE_LIMIT", "ACCESS_TOO_FREQUENT", "DAILY_QUERY_OVER_LIMIT"}

// Config configures the map client.
type Config struct {
	BaseURL     string
	APIKey      string
	MinInterval time.Duration
	MaxInterval time.Duration
	Timeout     time.Duration
}

// DefaultConfig returns the public AMap endpoint settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://restapi.amap.com/v3",
		MinInterval: 200 * time.Millisecond,
		MaxInterval: 2 * time.Second,
		Timeout:     10 * time.Second,
	}
}

// POI is one place search result.
type POI struct {
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	Coordinate trip.Coordinate `json:"coordinates"`
	Type       string          `json:"type"`
	Rating     string          `json:"rating"`
}

// Client queries the map service.
type Client struct {
	calls      *resilient.Client
	cfg        Config
	httpClient *http.Client
	seeds      *seed.Store
	logger     *slog.Logger
}

// NewClient registers the map provider on calls and returns a client.
func NewClient(calls *resilient.Client, cfg Config, seeds *seed.Store, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if seeds == nil {
		seeds, _ = seed.NewStore("", logger)
	}
	c := &Client{
		calls:      calls,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		seeds:      seeds,
		logger:     logger,
	}
	calls.Register(ProviderID, resilient.TransportFunc(c.do),
		resilient.WithMinInterval(cfg.MinInterval),
		resilient.WithMaxInterval(cfg.MaxInterval))
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// amapStatus is the envelope shared by every response.
type amapStatus struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	InfoCode string `json:"infocode"`
}

// do is the raw transport: it appends the key, issues the GET and maps
// AMap status codes to error classes.
func (c *Client) do(ctx context.Context, endpoint string, params map[string]any) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	q.Set("key", c.cfg.APIKey)
	q.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, resilient.NewFatalError(fmt.Errorf("create request: %w", err))
	}

	body, err := resilient.Fetch(c.httpClient, req)
	if err != nil {
		return nil, err
	}

	var status amapStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, resilient.NewTransientError(fmt.Errorf("decode map response: %w", err))
	}
	if status.Status != "1" {
		err := fmt.Errorf("map API error: %s (%s)", status.Info, status.InfoCode)
		for _, code := range quotaInfos {
			if strings.Contains(status.Info, code) {
				return nil, resilient.NewQuotaError(err)
			}
		}
		return nil, resilient.NewFatalError(err)
	}
	return body, nil
}

// flexString decodes AMap fields that are a string when set and an empty
// array when missing.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = ""
	return nil
}

type poiResponse struct {
	POIs []struct {
		Name     flexString `json:"name"`
		Address  flexString `json:"address"`
		Location flexString `json:"location"`
		Type     flexString `json:"type"`
		BizExt   struct {
			Rating flexString `json:"rating"`
		} `json:"biz_ext"`
	} `json:"pois"`
}

// SearchPOI searches places by keyword within city.
func (c *Client) SearchPOI(ctx context.Context, keyword, city string, limit int) ([]POI, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 10
	}
	keyword = NormalizeKeyword(keyword, city)

	resp, err := c.calls.Call(ctx, ProviderID, "place/text", map[string]any{
		"keywords": keyword,
		"city":     city,
		"offset":   limit,
	}, true)
	if err != nil {
		return nil, err
	}

	var decoded poiResponse
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode POI response: %w", err)
	}

	pois := make([]POI, 0, len(decoded.POIs))
	for _, p := range decoded.POIs {
		coord, err := ParseLocation(string(p.Location))
		if err != nil {
			c.logger.Debug("Skipping POI without location", "name", p.Name)
			continue
		}
		pois = append(pois, POI{
			Name:       string(p.Name),
			Address:    string(p.Address),
			Coordinate: coord,
			Type:       string(p.Type),
			Rating:     string(p.BizExt.Rating),
		})
	}
	return pois, nil
}

type geocodeResponse struct {
	Geocodes []struct {
		FormattedAddress flexString `json:"formatted_address"`
		Location         flexString `json:"location"`
	} `json:"geocodes"`
}

// Geocode resolves an address to coordinates.
func (c *Client) Geocode(ctx context.Context, address, city string) (trip.Coordinate, string, error) {
	if !c.Configured() {
		return trip.Coordinate{}, "", ErrNotConfigured
	}
	params := map[string]any{"address": address}
	if city != "" {
		params["city"] = city
	}
	resp, err := c.calls.Call(ctx, ProviderID, "geocode/geo", params, true)
	if err != nil {
		return trip.Coordinate{}, "", err
	}

	var decoded geocodeResponse
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		return trip.Coordinate{}, "", fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Geocodes) == 0 {
		return trip.Coordinate{}, "", fmt.Errorf("no geocode result for %q", address)
	}
	g := decoded.Geocodes[0]
	coord, err := ParseLocation(string(g.Location))
	if err != nil {
		return trip.Coordinate{}, "", err
	}
	return coord, string(g.FormattedAddress), nil
}

// CityCoordinate resolves a destination to a coordinate. Country names are
// mapped to a representative city first and known foreign cities are
// answered from seed data without a network call.
func (c *Client) CityCoordinate(ctx context.Context, destination string) (trip.Coordinate, error) {
	name := strings.TrimSpace(destination)
	data := c.seeds.Data()
	if capital, ok := data.CapitalOf(name); ok {
		name = capital
	}
	if coord, ok := data.InternationalCoordinate(name); ok {
		return coord, nil
	}
	coord, _, err := c.Geocode(ctx, name, "")
	if err != nil {
		if city, ok := data.CityFor(name); ok {
			return city.Coordinate(), nil
		}
		return trip.Coordinate{}, err
	}
	return coord, nil
}

// NormalizeKeyword replaces empty or single-rune keywords with a generic
// attraction search for the city.
func NormalizeKeyword(keyword, city string) string {
	keyword = strings.TrimSpace(keyword)
	if utf8.RuneCountInString(keyword) < 2 {
		return city + "景点"
	}
	return keyword
}

// ParseLocation parses an AMap "lng,lat" string.
func ParseLocation(s string) (trip.Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return trip.Coordinate{}, fmt.Errorf("invalid location %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return trip.Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return trip.Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	return trip.Coordinate{Lat: lat, Lng: lng}, nil
}

// Package weather is a client for an OpenWeather-style REST API plus pure
// helpers that turn a forecast into travel advice.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/semtrip/resilient"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/trip"
)

// ProviderID is the resilient provider name of the weather service.
const ProviderID = "openweather"

// maxForecastDays is how far the 3-hour forecast reaches.
const maxForecastDays = 5

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("weather service is not configured")

// Config configures the weather client.
type Config struct {
	BaseURL     string
	APIKey      string
	MinInterval time.Duration
	MaxInterval time.Duration
	Timeout     time.Duration
}

// DefaultConfig returns the public OpenWeather endpoint settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openweathermap.org",
		MinInterval: 100 * time.Millisecond,
		MaxInterval: 2 * time.Second,
		Timeout:     10 * time.Second,
	}
}

// Client queries the weather service.
type Client struct {
	calls      *resilient.Client
	cfg        Config
	httpClient *http.Client
	seeds      *seed.Store
	logger     *slog.Logger
}

// NewClient registers the weather provider on calls and returns a client.
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

func (c *Client) do(ctx context.Context, endpoint string, params map[string]any) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	q.Set("lang", "zh_cn")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, resilient.NewFatalError(fmt.Errorf("create request: %w", err))
	}
	return resilient.Fetch(c.httpClient, req)
}

type directResult struct {
	Name       string            `json:"name"`
	LocalNames map[string]string `json:"local_names"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
}

// Coordinates looks up a city by name. The returned name prefers the
// Chinese local name.
func (c *Client) Coordinates(ctx context.Context, city string) (trip.Coordinate, string, error) {
	if !c.Configured() {
		return trip.Coordinate{}, "", ErrNotConfigured
	}
	resp, err := c.calls.Call(ctx, ProviderID, "geo/1.0/direct", map[string]any{"q": city, "limit": 1}, true)
	if err != nil {
		return trip.Coordinate{}, "", err
	}
	var results []directResult
	if err := json.Unmarshal(resp.Payload, &results); err != nil {
		return trip.Coordinate{}, "", fmt.Errorf("decode geocoding response: %w", err)
	}
	if len(results) == 0 {
		return trip.Coordinate{}, "", fmt.Errorf("city %q not found", city)
	}
	r := results[0]
	name := r.Name
	if zh := r.LocalNames["zh"]; zh != "" {
		name = zh
	}
	return trip.Coordinate{Lat: r.Lat, Lng: r.Lon}, name, nil
}

type condition struct {
	Description string `json:"description"`
}

type currentResponse struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []condition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility *float64 `json:"visibility"`
}

// Current returns the observed weather at coord. Current conditions are
// not cached.
func (c *Client) Current(ctx context.Context, coord trip.Coordinate) (trip.CurrentWeather, error) {
	if !c.Configured() {
		return trip.CurrentWeather{}, ErrNotConfigured
	}
	resp, err := c.calls.Call(ctx, ProviderID, "data/2.5/weather",
		map[string]any{"lat": coord.Lat, "lon": coord.Lng}, false)
	if err != nil {
		return trip.CurrentWeather{}, err
	}
	var decoded currentResponse
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		return trip.CurrentWeather{}, fmt.Errorf("decode weather response: %w", err)
	}
	visibility := 10.0
	if decoded.Visibility != nil {
		visibility = *decoded.Visibility / 1000
	}
	cur := trip.CurrentWeather{
		Temperature: math.Round(decoded.Main.Temp),
		FeelsLike:   math.Round(decoded.Main.FeelsLike),
		Humidity:    decoded.Main.Humidity,
		Pressure:    decoded.Main.Pressure,
		WindSpeed:   decoded.Wind.Speed,
		Visibility:  visibility,
	}
	if len(decoded.Weather) > 0 {
		cur.Description = decoded.Weather[0].Description
	}
	return cur, nil
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []condition `json:"weather"`
		Wind    struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	} `json:"list"`
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
}

// Forecast returns up to days daily forecasts built from the 3-hour list,
// grouped by local calendar date.
func (c *Client) Forecast(ctx context.Context, coord trip.Coordinate, days int) ([]trip.DailyWeather, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	resp, err := c.calls.Call(ctx, ProviderID, "data/2.5/forecast",
		map[string]any{"lat": coord.Lat, "lon": coord.Lng}, true)
	if err != nil {
		return nil, err
	}
	var decoded forecastResponse
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}

	zone := time.FixedZone("local", decoded.City.Timezone)
	type bucket struct {
		date                  string
		temps, humidity, wind []float64
		descriptions          []string
	}
	var buckets []*bucket
	index := map[string]*bucket{}
	for _, item := range decoded.List {
		date := time.Unix(item.Dt, 0).In(zone).Format(trip.DateLayout)
		b, ok := index[date]
		if !ok {
			b = &bucket{date: date}
			index[date] = b
			buckets = append(buckets, b)
		}
		b.temps = append(b.temps, item.Main.Temp)
		b.humidity = append(b.humidity, item.Main.Humidity)
		b.wind = append(b.wind, item.Wind.Speed)
		if len(item.Weather) > 0 {
			b.descriptions = append(b.descriptions, item.Weather[0].Description)
		}
	}

	if days <= 0 || days > len(buckets) {
		days = len(buckets)
	}
	out := make([]trip.DailyWeather, 0, days)
	for _, b := range buckets[:days] {
		out = append(out, trip.DailyWeather{
			Date:        b.date,
			TempMax:     math.Round(maxOf(b.temps)),
			TempMin:     math.Round(minOf(b.temps)),
			TempAvg:     math.Round(mean(b.temps)),
			Description: dominant(b.descriptions),
			Humidity:    math.Round(mean(b.humidity)),
			WindSpeed:   math.Round(mean(b.wind)*10) / 10,
		})
	}
	return out, nil
}

// ForTrip builds the weather snapshot for a trip. It never fails: missing
// configuration or provider errors yield fallback data with Fallback set.
func (c *Client) ForTrip(ctx context.Context, city string, start trip.Date, days int) *trip.WeatherSnapshot {
	snap := &trip.WeatherSnapshot{}
	coord, err := c.coordinatesWithFallback(ctx, city)
	if err != nil {
		snap.Fallback = true
	}

	if cur, err := c.Current(ctx, coord); err == nil {
		snap.Current = cur
	} else {
		c.logFallback("current", city, err)
		snap.Current = FallbackCurrent()
		snap.Fallback = true
	}

	want := min(days, maxForecastDays)
	if forecast, err := c.Forecast(ctx, coord, want); err == nil && len(forecast) > 0 {
		snap.Forecast = forecast
	} else {
		c.logFallback("forecast", city, err)
		snap.Forecast = FallbackForecast(start, want)
		snap.Fallback = true
	}

	snap.Analysis = Analyze(snap.Forecast)
	snap.Recommendations = Recommendations(snap.Forecast)
	return snap
}

func (c *Client) coordinatesWithFallback(ctx context.Context, city string) (trip.Coordinate, error) {
	coord, _, err := c.Coordinates(ctx, city)
	if err == nil {
		return coord, nil
	}
	c.logFallback("coordinates", city, err)
	if table, ok := c.seeds.Data().CityFor(city); ok {
		return table.Coordinate(), err
	}
	return seed.DefaultCoordinate, err
}

func (c *Client) logFallback(what, city string, err error) {
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return
	}
	c.logger.Warn("Weather lookup failed, using fallback", "lookup", what, "city", city, "error", err)
}

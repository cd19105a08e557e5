package weather_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semtrip/resilient"
	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, key string, handler http.HandlerFunc) *weather.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	calls := resilient.NewClient(resilient.WithRetryConfig(resilient.RetryConfig{
		MaxAttempts: 2, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 2 * time.Millisecond,
	}))
	return weather.NewClient(calls, weather.Config{BaseURL: srv.URL, APIKey: key}, nil, nil)
}

// forecastJSON builds a 3-hour forecast list in UTC+8 for the given local
// dates, each with the given temps and descriptions.
func forecastJSON(entries []struct {
	local time.Time
	temp  float64
	desc  string
	wind  float64
}) string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, fmt.Sprintf(
			`{"dt":%d,"main":{"temp":%g,"humidity":60},"weather":[{"description":"%s"}],"wind":{"speed":%g}}`,
			e.local.Unix(), e.temp, e.desc, e.wind))
	}
	return `{"list":[` + strings.Join(items, ",") + `],"city":{"timezone":28800}}`
}

var cst = time.FixedZone("CST", 8*3600)

func liveHandler(t *testing.T, hits *atomic.Int32) http.HandlerFunc {
	type entry = struct {
		local time.Time
		temp  float64
		desc  string
		wind  float64
	}
	forecast := forecastJSON([]entry{
		{time.Date(2026, 5, 1, 0, 0, 0, 0, cst), 18, "晴", 2},
		{time.Date(2026, 5, 1, 12, 0, 0, 0, cst), 27, "晴", 3},
		{time.Date(2026, 5, 1, 21, 0, 0, 0, cst), 21, "多云", 4},
		{time.Date(2026, 5, 2, 9, 0, 0, 0, cst), 20, "小雨", 6},
		{time.Date(2026, 5, 2, 15, 0, 0, 0, cst), 24, "小雨", 7},
	})
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "zh_cn", q.Get("lang"))
		switch r.URL.Path {
		case "/geo/1.0/direct":
			assert.Equal(t, "杭州", q.Get("q"))
			_, _ = w.Write([]byte(`[{"name":"Hangzhou","local_names":{"zh":"杭州市"},"lat":30.27,"lon":120.15}]`))
		case "/data/2.5/weather":
			assert.Equal(t, "30.27", q.Get("lat"))
			_, _ = w.Write([]byte(`{"main":{"temp":23.6,"feels_like":24.2,"humidity":70,"pressure":1010},
				"weather":[{"description":"晴"}],"wind":{"speed":2.1},"visibility":8000}`))
		case "/data/2.5/forecast":
			_, _ = w.Write([]byte(forecast))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestCoordinates(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, "key", liveHandler(t, &hits))

	coord, name, err := c.Coordinates(context.Background(), "杭州")
	require.NoError(t, err)
	assert.Equal(t, "杭州市", name)
	assert.Equal(t, trip.Coordinate{Lat: 30.27, Lng: 120.15}, coord)
}

func TestForecast_GroupsByLocalDate(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, "key", liveHandler(t, &hits))

	days, err := c.Forecast(context.Background(), trip.Coordinate{Lat: 30.27, Lng: 120.15}, 5)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2026-05-01", days[0].Date)
	assert.Equal(t, 27.0, days[0].TempMax)
	assert.Equal(t, 18.0, days[0].TempMin)
	assert.Equal(t, 22.0, days[0].TempAvg)
	assert.Equal(t, "晴", days[0].Description)
	assert.Equal(t, 60.0, days[0].Humidity)
	assert.Equal(t, 3.0, days[0].WindSpeed)

	assert.Equal(t, "2026-05-02", days[1].Date)
	assert.Equal(t, "小雨", days[1].Description)
	assert.Equal(t, 6.5, days[1].WindSpeed)

	limited, err := c.Forecast(context.Background(), trip.Coordinate{Lat: 30.27, Lng: 120.15}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestForTrip_Live(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, "key", liveHandler(t, &hits))

	snap := c.ForTrip(context.Background(), "杭州", trip.NewDate(2026, 5, 1), 2)
	require.NotNil(t, snap)
	assert.False(t, snap.Fallback)
	assert.Equal(t, 24.0, snap.Current.Temperature)
	assert.Equal(t, 8.0, snap.Current.Visibility)
	assert.Len(t, snap.Forecast, 2)
	assert.Equal(t, 1, snap.Analysis.RainyDays)
	assert.Equal(t, 1, snap.Analysis.SunnyDays)
	assert.Contains(t, snap.Recommendations, "预计有降雨，建议携带雨具")
	assert.Contains(t, snap.Recommendations, "部分时间风力较大，注意保暖和安全")
	assert.Equal(t, int32(3), hits.Load())
}

func TestForTrip_NotConfigured(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, "", func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })

	snap := c.ForTrip(context.Background(), "杭州", trip.NewDate(2026, 5, 1), 7)
	assert.True(t, snap.Fallback)
	assert.Zero(t, hits.Load())
	assert.Equal(t, weather.FallbackCurrent(), snap.Current)
	require.Len(t, snap.Forecast, 5)
	assert.Equal(t, "2026-05-01", snap.Forecast[0].Date)
	assert.Equal(t, []string{"多云", "晴", "小雨", "多云", "晴"}, []string{
		snap.Forecast[0].Description, snap.Forecast[1].Description, snap.Forecast[2].Description,
		snap.Forecast[3].Description, snap.Forecast[4].Description,
	})
}

func TestForTrip_ProviderDownUsesFallback(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, "key", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	snap := c.ForTrip(context.Background(), "杭州", trip.NewDate(2026, 5, 1), 2)
	assert.True(t, snap.Fallback)
	assert.Len(t, snap.Forecast, 2)
	// three lookups, two attempts each
	assert.Equal(t, int32(6), hits.Load())
}

func TestAnalyze(t *testing.T) {
	assert.Equal(t, "天气数据不足", weather.Analyze(nil).Summary)

	a := weather.Analyze([]trip.DailyWeather{
		{TempMin: 10, TempMax: 20, TempAvg: 15, Description: "晴"},
		{TempMin: 12, TempMax: 24, TempAvg: 18, Description: "小雨"},
		{TempMin: 8, TempMax: 16, TempAvg: 12, Description: "小雨"},
	})
	assert.Equal(t, "平均气温 15°C", a.Summary)
	assert.Equal(t, "8°C - 24°C", a.TempRange)
	assert.Equal(t, "小雨", a.Pattern)
	assert.Equal(t, 2, a.RainyDays)
	assert.Equal(t, 1, a.SunnyDays)
}

func TestRecommendations(t *testing.T) {
	assert.Equal(t, []string{"建议关注当地天气预报"}, weather.Recommendations(nil))
	assert.Equal(t, []string{"气温较低，建议携带厚外套和保暖衣物"},
		weather.Recommendations([]trip.DailyWeather{{TempAvg: 3, Description: "晴"}}))
	assert.Equal(t, []string{"气温较高，建议携带防晒用品和轻薄衣物"},
		weather.Recommendations([]trip.DailyWeather{{TempAvg: 33, Description: "晴"}}))
}

func TestNoteForDay(t *testing.T) {
	snap := &trip.WeatherSnapshot{Forecast: []trip.DailyWeather{
		{Date: "2026-05-01", TempMin: 18, TempMax: 26, Description: "小雨"},
		{Date: "2026-05-02", TempMin: 20, TempMax: 36, Description: "晴"},
		{Date: "2026-05-03", TempMin: -3, TempMax: 4, Description: "阴"},
	}}
	start := trip.NewDate(2026, 5, 1)

	assert.Equal(t, "小雨，18°C - 26°C，建议携带雨具", weather.NoteForDay(snap, start, 1))
	assert.Equal(t, "晴，20°C - 36°C，适合户外活动，高温注意防暑", weather.NoteForDay(snap, start.AddDays(1), 2))
	assert.Equal(t, "阴，-3°C - 4°C，适合室内外活动，低温注意保暖", weather.NoteForDay(snap, start.AddDays(2), 3))
	assert.Empty(t, weather.NoteForDay(snap, start.AddDays(5), 6))
	assert.Empty(t, weather.NoteForDay(nil, start, 1))

	snap.Fallback = true
	assert.Equal(t, "阴，-3°C - 4°C，适合室内外活动，低温注意保暖", weather.NoteForDay(snap, start.AddDays(5), 6))

	assert.True(t, weather.IsWet("小雨，建议携带雨具"))
	assert.True(t, weather.IsExtreme("晴，高温注意防暑"))
	assert.False(t, weather.IsExtreme("晴"))
}

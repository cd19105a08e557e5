package geo_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/resilient"
	"github.com/c360studio/semtrip/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*geo.Client, *resilient.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	calls := resilient.NewClient(resilient.WithRetryConfig(resilient.RetryConfig{
		MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 5 * time.Millisecond,
	}))
	cfg := geo.Config{
		BaseURL:     srv.URL,
		APIKey:      "secret",
		MinInterval: time.Millisecond,
		MaxInterval: 20 * time.Millisecond,
	}
	return geo.NewClient(calls, cfg, nil, nil), calls
}

func TestSearchPOI(t *testing.T) {
	var hits atomic.Int32
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/place/text", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "杭州景点", r.URL.Query().Get("keywords"))
		assert.Equal(t, "杭州", r.URL.Query().Get("city"))
		_, _ = w.Write([]byte(`{"status":"1","info":"OK","pois":[
			{"name":"西湖","address":"龙井路1号","location":"120.1485,30.2425","type":"风景名胜","biz_ext":{"rating":"4.9"}},
			{"name":"无坐标","address":[],"location":[]}
		]}`))
	})

	pois, err := client.SearchPOI(context.Background(), "杭州景点", "杭州", 5)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "西湖", pois[0].Name)
	assert.Equal(t, "龙井路1号", pois[0].Address)
	assert.InDelta(t, 30.2425, pois[0].Coordinate.Lat, 1e-9)
	assert.InDelta(t, 120.1485, pois[0].Coordinate.Lng, 1e-9)
	assert.Equal(t, "4.9", pois[0].Rating)

	// second identical search is served from cache
	_, err = client.SearchPOI(context.Background(), "杭州景点", "杭州", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSearchPOI_QuotaSlowsProvider(t *testing.T) {
	var hits atomic.Int32
	client, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"0","info":"CUQPS_HAS_EXCEEDED_THE_LIMIT","infocode":"10021"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"1","pois":[]}`))
	})

	pois, err := client.SearchPOI(context.Background(), "西湖", "杭州", 5)
	require.NoError(t, err)
	assert.Empty(t, pois)
	assert.Equal(t, 2*time.Millisecond, calls.Interval(geo.ProviderID))
}

func TestSearchPOI_InvalidKeyIsFatal(t *testing.T) {
	var hits atomic.Int32
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`))
	})

	_, err := client.SearchPOI(context.Background(), "西湖", "杭州", 5)
	require.Error(t, err)
	assert.True(t, resilient.IsFatal(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestSearchPOI_NotConfigured(t *testing.T) {
	calls := resilient.NewClient()
	client := geo.NewClient(calls, geo.Config{}, nil, nil)

	_, err := client.SearchPOI(context.Background(), "西湖", "杭州", 5)
	assert.True(t, errors.Is(err, geo.ErrNotConfigured))
	assert.False(t, client.Configured())
}

func TestGeocode(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/geo", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"1","geocodes":[{"formatted_address":"四川省成都市","location":"104.0668,30.5728"}]}`))
	})

	coord, addr, err := client.Geocode(context.Background(), "成都", "")
	require.NoError(t, err)
	assert.Equal(t, "四川省成都市", addr)
	assert.Equal(t, trip.Coordinate{Lat: 30.5728, Lng: 104.0668}, coord)
}

func TestCityCoordinate_CountryUsesSeedTable(t *testing.T) {
	var hits atomic.Int32
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"status":"1","geocodes":[]}`))
	})

	coord, err := client.CityCoordinate(context.Background(), "日本")
	require.NoError(t, err)
	assert.InDelta(t, 35.6895, coord.Lat, 1e-9)
	assert.Zero(t, hits.Load())

	// geocode miss falls back to the domestic city table
	coord, err = client.CityCoordinate(context.Background(), "南京")
	require.NoError(t, err)
	assert.InDelta(t, 32.0603, coord.Lat, 1e-9)
}

func TestNormalizeKeyword(t *testing.T) {
	assert.Equal(t, "杭州景点", geo.NormalizeKeyword("", "杭州"))
	assert.Equal(t, "杭州景点", geo.NormalizeKeyword("湖", "杭州"))
	assert.Equal(t, "西湖", geo.NormalizeKeyword(" 西湖 ", "杭州"))
}

func TestParseLocation(t *testing.T) {
	c, err := geo.ParseLocation("116.4074,39.9042")
	require.NoError(t, err)
	assert.Equal(t, 39.9042, c.Lat)

	_, err = geo.ParseLocation("116.4")
	assert.Error(t, err)
	_, err = geo.ParseLocation("x,y")
	assert.Error(t, err)
}

package resilient_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semtrip/resilient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"
)

func fastRetry() resilient.RetryConfig {
	return resilient.RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func countingTransport(calls *atomic.Int32, errs ...error) resilient.Transport {
	return resilient.TransportFunc(func(_ context.Context, _ string, _ map[string]any) ([]byte, error) {
		n := int(calls.Add(1))
		if n <= len(errs) && errs[n-1] != nil {
			return nil, errs[n-1]
		}
		return []byte(`{"ok":true}`), nil
	})
}

func TestClient_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&calls))

	params := map[string]any{"keywords": "西湖", "city": "杭州"}
	for i := 0; i < 5; i++ {
		resp, err := c.Call(context.Background(), "maps", "place/text", params, true)
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(resp.Payload))
		assert.Equal(t, i > 0, resp.Cached)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_UncacheableAlwaysCalls(t *testing.T) {
	var calls atomic.Int32
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("llm", countingTransport(&calls))

	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), "llm", "chat", map[string]any{"p": "x"}, false)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_CacheExpires(t *testing.T) {
	var calls atomic.Int32
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()), resilient.WithTTL(20*time.Millisecond))
	c.Register("maps", countingTransport(&calls))

	params := map[string]any{"q": "a"}
	_, err := c.Call(context.Background(), "maps", "geo", params, true)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = c.Call(context.Background(), "maps", "geo", params, true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SecretParamsExcludedFromKey(t *testing.T) {
	var calls atomic.Int32
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&calls), resilient.WithSecretParams("key"))

	_, err := c.Call(context.Background(), "maps", "geo", map[string]any{"q": "a", "key": "one"}, true)
	require.NoError(t, err)
	_, err = c.Call(context.Background(), "maps", "geo", map[string]any{"q": "a", "key": "two"}, true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t,
		resilient.CacheKey("maps", "geo", map[string]any{"q": "a", "key": "one"}, []string{"key"}),
		resilient.CacheKey("maps", "geo", map[string]any{"q": "a"}, nil))
}

func TestClient_RespectsMinInterval(t *testing.T) {
	var calls atomic.Int32
	interval := 20 * time.Millisecond
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&calls), resilient.WithMinInterval(interval))

	const n = 4
	start := time.Now()
	for i := 0; i < n; i++ {
		_, err := c.Call(context.Background(), "maps", "geo", map[string]any{"i": i}, false)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, time.Duration(n-1)*interval-time.Millisecond)
}

func TestClient_MinIntervalUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	interval := 20 * time.Millisecond
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&calls), resilient.WithMinInterval(interval))

	const n = 5
	var g errgroup.Group
	start := time.Now()
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := c.Call(context.Background(), "maps", "geo", map[string]any{"i": i}, false)
			return err
		})
	}
	require.NoError(t, g.Wait())
	elapsed := time.Since(start)

	assert.Equal(t, int32(n), calls.Load())
	assert.GreaterOrEqual(t, elapsed, time.Duration(n-1)*interval-time.Millisecond)
}

func TestClient_ProvidersGatedIndependently(t *testing.T) {
	var mapsCalls, weatherCalls atomic.Int32
	interval := 150 * time.Millisecond
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&mapsCalls), resilient.WithMinInterval(interval))
	c.Register("weather", countingTransport(&weatherCalls), resilient.WithMinInterval(interval))

	// each provider takes two calls, so one gate wait apiece
	var g errgroup.Group
	start := time.Now()
	for _, id := range []string{"maps", "weather"} {
		g.Go(func() error {
			for i := 0; i < 2; i++ {
				if _, err := c.Call(context.Background(), id, "q", map[string]any{"i": i}, false); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	elapsed := time.Since(start)

	assert.Equal(t, int32(2), mapsCalls.Load())
	assert.Equal(t, int32(2), weatherCalls.Load())
	assert.GreaterOrEqual(t, elapsed, interval-time.Millisecond)
	assert.Less(t, elapsed, 2*interval, "providers must not wait on each other")
}

func TestClient_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	transient := resilient.NewTransientError(errors.New("502"))
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("weather", countingTransport(&calls, transient, transient))

	resp, err := c.Call(context.Background(), "weather", "forecast", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExhaustedReturnsClientError(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("connection reset")
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("weather", countingTransport(&calls, boom, boom, boom, boom))

	_, err := c.Call(context.Background(), "weather", "forecast", nil, false)
	require.Error(t, err)

	var cerr *resilient.ClientError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 3, cerr.Attempts)
	assert.Equal(t, resilient.KindTransient, cerr.Kind)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FatalStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("llm", countingTransport(&calls, resilient.NewFatalError(errors.New("401"))))

	_, err := c.Call(context.Background(), "llm", "chat", nil, false)
	require.Error(t, err)

	var cerr *resilient.ClientError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, resilient.KindFatal, cerr.Kind)
	assert.Equal(t, 1, cerr.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_QuotaDoublesInterval(t *testing.T) {
	var calls atomic.Int32
	quota := resilient.NewQuotaError(errors.New("CUQPS_HAS_EXCEEDED_THE_LIMIT"))
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&calls, quota, quota),
		resilient.WithMinInterval(5*time.Millisecond),
		resilient.WithMaxInterval(15*time.Millisecond))

	resp, err := c.Call(context.Background(), "maps", "place/text", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Attempts)

	// 5ms -> 10ms -> capped at 15ms
	assert.Equal(t, 15*time.Millisecond, c.Interval("maps"))
}

func TestClient_UnknownProvider(t *testing.T) {
	c := resilient.NewClient()
	_, err := c.Call(context.Background(), "nope", "x", nil, false)

	var cerr *resilient.ClientError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, resilient.KindFatal, cerr.Kind)
}

func TestClient_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	c := resilient.NewClient(resilient.WithRetryConfig(fastRetry()))
	c.Register("maps", countingTransport(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "maps", "geo", nil, false)
	var cerr *resilient.ClientError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, resilient.KindCanceled, cerr.Kind)
}

func TestClient_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := resilient.NewMetrics(reg)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var calls atomic.Int32
	c := resilient.NewClient(
		resilient.WithRetryConfig(fastRetry()),
		resilient.WithMetrics(metrics),
		resilient.WithTracer(tp.Tracer("test")),
	)
	c.Register("maps", countingTransport(&calls))

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), "maps", "geo", map[string]any{"q": "x"}, true)
		require.NoError(t, err)
	}

	count, err := testutil.GatherAndCount(reg, "semtrip_provider_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "provider.call", spans[0].Name())
}

func TestClassifyStatus(t *testing.T) {
	assert.True(t, resilient.IsQuota(resilient.ClassifyStatus(429, nil)))
	assert.True(t, resilient.IsTransient(resilient.ClassifyStatus(503, nil)))
	assert.True(t, resilient.IsFatal(resilient.ClassifyStatus(401, nil)))
	assert.True(t, resilient.IsFatal(resilient.ClassifyStatus(400, nil)))
}

func TestRetryConfig_BackoffJitterBounds(t *testing.T) {
	cfg := resilient.RetryConfig{MaxAttempts: 3, BackoffBase: 100 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: time.Second}
	for i := 0; i < 20; i++ {
		d := cfg.Backoff(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
	capped := cfg.Backoff(10)
	assert.LessOrEqual(t, capped, 1250*time.Millisecond)
}

package guide_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semtrip/guide"
	"github.com/c360studio/semtrip/resilient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guideHTML = `<!DOCTYPE html>
<html>
<head><title>杭州三日游攻略</title><script>track()</script></head>
<body>
<nav class="navbar"><a href="/">首页</a><a href="/hotels">酒店</a></nav>
<div class="content">
<h1>杭州三日游</h1>
<p>第一天游览<strong>西湖</strong>，傍晚去河坊街。</p>
<ul><li>灵隐寺</li><li>龙井村</li></ul>
</div>
<div class="ads">下载APP领优惠</div>
<footer>版权所有</footer>
</body>
</html>`

func TestConverter_BodyWithoutChrome(t *testing.T) {
	page, err := guide.NewConverter().Convert([]byte(guideHTML))
	require.NoError(t, err)

	assert.Equal(t, "杭州三日游攻略", page.Title)
	assert.Contains(t, page.Markdown, "# 杭州三日游")
	assert.Contains(t, page.Markdown, "**西湖**")
	assert.Contains(t, page.Markdown, "灵隐寺")
	assert.NotContains(t, page.Markdown, "首页")
	assert.NotContains(t, page.Markdown, "下载APP")
	assert.NotContains(t, page.Markdown, "版权所有")
	assert.NotContains(t, page.Markdown, "track()")
}

func TestConverter_PrefersArticle(t *testing.T) {
	html := `<html><body>
<div class="sidebar">热门推荐</div>
<article><h2>美食</h2><p>知味观的小笼包值得一试。</p></article>
<p>页脚文字</p>
</body></html>`

	page, err := guide.NewConverter().Convert([]byte(html))
	require.NoError(t, err)

	assert.Contains(t, page.Markdown, "知味观")
	assert.NotContains(t, page.Markdown, "热门推荐")
	assert.NotContains(t, page.Markdown, "页脚文字")
}

func TestConverter_TitleFromHeading(t *testing.T) {
	page, err := guide.NewConverter().Convert([]byte(`<html><body><main><h1>成都美食地图</h1><p>火锅</p></main></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "成都美食地图", page.Title)
}

func TestExcerpt(t *testing.T) {
	short := "西湖很美"
	assert.Equal(t, short, guide.Excerpt(short, 100))
	assert.Equal(t, short, guide.Excerpt(short, 0))

	long := strings.Repeat("景", 40) + "\n\n" + strings.Repeat("点", 40)
	got := guide.Excerpt(long, 60)
	assert.Equal(t, strings.Repeat("景", 40)+"\n...", got)

	noBreak := strings.Repeat("湖", 50)
	assert.Equal(t, strings.Repeat("湖", 10)+"\n...", guide.Excerpt(noBreak, 10))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://www.example.com/hangzhou", true},
		{"https://93.184.216.34/guide", true},
		{"http://www.example.com/", false},
		{"ftp://example.com/", false},
		{"https://localhost/", false},
		{"https://api.localhost/", false},
		{"https://printer.local/", false},
		{"https://svc.internal/", false},
		{"https://127.0.0.1/", false},
		{"https://10.1.2.3/", false},
		{"https://192.168.0.10/", false},
		{"https://169.254.169.254/latest/meta-data", false},
		{"https://[::1]/", false},
		{"https:///nohost", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := guide.ValidateURL(tt.url)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, guide.ErrBlockedURL)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
		{"127.0.0.1", true},
		{"172.16.5.4", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:10.0.0.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, guide.IsPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}

type fakeFetcher struct {
	calls atomic.Int32
	body  []byte
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	return f.body, f.err
}

func newLoader(f guide.PageFetcher) *guide.Loader {
	calls := resilient.NewClient(resilient.WithRetryConfig(resilient.RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        2 * time.Millisecond,
	}))
	return guide.NewLoader(calls, f, guide.Config{ExcerptRunes: 200, MinInterval: time.Millisecond}, nil)
}

func TestLoader_LoadsAndCaches(t *testing.T) {
	f := &fakeFetcher{body: []byte(guideHTML)}
	loader := newLoader(f)

	g, err := loader.Load(context.Background(), "https://travel.example.com/hangzhou")
	require.NoError(t, err)
	assert.Equal(t, "杭州三日游攻略", g.Title)
	assert.Contains(t, g.Excerpt, "西湖")

	_, err = loader.Load(context.Background(), "https://travel.example.com/hangzhou")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoader_RejectsBlockedURL(t *testing.T) {
	f := &fakeFetcher{body: []byte(guideHTML)}
	_, err := newLoader(f).Load(context.Background(), "http://travel.example.com/")
	assert.ErrorIs(t, err, guide.ErrBlockedURL)
	assert.Zero(t, f.calls.Load())
}

func TestLoader_FatalFetchNotRetried(t *testing.T) {
	f := &fakeFetcher{err: resilient.NewFatalError(errors.New("unsupported content type"))}
	_, err := newLoader(f).Load(context.Background(), "https://travel.example.com/file.pdf")

	var cerr *resilient.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, resilient.KindFatal, cerr.Kind)
	assert.Equal(t, int32(1), f.calls.Load())
}

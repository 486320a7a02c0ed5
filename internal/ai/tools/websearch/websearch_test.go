package websearch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
)

type fakeProvider struct {
	calls   int32
	results []Result
	err     error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(_ context.Context, _ string, _ Options) ([]Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.results, f.err
}

func enabledConfig() Config {
	return Config{Enabled: true, RateLimitPerMinute: 60, Burst: 10, CacheTTL: time.Minute, MaxResults: 5}
}

func TestGoogleProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "b2b saas pricing", q.Get("q"))
		assert.Equal(t, "key-1", q.Get("key"))
		assert.Equal(t, "cx-1", q.Get("cx"))
		assert.Equal(t, "3", q.Get("num"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[
			{"link":"https://a.com/pricing","title":"A pricing","snippet":"from $49"},
			{"link":"https://b.com/report.pdf","title":"Report","snippet":"pdf","mime":"application/pdf"},
			{"link":"https://c.com","title":"C","snippet":"enterprise"}
		]}`)
	}))
	defer server.Close()

	p := NewGoogleProvider(server.URL, "key-1", "cx-1", time.Second)
	results, err := p.Search(context.Background(), "b2b saas pricing", Options{Limit: 3})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a.com/pricing", results[0].URL)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestTavilyProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tv-key", req.APIKey)
		assert.Equal(t, 4, req.MaxResults)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":[{"title":"T","url":"https://t.io","content":"snippet","score":0.8}]}`)
	}))
	defer server.Close()

	results, err := NewTavilyProvider(server.URL, "tv-key", time.Second).Search(context.Background(), "q", Options{Limit: 4})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "snippet", results[0].Snippet)
	assert.Equal(t, 0.8, results[0].Score)
}

func TestService_CachesByNormalisedQuery(t *testing.T) {
	p := &fakeProvider{results: []Result{{Title: "A", URL: "https://a.com"}}}
	s := NewService(p, nil, enabledConfig(), logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := s.Search(ctx, "t1", "B2B  SaaS pricing", 3)
	require.NoError(t, err)
	second, err := s.Search(ctx, "t1", "b2b saas PRICING", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestService_RateLimitsPerTenant(t *testing.T) {
	p := &fakeProvider{results: []Result{{URL: "https://a.com"}}}
	cfg := enabledConfig()
	cfg.RateLimitPerMinute = 1
	cfg.Burst = 1
	s := NewService(p, nil, cfg, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := s.Search(ctx, "t1", "q", 3)
	require.NoError(t, err)

	_, err = s.Search(ctx, "t1", "q", 3)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWebSearchRateLimited))

	_, err = s.Search(ctx, "t2", "q", 3)
	assert.NoError(t, err)
}

func TestService_LimiterIsSharedAcrossConcurrentFirstCalls(t *testing.T) {
	s := NewService(&fakeProvider{}, nil, enabledConfig(), logger.NewTestLogger(t))

	const callers = 16
	got := make([]interface{}, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = s.limiter("t1")
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, got[0], got[i])
	}
}

type ctxProvider struct{ fakeProvider }

func (p *ctxProvider) Search(ctx context.Context, q string, o Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fakeProvider.Search(ctx, q, o)
}

func TestService_CallerCancellationDoesNotFailSharedFetch(t *testing.T) {
	p := &ctxProvider{fakeProvider{results: []Result{{Title: "A", URL: "https://a.com"}}}}
	s := NewService(p, nil, enabledConfig(), logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.Search(ctx, "t1", "q", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestService_CacheHitReturnsCopy(t *testing.T) {
	p := &fakeProvider{results: []Result{{Title: "A", URL: "https://a.com"}}}
	s := NewService(p, nil, enabledConfig(), logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := s.Search(ctx, "t1", "q", 3)
	require.NoError(t, err)

	hit, err := s.Search(ctx, "t1", "q", 3)
	require.NoError(t, err)
	hit[0].Title = "changed"

	again, err := s.Search(ctx, "t1", "q", 3)
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestService_Disabled(t *testing.T) {
	p := &fakeProvider{}
	s := NewService(p, nil, Config{}, logger.NewTestLogger(t))

	_, err := s.Search(context.Background(), "t1", "q", 3)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWebSearchFailed))
	assert.True(t, stderrors.Is(err, ErrDisabled))
	assert.Zero(t, p.calls)
}

func TestService_ProviderFailure(t *testing.T) {
	p := &fakeProvider{err: stderrors.New("quota exhausted")}
	s := NewService(p, nil, enabledConfig(), logger.NewTestLogger(t))

	_, err := s.Search(context.Background(), "t1", "q", 3)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWebSearchFailed))
}

func TestService_FiltersDomainsAndDedupes(t *testing.T) {
	p := &fakeProvider{results: []Result{
		{URL: "https://www.g2.com/pricing"},
		{URL: "https://g2.com/pricing/"},
		{URL: "https://spam.example.net/x"},
		{URL: "https://blog.capterra.com/a"},
		{URL: "https://other.org"},
		{URL: "not a url"},
	}}
	cfg := enabledConfig()
	cfg.AllowDomains = []string{"g2.com", "capterra.com", "example.net"}
	cfg.DenyDomains = []string{"spam.example.net"}
	s := NewService(p, nil, cfg, logger.NewTestLogger(t))

	results, err := s.Search(context.Background(), "t1", "q", 5)

	require.NoError(t, err)
	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	assert.Equal(t, []string{"https://www.g2.com/pricing", "https://blog.capterra.com/a"}, urls)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	key := CacheKey("q", 3)

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, key, []Result{{Title: "A", URL: "https://a.com"}}, time.Minute))
	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A", got[0].Title)

	mr.FastForward(2 * time.Minute)
	_, ok, _ = cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("SaaS  pricing ", 3), CacheKey("saas pricing", 3))
	assert.NotEqual(t, CacheKey("saas pricing", 3), CacheKey("saas pricing", 5))
	assert.Contains(t, CacheKey("x", 1), "ai:websearch:")
}

func TestTool_HandlerReturnsRefs(t *testing.T) {
	p := &fakeProvider{results: []Result{{Title: "A", URL: "https://a.com"}, {Title: "B", URL: "https://b.com"}}}
	s := NewService(p, nil, enabledConfig(), logger.NewTestLogger(t))

	spec, handler := s.Tool("t1", func(rs []Result) []string {
		return []string{"W3", "W4"}[:len(rs)]
	})
	assert.Equal(t, "web_search", spec.Name)

	out, err := handler(context.Background(), json.RawMessage(`{"query":"pricing"}`))
	require.NoError(t, err)

	var decoded []ToolResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "W3", decoded[0].Ref)
	assert.Equal(t, "https://b.com", decoded[1].URL)

	_, err = handler(context.Background(), json.RawMessage(`{"q":"pricing"}`))
	assert.Error(t, err)
}

package websearch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/errors"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
)

var ErrDisabled = fmt.Errorf("web search is disabled")

type Config struct {
	Enabled            bool
	RateLimitPerMinute int
	Burst              int
	CacheTTL           time.Duration
	Timeout            time.Duration
	MaxResults         int
	AllowDomains       []string
	DenyDomains        []string
}

func ConfigFromSettings(c config.WebSearchConfig) Config {
	return Config{
		Enabled:            c.Enabled,
		RateLimitPerMinute: c.RateLimitPerMinute,
		Burst:              c.Burst,
		CacheTTL:           config.GetDuration(c.CacheTTLMs),
		Timeout:            config.GetDuration(c.TimeoutMs),
		MaxResults:         c.MaxResults,
		AllowDomains:       c.AllowDomains,
		DenyDomains:        c.DenyDomains,
	}
}

// Service wraps a Provider with tenant rate limits and caching.
type Service struct {
	provider  Provider
	cache     Cache
	cfg       Config
	limiterMu sync.Mutex
	limiters  *expirable.LRU[string, *rate.Limiter]
	group     singleflight.Group
	logger    logger.Logger
}

func NewService(provider Provider, cache Cache, cfg Config, log logger.Logger) *Service {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cache == nil {
		cache = NewMemoryCache(1000, cfg.CacheTTL)
	}
	return &Service{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		// every access refreshes the entry, so only tenants idle for an hour
		// drop out and start again with a full bucket
		limiters: expirable.NewLRU[string, *rate.Limiter](10000, nil, time.Hour),
		logger: log.WithFields(map[string]interface{}{
			"component": "websearch",
			"provider":  provider.Name(),
		}),
	}
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Search returns at most limit filtered, URL-deduplicated results for query.
func (s *Service) Search(ctx context.Context, tenantID, query string, limit int) ([]Result, error) {
	if !s.cfg.Enabled {
		return nil, errors.NewWebSearchFailedError(s.provider.Name(), ErrDisabled)
	}
	if limit <= 0 || limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	if !s.limiter(tenantID).Allow() {
		s.logger.Warn("Web search rate limited", map[string]interface{}{"tenantId": tenantID})
		return nil, errors.NewWebSearchRateLimitedError(tenantID)
	}

	key := CacheKey(query, limit)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Web search cache read failed", map[string]interface{}{"error": err.Error()})
	} else if ok {
		metrics.WebSearchCache.WithLabelValues("hit").Inc()
		return cloneResults(cached), nil
	}
	metrics.WebSearchCache.WithLabelValues("miss").Inc()

	// the flight outlives any single caller; fetch still applies the timeout
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.fetch(flightCtx, key, query, limit)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Web search coalesced", map[string]interface{}{"query": query})
	}

	return cloneResults(v.([]Result)), nil
}

func cloneResults(results []Result) []Result {
	out := make([]Result, len(results))
	copy(out, results)
	return out
}

func (s *Service) fetch(ctx context.Context, key, query string, limit int) ([]Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Search(callCtx, query, Options{Limit: limit})
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("web_search_provider", "error").Inc()
		return nil, errors.NewWebSearchFailedError(s.provider.Name(), err)
	}

	results := s.filter(raw, limit)
	s.logger.Info("Web search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(results),
		"dropped":     len(raw) - len(results),
		"latencyMs":   time.Since(start).Milliseconds(),
	})

	if err := s.cache.Set(ctx, key, results, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Web search cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return results, nil
}

func (s *Service) limiter(tenantID string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	l, ok := s.limiters.Get(tenantID)
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(s.cfg.RateLimitPerMinute)/60), s.cfg.Burst)
	}
	// Add resets the expiry
	s.limiters.Add(tenantID, l)
	return l
}

// filter applies the deny and allow lists, drops repeated URLs and cuts to limit.
func (s *Service) filter(raw []Result, limit int) []Result {
	seen := make(map[string]bool, len(raw))
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		host := hostOf(r.URL)
		if host == "" {
			continue
		}
		if matchesAny(host, s.cfg.DenyDomains) {
			continue
		}
		if len(s.cfg.AllowDomains) > 0 && !matchesAny(host, s.cfg.AllowDomains) {
			continue
		}
		norm := normalizeURL(r.URL)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// CacheKey hashes the normalised query and result count.
func CacheKey(query string, limit int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d", NormalizeQuery(query), limit)))
	return "ai:websearch:" + hex.EncodeToString(sum[:])
}

// NormalizeQuery lower-cases and collapses whitespace.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// matchesAny reports whether host is one of domains or a subdomain of one.
func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Scheme = strings.ToLower(u.Scheme)
	return strings.TrimSuffix(u.String(), "/")
}

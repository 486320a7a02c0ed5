package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: orchestrator
    user: app
  elasticsearch:
    addresses: ["http://localhost:9200"]
workers:
  assistant-plan:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.MiniModel)
	assert.Equal(t, "memory", cfg.LLM.IdempotencyBackend)
	assert.Equal(t, "none", cfg.LLM.CitationFallback)
	assert.Equal(t, "rrf", cfg.Retrieval.Fusion)
	assert.Equal(t, 60, cfg.Retrieval.RRFK)
	assert.Equal(t, 0.5, cfg.Retrieval.BM25Weight)
	assert.Equal(t, int64(100000), cfg.Quota.DailyTokensPerUser)
	assert.Equal(t, 1.0, cfg.Usage.SampleRate)
	assert.Equal(t, "http://localhost:9200", cfg.Database.Elasticsearch.GetURL())

	w := cfg.Workers["assistant-plan"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"unknown fusion", "retrieval:\n  fusion: max\n", "retrieval.fusion"},
		{"unknown citation fallback", "llm:\n  citation_fallback: inline\n", "llm.citation_fallback"},
		{"redis idempotency without redis", "llm:\n  idempotency_backend: redis\n", "database.redis.address"},
		{"sample rate out of range", "usage:\n  sample_rate: 1.5\n", "usage.sample_rate"},
		{"web search without base url", "web_search:\n  enabled: true\n", "web_search.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, minimalYAML+tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetWorkerConfig_DefaultsForUnknownWorker(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"assistant-plan": {Enabled: false}}}

	assert.False(t, IsWorkerEnabled(cfg, "assistant-plan"))
	assert.True(t, IsWorkerEnabled(cfg, "assistant-execute"))
	assert.Equal(t, 30000, GetWorkerConfig(cfg, "assistant-execute").Timeout)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// applies environment overrides and defaults, then validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// llm.api_key can be overridden with LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment file is optional

	return finish(v)
}

// LoadFromFile reads a single YAML file, used by tools and tests.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.WebSearch.APIKey == "" {
		if val := os.Getenv("WEB_SEARCH_API_KEY"); val != "" {
			cfg.WebSearch.APIKey = val
		}
	}
	if cfg.WebSearch.EngineID == "" {
		if val := os.Getenv("WEB_SEARCH_ENGINE_ID"); val != "" {
			cfg.WebSearch.EngineID = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Integrations.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Integrations.AWS.Region = val
		}
	}

	// Soft-fail switches keep their historical env names.
	if val := os.Getenv("USAGE_SOFT_FAIL"); val == "true" || val == "1" {
		cfg.SoftFail.UsageRecording = true
	}
	if val := os.Getenv("QUOTA_SOFT_FAIL"); val == "true" || val == "1" {
		cfg.SoftFail.QuotaCheck = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ai-orchestrator"
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// LLM defaults
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.MiniModel == "" {
		cfg.LLM.MiniModel = "gpt-4o-mini"
	}
	if cfg.LLM.EscalationModel == "" {
		cfg.LLM.EscalationModel = "gpt-4o"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.PlannerMaxTokens == 0 {
		cfg.LLM.PlannerMaxTokens = 800
	}
	if cfg.LLM.ExecutorMaxTokens == 0 {
		cfg.LLM.ExecutorMaxTokens = 2500
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RetryBaseMs == 0 {
		cfg.LLM.RetryBaseMs = 500
	}
	if cfg.LLM.RetryMaxMs == 0 {
		cfg.LLM.RetryMaxMs = 8000
	}
	if cfg.LLM.TimeoutMs == 0 {
		cfg.LLM.TimeoutMs = 60000
	}
	if cfg.LLM.CircuitBreakerThreshold == 0 {
		cfg.LLM.CircuitBreakerThreshold = 5
	}
	if cfg.LLM.CircuitBreakerResetMs == 0 {
		cfg.LLM.CircuitBreakerResetMs = 30000
	}
	if cfg.LLM.IdempotencyTTLMs == 0 {
		cfg.LLM.IdempotencyTTLMs = 5 * 60 * 1000
	}
	if cfg.LLM.IdempotencyBackend == "" {
		cfg.LLM.IdempotencyBackend = "memory"
	}
	if cfg.LLM.MaxToolCalls == 0 {
		cfg.LLM.MaxToolCalls = 4
	}
	if cfg.LLM.CitationFallback == "" {
		cfg.LLM.CitationFallback = "none"
	}

	// Retrieval defaults
	if cfg.Retrieval.Index == "" {
		cfg.Retrieval.Index = "knowledge_chunks"
	}
	if cfg.Retrieval.VectorTable == "" {
		cfg.Retrieval.VectorTable = "knowledge_chunks"
	}
	if cfg.Retrieval.BM25Limit == 0 {
		cfg.Retrieval.BM25Limit = 50
	}
	if cfg.Retrieval.VectorLimit == 0 {
		cfg.Retrieval.VectorLimit = 50
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 8
	}
	if cfg.Retrieval.ContextMaxTokens == 0 {
		cfg.Retrieval.ContextMaxTokens = 3000
	}
	if cfg.Retrieval.Fusion == "" {
		cfg.Retrieval.Fusion = "rrf"
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.BM25Weight == 0 && cfg.Retrieval.VectorWeight == 0 {
		if cfg.Retrieval.Fusion == "weighted" {
			cfg.Retrieval.BM25Weight, cfg.Retrieval.VectorWeight = 0.3, 0.7
		} else {
			cfg.Retrieval.BM25Weight, cfg.Retrieval.VectorWeight = 0.5, 0.5
		}
	}

	// Web search defaults
	if cfg.WebSearch.Provider == "" {
		cfg.WebSearch.Provider = "google"
	}
	if cfg.WebSearch.TimeoutMs == 0 {
		cfg.WebSearch.TimeoutMs = 10000
	}
	if cfg.WebSearch.RateLimitPerMinute == 0 {
		cfg.WebSearch.RateLimitPerMinute = 30
	}
	if cfg.WebSearch.Burst == 0 {
		cfg.WebSearch.Burst = 5
	}
	if cfg.WebSearch.CacheTTLMs == 0 {
		cfg.WebSearch.CacheTTLMs = 15 * 60 * 1000
	}
	if cfg.WebSearch.MaxResults == 0 {
		cfg.WebSearch.MaxResults = 5
	}

	// Quota defaults
	if cfg.Quota.DailyTokensPerUser == 0 {
		cfg.Quota.DailyTokensPerUser = 100000
	}
	if cfg.Quota.DailyTokensPerTenant == 0 {
		cfg.Quota.DailyTokensPerTenant = 1000000
	}
	if cfg.Quota.MaxTokensPerRequest == 0 {
		cfg.Quota.MaxTokensPerRequest = 20000
	}
	if cfg.Quota.MaxCostCentsPerRequest == 0 {
		cfg.Quota.MaxCostCentsPerRequest = 50
	}

	if cfg.Usage.SampleRate == 0 {
		cfg.Usage.SampleRate = 1.0
	}
	if cfg.Usage.AlertThresholdPct == 0 {
		cfg.Usage.AlertThresholdPct = 80
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.MetricsAddress == "" {
		cfg.Observability.MetricsAddress = ":8080"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.LLM.IdempotencyBackend != "memory" && cfg.LLM.IdempotencyBackend != "redis" {
		return fmt.Errorf("llm.idempotency_backend must be memory or redis, got %q", cfg.LLM.IdempotencyBackend)
	}
	if cfg.LLM.IdempotencyBackend == "redis" && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required for the redis idempotency backend")
	}

	if cfg.LLM.CitationFallback != "none" && cfg.LLM.CitationFallback != "append_all" {
		return fmt.Errorf("llm.citation_fallback must be none or append_all, got %q", cfg.LLM.CitationFallback)
	}

	if cfg.Retrieval.Fusion != "rrf" && cfg.Retrieval.Fusion != "weighted" {
		return fmt.Errorf("retrieval.fusion must be rrf or weighted, got %q", cfg.Retrieval.Fusion)
	}

	if cfg.Usage.SampleRate < 0 || cfg.Usage.SampleRate > 1 {
		return fmt.Errorf("usage.sample_rate must be within [0,1]")
	}

	if cfg.WebSearch.Enabled && cfg.WebSearch.BaseURL == "" {
		return fmt.Errorf("web_search.base_url is required when web search is enabled")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

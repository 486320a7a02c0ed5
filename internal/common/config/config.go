package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	LLM           LLMConfig               `mapstructure:"llm"`
	Retrieval     RetrievalConfig         `mapstructure:"retrieval"`
	WebSearch     WebSearchConfig         `mapstructure:"web_search"`
	Quota         QuotaConfig             `mapstructure:"quota"`
	Usage         UsageConfig             `mapstructure:"usage"`
	SoftFail      SoftFailConfig          `mapstructure:"soft_fail"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Orchestration core ---

// LLMConfig configures the upstream chat/embedding provider and the
// resilience wrapper around it.
type LLMConfig struct {
	BaseURL                 string `mapstructure:"base_url"`
	APIKey                  string `mapstructure:"api_key"`
	MiniModel               string `mapstructure:"mini_model"`
	EscalationModel         string `mapstructure:"escalation_model"`
	EmbeddingModel          string `mapstructure:"embedding_model"`
	PlannerMaxTokens        int    `mapstructure:"planner_max_tokens"`
	ExecutorMaxTokens       int    `mapstructure:"executor_max_tokens"`
	PromptCaching           bool   `mapstructure:"prompt_caching"`
	MaxRetries              int    `mapstructure:"max_retries"`
	RetryBaseMs             int    `mapstructure:"retry_base_ms"`
	RetryMaxMs              int    `mapstructure:"retry_max_ms"`
	TimeoutMs               int    `mapstructure:"timeout_ms"`
	CircuitBreakerThreshold int    `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerResetMs   int    `mapstructure:"circuit_breaker_reset_ms"`
	IdempotencyTTLMs        int    `mapstructure:"idempotency_ttl_ms"`
	IdempotencyBackend      string `mapstructure:"idempotency_backend"` // memory | redis
	MaxToolCalls            int    `mapstructure:"max_tool_calls"`
	CitationFallback        string `mapstructure:"citation_fallback"` // none | append_all
	RegistryPath            string `mapstructure:"registry_path"`
}

type RetrievalConfig struct {
	Index            string  `mapstructure:"index"`
	VectorTable      string  `mapstructure:"vector_table"`
	BM25Limit        int     `mapstructure:"bm25_limit"`
	VectorLimit      int     `mapstructure:"vector_limit"`
	TopK             int     `mapstructure:"top_k"`
	MinScore         float64 `mapstructure:"min_score"`
	ContextMaxTokens int     `mapstructure:"context_max_tokens"`
	Fusion           string  `mapstructure:"fusion"` // rrf | weighted
	RRFK             int     `mapstructure:"rrf_k"`
	BM25Weight       float64 `mapstructure:"bm25_weight"`
	VectorWeight     float64 `mapstructure:"vector_weight"`
}

type WebSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Provider           string   `mapstructure:"provider"` // google | tavily
	BaseURL            string   `mapstructure:"base_url"`
	APIKey             string   `mapstructure:"api_key"`
	EngineID           string   `mapstructure:"engine_id"`
	TimeoutMs          int      `mapstructure:"timeout_ms"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	Burst              int      `mapstructure:"burst"`
	CacheTTLMs         int      `mapstructure:"cache_ttl_ms"`
	MaxResults         int      `mapstructure:"max_results"`
	AllowDomains       []string `mapstructure:"allow_domains"`
	DenyDomains        []string `mapstructure:"deny_domains"`
}

type QuotaConfig struct {
	DailyTokensPerUser     int64   `mapstructure:"daily_tokens_per_user"`
	DailyTokensPerTenant   int64   `mapstructure:"daily_tokens_per_tenant"`
	MaxTokensPerRequest    int64   `mapstructure:"max_tokens_per_request"`
	MaxCostCentsPerRequest float64 `mapstructure:"max_cost_cents_per_request"`
}

type UsageConfig struct {
	SampleRate        float64 `mapstructure:"sample_rate"`
	AlertThresholdPct float64 `mapstructure:"alert_threshold_pct"`
	AlertTopicARN     string  `mapstructure:"alert_topic_arn"`
	AlertEmailFrom    string  `mapstructure:"alert_email_from"`
	AlertEmailTo      string  `mapstructure:"alert_email_to"`
}

// SoftFailConfig gathers every "degrade instead of fail" switch in one place.
type SoftFailConfig struct {
	UsageRecording bool `mapstructure:"usage_recording"`
	QuotaCheck     bool `mapstructure:"quota_check"`
}

// IntegrationConfig holds settings for external cloud services.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled bool `mapstructure:"enabled"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled bool `mapstructure:"enabled"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ai-orchestrator/internal/ai/executor"
	"ai-orchestrator/internal/ai/llm"
	"ai-orchestrator/internal/ai/planner"
	"ai-orchestrator/internal/ai/retrieval"
	"ai-orchestrator/internal/ai/tools/websearch"
	"ai-orchestrator/internal/ai/usage"
	"ai-orchestrator/internal/common/aws"
	"ai-orchestrator/internal/common/camunda"
	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/database"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/observability"
	"ai-orchestrator/pkg/registry"

	ep "ai-orchestrator/internal/workers/assistant/execute-plan"
	pr "ai-orchestrator/internal/workers/assistant/plan-request"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewFromConfig(cfg.Logging)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	zeebe, err := camunda.NewClient(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, zapLog)
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL: usage ledger and vector store ---
	pg, err := database.NewPostgres(ctx, cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres failed", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Elasticsearch: BM25 ---
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("elasticsearch client failed", zap.Error(err))
	}
	if err := database.PingElasticsearch(ctx, es); err != nil {
		// BM25 is optional at request time; vector-only retrieval still works.
		zapLog.Warn("elasticsearch unreachable, continuing", zap.Error(err))
	} else {
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Redis: optional shared caches ---
	rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis failed", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- LLM client ---
	reg, err := registry.LoadOrDefault(cfg.LLM.RegistryPath)
	if err != nil {
		zapLog.Fatal("model registry load failed", zap.Error(err), zap.String("path", cfg.LLM.RegistryPath))
	}

	llmCfg := llm.ConfigFromSettings(cfg.LLM)
	llmClient := llm.NewClient(
		llm.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, llmCfg.Timeout),
		reg,
		llm.NewBreaker(cfg.LLM.CircuitBreakerThreshold, config.GetDuration(cfg.LLM.CircuitBreakerResetMs)),
		idempotencyStore(cfg, rdb, llmCfg.IdempotencyTTL),
		llmCfg,
		obs,
		log,
	)

	// --- Retrieval backends ---
	vectorStore, err := retrieval.NewPgVectorStore(pg.DB, cfg.Retrieval.VectorTable)
	if err != nil {
		zapLog.Fatal("vector store config invalid", zap.Error(err))
	}
	bm25 := retrieval.NewElasticsearchBM25(es, cfg.Retrieval.Index)
	embedder := retrieval.NewEmbedder(llmClient)

	// --- Web search ---
	var search websearch.SearchFunc
	if cfg.WebSearch.Enabled {
		provider, err := websearch.NewProvider(cfg.WebSearch)
		if err != nil {
			zapLog.Fatal("web search provider invalid", zap.Error(err))
		}
		wsCfg := websearch.ConfigFromSettings(cfg.WebSearch)
		var cache websearch.Cache
		if rdb != nil {
			cache = websearch.NewRedisCache(rdb)
		}
		search = websearch.NewService(provider, cache, wsCfg, log).Search
		zapLog.Info("web search enabled", zap.String("provider", provider.Name()))
	}

	// --- Usage, quota and alerts ---
	store := usage.NewUsageStore(pg.DB)
	alerts := alertNotifier(ctx, cfg, rdb, log, zapLog)
	quota := usage.NewQuotaChecker(store, usage.LimitsFromConfig(cfg.Quota), cfg.SoftFail, alerts, log)
	recorder := usage.NewRecorder(store, cfg.Usage.SampleRate, cfg.SoftFail, log)

	// --- Orchestration ---
	plan := planner.NewPlanner(llmClient, quota, nil, planner.Config{
		MaxOutputTokens: cfg.LLM.PlannerMaxTokens,
	}, obs, log)

	exec := executor.NewExecutor(llmClient, quota, recorder, search, retrieval.OptionsFromConfig(cfg.Retrieval), executor.Config{
		MaxOutputTokens:  cfg.LLM.ExecutorMaxTokens,
		TopK:             cfg.Retrieval.TopK,
		WebResults:       cfg.WebSearch.MaxResults,
		CitationFallback: cfg.LLM.CitationFallback,
	}, obs, log)

	// --- Workers ---
	var workers []*camunda.Worker

	if config.IsWorkerEnabled(cfg, pr.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, pr.TaskType)
		handler := pr.NewHandler(
			&pr.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			plan,
			&planRequestLoggerAdapter{log},
		)
		workers = append(workers, camunda.NewWorker(zeebe.Zeebe(), pr.TaskType, wcfg, handler.Handle, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ep.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ep.TaskType)
		handler := ep.NewHandler(
			&ep.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			exec,
			ep.Retrieval{
				BM25:   bm25.Search,
				Vector: vectorStore.Search,
				Embed:  embedder.EmbedQuery,
			},
			&executePlanLoggerAdapter{log},
		)
		workers = append(workers, camunda.NewWorker(zeebe.Zeebe(), ep.TaskType, wcfg, handler.Handle, zapLog))
	}

	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	// --- Health and metrics ---
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			breaker := llmClient.BreakerState()
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":          "healthy",
				"llmBreakerOpen":  breaker.IsOpen,
				"llmFailureCount": breaker.FailureCount,
				"time":            time.Now().Format(time.RFC3339),
			})
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			status := http.StatusOK
			state := "ready"
			if err := pg.Ping(r.Context()); err != nil {
				status, state = http.StatusServiceUnavailable, "postgres unavailable"
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{
				"status": state,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		mux.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Observability.MetricsAddress))
		if err := http.ListenAndServe(cfg.Observability.MetricsAddress, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range workers {
		w.Stop()
	}

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func idempotencyStore(cfg *config.Config, rdb *redis.Client, ttl time.Duration) llm.IdempotencyStore {
	if cfg.LLM.IdempotencyBackend == "redis" && rdb != nil {
		return llm.NewRedisIdempotencyStore(rdb)
	}
	return llm.NewMemoryIdempotencyStore(ttl, 0)
}

// alertNotifier returns nil unless a channel is enabled and Redis is
// available for once-per-day deduplication.
func alertNotifier(ctx context.Context, cfg *config.Config, rdb *redis.Client, log logger.Logger, zapLog *zap.Logger) *usage.AlertNotifier {
	if rdb == nil {
		return nil
	}

	var publisher usage.Publisher
	if cfg.Integrations.AWS.SNS.Enabled && cfg.Usage.AlertTopicARN != "" {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Warn("sns client unavailable, quota alerts will not publish", zap.Error(err))
		} else {
			publisher = sns
		}
	}

	var mailer usage.Mailer
	if cfg.Integrations.AWS.SES.Enabled && cfg.Usage.AlertEmailTo != "" {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Warn("ses client unavailable, quota alerts will not email", zap.Error(err))
		} else {
			mailer = ses
		}
	}

	return usage.NewAlertNotifier(usage.AlertConfig{
		ThresholdPct: cfg.Usage.AlertThresholdPct,
		TopicARN:     cfg.Usage.AlertTopicARN,
		EmailFrom:    cfg.Usage.AlertEmailFrom,
		EmailTo:      cfg.Usage.AlertEmailTo,
	}, publisher, mailer, llm.NewRedisIdempotencyStore(rdb), log)
}

// Logger adapters for workers that have their own Logger interfaces
type planRequestLoggerAdapter struct {
	logger.Logger
}

func (a *planRequestLoggerAdapter) With(fields map[string]interface{}) pr.Logger {
	return &planRequestLoggerAdapter{a.Logger.With(fields)}
}

type executePlanLoggerAdapter struct {
	logger.Logger
}

func (a *executePlanLoggerAdapter) With(fields map[string]interface{}) ep.Logger {
	return &executePlanLoggerAdapter{a.Logger.With(fields)}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/config"
	dbRedis "github.com/kailas-cloud/triage/internal/db/redis"
	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/retry"
	logpkg "github.com/kailas-cloud/triage/internal/logger"
	"github.com/kailas-cloud/triage/internal/metrics"
	"github.com/kailas-cloud/triage/internal/repository/embcache"
	"github.com/kailas-cloud/triage/internal/repository/kbsource"
	anthropicLLM "github.com/kailas-cloud/triage/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/triage/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/triage/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/triage/internal/usecase/embedding"
	"github.com/kailas-cloud/triage/internal/usecase/extract"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	"github.com/kailas-cloud/triage/internal/usecase/kbmatch"
	"github.com/kailas-cloud/triage/internal/usecase/suggest"
	"github.com/kailas-cloud/triage/internal/usecase/triage"
)

const rateLimitPruneInterval = time.Minute

// Set via -ldflags "-X main.buildVersion=... -X main.buildCommit=...".
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg := config.MustLoad(env)

	logger, logCloser, err := logpkg.New(logpkg.Options{
		Env:   env,
		Level: cfg.Logging.Level,
		File: logpkg.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		},
	})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logCloser.Close() }()
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting triage API server",
		zap.String("version", buildVersion),
		zap.String("commit", buildCommit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("llm_enabled", cfg.LLM.Enabled()),
		zap.Bool("embeddings_enabled", cfg.Embedding.APIKey != ""),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterTriageMetrics()
	metrics.RegisterHTTPMetrics()

	catalog, err := kbsource.Load(cfg.KB.Path)
	if err != nil {
		logger.Fatal("Failed to load knowledge base", zap.String("path", cfg.KB.Path), zap.Error(err))
	}
	logger.Info("Knowledge base loaded", zap.String("path", cfg.KB.Path), zap.Int("entries", catalog.Len()))

	// Embedding cache persistence
	ctx := context.Background()
	var (
		vectorStore kbmatch.VectorStore
		redisStore  *dbRedis.Store
		cachePinger healthuc.CachePinger
	)
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		redisStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer redisStore.Close()

		if err := redisStore.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))

		vectorStore = embcache.NewRedisStore(redisStore, cfg.Cache.KeyPrefix, logger)
		cachePinger = redisStore
	default:
		fileStore := embcache.NewFileStore(cfg.Cache.Path)
		logger.Info("Using file embedding cache", zap.String("path", fileStore.Path()))
		vectorStore = fileStore
	}

	// Embedder chain. No API key = keyword-only matcher.
	var embedder domain.Embedder
	var embeddingChecker healthuc.EmbeddingChecker
	if cfg.Embedding.APIKey != "" {
		instrumented := buildEmbedder(cfg.Embedding, redisStore, cfg.Cache, logger)
		embedder = instrumented
		embeddingChecker = instrumented
		logger.Info("Embedder created", zap.String("model", cfg.Embedding.Model))
	} else {
		logger.Warn("No embedding API key configured, KB matching uses keyword scoring")
	}

	cache := kbmatch.NewCache(
		vectorStore, time.Duration(cfg.Cache.PacingMs)*time.Millisecond,
		metrics.KBVectorLookupsTotal, logger,
	)
	matcher := kbmatch.New(catalog, cache, embedder, logger)

	// Collaborators
	extractor := extract.New(
		buildCompleter(cfg.LLM, cfg.LLM.Extractor, "extractor", logger),
		retryPolicy(cfg.LLM.Extractor.Retry),
		time.Duration(cfg.LLM.Extractor.TimeoutSec)*time.Second,
		metrics.FallbacksTotal, logger,
	)
	suggester := suggest.New(
		buildCompleter(cfg.LLM, cfg.LLM.Suggester, "suggester", logger),
		retryPolicy(cfg.LLM.Suggester.Retry),
		time.Duration(cfg.LLM.Suggester.TimeoutSec)*time.Second,
		metrics.FallbacksTotal, logger,
	)

	triageSvc := triage.New(extractor, matcher, suggester, *cfg.Triage.MatchThreshold, cfg.KB.TopK, triage.Metrics{
		Decisions: metrics.DecisionsTotal,
		BestScore: metrics.BestMatchScore,
	})

	// Health service
	llmProvider := ""
	if cfg.LLM.Enabled() {
		llmProvider = cfg.LLM.Provider
	}
	healthSvc := healthuc.New(cachePinger, embeddingChecker, healthuc.Options{
		LLMProvider: llmProvider,
		KBEntries:   catalog.Len(),
	})

	// Create chi server
	server := chiTransport.NewServer(triageSvc, healthSvc, logger)

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	var limiter *chiTransport.RateLimiter
	if !cfg.RateLimit.Disabled {
		limiter = chiTransport.NewRateLimiter(
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.TrustForwarded,
		).WithRejectedCounter(metrics.RateLimitedTotal)
		go limiter.Run(limiterCtx, rateLimitPruneInterval)
	}

	r := chi.NewRouter()
	r.Use(chiTransport.Recoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(logpkg.Middleware(logger))
	r.Use(limiter.Middleware())
	r.Use(metrics.Middleware())
	server.Routes(r, cfg.HTTP.StaticDir)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// instrumentedEmbedder is the outer embedder: Embed plus HealthCheck.
type instrumentedEmbedder interface {
	domain.Embedder
	domain.HealthChecker
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached (redis only) -> Instrumented -> Instruction
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	store *dbRedis.Store,
	cacheCfg config.CacheConfig,
	logger *zap.Logger,
) instrumentedEmbedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	// Description vectors are cached only where a shared store exists.
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, embcache.Options{
			Prefix:      cacheCfg.KeyPrefix,
			Model:       embCfg.Model,
			TTL:         time.Duration(cacheCfg.DescriptionTTLHours) * time.Hour,
			CallTimeout: time.Duration(embCfg.TimeoutSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (timeout + logs)
	instrumented := embeddinguc.NewInstrumentedEmbedder(
		embedder, "openai", embCfg.Model, time.Duration(embCfg.TimeoutSec)*time.Second, logger,
	)

	// Instruction prefix is outermost so cache keys include it
	if embCfg.Instruction != "" {
		return domain.NewInstructionEmbedder(instrumented, embCfg.Instruction)
	}

	return instrumented
}

// buildCompleter returns the configured language model, or nil when no API key is set.
func buildCompleter(
	llmCfg config.LLMConfig,
	collab config.CollaboratorConfig,
	name string,
	logger *zap.Logger,
) domain.Completer {
	if !llmCfg.Enabled() {
		return nil
	}
	model := collab.Model
	if model == "" {
		model = llmCfg.Model
	}

	switch llmCfg.Provider {
	case config.ProviderAnthropic:
		return anthropicLLM.New(&anthropicLLM.Config{
			APIKey:       llmCfg.APIKey,
			BaseURL:      llmCfg.BaseURL,
			Model:        model,
			Collaborator: name,
			Logger:       logger,
		})
	default:
		return openaiTransport.NewChat(&openaiTransport.ChatConfig{
			APIKey:       llmCfg.APIKey,
			BaseURL:      llmCfg.BaseURL,
			Model:        model,
			Collaborator: name,
			Logger:       logger,
		})
	}
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   time.Duration(rc.BaseDelayMs) * time.Millisecond,
		Multiplier:  rc.Multiplier,
	}
}

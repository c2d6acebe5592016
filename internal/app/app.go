// Package app 按配置组装缓存、模型客户端、文档流水线和会话管理器
package app

import (
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/pdf-chat/config"
	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/fyerfyer/pdf-chat/internal/database"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/provider"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App 组装好的应用组件
type App struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Cache       cache.Cache                     // 嵌入缓存，未启用时为nil
	Embedder    embedding.Client                // 查询向量使用的客户端
	LLM         llm.Client                      // 大模型客户端
	Pipeline    *services.Pipeline              // 文档处理流水线
	Manager     *services.Manager               // 会话管理器
	DB          *gorm.DB                        // 归档数据库，未启用时为nil
	Transcripts repository.TranscriptRepository // 对话归档，未启用时为nil
}

// New 按配置创建应用
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.setupCache(); err != nil {
		return nil, err
	}

	raw, err := a.newEmbeddingClient()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	a.Embedder = raw
	if a.Cache != nil {
		ttl := time.Duration(cfg.Cache.TTL) * time.Second
		a.Embedder = embedding.NewCachedClient(raw, a.Cache, ttl, logger)
	}

	a.LLM, err = a.newLLMClient()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	a.Pipeline, err = a.newPipeline()
	if err != nil {
		a.Close()
		return nil, err
	}

	engineOpts := []services.EngineOption{
		services.WithTopK(cfg.Retrieval.TopK),
		services.WithCondenseQuestion(cfg.Retrieval.CondenseQuestion),
		services.WithProviderPolicy(a.Policy()),
	}

	if cfg.Archive.Enable {
		a.DB, err = database.Open(&database.Config{Type: "sqlite", DSN: cfg.Archive.DSN}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize transcript archive: %w", err)
		}
		a.Transcripts = repository.NewTranscriptRepository(a.DB)
		engineOpts = append(engineOpts, services.WithRecorder(a.Transcripts))
	}

	a.Manager = services.NewManager(a.Embedder, a.LLM, a.Pipeline,
		services.WithWorkers(cfg.Worker.Concurrency),
		services.WithManagerLogger(logger),
		services.WithEngineOptions(engineOpts...),
	)

	logger.WithFields(logrus.Fields{
		"embedder":  a.Embedder.Name(),
		"llm":       a.LLM.Name(),
		"cache":     a.Cache != nil,
		"archive":   a.Transcripts != nil,
		"top_k":     cfg.Retrieval.TopK,
		"condense":  cfg.Retrieval.CondenseQuestion,
		"chunk":     cfg.Document.ChunkSize,
		"overlap":   cfg.Document.ChunkOverlap,
		"workers":   cfg.Worker.Concurrency,
		"vectordb":  cfg.VectorDB.Backend,
		"distance":  cfg.VectorDB.Distance,
		"max_tries": cfg.Provider.MaxAttempts,
	}).Info("Application initialized")

	return a, nil
}

// Policy 返回调用外部模型服务的策略
func (a *App) Policy() provider.Policy {
	p := a.Config.Provider
	return provider.Policy{
		Timeout:        p.Timeout,
		MaxAttempts:    p.MaxAttempts,
		InitialBackoff: p.InitialBackoff,
		MaxBackoff:     p.MaxBackoff,
	}
}

// Close 释放会话、缓存连接和数据库
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Close()
	}
	if closer, ok := a.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close cache")
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			a.Logger.WithError(err).Warn("Failed to close transcript archive")
		}
	}
}

// setupCache 创建嵌入缓存
func (a *App) setupCache() error {
	cfg := a.Config.Cache
	if !cfg.Enable {
		return nil
	}

	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Type
	cacheConfig.DefaultTTL = time.Duration(cfg.TTL) * time.Second
	if cfg.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Address
		cacheConfig.RedisPassword = cfg.Password
		cacheConfig.RedisDB = cfg.DB
	}

	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.Cache = c
	return nil
}

// newEmbeddingClient 创建嵌入客户端
func (a *App) newEmbeddingClient() (embedding.Client, error) {
	cfg := a.Config.Embed
	opts := []embedding.Option{
		embedding.WithBatchSize(cfg.BatchSize),
		embedding.WithRateLimit(cfg.RequestsPerSecond),
	}
	if cfg.Provider == "local" {
		opts = append(opts, embedding.WithDimensions(cfg.Dimensions))
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding API key is required (set embed.api_key or GOOGLE_API_KEY)")
		}
		opts = append(opts,
			embedding.WithAPIKey(cfg.APIKey),
			embedding.WithModel(cfg.Model),
		)
		if cfg.Endpoint != "" {
			opts = append(opts, embedding.WithBaseURL(cfg.Endpoint))
		}
	}
	return embedding.NewClient(cfg.Provider, opts...)
}

// newLLMClient 创建大模型客户端
func (a *App) newLLMClient() (llm.Client, error) {
	cfg := a.Config.LLM
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required (set llm.api_key or GOOGLE_API_KEY)")
	}
	opts := []llm.Option{
		llm.WithAPIKey(cfg.APIKey),
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.Endpoint))
	}
	return llm.NewClient(cfg.Provider, opts...)
}

// newPipeline 创建文档处理流水线
// 文档向量经嵌入缓存后分批并发请求
func (a *App) newPipeline() (*services.Pipeline, error) {
	cfg := a.Config

	policy, err := document.ParseExtractPolicy(cfg.Document.ExtractPolicy)
	if err != nil {
		return nil, err
	}
	splitter, err := document.NewCharacterSplitter(cfg.Splitter())
	if err != nil {
		return nil, err
	}
	distance, err := vectordb.ParseDistanceType(cfg.VectorDB.Distance)
	if err != nil {
		return nil, err
	}

	backend := cfg.VectorDB.Backend
	if !vectordb.HasBackend(backend) {
		a.Logger.WithField("backend", backend).Warn("Index backend not compiled in, falling back to memory")
		backend = "memory"
	}

	batcher := embedding.NewBatchProcessor(a.Embedder, cfg.Embed.BatchSize, cfg.Embed.Workers,
		embedding.WithBatchPolicy(a.Policy()),
		embedding.WithBatchLogger(a.Logger),
	)

	return services.NewPipeline(
		document.NewExtractor(document.WithPolicy(policy), document.WithExtractorLogger(a.Logger)),
		splitter,
		batcher,
		services.WithIndexOptions(vectordb.WithBackend(backend), vectordb.WithDistance(distance)),
		services.WithPipelineLogger(a.Logger),
	), nil
}

// Package docmindsvc provides the docmind service server implementation.
package docmindsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docmind/internal/docmind/biz"
	"github.com/kart-io/docmind/internal/docmind/handler"
	"github.com/kart-io/docmind/internal/docmind/router"
	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/pkg/rag/docutil"
	"github.com/kart-io/docmind/internal/pkg/rag/enhancer"
	"github.com/kart-io/docmind/internal/pkg/rag/evaluator"
	"github.com/kart-io/docmind/pkg/component/database"
	"github.com/kart-io/docmind/pkg/component/milvus"
	"github.com/kart-io/docmind/pkg/component/redis"
	"github.com/kart-io/docmind/pkg/infra/app"
	httpserver "github.com/kart-io/docmind/pkg/infra/server/http"
	"github.com/kart-io/docmind/pkg/llm"
	"github.com/kart-io/docmind/pkg/llm/gateway"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docmind/pkg/llm/ollama"
	"github.com/kart-io/docmind/pkg/llm/resilience"
	dbopts "github.com/kart-io/docmind/pkg/options/database"
	docmindopts "github.com/kart-io/docmind/pkg/options/docmind"
	llmopts "github.com/kart-io/docmind/pkg/options/llm"
	logopts "github.com/kart-io/docmind/pkg/options/logger"
	milvusopts "github.com/kart-io/docmind/pkg/options/milvus"
	redisopts "github.com/kart-io/docmind/pkg/options/redis"
	httpopts "github.com/kart-io/docmind/pkg/options/server/http"
	"github.com/kart-io/docmind/pkg/translate"
)

// Name is the name of the application.
const Name = "docmind"

// Redis key prefixes.
const (
	keyPrefix          = "docmind:"
	embeddingKeyPrefix = "docmind:emb:"
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	DatabaseOptions  *dbopts.Options
	RedisOptions     *redisopts.Options
	MilvusOptions    *milvusopts.Options
	VectorOptions    *docmindopts.VectorOptions
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	PipelineOptions  *docmindopts.PipelineOptions
	QAOptions        *docmindopts.QAOptions
	TranslateOptions *docmindopts.TranslateOptions
	QueueOptions     *docmindopts.QueueOptions
}

// Server represents the docmind server.
type Server struct {
	http            *httpserver.Server
	service         *biz.Service
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer initializes and returns a new Server instance.
// 任一步骤失败时已打开的资源会被关闭。
func (cfg *Config) NewServer(ctx context.Context) (srv *Server, err error) {
	printBanner(cfg)

	s := &Server{shutdownTimeout: cfg.HTTPOptions.ShutdownTimeout}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docmind service...")

	// 2. 检查 PDF 工具
	if err := docutil.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("pdf tools unavailable: %w", err)
	}

	// 3. 初始化关系型存储
	dbClient, err := database.New(ctx, cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	factory, err := store.NewFactory(ctx, dbClient.DB())
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	s.closers = append(s.closers, func() { _ = factory.Close() })
	logger.Infow("Database initialized", "driver", dbClient.Driver())

	// 4. 初始化 Redis（可选，不可用时退回进程内实现）
	var rdb *goredis.Client
	if cfg.RedisOptions.Enabled {
		redisClient, err := redis.New(ctx, cfg.RedisOptions)
		if err != nil {
			logger.Warnw("failed to connect to redis, falling back to in-memory stores", "error", err.Error())
		} else {
			rdb = redisClient.Client()
			s.closers = append(s.closers, func() { _ = redisClient.Close() })
			logger.Infow("Redis initialized", "host", cfg.RedisOptions.Host, "port", cfg.RedisOptions.Port, "ttl", cfg.RedisOptions.CacheTTL)
		}
	} else {
		logger.Info("Redis is disabled")
	}

	summaries := factory.Summaries()
	var jobs store.JobStore = store.NewMemoryJobStore()
	if rdb != nil {
		summaries = store.NewCachedSummaryStore(summaries, rdb, keyPrefix, cfg.RedisOptions.CacheTTL)
		jobs = store.NewRedisJobStore(rdb, keyPrefix, cfg.RedisOptions.CacheTTL)
	}

	// 5. 初始化 LLM 供应商
	embedder, breaker, err := newEmbedder(cfg, rdb)
	if err != nil {
		return nil, err
	}
	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	gw, err := gateway.New(chatProvider, gateway.Config{
		Slots:   cfg.QueueOptions.GenerationWorkers,
		Timeout: cfg.QueueOptions.GenerationTimeout,
		Models:  cfg.ChatOptions.Candidates(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation gateway: %w", err)
	}
	s.closers = append(s.closers, gw.Close)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"models", cfg.ChatOptions.Candidates(),
		"slots", cfg.QueueOptions.GenerationWorkers,
	)

	// 6. 初始化翻译，语言对不可用时终止启动
	lister, _ := chatProvider.(llm.ModelLister)
	translator, err := translate.New(ctx, gw, lister, translate.Config{
		Source:    cfg.TranslateOptions.Source,
		Target:    cfg.TranslateOptions.Target,
		Languages: cfg.TranslateOptions.Languages,
		Model:     cfg.TranslateOptions.Model,
		MaxTokens: cfg.TranslateOptions.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translation: %w", err)
	}

	// 7. 初始化向量索引
	vectors, err := s.newVectorIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	indexer := biz.NewIndexer(factory.Metadata(), vectors, embedder)
	if err := indexer.Rehydrate(ctx); err != nil {
		logger.Warnw("vector index rehydration failed, starting empty", "error", err.Error())
	}

	// 8. 初始化 Biz 层
	scorer := evaluator.New(embedder)
	po := cfg.PipelineOptions
	pdf := docutil.NewPDFExtractor()
	pipeline := biz.NewPipeline(biz.PipelineDeps{
		Source: pdf,
		Summarizer: biz.NewUnitSummarizer(gw, translator, scorer, biz.TwoTierRetry{
			Primary:   biz.RetryPolicy{Name: "primary", MaxAttempts: po.PrimaryAttempts, AcceptanceThreshold: po.PrimaryThreshold},
			Secondary: biz.RetryPolicy{Name: "secondary", MaxAttempts: po.SecondaryAttempts, AcceptanceThreshold: po.SecondaryThreshold},
		}, po.Temperature),
		Merger: biz.NewMerger(gw, scorer, biz.MergerConfig{
			BatchSize:          po.MergeBatchSize,
			IntermediateTokens: po.IntermediateTokens,
			FinalTokens:        po.FinalTokens,
			Temperature:        po.Temperature,
		}),
		Embedder:      embedder,
		Indexer:       indexer,
		Units:         factory.Units(),
		Intermediates: factory.Intermediates(),
		Summaries:     summaries,
		History:       factory.History(),
		Jobs:          jobs,
	}, biz.PipelineConfig{
		Planner:           biz.Planner{SizeThreshold: po.SizeThreshold, GroupSize: po.GroupSize},
		Preparer:          biz.TextPreparer{MaxRunes: po.MaxTextLength, MinRunes: po.MinTextLength},
		AppendixScanPages: po.AppendixScanPages,
		ModelName:         cfg.ChatOptions.Model,
	})

	qa := cfg.QAOptions
	classifierConfig := biz.DefaultClassifierConfig()
	classifierConfig.FastAccept = qa.FastAcceptThreshold
	classifierConfig.SingleStage = qa.SingleStage
	classifierConfig.Timeout = qa.ClassifierTimeout
	classifierConfig.Attempts = qa.ClassifierAttempts
	classifierConfig.TrustGenerative = qa.TrustGenerative
	classifierConfig.PreferGenerative = qa.PreferGenerative

	qaConfig := biz.DefaultQAConfig()
	qaConfig.RelevanceThreshold = qa.RelevanceThreshold
	qaConfig.ShortlistSize = qa.ShortlistSize
	qaConfig.EvidenceSize = qa.EvidenceSize
	qaConfig.GeneralTopK = qa.GeneralTopK
	qaConfig.AnswerTokens = qa.AnswerTokens
	qaConfig.Temperature = qa.Temperature
	qaConfig.EnableRerank = qa.EnableRerank

	rerankConfig := enhancer.DefaultConfig()
	rerankConfig.TopK = qa.EvidenceSize

	engine := biz.NewQAEngine(biz.QADeps{
		Classifier: biz.NewScopeClassifier(embedder, gw, biz.DefaultExamples(), classifierConfig),
		Embedder:   embedder,
		Generator:  gw,
		Reranker:   enhancer.New(gw, rerankConfig),
		Units:      factory.Units(),
		Vectors:    vectors,
		Indexer:    indexer,
		Sessions:   factory.Sessions(),
	}, qaConfig)

	s.service = biz.NewService(biz.ServiceDeps{
		Fetcher:   docutil.NewFetcher(0, po.MaxDownloadBytes),
		Pages:     pdf,
		Runner:    pipeline,
		Jobs:      jobs,
		Summaries: summaries,
		Sessions:  factory.Sessions(),
		History:   factory.History(),
		QA:        engine,

		Vectors:    indexer,
		Generation: gw,
		Breaker:    breaker,
	}, biz.ServiceConfig{
		WorkDir: po.WorkDir,
		Workers: 1,
		Batch: biz.BatchWorkerConfig{
			BatchSize:    cfg.QueueOptions.BatchSize,
			IdleFlush:    cfg.QueueOptions.IdleFlush,
			PollInterval: time.Second,
		},
	})
	logger.Infow("docmind service initialized",
		"vector.backend", cfg.VectorOptions.Backend,
		"qa.rerank", qa.EnableRerank,
		"qa.single_stage", qa.SingleStage,
		"queue.batch_size", cfg.QueueOptions.BatchSize,
	)

	// 9. 初始化 HTTP 服务器并注册路由
	s.http = httpserver.NewServer(cfg.HTTPOptions)
	router.Register(s.http.Engine(), handler.NewDocmindHandler(s.service, cfg.HTTPOptions.RequestTimeout))

	logger.Info("docmind service is ready")
	return s, nil
}

func newEmbedder(cfg *Config, rdb *goredis.Client) (llm.EmbeddingProvider, *resilience.CircuitBreaker, error) {
	base, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.EmbeddingOptions.MaxRetries > 0 {
		retry.MaxAttempts = cfg.EmbeddingOptions.MaxRetries
	}
	resilient := resilience.NewEmbeddingProvider(base, retry, resilience.DefaultCircuitBreakerConfig())
	var embedder llm.EmbeddingProvider = resilient
	if rdb != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, rdb, &llm.EmbeddingCacheConfig{
			TTL:       cfg.RedisOptions.CacheTTL,
			KeyPrefix: embeddingKeyPrefix,
			Namespace: cfg.EmbeddingOptions.Model,
		})
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cached", rdb != nil,
	)
	return embedder, resilient.CircuitBreaker(), nil
}

func (s *Server) newVectorIndex(ctx context.Context, cfg *Config) (store.VectorIndex, error) {
	if cfg.VectorOptions.Backend != docmindopts.VectorBackendMilvus {
		logger.Info("In-process vector index initialized")
		return store.NewMemoryIndex(), nil
	}

	client, err := milvus.New(ctx, cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	s.closers = append(s.closers, func() { _ = client.Close(context.Background()) })

	idx, err := store.NewMilvusIndex(ctx, client, cfg.MilvusOptions.Collection, cfg.MilvusOptions.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus collection: %w", err)
	}
	logger.Infow("Milvus vector index initialized",
		"address", cfg.MilvusOptions.Address,
		"collection", cfg.MilvusOptions.Collection,
	)
	return idx, nil
}

// Run starts the workers and the HTTP server, then blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	s.service.Start(ctx)
	if err := s.http.Start(ctx); err != nil {
		s.service.Stop()
		return fmt.Errorf("failed to start http server: %w", err)
	}

	<-ctx.Done()
	logger.Info("Shutting down docmind service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Stop(shutdownCtx); err != nil {
		logger.Warnw("http server shutdown failed", "error", err.Error())
	}
	// 等待当前任务完成，未开始的任务留在队列中
	s.service.Stop()

	logger.Info("docmind service stopped")
	return nil
}

// close 按打开的相反顺序释放资源。
func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  HTTP: %s\n", cfg.HTTPOptions.Addr)
	fmt.Printf("  Database: %s\n", cfg.DatabaseOptions.Driver)
	fmt.Printf("  Vector index: %s\n", cfg.VectorOptions.Backend)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%v)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Candidates())
}

package bootstrap

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"visual-search-be/internal/config"
	"visual-search-be/internal/controller"
	"visual-search-be/internal/handler"
	"visual-search-be/internal/pipeline"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/memory"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/internal/service"
	"visual-search-be/internal/websocket"
	"visual-search-be/pkg/blob"
	"visual-search-be/pkg/chunker"
	"visual-search-be/pkg/embedding"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/imaging"
	"visual-search-be/pkg/llm/factory"
	"visual-search-be/pkg/membus"
	pktNats "visual-search-be/pkg/nats"
	"visual-search-be/pkg/rag/response"
	"visual-search-be/pkg/rag/retrieval"
	"visual-search-be/pkg/rag/strategy"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ItemController   controller.IItemController
	SearchController controller.ISearchController

	// Background services (started by Start)
	ConsumerService service.IConsumerService
	ProgressService *service.ProgressService

	// WebSockets
	ProgressHandler *handler.ProgressHandler
	WebSocketHub    *websocket.Hub

	// Exposed for cmd/searchctl
	SearchService service.ISearchService

	Logger logger.ILogger

	closers []func() error
}

// NewContainer wires every component. A nil db selects the in-memory
// repositories, which only make sense together with EVENT_BUS=memory.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c := &Container{Logger: sysLogger}

	// 1. Durable store
	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		sysLogger.Warn("Bootstrap", "No database configured, using in-memory repositories", nil)
		uowFactory = memory.NewStore()
	}

	// 2. Blob store
	var blobs blob.ObjectStore
	if cfg.Storage.Endpoint != "" {
		minioStore, err := blob.NewMinioStore(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("connect blob store: %w", err)
		}
		blobs = minioStore
	} else {
		sysLogger.Warn("Bootstrap", "No MinIO endpoint configured, using in-memory blob store", nil)
		blobs = blob.NewMemoryStore(cfg.Storage.Bucket)
	}

	// 3. Event bus
	publisher, subscriber, err := newEventBus(ctx, cfg, sysLogger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, publisher.Close)
	if cfg.App.EventBus != "memory" {
		c.closers = append(c.closers, subscriber.Close)
	}

	// 4. Redis (optional): query embedding cache and progress fan-out
	rdb := newRedis(ctx, cfg, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, rdb.Close)
	}

	// 5. AI providers
	embedder, err := NewEmbeddingProvider(cfg)
	if err != nil {
		return nil, err
	}
	queryEmbedder := embedder
	if rdb != nil && cfg.Retrieval.QueryEmbeddingTTL > 0 {
		queryEmbedder = embedding.NewCachedProvider(embedder, rdb, cfg.Retrieval.QueryEmbeddingTTL)
	}
	sysLogger.Info("Bootstrap", "Embedding provider ready", map[string]interface{}{
		"provider": cfg.Ai.EmbeddingProvider,
		"model":    embedder.ModelName(),
	})

	visionModels := factory.NewRegistry(cfg.Ai.VisionProvider, cfg.Ai.VisionModel, llmSettings(cfg))
	answerModels := factory.NewRegistry(cfg.Ai.AnswerProvider, cfg.Ai.AnswerModel, llmSettings(cfg))

	// 6. Pipeline stages
	previewOpts := imaging.Options{
		MaxEdge:    cfg.Pipeline.PreviewMaxEdge,
		MaxPixels:  cfg.Pipeline.PreviewMaxPix,
		Quality:    cfg.Pipeline.JpegQuality,
		Background: color.White,
	}
	stages := []pipeline.Stage{
		pipeline.NewImageStage(uowFactory, blobs, publisher, previewOpts, cfg.Pipeline.PreviewPrefix, sysLogger),
		pipeline.NewAnalysisStage(uowFactory, blobs, visionModels, publisher, sysLogger),
		pipeline.NewEmbeddingStage(uowFactory, embedder, cfg.Ai.EmbeddingDim, publisher, sysLogger),
	}

	// 7. Retrieval
	searchService, keyword := newSearchStack(uowFactory, queryEmbedder, answerModels, cfg, sysLogger)
	c.SearchService = searchService

	// 8. WebSocket hub and progress
	wsLogger := logger.NewIsolatedLogger("logs/pipeline_ws.log")
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)
	c.ProgressService = service.NewProgressService(subscriber, c.WebSocketHub, sysLogger)
	c.ProgressHandler = handler.NewProgressHandler(c.WebSocketHub, cfg.App.JwtSecret, sysLogger)

	// 9. Services
	c.ConsumerService = service.NewConsumerService(subscriber, cfg.Pipeline.StageTimeout, c.ProgressService, sysLogger, stages...)
	itemService := service.NewItemService(uowFactory, blobs, publisher, keyword, int64(cfg.Pipeline.MaxUploadBytes), sysLogger)

	// 10. Controllers
	c.ItemController = controller.NewItemController(itemService)
	c.SearchController = controller.NewSearchController(c.SearchService)

	return c, nil
}

// NewSearchService builds only the query side. cmd/searchctl uses it so a
// search needs neither the event bus nor the blob store.
func NewSearchService(ctx context.Context, db *gorm.DB, cfg *config.Config, log logger.ILogger) (service.ISearchService, func(), error) {
	embedder, err := NewEmbeddingProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	rdb := newRedis(ctx, cfg, log)
	if rdb != nil && cfg.Retrieval.QueryEmbeddingTTL > 0 {
		embedder = embedding.NewCachedProvider(embedder, rdb, cfg.Retrieval.QueryEmbeddingTTL)
		cleanup = func() { _ = rdb.Close() }
	} else if rdb != nil {
		_ = rdb.Close()
	}
	answerModels := factory.NewRegistry(cfg.Ai.AnswerProvider, cfg.Ai.AnswerModel, llmSettings(cfg))
	searchService, _ := newSearchStack(unitofwork.NewRepositoryFactory(db), embedder, answerModels, cfg, log)
	return searchService, cleanup, nil
}

func newSearchStack(
	uowFactory unitofwork.RepositoryFactory,
	queryEmbedder embedding.EmbeddingProvider,
	answerModels response.ProviderResolver,
	cfg *config.Config,
	log logger.ILogger,
) (service.ISearchService, *retrieval.KeywordRetriever) {
	processor := chunker.New(
		chunker.WithChunkTokens(cfg.Pipeline.ChunkTokens),
		chunker.WithOverlap(cfg.Pipeline.ChunkOverlap),
	)
	keyword := retrieval.NewKeywordRetriever(uowFactory, processor,
		retrieval.BM25Params{K1: cfg.Retrieval.BM25K1, B: cfg.Retrieval.BM25B},
		cfg.Retrieval.KeywordIndexTTL, log)
	vector := retrieval.NewVectorRetriever(uowFactory, queryEmbedder, log)
	selector := strategy.NewSelector(keyword, vector, strategy.Config{
		FusionK:      cfg.Retrieval.FusionK,
		OverFetch:    cfg.Retrieval.OverFetch,
		MinResults:   cfg.Retrieval.AdaptiveMinResults,
		KeywordScore: cfg.Retrieval.AdaptiveKeywordScore,
		VectorScore:  cfg.Retrieval.AdaptiveVectorScore,
	}, log)
	generator := response.NewGenerator(answerModels, log)
	return service.NewSearchService(uowFactory, selector, generator, cfg.Retrieval, log), keyword
}

// Start launches the hub, the progress listener and the stage consumers.
func (c *Container) Start(ctx context.Context) error {
	if err := c.WebSocketHub.Start(ctx); err != nil {
		return err
	}
	if err := c.ProgressService.Start(ctx); err != nil {
		return err
	}
	return c.ConsumerService.Consume(ctx)
}

// Close releases bus, Redis and logger resources in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("Bootstrap", "Shutdown step failed", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = c.Logger.Sync()
}

func newEventBus(ctx context.Context, cfg *config.Config, log logger.ILogger) (events.Publisher, events.Subscriber, error) {
	switch cfg.App.EventBus {
	case "memory":
		bus := membus.New(membus.Config{}, log)
		return bus, bus, nil
	case "nats", "":
		pub, err := pktNats.NewPublisher(ctx, cfg.App.NatsURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect NATS publisher: %w", err)
		}
		sub, err := pktNats.NewSubscriber(ctx, cfg.App.NatsURL, pktNats.SubscriberConfig{
			AckWait: cfg.Pipeline.StageTimeout + 30*time.Second,
		}, log)
		if err != nil {
			_ = pub.Close()
			return nil, nil, fmt.Errorf("connect NATS subscriber: %w", err)
		}
		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported EVENT_BUS %q", cfg.App.EventBus)
	}
}

// newRedis returns nil when Redis is not configured or not reachable.
func newRedis(ctx context.Context, cfg *config.Config, log logger.ILogger) *redis.Client {
	if cfg.App.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Redis unreachable, running without cache and cluster fan-out", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/nexus/internal/adapters/driven/ai"
	"github.com/custodia-labs/nexus/internal/adapters/driven/auth"
	"github.com/custodia-labs/nexus/internal/adapters/driven/memory"
	"github.com/custodia-labs/nexus/internal/adapters/driven/postgres"
	memoryqueue "github.com/custodia-labs/nexus/internal/adapters/driven/queue/memory"
	postgresqueue "github.com/custodia-labs/nexus/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/nexus/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/nexus/internal/adapters/driven/redis"
	"github.com/custodia-labs/nexus/internal/adapters/driven/slack"
	"github.com/custodia-labs/nexus/internal/adapters/driven/storage"
	"github.com/custodia-labs/nexus/internal/adapters/driven/vectorindex/chromem"
	"github.com/custodia-labs/nexus/internal/adapters/driven/vectorindex/qdrant"
	"github.com/custodia-labs/nexus/internal/chunking"
	"github.com/custodia-labs/nexus/internal/config"
	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/core/services"
	"github.com/custodia-labs/nexus/internal/extractors"
	"github.com/custodia-labs/nexus/internal/runtime"
)

// app holds the wired services for one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	runtime  *runtime.Services
	objects  *storage.FileStore
	tokens   driven.TokenService
	holderID string

	catalog   *services.CatalogService
	ingestion *services.IngestionService
	query     *services.QueryService
	slack     *services.SlackService
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newApp connects every backend the configuration names and builds the
// core services on top. Redis and PostgreSQL are optional: without them
// state lives in process memory.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// closers are handed to the runtime; owned are closed by it directly
	var closers, owned []io.Closer
	fail := func(err error) (*app, error) {
		for i := len(owned) - 1; i >= 0; i-- {
			_ = owned[i].Close()
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	holderID := instanceID()

	// ===== PostgreSQL (optional) =====
	var db *postgres.DB
	if cfg.Database.URL.IsSet() {
		var err error
		db, err = postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Database.URL.Value(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: time.Minute,
		})
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		closers = append(closers, db)
		if err := db.InitSchema(ctx); err != nil {
			return fail(fmt.Errorf("init schema: %w", err))
		}
		logger.Info("postgres connected")
	}

	// ===== Redis (optional) =====
	var rdb *redis.Client
	if cfg.Redis.URL.IsSet() {
		opts, err := redis.ParseURL(cfg.Redis.URL.Value())
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		rdb = redis.NewClient(opts)
		closers = append(closers, rdb)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		logger.Info("redis connected")
	}

	// ===== Catalog =====
	var documents driven.DocumentStore
	var chunks driven.ChunkStore
	if db != nil {
		documents = postgres.NewDocumentStore(db)
		chunks = postgres.NewChunkStore(db)
	} else {
		memChunks := memory.NewChunkStore()
		chunks = memChunks
		documents = memory.NewDocumentStore(memChunks)
		logger.Warn("database.url not set, catalog is kept in memory")
	}

	// ===== Delivery dedup and locking (Redis, then PostgreSQL, then memory) =====
	var deliveries driven.DeliveryStore
	var lock driven.DistributedLock
	switch {
	case rdb != nil:
		deliveries = redisadapter.NewDeliveryStore(rdb, cfg.Redis.Namespace)
		lock = redisadapter.NewLock(rdb, cfg.Redis.Namespace)
	case db != nil:
		deliveries = postgres.NewDeliveryStore(db)
		lock = postgres.NewLeaseLock(db, holderID)
	default:
		deliveries = memory.NewDeliveryStore()
		lock = memory.NewLock()
	}

	// ===== Task queue =====
	var queue driven.TaskQueue
	switch cfg.Queue.Backend {
	case "redis":
		q, err := redisqueue.NewQueue(ctx, rdb, cfg.Redis.Namespace, holderID)
		if err != nil {
			return fail(fmt.Errorf("create task queue: %w", err))
		}
		queue = q
	case "postgres":
		queue = postgresqueue.NewQueue(db.DB)
	default:
		queue = memoryqueue.NewQueue()
	}
	owned = append(owned, queue)
	logger.Info("task queue ready", "backend", cfg.Queue.Backend)

	// ===== Vector index =====
	var index driven.VectorIndex
	switch cfg.Vector.Backend {
	case "qdrant":
		idx, err := qdrant.New(qdrant.Config{
			Host:       cfg.Vector.QdrantHost,
			Port:       cfg.Vector.QdrantPort,
			APIKey:     cfg.Vector.QdrantAPIKey.Value(),
			UseTLS:     cfg.Vector.QdrantTLS,
			Collection: cfg.Vector.Collection,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		if err != nil {
			return fail(fmt.Errorf("connect qdrant: %w", err))
		}
		index = idx
	default:
		idx, err := chromem.New(chromem.Config{
			Path:       cfg.Vector.ChromemPath,
			Compress:   cfg.Vector.ChromemCompress,
			Collection: cfg.Vector.Collection,
		})
		if err != nil {
			return fail(fmt.Errorf("open chromem: %w", err))
		}
		index = idx
	}
	owned = append(owned, index)
	logger.Info("vector index ready", "backend", cfg.Vector.Backend, "collection", cfg.Vector.Collection)

	// ===== Model providers =====
	factory := ai.NewFactory()
	embedder, err := factory.CreateEmbeddingService(cfg.EmbeddingSettings())
	if err == nil && embedder == nil {
		err = errors.New("embedding provider not configured")
	}
	if err != nil {
		return fail(fmt.Errorf("embedding: %w", err))
	}
	owned = append(owned, embedder)
	llm, err := factory.CreateLLMService(cfg.LLMSettings())
	if err == nil && llm == nil {
		err = errors.New("llm provider not configured")
	}
	if err != nil {
		return fail(fmt.Errorf("llm: %w", err))
	}
	owned = append(owned, llm)

	// ===== Object storage and Slack =====
	objects, err := storage.NewFileStore(cfg.Storage.Root, cfg.Storage.MaxObjectSize)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}

	chat := slack.NewClient(slack.Config{
		BotToken:          cfg.Slack.BotToken.Value(),
		APIBaseURL:        cfg.Slack.APIBaseURL,
		ResponseURLHosts:  cfg.Slack.ResponseURLHosts,
		RequestsPerSecond: cfg.Slack.RequestsPerSecond,
		Logger:            logger,
	})
	if !cfg.Slack.SigningSecret.IsSet() {
		logger.Warn("slack.signing_secret not set, every slack request will be rejected")
	}

	var tokens driven.TokenService
	if cfg.Auth.JWTSecret.IsSet() {
		adapter, err := auth.NewAdapter(cfg.Auth.JWTSecret.Value(), cfg.Auth.Issuer)
		if err != nil {
			return fail(fmt.Errorf("auth: %w", err))
		}
		tokens = adapter
	} else {
		logger.Warn("auth.jwt_secret not set, /documents and /query are unauthenticated")
	}

	rt, err := runtime.New(runtime.Dependencies{
		Documents:  documents,
		Chunks:     chunks,
		Index:      index,
		Embedding:  embedder,
		LLM:        llm,
		Queue:      queue,
		Deliveries: deliveries,
		Lock:       lock,
		Objects:    objects,
		Chat:       chat,
		Tokens:     tokens,
	}, closers...)
	if err != nil {
		return fail(err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		runtime:  rt,
		objects:  objects,
		tokens:   tokens,
		holderID: holderID,
	}
	a.wire()
	return a, nil
}

// wire builds the core services from the runtime dependencies.
func (a *app) wire() {
	cfg, rt, logger := a.cfg, a.runtime, a.logger

	retriever := services.NewRetrievalService(services.RetrievalConfig{
		Embedder: rt.Embedding(),
		Index:    rt.Index(),
		Logger:   logger,
		DefaultK: cfg.Retrieval.DefaultK,
		MaxK:     cfg.Retrieval.MaxK,
		MinScore: cfg.Retrieval.MinScore,
		Retry:    cfg.Retry,
	})
	composer := services.NewComposer(services.ComposerConfig{
		LLM:           rt.LLM(),
		Logger:        logger,
		ContextTokens: cfg.Composer.ContextTokens,
		AnswerTokens:  cfg.Composer.AnswerTokens,
		Temperature:   cfg.Composer.Temperature,
		LinkBaseURL:   cfg.Storage.LinkBaseURL,
		Retry:         cfg.Retry,
	})
	a.query = services.NewQueryService(services.QueryConfig{
		Retriever: retriever,
		Composer:  composer,
		Logger:    logger,
	})

	a.ingestion = services.NewIngestionService(services.IngestionConfig{
		Objects:         rt.Objects(),
		Documents:       rt.Documents(),
		Chunks:          rt.Chunks(),
		Extractors:      extractors.DefaultRegistry(nil),
		Chunker:         chunking.New(cfg.Chunking),
		Embedder:        rt.Embedding(),
		Index:           rt.Index(),
		Queue:           rt.Queue(),
		Lock:            rt.Lock(),
		Logger:          logger,
		Retry:           cfg.Retry,
		Concurrency:     cfg.Ingestion.Concurrency,
		UpsertBatchSize: cfg.Ingestion.UpsertBatchSize,
		LockTTL:         cfg.Ingestion.LockTTL,
	})

	a.catalog = services.NewCatalogService(rt.Documents())

	a.slack = services.NewSlackService(services.SlackServiceConfig{
		Verifier: services.NewVerifier(services.VerifierConfig{
			SigningSecret: cfg.Slack.SigningSecret.Value(),
			Window:        cfg.Slack.ReplayWindow,
		}),
		Parser: services.NewSlackParser(cfg.Slack.Command, nil),
		Dispatcher: services.NewDispatcher(services.DispatcherConfig{
			Deliveries: rt.Deliveries(),
			Queue:      rt.Queue(),
			TTL:        cfg.Slack.ReplayWindow,
			Logger:     logger,
		}),
		Query: a.query,
		Poster: services.NewPoster(services.PosterConfig{
			Client:     rt.Chat(),
			RetryDelay: cfg.Slack.PostRetryDelay,
			Logger:     logger,
		}),
		Logger: logger,
	})
}

// scheduledTasks returns the periodic tasks the worker's scheduler runs.
func (a *app) scheduledTasks() []*domain.ScheduledTask {
	if a.cfg.Ingestion.RescanInterval <= 0 {
		return nil
	}
	return []*domain.ScheduledTask{
		domain.NewScheduledTask("rescan", "Rescan document storage", domain.TaskTypeScanSources, a.cfg.Ingestion.RescanInterval),
	}
}

func (a *app) Close() error {
	return a.runtime.Close()
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "nexus"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

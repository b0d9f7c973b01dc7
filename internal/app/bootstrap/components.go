package bootstrap

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"pressindex/internal/adapter/directus"
	"pressindex/internal/db/opensearch"
	"pressindex/internal/db/postgres"
	redisdb "pressindex/internal/db/redis"
	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
	"pressindex/internal/domain/syncer"
	"pressindex/internal/platform/config"
	applog "pressindex/internal/platform/log"
)

// Components 进程内装配好的组件；生命周期由 cmd 入口持有
type Components struct {
	Config       *config.AppConfig
	Search       *opensearch.Client
	Fetcher      *directus.Client
	Writer       *index.Writer
	Engine       *index.QueryEngine
	Orchestrator *syncer.Orchestrator
	Importer     *syncer.Importer
	Ledger       *postgres.Ledger // nil 表示未配置 DATABASE_URL

	db    *sql.DB
	redis *goredis.Client
}

// Build 按配置装配全部组件。
// Redis 与 PostgreSQL 为可选依赖：不可用时对应功能（缓存、文档锁、台账）降级关闭。
func Build(ctx context.Context, cfg *config.AppConfig) (*Components, error) {
	c := &Components{Config: cfg}
	idxCfg := &cfg.Index
	policy := cfg.Retry.Policy()

	c.Search = opensearch.NewClient(idxCfg)
	c.Fetcher = directus.NewClient(directus.Config{
		BaseURL:           cfg.ContentStore.URL,
		Token:             cfg.ContentStore.Token,
		TimeoutSeconds:    cfg.ContentStore.TimeoutSeconds,
		RequestsPerSecond: cfg.ContentStore.RequestsPerSecond,
		Burst:             cfg.ContentStore.Burst,
		Retry:             policy,
		NewsCollections:   []content.Collection{content.Collection(cfg.ContentStore.NewsCollection)},
	})

	fragmenter := index.NewFragmenter(idxCfg)
	c.Writer = index.NewWriter(c.Search, idxCfg, policy)
	c.Engine = index.NewQueryEngine(c.Search, idxCfg)

	embeddingDims := 0
	if idxCfg.HasEmbedding() {
		embedder := index.NewOpenAIEmbedder(index.OpenAIEmbedderConfig{
			BaseURL:        cfg.OpenAI.BaseURL,
			APIKey:         cfg.OpenAI.APIKey,
			Model:          idxCfg.EmbeddingModel,
			Dims:           idxCfg.EmbeddingDims,
			BatchSize:      cfg.OpenAI.EmbeddingBatchSize,
			TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
			Retry:          policy,
		})
		c.Writer.SetEmbedder(embedder)
		c.Engine.SetEmbedder(embedder)
		embeddingDims = embedder.Dims()
		applog.Infof("✅ Embedder initialized (model: %s, dims: %d)", idxCfg.EmbeddingModel, embeddingDims)
	} else {
		applog.Info("ℹ️  No embedding model configured, semantic fallback disabled")
	}

	routes := cfg.Routes()
	c.Orchestrator = syncer.NewOrchestrator(c.Fetcher, fragmenter, c.Writer, routes)
	c.Importer = syncer.NewImporter(c.Fetcher, fragmenter, c.Writer, routes)

	c.initRedis(ctx)
	c.initDatabase(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(idxCfg.RequestTimeoutSeconds)*time.Second)
	defer cancel()
	if err := c.Search.Ping(pingCtx); err != nil {
		applog.Warnf("⚠️  OpenSearch ping failed: %v", err)
	} else {
		applog.Info("✅ Connected to OpenSearch")
		for _, kind := range index.AllKinds {
			if err := c.Search.EnsureIndex(pingCtx, kind, embeddingDims); err != nil {
				applog.Warnf("⚠️  Failed to ensure index %s: %v", idxCfg.IndexName(kind), err)
			}
		}
	}
	return c, nil
}

func (c *Components) initRedis(ctx context.Context) {
	cfg := c.Config
	if cfg.Redis.URL == "" {
		applog.Info("ℹ️  No REDIS_URL set, search cache and document lock disabled")
		return
	}
	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Warnf("⚠️  Redis URL invalid, cache and lock disabled: %v", err)
		return
	}
	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Redis.PingTimeoutSeconds)*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		applog.Warnf("⚠️  Redis connection failed, cache and lock disabled: %v", err)
		_ = client.Close()
		return
	}
	c.redis = client
	applog.Info("✅ Connected to Redis")

	if cfg.Index.HasCache() {
		cache := redisdb.NewSearchCache(client, cfg.Index.CacheTTL)
		c.Engine.SetCache(cache)
		c.Writer.SetCache(cache)
		applog.Infof("✅ Search cache initialized (TTL: %ds)", cfg.Index.CacheTTL)
	}
	if cfg.Sync.LockEnabled {
		lock := redisdb.NewDocumentLock(client, time.Duration(cfg.Sync.LockTTLSeconds)*time.Second)
		c.Orchestrator.SetLocker(lock, time.Duration(cfg.Sync.LockWaitSeconds)*time.Second)
		applog.Info("✅ Document lock enabled")
	}
}

func (c *Components) initDatabase(ctx context.Context) {
	cfg := c.Config
	if cfg.Database.URL == "" {
		applog.Info("ℹ️  No DATABASE_URL set, sync ledger disabled")
		return
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Warnf("⚠️  Failed to open database, sync ledger disabled: %v", err)
		return
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		applog.Warnf("⚠️  Failed to ping database, sync ledger disabled: %v", err)
		_ = db.Close()
		return
	}

	// 单个事件最长处理 EventTimeout，留一倍余量再视为中断
	ledger := postgres.NewLedger(db, 2*time.Duration(cfg.Sync.EventTimeoutSeconds)*time.Second)
	if err := ledger.EnsureTable(pingCtx); err != nil {
		applog.Warnf("⚠️  Failed to ensure sync_events table, sync ledger disabled: %v", err)
		_ = db.Close()
		return
	}
	c.db = db
	c.Ledger = ledger
	c.Orchestrator.SetLedger(ledger)
	applog.Info("✅ Sync ledger ready (sync_events)")
}

// Close 释放连接
func (c *Components) Close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

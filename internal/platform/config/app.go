package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
	"pressindex/internal/domain/syncer"
	"pressindex/internal/platform/retry"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel     string             `json:"log_level"`
	LogFormat    string             `json:"log_format"`
	Server       ServerConfig       `json:"server"`
	ContentStore ContentStoreConfig `json:"content_store"`
	Index        index.Config       `json:"index"`
	Redis        RedisConfig        `json:"redis"`
	Database     DatabaseConfig     `json:"database"`
	Sync         SyncConfig         `json:"sync"`
	Retry        RetryConfig        `json:"retry"`
	Auth         AuthConfig         `json:"auth"`
	OpenAI       OpenAIConfig       `json:"openai"`
}

type ServerConfig struct {
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	ReadTimeoutSeconds     int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `json:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
	WebhookSecret          string `json:"webhook_secret"`
}

// ContentStoreConfig Directus 风格内容库
type ContentStoreConfig struct {
	URL                string  `json:"url"`
	Token              string  `json:"token"`
	TimeoutSeconds     int     `json:"timeout_seconds"`
	RequestsPerSecond  float64 `json:"requests_per_second"`
	Burst              int     `json:"burst"`
	ArticlesCollection string  `json:"articles_collection"`
	NewsCollection     string  `json:"news_collection"`
}

type RedisConfig struct {
	URL                string `json:"url"`
	PingTimeoutSeconds int    `json:"ping_timeout_seconds"`
}

type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// SyncConfig 同步与全量导入
type SyncConfig struct {
	LockEnabled         bool `json:"lock_enabled"`
	LockTTLSeconds      int  `json:"lock_ttl_seconds"`
	LockWaitSeconds     int  `json:"lock_wait_seconds"`
	ImportWorkers       int  `json:"import_workers"`
	ImportPageSize      int  `json:"import_page_size"`
	EventTimeoutSeconds int  `json:"event_timeout_seconds"`
}

// RetryConfig 外部调用重试（毫秒）
type RetryConfig struct {
	MaxAttempts      int     `json:"max_attempts"`
	InitialDelayMs   int     `json:"initial_delay_ms"`
	MaxDelayMs       int     `json:"max_delay_ms"`
	Multiplier       float64 `json:"multiplier"`
	AttemptTimeoutMs int     `json:"attempt_timeout_ms"`
}

// Policy 转换为 retry.Policy
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    r.MaxAttempts,
		InitialDelay:   time.Duration(r.InitialDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(r.MaxDelayMs) * time.Millisecond,
		Multiplier:     r.Multiplier,
		AttemptTimeout: time.Duration(r.AttemptTimeoutMs) * time.Millisecond,
	}
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer"`
}

type OpenAIConfig struct {
	APIKey             string `json:"api_key"`
	BaseURL            string `json:"base_url"`
	EmbeddingBatchSize int    `json:"embedding_batch_size"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	idx := index.DefaultConfig()
	policy := retry.DefaultPolicy()
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			ReadTimeoutSeconds:     30,
			WriteTimeoutSeconds:    120,
			ShutdownTimeoutSeconds: 15,
		},
		ContentStore: ContentStoreConfig{
			TimeoutSeconds:     15,
			RequestsPerSecond:  10,
			Burst:              5,
			ArticlesCollection: "articles",
			NewsCollection:     "weekly_news",
		},
		Index: *idx,
		Redis: RedisConfig{
			PingTimeoutSeconds: 3,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           10,
			MaxIdleConns:           2,
			ConnMaxLifetimeSeconds: 300,
		},
		Sync: SyncConfig{
			LockEnabled:         true,
			LockTTLSeconds:      120,
			LockWaitSeconds:     10,
			ImportWorkers:       4,
			ImportPageSize:      50,
			EventTimeoutSeconds: 90,
		},
		Retry: RetryConfig{
			MaxAttempts:      policy.MaxAttempts,
			InitialDelayMs:   int(policy.InitialDelay / time.Millisecond),
			MaxDelayMs:       int(policy.MaxDelay / time.Millisecond),
			Multiplier:       policy.Multiplier,
			AttemptTimeoutMs: int(policy.AttemptTimeout / time.Millisecond),
		},
		OpenAI: OpenAIConfig{
			BaseURL:            "https://api.openai.com/v1",
			EmbeddingBatchSize: 64,
			TimeoutSeconds:     60,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	// .env 非必需
	_ = godotenv.Load()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Routes 集合 → 记录类型
func (c *AppConfig) Routes() syncer.Routes {
	return syncer.Routes{
		content.Collection(c.ContentStore.ArticlesCollection): index.KindArticle,
		content.Collection(c.ContentStore.NewsCollection):     index.KindNewsItem,
	}
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)
	applyInt("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeoutSeconds)
	applyString("WEBHOOK_SECRET", &c.Server.WebhookSecret)

	applyString("CONTENT_STORE_URL", &c.ContentStore.URL)
	applyString("CONTENT_STORE_TOKEN", &c.ContentStore.Token)
	applyInt("CONTENT_STORE_TIMEOUT", &c.ContentStore.TimeoutSeconds)
	applyFloat64("CONTENT_STORE_RPS", &c.ContentStore.RequestsPerSecond)
	applyInt("CONTENT_STORE_BURST", &c.ContentStore.Burst)
	applyString("CONTENT_STORE_ARTICLES_COLLECTION", &c.ContentStore.ArticlesCollection)
	applyString("CONTENT_STORE_NEWS_COLLECTION", &c.ContentStore.NewsCollection)

	applyString("OPENSEARCH_URL", &c.Index.OpenSearchURL)
	applyString("OPENSEARCH_USERNAME", &c.Index.OpenSearchUsername)
	applyString("OPENSEARCH_PASSWORD", &c.Index.OpenSearchPassword)
	applyBool("OPENSEARCH_INSECURE_SKIP_VERIFY", &c.Index.InsecureSkipVerify)
	applyString("OPENSEARCH_INDEX_PREFIX", &c.Index.IndexPrefix)
	applyInt("OPENSEARCH_TIMEOUT", &c.Index.RequestTimeoutSeconds)
	applyInt("INDEX_MAX_CHUNK_BYTES", &c.Index.MaxChunkBytes)
	applyInt("INDEX_PAGE_SIZE", &c.Index.PageSize)
	applyInt("SEARCH_DEFAULT_LIMIT", &c.Index.DefaultLimit)
	applyInt("SEARCH_KEYWORD_LIMIT", &c.Index.KeywordLimit)
	applyFloat64("SEARCH_SEMANTIC_MAX_DISTANCE", &c.Index.SemanticMaxDistance)
	applyString("EMBEDDING_MODEL", &c.Index.EmbeddingModel)
	applyInt("EMBEDDING_DIMS", &c.Index.EmbeddingDims)
	applyString("SITE_BASE_URL", &c.Index.SiteBaseURL)
	applyInt("SEARCH_CACHE_TTL", &c.Index.CacheTTL)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyBool("SYNC_LOCK_ENABLED", &c.Sync.LockEnabled)
	applyInt("SYNC_LOCK_TTL", &c.Sync.LockTTLSeconds)
	applyInt("SYNC_LOCK_WAIT", &c.Sync.LockWaitSeconds)
	applyInt("IMPORT_WORKERS", &c.Sync.ImportWorkers)
	applyInt("IMPORT_PAGE_SIZE", &c.Sync.ImportPageSize)
	applyInt("SYNC_EVENT_TIMEOUT", &c.Sync.EventTimeoutSeconds)

	applyInt("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	applyInt("RETRY_INITIAL_DELAY_MS", &c.Retry.InitialDelayMs)
	applyInt("RETRY_MAX_DELAY_MS", &c.Retry.MaxDelayMs)
	applyInt("RETRY_ATTEMPT_TIMEOUT_MS", &c.Retry.AttemptTimeoutMs)

	applyString("JWT_SECRET", &c.Auth.JWTSecret)
	applyString("JWT_ISSUER", &c.Auth.JWTIssuer)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
}

func (c *AppConfig) normalize() {
	c.ContentStore.URL = strings.TrimRight(strings.TrimSpace(c.ContentStore.URL), "/")
	c.Index.SiteBaseURL = strings.TrimRight(c.Index.SiteBaseURL, "/")
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Index.MaxChunkBytes <= 0 {
		c.Index.MaxChunkBytes = index.DefaultMaxChunkBytes
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	if c.Index.EmbeddingModel != "" && c.OpenAI.APIKey == "" {
		// 无 API Key 时关闭语义检索
		c.Index.EmbeddingModel = ""
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.ContentStore.URL) == "" {
		return fmt.Errorf("CONTENT_STORE_URL is required")
	}
	if strings.TrimSpace(c.Index.OpenSearchURL) == "" {
		return fmt.Errorf("OPENSEARCH_URL is required")
	}
	if c.ContentStore.ArticlesCollection == "" || c.ContentStore.NewsCollection == "" {
		return fmt.Errorf("content store collection names must not be empty")
	}
	if c.ContentStore.ArticlesCollection == c.ContentStore.NewsCollection {
		return fmt.Errorf("articles and news collections must differ")
	}
	if c.Index.PageSize <= 0 || c.Index.PageSize > 10000 {
		return fmt.Errorf("INDEX_PAGE_SIZE must be between 1 and 10000, got %d", c.Index.PageSize)
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

package index

// Config 索引与检索配置
type Config struct {
	// OpenSearch 连接
	OpenSearchURL      string `json:"opensearch_url"`
	OpenSearchUsername string `json:"opensearch_username"`
	OpenSearchPassword string `json:"opensearch_password"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
	IndexPrefix        string `json:"index_prefix"`

	// 单次外部调用超时（秒）
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// 分块
	MaxChunkBytes int `json:"max_chunk_bytes"`

	// 分页（列举/清空时每页数量，受后端查询上限约束）
	PageSize int `json:"page_size"`

	// 检索
	DefaultLimit        int     `json:"default_limit"`
	KeywordLimit        int     `json:"keyword_limit"`
	SemanticMaxDistance float64 `json:"semantic_max_distance"` // 0=不限制

	// Embedding（未配置时语义检索不可用）
	EmbeddingModel string `json:"embedding_model,omitempty"`
	EmbeddingDims  int    `json:"embedding_dims,omitempty"`

	// 站点根地址，用于生成规范 URL（去重键）
	SiteBaseURL string `json:"site_base_url"`

	// 缓存 TTL（秒），0=禁用
	CacheTTL int `json:"cache_ttl"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		OpenSearchURL:         "https://localhost:9200",
		IndexPrefix:           "pressindex",
		RequestTimeoutSeconds: 15,
		MaxChunkBytes:         4096,
		PageSize:              100,
		DefaultLimit:          10,
		KeywordLimit:          10,
		SemanticMaxDistance:   0,
		EmbeddingDims:         1536,
		CacheTTL:              300,
	}
}

// IndexName 返回记录类型对应的索引名
func (c *Config) IndexName(kind RecordKind) string {
	return c.IndexPrefix + "_" + string(kind)
}

// HasEmbedding 是否配置了 Embedding
func (c *Config) HasEmbedding() bool {
	return c.EmbeddingModel != ""
}

// HasCache 是否启用缓存
func (c *Config) HasCache() bool {
	return c.CacheTTL > 0
}

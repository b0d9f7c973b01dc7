package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pressindex/internal/domain/content"
	applog "pressindex/internal/platform/log"
	"pressindex/internal/platform/retry"
)

// Config Directus 客户端配置
type Config struct {
	BaseURL           string
	Token             string
	TimeoutSeconds    int
	RequestsPerSecond float64 // <=0 不限流
	Burst             int
	Retry             retry.Policy
	// 周报集合（条目为 items 关系），其余集合按文章处理
	NewsCollections []content.Collection
}

// Client 通过 Directus REST API 读取已发布文档
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	news       map[content.Collection]bool
}

var _ content.Fetcher = (*Client)(nil)

var (
	articleFields = []string{
		"id", "status", "title", "body", "slug", "tags",
		"date_published", "date_updated",
		"authors.authors_id.id", "authors.authors_id.name",
	}
	newsFields = []string{
		"id", "status", "title", "slug", "tags",
		"date_published", "date_updated",
		"authors.authors_id.id", "authors.authors_id.name",
		"items.id", "items.title", "items.body", "items.url",
	}
)

// NewClient 创建 Directus 客户端
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	news := make(map[content.Collection]bool, len(cfg.NewsCollections))
	for _, c := range cfg.NewsCollections {
		news[c] = true
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		policy:     cfg.Retry,
		news:       news,
	}
}

// Get 读取单个已发布文档。
// 使用 id + status 过滤的列表查询：不存在与未发布都返回空列表，映射为 content.ErrNotFound。
func (c *Client) Get(ctx context.Context, collection content.Collection, id string) (*content.Document, error) {
	q := c.baseQuery(collection)
	q.Set("filter[id][_eq]", id)
	q.Set("limit", "1")

	docs, err := c.fetch(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, content.ErrNotFound
	}
	return &docs[0], nil
}

// ListPublished 分页读取已发布文档（按 id 排序保证分页稳定）
func (c *Client) ListPublished(ctx context.Context, collection content.Collection, limit, offset int) ([]content.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	q := c.baseQuery(collection)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("sort", "id")
	return c.fetch(ctx, collection, q)
}

func (c *Client) baseQuery(collection content.Collection) url.Values {
	fields := articleFields
	if c.news[collection] {
		fields = newsFields
	}
	q := url.Values{}
	q.Set("fields", strings.Join(fields, ","))
	q.Set("filter[status][_eq]", string(content.StatusPublished))
	return q
}

func (c *Client) fetch(ctx context.Context, collection content.Collection, q url.Values) ([]content.Document, error) {
	path := "/items/" + url.PathEscape(string(collection)) + "?" + q.Encode()

	body, err := retry.DoValue(ctx, c.policy, "directus get", func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, path)
	})
	if err != nil {
		return nil, fmt.Errorf("directus %s: %w", collection, err)
	}

	var resp struct {
		Data []item `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("directus %s: parse response: %w", collection, err)
	}

	docs := make([]content.Document, 0, len(resp.Data))
	for _, it := range resp.Data {
		docs = append(docs, it.toDocument(collection))
	}
	return docs, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	applog.Debug("[Directus] Request",
		"path", path,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 512))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

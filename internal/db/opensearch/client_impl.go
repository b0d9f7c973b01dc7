package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pressindex/internal/domain/index"
	applog "pressindex/internal/platform/log"
	"pressindex/internal/platform/retry"
)

// Client OpenSearch HTTP 客户端，每种记录类型一个索引
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	config     *index.Config
}

var _ index.SearchClient = (*Client)(nil)

// NewClient 创建 OpenSearch 客户端
func NewClient(cfg *index.Config) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // 开发环境自签证书
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.OpenSearchURL, "/"),
		username: cfg.OpenSearchUsername,
		password: cfg.OpenSearchPassword,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		config: cfg,
	}
}

// EnsureIndex 确保记录类型对应的索引存在，如不存在则创建
func (c *Client) EnsureIndex(ctx context.Context, kind index.RecordKind, dims int) error {
	name := c.config.IndexName(kind)

	resp, err := c.doRequest(ctx, http.MethodHead, "/"+name, nil)
	if err != nil {
		return fmt.Errorf("check index existence: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		applog.Info("[OpenSearch] Index already exists", "index", name)
		return nil
	}

	settings := map[string]interface{}{}
	if dims > 0 {
		settings["index.knn"] = true
	}

	properties := map[string]interface{}{
		"fragment_id":    map[string]string{"type": "keyword"},
		"kind":           map[string]string{"type": "keyword"},
		"document_id":    map[string]string{"type": "keyword"},
		"sub_item_id":    map[string]string{"type": "keyword"},
		"part":           map[string]string{"type": "integer"},
		"title":          map[string]string{"type": "text", "analyzer": "english"},
		"document_title": map[string]string{"type": "text", "analyzer": "english"},
		"content":        map[string]string{"type": "text", "analyzer": "english"},
		"date":           map[string]string{"type": "date"},
		"authors":        map[string]string{"type": "keyword"},
		"tags":           map[string]string{"type": "keyword"},
		"slug":           map[string]string{"type": "keyword"},
		"url":            map[string]string{"type": "keyword"},
	}

	// OpenSearch 使用 knn_vector；lucene 引擎下 cosinesimil 的得分为 (1+cos)/2
	if dims > 0 {
		properties["vector"] = map[string]interface{}{
			"type":      "knn_vector",
			"dimension": dims,
			"method": map[string]interface{}{
				"name":       "hnsw",
				"space_type": "cosinesimil",
				"engine":     "lucene",
			},
		}
	}

	mapping := map[string]interface{}{
		"settings": settings,
		"mappings": map[string]interface{}{
			"properties": properties,
		},
	}

	body, _ := json.Marshal(mapping)
	resp, err = c.doRequest(ctx, http.MethodPut, "/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError("create index", resp.StatusCode, respBody)
	}

	applog.Info("[OpenSearch] Index created", "index", name, "dims", dims)
	return nil
}

// UpsertFragments 以 Fragment.ID 作为 _id 批量写入（index 动作即覆盖）
func (c *Client) UpsertFragments(ctx context.Context, kind index.RecordKind, frags []index.Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	name := c.config.IndexName(kind)

	var buf bytes.Buffer
	for _, frag := range frags {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": name,
				"_id":    frag.ID,
			},
		}
		actionLine, _ := json.Marshal(action)
		buf.Write(actionLine)
		buf.WriteByte('\n')

		docLine, err := json.Marshal(frag)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal fragment %s: %w", frag.ID, err))
		}
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	if err := c.bulk(ctx, &buf); err != nil {
		return fmt.Errorf("bulk upsert: %w", err)
	}
	applog.Debug("[OpenSearch] Bulk upserted", "index", name, "count", len(frags))
	return nil
}

// DeleteByIDs 按 _id 批量删除，不存在的 id 不视为错误
func (c *Client) DeleteByIDs(ctx context.Context, kind index.RecordKind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	name := c.config.IndexName(kind)

	var buf bytes.Buffer
	for _, id := range ids {
		action := map[string]interface{}{
			"delete": map[string]interface{}{
				"_index": name,
				"_id":    id,
			},
		}
		line, _ := json.Marshal(action)
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := c.bulk(ctx, &buf); err != nil {
		return fmt.Errorf("bulk delete: %w", err)
	}
	applog.Debug("[OpenSearch] Bulk deleted", "index", name, "count", len(ids))
	return nil
}

// ListIDs 按 term 过滤分页列出 fragment_id，以 search_after 翻页
func (c *Client) ListIDs(ctx context.Context, kind index.RecordKind, filter map[string]string, after string, size int) ([]string, error) {
	if size <= 0 {
		size = c.config.PageSize
	}

	var filters []interface{}
	for field, value := range filter {
		filters = append(filters, map[string]interface{}{
			"term": map[string]string{field: value},
		})
	}

	query := map[string]interface{}{
		"size":    size,
		"_source": false,
		"sort":    []interface{}{map[string]string{"fragment_id": "asc"}},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
	}
	if len(filters) == 0 {
		query["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	if after != "" {
		query["search_after"] = []string{after}
	}

	resp, err := c.search(ctx, kind, query)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}

	ids := make([]string, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// SearchKeyword 关键词全文检索（标题加权）
func (c *Client) SearchKeyword(ctx context.Context, kind index.RecordKind, text string, limit int) ([]index.Hit, error) {
	if limit <= 0 {
		limit = c.config.KeywordLimit
	}
	query := map[string]interface{}{
		"size":    limit,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":    text,
				"fields":   []string{"title^2", "document_title", "content"},
				"operator": "and",
			},
		},
	}

	resp, err := c.search(ctx, kind, query)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return resp.toHits(kind, false), nil
}

// SearchNearest kNN 向量检索；距离由得分换算，超过 MaxDistance 的命中被过滤
func (c *Client) SearchNearest(ctx context.Context, kind index.RecordKind, req index.NearestRequest) ([]index.Hit, error) {
	if len(req.Vector) == 0 {
		return nil, retry.Permanent(fmt.Errorf("nearest search: empty query vector"))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = c.config.KeywordLimit
	}

	query := map[string]interface{}{
		"size":    limit,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"query": map[string]interface{}{
			"knn": map[string]interface{}{
				"vector": map[string]interface{}{
					"vector": req.Vector,
					"k":      limit,
				},
			},
		},
	}

	resp, err := c.search(ctx, kind, query)
	if err != nil {
		return nil, fmt.Errorf("nearest search: %w", err)
	}

	hits := resp.toHits(kind, true)
	if req.MaxDistance <= 0 {
		return hits, nil
	}
	filtered := hits[:0]
	for _, h := range hits {
		if h.Distance != nil && *h.Distance <= req.MaxDistance {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// Ping 检查 OpenSearch 连通性
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return fmt.Errorf("ping opensearch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opensearch returned status %d", resp.StatusCode)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// toHits 解析命中；withDistance 时按 lucene cosinesimil 得分换算距离 d = 2 - 2*score
func (r *searchResponse) toHits(kind index.RecordKind, withDistance bool) []index.Hit {
	hits := make([]index.Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		var frag index.Fragment
		if err := json.Unmarshal(h.Source, &frag); err != nil {
			applog.Warn("[OpenSearch] Failed to parse hit source", "id", h.ID, "error", err)
			continue
		}
		if frag.ID == "" {
			frag.ID = h.ID
		}
		if frag.Kind == "" {
			frag.Kind = kind
		}
		frag.Vector = nil

		hit := index.Hit{Fragment: frag, Score: h.Score}
		if withDistance {
			d := 2 - 2*h.Score
			if d < 0 {
				d = 0
			}
			hit.Distance = &d
		}
		hits = append(hits, hit)
	}
	return hits
}

func (c *Client) search(ctx context.Context, kind index.RecordKind, query map[string]interface{}) (*searchResponse, error) {
	body, _ := json.Marshal(query)
	resp, err := c.doRequest(ctx, http.MethodPost, "/"+c.config.IndexName(kind)+"/_search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search", resp.StatusCode, respBody)
	}

	var out searchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// bulk 执行 _bulk 并检查逐条结果；refresh=wait_for 保证返回后可被检索到
func (c *Client) bulk(ctx context.Context, body io.Reader) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/_bulk?refresh=wait_for", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError("bulk", resp.StatusCode, respBody)
	}

	var out bulkResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("parse bulk response: %w", err)
	}
	if !out.Errors {
		return nil
	}

	var failures []string
	for _, item := range out.Items {
		for action, res := range item {
			// 删除不存在的文档返回 404，不视为失败
			if action == "delete" && res.Status == http.StatusNotFound {
				continue
			}
			if res.Error != nil {
				failures = append(failures, fmt.Sprintf("%s %s: %s: %s", action, res.ID, res.Error.Type, res.Error.Reason))
			}
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%d bulk item(s) failed: %s", len(failures), strings.Join(failures, "; "))
}

// statusError 4xx（429 除外）不可重试
func statusError(op string, status int, body []byte) error {
	err := fmt.Errorf("%s failed (%d): %s", op, status, string(body))
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

// doRequest 执行 HTTP 请求
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(path, "/_bulk") {
		req.Header.Set("Content-Type", "application/x-ndjson")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	return c.httpClient.Do(req)
}

package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	applog "pressindex/internal/platform/log"
)

var (
	// ErrEmptyQuery 查询文本为空
	ErrEmptyQuery = errors.New("query text is required")
	// ErrAllKindsFailed 所有记录类型的检索均失败
	ErrAllKindsFailed = errors.New("search failed for every record kind")
)

const (
	MatchKeyword  = "keyword"
	MatchSemantic = "semantic"
)

// QueryEngine 混合检索：关键词优先，无命中时回退语义近邻检索
type QueryEngine struct {
	client   SearchClient
	config   *Config
	embedder Embedder   // 可选：未配置时没有语义回退
	cache    QueryCache // 可选
}

// NewQueryEngine 创建检索引擎
func NewQueryEngine(client SearchClient, cfg *Config) *QueryEngine {
	return &QueryEngine{
		client: client,
		config: cfg,
	}
}

// SetEmbedder 设置 Embedder（启用语义回退）
func (e *QueryEngine) SetEmbedder(emb Embedder) {
	e.embedder = emb
}

// SetCache 设置检索缓存
func (e *QueryEngine) SetCache(c QueryCache) {
	e.cache = c
}

type kindOutcome struct {
	hits  []taggedHit
	err   error
	mode  string
	count int
}

type taggedHit struct {
	Hit
	kind      RecordKind
	matchType string
}

// Search 执行混合检索。单个类型失败按零命中处理，全部失败才返回错误。
func (e *QueryEngine) Search(ctx context.Context, q *Query) (*Result, error) {
	start := time.Now()

	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	normalized := &Query{Text: text, Kinds: kinds, Limit: limit}

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, normalized); ok {
			return cached, nil
		}
	}

	queryVector := sync.OnceValues(func() ([]float32, error) {
		vectors, err := e.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("expected 1 query vector, got %d", len(vectors))
		}
		return vectors[0], nil
	})

	outcomes := make([]kindOutcome, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			outcomes[i] = e.searchKind(gctx, kind, text, queryVector)
			return nil
		})
	}
	_ = g.Wait()

	var merged []taggedHit
	var errs []error
	for i, o := range outcomes {
		if o.err != nil {
			applog.Warn("[Query] Record kind failed, treating as zero hits", "kind", kinds[i], "error", o.err)
			errs = append(errs, o.err)
			continue
		}
		applog.Debug("[Query] Record kind searched", "kind", kinds[i], "mode", o.mode, "hits", o.count)
		merged = append(merged, o.hits...)
	}
	if len(errs) == len(kinds) {
		return nil, fmt.Errorf("%w: %w", ErrAllKindsFailed, errors.Join(errs...))
	}

	ranked := dedupByURL(rankHits(merged, text))
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := &Result{
		Results:   toResultItems(ranked),
		ElapsedMs: time.Since(start).Milliseconds(),
	}

	applog.Info("[Query] Search",
		"query", text,
		"kinds", len(kinds),
		"merged", len(merged),
		"returned", len(result.Results),
		"failed_kinds", len(errs),
		"elapsed_ms", result.ElapsedMs,
	)

	// 部分类型失败时不缓存，避免把降级结果固化
	if e.cache != nil && len(errs) == 0 {
		e.cache.Set(ctx, normalized, result)
	}
	return result, nil
}

func (e *QueryEngine) searchKind(ctx context.Context, kind RecordKind, text string, queryVector func() ([]float32, error)) kindOutcome {
	keywordLimit := e.config.KeywordLimit
	if keywordLimit <= 0 {
		keywordLimit = 10
	}

	hits, kwErr := e.client.SearchKeyword(ctx, kind, text, keywordLimit)
	if kwErr == nil && len(hits) > 0 {
		return kindOutcome{hits: tag(hits, kind, MatchKeyword), mode: MatchKeyword, count: len(hits)}
	}
	if kwErr != nil {
		applog.Warn("[Query] Keyword search failed", "kind", kind, "error", kwErr)
	}

	if e.embedder == nil {
		if kwErr != nil {
			return kindOutcome{err: fmt.Errorf("keyword search %s: %w", kind, kwErr)}
		}
		return kindOutcome{mode: MatchKeyword}
	}

	vector, err := queryVector()
	if err != nil {
		return kindOutcome{err: errors.Join(kwErr, fmt.Errorf("embed query: %w", err))}
	}
	hits, err = e.client.SearchNearest(ctx, kind, NearestRequest{
		Vector:      vector,
		Limit:       keywordLimit,
		MaxDistance: e.config.SemanticMaxDistance,
	})
	if err != nil {
		return kindOutcome{err: errors.Join(kwErr, fmt.Errorf("semantic search %s: %w", kind, err))}
	}
	return kindOutcome{hits: tag(hits, kind, MatchSemantic), mode: MatchSemantic, count: len(hits)}
}

func tag(hits []Hit, kind RecordKind, matchType string) []taggedHit {
	out := make([]taggedHit, len(hits))
	for i, h := range hits {
		if h.Kind == "" {
			h.Kind = kind
		}
		out[i] = taggedHit{Hit: h, kind: kind, matchType: matchType}
	}
	return out
}

// rankHits 排序：包含查询原文（忽略大小写）的命中优先；组内按距离升序，缺失距离视为最差。
func rankHits(hits []taggedHit, query string) []taggedHit {
	needle := strings.ToLower(query)
	var exact, rest []taggedHit
	for _, h := range hits {
		if strings.Contains(strings.ToLower(h.Title), needle) || strings.Contains(strings.ToLower(h.Content), needle) {
			exact = append(exact, h)
		} else {
			rest = append(rest, h)
		}
	}
	sortByDistance(exact)
	sortByDistance(rest)
	return append(exact, rest...)
}

func sortByDistance(hits []taggedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return distanceOf(hits[i]) < distanceOf(hits[j])
	})
}

func distanceOf(h taggedHit) float64 {
	if h.Distance == nil {
		return math.Inf(1)
	}
	return *h.Distance
}

// dedupByURL 按规范 URL 去重（无 URL 时按 Fragment ID），保留首次出现顺序
func dedupByURL(hits []taggedHit) []taggedHit {
	seen := make(map[string]bool, len(hits))
	out := hits[:0:0]
	for _, h := range hits {
		key := h.URL
		if key == "" {
			key = "id:" + h.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

func toResultItems(hits []taggedHit) []ResultItem {
	items := make([]ResultItem, len(hits))
	for i, h := range hits {
		items[i] = ResultItem{
			Kind:          h.kind,
			ID:            h.ID,
			DocumentID:    h.DocumentID,
			Part:          h.Part,
			SubItemID:     h.SubItemID,
			Title:         h.Title,
			DocumentTitle: h.DocumentTitle,
			Content:       h.Content,
			Date:          h.Date,
			Authors:       h.Authors,
			Tags:          h.Tags,
			URL:           h.URL,
			Score:         h.Score,
			Distance:      h.Distance,
			MatchType:     h.matchType,
		}
	}
	return items
}

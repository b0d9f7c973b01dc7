package index

import (
	"context"
	"fmt"
	"time"

	applog "pressindex/internal/platform/log"
	"pressindex/internal/platform/retry"
)

// Writer 索引写入：按文档删除旧分块、按 ID 覆盖写入、整类清空
type Writer struct {
	client   SearchClient
	policy   retry.Policy
	pageSize int
	embedder Embedder   // 可选：写入前生成向量
	cache    QueryCache // 可选：写入后清缓存
}

// NewWriter 创建 Writer
func NewWriter(client SearchClient, cfg *Config, policy retry.Policy) *Writer {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Writer{
		client:   client,
		policy:   policy,
		pageSize: pageSize,
	}
}

// SetEmbedder 设置 Embedder
func (w *Writer) SetEmbedder(e Embedder) {
	w.embedder = e
}

// SetCache 设置检索缓存
func (w *Writer) SetCache(c QueryCache) {
	w.cache = c
}

// DeleteFragmentsOf 删除某文档的全部分块，返回删除数量。无匹配时为 no-op。
func (w *Writer) DeleteFragmentsOf(ctx context.Context, kind RecordKind, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("delete fragments: document id is empty")
	}

	ids, err := w.collectIDs(ctx, kind, map[string]string{"document_id": documentID})
	if err != nil {
		return 0, fmt.Errorf("list fragments of %s: %w", documentID, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := w.deleteIDs(ctx, kind, ids); err != nil {
		return 0, fmt.Errorf("delete fragments of %s: %w", documentID, err)
	}

	applog.Info("[Index] Fragments deleted", "kind", kind, "document_id", documentID, "count", len(ids))
	w.invalidate(ctx)
	return len(ids), nil
}

// WriteFragments 按 Fragment.ID 覆盖写入（upsert），重复执行结果一致
func (w *Writer) WriteFragments(ctx context.Context, kind RecordKind, frags []Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	start := time.Now()

	w.embed(ctx, frags)

	for i := 0; i < len(frags); i += w.pageSize {
		end := i + w.pageSize
		if end > len(frags) {
			end = len(frags)
		}
		batch := frags[i:end]
		err := retry.Do(ctx, w.policy, "upsert fragments", func(ctx context.Context) error {
			return w.client.UpsertFragments(ctx, kind, batch)
		})
		if err != nil {
			return fmt.Errorf("write fragments %d-%d of %s: %w", i, end, frags[0].DocumentID, err)
		}
	}

	applog.Info("[Index] Fragments written",
		"kind", kind,
		"document_id", frags[0].DocumentID,
		"count", len(frags),
		"has_vectors", w.embedder != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	w.invalidate(ctx)
	return nil
}

// ReplaceDocument 先删除文档全部旧分块，再写入新分块
func (w *Writer) ReplaceDocument(ctx context.Context, kind RecordKind, documentID string, frags []Fragment) (deleted int, err error) {
	deleted, err = w.DeleteFragmentsOf(ctx, kind, documentID)
	if err != nil {
		return 0, err
	}
	if err := w.WriteFragments(ctx, kind, frags); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// PurgeCollection 分页清空某记录类型的全部对象，仅用于全量重建
func (w *Writer) PurgeCollection(ctx context.Context, kind RecordKind) (int, error) {
	total := 0
	after := ""
	for {
		page, err := retry.DoValue(ctx, w.policy, "list fragments", func(ctx context.Context) ([]string, error) {
			return w.client.ListIDs(ctx, kind, nil, after, w.pageSize)
		})
		if err != nil {
			return total, fmt.Errorf("purge %s: list page after %q: %w", kind, after, err)
		}
		if len(page) == 0 {
			break
		}
		if err := w.deleteIDs(ctx, kind, page); err != nil {
			return total, fmt.Errorf("purge %s: %w", kind, err)
		}
		total += len(page)
		after = page[len(page)-1]
		applog.Debug("[Index] Purge page deleted", "kind", kind, "count", len(page), "total", total)
		if len(page) < w.pageSize {
			break
		}
	}

	applog.Info("[Index] Collection purged", "kind", kind, "deleted", total)
	w.invalidate(ctx)
	return total, nil
}

// FragmentIDsOf 返回文档当前在索引中的分块 ID（用于校验）
func (w *Writer) FragmentIDsOf(ctx context.Context, kind RecordKind, documentID string) ([]string, error) {
	return w.collectIDs(ctx, kind, map[string]string{"document_id": documentID})
}

func (w *Writer) collectIDs(ctx context.Context, kind RecordKind, filter map[string]string) ([]string, error) {
	var ids []string
	after := ""
	for {
		page, err := retry.DoValue(ctx, w.policy, "list fragments", func(ctx context.Context) ([]string, error) {
			return w.client.ListIDs(ctx, kind, filter, after, w.pageSize)
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)
		if len(page) < w.pageSize {
			return ids, nil
		}
		after = page[len(page)-1]
	}
}

func (w *Writer) deleteIDs(ctx context.Context, kind RecordKind, ids []string) error {
	for i := 0; i < len(ids); i += w.pageSize {
		end := i + w.pageSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		err := retry.Do(ctx, w.policy, "delete fragments", func(ctx context.Context) error {
			return w.client.DeleteByIDs(ctx, kind, batch)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// embed 写入前生成向量；失败时不带向量写入
func (w *Writer) embed(ctx context.Context, frags []Fragment) {
	if w.embedder == nil {
		return
	}
	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Title + "\n" + f.Content
	}
	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		applog.Warn("[Index] Embedding failed, writing without vectors", "error", err)
		return
	}
	if len(vectors) != len(frags) {
		applog.Warn("[Index] Embedding count mismatch, writing without vectors",
			"expected", len(frags), "got", len(vectors))
		return
	}
	for i := range frags {
		frags[i].Vector = vectors[i]
	}
}

func (w *Writer) invalidate(ctx context.Context) {
	if w.cache != nil {
		w.cache.InvalidateAll(ctx)
	}
}

package index

import "context"

// SearchClient 外部索引服务所需的操作（由 db/opensearch 实现）
type SearchClient interface {
	Ping(ctx context.Context) error
	EnsureIndex(ctx context.Context, kind RecordKind, dims int) error
	// UpsertFragments 按 Fragment.ID 创建或覆盖
	UpsertFragments(ctx context.Context, kind RecordKind, frags []Fragment) error
	DeleteByIDs(ctx context.Context, kind RecordKind, ids []string) error
	// ListIDs 按 term 过滤分页列出 id；after 为上一页最后一个 id，返回空切片表示结束
	ListIDs(ctx context.Context, kind RecordKind, filter map[string]string, after string, size int) ([]string, error)
	SearchKeyword(ctx context.Context, kind RecordKind, query string, limit int) ([]Hit, error)
	SearchNearest(ctx context.Context, kind RecordKind, req NearestRequest) ([]Hit, error)
}

// QueryCache 检索结果缓存（由 db/redis 实现）
type QueryCache interface {
	Get(ctx context.Context, q *Query) (*Result, bool)
	Set(ctx context.Context, q *Query, result *Result)
	InvalidateAll(ctx context.Context)
}

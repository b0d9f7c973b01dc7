package content

import (
	"context"
	"errors"
)

// ErrNotFound 文档不存在，或未处于 published 状态（读取时带 published 过滤）
var ErrNotFound = errors.New("content: document not found or not published")

// Fetcher 内容库读取接口（外部协作方边界）
type Fetcher interface {
	// Get 读取单个已发布文档；不存在或未发布时返回 ErrNotFound
	Get(ctx context.Context, collection Collection, id string) (*Document, error)
	// ListPublished 分页读取已发布文档，返回空切片表示已到末页
	ListPublished(ctx context.Context, collection Collection, limit, offset int) ([]Document, error)
}

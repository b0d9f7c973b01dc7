package content

import "time"

// Collection 内容库中的集合名称
type Collection string

// Status 文档生命周期状态
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Author 作者（关系字段，展开一层）
type Author struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// NewsItem 周报中的单条新闻
type NewsItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"` // 富文本
	URL   string `json:"url,omitempty"`
}

// Document 内容库中的源文档（文章或周报）
type Document struct {
	ID          string     `json:"id"`
	Collection  Collection `json:"collection"`
	Status      Status     `json:"status"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`  // 文章正文（富文本）
	Items       []NewsItem `json:"items,omitempty"` // 周报条目
	Authors     []Author   `json:"authors,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	PublishedAt time.Time  `json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

// IsPublished 只有已发布文档允许出现在索引中
func (d *Document) IsPublished() bool {
	return d != nil && d.Status == StatusPublished
}

// AuthorNames 返回作者姓名列表（跳过空名）
func (d *Document) AuthorNames() []string {
	if d == nil || len(d.Authors) == 0 {
		return nil
	}
	names := make([]string, 0, len(d.Authors))
	for _, a := range d.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// Date 返回展示用日期：优先发布时间，其次更新时间
func (d *Document) Date() time.Time {
	if !d.PublishedAt.IsZero() {
		return d.PublishedAt
	}
	return d.UpdatedAt
}

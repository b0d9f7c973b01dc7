package index

import "time"

// RecordKind 索引中的记录类型，每种类型对应一个 OpenSearch 索引
type RecordKind string

const (
	KindArticle  RecordKind = "article_fragment"
	KindNewsItem RecordKind = "news_item_fragment"
)

// AllKinds 查询默认覆盖的记录类型
var AllKinds = []RecordKind{KindArticle, KindNewsItem}

// ParseRecordKind 解析记录类型（接受 "article"/"news" 简写）
func ParseRecordKind(s string) (RecordKind, bool) {
	switch s {
	case string(KindArticle), "article", "articles":
		return KindArticle, true
	case string(KindNewsItem), "news", "news_item", "news_items":
		return KindNewsItem, true
	}
	return "", false
}

// Fragment 写入索引的最小单元
type Fragment struct {
	ID            string     `json:"fragment_id"`
	Kind          RecordKind `json:"kind"`
	DocumentID    string     `json:"document_id"`
	Part          int        `json:"part"`
	SubItemID     string     `json:"sub_item_id,omitempty"`
	Title         string     `json:"title"`
	DocumentTitle string     `json:"document_title,omitempty"`
	Content       string     `json:"content"`
	Date          time.Time  `json:"date,omitempty"`
	Authors       []string   `json:"authors,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Slug          string     `json:"slug,omitempty"`
	URL           string     `json:"url,omitempty"`
	Vector        []float32  `json:"vector,omitempty"`
}

// Hit 单条检索命中
type Hit struct {
	Fragment
	Score    float64  `json:"score"`
	Distance *float64 `json:"distance,omitempty"` // 仅语义检索提供，越小越相关
}

// NearestRequest 向量近邻检索请求
type NearestRequest struct {
	Vector      []float32
	Limit       int
	MaxDistance float64 // <=0 表示不限制
}

// Query 混合检索请求
type Query struct {
	Text  string       `json:"query"`
	Kinds []RecordKind `json:"kinds,omitempty"`
	Limit int          `json:"limit,omitempty"`
}

// Result 混合检索结果
type Result struct {
	Results   []ResultItem `json:"results"`
	ElapsedMs int64        `json:"elapsed_ms"`
}

// ResultItem 对外返回的结果（附带记录类型标签）
type ResultItem struct {
	Kind          RecordKind `json:"kind"`
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	Part          int        `json:"part"`
	SubItemID     string     `json:"sub_item_id,omitempty"`
	Title         string     `json:"title"`
	DocumentTitle string     `json:"document_title,omitempty"`
	Content       string     `json:"content"`
	Date          time.Time  `json:"date,omitempty"`
	Authors       []string   `json:"authors,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	URL           string     `json:"url,omitempty"`
	Score         float64    `json:"score"`
	Distance      *float64   `json:"distance,omitempty"`
	MatchType     string     `json:"match_type"` // keyword | semantic
}

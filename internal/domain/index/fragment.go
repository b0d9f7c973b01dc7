package index

import (
	"fmt"
	"net/url"
	"strings"

	"pressindex/internal/domain/content"
)

// Fragmenter 源文档 → Fragment 列表（归一化、分块、派生 ID、冗余元数据）
type Fragmenter struct {
	chunker     *Chunker
	siteBaseURL string
}

// NewFragmenter 创建 Fragmenter
func NewFragmenter(cfg *Config) *Fragmenter {
	return &Fragmenter{
		chunker:     NewChunker(cfg.MaxChunkBytes),
		siteBaseURL: strings.TrimRight(cfg.SiteBaseURL, "/"),
	}
}

// Fragments 生成文档在索引中应有的全部 Fragment。
// 未发布的文档返回空列表。
func (f *Fragmenter) Fragments(kind RecordKind, doc *content.Document) ([]Fragment, error) {
	if doc == nil {
		return nil, fmt.Errorf("fragments: nil document")
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("fragments: document id is empty")
	}
	if !doc.IsPublished() {
		return nil, nil
	}

	switch kind {
	case KindArticle:
		return f.articleFragments(doc), nil
	case KindNewsItem:
		return f.newsFragments(doc), nil
	default:
		return nil, fmt.Errorf("fragments: unknown record kind %q", kind)
	}
}

func (f *Fragmenter) articleFragments(doc *content.Document) []Fragment {
	text := NormalizeHTML(doc.Body)
	parts := f.chunker.Split(text)

	frags := make([]Fragment, 0, len(parts))
	for i, part := range parts {
		frags = append(frags, Fragment{
			ID:            FragmentID(ArticleKey(doc.ID, i)),
			Kind:          KindArticle,
			DocumentID:    doc.ID,
			Part:          i,
			Title:         doc.Title,
			DocumentTitle: doc.Title,
			Content:       part,
			Date:          doc.Date(),
			Authors:       doc.AuthorNames(),
			Tags:          doc.Tags,
			Slug:          doc.Slug,
			URL:           f.articleURL(doc),
		})
	}
	return frags
}

func (f *Fragmenter) newsFragments(doc *content.Document) []Fragment {
	frags := make([]Fragment, 0, len(doc.Items))
	for i, item := range doc.Items {
		if item.ID == "" {
			continue
		}
		text := strings.TrimSpace(NormalizeHTML(item.Body))
		if text == "" {
			text = item.Title
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		frags = append(frags, Fragment{
			ID:            FragmentID(NewsItemKey(doc.ID, item.ID)),
			Kind:          KindNewsItem,
			DocumentID:    doc.ID,
			Part:          i,
			SubItemID:     item.ID,
			Title:         item.Title,
			DocumentTitle: doc.Title,
			Content:       text,
			Date:          doc.Date(),
			Authors:       doc.AuthorNames(),
			Tags:          doc.Tags,
			Slug:          doc.Slug,
			URL:           f.newsItemURL(doc, item),
		})
	}
	return frags
}

func (f *Fragmenter) articleURL(doc *content.Document) string {
	key := doc.Slug
	if key == "" {
		key = doc.ID
	}
	return f.siteBaseURL + "/articles/" + url.PathEscape(key)
}

func (f *Fragmenter) newsItemURL(doc *content.Document, item content.NewsItem) string {
	if item.URL != "" {
		return item.URL
	}
	key := doc.Slug
	if key == "" {
		key = doc.ID
	}
	return f.siteBaseURL + "/news/" + url.PathEscape(key) + "#item-" + url.PathEscape(item.ID)
}

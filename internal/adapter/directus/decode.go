package directus

import (
	"encoding/json"
	"strings"
	"time"

	"pressindex/internal/domain/content"
)

// flexID Directus 主键可能是整数或字符串
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// flexTags 标签字段可能是 JSON 数组或逗号分隔字符串（csv 类型）
type flexTags []string

func (f *flexTags) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = cleanTags(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = cleanTags(strings.Split(s, ","))
	return nil
}

func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// flexTime Directus datetime 可能不带时区
type flexTime time.Time

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		*f = flexTime{}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime(t.UTC())
			return nil
		}
	}
	// 无法解析的日期不阻断同步
	*f = flexTime{}
	return nil
}

type junctionAuthor struct {
	Author *struct {
		ID   flexID `json:"id"`
		Name string `json:"name"`
	} `json:"authors_id"`
}

type newsItem struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

type item struct {
	ID            flexID           `json:"id"`
	Status        string           `json:"status"`
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	Slug          string           `json:"slug"`
	Tags          flexTags         `json:"tags"`
	DatePublished flexTime         `json:"date_published"`
	DateUpdated   flexTime         `json:"date_updated"`
	Authors       []junctionAuthor `json:"authors"`
	Items         []newsItem       `json:"items"`
}

func (it item) toDocument(collection content.Collection) content.Document {
	doc := content.Document{
		ID:          string(it.ID),
		Collection:  collection,
		Status:      content.Status(it.Status),
		Title:       it.Title,
		Body:        it.Body,
		Slug:        it.Slug,
		Tags:        []string(it.Tags),
		PublishedAt: time.Time(it.DatePublished),
		UpdatedAt:   time.Time(it.DateUpdated),
	}
	for _, a := range it.Authors {
		if a.Author == nil {
			continue
		}
		doc.Authors = append(doc.Authors, content.Author{ID: string(a.Author.ID), Name: a.Author.Name})
	}
	for _, n := range it.Items {
		doc.Items = append(doc.Items, content.NewsItem{
			ID:    string(n.ID),
			Title: n.Title,
			Body:  n.Body,
			URL:   n.URL,
		})
	}
	return doc
}

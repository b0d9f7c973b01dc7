package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
)

var (
	// ErrMalformedEvent webhook 负载无法解析（丢弃，不触发上游重试）
	ErrMalformedEvent = errors.New("malformed sync event")
	// ErrUnknownCollection 集合未登记（忽略）
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrDocumentBusy 同一文档正在被其他进程同步
	ErrDocumentBusy = errors.New("document is being synced elsewhere")
)

// EventKind 文档生命周期动作
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ParseEventKind 解析生命周期动作
func ParseEventKind(s string) (EventKind, bool) {
	switch EventKind(s) {
	case EventCreate, EventUpdate, EventDelete:
		return EventKind(s), true
	}
	return "", false
}

// Event 解析后的同步事件
type Event struct {
	Collection content.Collection `json:"collection"`
	Kind       EventKind          `json:"kind"`
	DocumentID string             `json:"document_id"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s.items.%s#%s", e.Collection, e.Kind, e.DocumentID)
}

// Payload webhook 原始负载
type Payload struct {
	ID     json.RawMessage `json:"id"`
	Action string          `json:"action"`
}

// ParseAction 解析 "{collection}.items.{create|update|delete}"
func ParseAction(action string) (content.Collection, EventKind, error) {
	parts := strings.Split(action, ".")
	if len(parts) != 3 || parts[1] != "items" {
		return "", "", fmt.Errorf("%w: action %q is not {collection}.items.{event}", ErrMalformedEvent, action)
	}
	collection := strings.TrimSpace(parts[0])
	if collection == "" {
		return "", "", fmt.Errorf("%w: action %q has empty collection", ErrMalformedEvent, action)
	}
	kind, ok := ParseEventKind(parts[2])
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported event kind %q", ErrMalformedEvent, parts[2])
	}
	return content.Collection(collection), kind, nil
}

// ParseEvent 解析 webhook 负载 {id, action}。id 允许字符串或数字。
func ParseEvent(body []byte) (Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	id, err := parseID(p.ID)
	if err != nil {
		return Event{}, err
	}
	collection, kind, err := ParseAction(p.Action)
	if err != nil {
		return Event{}, err
	}
	return Event{Collection: collection, Kind: kind, DocumentID: id}, nil
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("%w: empty id", ErrMalformedEvent)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: id must be a string or number", ErrMalformedEvent)
}

// Routes 集合 → 记录类型
type Routes map[content.Collection]index.RecordKind

// DefaultRoutes 默认登记的集合
func DefaultRoutes() Routes {
	return Routes{
		"articles":    index.KindArticle,
		"weekly_news": index.KindNewsItem,
	}
}

// KindOf 返回集合对应的记录类型
func (r Routes) KindOf(c content.Collection) (index.RecordKind, bool) {
	kind, ok := r[c]
	return kind, ok
}

// CollectionOf 反查记录类型对应的集合
func (r Routes) CollectionOf(kind index.RecordKind) (content.Collection, bool) {
	for c, k := range r {
		if k == kind {
			return c, true
		}
	}
	return "", false
}

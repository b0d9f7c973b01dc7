// Package indextest 提供内存版 SearchClient，供依赖索引的包在测试中使用。
package indextest

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"pressindex/internal/domain/index"
)

// MemoryClient 内存索引。关键词检索要求所有词都出现（与 operator:and 一致），
// 近邻检索按余弦距离排序。
type MemoryClient struct {
	mu      sync.Mutex
	objects map[index.RecordKind]map[string]index.Fragment

	// 注入错误
	KeywordErr map[index.RecordKind]error
	NearestErr map[index.RecordKind]error
	UpsertErr  error
	DeleteErr  error

	Upserts int
	Deletes int
}

var _ index.SearchClient = (*MemoryClient)(nil)

// NewMemoryClient 创建空的内存索引
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		objects:    make(map[index.RecordKind]map[string]index.Fragment),
		KeywordErr: make(map[index.RecordKind]error),
		NearestErr: make(map[index.RecordKind]error),
	}
}

func (m *MemoryClient) Ping(context.Context) error { return nil }

func (m *MemoryClient) EnsureIndex(_ context.Context, kind index.RecordKind, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(kind)
	return nil
}

func (m *MemoryClient) UpsertFragments(_ context.Context, kind index.RecordKind, frags []index.Fragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	b := m.bucket(kind)
	for _, f := range frags {
		b[f.ID] = f
	}
	m.Upserts++
	return nil
}

func (m *MemoryClient) DeleteByIDs(_ context.Context, kind index.RecordKind, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	b := m.bucket(kind)
	for _, id := range ids {
		delete(b, id)
	}
	m.Deletes++
	return nil
}

func (m *MemoryClient) ListIDs(_ context.Context, kind index.RecordKind, filter map[string]string, after string, size int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, f := range m.bucket(kind) {
		if docID, ok := filter["document_id"]; ok && f.DocumentID != docID {
			continue
		}
		if after != "" && id <= after {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if size > 0 && len(ids) > size {
		ids = ids[:size]
	}
	return ids, nil
}

func (m *MemoryClient) SearchKeyword(_ context.Context, kind index.RecordKind, query string, limit int) ([]index.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.KeywordErr[kind]; err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []index.Hit
	for _, f := range m.sorted(kind) {
		haystack := strings.ToLower(f.Title + " " + f.DocumentTitle + " " + f.Content)
		matched := len(terms) > 0
		for _, t := range terms {
			if !strings.Contains(haystack, t) {
				matched = false
				break
			}
		}
		if matched {
			hits = append(hits, index.Hit{Fragment: f, Score: 1})
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryClient) SearchNearest(_ context.Context, kind index.RecordKind, req index.NearestRequest) ([]index.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.NearestErr[kind]; err != nil {
		return nil, err
	}

	var hits []index.Hit
	for _, f := range m.sorted(kind) {
		if len(f.Vector) == 0 {
			continue
		}
		d := cosineDistance(req.Vector, f.Vector)
		if req.MaxDistance > 0 && d > req.MaxDistance {
			continue
		}
		hits = append(hits, index.Hit{Fragment: f, Score: 1 - d/2, Distance: &d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return *hits[i].Distance < *hits[j].Distance })
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Fragments 返回某类型的全部对象（按 ID 排序）
func (m *MemoryClient) Fragments(kind index.RecordKind) []index.Fragment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(kind)
}

// Put 直接写入对象，绕过 Writer
func (m *MemoryClient) Put(frags ...index.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range frags {
		m.bucket(f.Kind)[f.ID] = f
	}
}

func (m *MemoryClient) bucket(kind index.RecordKind) map[string]index.Fragment {
	b, ok := m.objects[kind]
	if !ok {
		b = make(map[string]index.Fragment)
		m.objects[kind] = b
	}
	return b
}

func (m *MemoryClient) sorted(kind index.RecordKind) []index.Fragment {
	b := m.bucket(kind)
	out := make([]index.Fragment, 0, len(b))
	for _, f := range b {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// StaticEmbedder 按文本查表返回向量，未登记的文本返回零向量
type StaticEmbedder struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Err     error
	Calls   int
	Dim     int
}

func (e *StaticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.Vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = make([]float32, e.Dims())
	}
	return out, nil
}

func (e *StaticEmbedder) Dims() int {
	if e.Dim <= 0 {
		return 3
	}
	return e.Dim
}

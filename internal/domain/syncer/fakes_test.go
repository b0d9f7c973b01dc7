package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
	"pressindex/internal/domain/index/indextest"
	"pressindex/internal/platform/retry"
)

type fakeFetcher struct {
	mu      sync.Mutex
	docs    map[string]*content.Document // collection/id
	getErr  error
	listErr error
	list    map[content.Collection][]content.Document
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		docs: make(map[string]*content.Document),
		list: make(map[content.Collection][]content.Document),
	}
}

func (f *fakeFetcher) put(doc content.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := doc
	f.docs[string(doc.Collection)+"/"+doc.ID] = &d
}

func (f *fakeFetcher) Get(_ context.Context, collection content.Collection, id string) (*content.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.docs[string(collection)+"/"+id]
	if !ok || !d.IsPublished() {
		return nil, content.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeFetcher) ListPublished(_ context.Context, collection content.Collection, limit, offset int) ([]content.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil && offset > 0 {
		return nil, f.listErr
	}
	docs := f.list[collection]
	if offset >= len(docs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return append([]content.Document(nil), docs[offset:end]...), nil
}

// articleBody 生成 n 个 40 字节句子；配合 64 字节分块上限，每句一个分块
func articleBody(n int) string {
	var b strings.Builder
	b.WriteString("<p>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Digital skills training sentences %04d. ", i)
	}
	b.WriteString("</p>")
	return b.String()
}

func article(id string, status content.Status, sentences int) content.Document {
	return content.Document{
		ID:         id,
		Collection: "articles",
		Status:     status,
		Title:      "Article " + id,
		Body:       articleBody(sentences),
		Slug:       "article-" + id,
	}
}

type pipeline struct {
	client     *indextest.MemoryClient
	fetcher    *fakeFetcher
	fragmenter *index.Fragmenter
	writer     *index.Writer
}

func newPipeline() *pipeline {
	cfg := index.DefaultConfig()
	cfg.MaxChunkBytes = 64
	cfg.PageSize = 2
	client := indextest.NewMemoryClient()
	return &pipeline{
		client:     client,
		fetcher:    newFakeFetcher(),
		fragmenter: index.NewFragmenter(cfg),
		writer:     index.NewWriter(client, cfg, retry.NoRetry()),
	}
}

func (p *pipeline) orchestrator() *Orchestrator {
	return NewOrchestrator(p.fetcher, p.fragmenter, p.writer, nil)
}

func (p *pipeline) importer() *Importer {
	return NewImporter(p.fetcher, p.fragmenter, p.writer, nil)
}

func (p *pipeline) fragmentsOf(kind index.RecordKind, docID string) []index.Fragment {
	var out []index.Fragment
	for _, f := range p.client.Fragments(kind) {
		if f.DocumentID == docID {
			out = append(out, f)
		}
	}
	return out
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string // key → token
	err      error
	seq      int
	released []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("tok-%d", l.seq)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return nil
	}
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type memoryLedger struct {
	mu       sync.Mutex
	records  []*EventRecord
	replayed []string
}

func (l *memoryLedger) Begin(_ context.Context, ev Event, replayOf string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := fmt.Sprintf("rec-%d", len(l.records)+1)
	l.records = append(l.records, &EventRecord{ID: id, Event: ev, Status: StatusReceived, ReplayOf: replayOf})
	return id, nil
}

func (l *memoryLedger) Finish(_ context.Context, id string, outcome *Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == id {
			r.Status = outcome.Status
			r.Deleted = outcome.Deleted
			r.Written = outcome.Written
			r.Error = outcome.Reason
			return nil
		}
	}
	return errors.New("record not found")
}

func (l *memoryLedger) ListFailed(_ context.Context, limit int) ([]*EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*EventRecord
	for _, r := range l.records {
		if r.Status == StatusFailed && !r.Replayed && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memoryLedger) ListRecent(_ context.Context, status OutcomeStatus, limit int) ([]*EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*EventRecord
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		if status == "" || l.records[i].Status == status {
			out = append(out, l.records[i])
		}
	}
	return out, nil
}

func (l *memoryLedger) MarkReplayed(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == id {
			r.Replayed = true
		}
	}
	l.replayed = append(l.replayed, id)
	return nil
}

func (l *memoryLedger) byID(id string) *EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

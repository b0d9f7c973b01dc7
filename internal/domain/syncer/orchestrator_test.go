package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
)

func updateEvent(id string) Event {
	return Event{Collection: "articles", Kind: EventUpdate, DocumentID: id}
}

func TestOrchestrator_CreatePublished(t *testing.T) {
	p := newPipeline()
	p.fetcher.put(article("28180", content.StatusPublished, 3))

	out, err := p.orchestrator().Handle(context.Background(), Event{Collection: "articles", Kind: EventCreate, DocumentID: "28180"})
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 3, out.Written)
	assert.Len(t, p.fragmentsOf(index.KindArticle, "28180"), 3)
}

func TestOrchestrator_CreateUnpublishedIgnored(t *testing.T) {
	p := newPipeline()
	p.fetcher.put(article("5", content.StatusDraft, 2))

	out, err := p.orchestrator().Handle(context.Background(), Event{Collection: "articles", Kind: EventCreate, DocumentID: "5"})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, out.Status)
	assert.Empty(t, p.client.Fragments(index.KindArticle))
}

func TestOrchestrator_RedeliveredCreateAfterShrink(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	o := p.orchestrator()
	create := Event{Collection: "articles", Kind: EventCreate, DocumentID: "28180"}

	p.fetcher.put(article("28180", content.StatusPublished, 3))
	_, err := o.Handle(ctx, create)
	require.NoError(t, err)
	require.Len(t, p.fragmentsOf(index.KindArticle, "28180"), 3)

	p.fetcher.put(article("28180", content.StatusPublished, 2))
	out, err := o.Handle(ctx, create)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 3, out.Deleted)
	assert.Equal(t, 2, out.Written)

	frags := p.fragmentsOf(index.KindArticle, "28180")
	require.Len(t, frags, 2)
	assert.NotContains(t, []string{frags[0].ID, frags[1].ID}, index.FragmentID(index.ArticleKey("28180", 2)))
}

func TestOrchestrator_UpdateShrinksDocument(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	o := p.orchestrator()

	p.fetcher.put(article("28180", content.StatusPublished, 3))
	_, err := o.Handle(ctx, updateEvent("28180"))
	require.NoError(t, err)
	require.Len(t, p.fragmentsOf(index.KindArticle, "28180"), 3)

	p.fetcher.put(article("28180", content.StatusPublished, 2))
	out, err := o.Handle(ctx, updateEvent("28180"))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Deleted)
	assert.Equal(t, 2, out.Written)

	frags := p.fragmentsOf(index.KindArticle, "28180")
	require.Len(t, frags, 2)
	ids := []string{frags[0].ID, frags[1].ID}
	assert.NotContains(t, ids, index.FragmentID(index.ArticleKey("28180", 2)))
	assert.ElementsMatch(t, []string{
		index.FragmentID(index.ArticleKey("28180", 0)),
		index.FragmentID(index.ArticleKey("28180", 1)),
	}, ids)
}

func TestOrchestrator_UpdateUnpublishedRemovesFragments(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	o := p.orchestrator()

	p.fetcher.put(article("9", content.StatusPublished, 2))
	_, err := o.Handle(ctx, updateEvent("9"))
	require.NoError(t, err)

	p.fetcher.put(article("9", content.StatusArchived, 2))
	out, err := o.Handle(ctx, updateEvent("9"))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 2, out.Deleted)
	assert.Zero(t, out.Written)
	assert.Empty(t, p.fragmentsOf(index.KindArticle, "9"))
}

func TestOrchestrator_Delete(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	o := p.orchestrator()

	p.fetcher.put(article("28180", content.StatusPublished, 3))
	p.fetcher.put(article("1", content.StatusPublished, 1))
	_, err := o.Handle(ctx, updateEvent("28180"))
	require.NoError(t, err)
	_, err = o.Handle(ctx, updateEvent("1"))
	require.NoError(t, err)

	out, err := o.Handle(ctx, Event{Collection: "articles", Kind: EventDelete, DocumentID: "28180"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Deleted)
	assert.Empty(t, p.fragmentsOf(index.KindArticle, "28180"))
	assert.Len(t, p.fragmentsOf(index.KindArticle, "1"), 1)

	// 重复删除为 no-op
	out, err = o.Handle(ctx, Event{Collection: "articles", Kind: EventDelete, DocumentID: "28180"})
	require.NoError(t, err)
	assert.Zero(t, out.Deleted)
}

func TestOrchestrator_UpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	o := p.orchestrator()
	p.fetcher.put(article("3", content.StatusPublished, 3))

	_, err := o.Handle(ctx, updateEvent("3"))
	require.NoError(t, err)
	first := p.fragmentsOf(index.KindArticle, "3")

	_, err = o.Handle(ctx, updateEvent("3"))
	require.NoError(t, err)
	assert.Equal(t, first, p.fragmentsOf(index.KindArticle, "3"))
}

func TestOrchestrator_FetchFailureLeavesIndexIntact(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	o := p.orchestrator()

	p.fetcher.put(article("28180", content.StatusPublished, 3))
	_, err := o.Handle(ctx, updateEvent("28180"))
	require.NoError(t, err)

	p.fetcher.getErr = errors.New("connection refused")
	out, err := o.Handle(ctx, updateEvent("28180"))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "connection refused")
	assert.Len(t, p.fragmentsOf(index.KindArticle, "28180"), 3)
}

func TestOrchestrator_IgnoredEvents(t *testing.T) {
	p := newPipeline()
	o := p.orchestrator()

	t.Run("unknown collection", func(t *testing.T) {
		out, err := o.Handle(context.Background(), Event{Collection: "podcasts", Kind: EventUpdate, DocumentID: "1"})
		require.NoError(t, err)
		assert.Equal(t, StatusIgnored, out.Status)
		assert.Equal(t, ErrUnknownCollection.Error(), out.Reason)
	})

	t.Run("malformed payload", func(t *testing.T) {
		out, err := o.HandlePayload(context.Background(), []byte(`{"id":"1","action":"nonsense"}`))
		require.NoError(t, err)
		assert.Equal(t, StatusIgnored, out.Status)
	})
}

func TestOrchestrator_NewsItems(t *testing.T) {
	p := newPipeline()
	p.fetcher.put(content.Document{
		ID:         "77",
		Collection: "weekly_news",
		Status:     content.StatusPublished,
		Title:      "Weekly 12",
		Items: []content.NewsItem{
			{ID: "501", Title: "Budget approved", Body: "<p>Approved.</p>"},
			{ID: "502", Title: "Library opens"},
		},
	})

	out, err := p.orchestrator().HandlePayload(context.Background(), []byte(`{"id":77,"action":"weekly_news.items.update"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Written)
	assert.Len(t, p.fragmentsOf(index.KindNewsItem, "77"), 2)
	assert.Empty(t, p.client.Fragments(index.KindArticle))
}

func TestOrchestrator_Lock(t *testing.T) {
	ctx := context.Background()

	t.Run("busy document", func(t *testing.T) {
		p := newPipeline()
		p.fetcher.put(article("1", content.StatusPublished, 1))
		locker := &fakeLocker{held: map[string]string{"articles:1": "other-holder"}}
		o := p.orchestrator()
		o.SetLocker(locker, 150*time.Millisecond)

		out, err := o.Handle(ctx, updateEvent("1"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDocumentBusy)
		assert.Equal(t, StatusFailed, out.Status)
		assert.Empty(t, p.fragmentsOf(index.KindArticle, "1"))
	})

	t.Run("released after apply", func(t *testing.T) {
		p := newPipeline()
		p.fetcher.put(article("1", content.StatusPublished, 1))
		locker := &fakeLocker{held: map[string]string{}}
		o := p.orchestrator()
		o.SetLocker(locker, time.Second)

		_, err := o.Handle(ctx, updateEvent("1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"articles:1"}, locker.released)
		assert.Empty(t, locker.held)
	})

	t.Run("lock service down", func(t *testing.T) {
		p := newPipeline()
		p.fetcher.put(article("1", content.StatusPublished, 1))
		o := p.orchestrator()
		o.SetLocker(&fakeLocker{err: errors.New("redis down")}, time.Second)

		_, err := o.Handle(ctx, updateEvent("1"))
		require.NoError(t, err)
		assert.Len(t, p.fragmentsOf(index.KindArticle, "1"), 1)
	})
}

func TestOrchestrator_LedgerAndReplay(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	ledger := &memoryLedger{}
	o := p.orchestrator()
	o.SetLedger(ledger)

	p.fetcher.put(article("28180", content.StatusPublished, 2))
	p.fetcher.getErr = errors.New("timeout")
	_, err := o.Handle(ctx, updateEvent("28180"))
	require.Error(t, err)

	failed := ledger.byID("rec-1")
	require.NotNil(t, failed)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "timeout")

	p.fetcher.getErr = nil
	report, err := o.ReplayFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, []string{"rec-1"}, ledger.replayed)
	assert.Len(t, p.fragmentsOf(index.KindArticle, "28180"), 2)

	replay := ledger.byID("rec-2")
	require.NotNil(t, replay)
	assert.Equal(t, "rec-1", replay.ReplayOf)
	assert.Equal(t, StatusApplied, replay.Status)

	report, err = o.ReplayFailed(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
}

func TestOrchestrator_ReplayWithoutLedger(t *testing.T) {
	_, err := newPipeline().orchestrator().ReplayFailed(context.Background(), 10)
	assert.Error(t, err)
}

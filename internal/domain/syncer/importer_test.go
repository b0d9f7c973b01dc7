package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
)

func TestImporter_ImportsAllPages(t *testing.T) {
	p := newPipeline()
	p.fetcher.list["articles"] = []content.Document{
		article("1", content.StatusPublished, 1),
		article("2", content.StatusPublished, 2),
		article("3", content.StatusPublished, 3),
		article("4", content.StatusDraft, 1),
		article("5", content.StatusPublished, 1),
	}

	report, err := p.importer().Import(context.Background(), ImportOptions{Collection: "articles", Workers: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, index.KindArticle, report.Kind)
	assert.Equal(t, 5, report.Documents)
	assert.Equal(t, 7, report.Fragments)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Len(t, p.client.Fragments(index.KindArticle), 7)
}

func TestImporter_ContinuesPastFailingDocument(t *testing.T) {
	p := newPipeline()
	p.fetcher.list["articles"] = []content.Document{
		article("1", content.StatusPublished, 1),
		article("", content.StatusPublished, 1),
		article("3", content.StatusPublished, 2),
	}

	report, err := p.importer().Import(context.Background(), ImportOptions{Collection: "articles", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Fragments)
	assert.Len(t, p.client.Fragments(index.KindArticle), 3)
}

func TestImporter_ReplacesStaleFragments(t *testing.T) {
	ctx := context.Background()
	p := newPipeline()
	p.fetcher.list["articles"] = []content.Document{article("1", content.StatusPublished, 3)}
	_, err := p.importer().Import(ctx, ImportOptions{Collection: "articles"})
	require.NoError(t, err)

	p.fetcher.list["articles"] = []content.Document{article("1", content.StatusPublished, 1)}
	_, err = p.importer().Import(ctx, ImportOptions{Collection: "articles"})
	require.NoError(t, err)
	assert.Len(t, p.fragmentsOf(index.KindArticle, "1"), 1)
}

func TestImporter_Purge(t *testing.T) {
	p := newPipeline()
	p.client.Put(index.Fragment{ID: "orphan", Kind: index.KindArticle, DocumentID: "gone"})
	p.fetcher.list["articles"] = []content.Document{article("1", content.StatusPublished, 2)}

	report, err := p.importer().Import(context.Background(), ImportOptions{Collection: "articles", Purge: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
	assert.Empty(t, p.fragmentsOf(index.KindArticle, "gone"))
	assert.Len(t, p.fragmentsOf(index.KindArticle, "1"), 2)
}

func TestImporter_Errors(t *testing.T) {
	t.Run("unknown collection", func(t *testing.T) {
		_, err := newPipeline().importer().Import(context.Background(), ImportOptions{Collection: "podcasts"})
		assert.ErrorIs(t, err, ErrUnknownCollection)
	})

	t.Run("page fetch failure keeps partial report", func(t *testing.T) {
		p := newPipeline()
		p.fetcher.list["articles"] = []content.Document{
			article("1", content.StatusPublished, 1),
			article("2", content.StatusPublished, 1),
			article("3", content.StatusPublished, 1),
		}
		p.fetcher.listErr = errors.New("502 bad gateway")

		report, err := p.importer().Import(context.Background(), ImportOptions{Collection: "articles", PageSize: 2})
		require.Error(t, err)
		require.NotNil(t, report)
		assert.Equal(t, 2, report.Documents)
	})
}

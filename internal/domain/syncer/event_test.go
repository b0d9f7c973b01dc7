package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressindex/internal/domain/index"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Event
		wantErr bool
	}{
		{
			name: "string id",
			body: `{"id":"28180","action":"articles.items.update"}`,
			want: Event{Collection: "articles", Kind: EventUpdate, DocumentID: "28180"},
		},
		{
			name: "numeric id",
			body: `{"id":77,"action":"weekly_news.items.create"}`,
			want: Event{Collection: "weekly_news", Kind: EventCreate, DocumentID: "77"},
		},
		{
			name: "delete",
			body: `{"id":"5","action":"articles.items.delete"}`,
			want: Event{Collection: "articles", Kind: EventDelete, DocumentID: "5"},
		},
		{name: "invalid json", body: `{"id":`, wantErr: true},
		{name: "missing id", body: `{"action":"articles.items.update"}`, wantErr: true},
		{name: "blank id", body: `{"id":"  ","action":"articles.items.update"}`, wantErr: true},
		{name: "object id", body: `{"id":{"a":1},"action":"articles.items.update"}`, wantErr: true},
		{name: "missing action", body: `{"id":"1"}`, wantErr: true},
		{name: "wrong middle segment", body: `{"id":"1","action":"articles.fields.update"}`, wantErr: true},
		{name: "unsupported kind", body: `{"id":"1","action":"articles.items.publish"}`, wantErr: true},
		{name: "too many segments", body: `{"id":"1","action":"a.b.items.update"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestEventString(t *testing.T) {
	ev := Event{Collection: "articles", Kind: EventUpdate, DocumentID: "28180"}
	assert.Equal(t, "articles.items.update#28180", ev.String())
}

func TestRoutes(t *testing.T) {
	r := DefaultRoutes()

	kind, ok := r.KindOf("weekly_news")
	require.True(t, ok)
	assert.Equal(t, index.KindNewsItem, kind)

	_, ok = r.KindOf("podcasts")
	assert.False(t, ok)

	c, ok := r.CollectionOf(index.KindArticle)
	require.True(t, ok)
	assert.Equal(t, "articles", string(c))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressindex/internal/domain/index"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("CONTENT_STORE_URL", "https://cms.example.org/")
	t.Setenv("OPENSEARCH_URL", "https://search.example.org:9200")
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INDEX_MAX_CHUNK_BYTES", "2048")
	t.Setenv("SYNC_LOCK_ENABLED", "false")
	t.Setenv("SEARCH_SEMANTIC_MAX_DISTANCE", "0.6")
	t.Setenv("SYNC_EVENT_TIMEOUT", "45")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://cms.example.org", cfg.ContentStore.URL)
	assert.Equal(t, 2048, cfg.Index.MaxChunkBytes)
	assert.False(t, cfg.Sync.LockEnabled)
	assert.InDelta(t, 0.6, cfg.Index.SemanticMaxDistance, 1e-9)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 45, cfg.Sync.EventTimeoutSeconds)
	assert.Equal(t, 120, cfg.Sync.LockTTLSeconds)

	routes := cfg.Routes()
	kind, ok := routes.KindOf("articles")
	require.True(t, ok)
	assert.Equal(t, index.KindArticle, kind)
	kind, ok = routes.KindOf("weekly_news")
	require.True(t, ok)
	assert.Equal(t, index.KindNewsItem, kind)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 9090},
		"content_store": {"news_collection": "newsletters"},
		"sync": {"event_timeout_seconds": 30},
		"retry": {"max_attempts": 5, "initial_delay_ms": 50}
	}`), 0o600))
	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Sync.EventTimeoutSeconds)
	assert.True(t, cfg.Sync.LockEnabled)
	_, ok := cfg.Routes().KindOf("newsletters")
	assert.True(t, ok)

	policy := cfg.Retry.Policy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.InitialDelay)
}

func TestLoadRequiresContentStore(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONTENT_STORE_URL", "")
	os.Unsetenv("CONTENT_STORE_URL")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTENT_STORE_URL")
}

func TestEmbeddingDisabledWithoutAPIKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Index.HasEmbedding())
}

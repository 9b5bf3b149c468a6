package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesandybridge/kb-index/internal/config"
)

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChromaStore{}, s)

	cfg.VectorStore.Backend = config.BackendSQLite
	cfg.VectorStore.SQLitePath = filepath.Join(t.TempDir(), "v.db")
	s, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	cfg.VectorStore.Backend = "faiss"
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestMatch_Source(t *testing.T) {
	assert.Equal(t, "/a.md", Match{Metadata: Metadata{MetadataSource: "/a.md"}}.Source())
	assert.Equal(t, "unknown", Match{}.Source())
}

package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/common"
)

func TestDerivativeSuffixes_ConvertsStringsToDerivativeSuffix(t *testing.T) {
	out := derivativeSuffixes([]string{"xs", "md", "2xl"})
	require.Len(t, out, 3)
	assert.EqualValues(t, "xs", out[0])
	assert.EqualValues(t, "md", out[1])
	assert.EqualValues(t, "2xl", out[2])
}

func TestDerivativeSuffixes_EmptyInputReturnsEmptySlice(t *testing.T) {
	out := derivativeSuffixes(nil)
	assert.Empty(t, out)
}

func TestNewTextEmbedder_FallsBackToLocalWhenSkipConfigured(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Embedding.SkipEmbeddings = true

	embedder := newTextEmbedder(context.Background(), cfg, arbor.NewLogger())
	assert.True(t, embedder.Ready())
}

func TestNewTextEmbedder_FallsBackToLocalWhenNoAPIKey(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Embedding.GenAIAPIKey = ""

	embedder := newTextEmbedder(context.Background(), cfg, arbor.NewLogger())
	assert.True(t, embedder.Ready())
}

func TestNew_WiresEveryComponent(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.TempDir.Root = t.TempDir()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "jobs")
	cfg.Storage.SQLite.Enabled = false
	cfg.Embedding.SkipEmbeddings = true
	cfg.ObjectStore.Bucket = "test-bucket"
	cfg.ObjectStore.Endpoint = "http://localhost:9000"
	cfg.ObjectStore.AccessKeyID = "test"
	cfg.ObjectStore.SecretAccessKey = "test"

	a, err := New(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.JobStorage)
	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Manager)
}

func TestApp_Close_ClosesJobStorage(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.TempDir.Root = t.TempDir()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "jobs")
	cfg.Embedding.SkipEmbeddings = true
	cfg.ObjectStore.Bucket = "test-bucket"
	cfg.ObjectStore.Endpoint = "http://localhost:9000"
	cfg.ObjectStore.AccessKeyID = "test"
	cfg.ObjectStore.SecretAccessKey = "test"

	a, err := New(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)

	assert.NoError(t, a.Close())
}

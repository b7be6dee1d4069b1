package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

func TestPlugin_Ready_ReflectsEnabledFlag(t *testing.T) {
	assert.True(t, New(true, arbor.NewLogger()).Ready())
	assert.False(t, New(false, arbor.NewLogger()).Ready())
}

func TestPlugin_Write_DisabledIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	p := New(false, arbor.NewLogger())

	err := p.Write(context.Background(), path, interfaces.DatabaseInput{
		Posts: []models.Post{{Hash: "h1", Slug: "post-one"}},
	})
	require.NoError(t, err)

	_, statErr := sql.Open("sqlite", path)
	assert.NoError(t, statErr) // sql.Open is lazy: it succeeds whether or not the file exists
}

func TestPlugin_Write_PersistsPostsMediaAndSimilarity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	p := New(true, arbor.NewLogger())

	input := interfaces.DatabaseInput{
		Posts: []models.Post{{Hash: "h1", Slug: "post-one", Title: "Post One", URL: "/notes/post-one", WordCount: 42}},
		Media: []models.Media{{Hash: "m1", Filename: "photo.jpg", Class: models.MediaClassImage}},
		TextVecs: models.TextEmbeddingMap{
			"h1": models.Embedding{0.1, 0.2, 0.3},
		},
		Similarity: []models.SimilarityPair{{HashA: "h1", HashB: "h2", Score: 0.75}},
	}
	require.NoError(t, p.Write(context.Background(), path, input))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var slug, title string
	require.NoError(t, db.QueryRow(`SELECT slug, title FROM posts WHERE hash = ?`, "h1").Scan(&slug, &title))
	assert.Equal(t, "post-one", slug)
	assert.Equal(t, "Post One", title)

	var filename string
	require.NoError(t, db.QueryRow(`SELECT filename FROM media WHERE hash = ?`, "m1").Scan(&filename))
	assert.Equal(t, "photo.jpg", filename)

	var score float64
	require.NoError(t, db.QueryRow(`SELECT score FROM similarity WHERE hash_a = ? AND hash_b = ?`, "h1", "h2").Scan(&score))
	assert.InDelta(t, 0.75, score, 1e-9)

	var vector string
	require.NoError(t, db.QueryRow(`SELECT vector FROM text_embeddings WHERE hash = ?`, "h1").Scan(&vector))
	assert.Contains(t, vector, "0.1")
}

func TestPlugin_Write_UpsertOverwritesExistingPost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	p := New(true, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, path, interfaces.DatabaseInput{
		Posts: []models.Post{{Hash: "h1", Slug: "post-one", Title: "Old Title"}},
	}))
	require.NoError(t, p.Write(ctx, path, interfaces.DatabaseInput{
		Posts: []models.Post{{Hash: "h1", Slug: "post-one", Title: "New Title"}},
	}))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var title string
	require.NoError(t, db.QueryRow(`SELECT title FROM posts WHERE hash = ?`, "h1").Scan(&title))
	assert.Equal(t, "New Title", title)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count))
	assert.Equal(t, 1, count)
}

// Package sqlite implements interfaces.DatabasePlugin, writing the build's
// posts/media/embeddings/similarity into a single-file embedded database
// using the CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// Plugin writes build output into a SQLite file. Ready reports whether the
// plugin was constructed with Enabled=true.
type Plugin struct {
	enabled bool
	logger  arbor.ILogger
}

var _ interfaces.DatabasePlugin = (*Plugin)(nil)

func New(enabled bool, logger arbor.ILogger) *Plugin {
	return &Plugin{enabled: enabled, logger: logger}
}

func (p *Plugin) Ready() bool { return p.enabled }

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	hash TEXT PRIMARY KEY,
	slug TEXT NOT NULL,
	title TEXT,
	url TEXT,
	word_count INTEGER,
	data TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_slug ON posts(slug);

CREATE TABLE IF NOT EXISTS media (
	hash TEXT PRIMARY KEY,
	filename TEXT,
	class TEXT,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS text_embeddings (
	hash TEXT PRIMARY KEY,
	vector TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS image_embeddings (
	hash TEXT PRIMARY KEY,
	vector TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS similarity (
	hash_a TEXT NOT NULL,
	hash_b TEXT NOT NULL,
	score REAL NOT NULL,
	PRIMARY KEY (hash_a, hash_b)
);
`

// Write opens (creating if absent) a SQLite file at path and persists data,
// replacing any existing rows for entities present in data.
func (p *Plugin) Write(ctx context.Context, path string, data interfaces.DatabaseInput) error {
	if !p.enabled {
		return nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, post := range data.Posts {
		raw, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("marshal post %s: %w", post.Hash, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO posts (hash, slug, title, url, word_count, data) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(hash) DO UPDATE SET slug=excluded.slug, title=excluded.title, url=excluded.url, word_count=excluded.word_count, data=excluded.data`,
			post.Hash, post.Slug, post.Title, post.URL, post.WordCount, string(raw),
		); err != nil {
			return fmt.Errorf("upsert post %s: %w", post.Hash, err)
		}
	}

	for _, media := range data.Media {
		raw, err := json.Marshal(media)
		if err != nil {
			return fmt.Errorf("marshal media %s: %w", media.Hash, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media (hash, filename, class, data) VALUES (?, ?, ?, ?)
			 ON CONFLICT(hash) DO UPDATE SET filename=excluded.filename, class=excluded.class, data=excluded.data`,
			media.Hash, media.Filename, string(media.Class), string(raw),
		); err != nil {
			return fmt.Errorf("upsert media %s: %w", media.Hash, err)
		}
	}

	if err := upsertEmbeddings(ctx, tx, "text_embeddings", data.TextVecs); err != nil {
		return err
	}
	if err := upsertEmbeddings(ctx, tx, "image_embeddings", data.ImageVecs); err != nil {
		return err
	}

	for _, pair := range data.Similarity {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO similarity (hash_a, hash_b, score) VALUES (?, ?, ?)
			 ON CONFLICT(hash_a, hash_b) DO UPDATE SET score=excluded.score`,
			pair.HashA, pair.HashB, pair.Score,
		); err != nil {
			return fmt.Errorf("upsert similarity %s: %w", pair.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	p.logger.Info().
		Int("posts", len(data.Posts)).
		Int("media", len(data.Media)).
		Int("similarity_pairs", len(data.Similarity)).
		Str("path", path).
		Msg("database artifact written")

	return nil
}

func upsertEmbeddings(ctx context.Context, tx *sql.Tx, table string, vecs map[string]models.Embedding) error {
	for hash, vec := range vecs {
		raw, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("marshal %s embedding %s: %w", table, hash, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (hash, vector) VALUES (?, ?) ON CONFLICT(hash) DO UPDATE SET vector=excluded.vector`, table),
			hash, string(raw),
		); err != nil {
			return fmt.Errorf("upsert %s %s: %w", table, hash, err)
		}
	}
	return nil
}

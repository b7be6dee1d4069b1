// Package app is the composition root: it wires configuration, logging,
// storage, and every pipeline component into a runnable Processor/Router
// and HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/common"
	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/jobs"
	"github.com/vaultpress/buildworker/internal/models"
	"github.com/vaultpress/buildworker/internal/pipeline/cacheloader"
	"github.com/vaultpress/buildworker/internal/pipeline/embedding"
	"github.com/vaultpress/buildworker/internal/pipeline/markdown"
	"github.com/vaultpress/buildworker/internal/pipeline/media"
	"github.com/vaultpress/buildworker/internal/pipeline/publisher"
	"github.com/vaultpress/buildworker/internal/pipeline/similarity"
	"github.com/vaultpress/buildworker/internal/pipeline/sourcefetcher"
	"github.com/vaultpress/buildworker/internal/storage/badger"
	"github.com/vaultpress/buildworker/internal/storage/objectstore"
	"github.com/vaultpress/buildworker/internal/storage/sqlite"
)

// App holds every long-lived component the HTTP server and job manager need.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Store      *objectstore.Store
	JobStorage interfaces.JobStorage

	Router  *jobs.Router
	Manager *jobs.Manager
}

// New constructs every pipeline component from cfg and wires them into a
// Router and Manager ready to serve jobs.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	store, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		Bucket:          cfg.ObjectStore.Bucket,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		CDNHost:         cfg.ObjectStore.CDNHost,
		UsePathStyle:    cfg.ObjectStore.UsePathStyle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	app.Store = store

	jobStorage, err := badger.Open(cfg.Storage.Badger.Path, cfg.Storage.Badger.ResetOnStartup, logger)
	if err != nil {
		return nil, fmt.Errorf("init job storage: %w", err)
	}
	app.JobStorage = jobStorage

	cloneTimeout, err := time.ParseDuration(cfg.Source.CloneTimeout)
	if err != nil {
		cloneTimeout = 5 * time.Minute
	}
	fetcher, err := sourcefetcher.New(cfg.Source.GitHubToken, cloneTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("init source fetcher: %w", err)
	}

	cache := cacheloader.New(store, logger)

	imageProcessor := media.New(derivativeSuffixes(cfg.Media.Sizes), cfg.Media.Formats, cfg.Media.Quality, cfg.Media.RequireMD, logger)
	scanner := media.NewScanner(imageProcessor, cfg.Media.Concurrency, "media", cfg.Media.MediaPrefix, logger)

	mdPipeline := markdown.New(markdown.Options{
		NotePrefix:      cfg.Markdown.NotePrefix,
		RemoveDeadLinks: cfg.Markdown.RemoveDeadLinks,
		MermaidStrategy: markdown.MermaidStrategy(cfg.Markdown.MermaidStrategy),
		ParseFormulas:   cfg.Markdown.ParseFormulas,
		Iframe:          markdown.DefaultIframeConfig(cfg.Markdown.IframeService),
		WorkDir:         cfg.TempDir.Root,
	}, logger)

	textEmbedder := newTextEmbedder(ctx, cfg, logger)
	imageEmbedder := embedding.NewLocalImageEmbedder(cfg.Embedding.ImageDimension, logger)

	simBuilder := similarity.New(cfg.Similarity.TopK, 0, logger)
	dbPlugin := sqlite.New(cfg.Storage.SQLite.Enabled, logger)
	pub := publisher.New(store, logger)

	processor := &jobs.Processor{
		Fetcher:              fetcher,
		CacheLoader:          cache,
		MediaScanner:         scanner,
		Markdown:             mdPipeline,
		TextEmbedder:         textEmbedder,
		ImageEmbedder:        imageEmbedder,
		Similarity:           simBuilder,
		Database:             dbPlugin,
		Publisher:            pub,
		Store:                store,
		MediaPrefix:          cfg.Media.MediaPrefix,
		NotePrefix:           cfg.Markdown.NotePrefix,
		PublishConcurrency:   cfg.Publisher.Concurrency,
		PublishMaxFileSize:   cfg.Publisher.MaxFileSizeBytes,
		SkipExistingFiles:    cfg.Publisher.SkipExistingFiles,
		SkipIdenticalContent: cfg.Publisher.SkipIdenticalContent,
		Logger:               logger,
	}

	router := jobs.NewRouter(processor)
	manager := jobs.NewManager(router, jobStorage, cfg.TempDir.Root, cfg.TempDir.KeepTmpFiles, cfg.HardTimeout(), cfg.SoftTimeout(), logger)

	app.Router = router
	app.Manager = manager

	return app, nil
}

// Close releases the job storage handle. The object store client has no
// persistent connection to close.
func (a *App) Close() error {
	if closer, ok := a.JobStorage.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func newTextEmbedder(ctx context.Context, cfg *common.Config, logger arbor.ILogger) interfaces.TextEmbedder {
	if cfg.Embedding.SkipEmbeddings || cfg.Embedding.GenAIAPIKey == "" {
		return embedding.NewLocalTextEmbedder(cfg.Embedding.TextDimension)
	}
	embedder, err := embedding.NewGenAITextEmbedder(ctx, cfg.Embedding.GenAIAPIKey, cfg.Embedding.Model, cfg.Embedding.TextDimension, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to init genai text embedder, falling back to local hash embedder")
		return embedding.NewLocalTextEmbedder(cfg.Embedding.TextDimension)
	}
	return embedder
}

func derivativeSuffixes(sizes []string) []models.DerivativeSuffix {
	out := make([]models.DerivativeSuffix, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, models.DerivativeSuffix(s))
	}
	return out
}

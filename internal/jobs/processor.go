// Package jobs composes the pipeline stages into named tasks, runs each job
// in its own working directory, and delivers exactly one callback per job.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// Processor wires the ten pipeline components into the process-all task and
// its composites (deploy-repo, process-with-repo, publish-r2, ...).
type Processor struct {
	Fetcher       interfaces.SourceFetcher
	CacheLoader   interfaces.CacheLoader
	MediaScanner  interfaces.MediaScanner
	Markdown      MarkdownRenderer
	TextEmbedder  interfaces.TextEmbedder
	ImageEmbedder interfaces.ImageEmbedder
	Similarity    SimilarityBuilder
	Database      interfaces.DatabasePlugin
	Publisher     interfaces.Publisher
	Store         interfaces.ObjectStore

	MediaOutDir  string // relative to job working dir, e.g. "dist/media"
	MediaPrefix  string // public URL prefix for media derivatives
	NotePrefix   string
	ProjectIDKey string // data field name carrying the project id

	PublishConcurrency    int
	PublishMaxFileSize    int64
	SkipExistingFiles     bool
	SkipIdenticalContent  bool

	Logger arbor.ILogger
}

// publishOptions builds interfaces.PublishOptions for a publish/deploy task,
// reading the project and job identifiers out of the job's data payload.
func (p *Processor) publishOptions(distDir string, data map[string]interface{}) interfaces.PublishOptions {
	return interfaces.PublishOptions{
		BuildDir:             distDir,
		ProjectID:            stringField(data, p.projectIDKeyOrDefault()),
		JobID:                stringField(data, "jobId"),
		MediaSubdir:          "media",
		SkipExistingFiles:    p.SkipExistingFiles,
		SkipIdenticalContent: p.SkipIdenticalContent,
		Concurrency:          p.PublishConcurrency,
		MaxFileSize:          p.PublishMaxFileSize,
	}
}

func (p *Processor) projectIDKeyOrDefault() string {
	if p.ProjectIDKey != "" {
		return p.ProjectIDKey
	}
	return "projectId"
}

// MarkdownRenderer matches internal/pipeline/markdown.Pipeline's RenderAll signature.
// mediaURLs is keyed by lowercased source media filename, not content hash.
type MarkdownRenderer interface {
	RenderAll(ctx context.Context, vaultRoot string, files []string, mediaURLs map[string]string, issues *interfaces.IssueCollector) ([]models.Post, models.AliasIndex, error)
}

// SimilarityBuilder matches internal/pipeline/similarity.Builder's Build signature.
type SimilarityBuilder interface {
	Build(ctx context.Context, embeddings models.TextEmbeddingMap) ([]models.SimilarityPair, models.NeighborMap)
}

// Result is what a Processor task returns; it becomes Job.Result.
type Result struct {
	Artifacts models.BuildArtifacts `json:"artifacts"`
	Issues    []models.Issue        `json:"issues"`
	MediaHits int                   `json:"mediaHits"`
	Misses    int                   `json:"mediaMisses"`
	Posts     int                   `json:"postCount"`
}

// ProcessAll runs CacheLoader -> MediaScanner -> Markdown -> Embeddings ->
// Similarity -> file summaries -> Database against vaultRoot, writing all
// build artifacts under workDir/dist.
func (p *Processor) ProcessAll(ctx context.Context, workDir, vaultRoot string, data map[string]interface{}) (Result, error) {
	issues := interfaces.NewIssueCollector()
	distDir := filepath.Join(workDir, "dist")
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create dist dir: %w", err)
	}

	cache := models.NewEmptyCacheContext()
	if urls, ok := parseCacheManifestURLs(data); ok {
		loaded, cacheIssues := p.CacheLoader.Load(ctx, urls)
		if loaded != nil {
			cache = loaded
		}
		for _, issue := range cacheIssues {
			issues.Add(issue.Stage, issue.Item, issue.Severity, issue.Message)
		}
	}

	scanResult, err := p.MediaScanner.Scan(ctx, vaultRoot, cache, issues)
	if err != nil {
		return Result{}, fmt.Errorf("media scan: %w", err)
	}

	files, err := discoverMarkdownFiles(vaultRoot)
	if err != nil {
		return Result{}, fmt.Errorf("discover markdown files: %w", err)
	}

	posts, _, err := p.Markdown.RenderAll(ctx, vaultRoot, files, scanResult.FilenameURLs, issues)
	if err != nil {
		return Result{}, fmt.Errorf("render markdown: %w", err)
	}

	textVecs, imageVecs := p.buildEmbeddings(ctx, posts, scanResult, cache, issues)

	pairs, neighbors := p.Similarity.Build(ctx, textVecs)
	if len(textVecs) < 2 {
		issues.Add("similarity", "", models.IssueSeverityWarning, "fewer than two embedded posts, similarity skipped")
	}

	media := make([]models.Media, 0, len(scanResult.Media))
	for _, m := range scanResult.Media {
		media = append(media, m)
	}
	sort.Slice(media, func(i, j int) bool { return media[i].Hash < media[j].Hash })

	artifacts, err := p.writeArtifacts(distDir, posts, media, textVecs, imageVecs, pairs, neighbors, issues)
	if err != nil {
		return Result{}, fmt.Errorf("write artifacts: %w", err)
	}

	return Result{
		Artifacts: artifacts,
		Issues:    issues.All(),
		MediaHits: scanResult.Hits,
		Misses:    scanResult.Misses,
		Posts:     len(posts),
	}, nil
}

func (p *Processor) buildEmbeddings(ctx context.Context, posts []models.Post, scanResult interfaces.MediaScanResult, cache *models.CacheContext, issues *interfaces.IssueCollector) (models.TextEmbeddingMap, models.ImageEmbeddingMap) {
	textVecs := make(models.TextEmbeddingMap)
	imageVecs := make(models.ImageEmbeddingMap)

	if !p.TextEmbedder.Ready() {
		issues.Add("embedding", "text", models.IssueSeverityWarning, "text embedder unavailable, skipping text embeddings")
	} else {
		for _, post := range posts {
			if vec, ok := cache.TextEmbeddings[post.Hash]; ok {
				textVecs[post.Hash] = vec
				continue
			}
			vec, err := p.TextEmbedder.Embed(ctx, post.PlainText)
			if err != nil {
				issues.Add("embedding", post.Hash, models.IssueSeverityWarning, err.Error())
				continue
			}
			textVecs[post.Hash] = vec
		}
	}

	if !p.ImageEmbedder.Ready() {
		issues.Add("embedding", "image", models.IssueSeverityWarning, "image embedder unavailable, skipping image embeddings")
	} else {
		for hash, media := range scanResult.Media {
			if media.Class != models.MediaClassImage {
				continue
			}
			if vec, ok := cache.ImageEmbeddings[hash]; ok {
				imageVecs[hash] = vec
				continue
			}
			derivative, ok := media.DerivativeBySuffix(models.SuffixMD)
			if !ok {
				if len(media.Derivatives) == 0 {
					continue
				}
				derivative = media.Derivatives[0]
			}
			raw, err := os.ReadFile(derivative.OutputPath)
			if err != nil {
				issues.Add("embedding", hash, models.IssueSeverityWarning, err.Error())
				continue
			}
			vec, err := p.ImageEmbedder.Embed(ctx, raw)
			if err != nil {
				issues.Add("embedding", hash, models.IssueSeverityWarning, err.Error())
				continue
			}
			imageVecs[hash] = vec
		}
	}

	return textVecs, imageVecs
}

func (p *Processor) writeArtifacts(distDir string, posts []models.Post, media []models.Media, textVecs models.TextEmbeddingMap, imageVecs models.ImageEmbeddingMap, pairs []models.SimilarityPair, neighbors models.NeighborMap, issues *interfaces.IssueCollector) (models.BuildArtifacts, error) {
	artifacts := models.BuildArtifacts{}

	postsPath := filepath.Join(distDir, "posts.json")
	if err := writeJSON(postsPath, posts); err != nil {
		return artifacts, err
	}
	artifacts.PostsPath = postsPath

	postsDir := filepath.Join(distDir, "posts")
	if err := os.MkdirAll(postsDir, 0o755); err != nil {
		return artifacts, fmt.Errorf("create posts dir: %w", err)
	}
	for _, post := range posts {
		if err := writeJSON(filepath.Join(postsDir, post.Hash+".json"), post); err != nil {
			return artifacts, err
		}
		if err := writeJSON(filepath.Join(postsDir, post.Slug+".json"), post); err != nil {
			return artifacts, err
		}
	}
	artifacts.PostsDir = postsDir

	if len(textVecs) > 0 {
		hashMapPath := filepath.Join(distDir, "posts-embedding-hash-map.json")
		if err := writeJSON(hashMapPath, textVecs); err != nil {
			return artifacts, err
		}
		artifacts.PostsEmbeddingHashMapPath = hashMapPath

		slugMap := make(map[string]models.Embedding, len(posts))
		for _, post := range posts {
			if vec, ok := textVecs[post.Hash]; ok {
				slugMap[post.Slug] = vec
			}
		}
		slugMapPath := filepath.Join(distDir, "posts-embedding-slug-map.json")
		if err := writeJSON(slugMapPath, slugMap); err != nil {
			return artifacts, err
		}
		artifacts.PostsEmbeddingSlugMapPath = slugMapPath
	}

	if len(imageVecs) > 0 {
		imgMapPath := filepath.Join(distDir, "media-embedding-hash-map.json")
		if err := writeJSON(imgMapPath, imageVecs); err != nil {
			return artifacts, err
		}
		artifacts.MediaEmbeddingHashMapPath = imgMapPath
	}

	if len(pairs) > 0 {
		similarity := make(models.SimilarityMap, len(pairs))
		for _, pair := range pairs {
			similarity[pair.Key()] = pair.Score
		}
		simPath := filepath.Join(distDir, "posts-similarity.json")
		if err := writeJSON(simPath, similarity); err != nil {
			return artifacts, err
		}
		artifacts.PostsSimilarityPath = simPath

		neighborHashes := make(map[string][]string, len(neighbors))
		for hash, list := range neighbors {
			hashes := make([]string, 0, len(list))
			for _, n := range list {
				hashes = append(hashes, n.Hash)
			}
			neighborHashes[hash] = hashes
		}
		neighborPath := filepath.Join(distDir, "posts-similar-hash.json")
		if err := writeJSON(neighborPath, neighborHashes); err != nil {
			return artifacts, err
		}
		artifacts.PostsSimilarHashPath = neighborPath
	}

	sourceFiles := fileEntriesFor(posts)
	sourcePath := filepath.Join(distDir, "files-source.json")
	if err := writeJSON(sourcePath, sourceFiles); err != nil {
		return artifacts, err
	}
	artifacts.FilesSourcePath = sourcePath

	distFiles, err := walkFileEntries(distDir)
	if err != nil {
		return artifacts, err
	}
	distPath := filepath.Join(distDir, "files-dist.json")
	if err := writeJSON(distPath, distFiles); err != nil {
		return artifacts, err
	}
	artifacts.FilesDistPath = distPath

	if p.Database != nil && p.Database.Ready() {
		dbPath := filepath.Join(distDir, "build.sqlite")
		input := interfaces.DatabaseInput{Posts: posts, Media: media, TextVecs: textVecs, ImageVecs: imageVecs, Similarity: pairs}
		if err := p.Database.Write(context.Background(), dbPath, input); err != nil {
			issues.Add("database", "", models.IssueSeverityWarning, err.Error())
		} else {
			artifacts.DatabasePath = dbPath
		}
	}

	issuesPath := filepath.Join(distDir, "worker-issues.json")
	if err := writeJSON(issuesPath, issues.All()); err != nil {
		return artifacts, err
	}
	artifacts.WorkerIssuesPath = issuesPath

	return artifacts, nil
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func fileEntriesFor(posts []models.Post) []models.FileEntry {
	entries := make([]models.FileEntry, 0, len(posts))
	for _, post := range posts {
		entries = append(entries, models.FileEntry{
			Path:      post.OriginalPath,
			Filename:  post.Filename,
			Extension: filepath.Ext(post.Filename),
			Folder:    []string{post.Folder},
		})
	}
	return entries
}

func walkFileEntries(root string) ([]models.FileEntry, error) {
	var entries []models.FileEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		entries = append(entries, models.FileEntry{
			Path:      rel,
			Filename:  filepath.Base(path),
			Extension: filepath.Ext(path),
			Size:      info.Size(),
			Folder:    []string{filepath.Dir(rel)},
		})
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, err
}

func discoverMarkdownFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" || info.Name() == ".obsidian" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".md" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func parseCacheManifestURLs(data map[string]interface{}) (models.CacheManifestURLs, bool) {
	var urls models.CacheManifestURLs
	found := false
	if v, ok := data["mediaManifestKey"].(string); ok && v != "" {
		urls.MediaManifestKey = v
		found = true
	}
	if v, ok := data["textEmbeddingKey"].(string); ok && v != "" {
		urls.TextEmbeddingKey = v
		found = true
	}
	if v, ok := data["imageEmbeddingKey"].(string); ok && v != "" {
		urls.ImageEmbeddingKey = v
		found = true
	}
	return urls, found
}

// stringField reads a string field out of a job's data payload.
func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// boolField reads a bool field out of a job's data payload.
func boolField(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

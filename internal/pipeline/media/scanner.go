// Package media implements MediaScanner and ImageProcessor: discovery,
// content hashing, and size/format derivative generation for every media
// file under a vault root. Work fans out across a bounded worker pool, one
// job per file, matching the concurrency pattern used throughout this
// codebase's other batch stages.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
	"github.com/vaultpress/buildworker/internal/workerpool"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

var videoExtensions = map[string]bool{".mp4": true, ".webm": true, ".mov": true}
var audioExtensions = map[string]bool{".mp3": true, ".wav": true, ".ogg": true, ".m4a": true}
var modelExtensions = map[string]bool{".glb": true, ".gltf": true, ".obj": true}

// Scanner walks a vault root, hashes every media file, and delegates
// derivative generation to an ImageProcessor.
type Scanner struct {
	processor   interfaces.ImageProcessor
	concurrency int
	mediaPrefix string
	outDir      string
	logger      arbor.ILogger
}

var _ interfaces.MediaScanner = (*Scanner)(nil)

// NewScanner constructs a Scanner. outDir is the build directory's media
// output root; mediaPrefix is the public URL prefix derivatives are served under.
func NewScanner(processor interfaces.ImageProcessor, concurrency int, outDir, mediaPrefix string, logger arbor.ILogger) *Scanner {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Scanner{processor: processor, concurrency: concurrency, mediaPrefix: mediaPrefix, outDir: outDir, logger: logger}
}

func (s *Scanner) Scan(ctx context.Context, vaultRoot string, cache *models.CacheContext, issues *interfaces.IssueCollector) (interfaces.MediaScanResult, error) {
	files, err := s.discover(vaultRoot)
	if err != nil {
		return interfaces.MediaScanResult{}, fmt.Errorf("discover media files: %w", err)
	}

	result := interfaces.MediaScanResult{
		Media:        make(map[string]models.Media),
		PublicURLs:   make(map[string]string),
		FilenameURLs: make(map[string]string),
	}
	var mu sync.Mutex
	var hits, misses int

	pool := workerpool.NewPool(s.concurrency, s.logger)
	pool.Start()

	for _, path := range files {
		path := path
		if err := pool.Submit(func(ctx context.Context) error {
			media, hit, err := s.processOne(ctx, path, cache)
			if err != nil {
				issues.Add("media-scan", path, models.IssueSeverityError, err.Error())
				return nil // per-file failure does not abort the scan
			}

			mu.Lock()
			result.Media[media.Hash] = media
			var publicURL string
			if md, ok := media.DerivativeBySuffix(models.SuffixMD); ok {
				publicURL = md.PublicURL
			} else if len(media.Derivatives) > 0 {
				publicURL = media.Derivatives[0].PublicURL
			}
			if publicURL != "" {
				result.PublicURLs[media.Hash] = publicURL
				result.FilenameURLs[strings.ToLower(media.Filename)] = publicURL
			}
			if hit {
				hits++
			} else {
				misses++
			}
			mu.Unlock()
			return nil
		}); err != nil {
			issues.Add("media-scan", path, models.IssueSeverityError, err.Error())
		}
	}

	pool.Wait()
	result.Hits, result.Misses = hits, misses
	return result, nil
}

func (s *Scanner) discover(vaultRoot string) ([]string, error) {
	var files []string
	err := filepath.Walk(vaultRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" || info.Name() == ".obsidian" {
				return filepath.SkipDir
			}
			return nil
		}
		if classOf(filepath.Ext(path)) != "" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (s *Scanner) processOne(ctx context.Context, path string, cache *models.CacheContext) (models.Media, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Media{}, false, fmt.Errorf("read %s: %w", path, err)
	}

	hash := contentHash(raw)
	ext := strings.ToLower(filepath.Ext(path))
	class := classOf(ext)

	if cached, ok := cache.Media[hash]; ok {
		return cached, true, nil
	}

	media := models.Media{
		Hash:      hash,
		Filename:  filepath.Base(path),
		Folder:    filepath.Dir(path),
		Extension: ext,
		Class:     class,
	}

	if class == models.MediaClassImage && s.processor.Ready() {
		derivatives, err := s.processor.Process(ctx, hash, raw, s.outDir, s.mediaPrefix)
		if err != nil {
			return models.Media{}, false, fmt.Errorf("process image %s: %w", path, err)
		}
		media.Derivatives = derivatives
	} else {
		outputPath := filepath.Join(s.outDir, fmt.Sprintf("%s%s", hash, ext))
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return models.Media{}, false, fmt.Errorf("mkdir for %s: %w", path, err)
		}
		if err := os.WriteFile(outputPath, raw, 0o644); err != nil {
			return models.Media{}, false, fmt.Errorf("write passthrough %s: %w", path, err)
		}
		media.Derivatives = []models.MediaDerivative{
			{
				Format:     strings.TrimPrefix(ext, "."),
				OutputPath: outputPath,
				PublicURL:  fmt.Sprintf("%s/%s%s", s.mediaPrefix, hash, ext),
				ByteSize:   int64(len(raw)),
			},
		}
	}

	return media, false, nil
}

func classOf(ext string) models.MediaClass {
	ext = strings.ToLower(ext)
	switch {
	case imageExtensions[ext]:
		return models.MediaClassImage
	case videoExtensions[ext]:
		return models.MediaClassVideo
	case audioExtensions[ext]:
		return models.MediaClassAudio
	case modelExtensions[ext]:
		return models.MediaClassModel
	default:
		return ""
	}
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// hashReader is used where a stream, not a byte slice, is more convenient.
func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Package markdown implements the MarkdownPipeline: frontmatter parsing,
// wikilink/alias/media reference resolution, goldmark rendering, and HTML
// post-processing (mermaid, iframe embeds, math, TOC, plain-text
// projection).
package markdown

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"github.com/vaultpress/buildworker/internal/interfaces"
	"github.com/vaultpress/buildworker/internal/models"
)

// Options configures one Pipeline instance.
type Options struct {
	NotePrefix       string
	RemoveDeadLinks  bool
	MermaidStrategy  MermaidStrategy
	ParseFormulas    bool
	Iframe           IframeConfig
	WorkDir          string
}

// Pipeline renders a vault's Markdown documents into Post models.
type Pipeline struct {
	opts     Options
	md       goldmark.Markdown
	renderer *mermaidRenderer
	logger   arbor.ILogger
}

func New(opts Options, logger arbor.ILogger) *Pipeline {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithUnsafe(), // callout/iframe markup is injected as raw HTML upstream
		),
	)

	return &Pipeline{
		opts:     opts,
		md:       md,
		renderer: newMermaidRenderer(logger),
		logger:   logger,
	}
}

// sourceDoc is one unrendered document discovered under the vault root.
type sourceDoc struct {
	path        string
	rawMarkdown []byte
	frontmatter map[string]interface{}
	body        string
	hash        string
}

// RenderAll parses every Markdown file under vaultRoot, resolves cross-post
// references, and returns fully rendered Post models plus the alias index
// built along the way; no link index is returned. mediaURLs is keyed by lowercased source media
// filename (e.g. "photo.png"), mapping it to its published derivative URL.
func (p *Pipeline) RenderAll(ctx context.Context, vaultRoot string, files []string, mediaURLs map[string]string, issues *interfaces.IssueCollector) ([]models.Post, models.AliasIndex, error) {
	docs := make([]sourceDoc, 0, len(files))
	for _, path := range files {
		doc, err := p.loadDocument(path)
		if err != nil {
			issues.Add("markdown-parse", path, models.IssueSeverityError, err.Error())
			continue
		}
		docs = append(docs, doc)
	}

	sink := newIssueSink(issues.Add)

	candidates := make([]candidate, 0, len(docs))
	for _, doc := range docs {
		candidates = append(candidates, candidate{
			hash:    doc.hash,
			slug:    p.candidateSlug(doc),
			aliases: stringSliceField(doc.frontmatter, "aliases"),
		})
	}

	slugOf := BuildSlugTable(candidates, sink, p.logger)
	aliasIndex := BuildAliasIndex(candidates, slugOf, sink)

	// filename -> hash, for case-insensitive filename resolution.
	filenameIndex := make(map[string]string, len(docs))
	for _, doc := range docs {
		filenameIndex[strings.ToLower(filepath.Base(doc.path))] = doc.hash
	}

	resolveLink := func(target string) (string, bool) {
		target = strings.TrimSuffix(target, ".md")

		for _, doc := range docs {
			if slugOf[doc.hash] == Slugify(target) {
				return p.opts.NotePrefix + "/" + slugOf[doc.hash], true
			}
		}
		if slug, ok := aliasIndex[Slugify(target)]; ok {
			return p.opts.NotePrefix + "/" + slug, true
		}
		if hash, ok := filenameIndex[strings.ToLower(target)+".md"]; ok {
			return p.opts.NotePrefix + "/" + slugOf[hash], true
		}
		if slug, ok := aliasIndex[strings.ToLower(Slugify(target))]; ok {
			return p.opts.NotePrefix + "/" + slug, true
		}
		return "", false
	}

	resolveMedia := func(filename string) (string, bool) {
		url, ok := mediaURLs[strings.ToLower(filepath.Base(filename))]
		return url, ok
	}

	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		post, err := p.renderOne(ctx, doc, slugOf, resolveLink, resolveMedia, issues)
		if err != nil {
			issues.Add("markdown-render", doc.path, models.IssueSeverityError, err.Error())
			continue
		}
		posts = append(posts, post)
	}

	return posts, aliasIndex, nil
}

func (p *Pipeline) loadDocument(path string) (sourceDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sourceDoc{}, fmt.Errorf("read %s: %w", path, err)
	}

	frontmatter, body := splitFrontmatter(raw)
	sum := sha256.Sum256(raw)

	return sourceDoc{
		path:        path,
		rawMarkdown: raw,
		frontmatter: frontmatter,
		body:        body,
		hash:        hex.EncodeToString(sum[:]),
	}, nil
}

func (p *Pipeline) candidateSlug(doc sourceDoc) string {
	if slug, ok := doc.frontmatter["slug"].(string); ok && slug != "" {
		return Slugify(slug)
	}
	return Slugify(strings.TrimSuffix(filepath.Base(doc.path), ".md"))
}

func (p *Pipeline) renderOne(ctx context.Context, doc sourceDoc, slugOf map[string]string, resolveLink linkResolver, resolveMedia mediaResolver, issues *interfaces.IssueCollector) (models.Post, error) {
	var unresolved []string
	body := rewriteWikilinksAndEmbeds(doc.body, resolveLink, resolveMedia, p.opts.RemoveDeadLinks, func(target string) {
		unresolved = append(unresolved, target)
	})
	body = rewriteCallouts(body)

	if p.opts.ParseFormulas {
		body = applyMathPresentation(body)
	}

	var buf bytes.Buffer
	if err := p.md.Convert([]byte(body), &buf); err != nil {
		return models.Post{}, fmt.Errorf("render markdown: %w", err)
	}

	htmlDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return models.Post{}, fmt.Errorf("parse rendered html: %w", err)
	}

	applyMermaidStrategy(ctx, htmlDoc, p.opts.MermaidStrategy, p.opts.WorkDir, p.renderer, func(msg string) {
		issues.Add("mermaid", doc.path, models.IssueSeverityWarning, msg)
	})
	applyIframeEmbeds(htmlDoc, p.opts.Iframe)

	for _, target := range unresolved {
		issues.Add("link-resolution", doc.path, models.IssueSeverityWarning, fmt.Sprintf("unresolved wikilink target %q", target))
	}

	renderedHTML, err := htmlDoc.Find("body").Html()
	if err != nil {
		return models.Post{}, fmt.Errorf("serialize html: %w", err)
	}

	toc := extractTOC(htmlDoc)
	plainText := htmlDoc.Text()
	firstParagraph := extractFirstParagraph(htmlDoc)
	firstImage := extractFirstImage(htmlDoc)

	slug := slugOf[doc.hash]
	title := titleFromFrontmatterOrH1(doc.frontmatter, htmlDoc, slug)

	return models.Post{
		Hash:                doc.hash,
		Slug:                slug,
		Filename:            filepath.Base(doc.path),
		OriginalPath:        doc.path,
		Folder:              filepath.Dir(doc.path),
		URL:                 p.opts.NotePrefix + "/" + slug,
		Title:               title,
		HTML:                renderedHTML,
		PlainText:           strings.TrimSpace(plainText),
		FirstParagraphText:  firstParagraph,
		FirstImage:          firstImage,
		Frontmatter:         doc.frontmatter,
		WordCount:           wordCount(plainText),
		TOC:                 toc,
		Aliases:             stringSliceField(doc.frontmatter, "aliases"),
	}, nil
}

func titleFromFrontmatterOrH1(frontmatter map[string]interface{}, doc *goquery.Document, fallback string) string {
	if t, ok := frontmatter["title"].(string); ok && t != "" {
		return t
	}
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		return strings.TrimSpace(h1.Text())
	}
	return fallback
}

func stringSliceField(frontmatter map[string]interface{}, key string) []string {
	raw, ok := frontmatter[key]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// splitFrontmatter splits a leading "---\n...\n---\n" YAML block from the
// document body. A document with no frontmatter block returns an empty map.
func splitFrontmatter(raw []byte) (map[string]interface{}, string) {
	const delim = "---"
	text := string(raw)

	if !strings.HasPrefix(text, delim) {
		return map[string]interface{}{}, text
	}

	rest := text[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx == -1 {
		return map[string]interface{}{}, text
	}

	yamlBlock := strings.TrimPrefix(rest[:idx], "\n")
	body := strings.TrimPrefix(rest[idx+len(delim)+1:], "\n")

	var frontmatter map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlBlock), &frontmatter); err != nil || frontmatter == nil {
		frontmatter = map[string]interface{}{}
	}

	return frontmatter, body
}

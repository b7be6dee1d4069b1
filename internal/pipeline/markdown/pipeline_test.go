package markdown

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/interfaces"
)

func newTestPipeline(t *testing.T) *Pipeline {
	return New(Options{
		NotePrefix:      "/notes",
		MermaidStrategy: MermaidPreMermaid,
		ParseFormulas:   false,
		Iframe:          DefaultIframeConfig("https://embed.example.com"),
		WorkDir:         t.TempDir(),
	}, arbor.NewLogger())
}

func writeVaultFile(t *testing.T, root, relPath, content string) string {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func TestRenderAll_BasicPost(t *testing.T) {
	root := t.TempDir()
	path := writeVaultFile(t, root, "hello.md", "---\ntitle: Hello\n---\n# Hello\n\nThis is a paragraph.")

	p := newTestPipeline(t)
	issues := interfaces.NewIssueCollector()

	posts, _, err := p.RenderAll(context.Background(), root, []string{path}, nil, issues)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	post := posts[0]
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "hello", post.Slug)
	assert.Equal(t, "/notes/hello", post.URL)
	assert.Contains(t, post.HTML, "This is a paragraph.")
	assert.NotEmpty(t, post.Hash)
	assert.Len(t, post.Hash, 64)
}

func TestRenderAll_WikilinkResolvesToOtherPost(t *testing.T) {
	root := t.TempDir()
	pathA := writeVaultFile(t, root, "post-a.md", "# Post A\n\nsee [[Post B]]")
	pathB := writeVaultFile(t, root, "post-b.md", "# Post B\n\nbody")

	p := newTestPipeline(t)
	issues := interfaces.NewIssueCollector()

	posts, _, err := p.RenderAll(context.Background(), root, []string{pathA, pathB}, nil, issues)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	var postAHTML string
	for _, post := range posts {
		if post.Filename == "post-a.md" {
			postAHTML = post.HTML
		}
	}
	assert.Contains(t, postAHTML, `href="/notes/post-b"`)
}

func TestRenderAll_UnresolvedWikilinkRecordsIssue(t *testing.T) {
	root := t.TempDir()
	path := writeVaultFile(t, root, "orphan.md", "# Orphan\n\nsee [[Nonexistent Page]]")

	p := newTestPipeline(t)
	issues := interfaces.NewIssueCollector()

	_, _, err := p.RenderAll(context.Background(), root, []string{path}, nil, issues)
	require.NoError(t, err)

	found := false
	for _, issue := range issues.All() {
		if issue.Stage == "link-resolution" {
			found = true
		}
	}
	assert.True(t, found, "expected a link-resolution issue for the unresolved wikilink")
}

func TestRenderAll_DuplicateSlugsGetNumericSuffix(t *testing.T) {
	root := t.TempDir()
	pathA := writeVaultFile(t, root, "folder-a/index.md", "---\nslug: same\n---\n# A")
	pathB := writeVaultFile(t, root, "folder-b/index.md", "---\nslug: same\n---\n# B")

	p := newTestPipeline(t)
	issues := interfaces.NewIssueCollector()

	posts, _, err := p.RenderAll(context.Background(), root, []string{pathA, pathB}, nil, issues)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	slugs := map[string]bool{}
	for _, post := range posts {
		slugs[post.Slug] = true
	}
	assert.True(t, slugs["same"])
	assert.True(t, slugs["same-2"])
}

func TestRenderAll_MediaEmbedResolvesToPublicURL(t *testing.T) {
	root := t.TempDir()
	path := writeVaultFile(t, root, "with-image.md", "# With Image\n\n![[photo.png]]")

	p := newTestPipeline(t)
	issues := interfaces.NewIssueCollector()
	mediaURLs := map[string]string{"photo.png": "/media/abc123-md.webp"}

	posts, _, err := p.RenderAll(context.Background(), root, []string{path}, mediaURLs, issues)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].HTML, "/media/abc123-md.webp")
}

func TestRenderAll_StandardImageSyntaxResolvesToPublicURL(t *testing.T) {
	root := t.TempDir()
	path := writeVaultFile(t, root, "with-image.md", "# With Image\n\n![a photo](photo.png)")

	p := newTestPipeline(t)
	issues := interfaces.NewIssueCollector()
	mediaURLs := map[string]string{"photo.png": "/media/abc123-md.webp"}

	posts, _, err := p.RenderAll(context.Background(), root, []string{path}, mediaURLs, issues)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].HTML, "/media/abc123-md.webp")
}

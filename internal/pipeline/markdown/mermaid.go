package markdown

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// MermaidStrategy selects how fenced ```mermaid blocks are rendered.
type MermaidStrategy string

const (
	MermaidInlineSVG  MermaidStrategy = "inline-svg"
	MermaidImgSVG     MermaidStrategy = "img-svg"
	MermaidPreMermaid MermaidStrategy = "pre-mermaid"
)

// mermaidRenderer shells out to the Mermaid CLI (mmdc), the same
// exec.Command-over-system-binary approach used for Git operations in this
// codebase. When the binary is unavailable, the caller falls back to
// pre-mermaid so the build still succeeds.
type mermaidRenderer struct {
	binPath string
	logger  arbor.ILogger
}

func newMermaidRenderer(logger arbor.ILogger) *mermaidRenderer {
	binPath, _ := exec.LookPath("mmdc")
	return &mermaidRenderer{binPath: binPath, logger: logger}
}

func (r *mermaidRenderer) available() bool { return r.binPath != "" }

func (r *mermaidRenderer) renderSVG(ctx context.Context, source, workDir string) (string, error) {
	inFile := filepath.Join(workDir, "mermaid-in.mmd")
	outFile := filepath.Join(workDir, "mermaid-out.svg")

	if err := os.WriteFile(inFile, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("write mermaid source: %w", err)
	}
	defer os.Remove(inFile)
	defer os.Remove(outFile)

	cmd := exec.CommandContext(ctx, r.binPath, "-i", inFile, "-o", outFile, "--outputFormat", "svg")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mmdc render failed: %w: %s", err, stderr.String())
	}

	svg, err := os.ReadFile(outFile)
	if err != nil {
		return "", fmt.Errorf("read rendered svg: %w", err)
	}
	return string(svg), nil
}

// applyMermaidStrategy walks every `pre > code.language-mermaid` block in
// doc and replaces it according to strategy.
func applyMermaidStrategy(ctx context.Context, doc *goquery.Document, strategy MermaidStrategy, workDir string, renderer *mermaidRenderer, onIssue func(message string)) {
	if strategy == MermaidPreMermaid {
		return
	}

	doc.Find("pre > code.language-mermaid").Each(func(_ int, sel *goquery.Selection) {
		source := sel.Text()
		pre := sel.Parent()

		if !renderer.available() {
			onIssue("mermaid renderer (mmdc) not found on PATH, leaving block as pre-mermaid")
			return
		}

		svg, err := renderer.renderSVG(ctx, source, workDir)
		if err != nil {
			onIssue(fmt.Sprintf("mermaid render failed: %v", err))
			return
		}

		switch strategy {
		case MermaidInlineSVG:
			pre.ReplaceWithHtml(fmt.Sprintf(`<div class="mermaid-diagram">%s</div>`, svg))
		case MermaidImgSVG:
			encoded := "data:image/svg+xml;base64," + base64Encode(svg)
			pre.ReplaceWithHtml(fmt.Sprintf(`<img class="mermaid-diagram" src="%s" alt="diagram" />`, encoded))
		}
	})
}

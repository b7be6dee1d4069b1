package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vaultpress/buildworker/internal/models"
)

var mathInline = regexp.MustCompile(`\$([^\$\n]+)\$`)
var mathDisplay = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)

// applyMathPresentation rewrites $inline$ and $$display$$ formulas into a
// neutral span/div presentational form; it does not attempt LaTeX layout.
func applyMathPresentation(source string) string {
	source = mathDisplay.ReplaceAllString(source, `<div class="math-display">$1</div>`)
	source = mathInline.ReplaceAllString(source, `<span class="math-inline">$1</span>`)
	return source
}

// extractTOC walks headings in document order, assigning each a URL-safe,
// de-duplicated id.
func extractTOC(doc *goquery.Document) []models.TOCEntry {
	var toc []models.TOCEntry
	seen := make(map[string]int)

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		depth := int(sel.Get(0).Data[1] - '0')
		title := strings.TrimSpace(sel.Text())
		id := Slugify(title)
		if id == "" {
			id = "heading"
		}
		if n, exists := seen[id]; exists {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			seen[id] = 1
		}
		sel.SetAttr("id", id)
		toc = append(toc, models.TOCEntry{ID: id, Title: title, Depth: depth})
	})

	return toc
}

func extractFirstParagraph(doc *goquery.Document) string {
	text := ""
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		t := strings.TrimSpace(sel.Text())
		if t == "" {
			return true
		}
		text = t
		return false
	})
	return text
}

func extractFirstImage(doc *goquery.Document) string {
	src := ""
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := sel.Attr("src"); ok && v != "" {
			src = v
			return false
		}
		return true
	})
	return src
}

func wordCount(plainText string) int {
	return len(strings.Fields(plainText))
}

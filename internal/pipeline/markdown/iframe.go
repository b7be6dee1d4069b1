package markdown

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IframeCategory is one of the fixed embeddable content categories.
type IframeCategory string

const (
	CategoryMermaid  IframeCategory = "mermaid"
	CategoryVideo    IframeCategory = "video"
	CategoryMIDI     IframeCategory = "midi"
	CategoryModel3D  IframeCategory = "model3d"
	CategoryMarkdown IframeCategory = "markdown"
	CategoryCode     IframeCategory = "code"
)

// IframeOptions configures one category's transform.
type IframeOptions struct {
	Enabled       bool
	MinLines      int
	LanguageAllow map[string]bool // empty means all languages allowed
	Attributes    map[string]string
}

// IframeConfig is the full per-category configuration for embed rewriting.
type IframeConfig struct {
	Service    string
	Categories map[IframeCategory]IframeOptions
}

// DefaultIframeConfig enables mermaid/video/midi/3d by default and leaves
// markdown/code off, matching the documented defaults.
func DefaultIframeConfig(service string) IframeConfig {
	on := IframeOptions{Enabled: true}
	off := IframeOptions{Enabled: false}
	return IframeConfig{
		Service: service,
		Categories: map[IframeCategory]IframeOptions{
			CategoryMermaid:  on,
			CategoryVideo:    on,
			CategoryMIDI:     on,
			CategoryModel3D:  on,
			CategoryMarkdown: off,
			CategoryCode:     off,
		},
	}
}

var nakedURLPattern = regexp.MustCompile(`^https?://\S+$`)

var videoExt = regexp.MustCompile(`(?i)\.(mp4|webm|mov)(\?.*)?$`)
var midiExt = regexp.MustCompile(`(?i)\.(mid|midi)(\?.*)?$`)
var model3dExt = regexp.MustCompile(`(?i)\.(glb|gltf|obj)(\?.*)?$`)

// applyIframeEmbeds rewrites fenced code blocks and naked URL paragraphs
// into <iframe> elements for every enabled category.
func applyIframeEmbeds(doc *goquery.Document, cfg IframeConfig) {
	doc.Find("pre > code").Each(func(_ int, sel *goquery.Selection) {
		lang := languageClass(sel)
		category, ok := categoryForLanguage(lang)
		if !ok {
			return
		}

		opts, enabled := cfg.Categories[category]
		if !enabled || !opts.Enabled {
			return
		}
		if opts.MinLines > 0 && scanLineCount(sel.Text()) < opts.MinLines {
			return
		}
		if len(opts.LanguageAllow) > 0 && !opts.LanguageAllow[lang] {
			return
		}

		src := fmt.Sprintf("%s?content=%s", cfg.Service, url.QueryEscape(base64Encode(sel.Text())))
		sel.Parent().ReplaceWithHtml(iframeHTML(src, opts.Attributes))
	})

	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if !nakedURLPattern.MatchString(text) {
			return
		}

		category, ok := categoryForURL(text)
		if !ok {
			return
		}

		opts, enabled := cfg.Categories[category]
		if !enabled || !opts.Enabled {
			return
		}

		src := fmt.Sprintf("%s?url=%s", cfg.Service, url.QueryEscape(text))
		sel.ReplaceWithHtml(iframeHTML(src, opts.Attributes))
	})
}

func languageClass(sel *goquery.Selection) string {
	class, _ := sel.Attr("class")
	return strings.TrimPrefix(class, "language-")
}

func categoryForLanguage(lang string) (IframeCategory, bool) {
	switch lang {
	case "mermaid":
		return CategoryMermaid, true
	case "markdown", "md":
		return CategoryMarkdown, true
	default:
		if lang != "" {
			return CategoryCode, true
		}
		return "", false
	}
}

func categoryForURL(rawURL string) (IframeCategory, bool) {
	switch {
	case videoExt.MatchString(rawURL):
		return CategoryVideo, true
	case midiExt.MatchString(rawURL):
		return CategoryMIDI, true
	case model3dExt.MatchString(rawURL):
		return CategoryModel3D, true
	default:
		return "", false
	}
}

func iframeHTML(src string, attrs map[string]string) string {
	var attrBuilder strings.Builder
	for k, v := range attrs {
		fmt.Fprintf(&attrBuilder, ` %s="%s"`, k, v)
	}
	return fmt.Sprintf(`<iframe src="%s" loading="lazy"%s></iframe>`, src, attrBuilder.String())
}

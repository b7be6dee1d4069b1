package markdown

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	embedPattern         = regexp.MustCompile(`!\[\[([^\]|]+)(\|[^\]]*)?\]\]`)
	wikilinkPattern      = regexp.MustCompile(`\[\[([^\]|]+)(\|([^\]]*))?\]\]`)
	markdownImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
)

// linkResolver resolves one wikilink target to a final href, or reports it
// unresolved.
type linkResolver func(target string) (href string, resolved bool)

// mediaResolver resolves an embed target (a bare filename) to its md-sized
// derivative public URL.
type mediaResolver func(filename string) (url string, resolved bool)

// rewriteWikilinksAndEmbeds runs before goldmark parsing so that wikilinks
// and Obsidian embeds become ordinary Markdown link/image syntax the GFM
// parser already understands. removeDeadLinks controls the fallback for
// unresolved wikilink targets.
func rewriteWikilinksAndEmbeds(source string, resolveLink linkResolver, resolveMedia mediaResolver, removeDeadLinks bool, onUnresolved func(target string)) string {
	source = embedPattern.ReplaceAllStringFunc(source, func(match string) string {
		sub := embedPattern.FindStringSubmatch(match)
		target := strings.TrimSpace(sub[1])
		alias := target
		if sub[2] != "" {
			alias = strings.TrimSpace(strings.TrimPrefix(sub[2], "|"))
		}

		if url, ok := resolveMedia(filepath.Base(target)); ok {
			return fmt.Sprintf("![%s](%s)", alias, url)
		}
		// Not a media file - treat it as an embedded-note reference; link
		// to it like a normal wikilink instead of silently dropping it.
		if href, ok := resolveLink(target); ok {
			return fmt.Sprintf("[%s](%s)", alias, href)
		}
		onUnresolved(target)
		if removeDeadLinks {
			return ""
		}
		return alias
	})

	source = markdownImagePattern.ReplaceAllStringFunc(source, func(match string) string {
		sub := markdownImagePattern.FindStringSubmatch(match)
		alt, target := sub[1], sub[2]
		if strings.Contains(target, "://") {
			return match // absolute URL, nothing to resolve
		}
		if url, ok := resolveMedia(filepath.Base(target)); ok {
			return fmt.Sprintf("![%s](%s)", alt, url)
		}
		return match
	})

	source = wikilinkPattern.ReplaceAllStringFunc(source, func(match string) string {
		sub := wikilinkPattern.FindStringSubmatch(match)
		target := strings.TrimSpace(sub[1])
		alias := target
		if sub[3] != "" {
			alias = strings.TrimSpace(sub[3])
		}

		if href, ok := resolveLink(target); ok {
			return fmt.Sprintf("[%s](%s)", alias, href)
		}

		onUnresolved(target)
		if removeDeadLinks {
			return ""
		}
		return alias
	})

	return source
}

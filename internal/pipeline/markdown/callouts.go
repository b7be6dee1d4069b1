package markdown

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

var calloutHeaderPattern = regexp.MustCompile(`^\[!(\w+)\]\s*(.*)$`)

// rewriteCallouts rewrites Obsidian-style `> [!type] header` blockquotes
// into a fenced HTML block goldmark's raw-HTML passthrough renders as-is,
// since goldmark has no native callout concept. Each contiguous run of `>`
// lines starting with a callout marker becomes one callout div; plain
// blockquotes are left untouched.
func rewriteCallouts(source string) string {
	lines := strings.Split(source, "\n")
	var out []string

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimPrefix(strings.TrimPrefix(line, "> "), ">")

		if match := calloutHeaderPattern.FindStringSubmatch(strings.TrimSpace(trimmed)); match != nil && strings.HasPrefix(strings.TrimSpace(line), ">") {
			calloutType := strings.ToLower(match[1])
			header := strings.TrimSpace(match[2])
			if header == "" {
				header = strings.Title(calloutType)
			}

			var body []string
			i++
			for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), ">") {
				bodyLine := strings.TrimPrefix(strings.TrimPrefix(lines[i], "> "), ">")
				body = append(body, bodyLine)
				i++
			}

			out = append(out, fmt.Sprintf(`<div class="callout callout-%s">`, calloutType))
			out = append(out, fmt.Sprintf(`<p class="callout-title">%s</p>`, header))
			out = append(out, "")
			out = append(out, body...)
			out = append(out, "")
			out = append(out, "</div>")
			continue
		}

		out = append(out, line)
		i++
	}

	return strings.Join(out, "\n")
}

// scanLineCount reports how many lines a fenced code block body spans,
// used by the iframe-embed minimum-line-count option.
func scanLineCount(body string) int {
	scanner := bufio.NewScanner(strings.NewReader(body))
	count := 0
	for scanner.Scan() {
		count++
	}
	return count
}

package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/models"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases, strips non-alphanumerics to single hyphens, and trims
// leading/trailing hyphens.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// candidate is one document's slug proposal, in deterministic walk order.
type candidate struct {
	hash    string
	slug    string
	aliases []string
}

// BuildSlugTable registers every document's candidate slug in walk order.
// Collisions are resolved by appending a numeric suffix to later entries; a
// warning issue is recorded for every renamed slug.
func BuildSlugTable(docs []candidate, issues *issueSink, logger arbor.ILogger) map[string]string {
	slugOf := make(map[string]string, len(docs)) // hash -> final slug
	taken := make(map[string]string, len(docs))   // slug -> hash

	for _, doc := range docs {
		slug := doc.slug
		if slug == "" {
			slug = doc.hash[:8]
		}

		final := slug
		if owner, exists := taken[final]; exists && owner != doc.hash {
			for n := 2; ; n++ {
				candidateSlug := fmt.Sprintf("%s-%d", slug, n)
				if _, exists := taken[candidateSlug]; !exists {
					final = candidateSlug
					break
				}
			}
			issues.add("slug-table", doc.hash, models.IssueSeverityWarning,
				fmt.Sprintf("slug %q collided, renamed to %q", slug, final))
		}

		taken[final] = doc.hash
		slugOf[doc.hash] = final
	}

	return slugOf
}

// BuildAliasIndex registers every document's declared aliases against the
// slug table, dropping any alias that collides with an existing slug or
// alias.
func BuildAliasIndex(docs []candidate, slugOf map[string]string, issues *issueSink) models.AliasIndex {
	index := make(models.AliasIndex)
	reserved := make(map[string]bool, len(slugOf))
	for _, slug := range slugOf {
		reserved[slug] = true
	}

	for _, doc := range docs {
		finalSlug := slugOf[doc.hash]
		for _, alias := range doc.aliases {
			aliasSlug := Slugify(alias)
			if aliasSlug == "" {
				continue
			}
			if reserved[aliasSlug] {
				issues.add("alias-table", doc.hash, models.IssueSeverityWarning,
					fmt.Sprintf("alias %q collides with an existing slug or alias, dropped", alias))
				continue
			}
			reserved[aliasSlug] = true
			index[aliasSlug] = finalSlug
		}
	}

	return index
}

// issueSink is the narrow subset of interfaces.IssueCollector that the slug
// and alias builders use: a single add callback.
type issueSink struct {
	add func(stage, item string, severity models.IssueSeverity, message string)
}

func newIssueSink(add func(stage, item string, severity models.IssueSeverity, message string)) *issueSink {
	return &issueSink{add: add}
}

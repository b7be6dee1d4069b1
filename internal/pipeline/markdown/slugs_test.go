package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpress/buildworker/internal/models"
)

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello World", "hello-world"},
		{"  Leading And Trailing  ", "leading-and-trailing"},
		{"Multiple---Dashes", "multiple-dashes"},
		{"Unicode: café", "unicode-caf"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func collectIssues() (*issueSink, *[]string) {
	var messages []string
	sink := newIssueSink(func(stage, item string, severity models.IssueSeverity, message string) {
		messages = append(messages, message)
	})
	return sink, &messages
}

func TestBuildSlugTable_NoCollisions(t *testing.T) {
	docs := []candidate{
		{hash: "h1", slug: "post-one"},
		{hash: "h2", slug: "post-two"},
	}
	sink, messages := collectIssues()

	slugOf := BuildSlugTable(docs, sink, nil)

	assert.Equal(t, "post-one", slugOf["h1"])
	assert.Equal(t, "post-two", slugOf["h2"])
	assert.Empty(t, *messages)
}

func TestBuildSlugTable_CollisionGetsNumericSuffix(t *testing.T) {
	docs := []candidate{
		{hash: "h1", slug: "same-title"},
		{hash: "h2", slug: "same-title"},
		{hash: "h3", slug: "same-title"},
	}
	sink, messages := collectIssues()

	slugOf := BuildSlugTable(docs, sink, nil)

	require.Equal(t, "same-title", slugOf["h1"])
	require.Equal(t, "same-title-2", slugOf["h2"])
	require.Equal(t, "same-title-3", slugOf["h3"])
	assert.Len(t, *messages, 2)
}

func TestBuildSlugTable_EmptySlugFallsBackToHashPrefix(t *testing.T) {
	docs := []candidate{{hash: "abcdef1234567890", slug: ""}}
	sink, _ := collectIssues()

	slugOf := BuildSlugTable(docs, sink, nil)

	assert.Equal(t, "abcdef12", slugOf["abcdef1234567890"])
}

func TestBuildAliasIndex_RegistersAliases(t *testing.T) {
	docs := []candidate{
		{hash: "h1", slug: "post-one", aliases: []string{"Old Title"}},
	}
	sink, _ := collectIssues()
	slugOf := BuildSlugTable(docs, sink, nil)

	index := BuildAliasIndex(docs, slugOf, sink)

	assert.Equal(t, "post-one", index["old-title"])
}

func TestBuildAliasIndex_DropsAliasCollidingWithSlug(t *testing.T) {
	docs := []candidate{
		{hash: "h1", slug: "post-one"},
		{hash: "h2", slug: "post-two", aliases: []string{"Post One"}},
	}
	sink, messages := collectIssues()
	slugOf := BuildSlugTable(docs, sink, nil)

	index := BuildAliasIndex(docs, slugOf, sink)

	_, exists := index["post-one"]
	assert.False(t, exists)
	assert.NotEmpty(t, *messages)
}

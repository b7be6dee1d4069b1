package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteCallouts_BasicNote(t *testing.T) {
	source := "> [!note] Heads up\n> This is the body.\n> Second line."
	out := rewriteCallouts(source)

	assert.Contains(t, out, `<div class="callout callout-note">`)
	assert.Contains(t, out, `<p class="callout-title">Heads up</p>`)
	assert.Contains(t, out, "This is the body.")
	assert.Contains(t, out, "</div>")
}

func TestRewriteCallouts_DefaultsHeaderToTypeWhenOmitted(t *testing.T) {
	source := "> [!warning]\n> careful here"
	out := rewriteCallouts(source)

	assert.Contains(t, out, `<p class="callout-title">Warning</p>`)
}

func TestRewriteCallouts_PlainBlockquoteUntouched(t *testing.T) {
	source := "> just a regular quote\n> nothing special"
	out := rewriteCallouts(source)

	assert.Equal(t, source, out)
	assert.NotContains(t, out, "callout")
}

func TestRewriteCallouts_NonBlockquoteTextUnaffected(t *testing.T) {
	source := "plain paragraph\n\nmore text"
	assert.Equal(t, source, rewriteCallouts(source))
}

func TestScanLineCount(t *testing.T) {
	assert.Equal(t, 0, scanLineCount(""))
	assert.Equal(t, 1, scanLineCount("one line"))
	assert.Equal(t, 3, scanLineCount("a\nb\nc"))
}

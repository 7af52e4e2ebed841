package xmltool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceNestedSameNameElements(t *testing.T) {
	forest := balance(`<a><a>inner</a> outer</a>`)
	require.Len(t, forest, 1)
	assert.Equal(t, "a", forest[0].name)
	require.Len(t, forest[0].children, 1)
	assert.Equal(t, "a", forest[0].children[0].name)
}

func TestBalanceSkipsCommentsAndCDATA(t *testing.T) {
	s := `<search><!-- not a <query> --><query><![CDATA[<raw/>]]></query></search>`
	forest := balance(s)
	require.Len(t, forest, 1)
	require.Len(t, forest[0].children, 1)
	query := forest[0].children[0]
	assert.Equal(t, "query", query.name)
	assert.Equal(t, "<![CDATA[<raw/>]]>", s[query.innerStart:query.innerEnd])
}

func TestBalanceSelfClosingTag(t *testing.T) {
	forest := balance(`<search><query value="x"/></search>`)
	require.Len(t, forest, 1)
	require.Len(t, forest[0].children, 1)
	assert.True(t, forest[0].children[0].selfClosed)
}

func TestBalanceRecoversUnclosedTagAtEndOfText(t *testing.T) {
	forest := balance(`<search><query>ice cream`)
	require.Len(t, forest, 1)
	assert.True(t, forest[0].unterminated)
	require.Len(t, forest[0].children, 1)
	assert.True(t, forest[0].children[0].unterminated)
}

func TestBalanceKeepsDanglingNestedFragmentAsUnterminatedChild(t *testing.T) {
	// <b> opens inside <a> but is never closed before </a> arrives; it
	// should surface as an unterminated child fragment rather than
	// swallowing the rest of the document.
	forest := balance(`<a><b>dangling</a><a>real</a>`)
	require.Len(t, forest, 2)
	assert.True(t, forest[0].unterminated == false)
	require.Len(t, forest[0].children, 1)
	assert.True(t, forest[0].children[0].unterminated)
	assert.Equal(t, "real", stringifyInner(`<a><b>dangling</a><a>real</a>`, forest[1]))
}

func stringifyInner(s string, e element) string {
	return s[e.innerStart:e.innerEnd]
}

func TestEqFoldCaseInsensitive(t *testing.T) {
	assert.True(t, eqFold("Search", "search"))
	assert.False(t, eqFold("search", "lookup"))
}

package xmltool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCompleteNonStreamingRecovery(t *testing.T) {
	tools := map[string]bool{"search": true}
	tc, ok := extractComplete(`Here you go: <search><query>ice cream</query></search>`, tools)
	require.True(t, ok)
	assert.Equal(t, "search", tc.Name)
	assert.Equal(t, "ice cream", tc.Arguments["query"])
}

func TestExtractCompleteHTMLBeforeTool(t *testing.T) {
	tools := map[string]bool{"search": true}
	tc, ok := extractComplete(`<div>hi</div> then <search><query>q</query></search>`, tools)
	require.True(t, ok)
	assert.Equal(t, "search", tc.Name)
	assert.Equal(t, "q", tc.Arguments["query"])
}

func TestExtractCompleteSuppressesCallsInsideThinkRegion(t *testing.T) {
	tools := map[string]bool{"search": true}
	text := `<think><search><query>secret</query></search></think><search><query>real</query></search>`
	tc, ok := extractComplete(text, tools)
	require.True(t, ok)
	assert.Equal(t, "real", tc.Arguments["query"])
}

func TestExtractCompleteReturnsNilForPlainHTML(t *testing.T) {
	tools := map[string]bool{"search": true}
	_, ok := extractComplete(`<div>just some markup</div>`, tools)
	assert.False(t, ok)
}

func TestExtractCompleteNoKnownTools(t *testing.T) {
	_, ok := extractComplete(`<search><query>x</query></search>`, nil)
	assert.False(t, ok)
}

func TestExtractFromWrapperRestrictsToSentinelPair(t *testing.T) {
	tools := map[string]bool{"search": true}
	text := `prose <toolbridge:calls><search><query>a</query></search></toolbridge:calls> trailing <search><query>b</query></search>`
	tc, ok := extractFromWrapper(text, tools)
	require.True(t, ok)
	assert.Equal(t, "a", tc.Arguments["query"])
}

func TestExtractFromWrapperAcceptsLegacyUnderscoreForm(t *testing.T) {
	tools := map[string]bool{"search": true}
	text := `<toolbridge_calls><search><query>a</query></search></toolbridge_calls>`
	tc, ok := extractFromWrapper(text, tools)
	require.True(t, ok)
	assert.Equal(t, "search", tc.Name)
}

func TestExtractAllFromWrapperReturnsEveryCall(t *testing.T) {
	tools := map[string]bool{"search": true, "lookup": true}
	text := `<toolbridge:calls><search><query>a</query></search><lookup><id>1</id></lookup></toolbridge:calls>`
	calls := extractAllFromWrapper(text, tools)
	require.Len(t, calls, 2)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, "lookup", calls[1].Name)
}

func TestExtractFallsBackToJSONWhenBalancingFindsNothing(t *testing.T) {
	tools := map[string]bool{"search": true}
	tc, ok := Extract(`search({"query": "ice cream", trailing: 'x',})`, tools)
	require.True(t, ok)
	assert.Equal(t, "search", tc.Name)
	assert.Equal(t, "ice cream", tc.Arguments["query"])
	assert.Equal(t, "x", tc.Arguments["trailing"])
}

func TestExtractPrefersWrapperOverBareBalancing(t *testing.T) {
	tools := map[string]bool{"search": true}
	text := `<toolbridge:calls><search><query>wrapped</query></search></toolbridge:calls><search><query>bare</query></search>`
	tc, ok := Extract(text, tools)
	require.True(t, ok)
	assert.Equal(t, "wrapped", tc.Arguments["query"])
}

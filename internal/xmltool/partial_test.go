package xmltool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPartialChunkedSplitAcrossFrames(t *testing.T) {
	tools := map[string]bool{"search": true}

	first := ExtractPartial("<sea", tools, nil, 0)
	assert.False(t, first.Complete)
	assert.False(t, first.HasContent)
	require.NotNil(t, first.PartialState)

	second := ExtractPartial("<search><query>x</query></search>", tools, first.PartialState, 0)
	require.True(t, second.Complete)
	require.NotNil(t, second.ToolCall)
	assert.Equal(t, "search", second.ToolCall.Name)
	assert.Equal(t, "x", second.ToolCall.Arguments["query"])
}

func TestExtractPartialHTMLPrefaceNeverBuffers(t *testing.T) {
	tools := map[string]bool{"search": true}
	result := ExtractPartial("<div>hello</div>", tools, nil, 0)
	assert.False(t, result.Complete)
	assert.True(t, result.HasContent)
	assert.Nil(t, result.PartialState)
}

func TestExtractPartialResetsWhenRuledOutAfterBeingPotential(t *testing.T) {
	tools := map[string]bool{"search": true}
	// "<seardo" diverges from "search" at the name's fifth byte: never a
	// candidate once the mismatch appears, regardless of "previously
	// potential" bookkeeping.
	first := ExtractPartial("<sea", tools, nil, 0)
	require.NotNil(t, first.PartialState)

	result := ExtractPartial("<seardo something", tools, first.PartialState, 0)
	assert.False(t, result.Complete)
	assert.Nil(t, result.PartialState)
}

func TestExtractPartialMonotonicityNeverFlipsFalseToTrue(t *testing.T) {
	tools := map[string]bool{"search": true}

	prefixes := []string{"<sea", "<seardo", "<seardo>unrelated"}
	var state *PartialState
	sawRuledOut := false
	for _, p := range prefixes {
		res := ExtractPartial(p, tools, state, 0)
		if res.PartialState == nil && !res.Complete {
			sawRuledOut = true
		}
		if sawRuledOut {
			assert.Nil(t, res.PartialState, "once ruled out, must stay ruled out for %q", p)
		}
		state = res.PartialState
	}
	assert.True(t, sawRuledOut)
}

func TestExtractPartialEnforcesMaxBufferSizeWindow(t *testing.T) {
	tools := map[string]bool{"search": true}
	huge := "<search>" + string(make([]byte, 100)) + "no closing tag here"
	result := ExtractPartial(huge, tools, nil, 16)
	assert.False(t, result.Complete)
}

package streamproc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/dialect/openai"
)

func sseFrame(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return FormatSSEFrame(body)
}

func TestOpenAIPassthroughForwardsPlainContent(t *testing.T) {
	var buf bytes.Buffer
	p := newOpenAIPassthrough(&buf, nil, 0, func() string { return "call_1" })

	content := "Hello there"
	require.NoError(t, p.ProcessChunk(sseFrame(t, openai.StreamChunk{
		Model:   "gpt-4",
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: &content}}},
	})))
	require.NoError(t, p.End())

	out := buf.String()
	assert.Contains(t, out, "Hello there")
	assert.Contains(t, out, "data: [DONE]")
}

func TestOpenAIPassthroughRecoversXMLToolCallAcrossChunks(t *testing.T) {
	var buf bytes.Buffer
	known := map[string]bool{"get_weather": true}
	p := newOpenAIPassthrough(&buf, known, 0, func() string { return "call_xyz" })

	xml := `<toolbridge:calls><get_weather><location>Boston</location></get_weather></toolbridge:calls>`
	parts := []string{"Sure, ", xml[:20], xml[20:]}

	for _, part := range parts {
		content := part
		require.NoError(t, p.ProcessChunk(sseFrame(t, openai.StreamChunk{
			Model:   "gpt-4",
			Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: &content}}},
		})))
	}
	require.NoError(t, p.End())

	out := buf.String()
	assert.Contains(t, out, "Sure, ")
	assert.Contains(t, out, `"name":"get_weather"`)
	assert.Contains(t, out, `"finish_reason":"tool_calls"`)
	assert.Contains(t, out, "data: [DONE]")
}

func TestOpenAIPassthroughPassesToolCallsFramesThrough(t *testing.T) {
	var buf bytes.Buffer
	p := newOpenAIPassthrough(&buf, nil, 0, func() string { return "call_1" })

	idx := 0
	require.NoError(t, p.ProcessChunk(sseFrame(t, openai.StreamChunk{
		Model: "gpt-4",
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{
			ToolCalls: []openai.ToolCall{{Index: &idx, ID: "call_native", Type: "function", Function: openai.FunctionCall{Name: "ls", Arguments: ""}}},
		}}},
	})))
	require.NoError(t, p.End())

	out := buf.String()
	assert.Contains(t, out, "call_native")
}

func TestOpenAIPassthroughHandlesSplitSSEFramesAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	p := newOpenAIPassthrough(&buf, nil, 0, func() string { return "call_1" })

	content := "partial frame test"
	frame := sseFrame(t, openai.StreamChunk{
		Model:   "gpt-4",
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: &content}}},
	})

	mid := len(frame) / 2
	require.NoError(t, p.ProcessChunk(frame[:mid]))
	require.NoError(t, p.ProcessChunk(frame[mid:]))
	require.NoError(t, p.End())

	assert.True(t, strings.Contains(buf.String(), "partial frame test"))
}

func TestOpenAIPassthroughCloseWritesErrorAndTerminator(t *testing.T) {
	var buf bytes.Buffer
	p := newOpenAIPassthrough(&buf, nil, 0, func() string { return "call_1" })

	require.NoError(t, p.Close("backend unreachable"))

	out := buf.String()
	assert.Contains(t, out, "backend unreachable")
	assert.Contains(t, out, "data: [DONE]")

	// Idempotent: a second End or Close after Close writes nothing further.
	before := buf.Len()
	require.NoError(t, p.End())
	assert.Equal(t, before, buf.Len())
}

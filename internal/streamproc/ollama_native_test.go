package streamproc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/dialect/ollama"
)

func ollamaLine(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return FormatLineJSON(body)
}

func TestOllamaNativeForwardsPlainContentThenDone(t *testing.T) {
	var buf bytes.Buffer
	p := newOllamaNative(&buf, nil, 0)

	require.NoError(t, p.ProcessChunk(ollamaLine(t, ollama.ChatResponse{
		Model: "llama3", CreatedAt: "2026-01-01T00:00:00Z",
		Message: ollama.Message{Role: "assistant", Content: "hi there"},
	})))
	require.NoError(t, p.ProcessChunk(ollamaLine(t, ollama.ChatResponse{
		Model: "llama3", CreatedAt: "2026-01-01T00:00:00Z",
		Done: true, DoneReason: "stop", PromptEvalCount: 3, EvalCount: 5,
	})))

	out := buf.String()
	assert.Contains(t, out, "hi there")
	assert.Contains(t, out, `"done":true`)
	assert.Contains(t, out, `"done_reason":"stop"`)
}

func TestOllamaNativeRecoversXMLToolCallAcrossLines(t *testing.T) {
	var buf bytes.Buffer
	known := map[string]bool{"get_weather": true}
	p := newOllamaNative(&buf, known, 0)

	xml := `<toolbridge:calls><get_weather><location>Boston</location></get_weather></toolbridge:calls>`
	parts := []string{"Sure, ", xml[:20], xml[20:]}
	for _, part := range parts {
		require.NoError(t, p.ProcessChunk(ollamaLine(t, ollama.ChatResponse{
			Model: "llama3", CreatedAt: "2026-01-01T00:00:00Z",
			Message: ollama.Message{Role: "assistant", Content: part},
		})))
	}

	out := buf.String()
	assert.Contains(t, out, "Sure, ")
	assert.Contains(t, out, `"name":"get_weather"`)
	assert.Contains(t, out, `"done_reason":"tool_calls"`)
	assert.Contains(t, out, `"done":true`)

	// Stream already ended after the synthesized tool-call record; a
	// late upstream done:true line must not produce a second one.
	before := buf.Len()
	require.NoError(t, p.ProcessChunk(ollamaLine(t, ollama.ChatResponse{Done: true, DoneReason: "stop"})))
	assert.Equal(t, before, buf.Len())
}

func TestOllamaNativeFlushesAmbiguousSpanOnUpstreamDone(t *testing.T) {
	var buf bytes.Buffer
	known := map[string]bool{"get_weather": true}
	p := newOllamaNative(&buf, known, 0)

	// "<get" looks like it might be starting a tool tag but the stream
	// ends before it resolves either way.
	require.NoError(t, p.ProcessChunk(ollamaLine(t, ollama.ChatResponse{
		Model: "llama3", Message: ollama.Message{Role: "assistant", Content: "well <get"},
	})))
	require.NoError(t, p.ProcessChunk(ollamaLine(t, ollama.ChatResponse{
		Done: true, DoneReason: "stop",
	})))

	out := buf.String()
	assert.True(t, strings.Contains(out, "well") || strings.Contains(out, "<get"))
	assert.Contains(t, out, `"done":true`)
}

func TestOllamaNativeCloseWritesErrorLine(t *testing.T) {
	var buf bytes.Buffer
	p := newOllamaNative(&buf, nil, 0)

	require.NoError(t, p.Close("upstream gone"))

	out := buf.String()
	assert.Contains(t, out, "upstream gone")
	assert.Contains(t, out, `"done":true`)
}

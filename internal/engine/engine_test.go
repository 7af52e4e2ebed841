package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/dialect/ollama"
	"github.com/toolbridge/toolbridge/internal/dialect/openai"
)

func newTestEngine() *Engine {
	reg := NewRegistry()
	reg.Register(openai.New())
	reg.Register(ollama.New())
	return New(reg)
}

func TestConvertRequestStripsToolsIntoXMLPromptWhenPassToolsFalse(t *testing.T) {
	e := newTestEngine()
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "what's the weather"}],
		"tools": [{"type": "function", "function": {"name": "get_weather", "parameters": {"properties": {"city": {"type": "string"}}}}}]
	}`)

	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, false)
	out, err := e.ConvertRequest(body, ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "TOOL USAGE INSTRUCTIONS")
	assert.Contains(t, string(out), "get_weather")
	assert.NotContains(t, string(out), `"tools"`)
	assert.Contains(t, ctx.TransformationLog, "strip_native_tools")
}

func TestConvertRequestPassesToolsThroughWhenPassToolsTrue(t *testing.T) {
	e := newTestEngine()
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "hi"}],
		"tools": [{"type": "function", "function": {"name": "get_weather"}}]
	}`)

	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, true)
	out, err := e.ConvertRequest(body, ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"tools"`)
	assert.NotContains(t, ctx.TransformationLog, "strip_native_tools")
}

func TestConvertRequestAppliesCapabilityFilterForOllamaTarget(t *testing.T) {
	e := newTestEngine()
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "hi"}],
		"logprobs": true,
		"user": "alice"
	}`)
	ctx := NewConversionContext("openai", "ollama", nil, true)
	out, err := e.ConvertRequest(body, ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "alice")
	found := false
	for _, entry := range ctx.TransformationLog {
		if entry == "capability_filter: dropped user (unsupported by ollama)" {
			found = true
		}
	}
	assert.True(t, found, "expected a capability_filter drop entry for user field, got %v", ctx.TransformationLog)
}

func TestConvertResponsePassthroughWhenSameDialect(t *testing.T) {
	e := newTestEngine()
	body := []byte(`{"id":"x","model":"gpt-4o","choices":[]}`)
	ctx := NewConversionContext("openai", "openai", nil, true)
	out, err := e.ConvertResponse(body, ctx)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestConvertResponseCrossDialect(t *testing.T) {
	e := newTestEngine()
	body := []byte(`{
		"model": "llama3",
		"created_at": "2026-01-01T00:00:00Z",
		"message": {"role": "assistant", "content": "hi there"},
		"done": true
	}`)
	ctx := NewConversionContext("ollama", "openai", nil, true)
	out, err := e.ConvertResponse(body, ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "hi there")
	assert.Contains(t, string(out), `"chat.completion"`)
}

func TestConvertStreamPropagatesConvertedChunksAndStopsOnClose(t *testing.T) {
	e := newTestEngine()
	source := make(chan []byte, 2)
	source <- []byte(`{"model":"llama3","created_at":"2026-01-01T00:00:00Z","message":{"role":"assistant","content":"hi"},"done":false}`)
	close(source)

	ctx := NewConversionContext("ollama", "openai", nil, true)
	out, errc := e.ConvertStream(context.Background(), source, ctx)

	var chunks [][]byte
	for c := range out {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 1)
	assert.Contains(t, string(chunks[0]), `"content":"hi"`)

	err, ok := <-errc
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestConvertRequestStrictFailsOnIncompatibleFeature(t *testing.T) {
	e := newTestEngine()
	body := []byte(`{
		"model": "m",
		"messages": [{"role": "user", "content": "hi"}],
		"response_format": {"type": "json_schema", "json_schema": {"name": "x", "schema": {}}}
	}`)
	ctx := NewConversionContext("openai", "ollama", nil, true)
	ctx.Strict = true
	_, err := e.ConvertRequest(body, ctx)
	require.Error(t, err)
}

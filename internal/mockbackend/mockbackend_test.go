package mockbackend

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/dialect/ollama"
	"github.com/toolbridge/toolbridge/internal/dialect/openai"
)

func TestNewOpenAIChatServesFixedResponse(t *testing.T) {
	srv := NewOpenAIChat(t, openai.Response{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Model:   "gpt-test",
		Choices: []openai.Choice{{Index: 0, Message: openai.Message{Role: "assistant"}}},
	})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out openai.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "chatcmpl-1", out.ID)
}

func TestNewOpenAIStreamServesFramesAndDone(t *testing.T) {
	content := "hi"
	srv := NewOpenAIStream(t, []openai.StreamChunk{
		{ID: "1", Object: "chat.completion.chunk", Choices: []openai.ChunkChoice{{Delta: openai.Delta{Content: &content}}}},
	})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `"content":"hi"`)
	assert.True(t, strings.HasSuffix(text, "data: [DONE]\n\n"))
}

func TestNewOllamaStreamServesLineDelimitedRecords(t *testing.T) {
	srv := NewOllamaStream(t, []ollama.ChatResponse{
		{Model: "m", Message: ollama.Message{Role: "assistant", Content: "hi"}},
		{Model: "m", Done: true, DoneReason: "stop", EvalCount: 2},
	})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)

	var first, second ollama.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "hi", first.Message.Content)
	assert.True(t, second.Done)
}

func TestNewErrorResponseServesStatusAndBody(t *testing.T) {
	srv := NewErrorResponse(t, http.StatusBadGateway, []byte(`{"error":"boom"}`))

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "boom")
}

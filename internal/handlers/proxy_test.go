package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/config"
	"github.com/toolbridge/toolbridge/internal/dialect/ollama"
	"github.com/toolbridge/toolbridge/internal/dialect/openai"
	"github.com/toolbridge/toolbridge/internal/engine"
	"github.com/toolbridge/toolbridge/internal/mockbackend"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testManager(t *testing.T, backendMode config.BackendMode, backendBaseURL string) *config.Manager {
	t.Helper()
	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.SaveAsYAML(&config.Config{
		BackendMode:    backendMode,
		BackendBaseURL: backendBaseURL,
	}))
	return mgr
}

func testEngine() *engine.Engine {
	reg := engine.NewRegistry()
	reg.Register(openai.New())
	reg.Register(ollama.New())
	return engine.New(reg)
}

func TestChatHandlerOpenAIClientOllamaBackendNonStreaming(t *testing.T) {
	backend := mockbackend.NewOllamaChat(t, ollama.ChatResponse{
		Model: "llama3",
		Message: ollama.Message{
			Role:    "assistant",
			Content: "hello from ollama",
		},
		Done:            true,
		PromptEvalCount: 5,
		EvalCount:       3,
	})

	mgr := testManager(t, config.BackendOllama, backend.URL)
	h := NewChatHandler(mgr, testEngine(), testLogger())

	reqBody, err := json.Marshal(openai.Request{
		Model:    "llama3",
		Messages: []openai.Message{{Role: "user", Content: &openai.Content{Text: "hi"}}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp openai.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello from ollama", resp.Choices[0].Message.Content.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 5, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
}

func TestChatHandlerSynthesizesUsageWhenBackendOmitsIt(t *testing.T) {
	backend := mockbackend.NewOpenAIChat(t, openai.Response{
		Model: "gpt-4",
		Choices: []openai.Choice{
			{Message: openai.Message{Role: "assistant", Content: &openai.Content{Text: "a fairly short reply"}}},
		},
	})

	mgr := testManager(t, config.BackendOpenAI, backend.URL)
	h := NewChatHandler(mgr, testEngine(), testLogger())

	reqBody, err := json.Marshal(openai.Request{
		Model:    "gpt-4",
		Messages: []openai.Message{{Role: "user", Content: &openai.Content{Text: "hi there"}}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp openai.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Usage)
	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
}

func TestChatHandlerStreamingOpenAIClientOllamaBackend(t *testing.T) {
	backend := mockbackend.NewOllamaStream(t, []ollama.ChatResponse{
		{Model: "llama3", Message: ollama.Message{Role: "assistant", Content: "hel"}, Done: false},
		{Model: "llama3", Message: ollama.Message{Role: "assistant", Content: "lo"}, Done: true, PromptEvalCount: 2, EvalCount: 2},
	})

	mgr := testManager(t, config.BackendOllama, backend.URL)
	h := NewChatHandler(mgr, testEngine(), testLogger())

	reqBody, err := json.Marshal(openai.Request{
		Model:    "llama3",
		Messages: []openai.Message{{Role: "user", Content: &openai.Content{Text: "hi"}}},
		Stream:   true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "data: [DONE]")
}

func TestChatHandlerStreamingRecoversXMLToolCallFromOllamaBackend(t *testing.T) {
	backend := mockbackend.NewOllamaStream(t, []ollama.ChatResponse{
		{Model: "llama3", Message: ollama.Message{Role: "assistant", Content: "Sure, "}, Done: false},
		{Model: "llama3", Message: ollama.Message{Role: "assistant", Content: `<toolbridge:calls><get_weather><locat`}, Done: false},
		{Model: "llama3", Message: ollama.Message{Role: "assistant", Content: `ion>Boston</location></get_weather></toolbridge:calls>`}, Done: false},
		{Model: "llama3", Done: true, DoneReason: "stop", PromptEvalCount: 4, EvalCount: 2},
	})

	mgr := testManager(t, config.BackendOllama, backend.URL)
	h := NewChatHandler(mgr, testEngine(), testLogger())

	reqBody, err := json.Marshal(openai.Request{
		Model:    "llama3",
		Messages: []openai.Message{{Role: "user", Content: &openai.Content{Text: "what's the weather in boston?"}}},
		Tools: []openai.Tool{{
			Type: "function",
			Function: openai.FunctionDef{
				Name:        "get_weather",
				Description: "Look up current weather for a location",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"location": map[string]any{"type": "string"}},
				},
			},
		}},
		Stream: true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "Sure, ")
	assert.Contains(t, out, `"name":"get_weather"`)
	assert.Contains(t, out, `"arguments":"{\"location\":\"Boston\"}"`)
	assert.Contains(t, out, `"finish_reason":"tool_calls"`)
	assert.NotContains(t, out, "toolbridge:calls")
	assert.Contains(t, out, "data: [DONE]")
}

func TestChatHandlerPropagatesUpstreamErrorStatus(t *testing.T) {
	backend := mockbackend.NewErrorResponse(t, http.StatusBadGateway, []byte(`{"error":"boom"}`))

	mgr := testManager(t, config.BackendOpenAI, backend.URL)
	h := NewChatHandler(mgr, testEngine(), testLogger())

	reqBody, err := json.Marshal(openai.Request{
		Model:    "gpt-4",
		Messages: []openai.Message{{Role: "user", Content: &openai.Content{Text: "hi"}}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
}

func TestChatHandlerBackendUnreachable(t *testing.T) {
	mgr := testManager(t, config.BackendOpenAI, "http://127.0.0.1:1")
	h := NewChatHandler(mgr, testEngine(), testLogger())

	reqBody, err := json.Marshal(openai.Request{
		Model:    "gpt-4",
		Messages: []openai.Message{{Role: "user", Content: &openai.Content{Text: "hi"}}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

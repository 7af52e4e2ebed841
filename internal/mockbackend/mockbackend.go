// Package mockbackend provides httptest-backed stand-ins for an
// upstream OpenAI- or Ollama-shaped chat backend, for tests that need
// something to actually dial rather than exercising conversion
// functions directly in isolation.
package mockbackend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/toolbridge/toolbridge/internal/dialect/ollama"
	"github.com/toolbridge/toolbridge/internal/dialect/openai"
	"github.com/toolbridge/toolbridge/internal/streamproc"
)

// Server wraps an httptest.Server and is torn down automatically via
// t.Cleanup.
type Server struct {
	*httptest.Server
}

func newServer(t *testing.T, handler http.HandlerFunc) *Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Server{Server: srv}
}

// NewOpenAIChat serves a single fixed non-streaming chat-completions
// response regardless of the incoming request.
func NewOpenAIChat(t *testing.T, resp openai.Response) *Server {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewOpenAIStream serves a fixed SSE stream, one frame per chunk, then
// the `[DONE]` terminator.
func NewOpenAIStream(t *testing.T, chunks []openai.StreamChunk) *Server {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			payload, _ := json.Marshal(c)
			_, _ = w.Write(streamproc.FormatSSEFrame(payload))
			if flusher != nil {
				flusher.Flush()
			}
		}
		_, _ = w.Write([]byte(streamproc.SSEDone))
		if flusher != nil {
			flusher.Flush()
		}
	})
}

// NewOllamaChat serves a single fixed `/api/chat` response record.
func NewOllamaChat(t *testing.T, resp ollama.ChatResponse) *Server {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewOllamaStream serves a fixed sequence of line-delimited JSON
// records; the caller is responsible for marking the final record
// Done: true.
func NewOllamaStream(t *testing.T, records []ollama.ChatResponse) *Server {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, rec := range records {
			payload, _ := json.Marshal(rec)
			_, _ = w.Write(streamproc.FormatLineJSON(payload))
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

// NewErrorResponse serves a fixed status code and raw JSON body,
// useful for exercising apierrors propagation from an upstream error.
func NewErrorResponse(t *testing.T, status int, body []byte) *Server {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(bytes.TrimSpace(body))
	})
}

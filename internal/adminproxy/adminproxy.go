// Package adminproxy forwards the handful of Ollama administrative
// endpoints (model listing, model metadata, version) straight through
// to the configured backend, unchanged. These aren't chat-completion
// traffic and carry no dialect to translate, so the module doesn't
// reimplement their semantics — it just keeps the backend reachable
// through the same base URL as everything else.
package adminproxy

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Routes lists the administrative paths this handler answers for.
var Routes = []string{"/api/tags", "/api/show", "/api/version"}

// Handler forwards matching requests to BaseURL unchanged, preserving
// method, body, and headers (aside from Host).
type Handler struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *slog.Logger
}

// New builds a Handler with a default http.Client when none is given.
func New(baseURL, apiKey string, logger *slog.Logger) *Handler {
	return &Handler{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		Client:  http.DefaultClient,
		Logger:  logger,
	}
}

// Handles reports whether path is one of the administrative routes
// this handler serves.
func Handles(path string) bool {
	for _, r := range Routes {
		if path == r {
			return true
		}
	}
	return false
}

func (h *Handler) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upstreamURL := h.BaseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	req.Header = r.Header.Clone()
	req.Header.Del("Host")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	if h.Logger != nil {
		h.Logger.Debug("forwarding administrative request", "path", r.URL.Path, "upstream", upstreamURL)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

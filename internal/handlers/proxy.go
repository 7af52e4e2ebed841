package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/toolbridge/toolbridge/internal/apierrors"
	"github.com/toolbridge/toolbridge/internal/config"
	"github.com/toolbridge/toolbridge/internal/detect"
	"github.com/toolbridge/toolbridge/internal/engine"
	"github.com/toolbridge/toolbridge/internal/ir"
	"github.com/toolbridge/toolbridge/internal/streamproc"
	"github.com/toolbridge/toolbridge/internal/tokencount"
)

// ChatHandler is the proxy's chat-completion endpoint: it detects the
// caller's dialect, converts the request into the configured backend's
// dialect, forwards it, and converts the response (streaming or not)
// back into the caller's dialect.
type ChatHandler struct {
	config *config.Manager
	engine *engine.Engine
	client *http.Client
	logger *slog.Logger
}

func NewChatHandler(cfg *config.Manager, eng *engine.Engine, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		config: cfg,
		engine: eng,
		client: &http.Client{},
		logger: logger,
	}
}

// backendPath returns the path the configured backend dialect expects
// its chat-completion requests on. Per-backend URL selection beyond
// this single canonical endpoint is out of scope.
func backendPath(backendTag string) string {
	if backendTag == string(config.BackendOllama) {
		return "/api/chat"
	}
	return "/v1/chat/completions"
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, string(detect.OpenAI), apierrors.New(apierrors.KindInvalidRequest, "failed to read request body: "+err.Error()))
		return
	}

	clientTag := string(detect.Detect(detect.Request{
		URL:     r.URL.Path,
		Headers: r.Header,
		Body:    body,
	}))
	backendTag := string(cfg.BackendMode)

	from, ok := h.engine.Registry.Get(clientTag)
	if !ok {
		h.writeError(w, clientTag, apierrors.Newf(apierrors.KindInvalidRequest, "no converter for client dialect %q", clientTag))
		return
	}

	clientReq, err := from.ToIR(body)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindConversionFailed, "failed to decode request: "+err.Error()))
		return
	}

	reqCtx := &engine.ConversionContext{
		SourceTag:      clientTag,
		TargetTag:      backendTag,
		KnownToolNames: ir.KnownToolNames(clientReq.Tools),
		PassTools:      cfg.PassTools,
		Reinjection: engine.ReinjectionConfig{
			Enabled:      cfg.Reinjection.Enabled,
			MessageCount: cfg.Reinjection.MessageCount,
			TokenCount:   cfg.Reinjection.TokenCount,
			Type:         cfg.Reinjection.Type,
		},
	}

	backendBody, err := h.engine.ConvertRequest(body, reqCtx)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindConversionFailed, "failed to convert request: "+err.Error()))
		return
	}

	upstreamURL := cfg.BackendBaseURL + backendPath(backendTag)

	ctx := r.Context()
	if cfg.StreamConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.StreamConnectionTimeout)*time.Millisecond)
		defer cancel()
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(backendBody))
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindInternal, "failed to build upstream request: "+err.Error()))
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	if cfg.BackendAPIKey != "" {
		upstreamReq.Header.Set("Authorization", "Bearer "+cfg.BackendAPIKey)
	}

	h.logger.Info("proxying chat request",
		"client_dialect", clientTag,
		"backend_dialect", backendTag,
		"model", clientReq.Model,
		"stream", clientReq.Stream,
	)

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindBackendUnreachable, "upstream request failed: "+err.Error()))
		return
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindBackendGateway, "decompression error: "+err.Error()))
		return
	}
	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.forwardBackendError(w, clientTag, backendTag, resp, bodyReader)
		return
	}

	if clientReq.Stream {
		h.handleStreamingResponse(w, bodyReader, clientReq, clientTag, backendTag)
		return
	}
	h.handleResponse(w, bodyReader, clientReq, clientTag, backendTag)
}

// forwardBackendError surfaces the backend's own status, re-enveloped
// in the client's dialect.
func (h *ChatHandler) forwardBackendError(w http.ResponseWriter, clientTag, backendTag string, resp *http.Response, bodyReader io.Reader) {
	raw, err := io.ReadAll(bodyReader)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindBackendGateway, "failed to read upstream error body: "+err.Error()))
		return
	}
	h.logger.Warn("upstream returned error status", "backend_dialect", backendTag, "status", resp.StatusCode, "body", string(raw))
	apiErr := apierrors.Newf(apierrors.KindBackendHTTP, "upstream returned status %d", resp.StatusCode).WithStatus(resp.StatusCode)
	h.writeError(w, clientTag, apiErr)
}

func (h *ChatHandler) handleResponse(w http.ResponseWriter, bodyReader io.Reader, clientReq ir.Request, clientTag, backendTag string) {
	raw, err := io.ReadAll(bodyReader)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindBackendGateway, "failed to read upstream response: "+err.Error()))
		return
	}

	to, ok := h.engine.Registry.Get(clientTag)
	if !ok {
		h.writeError(w, clientTag, apierrors.Newf(apierrors.KindInternal, "no converter for client dialect %q", clientTag))
		return
	}
	from, ok := h.engine.Registry.Get(backendTag)
	if !ok {
		h.writeError(w, clientTag, apierrors.Newf(apierrors.KindInternal, "no converter for backend dialect %q", backendTag))
		return
	}

	knownToolNames := ir.KnownToolNames(clientReq.Tools)
	resp, err := from.ResponseToIR(raw, knownToolNames)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindConversionFailed, "failed to decode upstream response: "+err.Error()))
		return
	}

	// the backend may omit usage entirely; synthesize it from prompt and
	// completion text so the client always gets a populated usage block
	if resp.Usage == nil {
		resp.Usage = tokencount.SynthesizeUsage(promptText(clientReq), completionText(resp))
	}

	out, err := to.ResponseFromIR(resp)
	if err != nil {
		h.writeError(w, clientTag, apierrors.New(apierrors.KindConversionFailed, "failed to encode response: "+err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (h *ChatHandler) handleStreamingResponse(w http.ResponseWriter, bodyReader io.Reader, clientReq ir.Request, clientTag, backendTag string) {
	cfg := h.config.Get()

	if clientTag == string(config.BackendOllama) {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}
	w.WriteHeader(http.StatusOK)

	includeUsage := clientReq.StreamOptions != nil && clientReq.StreamOptions.IncludeUsage
	// response direction is reversed from the request: the backend is
	// the source dialect here, the client is the target
	proc := streamproc.New(w, clientReq.Tools, includeUsage, backendTag, clientTag, h.engine, cfg.MaxToolCallBufferSize, nil)

	buf := make([]byte, 32*1024)
	for {
		n, readErr := bodyReader.Read(buf)
		if n > 0 {
			if procErr := proc.ProcessChunk(buf[:n]); procErr != nil {
				h.logger.Error("stream processing error", "error", procErr)
				_ = proc.Close(procErr.Error())
				flush(w)
				return
			}
			flush(w)
		}
		if readErr == io.EOF {
			if err := proc.End(); err != nil {
				h.logger.Error("stream finalization error", "error", err)
			}
			flush(w)
			return
		}
		if readErr != nil {
			h.logger.Error("upstream stream read error", "error", readErr)
			_ = proc.Close(readErr.Error())
			flush(w)
			return
		}
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, providerTag string, apiErr *apierrors.Error) {
	h.logger.Error("chat handler error", "kind", apiErr.Kind, "message", apiErr.Message, "status", apiErr.Status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	w.Write(apierrors.Envelope(providerTag, apiErr))
}

func promptText(req ir.Request) string {
	var out string
	for _, m := range req.Messages {
		out += m.Content.PlainText()
	}
	return out
}

func completionText(resp ir.Response) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content.PlainText()
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

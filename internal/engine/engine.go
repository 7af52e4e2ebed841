package engine

import (
	"context"
	"fmt"

	"github.com/toolbridge/toolbridge/internal/dialect"
	"github.com/toolbridge/toolbridge/internal/ir"
)

// Engine ties the converter registry to the request/response/chunk
// conversion operations and the transform pipeline, per §4.E.
type Engine struct {
	Registry *Registry
}

func New(registry *Registry) *Engine {
	return &Engine{Registry: registry}
}

func (e *Engine) resolve(tag string) (dialect.Converter, error) {
	c, ok := e.Registry.Get(tag)
	if !ok {
		return nil, fmt.Errorf("engine: no converter registered for provider tag %q", tag)
	}
	return c, nil
}

// ConvertRequest runs the full request pipeline: decode via the source
// converter, check target compatibility, apply transforms, re-encode
// via the target converter. Same-provider pairs still run the full
// pipeline, since transforms like tool stripping must apply regardless
// of whether source and target dialects match.
func (e *Engine) ConvertRequest(body []byte, ctx *ConversionContext) ([]byte, error) {
	from, err := e.resolve(ctx.SourceTag)
	if err != nil {
		return nil, err
	}
	to, err := e.resolve(ctx.TargetTag)
	if err != nil {
		return nil, err
	}

	req, err := from.ToIR(body)
	if err != nil {
		return nil, fmt.Errorf("engine: decode request: %w", err)
	}

	compat := to.CheckCompatibility(req)
	if ctx.Strict && !compat.Compatible {
		return nil, fmt.Errorf("engine: request incompatible with target provider %q: %v", ctx.TargetTag, compat.UnsupportedFeatures)
	}

	transformed := applyTransforms(req, compat, ctx)

	out, err := to.FromIR(transformed)
	if err != nil {
		return nil, fmt.Errorf("engine: encode request: %w", err)
	}
	return out, nil
}

// ConvertResponse converts a non-streaming response body between
// dialects, passing it through unchanged when source and target match.
func (e *Engine) ConvertResponse(body []byte, ctx *ConversionContext) ([]byte, error) {
	if ctx.SourceTag == ctx.TargetTag {
		return body, nil
	}
	from, err := e.resolve(ctx.SourceTag)
	if err != nil {
		return nil, err
	}
	to, err := e.resolve(ctx.TargetTag)
	if err != nil {
		return nil, err
	}

	resp, err := from.ResponseToIR(body, ctx.KnownToolNames)
	if err != nil {
		return nil, fmt.Errorf("engine: decode response: %w", err)
	}
	out, err := to.ResponseFromIR(resp)
	if err != nil {
		return nil, fmt.Errorf("engine: encode response: %w", err)
	}
	return out, nil
}

// ConvertChunk converts one stream chunk body between dialects. A nil
// result with a nil error means "skip this chunk" and is valid.
func (e *Engine) ConvertChunk(body []byte, ctx *ConversionContext) ([]byte, error) {
	if ctx.SourceTag == ctx.TargetTag {
		return body, nil
	}
	chunk, err := e.DecodeChunk(body, ctx)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, nil
	}
	return e.EncodeChunk(*chunk, ctx)
}

// DecodeChunk decodes one source-framed chunk body into IR via the
// converter registered under ctx.SourceTag. Exposed separately from
// ConvertChunk so callers that need to inspect or rewrite the IR chunk
// between decode and encode (the stream processor's cross-dialect
// tool-call recovery) still go through the Engine rather than calling a
// converter directly.
func (e *Engine) DecodeChunk(body []byte, ctx *ConversionContext) (*ir.StreamChunk, error) {
	from, err := e.resolve(ctx.SourceTag)
	if err != nil {
		return nil, err
	}
	chunk, err := from.ChunkToIR(body, ctx.KnownToolNames)
	if err != nil {
		return nil, fmt.Errorf("engine: decode chunk: %w", err)
	}
	return chunk, nil
}

// EncodeChunk encodes one IR chunk via the converter registered under
// ctx.TargetTag. See DecodeChunk.
func (e *Engine) EncodeChunk(chunk ir.StreamChunk, ctx *ConversionContext) ([]byte, error) {
	to, err := e.resolve(ctx.TargetTag)
	if err != nil {
		return nil, err
	}
	out, err := to.ChunkFromIR(chunk)
	if err != nil {
		return nil, fmt.Errorf("engine: encode chunk: %w", err)
	}
	return out, nil
}

// ConvertStream reads raw chunk bodies from source, converts each via
// ConvertChunk, and writes the results to the returned channel. The
// returned error channel carries at most one error and is closed
// alongside the output channel; a parent context cancellation stops
// the pump without an error.
func (e *Engine) ConvertStream(parent context.Context, source <-chan []byte, ctx *ConversionContext) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		for {
			select {
			case <-parent.Done():
				return
			case body, ok := <-source:
				if !ok {
					return
				}
				converted, err := e.ConvertChunk(body, ctx)
				if err != nil {
					errc <- err
					return
				}
				if converted == nil {
					continue
				}
				select {
				case out <- converted:
				case <-parent.Done():
					return
				}
			}
		}
	}()

	return out, errc
}

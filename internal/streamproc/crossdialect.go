package streamproc

import (
	"encoding/json"
	"io"

	"github.com/toolbridge/toolbridge/internal/engine"
	"github.com/toolbridge/toolbridge/internal/ir"
	"github.com/toolbridge/toolbridge/internal/xmltool"
)

// crossDialect implements §4.F strategy 3: cross-dialect converting.
// It decodes each source-framed chunk through the engine (DecodeChunk),
// buffers and classifies the assistant text the same way the two
// same-dialect strategies do so a tool call split across chunks is
// withheld until it resolves, splits the resulting IR chunk(s) into the
// separate content/finish/usage frames an SSE target expects, and
// re-encodes each through the engine (EncodeChunk) for the target
// dialect.
type crossDialect struct {
	w             io.Writer
	eng           *engine.Engine
	ctx           *engine.ConversionContext
	includeUsage  bool
	fromSSE       bool
	toSSE         bool
	maxBufferSize int
	nextID        func() string
	leftover      []byte
	state         *State

	buf         *Buffer
	emittedUpTo int
	partial     *xmltool.PartialState
}

func newCrossDialect(w io.Writer, eng *engine.Engine, ctx *engine.ConversionContext, includeUsage bool, fromSSE, toSSE bool, maxBufferSize int, nextID func() string) *crossDialect {
	if nextID == nil {
		nextID = defaultCallID
	}
	return &crossDialect{
		w: w, eng: eng, ctx: ctx, includeUsage: includeUsage,
		fromSSE: fromSSE, toSSE: toSSE, maxBufferSize: maxBufferSize, nextID: nextID,
		buf: NewBuffer(maxBufferSize), state: &State{},
	}
}

// appendContent adds text to the withheld-span buffer, adjusting
// emittedUpTo for any head-drop so it still points at the same logical
// position.
func (p *crossDialect) appendContent(text string) string {
	before := p.buf.TruncatedBytes()
	p.buf.Append([]byte(text))
	if dropped := p.buf.TruncatedBytes() - before; dropped > 0 {
		p.emittedUpTo -= dropped
		if p.emittedUpTo < 0 {
			p.emittedUpTo = 0
		}
	}
	return string(p.buf.GetContent())
}

func (p *crossDialect) ProcessChunk(raw []byte) error {
	if p.state.StreamEnded {
		return nil
	}
	p.leftover = append(p.leftover, raw...)

	var payloads [][]byte
	sourceDone := false
	if p.fromSSE {
		frames, rest := splitSSEFrames(p.leftover)
		p.leftover = append([]byte(nil), rest...)
		for _, frame := range frames {
			payload, ok := ssePayload(frame)
			if !ok {
				continue
			}
			if string(payload) == "[DONE]" {
				sourceDone = true
				continue
			}
			payloads = append(payloads, payload)
		}
	} else {
		lines, rest := splitLines(p.leftover)
		p.leftover = append([]byte(nil), rest...)
		payloads = append(payloads, lines...)
	}

	for _, payload := range payloads {
		p.state.ChunkCount++
		if err := p.handlePayload(payload); err != nil {
			return err
		}
	}
	if sourceDone {
		return p.writeTerminator()
	}
	return nil
}

func isOllamaDoneLine(payload []byte) bool {
	var probe struct {
		Done bool `json:"done"`
	}
	_ = json.Unmarshal(payload, &probe)
	return probe.Done
}

func (p *crossDialect) handlePayload(payload []byte) error {
	chunk, err := p.eng.DecodeChunk(payload, p.ctx)
	if err != nil {
		return err
	}
	if chunk != nil {
		if err := p.handleChunk(*chunk); err != nil {
			return err
		}
	}

	if !p.fromSSE && isOllamaDoneLine(payload) {
		return p.writeTerminator()
	}
	return nil
}

// handleChunk classifies each choice's text delta for a forming tool
// call, the same way the same-dialect strategies do, before re-encoding
// through the target converter. Anything that isn't assistant text
// (role, already-structured tool calls, refusal, finish reason, usage)
// passes through unchanged. A recovered tool call ends the stream.
func (p *crossDialect) handleChunk(chunk ir.StreamChunk) error {
	if p.state.StreamEnded {
		return nil
	}
	for _, choice := range chunk.Choices {
		if !choice.Delta.HasContent {
			if err := p.emitPassthroughChoice(chunk, choice); err != nil {
				return err
			}
			continue
		}

		accumulated := p.appendContent(choice.Delta.Content)
		result := xmltool.ExtractPartial(accumulated, p.ctx.KnownToolNames, p.partial, p.maxBufferSize)

		switch {
		case result.Complete:
			if err := p.flushPrecedingText(chunk, choice.Index, accumulated); err != nil {
				return err
			}
			if err := p.emitSyntheticToolCall(chunk, choice.Index, *result.ToolCall); err != nil {
				return err
			}
			p.buf.Clear()
			p.emittedUpTo = 0
			p.partial = nil
			p.state.IsToolCallInProgress = false
			return p.writeTerminator()

		case result.PartialState == nil:
			if err := p.emitContent(chunk, choice.Index, accumulated[p.emittedUpTo:]); err != nil {
				return err
			}
			p.buf.Clear()
			p.emittedUpTo = 0
			p.partial = nil
			p.state.IsToolCallInProgress = false
			if choice.FinishReason != ir.FinishNone {
				if err := p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
					Choices: []ir.ChunkChoice{{Index: choice.Index, FinishReason: choice.FinishReason}}}); err != nil {
					return err
				}
			}

		default:
			p.partial = result.PartialState
			p.state.IsToolCallInProgress = true
		}
	}

	if chunk.Usage != nil && p.includeUsage {
		if err := p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model, Usage: chunk.Usage}); err != nil {
			return err
		}
	}
	return nil
}

// emitPassthroughChoice forwards a choice that carries no text content
// (role announcement, native tool calls, refusal, or a bare finish
// reason) unchanged, splitting delta and finish reason into separate
// frames for an SSE target the way the real backend would.
func (p *crossDialect) emitPassthroughChoice(chunk ir.StreamChunk, choice ir.ChunkChoice) error {
	hasDelta := choice.Delta.HasRole || len(choice.Delta.ToolCalls) > 0 || choice.Delta.Refusal != ""
	if !hasDelta && choice.FinishReason == ir.FinishNone {
		return nil
	}
	if !p.toSSE {
		return p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model, Choices: []ir.ChunkChoice{choice}})
	}
	if hasDelta {
		if err := p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
			Choices: []ir.ChunkChoice{{Index: choice.Index, Delta: choice.Delta}}}); err != nil {
			return err
		}
	}
	if choice.FinishReason != ir.FinishNone {
		return p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
			Choices: []ir.ChunkChoice{{Index: choice.Index, FinishReason: choice.FinishReason}}})
	}
	return nil
}

// flushPrecedingText emits any unconsumed text before the first '<' in
// the withheld span, which precedes the tool-call markup itself.
func (p *crossDialect) flushPrecedingText(chunk ir.StreamChunk, index int, accumulated string) error {
	unemitted := accumulated[p.emittedUpTo:]
	idx := -1
	for i, r := range unemitted {
		if r == '<' {
			idx = i
			break
		}
	}
	if idx > 0 {
		if err := p.emitContent(chunk, index, unemitted[:idx]); err != nil {
			return err
		}
	}
	p.emittedUpTo = len(accumulated)
	return nil
}

func (p *crossDialect) emitContent(chunk ir.StreamChunk, index int, text string) error {
	if text == "" {
		return nil
	}
	p.state.HasEmittedContent = true
	return p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
		Choices: []ir.ChunkChoice{{Index: index, Delta: ir.Delta{Content: text, HasContent: true}}}})
}

// emitSyntheticToolCall encodes a recovered tool call into the target
// dialect's own streaming shape: an OpenAI target gets the familiar
// role/tool_calls/finish_reason triple of separate frames, an Ollama
// target gets a single role+tool_calls+done:true record, matching how
// each same-dialect strategy emits one.
func (p *crossDialect) emitSyntheticToolCall(chunk ir.StreamChunk, index int, tc xmltool.ToolCall) error {
	toolCall := ir.ToolCall{
		ID:   p.nextID(),
		Type: "function",
		Function: ir.FunctionCall{
			Name:            tc.Name,
			ArgumentsObject: tc.Arguments,
			HasObject:       true,
		},
	}
	p.state.CurrentToolName = tc.Name

	if !p.toSSE {
		return p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
			Choices: []ir.ChunkChoice{{
				Index:        index,
				Delta:        ir.Delta{Role: ir.RoleAssistant, HasRole: true, ToolCalls: []ir.ToolCall{toolCall}},
				FinishReason: ir.FinishToolCalls,
			}}})
	}

	if err := p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
		Choices: []ir.ChunkChoice{{Index: index, Delta: ir.Delta{Role: ir.RoleAssistant, HasRole: true}}}}); err != nil {
		return err
	}
	if err := p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
		Choices: []ir.ChunkChoice{{Index: index, Delta: ir.Delta{ToolCalls: []ir.ToolCall{toolCall}}}}}); err != nil {
		return err
	}
	return p.emitIR(ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model,
		Choices: []ir.ChunkChoice{{Index: index, FinishReason: ir.FinishToolCalls}}})
}

func (p *crossDialect) emitIR(chunk ir.StreamChunk) error {
	body, err := p.eng.EncodeChunk(chunk, p.ctx)
	if err != nil {
		return err
	}
	return p.writeFramed(body)
}

func (p *crossDialect) writeFramed(body []byte) error {
	if p.toSSE {
		_, err := p.w.Write(FormatSSEFrame(body))
		return err
	}
	_, err := p.w.Write(FormatLineJSON(body))
	return err
}

func (p *crossDialect) writeTerminator() error {
	if p.state.StreamEnded {
		return nil
	}
	p.state.End()
	if !p.state.MarkDoneSent() {
		return nil
	}
	if p.toSSE {
		_, err := p.w.Write([]byte(SSEDone))
		return err
	}
	return nil
}

func (p *crossDialect) End() error {
	if p.state.StreamEnded {
		return nil
	}
	if p.state.IsToolCallInProgress {
		content := string(p.buf.GetContent())
		if err := p.emitContent(ir.StreamChunk{}, 0, content[p.emittedUpTo:]); err != nil {
			return err
		}
		p.state.IsToolCallInProgress = false
	}
	return p.writeTerminator()
}

func (p *crossDialect) Close(errMsg string) error {
	if p.state.StreamEnded {
		return nil
	}
	if p.toSSE {
		if _, err := p.w.Write(FormatSSEError(errMsg, "backend_gateway")); err != nil {
			return err
		}
	} else {
		if _, err := p.w.Write(FormatLineJSONError(errMsg, "backend_gateway")); err != nil {
			return err
		}
	}
	p.state.End()
	p.state.MarkDoneSent()
	return nil
}

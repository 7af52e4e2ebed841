package streamproc

import (
	"encoding/json"
	"io"

	"github.com/toolbridge/toolbridge/internal/dialect/openai"
	"github.com/toolbridge/toolbridge/internal/xmltool"
)

// openaiPassthrough implements §4.F strategy 1: same-dialect
// pass-through with XML awareness. It forwards OpenAI SSE chunks
// unchanged except for the assistant's text content, which it buffers
// and classifies, withholding any span that might still be forming a
// tool call until the classifier decides.
type openaiPassthrough struct {
	w              io.Writer
	knownToolNames map[string]bool
	maxBufferSize  int
	nextID         func() string
	model          string

	buf         *Buffer
	emittedUpTo int
	partial     *xmltool.PartialState
	pendingFin  *string
	toolIndex   int
	leftover    []byte

	state *State
}

func newOpenAIPassthrough(w io.Writer, knownToolNames map[string]bool, maxBufferSize int, nextID func() string) *openaiPassthrough {
	return &openaiPassthrough{w: w, knownToolNames: knownToolNames, maxBufferSize: maxBufferSize, nextID: nextID, buf: NewBuffer(maxBufferSize), state: &State{}}
}

// appendContent adds text to the withheld-span buffer, adjusting
// emittedUpTo for any head-drop so it still points at the same logical
// position.
func (p *openaiPassthrough) appendContent(text string) string {
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

func (p *openaiPassthrough) writeFrame(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.w.Write(FormatSSEFrame(body))
	return err
}

func (p *openaiPassthrough) ProcessChunk(raw []byte) error {
	p.leftover = append(p.leftover, raw...)
	frames, rest := splitSSEFrames(p.leftover)
	p.leftover = append([]byte(nil), rest...)
	for _, frame := range frames {
		payload, ok := ssePayload(frame)
		if !ok {
			continue
		}
		if string(payload) == "[DONE]" {
			continue
		}
		var chunk openai.StreamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			continue
		}
		p.model = chunk.Model
		p.state.ChunkCount++
		if err := p.handleChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *openaiPassthrough) handleChunk(chunk openai.StreamChunk) error {
	for _, choice := range chunk.Choices {
		if len(choice.Delta.ToolCalls) > 0 || choice.Delta.Content == nil {
			if choice.FinishReason != nil {
				fr := *choice.FinishReason
				p.pendingFin = &fr
				continue
			}
			if err := p.writeFrame(chunk); err != nil {
				return err
			}
			continue
		}

		accumulated := p.appendContent(*choice.Delta.Content)
		result := xmltool.ExtractPartial(accumulated, p.knownToolNames, p.partial, p.maxBufferSize)

		switch {
		case result.Complete:
			if err := p.flushPrecedingText(accumulated); err != nil {
				return err
			}
			if err := p.emitSyntheticToolCall(*result.ToolCall); err != nil {
				return err
			}
			p.buf.Clear()
			p.emittedUpTo = 0
			p.partial = nil
			p.state.IsToolCallInProgress = false

		case result.PartialState == nil:
			if err := p.emitContent(accumulated[p.emittedUpTo:]); err != nil {
				return err
			}
			p.buf.Clear()
			p.emittedUpTo = 0
			p.partial = nil
			p.state.IsToolCallInProgress = false

		default:
			p.partial = result.PartialState
			p.state.IsToolCallInProgress = true
		}
	}
	if chunk.Usage != nil {
		return p.writeFrame(chunk)
	}
	return nil
}

// flushPrecedingText emits any unconsumed text before the first '<' in
// the withheld span, which precedes the tool-call markup itself.
func (p *openaiPassthrough) flushPrecedingText(accumulated string) error {
	unemitted := accumulated[p.emittedUpTo:]
	idx := -1
	for i, r := range unemitted {
		if r == '<' {
			idx = i
			break
		}
	}
	if idx > 0 {
		return p.emitContent(unemitted[:idx])
	}
	return nil
}

func (p *openaiPassthrough) emitContent(text string) error {
	if text == "" {
		return nil
	}
	p.state.HasEmittedContent = true
	content := text
	return p.writeFrame(openai.StreamChunk{
		Model:   p.model,
		Object:  "chat.completion.chunk",
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Content: &content}}},
	})
}

func (p *openaiPassthrough) emitSyntheticToolCall(tc xmltool.ToolCall) error {
	id := p.nextID()
	p.toolIndex = 0
	role := "assistant"
	if err := p.writeFrame(openai.StreamChunk{
		Model:   p.model,
		Object:  "chat.completion.chunk",
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{Role: role}}},
	}); err != nil {
		return err
	}

	args, err := json.Marshal(tc.Arguments)
	if err != nil {
		return err
	}
	idx := p.toolIndex
	if err := p.writeFrame(openai.StreamChunk{
		Model:  p.model,
		Object: "chat.completion.chunk",
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.Delta{
			ToolCalls: []openai.ToolCall{{
				Index: &idx,
				ID:    id,
				Type:  "function",
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			}},
		}}},
	}); err != nil {
		return err
	}

	finish := "tool_calls"
	p.state.CurrentToolName = tc.Name
	return p.writeFrame(openai.StreamChunk{
		Model:   p.model,
		Object:  "chat.completion.chunk",
		Choices: []openai.ChunkChoice{{Index: 0, FinishReason: &finish}},
	})
}

func (p *openaiPassthrough) End() error {
	if p.state.StreamEnded {
		return nil
	}
	if p.state.IsToolCallInProgress {
		content := string(p.buf.GetContent())
		if err := p.emitContent(content[p.emittedUpTo:]); err != nil {
			return err
		}
	}
	if p.pendingFin != nil {
		if err := p.writeFrame(openai.StreamChunk{
			Model:   p.model,
			Object:  "chat.completion.chunk",
			Choices: []openai.ChunkChoice{{Index: 0, FinishReason: p.pendingFin}},
		}); err != nil {
			return err
		}
	}
	p.state.End()
	if p.state.MarkDoneSent() {
		_, err := p.w.Write([]byte(SSEDone))
		return err
	}
	return nil
}

func (p *openaiPassthrough) Close(errMsg string) error {
	if p.state.StreamEnded {
		return nil
	}
	if _, err := p.w.Write(FormatSSEError(errMsg, "backend_gateway")); err != nil {
		return err
	}
	p.state.End()
	if p.state.MarkDoneSent() {
		_, err := p.w.Write([]byte(SSEDone))
		return err
	}
	return nil
}

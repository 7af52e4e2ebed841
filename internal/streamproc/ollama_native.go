package streamproc

import (
	"encoding/json"
	"io"

	"github.com/toolbridge/toolbridge/internal/dialect/ollama"
	"github.com/toolbridge/toolbridge/internal/xmltool"
)

// ollamaNative implements §4.F strategy 2: same-dialect native
// line-JSON. It forwards Ollama chat lines largely unchanged, except
// that assistant content is buffered and classified the same way the
// OpenAI pass-through strategy does; a completed tool call collapses
// the remainder of the stream into one final `tool_calls`+`done:true`
// record.
type ollamaNative struct {
	w              io.Writer
	knownToolNames map[string]bool
	maxBufferSize  int

	buf         *Buffer
	emittedUpTo int
	partial     *xmltool.PartialState
	leftover    []byte
	model       string
	createdAt   string

	state *State
}

func newOllamaNative(w io.Writer, knownToolNames map[string]bool, maxBufferSize int) *ollamaNative {
	return &ollamaNative{w: w, knownToolNames: knownToolNames, maxBufferSize: maxBufferSize, buf: NewBuffer(maxBufferSize), state: &State{}}
}

// appendContent adds text to the withheld-span buffer, adjusting
// emittedUpTo for any head-drop so it still points at the same logical
// position.
func (p *ollamaNative) appendContent(text string) string {
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

func (p *ollamaNative) writeLine(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.w.Write(FormatLineJSON(body))
	return err
}

func (p *ollamaNative) ProcessChunk(raw []byte) error {
	if p.state.StreamEnded {
		return nil
	}
	p.leftover = append(p.leftover, raw...)
	lines, rest := splitLines(p.leftover)
	p.leftover = append([]byte(nil), rest...)

	for _, line := range lines {
		if p.state.StreamEnded {
			return nil
		}
		var resp ollama.ChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		p.model = resp.Model
		p.createdAt = resp.CreatedAt
		p.state.ChunkCount++
		if err := p.handleLine(resp); err != nil {
			return err
		}
	}
	return nil
}

func (p *ollamaNative) handleLine(resp ollama.ChatResponse) error {
	if resp.Message.Content != "" {
		accumulated := p.appendContent(resp.Message.Content)
		result := xmltool.ExtractPartial(accumulated, p.knownToolNames, p.partial, p.maxBufferSize)

		switch {
		case result.Complete:
			if err := p.flushPrecedingText(accumulated); err != nil {
				return err
			}
			if err := p.writeLine(ollama.ChatResponse{
				Model:     p.model,
				CreatedAt: p.createdAt,
				Message: ollama.Message{
					Role: "assistant",
					ToolCalls: []ollama.ToolCall{{
						Function: ollama.ToolCallFunction{Name: result.ToolCall.Name, Arguments: result.ToolCall.Arguments},
					}},
				},
				Done:       true,
				DoneReason: "tool_calls",
			}); err != nil {
				return err
			}
			p.state.CurrentToolName = result.ToolCall.Name
			p.buf.Clear()
			p.emittedUpTo = 0
			p.state.End()
			if p.state.MarkDoneSent() {
				return nil
			}
			return nil

		case result.PartialState == nil:
			if err := p.emitContentLine(accumulated[p.emittedUpTo:], false, 0, 0); err != nil {
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

	if resp.Done {
		return p.finish(resp)
	}
	return nil
}

func (p *ollamaNative) flushPrecedingText(accumulated string) error {
	unemitted := accumulated[p.emittedUpTo:]
	idx := -1
	for i, r := range unemitted {
		if r == '<' {
			idx = i
			break
		}
	}
	if idx > 0 {
		if err := p.emitContentLine(unemitted[:idx], false, 0, 0); err != nil {
			return err
		}
	}
	p.emittedUpTo = len(accumulated)
	return nil
}

func (p *ollamaNative) emitContentLine(content string, done bool, promptEval, eval int) error {
	if content == "" && !done {
		return nil
	}
	p.state.HasEmittedContent = p.state.HasEmittedContent || content != ""
	return p.writeLine(ollama.ChatResponse{
		Model:           p.model,
		CreatedAt:       p.createdAt,
		Message:         ollama.Message{Role: "assistant", Content: content},
		Done:            done,
		PromptEvalCount: promptEval,
		EvalCount:       eval,
	})
}

// finish is reached on the upstream's done:true line; any unresolved
// buffered span is flushed as ordinary content since the stream is
// ending without a tool-call confirmation.
func (p *ollamaNative) finish(resp ollama.ChatResponse) error {
	if p.state.IsToolCallInProgress {
		content := string(p.buf.GetContent())
		if err := p.emitContentLine(content[p.emittedUpTo:], false, 0, 0); err != nil {
			return err
		}
		p.buf.Clear()
		p.emittedUpTo = 0
		p.state.IsToolCallInProgress = false
	}
	if err := p.writeLine(ollama.ChatResponse{
		Model:           p.model,
		CreatedAt:       p.createdAt,
		Done:            true,
		DoneReason:      resp.DoneReason,
		PromptEvalCount: resp.PromptEvalCount,
		EvalCount:       resp.EvalCount,
	}); err != nil {
		return err
	}
	p.state.End()
	p.state.MarkDoneSent()
	return nil
}

func (p *ollamaNative) End() error {
	if p.state.StreamEnded {
		return nil
	}
	if p.state.IsToolCallInProgress {
		content := string(p.buf.GetContent())
		if err := p.emitContentLine(content[p.emittedUpTo:], false, 0, 0); err != nil {
			return err
		}
	}
	if err := p.writeLine(ollama.ChatResponse{Model: p.model, CreatedAt: p.createdAt, Done: true, DoneReason: "stop"}); err != nil {
		return err
	}
	p.state.End()
	p.state.MarkDoneSent()
	return nil
}

func (p *ollamaNative) Close(errMsg string) error {
	if p.state.StreamEnded {
		return nil
	}
	if _, err := p.w.Write(FormatLineJSONError(errMsg, "backend_gateway")); err != nil {
		return err
	}
	p.state.End()
	p.state.MarkDoneSent()
	return nil
}

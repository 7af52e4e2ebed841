package streamproc

import (
	"context"
	"io"

	"github.com/toolbridge/toolbridge/internal/engine"
	"github.com/toolbridge/toolbridge/internal/ir"
)

// chunkProcessor is the common surface all three §4.F strategies
// implement; Processor dispatches to whichever was selected at
// construction.
type chunkProcessor interface {
	ProcessChunk(raw []byte) error
	End() error
	Close(errMsg string) error
}

// Processor is constructed once per HTTP response and owns the chosen
// streaming strategy for the request's source→target dialect pair.
type Processor struct {
	strategy chunkProcessor
}

// New selects one of the three §4.F strategies based on the source and
// target provider tags and builds the processor that implements it.
//
//   - fromTag == toTag == "openai": same-dialect pass-through with XML
//     awareness.
//   - fromTag == toTag == "ollama": same-dialect native line-JSON.
//   - otherwise: cross-dialect converting, via eng's registered
//     converters.
func New(w io.Writer, tools []ir.FunctionSchema, includeUsage bool, fromTag, toTag string, eng *engine.Engine, maxToolCallBufferSize int, nextID func() string) *Processor {
	knownToolNames := ir.KnownToolNames(tools)
	if nextID == nil {
		nextID = defaultCallID
	}

	switch {
	case fromTag == "openai" && toTag == "openai":
		return &Processor{strategy: newOpenAIPassthrough(w, knownToolNames, maxToolCallBufferSize, nextID)}
	case fromTag == "ollama" && toTag == "ollama":
		return &Processor{strategy: newOllamaNative(w, knownToolNames, maxToolCallBufferSize)}
	default:
		ctx := engine.NewConversionContext(fromTag, toTag, knownToolNames, true)
		return &Processor{strategy: newCrossDialect(w, eng, ctx, includeUsage, fromTag == "openai", toTag == "openai", maxToolCallBufferSize, nextID)}
	}
}

var callCounter int

func defaultCallID() string {
	callCounter++
	return "call_stream_" + itoaStream(callCounter)
}

func itoaStream(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ProcessChunk feeds one raw chunk of upstream bytes to the selected
// strategy.
func (p *Processor) ProcessChunk(raw []byte) error {
	return p.strategy.ProcessChunk(raw)
}

// End flushes any withheld buffer and writes the dialect terminator.
// Idempotent.
func (p *Processor) End() error {
	return p.strategy.End()
}

// Close writes a dialect-appropriate error envelope followed by the
// terminator, for a source error arriving after headers are sent.
// Idempotent.
func (p *Processor) Close(errMsg string) error {
	return p.strategy.Close(errMsg)
}

// PipeFrom wires a channel-based chunk source to the processor: each
// value is fed to ProcessChunk, a source error triggers Close, channel
// closure triggers End, and parent cancellation (the client HTTP
// connection closing) stops the pump without writing anything further.
func (p *Processor) PipeFrom(parent context.Context, source <-chan []byte, sourceErr <-chan error) error {
	for {
		select {
		case <-parent.Done():
			return nil
		case err, ok := <-sourceErr:
			if !ok {
				sourceErr = nil
				continue
			}
			if err != nil {
				return p.Close(err.Error())
			}
		case chunk, ok := <-source:
			if !ok {
				return p.End()
			}
			if err := p.ProcessChunk(chunk); err != nil {
				return p.Close(err.Error())
			}
		}
	}
}

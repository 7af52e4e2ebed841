package engine

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time so tests can inject a fixed instant;
// production code leaves it nil and the engine falls back to
// time.Now().
type Clock interface {
	Now() time.Time
}

// IDGenerator produces the synthetic ids the engine attaches to
// recovered tool calls and synthesized usage frames. Production code
// leaves it nil and the engine falls back to a per-process counter.
type IDGenerator interface {
	NextID() string
}

// counterIDGenerator is the context-free default: a short random
// segment followed by a monotonic counter, so ids stay unique within a request
// without requiring callers to wire anything up.
type counterIDGenerator struct {
	counter uint64
}

func (g *counterIDGenerator) NextID() string {
	n := atomic.AddUint64(&g.counter, 1)
	return "call_" + uuid.NewString()[:8] + "_" + itoa(n)
}

func itoa(n uint64) string {
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

// ReinjectionConfig controls the tool-instruction reinjection heuristic:
// once the sentinel-bearing instruction message falls more than
// MessageCount messages or TokenCount estimated tokens behind the end
// of the conversation, it's injected again near the end so a long
// conversation doesn't let the model's compliance drift as the
// original instructions scroll out of effective context. A zero
// threshold disables that dimension of the check.
type ReinjectionConfig struct {
	Enabled      bool
	MessageCount int
	TokenCount   int
	// Type is "system" or "user": which role the reinjected reminder is
	// attached to.
	Type string
}

// ConversionContext carries the per-request state applyTransforms and
// the conversion operations need: which dialects are in play, the
// tool-calling vocabulary, whether native tool passthrough is enabled,
// and the running transformation log. Clock/IDs are optional injection
// points for deterministic tests; both are nil-safe.
type ConversionContext struct {
	SourceTag      string
	TargetTag      string
	KnownToolNames map[string]bool
	PassTools      bool
	Strict         bool
	Reinjection    ReinjectionConfig

	TransformationLog []string

	Clock Clock
	IDs   IDGenerator
}

// NewConversionContext builds a context with sane production defaults
// (no injected clock/id generator).
func NewConversionContext(sourceTag, targetTag string, knownToolNames map[string]bool, passTools bool) *ConversionContext {
	return &ConversionContext{
		SourceTag:      sourceTag,
		TargetTag:      targetTag,
		KnownToolNames: knownToolNames,
		PassTools:      passTools,
	}
}

func (c *ConversionContext) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now()
	}
	return time.Now()
}

var fallbackIDs = &counterIDGenerator{}

func (c *ConversionContext) nextID() string {
	if c.IDs != nil {
		return c.IDs.NextID()
	}
	return fallbackIDs.NextID()
}

func (c *ConversionContext) log(entry string) {
	c.TransformationLog = append(c.TransformationLog, entry)
}

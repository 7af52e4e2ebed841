package streamproc

// State tracks the per-stream bookkeeping a processor needs across
// ProcessChunk calls, per §4.F's "per-stream state component".
type State struct {
	IsToolCallInProgress bool
	HasEmittedContent    bool
	CurrentToolName      string
	ChunkCount           int
	StreamEnded          bool
	doneSent             bool
}

// End marks the stream ended. Idempotent: calling it more than once
// has no further effect.
func (s *State) End() {
	s.StreamEnded = true
}

// MarkDoneSent reports whether the terminator was still unsent, marking
// it sent as a side effect: true on the first call, false afterwards. Callers use this to guarantee the
// terminator is written exactly once: `if s.MarkDoneSent() { write
// terminator }`.
func (s *State) MarkDoneSent() bool {
	if s.doneSent {
		return false
	}
	s.doneSent = true
	return true
}

// DoneSent reports whether the terminator has already been written.
func (s *State) DoneSent() bool { return s.doneSent }

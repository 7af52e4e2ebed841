package xmltool

// DefaultMaxToolCallBufferSize is the default ceiling for a streaming
// tool-call buffer, per §6's maxToolCallBufferSize configuration
// option.
const DefaultMaxToolCallBufferSize = 64 * 1024

// PartialState is the explicit state record the streaming extractor
// hands back to the caller to pass into its next call, per the
// "control-flow via partial state" design note.
type PartialState struct {
	RootTag            string
	IsPotential        bool
	MightBeToolCall    *bool
	Buffer             string
	IdentifiedToolName string
}

// PartialResult is ExtractPartial's return value.
type PartialResult struct {
	Complete     bool
	ToolCall     *ToolCall
	Content      string
	HasContent   bool
	PartialState *PartialState
}

func startsWithHTML(buffer string) bool {
	slice := unwrapCodeFence(buffer)
	name, terminated := firstTagNameToken(slice)
	return terminated && isCommonHTMLTag(name)
}

// ExtractPartial is the streaming/partial variant of the tool-call
// extractor described in §4.A. Callers accumulate buffer across chunks
// and call this once per chunk, threading the returned PartialState
// back in as previous on the next call.
func ExtractPartial(buffer string, knownToolNames map[string]bool, previous *PartialState, maxBufferSize int) PartialResult {
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxToolCallBufferSize
	}

	// HTML prefaces never buffer: resolve any tool call appearing after
	// the HTML region immediately, otherwise flush and reset.
	if startsWithHTML(buffer) {
		if tc, ok := extractComplete(buffer, knownToolNames); ok {
			return PartialResult{Complete: true, ToolCall: tc, Content: buffer, HasContent: true}
		}
		return PartialResult{Complete: false, Content: buffer, HasContent: true, PartialState: nil}
	}

	working := buffer
	if len(working) > maxBufferSize {
		working = working[len(working)-maxBufferSize:]
	}

	det := Detect(working, knownToolNames)
	wasPotential := previous != nil && previous.IsPotential

	switch {
	case wasPotential && !det.IsPotential:
		// Ruled out after previously looking like a candidate: reset.
		return PartialResult{Complete: false, Content: working, HasContent: true, PartialState: nil}

	case det.MightBeToolCall != nil && *det.MightBeToolCall && det.IsCompletedXML:
		if tc, ok := extractComplete(working, knownToolNames); ok {
			return PartialResult{Complete: true, ToolCall: tc, Content: working, HasContent: true}
		}
		// The classifier saw a closed tag but extraction came up empty
		// (e.g. the closed element didn't actually match a known tool
		// after all); keep buffering rather than dropping the span.
		return PartialResult{Complete: false, PartialState: buildPartialState(det, working, knownToolNames)}

	case det.MightBeToolCall != nil && *det.MightBeToolCall:
		return PartialResult{Complete: false, PartialState: buildPartialState(det, working, knownToolNames)}

	default:
		// Never was, and still isn't, a candidate: it's ordinary content.
		return PartialResult{Complete: false, Content: working, HasContent: true, PartialState: nil}
	}
}

func buildPartialState(det DetectionResult, buffer string, knownToolNames map[string]bool) *PartialState {
	identified := ""
	if matchesKnownToolCI(knownToolNames, det.RootTagName) {
		identified = canonicalToolName(knownToolNames, det.RootTagName)
	}
	return &PartialState{
		RootTag:            det.RootTagName,
		IsPotential:        det.IsPotential,
		MightBeToolCall:     det.MightBeToolCall,
		Buffer:             buffer,
		IdentifiedToolName: identified,
	}
}

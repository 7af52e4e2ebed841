// Package xmltool implements the tool-call XML envelope: detecting,
// balancing, and extracting structured tool invocations out of free-text
// model output, in both complete and streaming/partial modes. Every
// exported entry point is total — malformed input degrades to "no tool
// call found" rather than panicking or returning an error.
package xmltool

// ToolCall is one recovered tool invocation: a name and its decoded
// argument object.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// extractComplete scans text for a single balanced XML element whose
// local name (case-insensitive) matches some entry in knownToolNames,
// returning the first such match in document order. See §4.A.
func extractComplete(text string, knownToolNames map[string]bool) (*ToolCall, bool) {
	if len(knownToolNames) == 0 {
		return nil, false
	}
	pre := preprocess(text, knownToolNames)
	forest := balance(pre)
	e := selectElement(forest, knownToolNames)
	if e == nil {
		return nil, false
	}
	args := buildArguments(pre, *e, knownToolNames)
	return &ToolCall{Name: canonicalToolName(knownToolNames, e.name), Arguments: args}, true
}

// extractFromWrapper restricts scanning to the innermost
// <toolbridge:calls>/<toolbridge_calls> sentinel pair, if text contains
// one, and returns the first matching tool element within it.
func extractFromWrapper(text string, knownToolNames map[string]bool) (*ToolCall, bool) {
	if len(knownToolNames) == 0 {
		return nil, false
	}
	pre := preprocess(text, knownToolNames)
	start, end, found := findInnermostWrapper(pre)
	if !found {
		return nil, false
	}
	inner := pre[start:end]
	forest := balance(inner)
	e := selectElement(forest, knownToolNames)
	if e == nil {
		return nil, false
	}
	args := buildArguments(inner, *e, knownToolNames)
	return &ToolCall{Name: canonicalToolName(knownToolNames, e.name), Arguments: args}, true
}

// extractAllFromWrapper is extractFromWrapper's multi-call sibling: it
// returns every top-level tool element found inside the innermost
// sentinel pair, in document order.
func extractAllFromWrapper(text string, knownToolNames map[string]bool) []ToolCall {
	if len(knownToolNames) == 0 {
		return nil
	}
	pre := preprocess(text, knownToolNames)
	start, end, found := findInnermostWrapper(pre)
	if !found {
		return nil
	}
	inner := pre[start:end]
	forest := balance(inner)

	var calls []ToolCall
	for _, e := range forest {
		if !matchesKnownToolCI(knownToolNames, e.name) {
			continue
		}
		args := buildArguments(inner, e, knownToolNames)
		calls = append(calls, ToolCall{Name: canonicalToolName(knownToolNames, e.name), Arguments: args})
	}
	return calls
}

// Extract is the composed recovery path dialect converters use against
// a complete assistant text channel: try the wrapper sentinel first,
// then bare balancing, then the JSON fallback. Returns false if none of
// the three strategies find anything.
func Extract(text string, knownToolNames map[string]bool) (*ToolCall, bool) {
	if tc, ok := extractFromWrapper(text, knownToolNames); ok {
		return tc, true
	}
	if tc, ok := extractComplete(text, knownToolNames); ok {
		return tc, true
	}
	return jsonFallback(text, knownToolNames)
}

// ExtractAll is Extract's multi-call counterpart, used when a response
// may legitimately contain more than one invocation wrapped together.
func ExtractAll(text string, knownToolNames map[string]bool) []ToolCall {
	if calls := extractAllFromWrapper(text, knownToolNames); len(calls) > 0 {
		return calls
	}
	if tc, ok := Extract(text, knownToolNames); ok {
		return []ToolCall{*tc}
	}
	return nil
}

package xmltool

import "strings"

// DetectionResult is the cheap classifier's verdict on a text buffer,
// per §4.A. MightBeToolCall is tri-state: nil means "not yet
// determined", a pointed-to true/false is a firm ruling. Once a ruling
// is made it must never flip from false back to true for the same
// growing buffer — see the partial-monotonicity invariant.
type DetectionResult struct {
	IsPotential     bool
	IsCompletedXML  bool
	RootTagName     string
	MightBeToolCall *bool
	Confidence      float64
}

// firstTagNameToken returns the name token following the first '<' in
// s, and whether that token is terminated (i.e. s has more bytes after
// it, so the name can no longer grow). An empty name means s has no
// usable tag start yet.
func firstTagNameToken(s string) (name string, terminated bool) {
	idx := strings.IndexByte(s, '<')
	if idx < 0 {
		return "", false
	}
	i := idx + 1
	if i < len(s) && s[i] == '/' {
		i++
	}
	start := i
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	return s[start:i], i < len(s)
}

// isPrefixOfAnyKnownTool reports whether name could still grow into
// (or already equals) some entry of knownToolNames, case-sensitively.
func isPrefixOfAnyKnownTool(name string, knownToolNames map[string]bool) bool {
	for k := range knownToolNames {
		if len(name) > len(k) {
			continue
		}
		if k[:len(name)] == name {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }

// Detect is the cheap classifier §4.A describes: given the current text
// buffer and the known tool vocabulary, it decides whether the buffer
// could still be forming a tool call, without doing the full balance
// pass beyond what's needed to answer that question.
func Detect(text string, knownToolNames map[string]bool) DetectionResult {
	if text == "" {
		return DetectionResult{}
	}
	slice := unwrapCodeFence(text)
	if !strings.ContainsRune(slice, '<') {
		return DetectionResult{}
	}
	name, terminated := firstTagNameToken(slice)
	if name == "" {
		return DetectionResult{}
	}

	result := DetectionResult{RootTagName: name}

	// A <toolbridge:calls>/<toolbridge_calls> wrapper (or a prefix of one
	// still streaming in) stays a candidate whenever tools are known.
	wrapperCandidate := len(knownToolNames) > 0 &&
		(strings.HasPrefix(wrapperNameColon, name) || strings.HasPrefix(wrapperNameUnderscore, name))

	switch {
	case terminated && isCommonHTMLTag(name):
		result.MightBeToolCall = boolPtr(false)
		return result
	case !wrapperCandidate && !isPrefixOfAnyKnownTool(name, knownToolNames):
		result.MightBeToolCall = boolPtr(false)
		return result
	}

	result.IsPotential = true
	result.MightBeToolCall = boolPtr(true)

	forest := balance(slice)
	if len(forest) > 0 {
		result.RootTagName = forest[0].name
		result.IsCompletedXML = !forest[0].unterminated
	}

	result.Confidence = 0.5
	if knownToolNames[result.RootTagName] {
		result.Confidence += 0.3
	}
	if result.IsCompletedXML {
		result.Confidence += 0.2
	}
	return result
}

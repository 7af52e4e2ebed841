package xmltool

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// reasoningStripper removes model "thinking" regions before any tool
// call scanning happens, per §4.A preprocessing step (i): tool calls
// written inside a reasoning block are plans, not invocations. Built
// once and reused — regexp2 compilation is not cheap enough to redo per
// call in a streaming hot path.
var reasoningStripper = regexp2.MustCompile(
	`<think>[\s\S]*?</think>|<thinking>[\s\S]*?</thinking>|\[thinking\][\s\S]*?\[/thinking\]|◁think▷[\s\S]*?◁/think▷`,
	0,
)

// codeFencePattern extracts the body of a markdown code fence that
// wraps the entire (trimmed) text, optionally tagged xml or json.
var codeFencePattern = regexp2.MustCompile("(?s)^```(?:xml|json)?[ \t]*\r?\n([\\s\\S]*?)\r?\n?```\\s*$", 0)

func regexp2ReplaceAll(re *regexp2.Regexp, input, replacement string) string {
	out, err := re.Replace(input, replacement, -1, -1)
	if err != nil {
		return input
	}
	return out
}

// stripReasoning removes every <think>/<thinking>/[thinking]/◁think▷
// region from text, unless the request itself declares "think" (or
// "thinking") as a real tool — then those regions are left alone so
// extraction can still find them, per the argument-building rule that
// treats an outer <think> tool's <points>/<thoughts> children
// specially.
func stripReasoning(text string, knownToolNames map[string]bool) string {
	if matchesKnownToolCI(knownToolNames, "think") || matchesKnownToolCI(knownToolNames, "thinking") {
		return text
	}
	return regexp2ReplaceAll(reasoningStripper, text, "")
}

// stripXMLDeclaration removes a single leading `<?xml ... ?>` prolog,
// if present.
func stripXMLDeclaration(text string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "<?xml") {
		return text
	}
	end := strings.Index(trimmed, "?>")
	if end < 0 {
		return text
	}
	return trimmed[end+2:]
}

// unwrapCodeFence extracts the body of a markdown code fence that
// wraps the entire trimmed text. If text isn't fully fenced, it is
// returned unchanged.
func unwrapCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	m, err := codeFencePattern.FindStringMatch(trimmed)
	if err != nil || m == nil {
		// Bare ``` fence with no closer found by the anchored pattern;
		// fall back to stripping leading/trailing fence markers only.
		body := strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(body, "\n"); idx >= 0 && looksLikeFenceLang(body[:idx]) {
			body = body[idx+1:]
		}
		body = strings.TrimSuffix(strings.TrimRight(body, " \t\r\n"), "```")
		return body
	}
	groups := m.Groups()
	if len(groups) > 1 {
		return groups[1].String()
	}
	return text
}

func looksLikeFenceLang(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "xml" || s == "json"
}

// unwrapOuterComment removes a single `<!-- ... -->` wrapper when it
// exactly encloses the rest of the (trimmed) text and that remainder
// itself looks like XML.
func unwrapOuterComment(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "<!--") || !strings.HasSuffix(trimmed, "-->") {
		return text
	}
	inner := strings.TrimSpace(trimmed[4 : len(trimmed)-3])
	if strings.HasPrefix(inner, "<") {
		return inner
	}
	return text
}

// stripLeadingJunk drops any characters before the first '<', since
// preamble prose ("Here you go: <search>...") is not part of the
// candidate element.
func stripLeadingJunk(text string) string {
	idx := strings.IndexByte(text, '<')
	if idx <= 0 {
		return text
	}
	return text[idx:]
}

// preprocess runs the full preprocessing pipeline shared by complete
// and partial extraction, per §4.A.
func preprocess(text string, knownToolNames map[string]bool) string {
	text = stripReasoning(text, knownToolNames)
	text = stripXMLDeclaration(text)
	text = unwrapCodeFence(text)
	text = unwrapOuterComment(text)
	text = stripLeadingJunk(text)
	return text
}

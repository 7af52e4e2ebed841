package xmltool

import (
	"encoding/json"
	"regexp"

	"github.com/dlclark/regexp2"
)

var (
	unquotedKeyPattern  = regexp2.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`, 0)
	trailingCommaPattern = regexp2.MustCompile(`,(\s*[}\]])`, 0)
)

// jsonFallback implements §4.A's JSON fallback: when XML balancing
// yields nothing, look for a known tool name followed by `(` or
// whitespace and then `{`, then walk forward tracking brace depth and
// string escapes to pull out a balanced JSON object.
func jsonFallback(text string, knownToolNames map[string]bool) (*ToolCall, bool) {
	bestStart := -1
	var bestName string
	var bestBraceIdx int

	for name := range knownToolNames {
		pattern := regexp.QuoteMeta(name) + `\s*\(?\s*\{`
		re, err := regexp2.Compile(pattern, 0)
		if err != nil {
			continue
		}
		m, err := re.FindStringMatch(text)
		if err != nil || m == nil {
			continue
		}
		if bestStart == -1 || m.Index < bestStart {
			bestStart = m.Index
			bestName = name
			bestBraceIdx = m.Index + m.Length - 1
		}
	}
	if bestStart == -1 {
		return nil, false
	}

	end := findBalancedBraceEnd(text, bestBraceIdx)
	if end < 0 {
		return nil, false
	}
	raw := text[bestBraceIdx : end+1]
	cleaned := lenientJSONCleanup(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, false
	}
	return &ToolCall{Name: bestName, Arguments: obj}, true
}

// findBalancedBraceEnd returns the index of the '}' that closes the
// '{' at start, tracking nested braces and both quote styles so quoted
// braces don't throw off the depth count. Returns -1 if unbalanced.
func findBalancedBraceEnd(s string, start int) int {
	depth := 0
	inString := false
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// lenientJSONCleanup applies the cleanups §4.A calls for before
// parsing a fallback-extracted blob: single quotes to double, bare
// identifier keys quoted, trailing commas removed.
func lenientJSONCleanup(raw string) string {
	out := raw
	if r, err := unquotedKeyPattern.Replace(out, "${1}\"${2}\"${3}", -1, -1); err == nil {
		out = r
	}
	if r, err := trailingCommaPattern.Replace(out, "${1}", -1, -1); err == nil {
		out = r
	}
	out = singleToDoubleQuotes(out)
	return out
}

// singleToDoubleQuotes swaps single-quoted string delimiters for
// double quotes. It only flips quotes that aren't themselves inside an
// already-double-quoted string, since JSON string content may contain
// apostrophes that must survive untouched.
func singleToDoubleQuotes(s string) string {
	var b []byte
	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
			b = append(b, c)
		case c == '\\':
			escaped = true
			b = append(b, c)
		case inDouble:
			if c == '"' {
				inDouble = false
			}
			b = append(b, c)
		case inSingle:
			if c == '\'' {
				inSingle = false
				b = append(b, '"')
			} else {
				b = append(b, c)
			}
		case c == '"':
			inDouble = true
			b = append(b, c)
		case c == '\'':
			inSingle = true
			b = append(b, '"')
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

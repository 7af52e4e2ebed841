package xmltool

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// isRawTextKey reports whether a child element name is one of the
// raw-text carriers per §4.A rule 2.
func isRawTextKey(lowerName string) bool {
	switch lowerName {
	case "code", "html", "markdown", "md", "body", "content":
		return true
	}
	return false
}

// buildArguments implements the §4.A argument-building algorithm for
// the matched element e, whose bytes live in s.
func buildArguments(s string, e element, knownToolNames map[string]bool) map[string]any {
	inner := s[e.innerStart:e.innerEnd]
	trimmed := strings.TrimSpace(inner)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return obj
		}
	}
	return childrenToMap(s, e.children, e.name, knownToolNames)
}

// childrenToMap walks the immediate children of a matched element (or a
// recursively-discovered nested object) and builds the argument map per
// §4.A rule 2, accumulating repeated child names into arrays.
func childrenToMap(s string, children []element, outerName string, knownToolNames map[string]bool) map[string]any {
	result := map[string]any{}
	for _, c := range children {
		var raw string
		if !c.selfClosed {
			raw = s[c.innerStart:c.innerEnd]
		}
		val := computeChildValue(s, c, raw, outerName, knownToolNames)
		insertOrAccumulate(result, c.name, val)
	}
	return result
}

func computeChildValue(s string, c element, raw string, outerName string, knownToolNames map[string]bool) any {
	lname := strings.ToLower(c.name)
	switch {
	case isRawTextKey(lname):
		return decodeRawText(raw)
	case matchesKnownToolCI(knownToolNames, c.name),
		strings.EqualFold(outerName, "think") && (lname == "points" || lname == "thoughts"):
		return raw
	case strings.Contains(raw, "<") && strings.Contains(raw, ">"):
		nestedForest := balance(raw)
		nested := childrenToMap(raw, nestedForest, c.name, knownToolNames)
		if len(nested) == 1 {
			if arr, ok := nested["item"]; ok {
				if arrSlice, ok2 := arr.([]any); ok2 {
					return arrSlice
				}
			}
		}
		return nested
	default:
		return coerceScalar(raw)
	}
}

// coerceScalar applies the §4.A leaf-value coercion rule: boolean,
// then finite number, else decoded string with whitespace preserved.
func coerceScalar(raw string) any {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	if trimmed != "" {
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			return n
		}
	}
	return decodeEntities(raw)
}

// insertOrAccumulate stores val under key, promoting to a slice the
// moment a key repeats, per the "repeated child names accumulate into
// an array in document order" rule.
func insertOrAccumulate(m map[string]any, key string, val any) {
	existing, ok := m[key]
	if !ok {
		m[key] = val
		return
	}
	if arr, ok := existing.([]any); ok {
		m[key] = append(arr, val)
		return
	}
	m[key] = []any{existing, val}
}

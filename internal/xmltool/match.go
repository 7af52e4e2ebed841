package xmltool

import "strings"

// matchesKnownToolCI reports whether name matches some entry of
// knownToolNames case-insensitively.
func matchesKnownToolCI(knownToolNames map[string]bool, name string) bool {
	if knownToolNames[name] {
		return true
	}
	for k := range knownToolNames {
		if eqFold(k, name) {
			return true
		}
	}
	return false
}

// canonicalToolName returns the declared (request-schema) spelling of a
// tool whose local element name matched case-insensitively, so output
// always echoes back the name the caller advertised rather than
// whatever casing the model happened to emit.
func canonicalToolName(knownToolNames map[string]bool, name string) string {
	if knownToolNames[name] {
		return name
	}
	for k := range knownToolNames {
		if eqFold(k, name) {
			return k
		}
	}
	return name
}

// selectElement implements the §4.A preference order: the root element
// if its local name matches a known tool, otherwise the earliest
// occurrence of any known tool name in document order.
func selectElement(forest []element, knownToolNames map[string]bool) *element {
	if len(knownToolNames) == 0 || len(forest) == 0 {
		return nil
	}
	if matchesKnownToolCI(knownToolNames, forest[0].name) {
		root := forest[0]
		return &root
	}
	var found *element
	walkPreorder(forest, func(e element) {
		if found != nil {
			return
		}
		if matchesKnownToolCI(knownToolNames, e.name) {
			ec := e
			found = &ec
		}
	})
	return found
}

// isCommonHTMLTag reports whether name is one of the hard-coded common
// HTML element names the classifier uses to rule out prose markup.
func isCommonHTMLTag(name string) bool {
	switch strings.ToLower(name) {
	case "div", "span", "p", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "table", "tr", "td", "th", "a", "img",
		"style", "script", "link", "meta", "title", "head", "body",
		"html", "form", "input", "button", "textarea", "select", "option":
		return true
	}
	return false
}

package xmltool

import "strings"

// decodeEntities resolves the five XML predefined entities plus the two
// extras the spec calls out (&nbsp; and &#39;). It intentionally does
// not attempt general numeric-entity decoding beyond those two, since
// tool argument text is expected to be simple prose/markup, not a full
// XML document.
func decodeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	replacer := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&nbsp;", " ",
		"&#39;", "'",
		"&amp;", "&", // one left-to-right pass, so "&amp;lt;" becomes "&lt;", not "<"
	)
	return replacer.Replace(s)
}

// decodeCDATA strips a single `<![CDATA[ ... ]]>` wrapper if s is
// exactly one, returning its verbatim (non-entity-decoded) contents.
// If s is not a CDATA wrapper it is returned unchanged.
func decodeCDATA(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	const open = "<![CDATA["
	const close = "]]>"
	if strings.HasPrefix(trimmed, open) && strings.HasSuffix(trimmed, close) {
		return trimmed[len(open) : len(trimmed)-len(close)], true
	}
	return s, false
}

// decodeRawText applies CDATA unwrapping then entity decoding, the
// treatment the spec requires for raw-text child elements such as
// <code>, <html>, <markdown>.
func decodeRawText(s string) string {
	if inner, ok := decodeCDATA(s); ok {
		return inner
	}
	return decodeEntities(s)
}

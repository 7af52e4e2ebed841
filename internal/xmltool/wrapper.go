package xmltool

// wrapperNames are the two sentinel spellings the system must accept on
// input, per the open question in §9: the colon form is canonical
// output, the underscore form is accepted for backward compatibility.
const (
	wrapperNameColon     = "toolbridge:calls"
	wrapperNameUnderscore = "toolbridge_calls"
)

func isWrapperName(name string) bool {
	return name == wrapperNameColon || name == wrapperNameUnderscore
}

// findInnermostWrapper locates the innermost matched <toolbridge:calls>
// / <toolbridge_calls> sentinel pair in s and returns the byte range of
// its inner content. Matching is case-sensitive and name-specific: a
// colon-form open only closes with a colon-form close, and likewise for
// the underscore form, but the two forms may nest against each other
// since both are sentinel wrappers.
func findInnermostWrapper(s string) (start, end int, found bool) {
	tokens := scanTags(s)

	type frame struct {
		name    string
		openEnd int
		depth   int
	}
	var stack []frame
	bestDepth := -1

	for _, t := range tokens {
		if !isWrapperName(t.name) {
			continue
		}
		switch t.kind {
		case tokenOpen:
			stack = append(stack, frame{name: t.name, openEnd: t.end, depth: len(stack)})
		case tokenClose:
			matchIdx := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name == t.name {
					matchIdx = i
					break
				}
			}
			if matchIdx == -1 {
				continue
			}
			f := stack[matchIdx]
			stack = stack[:matchIdx]
			if f.depth > bestDepth {
				bestDepth = f.depth
				start, end, found = f.openEnd, t.start, true
			}
		}
	}
	return start, end, found
}

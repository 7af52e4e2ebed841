// Package toolprompt builds the system-prompt block that teaches a
// backend model how to emit tool calls inside the XML envelope, per
// §4.C. The block's prose is not normative, but a handful of literal
// tokens are: downstream parsers and the dialect converters key off
// them verbatim, so changing their spelling here breaks the contract.
package toolprompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toolbridge/toolbridge/internal/ir"
)

// Heading is the literal sentinel a system message is checked against
// before appending another copy of the instructions.
const Heading = "# TOOL USAGE INSTRUCTIONS"

// WrapperOpen/WrapperClose are the canonical (colon-form) sentinel pair
// used in generated output; the underscore form is accepted on input
// only, per the open question in spec §9.
const (
	WrapperOpen  = "<toolbridge:calls>"
	WrapperClose = "</toolbridge:calls>"
)

// DisabledDirective is the literal substring that marks tool use as
// turned off for a request.
const DisabledDirective = "Tool usage is disabled for this request."

var attrEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&apos;",
)

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// Build produces the full instruction block for a tool list: the
// heading, one <tool_definition> per tool, a literal invocation
// example, and a short rule set.
func Build(tools []ir.FunctionSchema) string {
	var b strings.Builder
	b.WriteString(Heading)
	b.WriteString("\n\n")
	b.WriteString("You have access to the following tools. To call one, respond with an XML block in the exact form shown below.\n\n")

	for _, tool := range tools {
		writeToolDefinition(&b, tool)
	}

	if len(tools) > 0 {
		b.WriteString("Example invocation:\n\n")
		b.WriteString(WrapperOpen)
		b.WriteByte('\n')
		b.WriteString(exampleInvocation(tools[0]))
		b.WriteByte('\n')
		b.WriteString(WrapperClose)
		b.WriteString("\n\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Call tools only via the XML wrapper shown above; never describe a call in prose instead.\n")
	b.WriteString("- Do not wrap the call in a markdown code fence.\n")
	b.WriteString("- The root element of each call is the tool's name; nested elements are its parameters.\n")
	b.WriteString("- Only emit a call when you intend the tool to run now.\n")

	return b.String()
}

func writeToolDefinition(b *strings.Builder, tool ir.FunctionSchema) {
	b.WriteString("<tool_definition>\n")
	fmt.Fprintf(b, "  <name>%s</name>\n", escapeAttr(tool.Name))
	fmt.Fprintf(b, "  <description>%s</description>\n", escapeAttr(tool.Description))
	b.WriteString("  <parameters>\n")
	for _, p := range parameterList(tool.Parameters) {
		fmt.Fprintf(b, "    <parameter name=%q type=%q required=%q>\n", escapeAttr(p.Name), escapeAttr(p.Type), boolAttr(p.Required))
		fmt.Fprintf(b, "      <description>%s</description>\n", escapeAttr(p.Description))
		b.WriteString("    </parameter>\n")
	}
	b.WriteString("  </parameters>\n")
	b.WriteString("</tool_definition>\n\n")
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// parameterList extracts a deterministically-ordered parameter list
// from a JSON-schema-shaped Parameters map ({"properties":{...},
// "required":[...]}). Missing or malformed shapes yield no parameters
// rather than erroring, consistent with the parser's total-function
// discipline elsewhere in this codebase.
func parameterList(schema map[string]any) []parameter {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	required := map[string]bool{}
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]parameter, 0, len(names))
	for _, name := range names {
		def, _ := props[name].(map[string]any)
		typ, _ := def["type"].(string)
		if typ == "" {
			typ = "string"
		}
		desc, _ := def["description"].(string)
		out = append(out, parameter{Name: name, Type: typ, Description: desc, Required: required[name]})
	}
	return out
}

func exampleInvocation(tool ir.FunctionSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", tool.Name)
	for _, p := range parameterList(tool.Parameters) {
		fmt.Fprintf(&b, "  <%s>%s</%s>\n", p.Name, exampleValue(p.Type), p.Name)
	}
	fmt.Fprintf(&b, "</%s>", tool.Name)
	return b.String()
}

func exampleValue(paramType string) string {
	switch paramType {
	case "number", "integer":
		return "0"
	case "boolean":
		return "true"
	default:
		return "value"
	}
}

// RequiredDirective orders the model to call some tool.
func RequiredDirective() string {
	return "You must call one of the tools listed above in your next response."
}

// MandatoryDirective orders the model to call a specific named tool.
func MandatoryDirective(name string) string {
	return fmt.Sprintf("You must call the %q tool in your next response.", name)
}

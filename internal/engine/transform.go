package engine

import (
	"strings"

	"github.com/toolbridge/toolbridge/internal/capability"
	"github.com/toolbridge/toolbridge/internal/dialect"
	"github.com/toolbridge/toolbridge/internal/ir"
	"github.com/toolbridge/toolbridge/internal/toolprompt"
)

const systemInstructionSeparator = "\n\n---\n\n"

func containsSentinel(content string) bool {
	return strings.Contains(content, toolprompt.Heading)
}

// injectSystemInstruction prepends a new system message carrying text,
// or appends it to the first existing one, per §4.E rule 1.
func injectSystemInstruction(req *ir.Request, text string, skipIfSentinelPresent bool) {
	for i := range req.Messages {
		if req.Messages[i].Role != ir.RoleSystem {
			continue
		}
		existing := req.Messages[i].Content.PlainText()
		if skipIfSentinelPresent && containsSentinel(existing) {
			return
		}
		req.Messages[i].Content = ir.NewTextContent(existing + systemInstructionSeparator + text)
		return
	}
	system := ir.Message{Role: ir.RoleSystem, Content: ir.NewTextContent(text)}
	req.Messages = append([]ir.Message{system}, req.Messages...)
}

// appendToFirstSystemMessage appends text to the first system message's
// content, creating one if none exists; used for the short
// toolChoice-derived directives, which always apply regardless of
// whether the sentinel heading is already present.
func appendToFirstSystemMessage(req *ir.Request, text string) {
	for i := range req.Messages {
		if req.Messages[i].Role != ir.RoleSystem {
			continue
		}
		existing := req.Messages[i].Content.PlainText()
		req.Messages[i].Content = ir.NewTextContent(existing + systemInstructionSeparator + text)
		return
	}
	req.Messages = append([]ir.Message{{Role: ir.RoleSystem, Content: ir.NewTextContent(text)}}, req.Messages...)
}

// stripNativeToolsAndInjectXML is transform rule 1: §4.E.
func stripNativeToolsAndInjectXML(req ir.Request, ctx *ConversionContext) ir.Request {
	if ctx.PassTools {
		return req
	}
	toolChoiceNone := req.ToolChoice != nil && req.ToolChoice.Mode == ir.ToolChoiceNone
	if len(req.Tools) == 0 && !toolChoiceNone {
		return req
	}

	if len(req.Tools) > 0 {
		prompt := toolprompt.Build(req.Tools)
		injectSystemInstruction(&req, prompt, true)
	}

	switch {
	case toolChoiceNone:
		appendToFirstSystemMessage(&req, toolprompt.DisabledDirective)
	case req.ToolChoice != nil && req.ToolChoice.Mode == ir.ToolChoiceRequired:
		appendToFirstSystemMessage(&req, toolprompt.RequiredDirective())
	case req.ToolChoice != nil && req.ToolChoice.Mode == ir.ToolChoiceFunction:
		appendToFirstSystemMessage(&req, toolprompt.MandatoryDirective(req.ToolChoice.FunctionName))
	}

	req.Tools = nil
	req.ToolChoice = nil
	req.ParallelToolCalls = nil
	ctx.log("strip_native_tools")
	return req
}

func hasUnsupported(report dialect.CompatibilityReport, feature string) bool {
	for _, f := range report.UnsupportedFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

// applyCapabilityTransforms is transform rule 2: §4.E.
func applyCapabilityTransforms(req ir.Request, report dialect.CompatibilityReport, ctx *ConversionContext) ir.Request {
	if hasUnsupported(report, "tool_calls") && len(req.Tools) > 0 {
		prompt := toolprompt.Build(req.Tools)
		injectSystemInstruction(&req, prompt, true)
		req.Tools = nil
		ctx.log("fold_tools_into_instruction")
	}

	if hasUnsupported(report, "n") && req.N != nil && *req.N > 1 {
		one := 1
		req.N = &one
		ctx.log("force_n_1")
	}

	if hasUnsupported(report, "structured_outputs") && req.ResponseFormat != nil && req.ResponseFormat.Type == ir.ResponseFormatJSONSchema {
		schemaDesc := "Respond with a single JSON object matching this schema: "
		if req.ResponseFormat.Schema != nil {
			if name := req.ResponseFormat.Name; name != "" {
				schemaDesc += name + "."
			}
		}
		injectSystemInstruction(&req, schemaDesc, false)
		req.ResponseFormat = &ir.ResponseFormat{Type: ir.ResponseFormatJSONObject}
		ctx.log("downgrade_structured_outputs_to_json_object")
	}

	return req
}

// applyTransforms runs the ordered transform pipeline §4.E describes:
// tool stripping, tool-instruction reinjection, capability-driven
// rewrites, then the capability filter's field drops against the target
// provider.
func applyTransforms(req ir.Request, compat dialect.CompatibilityReport, ctx *ConversionContext) ir.Request {
	originalTools := req.Tools
	req = stripNativeToolsAndInjectXML(req, ctx)
	req = reinjectToolInstructions(req, originalTools, ctx)
	req = applyCapabilityTransforms(req, compat, ctx)

	filtered, dropped := capability.Filter(req, ctx.TargetTag)
	for _, entry := range dropped {
		ctx.log(entry)
	}
	return filtered
}

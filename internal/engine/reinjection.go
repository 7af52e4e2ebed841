package engine

import (
	"github.com/toolbridge/toolbridge/internal/ir"
	"github.com/toolbridge/toolbridge/internal/tokencount"
	"github.com/toolbridge/toolbridge/internal/toolprompt"
)

// lastSentinelIndex returns the index of the last message whose content
// carries the tool-instruction sentinel, or -1 if none does.
func lastSentinelIndex(messages []ir.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if containsSentinel(messages[i].Content.PlainText()) {
			return i
		}
	}
	return -1
}

// dueForReinjection reports whether the sentinel last appeared far
// enough back, by the configured message-count or token-count
// threshold, that it should be injected again.
func dueForReinjection(messages []ir.Message, sentinelIdx int, cfg ReinjectionConfig) bool {
	since := messages[sentinelIdx+1:]
	if cfg.MessageCount > 0 && len(since) >= cfg.MessageCount {
		return true
	}
	if cfg.TokenCount > 0 && tokencount.CountMessages(since) >= cfg.TokenCount {
		return true
	}
	return false
}

// reinjectToolInstructions is the supplemented reinjection heuristic: if
// tool use is active (native tools stripped this turn, i.e. the XML
// prompt was just built or previously built) and the sentinel last
// appeared further back than the configured threshold, inject a fresh
// copy near the end of the conversation so it stays within the model's
// effective attention window on long conversations.
func reinjectToolInstructions(req ir.Request, tools []ir.FunctionSchema, ctx *ConversionContext) ir.Request {
	if ctx.PassTools || !ctx.Reinjection.Enabled || len(tools) == 0 {
		return req
	}

	idx := lastSentinelIndex(req.Messages)
	if idx < 0 {
		// No sentinel at all: the normal injection step (rule 1) already
		// handled this turn, nothing to reinject yet.
		return req
	}
	if !dueForReinjection(req.Messages, idx, ctx.Reinjection) {
		return req
	}

	prompt := toolprompt.Build(tools)
	reminder := ir.Message{Content: ir.NewTextContent(prompt)}
	if ctx.Reinjection.Type == "user" {
		reminder.Role = ir.RoleUser
	} else {
		reminder.Role = ir.RoleSystem
	}

	// Insert just before the final message rather than appending after
	// it, so the conversation still ends on the caller's own last turn
	// (several backends expect the final message to be the user's).
	insertAt := len(req.Messages)
	if insertAt > 0 {
		insertAt--
	}
	req.Messages = append(req.Messages[:insertAt:insertAt], append([]ir.Message{reminder}, req.Messages[insertAt:]...)...)
	ctx.log("tool_reinjection")
	return req
}

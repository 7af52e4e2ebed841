package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/ir"
)

func weatherTool() ir.FunctionSchema {
	return ir.FunctionSchema{Name: "get_weather", Description: "look up the weather", Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"location": map[string]any{"type": "string"}},
	}}
}

func TestReinjectToolInstructionsSkipsWhenDisabled(t *testing.T) {
	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, false)
	req := ir.Request{Messages: []ir.Message{{Role: ir.RoleUser, Content: ir.NewTextContent("hi")}}}

	out := reinjectToolInstructions(req, []ir.FunctionSchema{weatherTool()}, ctx)
	assert.Equal(t, req.Messages, out.Messages)
}

func TestReinjectToolInstructionsSkipsWhenNoSentinelYetPresent(t *testing.T) {
	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, false)
	ctx.Reinjection = ReinjectionConfig{Enabled: true, MessageCount: 1}
	req := ir.Request{Messages: []ir.Message{{Role: ir.RoleUser, Content: ir.NewTextContent("hi")}}}

	out := reinjectToolInstructions(req, []ir.FunctionSchema{weatherTool()}, ctx)
	assert.Equal(t, req.Messages, out.Messages)
}

func TestReinjectToolInstructionsFiresPastMessageCountThreshold(t *testing.T) {
	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, false)
	ctx.Reinjection = ReinjectionConfig{Enabled: true, MessageCount: 2, Type: "system"}

	req := ir.Request{Messages: []ir.Message{
		{Role: ir.RoleSystem, Content: ir.NewTextContent("# TOOL USAGE INSTRUCTIONS\nuse tools")},
		{Role: ir.RoleUser, Content: ir.NewTextContent("turn 1")},
		{Role: ir.RoleAssistant, Content: ir.NewTextContent("reply 1")},
		{Role: ir.RoleUser, Content: ir.NewTextContent("turn 2")},
	}}

	out := reinjectToolInstructions(req, []ir.FunctionSchema{weatherTool()}, ctx)
	require.Len(t, out.Messages, 5)
	// inserted just before the final message, not after it
	assert.Equal(t, ir.RoleSystem, out.Messages[3].Role)
	assert.Contains(t, out.Messages[3].Content.PlainText(), "TOOL USAGE INSTRUCTIONS")
	assert.Equal(t, "turn 2", out.Messages[4].Content.PlainText())
	assert.Contains(t, ctx.TransformationLog, "tool_reinjection")
}

func TestReinjectToolInstructionsDoesNotFireBelowThreshold(t *testing.T) {
	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, false)
	ctx.Reinjection = ReinjectionConfig{Enabled: true, MessageCount: 5}

	req := ir.Request{Messages: []ir.Message{
		{Role: ir.RoleSystem, Content: ir.NewTextContent("# TOOL USAGE INSTRUCTIONS\nuse tools")},
		{Role: ir.RoleUser, Content: ir.NewTextContent("turn 1")},
	}}

	out := reinjectToolInstructions(req, []ir.FunctionSchema{weatherTool()}, ctx)
	assert.Len(t, out.Messages, 2)
}

func TestReinjectToolInstructionsRespectsUserType(t *testing.T) {
	ctx := NewConversionContext("openai", "openai", map[string]bool{"get_weather": true}, false)
	ctx.Reinjection = ReinjectionConfig{Enabled: true, MessageCount: 1, Type: "user"}

	req := ir.Request{Messages: []ir.Message{
		{Role: ir.RoleSystem, Content: ir.NewTextContent("# TOOL USAGE INSTRUCTIONS\nuse tools")},
		{Role: ir.RoleUser, Content: ir.NewTextContent("turn 1")},
	}}

	out := reinjectToolInstructions(req, []ir.FunctionSchema{weatherTool()}, ctx)
	require.Len(t, out.Messages, 3)
	assert.Equal(t, ir.RoleUser, out.Messages[1].Role)
}

package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/internal/ir"
)

func TestToIRMapsRequestFieldsNameForName(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "hi"}],
		"max_tokens": 256,
		"top_p": 0.9,
		"stream_options": {"include_usage": true},
		"tool_choice": {"type": "function", "function": {"name": "search"}}
	}`)

	req, err := Converter{}.ToIR(body)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", req.Model)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 256, *req.MaxTokens)
	require.NotNil(t, req.TopP)
	assert.InDelta(t, 0.9, *req.TopP, 0.0001)
	require.NotNil(t, req.StreamOptions)
	assert.True(t, req.StreamOptions.IncludeUsage)
	require.NotNil(t, req.ToolChoice)
	assert.Equal(t, ir.ToolChoiceFunction, req.ToolChoice.Mode)
	assert.Equal(t, "search", req.ToolChoice.FunctionName)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hi", req.Messages[0].Content.PlainText())
}

func TestFromIRRoundTripsToolChoiceAndStop(t *testing.T) {
	req := ir.Request{
		Model:    "gpt-4o",
		Messages: []ir.Message{{Role: ir.RoleUser, Content: ir.NewTextContent("hello")}},
		Stop:     []string{"\n"},
		ToolChoice: &ir.ToolChoice{
			Mode:         ir.ToolChoiceFunction,
			FunctionName: "search",
		},
	}

	body, err := Converter{}.FromIR(req)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"function"`)
	assert.Contains(t, string(body), `"name":"search"`)
	assert.Contains(t, string(body), `"stop":["\n"]`)
}

func TestResponseToIRRecoversXMLToolCallFromContent(t *testing.T) {
	body := []byte(`{
		"id": "resp_1",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "<search><query>weather in paris</query></search>"},
			"finish_reason": "stop"
		}]
	}`)

	resp, err := Converter{}.ResponseToIR(body, map[string]bool{"search": true})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	choice := resp.Choices[0]
	require.Len(t, choice.Message.ToolCalls, 1)
	tc := choice.Message.ToolCalls[0]
	assert.Equal(t, "search", tc.Function.Name)
	assert.Equal(t, "weather in paris", tc.Function.ArgumentsObject["query"])
	assert.NotEmpty(t, tc.ID)
	assert.Equal(t, ir.FinishToolCalls, choice.FinishReason)
	assert.True(t, choice.Message.Content.IsEmpty())
}

func TestResponseToIRLeavesPlainContentAlone(t *testing.T) {
	body := []byte(`{
		"id": "resp_2",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "just chatting, no tools here"},
			"finish_reason": "stop"
		}]
	}`)

	resp, err := Converter{}.ResponseToIR(body, map[string]bool{"search": true})
	require.NoError(t, err)
	choice := resp.Choices[0]
	assert.Empty(t, choice.Message.ToolCalls)
	assert.Equal(t, "just chatting, no tools here", choice.Message.Content.PlainText())
	assert.Equal(t, ir.FinishStop, choice.FinishReason)
}

func TestResponseFromIREncodesToolCallsAsJSONString(t *testing.T) {
	resp := ir.Response{
		ID:    "resp_3",
		Model: "gpt-4o",
		Choices: []ir.Choice{{
			Index: 0,
			Message: ir.Message{
				Role: ir.RoleAssistant,
				ToolCalls: []ir.ToolCall{{
					ID:   "call_1",
					Type: "function",
					Function: ir.FunctionCall{
						Name:            "search",
						ArgumentsObject: map[string]any{"query": "paris"},
						HasObject:       true,
					},
				}},
			},
			FinishReason: ir.FinishToolCalls,
		}},
	}

	body, err := Converter{}.ResponseFromIR(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"name":"search"`)
	assert.Contains(t, string(body), `"arguments":"{`)
	assert.Contains(t, string(body), `"finish_reason":"tool_calls"`)
}

func TestChunkRoundTripsDeltaContent(t *testing.T) {
	body := []byte(`{
		"id": "chunk_1",
		"model": "gpt-4o",
		"choices": [{"index": 0, "delta": {"content": "hel"}, "finish_reason": null}]
	}`)
	chunk, err := Converter{}.ChunkToIR(body, nil)
	require.NoError(t, err)
	require.Len(t, chunk.Choices, 1)
	assert.True(t, chunk.Choices[0].Delta.HasContent)
	assert.Equal(t, "hel", chunk.Choices[0].Delta.Content)

	out, err := Converter{}.ChunkFromIR(*chunk)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"content":"hel"`)
}

func TestCheckCompatibilityDoesNotFlagNForOpenAI(t *testing.T) {
	n := 3
	report := Converter{}.CheckCompatibility(ir.Request{N: &n})
	assert.NotContains(t, report.UnsupportedFeatures, "n")
}

func TestCheckCompatibilitySupportsStructuredOutputs(t *testing.T) {
	report := Converter{}.CheckCompatibility(ir.Request{
		ResponseFormat: &ir.ResponseFormat{Type: ir.ResponseFormatJSONSchema},
	})
	assert.Empty(t, report.UnsupportedFeatures)
	assert.True(t, report.Compatible)
}

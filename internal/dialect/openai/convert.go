package openai

import (
	"encoding/json"
	"fmt"

	"github.com/toolbridge/toolbridge/internal/capability"
	"github.com/toolbridge/toolbridge/internal/dialect"
	"github.com/toolbridge/toolbridge/internal/ir"
	"github.com/toolbridge/toolbridge/internal/xmltool"
)

// Converter implements dialect.Converter for the OpenAI wire dialect.
type Converter struct{}

func New() Converter { return Converter{} }

func (Converter) ProviderTag() string { return "openai" }

func contentToIR(c *Content) ir.MessageContent {
	if c == nil {
		return ir.MessageContent{}
	}
	if !c.IsParts {
		return ir.NewTextContent(c.Text)
	}
	parts := make([]ir.ContentPart, 0, len(c.Parts))
	for _, p := range c.Parts {
		part := ir.ContentPart{Type: ir.ContentPartType(p.Type), Text: p.Text}
		if p.ImageURL != nil {
			part.ImageURL = p.ImageURL.URL
			part.ImageDetail = p.ImageURL.Detail
		}
		parts = append(parts, part)
	}
	return ir.NewPartsContent(parts)
}

func contentFromIR(c ir.MessageContent) *Content {
	if !c.IsParts {
		return &Content{Text: c.Text}
	}
	parts := make([]ContentPart, 0, len(c.Parts))
	for _, p := range c.Parts {
		cp := ContentPart{Type: string(p.Type), Text: p.Text}
		if p.Type == ir.ContentPartImageURL {
			cp.ImageURL = &ImageURL{URL: p.ImageURL, Detail: p.ImageDetail}
		}
		parts = append(parts, cp)
	}
	return &Content{Parts: parts, IsParts: true}
}

func toolCallToIR(tc ToolCall) ir.ToolCall {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}
	typ := tc.Type
	if typ == "" {
		typ = "function"
	}
	return ir.ToolCall{
		ID:   tc.ID,
		Type: typ,
		Function: ir.FunctionCall{
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		},
		Index: idx,
	}
}

func toolCallFromIR(tc ir.ToolCall) ToolCall {
	args := tc.Function.RawArguments
	if args == "" && tc.Function.HasObject {
		if b, err := json.Marshal(tc.Function.ArgumentsObject); err == nil {
			args = string(b)
		}
	}
	typ := tc.Type
	if typ == "" {
		typ = "function"
	}
	return ToolCall{
		ID:   tc.ID,
		Type: typ,
		Function: FunctionCall{
			Name:      tc.Function.Name,
			Arguments: args,
		},
	}
}

func messageToIR(m Message) ir.Message {
	out := ir.Message{
		Role:       ir.Role(m.Role),
		Content:    contentToIR(m.Content),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
		Refusal:    m.Refusal,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toolCallToIR(tc))
	}
	return out
}

func messageFromIR(m ir.Message) Message {
	out := Message{
		Role:       string(m.Role),
		Content:    contentFromIR(m.Content),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
		Refusal:    m.Refusal,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toolCallFromIR(tc))
	}
	return out
}

func toolChoiceToIR(tc *ToolChoice) *ir.ToolChoice {
	if tc == nil {
		return nil
	}
	return &ir.ToolChoice{Mode: ir.ToolChoiceMode(tc.Mode), FunctionName: tc.FunctionName}
}

func toolChoiceFromIR(tc *ir.ToolChoice) *ToolChoice {
	if tc == nil {
		return nil
	}
	return &ToolChoice{Mode: string(tc.Mode), FunctionName: tc.FunctionName}
}

func responseFormatToIR(rf *ResponseFormat) *ir.ResponseFormat {
	if rf == nil {
		return nil
	}
	out := &ir.ResponseFormat{Type: ir.ResponseFormatType(rf.Type)}
	if rf.JSONSchema != nil {
		out.Name = rf.JSONSchema.Name
		out.Schema = rf.JSONSchema.Schema
		out.Strict = rf.JSONSchema.Strict
	}
	return out
}

func responseFormatFromIR(rf *ir.ResponseFormat) *ResponseFormat {
	if rf == nil {
		return nil
	}
	out := &ResponseFormat{Type: string(rf.Type)}
	if rf.Type == ir.ResponseFormatJSONSchema {
		out.JSONSchema = &JSONSchemaSpec{Name: rf.Name, Schema: rf.Schema, Strict: rf.Strict}
	}
	return out
}

// ToIR decodes an OpenAI wire request into the IR.
func (c Converter) ToIR(body []byte) (ir.Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, fmt.Errorf("openai: decode request: %w", err)
	}

	out := ir.Request{
		Provider:          c.ProviderTag(),
		Model:             req.Model,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		FrequencyPenalty:  req.FrequencyPenalty,
		PresencePenalty:   req.PresencePenalty,
		Seed:              req.Seed,
		Stop:              req.Stop,
		ToolChoice:        toolChoiceToIR(req.ToolChoice),
		ParallelToolCalls: req.ParallelToolCalls,
		ResponseFormat:    responseFormatToIR(req.ResponseFormat),
		Stream:            req.Stream,
		LogitBias:         req.LogitBias,
		Logprobs:          req.Logprobs,
		TopLogprobs:       req.TopLogprobs,
		N:                 req.N,
		User:              req.User,
	}
	if req.StreamOptions != nil {
		out.StreamOptions = &ir.StreamOptions{IncludeUsage: req.StreamOptions.IncludeUsage}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, messageToIR(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ir.FunctionSchema{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return out, nil
}

// FromIR encodes an IR request as an OpenAI wire request.
func (c Converter) FromIR(request ir.Request) ([]byte, error) {
	req := Request{
		Model:             request.Model,
		MaxTokens:         request.MaxTokens,
		Temperature:       request.Temperature,
		TopP:              request.TopP,
		FrequencyPenalty:  request.FrequencyPenalty,
		PresencePenalty:   request.PresencePenalty,
		Seed:              request.Seed,
		Stop:              request.Stop,
		ToolChoice:        toolChoiceFromIR(request.ToolChoice),
		ParallelToolCalls: request.ParallelToolCalls,
		ResponseFormat:    responseFormatFromIR(request.ResponseFormat),
		Stream:            request.Stream,
		LogitBias:         request.LogitBias,
		Logprobs:          request.Logprobs,
		TopLogprobs:       request.TopLogprobs,
		N:                 request.N,
		User:              request.User,
	}
	if request.StreamOptions != nil {
		req.StreamOptions = &StreamOptions{IncludeUsage: request.StreamOptions.IncludeUsage}
	}
	for _, m := range request.Messages {
		req.Messages = append(req.Messages, messageFromIR(m))
	}
	for _, t := range request.Tools {
		req.Tools = append(req.Tools, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return json.Marshal(req)
}

func usageToIR(u *Usage) *ir.Usage {
	if u == nil {
		return nil
	}
	out := &ir.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	if u.PromptTokensDetails != nil {
		ct := u.PromptTokensDetails.CachedTokens
		out.Details.CachedTokens = &ct
	}
	if u.CompletionTokensDetails != nil {
		rt := u.CompletionTokensDetails.ReasoningTokens
		out.Details.ReasoningTokens = &rt
	}
	return out
}

func usageFromIR(u *ir.Usage) *Usage {
	if u == nil {
		return nil
	}
	out := &Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	if u.Details.CachedTokens != nil {
		out.PromptTokensDetails = &CachedTokenDetails{CachedTokens: *u.Details.CachedTokens}
	}
	if u.Details.ReasoningTokens != nil {
		out.CompletionTokensDetails = &ReasoningTokenDetails{ReasoningTokens: *u.Details.ReasoningTokens}
	}
	return out
}

// recoverToolCall scans a message's plain text for an XML tool
// invocation and, if found, rewrites the message into its tool_calls
// form, per §4.D's "XML tool-call recovery on response".
func recoverToolCall(msg *ir.Message, finish *ir.FinishReason, knownToolNames map[string]bool, nextCallID func() string) {
	if len(msg.ToolCalls) > 0 || len(knownToolNames) == 0 {
		return
	}
	text := msg.Content.PlainText()
	if text == "" {
		return
	}
	tc, ok := xmltool.Extract(text, knownToolNames)
	if !ok {
		return
	}
	msg.Content = ir.MessageContent{}
	msg.ToolCalls = []ir.ToolCall{{
		ID:   nextCallID(),
		Type: "function",
		Function: ir.FunctionCall{
			Name:            tc.Name,
			ArgumentsObject: tc.Arguments,
			HasObject:       true,
		},
	}}
	if finish != nil {
		*finish = ir.FinishToolCalls
	}
}

// ResponseToIR decodes a non-streaming OpenAI response into the IR,
// recovering any XML-encoded tool call from free text first.
func (c Converter) ResponseToIR(body []byte, knownToolNames map[string]bool) (ir.Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return ir.Response{}, fmt.Errorf("openai: decode response: %w", err)
	}
	out := ir.Response{ID: resp.ID, Created: resp.Created, Model: resp.Model, Usage: usageToIR(resp.Usage)}
	counter := 0
	nextID := func() string {
		counter++
		return fmt.Sprintf("call_%s_%d", resp.ID, counter)
	}
	for _, ch := range resp.Choices {
		msg := messageToIR(ch.Message)
		finish := finishReasonToIR(ch.FinishReason)
		recoverToolCall(&msg, &finish, knownToolNames, nextID)
		out.Choices = append(out.Choices, ir.Choice{Index: ch.Index, Message: msg, FinishReason: finish})
	}
	return out, nil
}

// ResponseFromIR encodes an IR response as an OpenAI wire response.
func (c Converter) ResponseFromIR(response ir.Response) ([]byte, error) {
	out := Response{
		ID:      response.ID,
		Object:  "chat.completion",
		Created: response.Created,
		Model:   response.Model,
		Usage:   usageFromIR(response.Usage),
	}
	for _, ch := range response.Choices {
		fr := finishReasonFromIR(ch.FinishReason)
		out.Choices = append(out.Choices, Choice{Index: ch.Index, Message: messageFromIR(ch.Message), FinishReason: fr})
	}
	return json.Marshal(out)
}

func finishReasonToIR(fr *string) ir.FinishReason {
	if fr == nil {
		return ir.FinishNone
	}
	return ir.FinishReason(*fr)
}

func finishReasonFromIR(fr ir.FinishReason) *string {
	if fr == ir.FinishNone {
		return nil
	}
	s := string(fr)
	return &s
}

// ChunkToIR decodes one SSE payload's JSON body into an IR stream
// chunk. knownToolNames is accepted for contract symmetry with
// ResponseToIR; chunk-level XML recovery happens in the stream
// processor, which has the accumulated text a single chunk lacks.
func (c Converter) ChunkToIR(body []byte, knownToolNames map[string]bool) (*ir.StreamChunk, error) {
	var chunk StreamChunk
	if err := json.Unmarshal(body, &chunk); err != nil {
		return nil, fmt.Errorf("openai: decode chunk: %w", err)
	}
	out := &ir.StreamChunk{ID: chunk.ID, Created: chunk.Created, Model: chunk.Model, Usage: usageToIR(chunk.Usage)}
	for _, ch := range chunk.Choices {
		delta := ir.Delta{Refusal: ch.Delta.Refusal}
		if ch.Delta.Role != "" {
			delta.Role = ir.Role(ch.Delta.Role)
			delta.HasRole = true
		}
		if ch.Delta.Content != nil {
			delta.Content = *ch.Delta.Content
			delta.HasContent = true
		}
		for _, tc := range ch.Delta.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, toolCallToIR(tc))
		}
		out.Choices = append(out.Choices, ir.ChunkChoice{Index: ch.Index, Delta: delta, FinishReason: finishReasonToIR(ch.FinishReason)})
	}
	return out, nil
}

// ChunkFromIR encodes an IR stream chunk as an OpenAI SSE payload body.
func (c Converter) ChunkFromIR(chunk ir.StreamChunk) ([]byte, error) {
	out := StreamChunk{
		ID:      chunk.ID,
		Object:  "chat.completion.chunk",
		Created: chunk.Created,
		Model:   chunk.Model,
		Usage:   usageFromIR(chunk.Usage),
	}
	for _, ch := range chunk.Choices {
		delta := Delta{Refusal: ch.Delta.Refusal}
		if ch.Delta.HasRole {
			delta.Role = string(ch.Delta.Role)
		}
		if ch.Delta.HasContent {
			content := ch.Delta.Content
			delta.Content = &content
		}
		for _, tc := range ch.Delta.ToolCalls {
			wireTC := toolCallFromIR(tc)
			idx := tc.Index
			wireTC.Index = &idx
			delta.ToolCalls = append(delta.ToolCalls, wireTC)
		}
		out.Choices = append(out.Choices, ChunkChoice{Index: ch.Index, Delta: delta, FinishReason: finishReasonFromIR(ch.FinishReason)})
	}
	return json.Marshal(out)
}

// CheckCompatibility reports which IR request features this dialect
// can't carry natively.
func (c Converter) CheckCompatibility(request ir.Request) dialect.CompatibilityReport {
	report := dialect.CompatibilityReport{Compatible: true}
	table, _ := capability.Get(c.ProviderTag())

	if request.N != nil && *request.N > 1 && !table.N {
		report.UnsupportedFeatures = append(report.UnsupportedFeatures, "n")
	}
	if request.ResponseFormat != nil && request.ResponseFormat.Type == ir.ResponseFormatJSONSchema && !table.JSONSchemaResponseFormat {
		report.UnsupportedFeatures = append(report.UnsupportedFeatures, "structured_outputs")
	}
	if len(report.UnsupportedFeatures) > 0 {
		report.Warnings = append(report.Warnings, "one or more requested features are unsupported by openai and will be transformed")
		report.Compatible = false
	}
	return report
}

var _ dialect.Converter = Converter{}

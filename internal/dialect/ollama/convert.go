package ollama

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolbridge/toolbridge/internal/capability"
	"github.com/toolbridge/toolbridge/internal/dialect"
	"github.com/toolbridge/toolbridge/internal/ir"
	"github.com/toolbridge/toolbridge/internal/xmltool"
)

// Converter implements dialect.Converter for the Ollama wire dialect.
// A single converter handles both `/api/chat` and `/api/generate`
// shapes: ToIR/ResponseToIR detect which one a body carries by field
// presence, and FromIR/ResponseFromIR always emit the chat (messages)
// form, which is the superset representation.
type Converter struct{}

func New() Converter { return Converter{} }

func (Converter) ProviderTag() string { return "ollama" }

func hasField(body []byte, field string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	_, ok := probe[field]
	return ok
}

func messageToIR(m Message) ir.Message {
	out := ir.Message{
		Role:    ir.Role(m.Role),
		Content: ir.NewTextContent(m.Content),
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ir.ToolCall{
			Type: "function",
			Function: ir.FunctionCall{
				Name:            tc.Function.Name,
				ArgumentsObject: tc.Function.Arguments,
				HasObject:       true,
			},
		})
	}
	return out
}

func messageFromIR(m ir.Message) Message {
	out := Message{
		Role:    string(m.Role),
		Content: m.Content.PlainText(),
	}
	for _, tc := range m.ToolCalls {
		args := tc.Function.ArgumentsObject
		if !tc.Function.HasObject && tc.Function.RawArguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.RawArguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{Function: ToolCallFunction{Name: tc.Function.Name, Arguments: args}})
	}
	return out
}

func optionsToIR(o *Options, req *ir.Request) {
	if o == nil {
		return
	}
	req.Temperature = o.Temperature
	req.TopP = o.TopP
	req.TopK = o.TopK
	req.Seed = o.Seed
	req.Stop = o.Stop
	if o.NumPredict != nil {
		req.MaxTokens = o.NumPredict
	}
}

func optionsFromIR(req ir.Request) *Options {
	if req.Temperature == nil && req.TopP == nil && req.TopK == nil && req.Seed == nil &&
		len(req.Stop) == 0 && req.MaxTokens == nil {
		return nil
	}
	return &Options{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Seed:        req.Seed,
		Stop:        req.Stop,
		NumPredict:  req.MaxTokens,
	}
}

func formatToIR(format any) *ir.ResponseFormat {
	switch v := format.(type) {
	case nil:
		return nil
	case string:
		if v == "json" {
			return &ir.ResponseFormat{Type: ir.ResponseFormatJSONObject}
		}
		return nil
	case map[string]any:
		return &ir.ResponseFormat{Type: ir.ResponseFormatJSONSchema, Schema: v}
	default:
		return nil
	}
}

func formatFromIR(rf *ir.ResponseFormat) any {
	if rf == nil {
		return nil
	}
	switch rf.Type {
	case ir.ResponseFormatJSONObject:
		return "json"
	case ir.ResponseFormatJSONSchema:
		return rf.Schema
	default:
		return nil
	}
}

// ToIR decodes either an Ollama chat or generate request into the IR,
// detected by field presence (`messages` vs `prompt`), per §4.D.
func (c Converter) ToIR(body []byte) (ir.Request, error) {
	if hasField(body, "prompt") && !hasField(body, "messages") {
		var req GenerateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return ir.Request{}, fmt.Errorf("ollama: decode generate request: %w", err)
		}
		out := ir.Request{
			Provider: c.ProviderTag(),
			Model:    req.Model,
			Stream:   req.Stream,
			Messages: []ir.Message{{Role: ir.RoleUser, Content: ir.NewTextContent(req.Prompt)}},
		}
		optionsToIR(req.Options, &out)
		out.ResponseFormat = formatToIR(req.Format)
		return out, nil
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, fmt.Errorf("ollama: decode chat request: %w", err)
	}
	out := ir.Request{
		Provider: c.ProviderTag(),
		Model:    req.Model,
		Stream:   req.Stream,
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
	optionsToIR(req.Options, &out)
	out.ResponseFormat = formatToIR(req.Format)
	return out, nil
}

// FromIR always encodes as the `/api/chat` messages form, the superset
// representation of the two Ollama request shapes.
func (c Converter) FromIR(request ir.Request) ([]byte, error) {
	req := ChatRequest{
		Model:   request.Model,
		Stream:  request.Stream,
		Options: optionsFromIR(request),
		Format:  formatFromIR(request.ResponseFormat),
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

func createdAtToUnix(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

func unixToCreatedAt(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func doneReasonToFinish(reason string, done bool) ir.FinishReason {
	switch reason {
	case "stop", "":
		if done {
			return ir.FinishStop
		}
		return ir.FinishNone
	case "length":
		return ir.FinishLength
	case "tool_calls":
		if done {
			return ir.FinishToolCalls
		}
		return ir.FinishNone
	default:
		if done {
			return ir.FinishStop
		}
		return ir.FinishNone
	}
}

func finishToDoneReason(fr ir.FinishReason) string {
	switch fr {
	case ir.FinishLength:
		return "length"
	case ir.FinishToolCalls:
		return "tool_calls"
	default:
		return "stop"
	}
}

func usageFromCounts(promptEval, eval int) *ir.Usage {
	if promptEval == 0 && eval == 0 {
		return nil
	}
	return &ir.Usage{PromptTokens: promptEval, CompletionTokens: eval, TotalTokens: promptEval + eval}
}

// recoverToolCall mirrors the openai converter's XML recovery step: it
// only fires when the model didn't already emit native tool_calls.
func recoverToolCall(msg *ir.Message, finish *ir.FinishReason, knownToolNames map[string]bool, callID string) {
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
		ID:   callID,
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

// ResponseToIR decodes a non-streaming Ollama chat or generate response
// record into the IR, recovering any XML-encoded tool call first.
func (c Converter) ResponseToIR(body []byte, knownToolNames map[string]bool) (ir.Response, error) {
	if hasField(body, "response") && !hasField(body, "message") {
		var resp GenerateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return ir.Response{}, fmt.Errorf("ollama: decode generate response: %w", err)
		}
		msg := ir.Message{Role: ir.RoleAssistant, Content: ir.NewTextContent(resp.Response)}
		finish := doneReasonToFinish(resp.DoneReason, resp.Done)
		recoverToolCall(&msg, &finish, knownToolNames, "call_"+resp.Model+"_0")
		return ir.Response{
			Created: createdAtToUnix(resp.CreatedAt),
			Model:   resp.Model,
			Choices: []ir.Choice{{Index: 0, Message: msg, FinishReason: finish}},
			Usage:   usageFromCounts(resp.PromptEvalCount, resp.EvalCount),
		}, nil
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ir.Response{}, fmt.Errorf("ollama: decode chat response: %w", err)
	}
	msg := messageToIR(resp.Message)
	finish := doneReasonToFinish(resp.DoneReason, resp.Done)
	recoverToolCall(&msg, &finish, knownToolNames, "call_"+resp.Model+"_0")
	return ir.Response{
		Created: createdAtToUnix(resp.CreatedAt),
		Model:   resp.Model,
		Choices: []ir.Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   usageFromCounts(resp.PromptEvalCount, resp.EvalCount),
	}, nil
}

// ResponseFromIR always encodes as a chat response record.
func (c Converter) ResponseFromIR(response ir.Response) ([]byte, error) {
	var choice ir.Choice
	if len(response.Choices) > 0 {
		choice = response.Choices[0]
	}
	resp := ChatResponse{
		Model:      response.Model,
		CreatedAt:  unixToCreatedAt(response.Created),
		Message:    messageFromIR(choice.Message),
		Done:       true,
		DoneReason: finishToDoneReason(choice.FinishReason),
	}
	if response.Usage != nil {
		resp.PromptEvalCount = response.Usage.PromptTokens
		resp.EvalCount = response.Usage.CompletionTokens
	}
	return json.Marshal(resp)
}

// ChunkToIR decodes one line-delimited JSON record into an IR stream
// chunk. A record with no content and done:true carries only usage.
func (c Converter) ChunkToIR(body []byte, knownToolNames map[string]bool) (*ir.StreamChunk, error) {
	isGenerate := hasField(body, "response") && !hasField(body, "message")

	var (
		model, createdAt, doneReason string
		done                         bool
		promptEval, eval             int
		msg                          ir.Message
	)

	if isGenerate {
		var resp GenerateResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("ollama: decode generate chunk: %w", err)
		}
		model, createdAt, done, doneReason = resp.Model, resp.CreatedAt, resp.Done, resp.DoneReason
		promptEval, eval = resp.PromptEvalCount, resp.EvalCount
		msg = ir.Message{Role: ir.RoleAssistant, Content: ir.NewTextContent(resp.Response)}
	} else {
		var resp ChatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("ollama: decode chat chunk: %w", err)
		}
		model, createdAt, done, doneReason = resp.Model, resp.CreatedAt, resp.Done, resp.DoneReason
		promptEval, eval = resp.PromptEvalCount, resp.EvalCount
		msg = messageToIR(resp.Message)
	}

	finish := doneReasonToFinish(doneReason, done)
	delta := ir.Delta{Role: msg.Role, HasRole: msg.Role != "", Content: msg.Content.PlainText(), HasContent: true}
	if len(msg.ToolCalls) > 0 {
		delta.ToolCalls = msg.ToolCalls
	}

	chunk := &ir.StreamChunk{
		Model:   model,
		Created: createdAtToUnix(createdAt),
		Choices: []ir.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
	if done {
		chunk.Usage = usageFromCounts(promptEval, eval)
	}
	return chunk, nil
}

// ChunkFromIR encodes an IR stream chunk as one Ollama chat record line
// (without the trailing newline; the stream processor owns framing).
func (c Converter) ChunkFromIR(chunk ir.StreamChunk) ([]byte, error) {
	var choice ir.ChunkChoice
	if len(chunk.Choices) > 0 {
		choice = chunk.Choices[0]
	}
	done := choice.FinishReason != ir.FinishNone || chunk.Usage != nil
	resp := ChatResponse{
		Model:     chunk.Model,
		CreatedAt: unixToCreatedAt(chunk.Created),
		Message: Message{
			Role:    string(choice.Delta.Role),
			Content: choice.Delta.Content,
		},
		Done: done,
	}
	if done {
		resp.DoneReason = finishToDoneReason(choice.FinishReason)
	}
	for _, tc := range choice.Delta.ToolCalls {
		args := tc.Function.ArgumentsObject
		if !tc.Function.HasObject && tc.Function.RawArguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.RawArguments), &args)
		}
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, ToolCall{Function: ToolCallFunction{Name: tc.Function.Name, Arguments: args}})
	}
	if chunk.Usage != nil {
		resp.PromptEvalCount = chunk.Usage.PromptTokens
		resp.EvalCount = chunk.Usage.CompletionTokens
	}
	return json.Marshal(resp)
}

// CheckCompatibility reports which IR request features Ollama can't
// carry natively.
func (c Converter) CheckCompatibility(request ir.Request) dialect.CompatibilityReport {
	report := dialect.CompatibilityReport{Compatible: true}
	table, _ := capability.Get(c.ProviderTag())

	if request.Logprobs && !table.Logprobs {
		report.UnsupportedFeatures = append(report.UnsupportedFeatures, "logprobs")
	}
	if request.N != nil && *request.N > 1 && !table.N {
		report.UnsupportedFeatures = append(report.UnsupportedFeatures, "n")
	}
	if request.ResponseFormat != nil && request.ResponseFormat.Type == ir.ResponseFormatJSONSchema && !table.JSONSchemaResponseFormat {
		report.UnsupportedFeatures = append(report.UnsupportedFeatures, "structured_outputs")
		report.Transformations = append(report.Transformations, "response_format downgraded to best-effort options.format")
	}
	if len(report.UnsupportedFeatures) > 0 {
		report.Warnings = append(report.Warnings, "one or more requested features are unsupported by ollama and will be dropped or downgraded")
		report.Compatible = false
	}
	return report
}

var _ dialect.Converter = Converter{}

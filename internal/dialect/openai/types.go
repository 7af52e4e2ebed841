// Package openai implements the OpenAI-style dialect converter: JSON
// chat completions over HTTP, SSE streams terminated by a literal
// `[DONE]` marker. See §4.D.
package openai

import (
	"encoding/json"
	"fmt"
)

// Content is OpenAI's string|array-of-parts union for a message body.
type Content struct {
	Text    string
	Parts   []ContentPart
	IsParts bool
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.IsParts = false
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		c.Parts = parts
		c.IsParts = true
		return nil
	}
	return fmt.Errorf("openai: content is neither a string nor a part array")
}

// FunctionCall is the name+arguments payload inside a ToolCall. OpenAI
// always carries Arguments as a JSON-encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one function invocation, requested or answered.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Message is one chat turn.
type Message struct {
	Role       string     `json:"role"`
	Content    *Content   `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Refusal    string     `json:"refusal,omitempty"`
}

// FunctionDef is a tool's JSON-schema-ish definition.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool wraps a function definition in OpenAI's {"type":"function",...}
// envelope.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// ToolChoice is the auto|none|required|{function:name} union.
type ToolChoice struct {
	Mode         string // "auto", "none", "required", or "function"
	FunctionName string
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Mode == "function" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.FunctionName},
		})
	}
	return json.Marshal(t.Mode)
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Mode = s
		return nil
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("openai: invalid tool_choice: %w", err)
	}
	t.Mode = "function"
	t.FunctionName = obj.Function.Name
	return nil
}

// ResponseFormat constrains generated content shape.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *JSONSchemaSpec `json:"json_schema,omitempty"`
}

type JSONSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict bool           `json:"strict,omitempty"`
}

// StreamOptions controls streaming-specific behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Request is the OpenAI chat-completions wire request.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	Stop             []string `json:"stop,omitempty"`

	Tools             []Tool      `json:"tools,omitempty"`
	ToolChoice        *ToolChoice `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool       `json:"parallel_tool_calls,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	LogitBias   map[string]float64 `json:"logit_bias,omitempty"`
	Logprobs    bool               `json:"logprobs,omitempty"`
	TopLogprobs *int               `json:"top_logprobs,omitempty"`
	N           *int               `json:"n,omitempty"`
	User        string             `json:"user,omitempty"`
}

// UsageDetails carries secondary token accounting.
type UsageDetails struct {
	PromptTokensDetails     *CachedTokenDetails    `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *ReasoningTokenDetails `json:"completion_tokens_details,omitempty"`
}

type CachedTokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type ReasoningTokenDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// Usage is token accounting for a response.
type Usage struct {
	PromptTokens            int                    `json:"prompt_tokens"`
	CompletionTokens        int                    `json:"completion_tokens"`
	TotalTokens              int                    `json:"total_tokens"`
	PromptTokensDetails      *CachedTokenDetails    `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails  *ReasoningTokenDetails `json:"completion_tokens_details,omitempty"`
}

// Choice is one non-streaming response alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

// Response is the non-streaming chat-completions wire response.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Delta is the partial-message payload of a streaming choice.
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   *string    `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Refusal   string     `json:"refusal,omitempty"`
}

// ChunkChoice is one choice within a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// StreamChunk is one SSE frame's JSON payload.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

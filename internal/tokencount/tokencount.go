// Package tokencount estimates token counts for the tool-instruction
// reinjection heuristic and for synthesizing usage fields when a
// backend response omits them.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/toolbridge/toolbridge/internal/ir"
)

// encodingName is the encoding tiktoken-go ships tables for that best
// approximates the models this proxy fronts; exact token counts vary
// per actual backend model, so this is an estimate, not an oracle.
const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(encodingName)
	})
	return enc, encErr
}

// Count estimates the number of tokens text would occupy in a model
// prompt. It returns 0 (rather than an error) when the encoding table
// fails to load, matching this estimator's "best effort, never fatal"
// role: a miscounted reinjection threshold degrades gracefully, it
// never blocks the request.
func Count(text string) int {
	if text == "" {
		return 0
	}
	tke, err := encoding()
	if err != nil {
		return 0
	}
	return len(tke.Encode(text, nil, nil))
}

// CountMessages sums the estimated token count of every message's
// plain-text content, the unit the reinjection heuristic compares
// against toolReinjectionTokenCount.
func CountMessages(messages []ir.Message) int {
	total := 0
	for _, m := range messages {
		total += Count(m.Content.PlainText())
	}
	return total
}

// SynthesizeUsage builds an ir.Usage from estimated prompt/completion
// token counts, for backends that omit usage entirely.
func SynthesizeUsage(promptText, completionText string) *ir.Usage {
	prompt := Count(promptText)
	completion := Count(completionText)
	return &ir.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

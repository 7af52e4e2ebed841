// Package capability holds the per-provider feature table and the
// request filter that drops fields a target dialect can't carry,
// logging each drop to the caller-supplied transformation log.
package capability

import (
	"fmt"

	"github.com/toolbridge/toolbridge/internal/ir"
)

// Table is one provider's supported-feature flags, per §4.B.
type Table struct {
	JSONSchemaResponseFormat bool
	StreamUsageChunk         bool
	Logprobs                 bool
	TopLogprobs              bool
	Seed                     bool
	N                        bool
	FrequencyPenalty         bool
	PresencePenalty          bool
	UserField                bool
}

var byProvider = map[string]Table{
	"openai": {
		JSONSchemaResponseFormat: true,
		StreamUsageChunk:         true,
		Logprobs:                 true,
		TopLogprobs:              true,
		Seed:                     true,
		N:                        true,
		FrequencyPenalty:         true,
		PresencePenalty:          true,
		UserField:                true,
	},
	"ollama": {
		// Ollama's /api/chat and /api/generate have no slots for most of
		// these; seed travels under options{} and the final done:true
		// record carries usage counts, so those two stay supported.
		JSONSchemaResponseFormat: false,
		StreamUsageChunk:         true,
		Logprobs:                 false,
		TopLogprobs:              false,
		Seed:                     true,
		N:                        false,
		FrequencyPenalty:         false,
		PresencePenalty:          false,
		UserField:                false,
	},
}

// Get returns the capability table for a provider tag and whether one
// is registered.
func Get(providerTag string) (Table, bool) {
	t, ok := byProvider[providerTag]
	return t, ok
}

// Filter returns a shallow copy of request with fields the target
// provider doesn't support dropped, and the list of drop/warning
// entries for the transformation log. An unregistered provider tag
// passes the request through unchanged with a single warning entry.
func Filter(request ir.Request, providerTag string) (ir.Request, []string) {
	table, ok := byProvider[providerTag]
	if !ok {
		return request, []string{fmt.Sprintf("capability_filter: unknown provider tag %q, passing request through unfiltered", providerTag)}
	}

	out := request.Clone()
	var log []string
	drop := func(field string) {
		log = append(log, fmt.Sprintf("capability_filter: dropped %s (unsupported by %s)", field, providerTag))
	}

	if !table.Logprobs && out.Logprobs {
		out.Logprobs = false
		drop("logprobs")
	}
	if !table.TopLogprobs && out.TopLogprobs != nil {
		out.TopLogprobs = nil
		drop("top_logprobs")
	}
	if !table.Seed && out.Seed != nil {
		out.Seed = nil
		drop("seed")
	}
	if !table.N && out.N != nil {
		out.N = nil
		drop("n")
	}
	if !table.FrequencyPenalty && out.FrequencyPenalty != nil {
		out.FrequencyPenalty = nil
		drop("frequency_penalty")
	}
	if !table.PresencePenalty && out.PresencePenalty != nil {
		out.PresencePenalty = nil
		drop("presence_penalty")
	}
	if !table.UserField && out.User != "" {
		out.User = ""
		drop("user")
	}
	if !table.StreamUsageChunk && out.StreamOptions != nil && out.StreamOptions.IncludeUsage {
		includeUsage := *out.StreamOptions
		includeUsage.IncludeUsage = false
		out.StreamOptions = &includeUsage
		drop("stream_options.include_usage")
	}
	if !table.JSONSchemaResponseFormat && out.ResponseFormat != nil && out.ResponseFormat.Type == ir.ResponseFormatJSONSchema {
		out.ResponseFormat = nil
		drop("response_format(json_schema)")
	}

	return out, log
}

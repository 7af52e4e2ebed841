// Package dialect defines the shared converter contract that each
// wire dialect (openai, ollama) implements against the provider-neutral
// IR, per §4.D.
package dialect

import "github.com/toolbridge/toolbridge/internal/ir"

// CompatibilityReport is a converter's opinion on whether an IR request
// can be carried by its dialect without loss, per §4.D.
type CompatibilityReport struct {
	Compatible          bool
	Warnings            []string
	UnsupportedFeatures  []string
	Transformations      []string
}

// Converter is the four-operation contract every dialect implements:
// request and response conversion to/from IR, one-chunk stream
// conversion, and a compatibility check the engine's transform stage
// consults. Request/response/chunk bodies cross this boundary as raw
// JSON so the engine's registry can hold converters uniformly without
// a type switch per dialect.
type Converter interface {
	ProviderTag() string

	ToIR(body []byte) (ir.Request, error)
	FromIR(request ir.Request) ([]byte, error)

	ResponseToIR(body []byte, knownToolNames map[string]bool) (ir.Response, error)
	ResponseFromIR(response ir.Response) ([]byte, error)

	ChunkToIR(body []byte, knownToolNames map[string]bool) (*ir.StreamChunk, error)
	ChunkFromIR(chunk ir.StreamChunk) ([]byte, error)

	CheckCompatibility(request ir.Request) CompatibilityReport
}

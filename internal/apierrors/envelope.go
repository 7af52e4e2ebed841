package apierrors

import "encoding/json"

// OpenAIEnvelope builds the `{error:{message,type,code}}` body §7
// requires for an OpenAI-dialect failure response.
func OpenAIEnvelope(err *Error) []byte {
	body, marshalErr := json.Marshal(map[string]any{
		"error": map[string]string{
			"message": err.Message,
			"type":    OpenAIType(err.Kind),
			"code":    string(err.Kind),
		},
	})
	if marshalErr != nil {
		return []byte(`{"error":{"message":"internal error","type":"api_error","code":"internal"}}`)
	}
	return body
}

// OllamaEnvelope builds the `{error,done:true}` body §7 requires for an
// Ollama-dialect failure response.
func OllamaEnvelope(err *Error) []byte {
	body, marshalErr := json.Marshal(map[string]any{
		"error": err.Message,
		"done":  true,
	})
	if marshalErr != nil {
		return []byte(`{"error":"internal error","done":true}`)
	}
	return body
}

// Envelope dispatches to the dialect-appropriate envelope builder by
// provider tag.
func Envelope(providerTag string, err *Error) []byte {
	if providerTag == "ollama" {
		return OllamaEnvelope(err)
	}
	return OpenAIEnvelope(err)
}

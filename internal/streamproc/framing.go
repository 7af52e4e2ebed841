package streamproc

import (
	"bytes"
	"encoding/json"
)

// SSEDone is the literal SSE stream terminator frame.
const SSEDone = "data: [DONE]\n\n"

// FormatSSEFrame wraps a JSON payload in the `data: <json>\n\n` frame.
func FormatSSEFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}

// FormatSSEError builds an OpenAI-shaped SSE error frame.
func FormatSSEError(message, code string) []byte {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{"message": message, "code": code},
	})
	return FormatSSEFrame(body)
}

// splitSSEFrames extracts every complete `...\n\n`-terminated frame
// from buf, returning the frames' inner text (without the trailing
// `\n\n`) and the unconsumed remainder.
func splitSSEFrames(buf []byte) (frames [][]byte, rest []byte) {
	for {
		idx := bytes.Index(buf, []byte("\n\n"))
		if idx < 0 {
			return frames, buf
		}
		frames = append(frames, buf[:idx])
		buf = buf[idx+2:]
	}
}

// ssePayload strips the `data: ` prefix from one frame's text,
// reporting false if the frame carries no such prefix (e.g. a comment
// or event-type line, which this proxy never emits but may see from a
// lenient backend).
func ssePayload(frame []byte) ([]byte, bool) {
	frame = bytes.TrimSpace(frame)
	const prefix = "data: "
	if !bytes.HasPrefix(frame, []byte(prefix)) {
		if bytes.HasPrefix(frame, []byte("data:")) {
			return bytes.TrimSpace(frame[len("data:"):]), true
		}
		return nil, false
	}
	return frame[len(prefix):], true
}

// FormatLineJSON wraps a JSON payload in the newline-terminated
// line-JSON frame.
func FormatLineJSON(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	out = append(out, '\n')
	return out
}

// FormatLineJSONError builds an Ollama-shaped line-JSON error frame.
func FormatLineJSONError(message, code string) []byte {
	body, _ := json.Marshal(map[string]any{"error": message, "code": code, "done": true})
	return FormatLineJSON(body)
}

// splitLines extracts every complete `\n`-terminated line from buf,
// returning the lines (without their trailing `\n`) and the
// unconsumed remainder.
func splitLines(buf []byte) (lines [][]byte, rest []byte) {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return lines, buf
		}
		line := bytes.TrimSpace(buf[:idx])
		if len(line) > 0 {
			lines = append(lines, line)
		}
		buf = buf[idx+1:]
	}
}

package resolver

import (
	"bytes"
	"encoding/json"
)

// ReplyKind tags which payload shape a reply was extracted from.
type ReplyKind int

const (
	// ReplyText: the reply (or its response field) was a plain JSON string.
	ReplyText ReplyKind = iota
	// ReplyField: the reply was an object carrying one of the known text fields.
	ReplyField
	// ReplyOpaque: no known shape matched, Text holds the serialized payload.
	ReplyOpaque
	// ReplyPlain: the body was not JSON at all, Text holds it trimmed.
	ReplyPlain
)

// replyFields is the probe order for object payloads.
var replyFields = []string{"text", "message", "content", "answer"}

// Reply is the normalized chat endpoint payload.
type Reply struct {
	Kind  ReplyKind
	Field string
	Text  string
}

// ParseReply normalizes a chat endpoint body. A body without content, or a falsy
// one such as false or 0, yields ErrEmptyResponse.
func ParseReply(body []byte) (Reply, error) {
	body = bytes.TrimSpace(body)
	if isEmptyJSON(body) || isFalsy(body) {
		return Reply{}, ErrEmptyResponse
	}
	if !json.Valid(body) {
		return Reply{Kind: ReplyPlain, Text: string(body)}, nil
	}

	candidate := body
	if fields, ok := decodeObject(body); ok {
		if response, found := fields["response"]; found && !isEmptyJSON(response) && !isFalsy(response) {
			candidate = bytes.TrimSpace(response)
		}
	}

	if text, ok := decodeString(candidate); ok {
		return Reply{Kind: ReplyText, Text: text}, nil
	}

	if fields, ok := decodeObject(candidate); ok {
		for _, name := range replyFields {
			value, found := fields[name]
			if !found || isEmptyJSON(value) {
				continue
			}
			if text, ok := decodeString(value); ok {
				return Reply{Kind: ReplyField, Field: name, Text: text}, nil
			}
			return Reply{Kind: ReplyField, Field: name, Text: compact(value)}, nil
		}
	}

	return Reply{Kind: ReplyOpaque, Text: compact(candidate)}, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func decodeString(raw []byte) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}

// isEmptyJSON reports absent, null or empty-string values.
func isEmptyJSON(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`))
}

func isFalsy(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return bytes.Equal(raw, []byte("false")) || bytes.Equal(raw, []byte("0"))
}

// compact keeps key order as sent by the server.
func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

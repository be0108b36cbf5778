package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyShapes(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		kind  ReplyKind
		field string
		text  string
	}{
		{name: "response string", body: `{"response":"Y"}`, kind: ReplyText, text: "Y"},
		{name: "response object message", body: `{"response":{"message":"X"}}`, kind: ReplyField, field: "message", text: "X"},
		{name: "response object unknown", body: `{"response":{"other":1}}`, kind: ReplyOpaque, text: `{"other":1}`},
		{name: "top level message", body: `{"message":"hi","session_id":"s1"}`, kind: ReplyField, field: "message", text: "hi"},
		{name: "field precedence", body: `{"answer":"d","content":"c","message":"b","text":"a"}`, kind: ReplyField, field: "text", text: "a"},
		{name: "null field skipped", body: `{"text":null,"content":"c"}`, kind: ReplyField, field: "content", text: "c"},
		{name: "empty field skipped", body: `{"text":"","answer":"d"}`, kind: ReplyField, field: "answer", text: "d"},
		{name: "non string field", body: `{"content":{"a":1}}`, kind: ReplyField, field: "content", text: `{"a":1}`},
		{name: "empty response falls back", body: `{"response":"","message":"m"}`, kind: ReplyField, field: "message", text: "m"},
		{name: "plain string payload", body: `"just text"`, kind: ReplyText, text: "just text"},
		{name: "opaque keeps key order", body: `{ "z": 1, "a": [1, 2] }`, kind: ReplyOpaque, text: `{"z":1,"a":[1,2]}`},
		{name: "number payload", body: `42`, kind: ReplyOpaque, text: "42"},
		{name: "plain text body", body: "  Hello from plain text server\n", kind: ReplyPlain, text: "Hello from plain text server"},
		{name: "html body", body: "<html>oops</html>", kind: ReplyPlain, text: "<html>oops</html>"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply, err := ParseReply([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, reply.Kind)
			assert.Equal(t, tc.field, reply.Field)
			assert.Equal(t, tc.text, reply.Text)
		})
	}
}

func TestParseReplyEmpty(t *testing.T) {
	for _, body := range []string{"", "   ", "null", `""`, "false", " 0 "} {
		_, err := ParseReply([]byte(body))
		assert.ErrorIs(t, err, ErrEmptyResponse, "body=%q", body)
	}
}

func TestParseReplyFalsyResponseFieldIgnored(t *testing.T) {
	reply, err := ParseReply([]byte(`{"response":false,"text":"t"}`))
	require.NoError(t, err)
	assert.Equal(t, ReplyField, reply.Kind)
	assert.Equal(t, "t", reply.Text)
}

package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type titleReply struct {
	Title string `json:"title"`
	Image string `json:"image"`
}

func TestParseReplyDirect(t *testing.T) {
	got, err := parseReply[titleReply](`{"title": "Anvils | Acme", "image": "https://acme.test/og.png"}`)
	require.NoError(t, err)
	assert.Equal(t, "Anvils | Acme", got.Title)
	assert.Equal(t, "https://acme.test/og.png", got.Image)
}

func TestParseReplyRepairs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json fence", "```json\n" + `{"title": "Anvils"}` + "\n```"},
		{"bare fence", "```\n" + `{"title": "Anvils"}` + "\n```"},
		{"fence without newlines", "```json" + `{"title": "Anvils"}` + "```"},
		{"single backticks", "`" + `{"title": "Anvils"}` + "`"},
		{"trailing comma", `{"title": "Anvils",}`},
		{"unquoted keys", `{title: "Anvils", image: ""}`},
		{"comments", "{\n\"title\": \"Anvils\", // chosen\n\"image\": /* none */ \"\"\n}"},
		{"surrounding prose", `Here is the copy: {"title": "Anvils"} Let me know if you need more.`},
		{"prose after fence", "Sure!\n```json\n{\"title\": \"Anvils\",}\n```\nThat title is 6 characters."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReply[titleReply](tt.input)
			require.NoError(t, err)
			assert.Equal(t, "Anvils", got.Title)
		})
	}
}

func TestParseReplyKeepsURLsInStrings(t *testing.T) {
	// The comment stripper must not eat "//" inside string literals
	got, err := parseReply[titleReply]("{\"title\": \"Anvils\", // note\n\"image\": \"https://acme.test/a.png\",}")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test/a.png", got.Image)
}

func TestParseReplyArray(t *testing.T) {
	got, err := parseReply[[]int]("Results: [1, 2, 3] end")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestParseReplyFailures(t *testing.T) {
	_, err := parseReply[titleReply]("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reply")

	_, err = parseReply[titleReply]("I could not come up with a title.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parseable JSON")

	_, err = parseReply[titleReply](strings.Repeat("x", maxReplySize+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object in text", `Some text {"key": "value"} more text`, `{"key": "value"}`},
		{"nested", `Text {"outer": {"inner": [1, 2]}} end`, `{"outer": {"inner": [1, 2]}}`},
		{"brace in string", `{"title": "Use {braces} wisely"} trailing }`, `{"title": "Use {braces} wisely"}`},
		{"escaped quote", `{"q": "say \"hi\" }"}`, `{"q": "say \"hi\" }"}`},
		{"array first", `[{"id": 1}, {"id": 2}]`, `[{"id": 1}, {"id": 2}]`},
		{"two objects", `{"a": 1} and {"b": 2}`, `{"a": 1}`},
		{"unbalanced", `{"a": 1`, ""},
		{"no JSON", "Just plain text", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBalanced(tt.in))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma in object", `{"a": 1,}`, `{"a": 1}`},
		{"trailing comma in array", `[1, 2, ]`, `[1, 2 ]`},
		{"bare keys", `{a: 1, b_2: "x"}`, `{"a": 1, "b_2": "x"}`},
		{"literals untouched", `[true, false, null]`, `[true, false, null]`},
		{"block comment", `{"a": /* one */ 1}`, `{"a":  1}`},
		{"apostrophe in string", `{"a": "it's, fine: yes",}`, `{"a": "it's, fine: yes"}`},
		{"comma before comment then brace", "{\"a\": 1, // last\n}", "{\"a\": 1 \n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.in))
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"test": true}`, stripFences("```json\n{\"test\": true}\n```"))
	assert.Equal(t, `{"test": true}`, stripFences("```javascript\n{\"test\": true}\n```"))
	assert.Equal(t, `{"test": true}`, stripFences("`{\"test\": true}`"))
	assert.Equal(t, `{"test": true}`, stripFences(`{"test": true}`))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}

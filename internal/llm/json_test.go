package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Sure! Here it is:\n{\"title\": \"X\"}\nThanks", `{"title": "X"}`, true},
		{"markdown fence", "```json\n[1, 2, {\"b\": [3]}]\n```", `[1, 2, {"b": [3]}]`, true},
		{"braces in strings", `{"a": "}{]["}`, `{"a": "}{]["}`, true},
		{"escaped quote", `{"a": "say \"hi\" }"}`, `{"a": "say \"hi\" }"}`, true},
		{"first wins", `{"a":1} {"b":2}`, `{"a":1}`, true},
		{"unbalanced", `{"a": [1, 2}`, "", false},
		{"none", "no json here", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_ErrorCarriesSnippet(t *testing.T) {
	content := strings.Repeat("x", 500)
	_, err := ParseJSON(content)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Len(t, perr.Snippet, 200)

	_, err = ParseJSON(`{"a": tru}`)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, `{"a": tru}`, perr.Snippet)
}

func TestParseJSON_SkipsBalancedNonJSON(t *testing.T) {
	data, err := ParseJSON(`Scores [1-10]: {"a":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	data, err = ParseJSON("Rate it [high] then answer [\"x\", \"y\"]")
	require.NoError(t, err)
	assert.JSONEq(t, `["x", "y"]`, string(data))

	_, err = ParseJSON("only [1-10] here")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

type scriptedChat struct {
	Base
	reply    string
	err      error
	messages []Message
	opts     Options
}

func (s *scriptedChat) IsAvailable(context.Context) bool { return true }

func (s *scriptedChat) GenerateChat(_ context.Context, messages []Message, opts Options) (*Result, error) {
	s.messages, s.opts = messages, opts
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Content: s.reply, Provider: s.Name()}, nil
}

func (s *scriptedChat) GenerateStream(context.Context, string, Options) (<-chan StreamChunk, error) {
	return nil, ErrUnsupported
}

func TestGenerateJSON(t *testing.T) {
	p := &scriptedChat{
		Base:  Base{Desc: Descriptor{Name: "fake", Kind: KindLLM, DefaultModel: "m"}},
		reply: "Here you go: {\"items\": [1, 2]}",
	}

	data, res, err := GenerateJSON(context.Background(), p, "List items", Options{SystemPrompt: "be terse"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": [1, 2]}`, string(data))
	assert.Equal(t, "fake", res.Provider)

	require.Len(t, p.messages, 2)
	assert.Equal(t, RoleSystem, p.messages[0].Role)
	assert.True(t, strings.HasPrefix(p.messages[1].Content, "List items"))
	assert.Contains(t, p.messages[1].Content, "JSON only")
	assert.Equal(t, FormatJSON, p.opts.ResponseFormat)
}

func TestGenerateJSON_ParseErrorKeepsResult(t *testing.T) {
	p := &scriptedChat{Base: Base{Desc: Descriptor{Name: "fake"}}, reply: "I cannot do that"}

	data, res, err := GenerateJSON(context.Background(), p, "x", Options{})
	assert.Nil(t, data)
	require.NotNil(t, res)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "I cannot do that", perr.Snippet)
}

func TestGenerateJSON_ProviderErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	p := &scriptedChat{Base: Base{Desc: Descriptor{Name: "fake"}}, err: boom}

	_, _, err := GenerateJSON(context.Background(), p, "x", Options{})
	assert.ErrorIs(t, err, boom)
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "b"},
		{Role: RoleAssistant, Content: "hello"},
	}, "base")

	assert.Equal(t, "base\n\na\n\nb", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}, rest)
}

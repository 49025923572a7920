package llm

import (
	"context"
	"encoding/json"
	"errors"
)

const jsonInstruction = "\n\nRespond with valid JSON only. Do not include explanations, comments or markdown formatting."

var errNoJSON = errors.New("no JSON object or array found")

// GenerateText sends prompt as a single user message.
func GenerateText(ctx context.Context, p ChatProvider, prompt string, opts Options) (*Result, error) {
	messages, opts := TextRequest(prompt, opts)
	return p.GenerateChat(ctx, messages, opts)
}

// TextRequest moves the system prompt of opts into the conversation.
func TextRequest(prompt string, opts Options) ([]Message, Options) {
	messages := BuildMessages(opts.SystemPrompt, prompt)
	opts.SystemPrompt = ""
	return messages, opts
}

// GenerateJSON asks for a JSON-only answer and leniently extracts the first
// balanced object or array from it. Callers must validate the shape of data.
func GenerateJSON(ctx context.Context, p ChatProvider, prompt string, opts Options) (json.RawMessage, *Result, error) {
	messages, opts := JSONRequest(prompt, opts)
	res, err := p.GenerateChat(ctx, messages, opts)
	if err != nil {
		return nil, nil, err
	}
	data, err := ParseJSON(res.Content)
	if err != nil {
		return nil, res, err
	}
	return data, res, nil
}

// JSONRequest builds the conversation and options of a JSON-only generation.
func JSONRequest(prompt string, opts Options) ([]Message, Options) {
	opts.ResponseFormat = FormatJSON
	return TextRequest(prompt+jsonInstruction, opts)
}

// ParseJSON returns the first balanced JSON document of content that
// decodes. Candidates that are balanced but not JSON, such as "[1-10]" in
// prose, are skipped.
func ParseJSON(content string) (json.RawMessage, error) {
	var first error
	for i := 0; i < len(content); i++ {
		if content[i] != '{' && content[i] != '[' {
			continue
		}
		raw, ok := balancedFrom(content, i)
		if !ok {
			continue
		}
		var probe interface{}
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		return json.RawMessage(raw), nil
	}
	if first == nil {
		first = errNoJSON
	}
	return nil, newParseError(content, first)
}

// ExtractJSON returns the first balanced {...} or [...] substring of s.
// Brackets inside JSON strings are ignored.
func ExtractJSON(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			return balancedFrom(s, i)
		}
	}
	return "", false
}

// balancedFrom returns the balanced document opening at s[start].
func balancedFrom(s string, start int) (string, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (open == '{' && c != '}') || (open == '[' && c != ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// BuildMessages creates a conversation from an optional system prompt and one user turn.
func BuildMessages(system, user string) []Message {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	return append(msgs, Message{Role: RoleUser, Content: user})
}

// SplitSystem separates system turns (joined) from the rest of the conversation.
func SplitSystem(messages []Message, fallback string) (string, []Message) {
	system := fallback
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

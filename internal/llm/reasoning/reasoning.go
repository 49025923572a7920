// Package reasoning separates <think> blocks emitted by reasoning models
// (deepseek-r1, qwq) from the answer text.
package reasoning

import "strings"

const (
	ThinkStart = "<think>"
	ThinkEnd   = "</think>"
)

// Strip returns text without its <think> blocks, trimmed. Generated content
// must never carry the model's scratchpad into a published document.
func Strip(text string) string {
	content, _ := Split(text)
	return strings.TrimSpace(content)
}

// Split separates thinking from the rest of text. Multiple blocks are
// concatenated; an unclosed block consumes the remainder.
func Split(text string) (content string, thinking string) {
	var c, r strings.Builder
	rest := text
	for {
		start := strings.Index(rest, ThinkStart)
		if start == -1 {
			c.WriteString(rest)
			break
		}
		c.WriteString(rest[:start])
		rest = rest[start+len(ThinkStart):]

		end := strings.Index(rest, ThinkEnd)
		if end == -1 {
			r.WriteString(rest)
			break
		}
		r.WriteString(rest[:end])
		rest = rest[end+len(ThinkEnd):]
	}
	return c.String(), r.String()
}

// StreamFilter drops thinking from a stream of deltas. Tags split across
// deltas are held back until they can be decided.
type StreamFilter struct {
	inBlock bool
	pending string
}

// Write consumes one delta and returns the visible text it releases.
func (f *StreamFilter) Write(delta string) string {
	text := f.pending + delta
	f.pending = ""

	var out strings.Builder
	for text != "" {
		tag := ThinkStart
		if f.inBlock {
			tag = ThinkEnd
		}

		if idx := strings.Index(text, tag); idx != -1 {
			if !f.inBlock {
				out.WriteString(text[:idx])
			}
			text = text[idx+len(tag):]
			f.inBlock = !f.inBlock
			continue
		}

		keep := partialSuffix(text, tag)
		if !f.inBlock {
			out.WriteString(text[:len(text)-keep])
		}
		f.pending = text[len(text)-keep:]
		break
	}
	return out.String()
}

// Flush releases text held back at the end of the stream.
func (f *StreamFilter) Flush() string {
	p := f.pending
	f.pending = ""
	if f.inBlock {
		return ""
	}
	return p
}

// partialSuffix returns the length of the longest suffix of text that is a
// proper prefix of tag.
func partialSuffix(text, tag string) int {
	n := len(tag) - 1
	if len(text) < n {
		n = len(text)
	}
	for i := n; i > 0; i-- {
		if strings.HasPrefix(tag, text[len(text)-i:]) {
			return i
		}
	}
	return 0
}

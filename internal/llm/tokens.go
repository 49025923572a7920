package llm

import (
	"math"
	"unicode"
)

const (
	charsPerToken      = 4.0
	denseCharsPerToken = 2.5
)

// EstimateTokens approximates the token count of text. Scripts other than
// Latin (Cyrillic, Greek, CJK...) tokenize more densely. Only used for
// pre-flight estimates, never for billing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes := 0
	dense := false
	for _, r := range text {
		runes++
		if !dense && unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			dense = true
		}
	}
	ratio := charsPerToken
	if dense {
		ratio = denseCharsPerToken
	}
	return int(math.Ceil(float64(runes) / ratio))
}

// EstimateMessagesTokens sums EstimateTokens over a conversation.
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

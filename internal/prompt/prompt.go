// Package prompt assembles the system prompt handed to the model provider
// and the token arithmetic used to budget it.
package prompt

import "strings"

// TruncationMarker replaces the tail of an over-budget schema text.
const TruncationMarker = "-- schema truncated to fit the model context window"

// EstimateTokens approximates the token count of text as ceil(len/4).
// Crude, but stable across providers and cheap enough to run on every
// message during budget assembly.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateSchema cuts schema text down to a token budget. The cut backs up
// to the last line break inside the budget so no table line is emitted half
// finished; without any line break the cut degenerates to the start of the
// text and only the marker survives. Returns the text and whether it was
// truncated.
func TruncateSchema(text string, maxTokens int) (string, bool) {
	if maxTokens < 0 {
		maxTokens = 0
	}
	budget := maxTokens * 4
	if len(text) <= budget {
		return text, false
	}
	cut := strings.LastIndexByte(text[:budget], '\n')
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + "\n" + TruncationMarker, true
}

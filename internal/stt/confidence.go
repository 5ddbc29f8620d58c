package stt

import (
	"strings"
	"unicode"
)

// Confidence estimates transcript reliability from surface features. It is a
// heuristic, not a calibrated probability, and is deterministic so results
// can be asserted in tests: base 0.5, plus 0.1 at each of the 10/30/50
// character thresholds, plus 0.05 for a leading capital, plus 0.05 for
// terminal punctuation, minus 0.1 below 5 characters, clamped to [0, 1].
func Confidence(text string) float64 {
	score := 0.5
	runes := []rune(text)
	n := len(runes)

	if n > 10 {
		score += 0.1
	}
	if n > 30 {
		score += 0.1
	}
	if n > 50 {
		score += 0.1
	}
	if n > 0 && unicode.IsUpper(runes[0]) {
		score += 0.05
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?") {
		score += 0.05
	}
	if n < 5 {
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

package retrieval

import (
	"math"
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates a BPE token count without a tokenizer: the
// larger of chars/4 and words*1.3, rounded up.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byChars := math.Ceil(float64(utf8.RuneCountInString(text)) / 4)
	byWords := math.Ceil(float64(len(strings.Fields(text))) * 1.3)
	return int(math.Max(byChars, byWords))
}

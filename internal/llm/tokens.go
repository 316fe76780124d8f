package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens returns the number of tokens in text under the cl100k_base
// encoding used by current chat models. When the encoding cannot be loaded
// (offline environments) it falls back to a words*4/3 approximation, which
// is close enough for the output summaries this feeds.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	words := len(strings.Fields(text))
	return words * 4 / 3
}

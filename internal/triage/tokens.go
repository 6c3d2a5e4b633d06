package triage

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var gpt4Codec = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.ForModel(tokenizer.GPT4)
})

// countTokens counts text with the GPT-4 encoding, falling back to four bytes
// per token if the codec is unavailable.
func countTokens(text string) int {
	codec, err := gpt4Codec()
	if err != nil {
		return len(text) / 4
	}
	n, err := codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Package tokens estimates token counts for streamed completions, where the
// provider reports no usage block.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Estimator counts tokens with the model's tiktoken encoding. Encodings are
// cached per model because loading one is comparatively expensive.
type Estimator struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewEstimator creates a new token estimator
func NewEstimator() *Estimator {
	return &Estimator{
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// Count returns the token count of text under the given model's encoding.
// When no encoding is known for the model it falls back to cl100k_base, and
// as a last resort to a rune-based approximation.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}

	enc := e.encoding(model)
	if enc == nil {
		// Roughly four characters per token for English text.
		return (utf8.RuneCountInString(text) + 3) / 4
	}

	return len(enc.Encode(text, nil, nil))
}

func (e *Estimator) encoding(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil
		}
	}

	e.encodings[model] = enc
	return enc
}

// Package tokencount provides token counting for LLM prompt budgeting.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken library. Counts are used
// to keep evaluation transcripts inside the model context window; when an
// encoding is unavailable a character-based estimate is returned instead.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is a package-wide counter usable without wiring.
var DefaultCounter = NewCounter()

func (c *Counter) encodingFor(model string) *tiktoken.Tiktoken {
	key := normalizeModelName(model)

	c.mu.RLock()
	enc, ok := c.encodingCache[key]
	c.mu.RUnlock()
	if ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(key)
	if err != nil {
		// Local llama-style model names are unknown to tiktoken; cl100k_base
		// is a close enough approximation for budgeting.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}

	c.mu.Lock()
	c.encodingCache[key] = enc
	c.mu.Unlock()
	return enc
}

// Count returns the number of tokens text occupies for the given model.
// Falls back to a rough chars/4 estimate if no encoding can be loaded.
func (c *Counter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

func normalizeModelName(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return "gpt-3.5-turbo"
	}
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	return m
}

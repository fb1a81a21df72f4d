// Package chunker splits text into word-bounded chunks and computes
// deterministic content fingerprints.
package chunker

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultMaxWords is the default number of words per chunk.
const DefaultMaxWords = 380

// DefaultMaxWordLength is the length at which a single word is considered
// garbage (minified blobs, base64 payloads) and dropped.
const DefaultMaxWordLength = 600

// Chunker splits text into bounded word-count chunks.
type Chunker struct {
	maxWords      int
	maxWordLength int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxWords sets the maximum words per chunk.
func WithMaxWords(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxWords = n
		}
	}
}

// WithMaxWordLength sets the length at which single words are dropped.
func WithMaxWordLength(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxWordLength = n
		}
	}
}

// New creates a new chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxWords:      DefaultMaxWords,
		maxWordLength: DefaultMaxWordLength,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Chunk splits text into word-bounded chunks. Blank input yields a single
// empty chunk so every entity produces at least one document. Output is
// deterministic for identical input.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}

	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder
	wordCount := 0

	for _, word := range words {
		if len(word) >= c.maxWordLength {
			continue
		}
		if wordCount >= c.maxWords {
			chunks = append(chunks, current.String())
			current.Reset()
			wordCount = 0
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
		wordCount++
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// Fingerprint computes a deterministic content hash over text.
// Empty text hashes to the empty string.
func Fingerprint(text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}

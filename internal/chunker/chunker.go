package chunker

import (
	"strings"

	"github.com/google/uuid"
)

const (
	defaultMaxSize = 1000
	defaultOverlap = 200
)

// separators ordered coarsest to finest. The empty string is the final
// character-window fallback level.
var separators = []string{
	"\n\n\n", // section breaks
	"\n\n",   // paragraph breaks
	"\n",     // line breaks
	". ",     // sentence endings
	", ",     // clause separators
	" ",      // word boundaries
	"",       // character level
}

// Chunk is a bounded contiguous slice of a document page, the unit of
// retrieval. Embedding is populated once the chunk has been embedded.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	PageNumber int
	Metadata   map[string]any
	Embedding  []float32
}

// Chunker splits page text into bounded, overlapping chunks using a hybrid
// recursive strategy: split on the coarsest separator that applies, greedily
// pack parts up to the size bound, and recurse into oversized parts with the
// next finer separator. Sizes and the overlap are measured in characters
// (runes, not bytes).
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a Chunker. Non-positive maxSize or negative overlap fall back
// to the defaults (1000 / 200).
func New(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// MaxSize returns the configured chunk size bound.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the configured overlap width.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits one page of text into chunks. Chunk indexes are 0-based and
// relative to the page; callers assembling a whole document renumber them.
// Empty or whitespace-only pages yield no chunks.
func (c *Chunker) Chunk(text string, pageNumber int, documentID string) []Chunk {
	parts := c.split(text, 0)

	var chunks []Chunk
	index := 0
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}

		withOverlap := part
		hasOverlap := i > 0 && c.overlap > 0
		if hasOverlap {
			withOverlap = tail(parts[i-1], c.overlap) + " " + part
		}
		final := strings.TrimSpace(withOverlap)
		if final == "" {
			continue
		}

		chunks = append(chunks, Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Index:      index,
			Text:       final,
			PageNumber: pageNumber,
			Metadata: map[string]any{
				"chunk_size":  length(final),
				"has_overlap": hasOverlap,
			},
		})
		index++
	}
	return chunks
}

// split recursively divides text using separators[level:]. Every returned
// piece fits within maxSize except pieces produced by the character-window
// fallback, which are exactly maxSize (save the last).
func (c *Chunker) split(text string, level int) []string {
	if length(text) <= c.maxSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	if level >= len(separators) || separators[level] == "" {
		return windows(text, c.maxSize)
	}

	sep := separators[level]
	parts := strings.Split(text, sep)

	var result []string
	var current string
	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + sep + part
		}

		if length(candidate) <= c.maxSize {
			current = candidate
			continue
		}

		if current != "" {
			result = append(result, current)
		}
		if length(part) > c.maxSize {
			result = append(result, c.split(part, level+1)...)
			current = ""
		} else {
			current = part
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}

// windows slices text into fixed-size character windows.
func windows(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// tail returns the last n characters of s, or all of s when shorter.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func length(s string) int {
	return len([]rune(s))
}

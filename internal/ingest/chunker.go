// Package ingest turns raw documents into indexed, embedded chunks.
package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput indicates the chunker was given parameters or text it
// cannot split.
var ErrInvalidInput = errors.New("invalid chunker input")

// Split cuts text into overlapping windows of at most size runes. Consecutive
// chunks share exactly overlap runes, except the final chunk which may be
// shorter. The split is deterministic: the same text and parameters always
// produce the same sequence, and concatenating the chunks minus each
// overlapping prefix reconstructs the trimmed text.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidInput, overlap, size)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}

	runes := []rune(trimmed)
	stride := size - overlap

	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultChunkSize fits a few clinical sentences per retrievable unit.
	DefaultChunkSize = 500
	// TranscriptionChunkSize is larger because call transcriptions run long.
	TranscriptionChunkSize = 800
	// DefaultOverlapRatio is the fraction of the chunk size carried from the
	// tail of one chunk into the head of the next.
	DefaultOverlapRatio = 0.2
)

// Chunk splits text into overlapping segments at sentence boundaries.
//
// Lengths are measured in runes, not bytes, so Hebrew text packs the same
// number of characters per chunk as English. The function is pure and
// deterministic; it never returns an empty chunk and never errors. Text that
// contains no sentence boundary at all comes back as a single chunk even if
// it exceeds chunkSize.
func Chunk(text string, chunkSize int, overlapRatio float64) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlapRatio < 0 {
		overlapRatio = 0
	}

	if utf8.RuneCountInString(trimmed) <= chunkSize {
		return []string{trimmed}
	}

	overlap := int(float64(chunkSize) * overlapRatio)

	sentences := SplitSentences(trimmed)
	if len(sentences) == 0 {
		return []string{trimmed}
	}

	var chunks []string
	current := ""
	idx := 0

	for idx < len(sentences) {
		sentence := sentences[idx]

		switch {
		case current == "":
			current = sentence
			idx++
		case utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence)+1 <= chunkSize:
			current += " " + sentence
			idx++
		default:
			chunks = append(chunks, current)

			// Walk backwards over the sentences that just closed this chunk
			// and carry as many as fit into the overlap budget. Stopping at
			// the first one that does not fit keeps the overlap contiguous.
			overlapText := ""
			for prev := idx - 1; prev >= 0; prev-- {
				candidate := sentences[prev]
				if utf8.RuneCountInString(candidate)+utf8.RuneCountInString(overlapText)+1 > overlap {
					break
				}
				if overlapText == "" {
					overlapText = candidate
				} else {
					overlapText = candidate + " " + overlapText
				}
			}

			if overlapText != "" {
				current = overlapText + " " + sentence
			} else {
				current = sentence
			}
			idx++
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// SplitSentences cuts text into sentence-like units at whitespace runs that
// directly follow '.', '!', '?' or a newline. Units are trimmed and empty
// ones dropped. Text without any such boundary comes back whole.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if !isTerminator(r) {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

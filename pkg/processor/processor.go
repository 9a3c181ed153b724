package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/shopmate/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int // target chunk length, in runes
	ChunkOverlap int // runes shared by consecutive chunks
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize - 1
	}

	return Processor{
		config: config,
	}
}

// Split cuts text into windows of ChunkSize runes, each starting
// ChunkSize-ChunkOverlap runes after the previous one. Every chunk except the
// last is exactly ChunkSize runes long, so adjacent chunks share exactly
// ChunkOverlap runes. Invalid UTF-8 is dropped before splitting and
// SourceOffset is a byte offset into that sanitized text.
func (p *Processor) Split(text string) []models.Chunk {
	text = sanitizeUTF8(text)
	if text == "" {
		return nil
	}

	// byte offset of every rune, plus a sentinel for the end of text
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	n := len(offsets)
	offsets = append(offsets, len(text))

	step := p.config.ChunkSize - p.config.ChunkOverlap

	var chunks []models.Chunk
	for start := 0; ; start += step {
		end := min(start+p.config.ChunkSize, n)
		chunks = append(chunks, models.Chunk{
			Text:         text[offsets[start]:offsets[end]],
			SourceOffset: offsets[start],
		})
		if end == n {
			break
		}
	}

	return chunks
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/pkg/processor"
)

func TestProcessor_Split(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 3})

	chunks := p.Split("abcdefghijklmnopqrstuvwxyz")

	require.Len(t, chunks, 4)
	assert.Equal(t, models.Chunk{Text: "abcdefghij", SourceOffset: 0}, chunks[0])
	assert.Equal(t, models.Chunk{Text: "hijklmnopq", SourceOffset: 7}, chunks[1])
	assert.Equal(t, models.Chunk{Text: "opqrstuvwx", SourceOffset: 14}, chunks[2])
	assert.Equal(t, models.Chunk{Text: "vwxyz", SourceOffset: 21}, chunks[3])
}

func TestProcessor_SplitOverlapProperty(t *testing.T) {
	corpus := strings.Repeat("The waterproof jacket ships in navy and olive. ", 40)

	configs := []processor.ProcessorConfig{
		{ChunkSize: 50, ChunkOverlap: 10},
		{ChunkSize: 100, ChunkOverlap: 0},
		{ChunkSize: 64, ChunkOverlap: 63},
		{ChunkSize: 1000, ChunkOverlap: 200},
		{ChunkSize: 7, ChunkOverlap: 2},
	}

	for _, cfg := range configs {
		p := processor.NewWithConfig(cfg)
		chunks := p.Split(corpus)
		require.NotEmpty(t, chunks)

		// covers the text from the first rune to the last
		assert.Equal(t, 0, chunks[0].SourceOffset)
		last := chunks[len(chunks)-1]
		assert.Equal(t, len(corpus), last.SourceOffset+len(last.Text))

		for i := 0; i < len(chunks)-1; i++ {
			cur, next := chunks[i], chunks[i+1]
			assert.Equal(t, cfg.ChunkSize, utf8.RuneCountInString(cur.Text))

			tail := []rune(cur.Text)[cfg.ChunkSize-cfg.ChunkOverlap:]
			head := []rune(next.Text)[:cfg.ChunkOverlap]
			assert.Equal(t, string(tail), string(head))
			assert.Equal(t, cur.Text, corpus[cur.SourceOffset:cur.SourceOffset+len(cur.Text)])
		}
		assert.LessOrEqual(t, utf8.RuneCountInString(last.Text), cfg.ChunkSize)
	}
}

func TestProcessor_SplitMultibyte(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})

	chunks := p.Split("héllo wörld")

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
	}
	assert.Equal(t, "héll", chunks[0].Text)
	assert.Equal(t, "lo w", chunks[1].Text)
	assert.Equal(t, len("hél"), chunks[1].SourceOffset)
}

func TestProcessor_SplitEdgeCases(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 2})

	assert.Empty(t, p.Split(""))

	short := p.Split("short")
	require.Len(t, short, 1)
	assert.Equal(t, "short", short[0].Text)

	exact := p.Split("0123456789")
	require.Len(t, exact, 1)

	invalid := p.Split("ab\xffcd")
	require.Len(t, invalid, 1)
	assert.Equal(t, "abcd", invalid[0].Text)
}

func TestProcessor_Deterministic(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 30, ChunkOverlap: 5})
	text := strings.Repeat("size M olive jacket; ", 20)

	assert.Equal(t, p.Split(text), p.Split(text))
}

func TestNewWithConfigClampsOverlap(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5, ChunkOverlap: 9})
	assert.Equal(t, []string{"abcde", "bcdef", "cdefg"}, texts(p.Split("abcdefg")))

	d := processor.NewWithConfig(processor.ProcessorConfig{})
	chunks := d.Split(strings.Repeat("x", 1500))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Text, 1000)
}

func texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

package chunker

import (
	"strings"
	"testing"

	"policyrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDoc = types.Document{
	SourceURL: "https://example.com/policy.pdf",
	LocalPath: "documents/abc123_policy.pdf",
	Title:     "Policy",
}

func page(num int, text string) types.Page {
	return types.Page{LocalPath: testDoc.LocalPath, Number: num, Text: text}
}

func TestSplitEmptyPage(t *testing.T) {
	c := New(1000, 200)
	assert.Empty(t, c.Split(testDoc, page(1, "")))
	assert.Empty(t, c.Split(testDoc, page(1, "   \n\n  ")))
}

func TestSplitShortPage(t *testing.T) {
	c := New(1000, 200)
	chunks := c.Split(testDoc, page(3, "A single short paragraph."))

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 3, chunks[0].PageNumber)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, "A single short paragraph.", chunks[0].Content)
}

func TestSplitLongPageScenario(t *testing.T) {
	// One page of 2500 characters built from 120-char sentences so the
	// separator search has sentence boundaries to cut on.
	sentence := strings.Repeat("a", 118) + ". "
	text := strings.Repeat(sentence, 21)[:2500]

	c := New(1000, 200)
	chunks := c.Split(testDoc, page(1, text))

	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 1, ch.PageNumber)
		assert.LessOrEqual(t, ch.CharEnd-ch.CharStart, 1000)
	}
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 2500, chunks[3].CharEnd)

	// Each chunk after the first starts CHUNK_OVERLAP characters before
	// the previous chunk's end.
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, 200, chunks[i-1].CharEnd-chunks[i].CharStart,
			"overlap between chunk %d and %d", i-1, i)
	}
}

func TestSplitCoverage(t *testing.T) {
	texts := []string{
		strings.Repeat("word word word. ", 400),
		strings.Repeat("line one\nline two\n\nparagraph\n", 150),
		strings.Repeat("x", 5000), // no separators at all, hard cuts
		"short",
	}

	for _, text := range texts {
		c := New(1000, 200)
		chunks := c.Split(testDoc, page(1, text))
		require.NotEmpty(t, chunks)

		// Removing the overlaps and concatenating must reconstruct the
		// page text exactly.
		var b strings.Builder
		prevEnd := 0
		for _, ch := range chunks {
			runes := []rune(ch.Content)
			b.WriteString(string(runes[prevEnd-ch.CharStart:]))
			prevEnd = ch.CharEnd
		}
		assert.Equal(t, text, b.String())
	}
}

func TestSplitSeparatorBehindPreviousCut(t *testing.T) {
	// The only sentence boundary sits just inside the overlap region and
	// is followed by a long separator-free run. The boundary already ended
	// the previous chunk, so the next cut must fall through to a hard cut
	// instead of re-emitting the covered range.
	text := strings.Repeat("a", 898) + ". " + strings.Repeat("x", 1500)

	c := New(1000, 200)
	chunks := c.Split(testDoc, page(1, text))

	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 900, chunks[0].CharEnd)
	assert.Equal(t, 700, chunks[1].CharStart)
	assert.Equal(t, 1700, chunks[1].CharEnd)
	assert.Equal(t, 1500, chunks[2].CharStart)
	assert.Equal(t, 2400, chunks[2].CharEnd)

	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].CharEnd, chunks[i-1].CharEnd,
			"chunk %d must add new content", i)
		assert.Equal(t, 200, chunks[i-1].CharEnd-chunks[i].CharStart,
			"overlap between chunk %d and %d", i-1, i)
	}
}

func TestSplitNoOverlapConfigured(t *testing.T) {
	text := strings.Repeat("word word word. ", 200)
	c := New(500, 0)
	chunks := c.Split(testDoc, page(1, text))
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].CharEnd, chunks[i].CharStart)
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 100)
	c := New(1000, 200)

	first := c.Split(testDoc, page(2, text))
	second := c.Split(testDoc, page(2, text))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID("documents/abc_policy.pdf", 1, 0)
	b := ChunkID("documents/abc_policy.pdf", 1, 0)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, ChunkID("documents/abc_policy.pdf", 1, 1))
	assert.NotEqual(t, a, ChunkID("documents/abc_policy.pdf", 2, 0))
	assert.NotEqual(t, a, ChunkID("documents/other.pdf", 1, 0))
}

func TestSplitUnicode(t *testing.T) {
	// Rune offsets, not byte offsets.
	text := strings.Repeat("perbankan Islam dan tatakelola syariah памятка 说明. ", 60)
	c := New(300, 50)
	chunks := c.Split(testDoc, page(1, text))
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	for _, ch := range chunks {
		assert.Equal(t, string(runes[ch.CharStart:ch.CharEnd]), ch.Content)
	}
}

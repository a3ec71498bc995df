package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"policyrag/types"

	"github.com/google/uuid"
)

// Namespace for deterministic chunk IDs. Never change this, stored chunk
// identity depends on it.
var chunkNamespace = uuid.MustParse("7b7e4b6f-3c55-49c2-9a8e-5d1a2f0c9d41")

// ChunkID derives the stable identity of a chunk from its position.
// Re-chunking an unchanged document yields the same IDs, which is what
// makes re-ingestion an idempotent upsert instead of a duplicate insert.
func ChunkID(localPath string, page, index int) uuid.UUID {
	key := fmt.Sprintf("%s|%d|%d", localPath, page, index)
	return uuid.NewSHA1(chunkNamespace, []byte(key))
}

// DefaultSeparators in priority order: paragraph break, line break,
// sentence terminator, whitespace.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits page text into overlapping chunks of at most size
// characters, preferring to cut on a separator instead of mid-sentence.
// Offsets are rune positions within the page text.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}
}

// Split chunks one page of a document. Empty page text yields zero
// chunks, a page shorter than the chunk size yields exactly one.
func (c *Chunker) Split(doc types.Document, page types.Page) []types.Chunk {
	if strings.TrimSpace(page.Text) == "" {
		return nil
	}
	text := []rune(page.Text)

	var chunks []types.Chunk
	start, prevEnd := 0, 0
	for index := 0; ; index++ {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, c.build(doc, page, index, start, len(text), text))
			break
		}

		cut := c.findCut(text, start, end, prevEnd)
		chunks = append(chunks, c.build(doc, page, index, start, cut, text))
		prevEnd = cut

		next := cut - c.overlap
		if next <= start {
			// Previous chunk is shorter than the overlap, stepping back
			// would emit it again in full.
			next = cut
		}
		start = next
	}
	return chunks
}

// findCut looks for the best cut point in [start, limit), trying each
// separator in priority order and keeping the separator with the
// preceding chunk. A candidate at or before the previous chunk's end
// would produce a chunk with no new content, so it is skipped in favor
// of the next separator. Falls back to a hard cut at limit.
func (c *Chunker) findCut(text []rune, start, limit, prevEnd int) int {
	window := string(text[start:limit])
	for _, sep := range c.separators {
		if i := strings.LastIndex(window, sep); i > 0 {
			cut := start + utf8.RuneCountInString(window[:i]) + utf8.RuneCountInString(sep)
			if cut > prevEnd {
				return cut
			}
		}
	}
	return limit
}

func (c *Chunker) build(doc types.Document, page types.Page, index, start, end int, text []rune) types.Chunk {
	return types.Chunk{
		ID:         ChunkID(doc.LocalPath, page.Number, index),
		SourceURL:  doc.SourceURL,
		LocalPath:  doc.LocalPath,
		Title:      doc.Title,
		PageNumber: page.Number,
		Index:      index,
		CharStart:  start,
		CharEnd:    end,
		Content:    string(text[start:end]),
	}
}

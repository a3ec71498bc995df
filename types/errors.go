package types

import "fmt"

// FetchError: network/WAF/download failure while acquiring a document.
type FetchError struct {
	URL string
	Err error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e FetchError) Unwrap() error { return e.Err }

// ExtractionError: corrupt or unreadable PDF. The document is skipped,
// the batch continues.
type ExtractionError struct {
	Path string
	Err  error
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e ExtractionError) Unwrap() error { return e.Err }

// EmptyIndexError: a query was made against an index with zero chunks.
// The answerer refuses to generate without grounding.
type EmptyIndexError struct{}

func (e EmptyIndexError) Error() string {
	return "vector index is empty, run ingestion first"
}

// AnswerGenerationError: the embedding or generation collaborator failed
// during a query. Sources holds whatever retrieval produced before the
// failure so the caller can still show provenance.
type AnswerGenerationError struct {
	Stage   string // "embed" or "generate"
	Sources []Source
	Err     error
}

func (e AnswerGenerationError) Error() string {
	return fmt.Sprintf("answer generation failed at %s: %v", e.Stage, e.Err)
}

func (e AnswerGenerationError) Unwrap() error { return e.Err }

// IndexWriteError: one batch of a chunk upsert failed. From/To are the
// half-open chunk range of the failed batch.
type IndexWriteError struct {
	From int
	To   int
	Err  error
}

func (e IndexWriteError) Error() string {
	return fmt.Sprintf("index write failed for batch [%d:%d]: %v", e.From, e.To, e.Err)
}

func (e IndexWriteError) Unwrap() error { return e.Err }

package types

import (
	"time"

	"github.com/google/uuid"
)

// Document describes one registered source PDF. Identity is SourceURL:
// registering the same URL twice returns the same record.
type Document struct {
	SourceURL   string    `json:"source_url"`
	LocalPath   string    `json:"local_path"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	PageCount   int       `json:"page_count"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Page is the extraction unit between the PDF loader and the chunker.
// It is never persisted on its own.
type Page struct {
	LocalPath string
	Number    int // 1-based
	Text      string
}

type Chunk struct {
	ID         uuid.UUID
	SourceURL  string
	LocalPath  string
	Title      string
	PageNumber int
	Index      int // 0-based, sequential within a page
	CharStart  int
	CharEnd    int
	Content    string
	Embedding  []float32
	Distance   float64
}

// RetrievalResult is one ranked hit of a similarity query.
type RetrievalResult struct {
	Rank     int // 1-based, rank 1 = closest
	Chunk    Chunk
	Distance float64
	Score    float64 // 1 - Distance, not clamped
}

// Source is the provenance record paired with an in-text [Source N]
// citation. Index matches N.
type Source struct {
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	Page      int     `json:"page"`
	SourceURL string  `json:"url"`
	Snippet   string  `json:"snippet"`
	FullText  string  `json:"full_text"`
	Relevance float64 `json:"relevance_score"`
}

type Answer struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type IndexStats struct {
	ChunkCount    int64 `json:"chunk_count"`
	DocumentCount int64 `json:"document_count"`
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the per-document result of an ingestion run. One bad PDF
// never aborts the batch, it just shows up here as failed.
type Outcome struct {
	SourceURL string        `json:"source_url"`
	Title     string        `json:"title"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Chunks    int           `json:"chunks"`
}

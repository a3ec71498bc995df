package ingest

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"policyrag/chunker"
	"policyrag/loader"
	"policyrag/model"
	"policyrag/registry"
	"policyrag/scraper"
	"policyrag/store"
	"policyrag/types"
)

// Options tweak one ingestion run.
type Options struct {
	// SkipDownload reprocesses the documents already in the registry
	// instead of scraping and downloading.
	SkipDownload bool
	// ClearExisting wipes the vector index before indexing.
	ClearExisting bool
}

// Service sequences registry -> extraction -> chunker -> vector index
// for a batch of documents. Runs are idempotent: an unchanged source set
// produces no duplicate downloads and no duplicate chunks.
type Service struct {
	logger    *slog.Logger
	registry  *registry.Registry
	scraper   *scraper.Scraper
	extractor loader.PageExtractor
	chunker   *chunker.Chunker
	embedder  model.EmbedderInterface
	store     store.DBStorer

	policyURLs []string
}

func New(reg *registry.Registry, scr *scraper.Scraper, ext loader.PageExtractor,
	ch *chunker.Chunker, emb model.EmbedderInterface, st store.DBStorer, policyURLs []string) *Service {
	return &Service{
		logger:     slog.Default(),
		registry:   reg,
		scraper:    scr,
		extractor:  ext,
		chunker:    ch,
		embedder:   emb,
		store:      st,
		policyURLs: policyURLs,
	}
}

// Run executes the full pipeline and reports a per-document outcome.
// A single bad document never aborts the batch.
func (s *Service) Run(ctx context.Context, opts Options) ([]types.Outcome, error) {
	start := time.Now()
	s.logger.Info("ingestion started", "skip_download", opts.SkipDownload, "clear", opts.ClearExisting)

	if opts.ClearExisting {
		if err := s.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear index: %w", err)
		}
		log.Println("[INGEST] cleared existing index")
	}

	links := s.collectLinks(ctx, opts)
	if len(links) == 0 {
		return nil, fmt.Errorf("no documents to ingest")
	}
	log.Printf("[INGEST] %d documents to process\n", len(links))

	outcomes := make([]types.Outcome, 0, len(links))
	for _, link := range links {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}
		outcomes = append(outcomes, s.ingestOne(ctx, link))
	}

	s.logger.Info("ingestion finished",
		"documents", len(outcomes),
		"duration", time.Since(start).Round(time.Millisecond))
	return outcomes, nil
}

func (s *Service) collectLinks(ctx context.Context, opts Options) []scraper.DocLink {
	if opts.SkipDownload {
		docs := s.registry.Documents()
		links := make([]scraper.DocLink, 0, len(docs))
		for _, doc := range docs {
			links = append(links, scraper.DocLink{URL: doc.SourceURL, Title: doc.Title})
		}
		return links
	}
	return s.scraper.ScrapeAll(ctx, s.policyURLs)
}

// ingestOne runs one document through the pipeline. Documents whose
// artifact already sits on disk are skipped wholesale, which is what
// makes a re-run cheap and duplicate-free.
func (s *Service) ingestOne(ctx context.Context, link scraper.DocLink) types.Outcome {
	outcome := types.Outcome{SourceURL: link.URL, Title: link.Title}

	if s.registry.Downloaded(link.URL) {
		log.Printf("[INGEST] already ingested, skipping: %s\n", link.URL)
		outcome.Status = types.OutcomeSkipped
		outcome.Reason = "local artifact already exists"
		return outcome
	}

	doc, err := s.registry.Register(ctx, link.URL, link.Title)
	if err != nil {
		return failed(outcome, err)
	}

	chunksAdded, err := s.indexDocument(ctx, doc)
	if err != nil {
		return failed(outcome, err)
	}

	outcome.Status = types.OutcomeSucceeded
	outcome.Chunks = chunksAdded
	return outcome
}

// IngestFile adds one manually supplied PDF, bypassing the scraper.
// An empty sourceURL falls back to a file:// pseudo-URL.
func (s *Service) IngestFile(ctx context.Context, path, sourceURL, title string) (types.Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return types.Outcome{}, err
	}
	if sourceURL == "" {
		sourceURL = "file://" + abs
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(abs), ".pdf")
	}

	doc := types.Document{SourceURL: sourceURL, LocalPath: abs, Title: title}
	outcome := types.Outcome{SourceURL: sourceURL, Title: title}

	chunksAdded, err := s.indexDocument(ctx, doc)
	if err != nil {
		return failed(outcome, err), err
	}
	outcome.Status = types.OutcomeSucceeded
	outcome.Chunks = chunksAdded
	return outcome, nil
}

// RefreshDocument re-downloads a known document, purges its old chunks
// and indexes the new artifact.
func (s *Service) RefreshDocument(ctx context.Context, sourceURL string) (types.Outcome, error) {
	outcome := types.Outcome{SourceURL: sourceURL}

	doc, err := s.registry.Refresh(ctx, sourceURL)
	if err != nil {
		return failed(outcome, err), err
	}
	outcome.Title = doc.Title

	deleted, err := s.store.DeleteBySource(ctx, sourceURL)
	if err != nil {
		return failed(outcome, err), err
	}
	if deleted > 0 {
		log.Printf("[INGEST] purged %d stale chunks for %s\n", deleted, sourceURL)
	}

	chunksAdded, err := s.indexDocument(ctx, doc)
	if err != nil {
		return failed(outcome, err), err
	}
	outcome.Status = types.OutcomeSucceeded
	outcome.Chunks = chunksAdded
	return outcome, nil
}

func (s *Service) indexDocument(ctx context.Context, doc types.Document) (int, error) {
	pages, pageCount, err := s.extractor.ExtractPages(ctx, doc.LocalPath)
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, types.ExtractionError{Path: doc.LocalPath, Err: fmt.Errorf("no text extracted")}
	}

	if _, ok := s.registry.Lookup(doc.SourceURL); ok {
		if err := s.registry.SetPageCount(doc.SourceURL, pageCount); err != nil {
			log.Printf("[INGEST] failed to record page count for %s: %v\n", doc.SourceURL, err)
		}
	}

	var chunks []types.Chunk
	for _, page := range pages {
		chunks = append(chunks, s.chunker.Split(doc, page)...)
	}
	if len(chunks) == 0 {
		return 0, types.ExtractionError{Path: doc.LocalPath, Err: fmt.Errorf("no chunks produced")}
	}

	for i := range chunks {
		embedding, err := s.embedder.Embed(chunks[i].Content)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Embedding = embedding
	}

	if err := s.store.EnsureMeta(ctx, s.embedder.Model(), len(chunks[0].Embedding)); err != nil {
		return 0, err
	}

	written, err := s.store.UpsertChunks(ctx, chunks)
	if err != nil {
		return written, err
	}

	log.Printf("[INGEST] indexed %s: %d pages, %d chunks\n", doc.LocalPath, len(pages), written)
	return written, nil
}

func failed(outcome types.Outcome, err error) types.Outcome {
	log.Printf("[INGEST] %s failed: %v\n", outcome.SourceURL, err)
	outcome.Status = types.OutcomeFailed
	outcome.Reason = err.Error()
	return outcome
}

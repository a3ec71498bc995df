package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"policyrag/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type DBStorer interface {
	UpsertChunks(context.Context, []types.Chunk) (int, error)
	Search(context.Context, []float32, int) ([]types.Chunk, error)
	Stats(context.Context) (types.IndexStats, error)
	DeleteBySource(context.Context, string) (int64, error)
	Clear(context.Context) error
	EnsureMeta(context.Context, string, int) error
}

// PostgresStore keeps chunk text, embeddings and metadata in a pgvector
// table. Chunk IDs are deterministic, so writes are idempotent upserts.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dim       int
	batchSize int
}

func NewPostgresStore(ctx context.Context, connStr string, dim, batchSize int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = 100
	}

	return &PostgresStore{
		pool:      pool,
		dim:       dim,
		batchSize: batchSize,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS chunks (
        id UUID PRIMARY KEY,
        seq BIGSERIAL,
        source_url TEXT NOT NULL,
        local_path TEXT NOT NULL,
        title TEXT,
        page INT NOT NULL,
        chunk_index INT NOT NULL,
        char_start INT NOT NULL,
        char_end INT NOT NULL,
        content TEXT NOT NULL,
        embedding vector(%d)
    );

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_url);

	CREATE TABLE IF NOT EXISTS index_meta (
		id INT PRIMARY KEY CHECK (id = 1),
		embedding_model TEXT NOT NULL,
		dim INT NOT NULL
	);
    `, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

// EnsureMeta pins the embedding model and dimensionality on first write
// and refuses to proceed on any later mismatch. Vectors from a different
// model would compare as garbage without ever erroring, so this fails
// loudly instead.
func (p *PostgresStore) EnsureMeta(ctx context.Context, model string, dim int) error {
	var storedModel string
	var storedDim int
	err := p.pool.QueryRow(ctx, "SELECT embedding_model, dim FROM index_meta WHERE id = 1").
		Scan(&storedModel, &storedDim)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = p.pool.Exec(ctx,
			"INSERT INTO index_meta (id, embedding_model, dim) VALUES (1, $1, $2)", model, dim)
		return err
	}
	if err != nil {
		return err
	}

	if storedModel != model || storedDim != dim {
		return fmt.Errorf("embedding mismatch: index built with %s (dim %d), got %s (dim %d)",
			storedModel, storedDim, model, dim)
	}
	return nil
}

// UpsertChunks writes chunks in batches inside per-batch transactions.
// Re-adding a chunk with an unchanged ID overwrites the row and keeps
// its seq, so retrieval tie order is stable across re-ingestion.
// A failed batch is reported as IndexWriteError and later batches still
// run; the returned count covers only committed batches.
func (p *PostgresStore) UpsertChunks(ctx context.Context, chunks []types.Chunk) (int, error) {
	query := `
    INSERT INTO chunks (id, source_url, local_path, title, page, chunk_index, char_start, char_end, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (id) DO UPDATE SET
        source_url = EXCLUDED.source_url,
        title = EXCLUDED.title,
        char_start = EXCLUDED.char_start,
        char_end = EXCLUDED.char_end,
        content = EXCLUDED.content,
        embedding = EXCLUDED.embedding
    `

	written := 0
	var errs []error
	for from := 0; from < len(chunks); from += p.batchSize {
		to := from + p.batchSize
		if to > len(chunks) {
			to = len(chunks)
		}

		if err := p.upsertBatch(ctx, query, chunks[from:to]); err != nil {
			errs = append(errs, types.IndexWriteError{From: from, To: to, Err: err})
			continue
		}
		written += to - from
	}

	if len(errs) > 0 {
		return written, errors.Join(errs...)
	}
	return written, nil
}

func (p *PostgresStore) upsertBatch(ctx context.Context, query string, chunks []types.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(query,
			c.ID, c.SourceURL, c.LocalPath, c.Title, c.PageNumber, c.Index,
			c.CharStart, c.CharEnd, c.Content, pgvector.NewVector(c.Embedding),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Search returns the limit closest chunks by cosine distance, ties
// broken by insertion order.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if len(queryVec) != p.dim {
		return nil, fmt.Errorf("query vector dim %d does not match index dim %d", len(queryVec), p.dim)
	}

	vector := pgvector.NewVector(queryVec)

	query := `
		SELECT id, source_url, local_path, title, page, chunk_index, char_start, char_end, content,
		       embedding <=> $1 AS distance
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, vector, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var chunk types.Chunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.SourceURL,
			&chunk.LocalPath,
			&chunk.Title,
			&chunk.PageNumber,
			&chunk.Index,
			&chunk.CharStart,
			&chunk.CharEnd,
			&chunk.Content,
			&chunk.Distance)
		if err != nil {
			return nil, err
		}

		log.Printf("[SEARCH] hit %s page=%d index=%d distance=%.4f\n",
			chunk.LocalPath, chunk.PageNumber, chunk.Index, chunk.Distance)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) Stats(ctx context.Context) (types.IndexStats, error) {
	var stats types.IndexStats
	err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT source_url) FROM chunks").
		Scan(&stats.ChunkCount, &stats.DocumentCount)
	return stats, err
}

// DeleteBySource purges every chunk of one document, used before
// re-ingesting a refreshed PDF.
func (p *PostgresStore) DeleteBySource(ctx context.Context, sourceURL string) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE source_url = $1", sourceURL)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "TRUNCATE chunks; DELETE FROM index_meta")
	return err
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}

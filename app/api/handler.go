package api

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"policyrag/ingest"
	"policyrag/rag"
	"policyrag/store"
	"policyrag/types"

	"github.com/gofiber/fiber/v2"
)

type RequestHandler struct {
	answerer     *rag.Answerer
	contextStore store.DBStorer
	ingestor     *ingest.Service
	documentsDir string
	llmModel     string
}

func NewRequestHandler(answerer *rag.Answerer, contextStore store.DBStorer, ingestor *ingest.Service, documentsDir, llmModel string) *RequestHandler {
	return &RequestHandler{
		answerer:     answerer,
		contextStore: contextStore,
		ingestor:     ingestor,
		documentsDir: documentsDir,
		llmModel:     llmModel,
	}
}

// HandleQuery answers a question with cited sources.
func (h *RequestHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	answer, err := h.answerer.QueryTopK(c.Context(), params.Question, params.TopK)
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

func (h *RequestHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.contextStore.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"chunk_count":    stats.ChunkCount,
		"document_count": stats.DocumentCount,
		"model":          h.llmModel,
	})
}

// HandleIngest runs the full pipeline and returns per-document outcomes.
// The run is detached from the request context: ingestion keeps going
// even if the client gives up waiting.
func (h *RequestHandler) HandleIngest(c *fiber.Ctx) error {
	outcomes, err := h.ingestor.Run(context.Background(), ingest.Options{})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"outcomes": outcomes})
}

// HandleUpload saves an uploaded PDF into the documents dir and ingests
// it immediately.
func (h *RequestHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	path := filepath.Join(h.documentsDir, filepath.Base(file.Filename))
	if err := c.SaveFile(file, path); err != nil {
		fmt.Println(err)
		return err
	}
	log.Printf("[UPLOAD] file successfully saved to: %s\n", path)

	outcome, err := h.ingestor.IngestFile(context.Background(), path, "", "")
	if err != nil {
		return err
	}
	return c.JSON(outcome)
}

package server

import (
	"context"
	"log"
	"log/slog"

	"policyrag/app/api"
	"policyrag/chunker"
	"policyrag/config"
	"policyrag/ingest"
	"policyrag/loader"
	"policyrag/model"
	"policyrag/rag"
	"policyrag/registry"
	"policyrag/scraper"
	"policyrag/store"

	"github.com/gofiber/fiber/v2"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
}

func NewServer(cfg config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()
	cfg := s.cfg

	pool, err := store.NewPostgresStore(ctx, cfg.DSN(), cfg.EmbeddingDim, cfg.BatchSize)
	if err != nil {
		log.Fatal("error to connect to Postgres database", err)
		return
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables", err)
		return
	}

	embedder := model.NewEmbedder(
		model.NewOllamaEmbedder(cfg.OllamaEmbeddingURL, cfg.OllamaEmbeddingModel, cfg.FetchTimeout))
	generator := model.NewOllamaGenerator(
		cfg.LLMURL, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMMaxTokens, cfg.FetchTimeout)

	fetcher := scraper.NewHTTPFetcher(cfg.FetchTimeout, cfg.FetchInterval, cfg.FetchRetries)
	reg, err := registry.New(cfg.DocumentsDir, fetcher)
	if err != nil {
		log.Fatal("error to open document registry", err)
		return
	}

	extractor := loader.NewPDFExtractor(cfg.ConverterURL, cfg.CropTop, cfg.CropBottom, 0)
	ingestor := ingest.New(reg, scraper.New(fetcher), extractor,
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap), embedder, pool, cfg.PolicyURLs)
	answerer := rag.NewAnswerer(pool, embedder, generator, cfg.TopK)

	var (
		app            = fiber.New(fiberConfig)
		checkHandler   = api.NewCheckHandler()
		requestHandler = api.NewRequestHandler(answerer, pool, ingestor, cfg.DocumentsDir, cfg.LLMModel)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/query", requestHandler.HandleQuery)
	apiv1.Get("/stats", requestHandler.HandleStats)
	apiv1.Post("/ingest", requestHandler.HandleIngest)
	apiv1.Post("/documents", requestHandler.HandleUpload)

	if err := app.Listen(cfg.ServerAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}

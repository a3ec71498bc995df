package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"policyrag/chunker"
	"policyrag/config"
	"policyrag/ingest"
	"policyrag/loader"
	"policyrag/model"
	"policyrag/registry"
	"policyrag/scraper"
	"policyrag/store"
	"policyrag/types"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	skipDownload bool
	clearIndex   bool
	sourceURL    string
	docTitle     string
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment defaults")
	}

	root := &cobra.Command{
		Use:   "ingest",
		Short: "Policy document ingestion pipeline",
		Long:  "Scrapes configured policy pages, downloads new PDFs, chunks the text and indexes it into the vector store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context())
		},
	}
	root.Flags().BoolVar(&skipDownload, "skip-download", false, "skip scraping/downloading, only reprocess existing documents")
	root.Flags().BoolVar(&clearIndex, "clear", false, "clear existing vector store before indexing")

	check := &cobra.Command{
		Use:   "check",
		Short: "Check that the database and model collaborators are ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context())
		},
	}

	addPDF := &cobra.Command{
		Use:   "add-pdf <path>",
		Short: "Add a single PDF file manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddPDF(cmd.Context(), args[0])
		},
	}
	addPDF.Flags().StringVar(&sourceURL, "url", "", "source URL for the manually added PDF")
	addPDF.Flags().StringVar(&docTitle, "title", "", "document title, defaults to the file name")

	refresh := &cobra.Command{
		Use:   "refresh <source-url>",
		Short: "Re-download a registered document and re-index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), args[0])
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Wipe the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd.Context())
		},
	}

	root.AddCommand(check, addPDF, refresh, clearCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type deps struct {
	pool     *store.PostgresStore
	embedder *model.Embedder
	service  *ingest.Service
	registry *registry.Registry
}

func setup(ctx context.Context, cfg config.Config) (*deps, error) {
	pool, err := store.NewPostgresStore(ctx, cfg.DSN(), cfg.EmbeddingDim, cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("connect to Postgres: %w", err)
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	embedder := model.NewEmbedder(
		model.NewOllamaEmbedder(cfg.OllamaEmbeddingURL, cfg.OllamaEmbeddingModel, cfg.FetchTimeout))

	fetcher := scraper.NewHTTPFetcher(cfg.FetchTimeout, cfg.FetchInterval, cfg.FetchRetries)
	reg, err := registry.New(cfg.DocumentsDir, fetcher)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open document registry: %w", err)
	}

	extractor := loader.NewPDFExtractor(cfg.ConverterURL, cfg.CropTop, cfg.CropBottom, 0)
	service := ingest.New(reg, scraper.New(fetcher), extractor,
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap), embedder, pool, cfg.PolicyURLs)

	return &deps{pool: pool, embedder: embedder, service: service, registry: reg}, nil
}

func runPipeline(ctx context.Context) error {
	cfg := config.Load()
	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.pool.Close()

	outcomes, err := d.service.Run(ctx, ingest.Options{
		SkipDownload:  skipDownload,
		ClearExisting: clearIndex,
	})
	if err != nil {
		return err
	}

	printOutcomes(outcomes)

	stats, err := d.pool.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nVector store: %d chunks from %d documents\n", stats.ChunkCount, stats.DocumentCount)
	return nil
}

func runCheck(ctx context.Context) error {
	cfg := config.Load()
	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.pool.Close()

	fmt.Println("1. Checking embedding model...")
	if _, err := d.embedder.Embed("connectivity check"); err != nil {
		fmt.Printf("   embedding model not ready: %v\n", err)
	} else {
		fmt.Printf("   ok, model %s (dim %d)\n", d.embedder.Model(), d.embedder.Dim())
	}

	fmt.Println("2. Checking vector store...")
	stats, err := d.pool.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.ChunkCount == 0 {
		fmt.Println("   vector store is empty, run: ingest")
	} else {
		fmt.Printf("   ok, %d chunks from %d documents\n", stats.ChunkCount, stats.DocumentCount)
	}

	fmt.Println("3. Checking document index...")
	fmt.Printf("   %d documents registered\n", len(d.registry.Documents()))
	return nil
}

func runAddPDF(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %s", path)
	}

	cfg := config.Load()
	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.pool.Close()

	outcome, err := d.service.IngestFile(ctx, path, sourceURL, docTitle)
	if err != nil {
		return err
	}
	printOutcomes([]types.Outcome{outcome})
	return nil
}

func runRefresh(ctx context.Context, url string) error {
	cfg := config.Load()
	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.pool.Close()

	outcome, err := d.service.RefreshDocument(ctx, url)
	printOutcomes([]types.Outcome{outcome})
	return err
}

func runClear(ctx context.Context) error {
	cfg := config.Load()
	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.pool.Close()

	if err := d.pool.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Vector store cleared")
	return nil
}

func printOutcomes(outcomes []types.Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case types.OutcomeSucceeded:
			fmt.Printf("  [OK]      %s (%d chunks)\n", o.SourceURL, o.Chunks)
		case types.OutcomeSkipped:
			fmt.Printf("  [SKIP]    %s\n", o.SourceURL)
		default:
			fmt.Printf("  [FAILED]  %s: %s\n", o.SourceURL, o.Reason)
		}
	}
}

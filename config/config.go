package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the components need. It is built once in
// main and passed down at construction, nothing reads the environment
// after Load returns.
type Config struct {
	ServerAddr string

	PGHost   string
	PGPort   int
	PGUser   string
	PGPass   string
	PGDBName string

	DocumentsDir string
	PolicyURLs   []string
	ConverterURL string

	OllamaEmbeddingURL   string
	OllamaEmbeddingModel string
	EmbeddingDim         int

	LLMURL         string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	BatchSize    int

	CropTop    float64
	CropBottom float64

	FetchTimeout  time.Duration
	FetchRetries  int
	FetchInterval time.Duration
}

func Load() Config {
	return Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		PGHost:   getEnv("PG_HOST", "localhost"),
		PGPort:   getEnvInt("PG_PORT", 5432),
		PGUser:   getEnv("PG_USER", "postgres"),
		PGPass:   getEnv("PG_PASS", "postgres"),
		PGDBName: getEnv("PG_DB_NAME", "policies"),

		DocumentsDir: getEnv("DOCUMENTS_DIR", "documents/bnm"),
		PolicyURLs:   getEnvList("POLICY_URLS", "https://www.bnm.gov.my/banking-islamic-banking"),
		ConverterURL: getEnv("CONVERTER_URL", "http://localhost:5001/v1/convert/file"),

		OllamaEmbeddingURL:   getEnv("OLLAMA_EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
		OllamaEmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:         getEnvInt("EMBEDDING_DIM", 768),

		LLMURL:         getEnv("LLM_URL", "http://localhost:11434/api/generate"),
		LLMModel:       getEnv("LLM_MODEL", "llama3.1:8b"),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		TopK:         getEnvInt("RETRIEVAL_TOP_K", 5),
		BatchSize:    getEnvInt("INDEX_BATCH_SIZE", 100),

		CropTop:    getEnvFloat("PDF_CROP_TOP", 0),
		CropBottom: getEnvFloat("PDF_CROP_BOTTOM", 0),

		FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchRetries:  getEnvInt("FETCH_RETRIES", 3),
		FetchInterval: getEnvDuration("FETCH_INTERVAL", time.Second),
	}
}

// DSN builds the keyword/value connection string for pgx.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application, including every
// retrieval threshold. It is constructed once at startup, validated, and
// passed by reference into each component; it is never mutated afterwards.
type Config struct {
	// Embedding provider
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingTimeout   time.Duration
	EmbedMaxRetries    int
	EmbedBackoffBase   time.Duration
	EmbedBatchSize     int
	EmbeddingCacheSize int

	// Chunking
	ChunkTargetWords  int
	ChunkOverlapWords int
	ChunkMinWords     int
	ChunkMaxWords     int

	// Vector store
	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	// Retrieval
	SearchTopK      int
	SearchMinScore  float64
	PriorityHigh    float64
	PriorityLow     float64
	PriorityMinHits int
	QueryCacheTTL   time.Duration
	QueryCacheSize  int

	// Hybrid scoring
	HybridVectorWeight float64

	// Evidence gate
	EvidenceHigh float64
	EvidenceLow  float64
	MinHits      int
	MinOverlap   int
	// AllowGeneralSources lets chitchat/definition/general queries keep
	// citations instead of being rejected outright.
	AllowGeneralSources bool

	// Token budgets
	MaxTotalTokens     int
	ContextTokenBudget int
	SystemPromptTokens int
	HistoryTokenBudget int

	// Persistence and serving
	DBPath    string
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	// TraceSteps enables per-step timing logs in the decision and
	// indexing pipelines.
	TraceSteps bool
}

// Default returns a Config populated with the built-in defaults. The vector
// size is the one deployment-specific value with no safe default; callers
// (and tests) must set it to match the embedding model.
func Default() *Config {
	return &Config{
		EmbeddingBaseURL:   "http://localhost:8081",
		EmbeddingModelName: "granite-embedding-278m-multilingual",
		EmbeddingAPIKey:    "dummy-key",
		EmbeddingTimeout:   30 * time.Second,
		EmbedMaxRetries:    3,
		EmbedBackoffBase:   500 * time.Millisecond,
		EmbedBatchSize:     10,
		EmbeddingCacheSize: 4096,

		ChunkTargetWords:  300,
		ChunkOverlapWords: 50,
		ChunkMinWords:     50,
		ChunkMaxWords:     500,

		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "chunks",

		SearchTopK:      8,
		SearchMinScore:  0.15,
		PriorityHigh:    0.4,
		PriorityLow:     0.25,
		PriorityMinHits: 2,
		QueryCacheTTL:   time.Hour,
		QueryCacheSize:  512,

		HybridVectorWeight: 0.7,

		EvidenceHigh: 0.5,
		EvidenceLow:  0.3,
		MinHits:      2,
		MinOverlap:   1,

		MaxTotalTokens:     8000,
		ContextTokenBudget: 2400,
		SystemPromptTokens: 800,
		HistoryTokenBudget: 2000,

		DBPath:    "./data/docwise.db",
		APIPort:   "9000",
		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
	}
}

// Load reads configuration from environment variables and returns a Config.
// It applies defaults for optional fields and validates everything that has
// a constrained range. If a .env file exists in the current directory or a
// parent, it is loaded first; real environment variables take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "chunks"),

		DBPath:    getEnv("DB_PATH", "./data/docwise.db"),
		APIPort:   getEnv("API_PORT", "9000"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.EmbeddingTimeout, err = getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.EmbedMaxRetries, err = getEnvInt("EMBED_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.EmbedBackoffBase, err = getEnvDuration("EMBED_BACKOFF_BASE", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.EmbedBatchSize, err = getEnvInt("EMBED_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.EmbeddingCacheSize, err = getEnvInt("EMBEDDING_CACHE_SIZE", 4096); err != nil {
		return nil, err
	}

	if cfg.ChunkTargetWords, err = getEnvInt("CHUNK_TARGET_WORDS", 300); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlapWords, err = getEnvInt("CHUNK_OVERLAP_WORDS", 50); err != nil {
		return nil, err
	}
	if cfg.ChunkMinWords, err = getEnvInt("CHUNK_MIN_WORDS", 50); err != nil {
		return nil, err
	}
	if cfg.ChunkMaxWords, err = getEnvInt("CHUNK_MAX_WORDS", 500); err != nil {
		return nil, err
	}

	if cfg.SearchTopK, err = getEnvInt("SEARCH_TOP_K", 8); err != nil {
		return nil, err
	}
	if cfg.SearchMinScore, err = getEnvFloat("SEARCH_MIN_SCORE", 0.15); err != nil {
		return nil, err
	}
	if cfg.PriorityHigh, err = getEnvFloat("PRIORITY_HIGH", 0.4); err != nil {
		return nil, err
	}
	if cfg.PriorityLow, err = getEnvFloat("PRIORITY_LOW", 0.25); err != nil {
		return nil, err
	}
	if cfg.PriorityMinHits, err = getEnvInt("PRIORITY_MIN_HITS", 2); err != nil {
		return nil, err
	}
	if cfg.QueryCacheTTL, err = getEnvDuration("QUERY_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.QueryCacheSize, err = getEnvInt("QUERY_CACHE_SIZE", 512); err != nil {
		return nil, err
	}

	if cfg.HybridVectorWeight, err = getEnvFloat("HYBRID_VECTOR_WEIGHT", 0.7); err != nil {
		return nil, err
	}

	if cfg.EvidenceHigh, err = getEnvFloat("EVIDENCE_HIGH", 0.5); err != nil {
		return nil, err
	}
	if cfg.EvidenceLow, err = getEnvFloat("EVIDENCE_LOW", 0.3); err != nil {
		return nil, err
	}
	if cfg.MinHits, err = getEnvInt("MIN_HITS", 2); err != nil {
		return nil, err
	}
	if cfg.MinOverlap, err = getEnvInt("MIN_OVERLAP", 1); err != nil {
		return nil, err
	}
	cfg.AllowGeneralSources = getEnvBool("ALLOW_GENERAL_SOURCES", false)
	cfg.TraceSteps = getEnvBool("TRACE_STEPS", false)

	if cfg.MaxTotalTokens, err = getEnvInt("MAX_TOTAL_TOKENS", 8000); err != nil {
		return nil, err
	}
	if cfg.ContextTokenBudget, err = getEnvInt("CONTEXT_TOKEN_BUDGET", 2400); err != nil {
		return nil, err
	}
	if cfg.SystemPromptTokens, err = getEnvInt("SYSTEM_PROMPT_TOKENS", 800); err != nil {
		return nil, err
	}
	if cfg.HistoryTokenBudget, err = getEnvInt("HISTORY_TOKEN_BUDGET", 2000); err != nil {
		return nil, err
	}

	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	cfg.QdrantVectorSize = vectorSize

	cfg.LogLevel = parseLogLevel(getEnv("LOG_LEVEL", "info"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks every constrained field. It is split out from Load so
// tests can exercise it with hand-built configs.
func (c *Config) Validate() error {
	if c.QdrantVectorSize <= 0 {
		return fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	if c.ChunkTargetWords <= 0 {
		return fmt.Errorf("CHUNK_TARGET_WORDS must be greater than 0")
	}
	if c.ChunkOverlapWords < 0 || c.ChunkOverlapWords >= c.ChunkTargetWords {
		return fmt.Errorf("CHUNK_OVERLAP_WORDS must be in [0, CHUNK_TARGET_WORDS)")
	}
	if c.ChunkMinWords <= 0 || c.ChunkMaxWords < c.ChunkTargetWords {
		return fmt.Errorf("chunk bounds must satisfy 0 < min and max >= target")
	}
	for name, v := range map[string]float64{
		"SEARCH_MIN_SCORE":     c.SearchMinScore,
		"PRIORITY_HIGH":        c.PriorityHigh,
		"PRIORITY_LOW":         c.PriorityLow,
		"EVIDENCE_HIGH":        c.EvidenceHigh,
		"EVIDENCE_LOW":         c.EvidenceLow,
		"HYBRID_VECTOR_WEIGHT": c.HybridVectorWeight,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if c.PriorityLow > c.PriorityHigh {
		return fmt.Errorf("PRIORITY_LOW must not exceed PRIORITY_HIGH")
	}
	if c.EvidenceLow > c.EvidenceHigh {
		return fmt.Errorf("EVIDENCE_LOW must not exceed EVIDENCE_HIGH")
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be greater than 0")
	}
	if c.EmbedMaxRetries < 0 {
		return fmt.Errorf("EMBED_MAX_RETRIES must not be negative")
	}
	if c.MaxTotalTokens <= 0 || c.ContextTokenBudget <= 0 {
		return fmt.Errorf("token budgets must be greater than 0")
	}
	if c.SystemPromptTokens+c.ContextTokenBudget > c.MaxTotalTokens {
		return fmt.Errorf("CONTEXT_TOKEN_BUDGET plus SYSTEM_PROMPT_TOKENS must fit in MAX_TOTAL_TOKENS")
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// Package config loads and validates the cognitive memory engine's
// configuration: store connection, embedder/summarizer providers, search
// weights/limits, and consolidation parameters. The loading shape (env
// vars with upward .env discovery, a JSON fallback) is carried over from
// the teacher's pkg/core/config.go, generalized to this engine's settings.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/cogmem/engine/pkg/engineerr"
)

// Config is the complete configuration for a running engine instance.
type Config struct {
	Store         StoreConfig         `json:"store"`
	Embedder      EmbedderConfig      `json:"embedder"`
	Summarizer    SummarizerConfig    `json:"summarizer"`
	Search        SearchConfig        `json:"search"`
	Consolidation ConsolidationConfig `json:"consolidation"`
}

// StoreConfig selects and configures the relational/vector backend.
type StoreConfig struct {
	// Provider is "postgres" or "sqlite".
	Provider string `json:"provider"`

	// DSN is the PostgreSQL connection string (provider == "postgres").
	DSN string `json:"dsn,omitempty"`

	// Path is the SQLite database file path (provider == "sqlite").
	Path string `json:"path,omitempty"`

	// Namespace scopes the embedding table for this deployment (e.g. "default").
	Namespace string `json:"namespace"`

	// EmbeddingDims is the fixed dimension D of every sector vector.
	EmbeddingDims int `json:"embedding_dims"`
}

// EmbedderConfig configures the external embedding-vector producer.
type EmbedderConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
}

// SummarizerConfig configures the external text-summarisation service used
// during consolidation.
type SummarizerConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
}

// SearchConfig holds the integrated search engine's (C7) tunables.
type SearchConfig struct {
	// Strategy weights, must be finite, non-negative, and sum to 1.0±1e-6.
	WeightFullText   float64 `json:"weight_full_text"`
	WeightVector     float64 `json:"weight_vector"`
	WeightMetadata   float64 `json:"weight_metadata"`
	WeightSimilarity float64 `json:"weight_similarity"`

	// DefaultLimit/MaxLimit bound the page size of a search call.
	DefaultLimit int `json:"default_limit"`
	MaxLimit     int `json:"max_limit"`

	// MaxExecutionTimeMs is the hard wall-clock deadline for a fanned-out
	// search call.
	MaxExecutionTimeMs int `json:"max_execution_time_ms"`

	// CacheSize is the maximum number of entries in the result cache (LRU).
	CacheSize int `json:"cache_size"`

	// CacheTTLSeconds is how long a cached result set remains fresh.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// AnalyticsEnabled turns on per-query analytics recording.
	AnalyticsEnabled bool `json:"analytics_enabled"`

	// AnalyticsRetentionDays bounds how long analytics records are kept.
	AnalyticsRetentionDays int `json:"analytics_retention_days"`
}

// ConsolidationConfig holds the consolidation engine's (C8) tunables.
type ConsolidationConfig struct {
	SimilarityThreshold    float64 `json:"similarity_threshold"`
	MinClusterSize         int     `json:"min_cluster_size"`
	BatchSize              int     `json:"batch_size"`
	StrengthReductionFactor float64 `json:"strength_reduction_factor"`
}

// DefaultSearchConfig returns the §4.7-default strategy weights and limits.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		WeightFullText:         0.30,
		WeightVector:           0.35,
		WeightMetadata:         0.15,
		WeightSimilarity:       0.20,
		DefaultLimit:           20,
		MaxLimit:               200,
		MaxExecutionTimeMs:     5000,
		CacheSize:              1000,
		CacheTTLSeconds:        60,
		AnalyticsEnabled:       true,
		AnalyticsRetentionDays: 30,
	}
}

// DefaultConsolidationConfig returns the §4.8-default consolidation
// parameters.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		SimilarityThreshold:     0.75,
		MinClusterSize:          5,
		BatchSize:               100,
		StrengthReductionFactor: 0.5,
	}
}

// Validate checks every field against the bounds the spec requires,
// failing closed (empty providers, weights, and bad ranges are all
// rejected before any I/O is attempted).
func (c *Config) Validate() error {
	if c.Store.Provider == "" {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("store provider required"), map[string]interface{}{"field": "store.provider"})
	}
	if c.Store.Provider != "postgres" && c.Store.Provider != "sqlite" {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("unsupported store provider %q", c.Store.Provider), map[string]interface{}{"field": "store.provider"})
	}
	if c.Store.EmbeddingDims <= 0 {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("embedding_dims must be positive"), map[string]interface{}{"field": "store.embedding_dims"})
	}
	if c.Embedder.Provider == "" {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("embedder provider required"), map[string]interface{}{"field": "embedder.provider"})
	}
	if c.Summarizer.Provider == "" {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("summarizer provider required"), map[string]interface{}{"field": "summarizer.provider"})
	}

	weights := []float64{c.Search.WeightFullText, c.Search.WeightVector, c.Search.WeightMetadata, c.Search.WeightSimilarity}
	sum := 0.0
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return engineerr.New("Config.Validate", engineerr.KindValidation, engineerr.ErrInvalidWeights, map[string]interface{}{"field": "search.weights"})
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return engineerr.New("Config.Validate", engineerr.KindValidation, engineerr.ErrInvalidWeights, map[string]interface{}{"field": "search.weights", "sum": sum})
	}
	if c.Search.MaxLimit <= 0 || c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("invalid search limits"), map[string]interface{}{"field": "search.limit"})
	}

	cc := c.Consolidation
	if cc.SimilarityThreshold < 0 || cc.SimilarityThreshold > 1 {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("similarity_threshold out of [0,1]"), map[string]interface{}{"field": "consolidation.similarity_threshold"})
	}
	if cc.MinClusterSize < 1 {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("min_cluster_size must be >= 1"), map[string]interface{}{"field": "consolidation.min_cluster_size"})
	}
	if cc.BatchSize < 1 {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("batch_size must be >= 1"), map[string]interface{}{"field": "consolidation.batch_size"})
	}
	if cc.StrengthReductionFactor < 0 || cc.StrengthReductionFactor > 1 {
		return engineerr.New("Config.Validate", engineerr.KindValidation, fmt.Errorf("strength_reduction_factor out of [0,1]"), map[string]interface{}{"field": "consolidation.strength_reduction_factor"})
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables, searching
// upward for a .env file the same way the teacher's FindEnvFile does.
func LoadFromEnv() (*Config, error) {
	if envPath, found := findEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("STORE_PROVIDER", "sqlite")
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "768"))

	storeCfg := StoreConfig{
		Provider:      provider,
		Namespace:     getEnvOrDefault("STORE_NAMESPACE", "default"),
		EmbeddingDims: dims,
	}
	switch provider {
	case "postgres":
		storeCfg.DSN = os.Getenv("POSTGRES_DSN")
	case "sqlite":
		storeCfg.Path = getEnvOrDefault("SQLITE_PATH", "./memengine.db")
	}

	search := DefaultSearchConfig()
	consolidation := DefaultConsolidationConfig()

	cfg := &Config{
		Store: storeCfg,
		Embedder: EmbedderConfig{
			Provider: getEnvOrDefault("EMBEDDER_PROVIDER", "openai"),
			APIKey:   os.Getenv("EMBEDDER_API_KEY"),
			Model:    getEnvOrDefault("EMBEDDER_MODEL", "text-embedding-3-small"),
			BaseURL:  os.Getenv("EMBEDDER_BASE_URL"),
		},
		Summarizer: SummarizerConfig{
			Provider: getEnvOrDefault("SUMMARIZER_PROVIDER", "openai"),
			APIKey:   os.Getenv("SUMMARIZER_API_KEY"),
			Model:    getEnvOrDefault("SUMMARIZER_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("SUMMARIZER_BASE_URL"),
		},
		Search:        search,
		Consolidation: consolidation,
	}

	return cfg, nil
}

// LoadFromJSON loads configuration from a JSON file on disk.
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerr.New("LoadFromJSON", engineerr.KindStorage, err, map[string]interface{}{"path": path})
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, engineerr.New("LoadFromJSON", engineerr.KindValidation, err, map[string]interface{}{"path": path})
	}
	return &cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// findEnvFile searches the current directory and up to four parent
// directories for a .env file.
func findEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

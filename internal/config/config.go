// Package config provides configuration management for the memory engine,
// handling environment variables, YAML files, and documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the engine's hierarchical configuration, matching spec.md §6.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`
	Embeddings  EmbeddingsConfig  `json:"embeddings" yaml:"embeddings"`
	Reranker    RerankerConfig    `json:"reranker" yaml:"reranker"`
	Scoring     ScoringConfig     `json:"memory_scoring" yaml:"memory_scoring"`
	Management  ManagementConfig  `json:"memory_management" yaml:"memory_management"`
	Lifecycle   LifecycleConfig   `json:"lifecycle" yaml:"lifecycle"`
	Dedup       DedupConfig       `json:"deduplication" yaml:"deduplication"`
	Chunking    ChunkingConfig    `json:"chunking" yaml:"chunking"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// ChunkingConfig bounds the recursive text splitter (spec.md §4.5).
type ChunkingConfig struct {
	ChunkSize    int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" yaml:"chunk_overlap"`
	Language     string `json:"language" yaml:"language"` // "source", "markup", or "plain"
}

// ServerConfig controls the JSON-RPC/HTTP transport.
type ServerConfig struct {
	Port         int    `json:"port" yaml:"port"`
	Host         string `json:"host" yaml:"host"`
	ReadTimeout  int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
}

// DatabaseConfig configures the optional Postgres mirror of the
// merge-history system document (internal/mergehistory, SPEC_FULL.md §3).
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Name     string `json:"name" yaml:"name"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"-" yaml:"-"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// VectorStoreConfig configures the collection abstraction (§6). Provider
// selects which VectorStore implementation cmd/server wires up.
type VectorStoreConfig struct {
	Provider          string        `json:"provider" yaml:"provider"` // "qdrant", "sqlite", "memory"
	Host              string        `json:"host" yaml:"host"`
	Port              int           `json:"port" yaml:"port"`
	APIKey            string        `json:"-" yaml:"-"`
	UseTLS            bool          `json:"use_tls" yaml:"use_tls"`
	ShortTermCollection string      `json:"short_term_collection" yaml:"short_term_collection"`
	LongTermCollection  string      `json:"long_term_collection" yaml:"long_term_collection"`
	VectorDimension   int           `json:"vector_dimension" yaml:"vector_dimension"`
	SQLitePath        string        `json:"sqlite_path" yaml:"sqlite_path"`
	RetryAttempts     int           `json:"retry_attempts" yaml:"retry_attempts"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
}

// EmbeddingsConfig configures the embedding-model collaborator.
type EmbeddingsConfig struct {
	Provider       string        `json:"provider" yaml:"provider"` // "openai", "mock"
	Model          string        `json:"model" yaml:"model"`
	Dimensions     int           `json:"dimensions" yaml:"dimensions"`
	APIKey         string        `json:"-" yaml:"-"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	RateLimitRPM   int           `json:"rate_limit_rpm" yaml:"rate_limit_rpm"`
	CacheSize      int           `json:"cache_size" yaml:"cache_size"`
	CacheTTL       time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	RedisAddr      string        `json:"redis_addr" yaml:"redis_addr"` // empty disables the shared cache
}

// RerankerConfig configures the cross-encoder reranker collaborator.
type RerankerConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Model    string `json:"model" yaml:"model"`
	Endpoint string `json:"endpoint" yaml:"endpoint"` // empty falls back to the lexical reranker
}

// PatternConfig describes one configurable keyword/regex bonus used by the
// ImportanceScorer (spec.md §4.2 term 2).
type PatternConfig struct {
	Name          string   `json:"name" yaml:"name"`
	Keywords      []string `json:"keywords" yaml:"keywords"`
	Regexes       []string `json:"regexes" yaml:"regexes"`
	Bonus         float64  `json:"bonus" yaml:"bonus"`
	MatchMode     string   `json:"match_mode" yaml:"match_mode"` // any, all, weighted
	CaseSensitive bool     `json:"case_sensitive" yaml:"case_sensitive"`
}

// ScoringConfig configures ImportanceScorer (§4.2) and the retrieval
// scoring formula used by QueryService (§4.11).
type ScoringConfig struct {
	LengthNormalization float64         `json:"length_normalization" yaml:"length_normalization"`
	MaxLengthScore      float64         `json:"max_length_score" yaml:"max_length_score"`
	Patterns            []PatternConfig `json:"patterns" yaml:"patterns"`
	PermanenceBoosts    map[string]float64 `json:"permanence_boosts" yaml:"permanence_boosts"`
	ExplicitPermanenceBoost float64     `json:"explicit_permanence_boost" yaml:"explicit_permanence_boost"`
	NonImportantCap     float64         `json:"non_important_cap" yaml:"non_important_cap"`

	WeightSemantic  float64 `json:"weight_semantic" yaml:"weight_semantic"`
	WeightRecency   float64 `json:"weight_recency" yaml:"weight_recency"`
	WeightFrequency float64 `json:"weight_frequency" yaml:"weight_frequency"`
	WeightImportance float64 `json:"weight_importance" yaml:"weight_importance"`
	RecencyDecayConstant float64 `json:"recency_decay_constant" yaml:"recency_decay_constant"`
	MaxAccessCount       float64 `json:"max_access_count" yaml:"max_access_count"`
}

// ManagementConfig configures tier sizing, routing thresholds, and the
// relationship/merge-history caps from spec.md §3.
type ManagementConfig struct {
	ShortTermMaxSize         int     `json:"short_term_max_size" yaml:"short_term_max_size"`
	ShortTermThreshold       float64 `json:"short_term_threshold" yaml:"short_term_threshold"`
	LongTermThreshold        float64 `json:"long_term_threshold" yaml:"long_term_threshold"`
	MaxRelationshipsPerChunk int     `json:"max_relationships_per_chunk" yaml:"max_relationships_per_chunk"`
	MaxMergeHistorySize      int     `json:"max_merge_history_size" yaml:"max_merge_history_size"`
	SemanticSimilarityThreshold float64 `json:"semantic_similarity_threshold" yaml:"semantic_similarity_threshold"`
	QueryMonitoringEnabled   bool    `json:"query_monitoring_enabled" yaml:"query_monitoring_enabled"`
	QueryMonitorRingSize     int     `json:"query_monitor_ring_size" yaml:"query_monitor_ring_size"`
	AnalyticsEnabled         bool    `json:"analytics_enabled" yaml:"analytics_enabled"`
}

// TTLTierConfig is one row of the TTL tier table (spec.md §4.3).
type TTLTierConfig struct {
	MinImportance float64       `json:"min_importance" yaml:"min_importance"`
	MaxImportance float64       `json:"max_importance" yaml:"max_importance"`
	BaseTTL       time.Duration `json:"base_ttl" yaml:"base_ttl"`
	Jitter        time.Duration `json:"jitter" yaml:"jitter"`
}

// AgingConfig configures AgingFunction (§4.4).
type AgingConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	DecayRate       float64 `json:"decay_rate" yaml:"decay_rate"`
	MinimumScore    float64 `json:"minimum_score" yaml:"minimum_score"`
	RefreshThresholdDays float64 `json:"refresh_threshold_days" yaml:"refresh_threshold_days"`
}

// MaintenanceCadenceConfig configures LifecycleController's background
// worker intervals (§4.14).
type MaintenanceCadenceConfig struct {
	CleanupExpired  time.Duration `json:"cleanup_expired" yaml:"cleanup_expired"`
	StatsSnapshot   time.Duration `json:"stats_snapshot" yaml:"stats_snapshot"`
	AgingRefresh    time.Duration `json:"aging_refresh" yaml:"aging_refresh"`
	DeepMaintenance time.Duration `json:"deep_maintenance" yaml:"deep_maintenance"`
	WorkerSleep     time.Duration `json:"worker_sleep" yaml:"worker_sleep"`
}

// LifecycleConfig bundles the TTL tiers, aging, and maintenance cadence.
type LifecycleConfig struct {
	TTLTiers    map[string]TTLTierConfig `json:"ttl_tiers" yaml:"ttl_tiers"`
	Aging       AgingConfig              `json:"aging" yaml:"aging"`
	Maintenance MaintenanceCadenceConfig `json:"maintenance" yaml:"maintenance"`
}

// DedupConfig configures the Deduplicator (§4.8).
type DedupConfig struct {
	Enabled             bool     `json:"enabled" yaml:"enabled"`
	BoostThreshold      float64  `json:"boost_threshold" yaml:"boost_threshold"`
	MergeThreshold      float64  `json:"merge_threshold" yaml:"merge_threshold"`
	SimilarityThreshold float64  `json:"similarity_threshold" yaml:"similarity_threshold"`
	Collections         []string `json:"collections" yaml:"collections"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the documented defaults for every field (spec.md §6:
// "omitted keys fall back to documented defaults").
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8088, Host: "0.0.0.0", ReadTimeout: 30, WriteTimeout: 30},
		Database: DatabaseConfig{
			Enabled: false, Host: "localhost", Port: 5432, Name: "memoria_history", User: "postgres", SSLMode: "disable",
		},
		VectorStore: VectorStoreConfig{
			Provider:            "memory",
			Host:                "localhost",
			Port:                6334,
			ShortTermCollection: "memoria_short_term",
			LongTermCollection:  "memoria_long_term",
			VectorDimension:     1536,
			SQLitePath:          "./data/memoria.db",
			RetryAttempts:       3,
			Timeout:             30 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "mock", Model: "text-embedding-3-small", Dimensions: 1536,
			RequestTimeout: 60 * time.Second, RateLimitRPM: 3000,
			CacheSize: 10000, CacheTTL: 24 * time.Hour,
		},
		Reranker: RerankerConfig{Enabled: true, Model: "cross-encoder-default"},
		Scoring: ScoringConfig{
			LengthNormalization: 500,
			MaxLengthScore:      0.3,
			Patterns:            defaultPatterns(),
			PermanenceBoosts: map[string]float64{
				"critical": 0.9, "important": 0.5, "decision": 0.4, "policy": 0.6,
			},
			ExplicitPermanenceBoost: 0.25,
			NonImportantCap:         0.94,
			WeightSemantic:          0.45,
			WeightRecency:           0.2,
			WeightFrequency:         0.15,
			WeightImportance:        0.2,
			RecencyDecayConstant:    86400 * 3,
			MaxAccessCount:          20,
		},
		Management: ManagementConfig{
			ShortTermMaxSize:            100,
			ShortTermThreshold:          0.7,
			LongTermThreshold:           0.95,
			MaxRelationshipsPerChunk:    50,
			MaxMergeHistorySize:         1000,
			SemanticSimilarityThreshold: 0.8,
			QueryMonitoringEnabled:      true,
			QueryMonitorRingSize:        500,
			AnalyticsEnabled:            false,
		},
		Lifecycle: LifecycleConfig{
			TTLTiers: map[string]TTLTierConfig{
				"high_frequency":   {MinImportance: 0, MaxImportance: 0.3, BaseTTL: 300 * time.Second, Jitter: 60 * time.Second},
				"medium_frequency": {MinImportance: 0.3, MaxImportance: 0.5, BaseTTL: 3600 * time.Second, Jitter: 600 * time.Second},
				"low_frequency":    {MinImportance: 0.5, MaxImportance: 0.7, BaseTTL: 86400 * time.Second, Jitter: 7200 * time.Second},
				"static":           {MinImportance: 0.7, MaxImportance: 0.95, BaseTTL: 604800 * time.Second, Jitter: 86400 * time.Second},
				"permanent":        {MinImportance: 0.95, MaxImportance: 1.0},
			},
			Aging: AgingConfig{Enabled: true, DecayRate: 0.1, MinimumScore: 0.05, RefreshThresholdDays: 7},
			Maintenance: MaintenanceCadenceConfig{
				CleanupExpired:  1 * time.Hour,
				StatsSnapshot:   6 * time.Hour,
				AgingRefresh:    24 * time.Hour,
				DeepMaintenance: 168 * time.Hour,
				WorkerSleep:     5 * time.Minute,
			},
		},
		Dedup: DedupConfig{
			Enabled: true, BoostThreshold: 0.95, MergeThreshold: 0.85, SimilarityThreshold: 0.95,
			Collections: []string{"short_term", "long_term"},
		},
		Chunking: ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 200, Language: "plain"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func defaultPatterns() []PatternConfig {
	return []PatternConfig{
		{Name: "technical", Keywords: []string{"error", "bug", "implementation", "algorithm", "function", "class", "method"}, Bonus: 0.2, MatchMode: "any"},
		{Name: "decision", Keywords: []string{"decided", "chose", "architecture", "design choice"}, Bonus: 0.15, MatchMode: "any"},
		{Name: "critical", Keywords: []string{"critical", "production", "security", "vulnerability"}, Bonus: 0.25, MatchMode: "any"},
	}
}

// LoadConfig loads configuration from an optional YAML file (pointed to by
// MEMORIA_CONFIG_FILE) layered under DefaultConfig, then applies env-var
// overrides, mirroring the teacher's godotenv + os.Getenv layering.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()

	if path := os.Getenv("MEMORIA_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	cfg.Server.Host = getStringEnvWithDefault("MEMORIA_HOST", cfg.Server.Host)
	cfg.Server.Port = getIntEnvWithDefault("MEMORIA_PORT", cfg.Server.Port)

	cfg.VectorStore.Provider = getStringEnvWithDefault("MEMORIA_VECTOR_PROVIDER", cfg.VectorStore.Provider)
	cfg.VectorStore.Host = getStringEnvWithDefault("MEMORIA_QDRANT_HOST", cfg.VectorStore.Host)
	cfg.VectorStore.Port = getIntEnvWithDefault("MEMORIA_QDRANT_PORT", cfg.VectorStore.Port)
	cfg.VectorStore.APIKey = getStringEnvWithDefault("MEMORIA_QDRANT_API_KEY", cfg.VectorStore.APIKey)
	cfg.VectorStore.UseTLS = getBoolEnvWithDefault("MEMORIA_QDRANT_TLS", cfg.VectorStore.UseTLS)
	cfg.VectorStore.SQLitePath = getStringEnvWithDefault("MEMORIA_SQLITE_PATH", cfg.VectorStore.SQLitePath)

	cfg.Embeddings.Provider = getStringEnvWithDefault("MEMORIA_EMBEDDINGS_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.APIKey = getStringEnvWithDefault("OPENAI_API_KEY", cfg.Embeddings.APIKey)
	cfg.Embeddings.RedisAddr = getStringEnvWithDefault("MEMORIA_REDIS_ADDR", cfg.Embeddings.RedisAddr)

	cfg.Database.Enabled = getBoolEnvWithDefault("MEMORIA_DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getStringEnvWithDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnvWithDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.Password = getStringEnvWithDefault("DB_PASSWORD", cfg.Database.Password)

	cfg.Management.ShortTermMaxSize = getIntEnvWithDefault("MEMORIA_SHORT_TERM_MAX_SIZE", cfg.Management.ShortTermMaxSize)
	cfg.Management.ShortTermThreshold = getFloatEnvWithDefault("MEMORIA_SHORT_TERM_THRESHOLD", cfg.Management.ShortTermThreshold)
	cfg.Management.LongTermThreshold = getFloatEnvWithDefault("MEMORIA_LONG_TERM_THRESHOLD", cfg.Management.LongTermThreshold)

	cfg.Dedup.Enabled = getBoolEnvWithDefault("MEMORIA_DEDUP_ENABLED", cfg.Dedup.Enabled)
	cfg.Dedup.SimilarityThreshold = getFloatEnvWithDefault("MEMORIA_DEDUP_THRESHOLD", cfg.Dedup.SimilarityThreshold)

	cfg.Logging.Level = getStringEnvWithDefault("MEMORIA_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getStringEnvWithDefault("MEMORIA_LOG_FORMAT", cfg.Logging.Format)
}

// Validate checks cross-field invariants the engine depends on.
func (c *Config) Validate() error {
	if c.Management.ShortTermMaxSize <= 0 {
		return fmt.Errorf("memory_management.short_term_max_size must be positive")
	}
	if c.Management.ShortTermThreshold >= c.Management.LongTermThreshold {
		return fmt.Errorf("short_term_threshold must be less than long_term_threshold")
	}
	if c.Management.MaxRelationshipsPerChunk <= 0 {
		return fmt.Errorf("max_relationships_per_chunk must be positive")
	}
	if c.Management.MaxMergeHistorySize <= 0 {
		return fmt.Errorf("max_merge_history_size must be positive")
	}
	switch c.VectorStore.Provider {
	case "qdrant", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown vector_store.provider: %s", c.VectorStore.Provider)
	}
	return nil
}

func getStringEnvWithDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnvWithDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnvWithDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnvWithDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}

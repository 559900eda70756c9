// Package config loads the engine's YAML configuration file and layers
// environment-variable overrides on top via viper, mirroring the
// load-defaults-then-override shape the source configuration used, but
// with a validated struct instead of free-form env parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the engine.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Parser     ParserConfig     `yaml:"parser" mapstructure:"parser"`
	Indexer    IndexerConfig    `yaml:"indexer" mapstructure:"indexer"`
	Vector     VectorConfig     `yaml:"vector" mapstructure:"vector"`
	Query      QueryConfig      `yaml:"query" mapstructure:"query"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Coordinator CoordinatorConfig `yaml:"coordinator" mapstructure:"coordinator"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

type DatabaseConfig struct {
	Path              string `yaml:"path" mapstructure:"path"`
	BusyTimeoutMs     int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	CacheSizePages    int    `yaml:"cache_size_pages" mapstructure:"cache_size_pages"`
	MmapSizeBytes     int64  `yaml:"mmap_size_bytes" mapstructure:"mmap_size_bytes"`
}

type ParserConfig struct {
	Languages        []string `yaml:"languages" mapstructure:"languages"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes" mapstructure:"max_file_size_bytes"`
	CacheEntries     int      `yaml:"cache_entries" mapstructure:"cache_entries"`
	MaxRecursionDepth int     `yaml:"max_recursion_depth" mapstructure:"max_recursion_depth"`
	FileTimeout      time.Duration `yaml:"file_timeout" mapstructure:"file_timeout"`
}

type IndexerConfig struct {
	BatchSize          int      `yaml:"batch_size" mapstructure:"batch_size"`
	BatchTargetMs      int      `yaml:"batch_target_ms" mapstructure:"batch_target_ms"`
	BatchMaxSize       int      `yaml:"batch_max_size" mapstructure:"batch_max_size"`
	ExcludePatterns    []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	LargeRepoThreshold int      `yaml:"large_repo_threshold" mapstructure:"large_repo_threshold"`
}

type VectorConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // "auto", "sqlite_vec", "fallback"
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	CacheEntries int  `yaml:"cache_entries" mapstructure:"cache_entries"`
}

type QueryConfig struct {
	CacheEntries int           `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	SubgraphNodeCap int        `yaml:"subgraph_node_cap" mapstructure:"subgraph_node_cap"`
}

type EmbeddingConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // "memory", "ollama", "openai"
	OllamaEndpoint string `yaml:"ollama_endpoint" mapstructure:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model" mapstructure:"ollama_model"`
	OpenAIModel    string `yaml:"openai_model" mapstructure:"openai_model"`
	OpenAIAPIKey   string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	Dimensions     int    `yaml:"dimensions" mapstructure:"dimensions"`
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold" mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `yaml:"circuit_breaker_cooldown" mapstructure:"circuit_breaker_cooldown"`
}

type CoordinatorConfig struct {
	ParserConcurrency   int           `yaml:"parser_concurrency" mapstructure:"parser_concurrency"`
	IndexerConcurrency  int           `yaml:"indexer_concurrency" mapstructure:"indexer_concurrency"`
	QueryConcurrency    int           `yaml:"query_concurrency" mapstructure:"query_concurrency"`
	SemanticConcurrency int           `yaml:"semantic_concurrency" mapstructure:"semantic_concurrency"`
	QueueCap            int           `yaml:"queue_cap" mapstructure:"queue_cap"`
	TaskDeadline        time.Duration `yaml:"task_deadline" mapstructure:"task_deadline"`
	IndexingDeadline    time.Duration `yaml:"indexing_deadline" mapstructure:"indexing_deadline"`
	WatchdogInterval    time.Duration `yaml:"watchdog_interval" mapstructure:"watchdog_interval"`
	StuckTaskThreshold  time.Duration `yaml:"stuck_task_threshold" mapstructure:"stuck_task_threshold"`
	HighWatermarkMB     int           `yaml:"high_watermark_mb" mapstructure:"high_watermark_mb"`
	LowWatermarkMB      int           `yaml:"low_watermark_mb" mapstructure:"low_watermark_mb"`
	ResourceSampleInterval time.Duration `yaml:"resource_sample_interval" mapstructure:"resource_sample_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Debug bool   `yaml:"debug" mapstructure:"debug"`
}

// DefaultConfig returns the engine's out-of-the-box configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./.code-graph-rag/graph.db",
			BusyTimeoutMs:  5000,
			CacheSizePages: -10000,
			MmapSizeBytes:  256 * 1024 * 1024,
		},
		Parser: ParserConfig{
			Languages: []string{
				"go", "python", "javascript", "typescript", "tsx", "rust",
				"c", "cpp", "csharp", "java", "kotlin", "vba", "markdown",
			},
			MaxFileSizeBytes:  1 << 20,
			CacheEntries:      500,
			MaxRecursionDepth: 50,
			FileTimeout:       5 * time.Second,
		},
		Indexer: IndexerConfig{
			BatchSize:     1000,
			BatchTargetMs: 100,
			BatchMaxSize:  5000,
			ExcludePatterns: []string{
				".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**",
			},
			LargeRepoThreshold: 20000,
		},
		Vector: VectorConfig{
			Backend:      "auto",
			Dimensions:   768,
			CacheEntries: 256,
		},
		Query: QueryConfig{
			CacheEntries:    1000,
			CacheTTL:        5 * time.Minute,
			SubgraphNodeCap: 10000,
		},
		Embedding: EmbeddingConfig{
			Provider:                "memory",
			OllamaEndpoint:          "http://localhost:11434",
			OllamaModel:             "embeddinggemma",
			OpenAIModel:             "text-embedding-3-small",
			Dimensions:              768,
			CircuitBreakerThreshold: 5,
			CircuitBreakerCooldown:  30 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			ParserConcurrency:      4,
			IndexerConcurrency:     2,
			QueryConcurrency:       10,
			SemanticConcurrency:    5,
			QueueCap:               100,
			TaskDeadline:           30 * time.Second,
			IndexingDeadline:       10 * time.Minute,
			WatchdogInterval:       5 * time.Second,
			StuckTaskThreshold:     60 * time.Second,
			HighWatermarkMB:        2048,
			LowWatermarkMB:         1024,
			ResourceSampleInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "./.code-graph-rag/logs",
			Debug: false,
		},
	}
}

// Load reads a YAML config file (if present) and layers environment
// variable overrides (prefix CODEGRAPH_, nested keys joined with
// underscores, e.g. CODEGRAPH_DATABASE_PATH) on top via viper.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("codegraph")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %q: %w", path, err)
			}
		} else if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	bindEnvOverrides(v, cfg)
	return cfg, nil
}

// bindEnvOverrides re-applies viper's environment view onto cfg so that
// env vars take effect even when no config file is present (viper's
// Unmarshal above only runs when a file was read). Only these keys are
// applied here: database.path, embedding.provider,
// embedding.openai_api_key, embedding.ollama_endpoint, logging.dir and
// logging.level.
func bindEnvOverrides(v *viper.Viper, cfg *Config) {
	if p := v.GetString("database.path"); p != "" {
		cfg.Database.Path = p
	}
	if p := v.GetString("embedding.provider"); p != "" {
		cfg.Embedding.Provider = p
	}
	if p := v.GetString("embedding.openai_api_key"); p != "" {
		cfg.Embedding.OpenAIAPIKey = p
	}
	if p := v.GetString("embedding.ollama_endpoint"); p != "" {
		cfg.Embedding.OllamaEndpoint = p
	}
	if p := v.GetString("logging.dir"); p != "" {
		cfg.Logging.Dir = p
	}
	if p := v.GetString("logging.level"); p != "" {
		cfg.Logging.Level = p
	}
}

// Validate checks structural invariants the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Coordinator.QueueCap <= 0 {
		return fmt.Errorf("coordinator.queue_cap must be positive")
	}
	switch c.Embedding.Provider {
	case "memory", "ollama", "openai":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.Vector.Backend {
	case "auto", "sqlite_vec", "fallback":
	default:
		return fmt.Errorf("unsupported vector backend: %s", c.Vector.Backend)
	}
	return nil
}

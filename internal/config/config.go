package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Project   string          `yaml:"project"`
	Version   int             `yaml:"version"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Graph     GraphConfig     `yaml:"graph"`
	Arcs      ArcConfig       `yaml:"arcs"`
	Feed      FeedConfig      `yaml:"feed"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logger    LoggerConfig    `yaml:"logger"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

type GraphConfig struct {
	CoOccurrenceWeight float64 `yaml:"co_occurrence_weight"`
	SimilarityWeight   float64 `yaml:"similarity_weight"`
	EvidenceCap        int     `yaml:"evidence_cap"`
}

type ArcConfig struct {
	// SimilarityThreshold is deliberately configuration, not a constant:
	// worlds with naturally similar premises may need a higher value to
	// avoid over-merging threads.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TieEpsilon          float64 `yaml:"tie_epsilon"`
}

type FeedConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// UnmarshalYAML accepts human-readable durations ("30m", "24h"), which the
// yaml decoder will not parse into a time.Duration on its own.
func (r *ReconcileConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Interval == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw.Interval)
	if err != nil {
		return fmt.Errorf("parsing reconcile interval: %w", err)
	}
	r.Interval = parsed
	return nil
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Version: 1,
		Server:  ServerConfig{Addr: ":8080"},
		Embedding: EmbeddingConfig{
			Provider: "hash",
			Model:    "nomic-embed-text",
		},
		Graph: GraphConfig{
			CoOccurrenceWeight: 0.6,
			SimilarityWeight:   0.4,
			EvidenceCap:        50,
		},
		Arcs: ArcConfig{
			SimilarityThreshold: 0.75,
			TieEpsilon:          1e-6,
		},
		Feed: FeedConfig{
			DefaultPageSize: 25,
			MaxPageSize:     100,
		},
		Reconcile: ReconcileConfig{Interval: 24 * time.Hour},
		Logger:    LoggerConfig{Level: "info"},
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch cfg.Embedding.Provider {
	case "ollama", "hash":
	default:
		return fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
	if cfg.Graph.CoOccurrenceWeight < 0 || cfg.Graph.SimilarityWeight < 0 {
		return fmt.Errorf("graph weights must be non-negative")
	}
	if sum := cfg.Graph.CoOccurrenceWeight + cfg.Graph.SimilarityWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("graph weights must sum to 1, got %v", sum)
	}
	if cfg.Graph.EvidenceCap < 1 {
		return fmt.Errorf("evidence cap must be at least 1")
	}
	if cfg.Arcs.SimilarityThreshold <= 0 || cfg.Arcs.SimilarityThreshold > 1 {
		return fmt.Errorf("arc similarity threshold must be in (0, 1], got %v", cfg.Arcs.SimilarityThreshold)
	}
	if cfg.Feed.DefaultPageSize < 1 || cfg.Feed.MaxPageSize < cfg.Feed.DefaultPageSize {
		return fmt.Errorf("invalid feed page sizes")
	}
	if cfg.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	return nil
}

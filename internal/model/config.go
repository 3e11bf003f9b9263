package model

import (
	"path/filepath"
	"time"
)

// Config is the full application configuration, loadable from YAML via viper
type Config struct {
	DataDir    string           `yaml:"data_dir" mapstructure:"data_dir"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Projection ProjectionConfig `yaml:"projection" mapstructure:"projection"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Evaluation EvalConfig       `yaml:"evaluation" mapstructure:"evaluation"`
	Sources    []SourceConfig   `yaml:"sources" mapstructure:"sources"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
}

// HTTPConfig holds shared transport settings
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// Timeout returns the transport timeout as a duration
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LedgerConfig configures the append-only fact store
type LedgerConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	SyncWrites bool   `yaml:"sync_writes" mapstructure:"sync_writes"`
}

// ProjectionConfig configures the denormalized read model
type ProjectionConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CrawlConfig bounds a crawl run
type CrawlConfig struct {
	BatchSize          int    `yaml:"batch_size" mapstructure:"batch_size"`
	Workers            int    `yaml:"workers" mapstructure:"workers"`
	MaxDepth           int    `yaml:"max_depth" mapstructure:"max_depth"`
	MaxEntries         int    `yaml:"max_entries" mapstructure:"max_entries"`
	AttemptCeiling     int    `yaml:"attempt_ceiling" mapstructure:"attempt_ceiling"`
	BackoffBaseSeconds int    `yaml:"backoff_base_seconds" mapstructure:"backoff_base_seconds"`
	CheckpointPath     string `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
}

// EvalConfig tunes the GPS evaluation engine
type EvalConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	Agent               string  `yaml:"agent" mapstructure:"agent"`
}

// SourceConfig configures one external source: its connector kind, router
// priority, and rate-limit budget
type SourceConfig struct {
	Name               string `yaml:"name" mapstructure:"name"`
	Kind               string `yaml:"kind" mapstructure:"kind"` // "api" or "scrape"
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	Priority           int    `yaml:"priority" mapstructure:"priority"` // Lower tries first
	MaxCalls           int    `yaml:"max_calls" mapstructure:"max_calls"`
	WindowSeconds      int    `yaml:"window_seconds" mapstructure:"window_seconds"`
	MinIntervalSeconds int    `yaml:"min_interval_seconds" mapstructure:"min_interval_seconds"`
	RetryCeiling       int    `yaml:"retry_ceiling" mapstructure:"retry_ceiling"`
	BackoffBaseSeconds int    `yaml:"backoff_base_seconds" mapstructure:"backoff_base_seconds"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds"`
}

// LLMConfig configures the optional LLM-backed evaluator/extractor
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // "openai" or "" (disabled)
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"-" mapstructure:"api_key"` // Never serialized back out
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	dataDir := ".lineage"
	return &Config{
		DataDir: dataDir,
		HTTP: HTTPConfig{
			TimeoutSeconds: 30,
			UserAgent:      "lineaged/0.1 (+https://github.com/thomasvincent/gps-genealogy-agents-sub002)",
		},
		Ledger: LedgerConfig{
			Path:       filepath.Join(dataDir, "ledger"),
			SyncWrites: true,
		},
		Projection: ProjectionConfig{
			Path: filepath.Join(dataDir, "projection.db"),
		},
		Crawl: CrawlConfig{
			BatchSize:          10,
			Workers:            4,
			MaxDepth:           6,
			MaxEntries:         500,
			AttemptCeiling:     3,
			BackoffBaseSeconds: 5,
			CheckpointPath:     filepath.Join(dataDir, "crawl-checkpoint.json"),
		},
		Evaluation: EvalConfig{
			ConfidenceThreshold: 0.7,
			MaxRetries:          2,
			Agent:               "gps-engine",
		},
		Sources: []SourceConfig{
			{
				Name:               "familysearch",
				Kind:               "api",
				BaseURL:            "https://api.familysearch.org",
				Priority:           1,
				MaxCalls:           30,
				WindowSeconds:      60,
				MinIntervalSeconds: 1,
				RetryCeiling:       3,
				BackoffBaseSeconds: 5,
				CacheTTLSeconds:    3600,
			},
			{
				Name:               "archives",
				Kind:               "scrape",
				BaseURL:            "https://www.archives.example",
				Priority:           2,
				MaxCalls:           10,
				WindowSeconds:      60,
				MinIntervalSeconds: 5,
				RetryCeiling:       3,
				BackoffBaseSeconds: 5,
				CacheTTLSeconds:    3600,
			},
		},
		LLM: LLMConfig{
			Provider:       "",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			MaxTokens:      2000,
		},
	}
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all process-wide settings. Loaded from config.yaml; every
// field has a default so a missing file yields a working configuration.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Ollama struct {
		BaseURL        string `yaml:"base_url"`
		EmbeddingModel string `yaml:"embedding_model"`
		ValidationModel string `yaml:"validation_model"`
	} `yaml:"ollama"`

	Dedup struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		TimeWindowHours     int     `yaml:"time_window_hours"`
		HashAlgorithm       string  `yaml:"hash_algorithm"` // sha256, md5, sha1
		TitleWeight         float64 `yaml:"title_weight"`
		ContentWeight       float64 `yaml:"content_weight"`
		EntityWeight        float64 `yaml:"entity_weight"`
		BatchSize           int     `yaml:"batch_size"`
		MaxCandidates       int     `yaml:"max_candidates"`
		MaxVocabularySize   int     `yaml:"max_vocabulary_size"`
		MaxDocTokens        int     `yaml:"max_doc_tokens"`
		VectorDimension     int     `yaml:"vector_dimension"`
		EmbedCacheSize      int     `yaml:"embed_cache_size"`
		LLMValidation       bool    `yaml:"llm_validation"`
	} `yaml:"dedup"`

	Fetch struct {
		MaxConcurrentFeeds int  `yaml:"max_concurrent_feeds"`
		ExtractFullContent bool `yaml:"extract_full_content"`
	} `yaml:"fetch"`

	Alerts struct {
		CooldownMinutes  int      `yaml:"cooldown_minutes"`
		MaxPerHour       int      `yaml:"max_per_hour"`
		TrustedSources   []string `yaml:"trusted_sources"`
		WebhookEnabled   bool     `yaml:"webhook_enabled"`
		WebhookURL       string   `yaml:"webhook_url"`
		SlackEnabled     bool     `yaml:"slack_enabled"`
		SlackWebhookURL  string   `yaml:"slack_webhook_url"`
		SlackChannel     string   `yaml:"slack_channel"`
		EmailEnabled     bool     `yaml:"email_enabled"`
		SMTPHost         string   `yaml:"smtp_host"`
		SMTPPort         int      `yaml:"smtp_port"`
		SMTPUser         string   `yaml:"smtp_user"`
		SMTPPassword     string   `yaml:"smtp_password"`
		EmailFrom        string   `yaml:"email_from"`
		EmailTo          []string `yaml:"email_to"`
	} `yaml:"alerts"`

	Retention struct {
		ArticleDays   int `yaml:"article_days"`
		ClusterDays   int `yaml:"cluster_days"`
		EmbeddingDays int `yaml:"embedding_days"`
		AlertDays     int `yaml:"alert_days"`
	} `yaml:"retention"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./newsdedup.db"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	cfg.Ollama.ValidationModel = "llama3"
	cfg.Dedup.SimilarityThreshold = 0.85
	cfg.Dedup.TimeWindowHours = 24
	cfg.Dedup.HashAlgorithm = "sha256"
	cfg.Dedup.TitleWeight = 0.4
	cfg.Dedup.ContentWeight = 0.4
	cfg.Dedup.EntityWeight = 0.2
	cfg.Dedup.BatchSize = 50
	cfg.Dedup.MaxCandidates = 50
	cfg.Dedup.MaxVocabularySize = 5000
	cfg.Dedup.MaxDocTokens = 1000
	cfg.Dedup.VectorDimension = 768
	cfg.Dedup.EmbedCacheSize = 1000
	cfg.Fetch.MaxConcurrentFeeds = 10
	cfg.Alerts.CooldownMinutes = 5
	cfg.Alerts.MaxPerHour = 20
	cfg.Alerts.SMTPPort = 587
	cfg.Retention.ArticleDays = 90
	cfg.Retention.ClusterDays = 7
	cfg.Retention.EmbeddingDays = 7
	cfg.Retention.AlertDays = 30
	return cfg
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; an invalid one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings. Called at startup; a failure here
// is fatal for the process.
func (c *Config) Validate() error {
	if c.Dedup.SimilarityThreshold < 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %.2f out of range [0,1]", c.Dedup.SimilarityThreshold)
	}
	if c.Dedup.TimeWindowHours < 1 || c.Dedup.TimeWindowHours > 168 {
		return fmt.Errorf("time_window_hours %d out of range [1,168]", c.Dedup.TimeWindowHours)
	}
	switch c.Dedup.HashAlgorithm {
	case "sha256", "md5", "sha1":
	default:
		return fmt.Errorf("hash_algorithm %q not one of sha256, md5, sha1", c.Dedup.HashAlgorithm)
	}
	if c.Fetch.MaxConcurrentFeeds < 1 || c.Fetch.MaxConcurrentFeeds > 50 {
		return fmt.Errorf("max_concurrent_feeds %d out of range [1,50]", c.Fetch.MaxConcurrentFeeds)
	}
	if c.Dedup.BatchSize < 1 || c.Dedup.BatchSize > 1000 {
		return fmt.Errorf("batch_size %d out of range [1,1000]", c.Dedup.BatchSize)
	}
	weightSum := c.Dedup.TitleWeight + c.Dedup.ContentWeight + c.Dedup.EntityWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("signal weights sum to %.3f, must sum to 1.0", weightSum)
	}
	if c.Alerts.MaxPerHour < 1 {
		return fmt.Errorf("max_per_hour must be >= 1, got %d", c.Alerts.MaxPerHour)
	}
	if c.Alerts.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must be >= 0, got %d", c.Alerts.CooldownMinutes)
	}
	if c.Alerts.WebhookEnabled && c.Alerts.WebhookURL == "" {
		return fmt.Errorf("webhook channel enabled but webhook_url is empty")
	}
	if c.Alerts.SlackEnabled && c.Alerts.SlackWebhookURL == "" {
		return fmt.Errorf("slack channel enabled but slack_webhook_url is empty")
	}
	if c.Alerts.EmailEnabled && (c.Alerts.SMTPHost == "" || len(c.Alerts.EmailTo) == 0) {
		return fmt.Errorf("email channel enabled but smtp_host or email_to is empty")
	}
	return nil
}

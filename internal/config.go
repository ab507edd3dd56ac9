package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Storage    StorageConfig     `yaml:"storage"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Llama      LlamaConfig       `yaml:"llama"`
	Search     SearchConfig      `yaml:"search"`
	Mail       MailConfig        `yaml:"mail"`
	Aggregator AggregatorConfig  `yaml:"aggregator"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Llama.Validate(); err != nil {
		return err
	}
	if err := c.Mail.Validate(); err != nil {
		return err
	}
	return c.Aggregator.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig holds the on-disk layout: uploaded documents, per-user
// vector indexes, the watched inbox, and the feed article staging area.
type StorageConfig struct {
	UploadsDir string `yaml:"uploads_dir"`
	IndexDir   string `yaml:"index_dir"`
	InboxDir   string `yaml:"inbox_dir"`
	StagingDir string `yaml:"staging_dir"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UploadsDir, validation.Required),
		validation.Field(&c.IndexDir, validation.Required),
		validation.Field(&c.InboxDir, validation.Required),
		validation.Field(&c.StagingDir, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration. The JWT secret signs all
// session tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.JWTSecret, validation.Required, validation.Length(16, 0)),
	)
}

// LlamaConfig holds the model server endpoints. Embedding and generation
// are required; reranking is optional and the query pipeline degrades to
// retrieval order without it.
type LlamaConfig struct {
	EmbeddingURL    string `yaml:"embedding_url"`
	EmbeddingModel  string `yaml:"embedding_model"`
	GenerationURL   string `yaml:"generation_url"`
	GenerationModel string `yaml:"generation_model"`
	RerankURL       string `yaml:"rerank_url"`
	RerankModel     string `yaml:"rerank_model"`
}

// Validate validates the llama configuration.
func (c *LlamaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.EmbeddingURL, validation.Required),
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.GenerationURL, validation.Required),
		validation.Field(&c.GenerationModel, validation.Required),
	)
}

// SearchConfig holds the web search fallback configuration. Both fields
// empty means web search is not configured and queries without local
// results get a fixed message instead.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
}

// MailConfig holds SMTP settings for admin notifications. An empty host
// disables mail.
type MailConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	AdminEmail string `yaml:"admin_email"`
}

// Validate validates the mail configuration.
func (c *MailConfig) Validate() error {
	if c.Host == "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.From, validation.Required),
		validation.Field(&c.AdminEmail, validation.Required),
	)
}

// AggregatorConfig holds the feed aggregation schedule.
type AggregatorConfig struct {
	Enabled       bool `yaml:"enabled"`
	IntervalHours int  `yaml:"interval_hours"`
}

// Interval returns the polling interval as a duration.
func (c *AggregatorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Validate validates the aggregator configuration.
func (c *AggregatorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.IntervalHours, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			UploadsDir: "./data/uploads",
			IndexDir:   "./data/indexes",
			InboxDir:   "./data/inbox",
			StagingDir: "./data/staging",
		},
		SQLite: SQLiteConfig{
			Path: "./data/mimir.db",
		},
		Llama: LlamaConfig{
			EmbeddingURL:    "http://localhost:8081/v1/embeddings",
			EmbeddingModel:  "nomic-embed-text",
			GenerationURL:   "http://localhost:8082/v1/chat/completions",
			GenerationModel: "qwen3",
			RerankURL:       "http://localhost:8083/v1/rerank",
			RerankModel:     "bge-reranker",
		},
		Mail: MailConfig{
			Port: 587,
		},
		Aggregator: AggregatorConfig{
			Enabled:       true,
			IntervalHours: 6,
		},
	}
}

// Package config provides configuration loading for ragd.
//
// Configuration is assembled from a YAML file, an optional .env file and
// environment variables. Everything the retrieval engine needs to reach its
// collaborators (embedding model, store endpoint, table, listen port) is
// required: a missing value fails startup rather than the first request.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

// Store providers.
const (
	StoreChromem  = "chromem"
	StoreQdrant   = "qdrant"
	StoreMilvus   = "milvus"
	StoreSQLite   = "sqlite"
	StoreSupabase = "supabase"
)

// Embedding providers.
const (
	EmbeddingsOpenAI    = "openai"
	EmbeddingsTEI       = "tei"
	EmbeddingsFastEmbed = "fastembed"
)

// ErrMissingRequired is returned when a required setting has no value.
var ErrMissingRequired = errors.New("missing required configuration")

// Config holds the complete ragd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Search        SearchConfig        `koanf:"search"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Store         StoreConfig         `koanf:"store"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultLimit int `koanf:"default_limit"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`

	// RateLimit is the sustained number of embedding calls per second.
	// Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Provider string         `koanf:"provider"`
	Table    string         `koanf:"table"`
	Chromem  ChromemConfig  `koanf:"chromem"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
	Milvus   MilvusConfig   `koanf:"milvus"`
	Supabase SupabaseConfig `koanf:"supabase"`
}

// ChromemConfig configures the embedded chromem store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// SQLiteConfig configures the sqlite-vec store.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// MilvusConfig configures the Milvus store.
type MilvusConfig struct {
	Address string `koanf:"address"`
	APIKey  Secret `koanf:"api_key"`
}

// SupabaseConfig configures the Supabase (PostgREST) store.
type SupabaseConfig struct {
	URL           string        `koanf:"url"`
	AnonKey       Secret        `koanf:"anon_key"`
	MatchFunction string        `koanf:"match_function"`
	Timeout       time.Duration `koanf:"timeout"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Embedding model is empty
//   - Default search limit is not positive
//   - Table name is empty or not a safe identifier
//   - The selected store is missing its endpoint or credentials
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("%w: server port (PORT)", ErrMissingRequired)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("invalid default search limit: %d (must be positive)", c.Search.DefaultLimit)
	}

	if err := c.Embeddings.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// Validate checks the embedding provider settings.
func (e EmbeddingsConfig) Validate() error {
	if e.Model == "" {
		return fmt.Errorf("%w: embedding model (OPENAI_MODEL)", ErrMissingRequired)
	}
	switch e.Provider {
	case EmbeddingsOpenAI:
		if !e.APIKey.IsSet() {
			return fmt.Errorf("%w: embedding API key (OPENAI_API_KEY)", ErrMissingRequired)
		}
	case EmbeddingsTEI:
		if e.BaseURL == "" {
			return fmt.Errorf("%w: embeddings base URL", ErrMissingRequired)
		}
	case EmbeddingsFastEmbed:
	default:
		return fmt.Errorf("unsupported embedding provider: %q", e.Provider)
	}
	if e.Dimension < 0 {
		return fmt.Errorf("invalid embedding dimension: %d", e.Dimension)
	}
	if e.RateLimit < 0 {
		return fmt.Errorf("invalid embedding rate limit: %v", e.RateLimit)
	}
	return nil
}

// Validate checks the store settings for the selected provider.
func (s StoreConfig) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("%w: table name (DOCUMENTS_TABLE)", ErrMissingRequired)
	}
	if err := sanitize.ValidateTableName(s.Table); err != nil {
		return err
	}

	switch s.Provider {
	case StoreChromem:
		if s.Chromem.Path == "" {
			return fmt.Errorf("%w: chromem path", ErrMissingRequired)
		}
	case StoreSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("%w: sqlite path", ErrMissingRequired)
		}
	case StoreQdrant:
		if s.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host", ErrMissingRequired)
		}
	case StoreMilvus:
		if s.Milvus.Address == "" {
			return fmt.Errorf("%w: milvus address", ErrMissingRequired)
		}
	case StoreSupabase:
		if s.Supabase.URL == "" {
			return fmt.Errorf("%w: supabase url (SUPABASE_URL)", ErrMissingRequired)
		}
		if !s.Supabase.AnonKey.IsSet() {
			return fmt.Errorf("%w: supabase key (SUPABASE_ANON_KEY)", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("unsupported store provider: %q", s.Provider)
	}
	return nil
}

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// legacyEnv maps the variable names used by earlier deployments of the RAG
// server onto config keys.
var legacyEnv = map[string]string{
	"OPENAI_MODEL":         "embeddings.model",
	"OPENAI_API_KEY":       "embeddings.api_key",
	"DEFAULT_SEARCH_LIMIT": "search.default_limit",
	"SUPABASE_URL":         "store.supabase.url",
	"SUPABASE_ANON_KEY":    "store.supabase.anon_key",
	"DOCUMENTS_TABLE":      "store.table",
	"PORT":                 "server.port",
}

// sections lists the top-level config keys reachable from the environment.
var sections = map[string]bool{
	"server":        true,
	"search":        true,
	"embeddings":    true,
	"store":         true,
	"logging":       true,
	"observability": true,
}

// storeProviders are the nested sections under store.
var storeProviders = []string{StoreChromem, StoreSQLite, StoreQdrant, StoreMilvus, StoreSupabase}

// Load loads the first .env file found (see FindEnvFile) and then the
// configuration from the default YAML path and the environment.
func Load() (*Config, error) {
	if _, err := LoadEnvFile(); err != nil {
		return nil, err
	}
	return LoadWithFile("")
}

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, STORE_SUPABASE_URL, OPENAI_MODEL, etc.)
//  2. YAML config file (~/.config/ragd/config.yaml)
//  3. Hardcoded defaults
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 or 0400 permissions.
//
// Path Validation: Only configuration files in allowed directories can be loaded:
//   - ~/.config/ragd/ (user's config directory)
//   - /etc/ragd/ (system-wide config directory)
//
// File Size Limit: Configuration files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Variables are split on the first underscore into section and field.
// Under store, a provider name prefix selects the nested section:
//
//	SERVER_PORT            -> server.port
//	EMBEDDINGS_PROVIDER    -> embeddings.provider
//	STORE_QDRANT_HOST      -> store.qdrant.host
//	STORE_TABLE            -> store.table
//
// The legacy names OPENAI_MODEL, OPENAI_API_KEY, DEFAULT_SEARCH_LIMIT,
// SUPABASE_URL, SUPABASE_ANON_KEY, DOCUMENTS_TABLE and PORT are also accepted.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ragd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if _, err := os.Stat(configPath); err == nil {
		// Validate through the open descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps an environment variable name to a config key. Variables that
// belong to no config section map to "" and are dropped.
func envKey(s string) string {
	if key, ok := legacyEnv[s]; ok {
		return key
	}

	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !sections[parts[0]] {
		return ""
	}
	section, field := parts[0], parts[1]

	if section == "store" {
		for _, p := range storeProviders {
			if rest, ok := strings.CutPrefix(field, p+"_"); ok {
				return section + "." + p + "." + rest
			}
		}
	}

	return section + "." + field
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ragd"),
		"/etc/ragd",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/ragd/ or /etc/ragd/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing optional fields. Required
// settings are left empty so Validate can reject them.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = EmbeddingsOpenAI
	}
	if cfg.Embeddings.Burst == 0 && cfg.Embeddings.RateLimit > 0 {
		cfg.Embeddings.Burst = 1
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = StoreChromem
	}
	if cfg.Store.Qdrant.Port == 0 {
		cfg.Store.Qdrant.Port = 6334
	}
	if cfg.Store.Supabase.MatchFunction == "" {
		cfg.Store.Supabase.MatchFunction = "match_documents"
	}
	if cfg.Store.Supabase.Timeout == 0 {
		cfg.Store.Supabase.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "ragd"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}

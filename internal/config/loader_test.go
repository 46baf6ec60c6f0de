package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and clears variables that would
// leak into the loader from the developer's shell.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"OPENAI_MODEL", "OPENAI_API_KEY", "DEFAULT_SEARCH_LIMIT",
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "DOCUMENTS_TABLE", "PORT",
		"SERVER_PORT", "STORE_PROVIDER", "STORE_TABLE", "EMBEDDINGS_PROVIDER",
		"EMBEDDINGS_MODEL", "EMBEDDINGS_API_KEY", "STORE_CHROMEM_PATH",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return home
}

func writeConfig(t *testing.T, home, content string) string {
	t.Helper()

	dir := filepath.Join(home, ".config", "ragd")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

const validYAML = `server:
  port: 8050
search:
  default_limit: 7
embeddings:
  provider: openai
  model: text-embedding-3-small
  api_key: sk-yaml
store:
  provider: chromem
  table: documents
  chromem:
    path: /tmp/ragd-test
`

func TestLoadWithFile_ValidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, validYAML)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 8050 {
		t.Errorf("Server.Port = %d, want 8050", cfg.Server.Port)
	}
	if cfg.Search.DefaultLimit != 7 {
		t.Errorf("Search.DefaultLimit = %d, want 7", cfg.Search.DefaultLimit)
	}
	if cfg.Embeddings.APIKey.Value() != "sk-yaml" {
		t.Errorf("Embeddings.APIKey not loaded")
	}
	if cfg.Store.Chromem.Path != "/tmp/ragd-test" {
		t.Errorf("Store.Chromem.Path = %q, want /tmp/ragd-test", cfg.Store.Chromem.Path)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want default 10s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, validYAML)

	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("STORE_CHROMEM_PATH", "/tmp/from-env")
	t.Setenv("EMBEDDINGS_MODEL", "text-embedding-3-large")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env override)", cfg.Server.Port)
	}
	if cfg.Store.Chromem.Path != "/tmp/from-env" {
		t.Errorf("Store.Chromem.Path = %q, want /tmp/from-env", cfg.Store.Chromem.Path)
	}
	if cfg.Embeddings.Model != "text-embedding-3-large" {
		t.Errorf("Embeddings.Model = %q, want text-embedding-3-large", cfg.Embeddings.Model)
	}
}

func TestLoadWithFile_LegacyEnvironment(t *testing.T) {
	setupTestHome(t)

	t.Setenv("OPENAI_MODEL", "text-embedding-3-small")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("DOCUMENTS_TABLE", "documents")
	t.Setenv("PORT", "8050")
	t.Setenv("STORE_PROVIDER", "supabase")

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Store.Supabase.URL != "https://example.supabase.co" {
		t.Errorf("Store.Supabase.URL = %q", cfg.Store.Supabase.URL)
	}
	if cfg.Store.Supabase.AnonKey.Value() != "anon" {
		t.Errorf("Store.Supabase.AnonKey not loaded")
	}
	if cfg.Store.Supabase.MatchFunction != "match_documents" {
		t.Errorf("Store.Supabase.MatchFunction = %q, want match_documents", cfg.Store.Supabase.MatchFunction)
	}
	if cfg.Search.DefaultLimit != 5 {
		t.Errorf("Search.DefaultLimit = %d, want 5", cfg.Search.DefaultLimit)
	}
	if cfg.Server.Port != 8050 {
		t.Errorf("Server.Port = %d, want 8050", cfg.Server.Port)
	}
}

func TestLoadWithFile_MissingRequired(t *testing.T) {
	setupTestHome(t)

	// Nothing configured: the port is the first required setting checked.
	_, err := LoadWithFile("")
	if err == nil {
		t.Fatal("LoadWithFile() error = nil, want missing required configuration")
	}
	if !errors.Is(err, ErrMissingRequired) {
		t.Errorf("error = %v, want ErrMissingRequired", err)
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	home := setupTestHome(t)
	path := writeConfig(t, home, validYAML)
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if _, err := LoadWithFile(path); err == nil {
		t.Error("LoadWithFile() accepted a world-readable config file")
	}
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	outside := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(outside, []byte(validYAML), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadWithFile(outside); err == nil {
		t.Error("LoadWithFile() accepted a path outside ~/.config/ragd and /etc/ragd")
	}
}

func TestValidateConfigPath_RejectsSiblingPrefix(t *testing.T) {
	home := setupTestHome(t)

	if err := validateConfigPath(filepath.Join(home, ".config", "ragd-evil", "config.yaml")); err == nil {
		t.Error("validateConfigPath() accepted a sibling directory sharing the prefix")
	}
	if err := validateConfigPath(filepath.Join(home, ".config", "ragd", "config.yaml")); err != nil {
		t.Errorf("validateConfigPath() error = %v, want nil", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"EMBEDDINGS_API_KEY", "embeddings.api_key"},
		{"STORE_TABLE", "store.table"},
		{"STORE_QDRANT_USE_TLS", "store.qdrant.use_tls"},
		{"STORE_SUPABASE_MATCH_FUNCTION", "store.supabase.match_function"},
		{"OPENAI_MODEL", "embeddings.model"},
		{"DOCUMENTS_TABLE", "store.table"},
		{"PORT", "server.port"},
		{"PATH", ""},
		{"HOME", ""},
		{"GOPATH_EXTRA", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := envKey(tt.in); got != tt.want {
				t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindEnvFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a", ".env")
	second := filepath.Join(dir, "b", ".env")
	if err := os.MkdirAll(filepath.Dir(second), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("PORT=8050\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if got := FindEnvFile([]string{first, second}); got != second {
		t.Errorf("FindEnvFile() = %q, want %q", got, second)
	}
	if got := FindEnvFile([]string{first}); got != "" {
		t.Errorf("FindEnvFile() = %q, want empty", got)
	}
}

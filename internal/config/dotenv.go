package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFileCandidates returns the locations searched for a .env file, in
// order: the working directory, the executable's directory and its parent.
func EnvFileCandidates() []string {
	var candidates []string
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, ".env"))
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, ".env"),
			filepath.Join(filepath.Dir(dir), ".env"),
		)
	}
	return candidates
}

// FindEnvFile returns the first existing file among candidates, or "".
func FindEnvFile(candidates []string) string {
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadEnvFile loads the first .env file found into the process environment.
// Variables already set in the environment are not overridden. It returns
// the path loaded, or "" when no file was found.
func LoadEnvFile() (string, error) {
	path := FindEnvFile(EnvFileCandidates())
	if path == "" {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return path, nil
}

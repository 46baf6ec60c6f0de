package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/sanitize"
)

// SQLiteConfig configures the sqlite-vec store.
type SQLiteConfig struct {
	// Path is the database file. sanitize.MemoryPath opens a private
	// in-memory database.
	Path      string
	Table     string
	Dimension int
}

// Validate checks the configuration.
func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := sanitize.ValidateTableName(c.Table); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

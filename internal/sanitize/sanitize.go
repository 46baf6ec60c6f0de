// Package sanitize validates identifiers and filesystem paths that reach the
// vector stores.
//
// Table (collection) names are interpolated into SQL for sqlite-vec and into
// PostgREST URLs for Supabase, so they must match: ^[A-Za-z_][A-Za-z0-9_]{0,62}$
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxTableNameLength is the longest table name accepted. Postgres truncates
// identifiers at 63 bytes.
const MaxTableNameLength = 63

// ErrInvalidTableName indicates a table or collection name is unsafe.
var ErrInvalidTableName = errors.New("invalid table name")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTableName checks that name can be used verbatim as a table or
// collection name in every supported store.
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTableName)
	}
	if len(name) > MaxTableNameLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrInvalidTableName, len(name), MaxTableNameLength)
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter or underscore and contain only letters, digits and underscores", ErrInvalidTableName, name)
	}
	return nil
}

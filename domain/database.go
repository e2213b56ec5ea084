package domain

import "fmt"

// MaxNameLength is the identifier length limit imposed by MySQL-compatible
// catalogs.
const MaxNameLength = 64

// Database represents a database entity
type Database struct {
	Name string
}

// NewDatabase creates a new Database instance
func NewDatabase(name string) *Database {
	return &Database{
		Name: name,
	}
}

// ValidateName checks that name is usable as a database identifier without
// quoting tricks: non-empty, at most MaxNameLength bytes, characters limited
// to [0-9a-zA-Z$_].
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("database name must not be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("database name %q exceeds %d characters", name, MaxNameLength)
	}
	for _, c := range []byte(name) {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '$' || c == '_':
		default:
			return fmt.Errorf("database name %q contains invalid character %q", name, string(c))
		}
	}
	return nil
}

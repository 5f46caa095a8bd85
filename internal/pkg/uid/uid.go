// Package uid provides identifier generators used across the application.
package uid

// NumberID generates numeric identifiers (database primary keys).
type NumberID interface {
	// Generate returns a new int64 identifier.
	Generate() int64
}

// StringID generates string identifiers (tokens, correlation ids).
type StringID interface {
	// Generate returns a new string identifier.
	Generate() string
}

package settings

import (
	"errors"
	"fmt"
	"unicode"
)

// MaxAPIKeyLength bounds the size of a stored key
const MaxAPIKeyLength = 512

var (
	// ErrInvalidAPIKey is wrapped by every ValidateAPIKey failure
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// ValidateAPIKey checks that key can travel in an HTTP header: non-empty,
// at most MaxAPIKeyLength bytes, printable and free of whitespace.
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidAPIKey)
	}
	if len(key) > MaxAPIKeyLength {
		return fmt.Errorf("%w: key is longer than %d bytes", ErrInvalidAPIKey, MaxAPIKeyLength)
	}
	for i, r := range key {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: unsupported character at position %d", ErrInvalidAPIKey, i)
		}
	}
	return nil
}

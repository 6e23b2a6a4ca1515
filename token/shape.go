package token

import (
	"errors"
	"strings"
)

// DefaultMaxBytes is the canonical upper bound for a token carried in an
// Authorization header.
const DefaultMaxBytes = 6000

var (
	// ErrEmpty is returned when the token is empty after trimming.
	ErrEmpty = errors.New("token empty")
	// ErrMalformed is returned when the token does not have three segments or carries CR/LF.
	ErrMalformed = errors.New("token malformed")
	// ErrOversized is returned when a well-formed token exceeds the header budget.
	ErrOversized = errors.New("token exceeds header size limit")
)

// Check reports why raw cannot be sent as a bearer token, or nil when it can.
// Shape problems take precedence over size: an oversized malformed token
// yields ErrMalformed. maxBytes <= 0 disables the size check.
func Check(raw string, maxBytes int) error {
	if err := checkShape(raw); err != nil {
		return err
	}
	if !Fits(raw, maxBytes) {
		return ErrOversized
	}
	return nil
}

// WellFormed reports whether raw passes the shape rules, ignoring size.
func WellFormed(raw string) bool {
	return checkShape(raw) == nil
}

// Fits reports whether raw is within maxBytes. maxBytes <= 0 means unbounded.
func Fits(raw string, maxBytes int) bool {
	return maxBytes <= 0 || len(raw) <= maxBytes
}

func checkShape(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmpty
	}
	// header injection guard
	if strings.ContainsAny(raw, "\r\n") {
		return ErrMalformed
	}
	if strings.Count(raw, ".") != 2 {
		return ErrMalformed
	}
	return nil
}

// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValidID reports whether id is a UUID string.
func IsValidID(id string) bool {
	return uuidRegex.MatchString(id)
}

// NormalizeID trims and lowercases an identifier.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ParseID normalizes and validates an identifier, returning a validation
// error tagged with the given domain and field.
func ParseID(domain, field, raw string) (string, error) {
	id := NormalizeID(raw)
	if id == "" {
		return "", NewDomainError(domain, "Validate", ErrEmptyValue, field+" is required")
	}
	if !IsValidID(id) {
		return "", NewDomainError(domain, "Validate", ErrInvalidID, "invalid "+field+" format")
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Clock
// ═══════════════════════════════════════════════════════════════════════════

// Clock returns the current time. Aggregates and services accept one so tests
// can pin timestamps.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Now returns c() or the system time when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}

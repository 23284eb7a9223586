package store

import (
	"regexp"
	"strings"
)

const maxNameLength = 64

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	trimDashesRe = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeName converts a user-provided connection name into its stored
// form:
//   - Whitespace runs collapse to a single "-"
//   - Leading/trailing dashes stripped
//   - Max 64 chars
//
// Returns "" when nothing usable remains; callers treat that as invalid.
func NormalizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}

	result := whitespaceRe.ReplaceAllString(trimmed, "-")
	result = trimDashesRe.ReplaceAllString(result, "")

	if len(result) > maxNameLength {
		result = result[:maxNameLength]
	}

	return result
}

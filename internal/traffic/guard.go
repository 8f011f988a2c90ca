package traffic

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lueurxax/maritime-claim-validator/internal/core/errors"
)

var (
	forbiddenKeyword = regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|TRUNCATE)\b`)
	leadingKeyword   = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
	lineComment      = regexp.MustCompile(`--[^\n]*`)
	blockComment     = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// ValidateReadOnly accepts a single SELECT or WITH statement that mentions
// none of the data-modifying keywords and returns it without comments or a
// trailing semicolon.
func ValidateReadOnly(sql string) (string, error) {
	stmt := blockComment.ReplaceAllString(sql, " ")
	stmt = lineComment.ReplaceAllString(stmt, " ")
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \t\n"))

	if stmt == "" {
		return "", fmt.Errorf("empty query: %w", errors.ErrInvalidInput)
	}

	if strings.Contains(stmt, ";") {
		return "", fmt.Errorf("multiple statements: %w", errors.ErrReadOnlyViolation)
	}

	if !leadingKeyword.MatchString(stmt) {
		return "", fmt.Errorf("only SELECT queries are allowed: %w", errors.ErrReadOnlyViolation)
	}

	if m := forbiddenKeyword.FindString(stmt); m != "" {
		return "", fmt.Errorf("query contains forbidden operation %s: %w", strings.ToUpper(m), errors.ErrReadOnlyViolation)
	}

	return stmt, nil
}

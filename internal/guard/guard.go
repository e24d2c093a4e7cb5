// Package guard lexically validates model-produced SQL before execution.
// It never parses or plans a query: the checks are string-level only, which
// keeps them dialect-agnostic and fast but means they must run on text with
// string literals already neutralized.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

var blockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "EXEC", "EXECUTE", "COPY",
}

var (
	literalPattern = regexp.MustCompile(`'[^']*'`)
	keywordPattern = regexp.MustCompile(`\b(` + strings.Join(blockedKeywords, "|") + `)\b`)
	limitPattern   = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)
)

type Options struct {
	// AllowWrites disables every check. Reserved for operator tooling that
	// explicitly opts out of the read-only contract.
	AllowWrites bool
}

// ValidationError reports why a query was rejected and carries the SQL so
// callers can surface it without re-threading the statement.
type ValidationError struct {
	Reason string
	SQL    string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate rejects statements that are not a single read query. Checks run
// in a fixed order: statement shape, then statement count, then blocked
// keywords. Single-quoted literals are replaced with a placeholder before
// the latter two so quoted text cannot trigger a rejection.
func Validate(sql string, opts Options) error {
	if opts.AllowWrites {
		return nil
	}

	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return &ValidationError{
			Reason: "Only read queries (SELECT or WITH) are allowed",
			SQL:    sql,
		}
	}

	stripped := strings.TrimSpace(literalPattern.ReplaceAllString(trimmed, "'?'"))
	if idx := strings.Index(stripped, ";"); idx >= 0 && idx != len(stripped)-1 {
		return &ValidationError{
			Reason: "Multiple statements are not allowed",
			SQL:    sql,
		}
	}

	if kw := keywordPattern.FindString(strings.ToUpper(stripped)); kw != "" {
		return &ValidationError{
			Reason: fmt.Sprintf("%s operations are not allowed", kw),
			SQL:    sql,
		}
	}
	return nil
}

// EnsureLimit appends a LIMIT clause unless the query already has one.
// Trailing statement terminators are dropped first so the clause lands on
// the statement itself. Applying EnsureLimit twice is a no-op.
func EnsureLimit(sql string, maxRows int) string {
	trimmed := strings.TrimSpace(sql)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	if limitPattern.MatchString(trimmed) {
		return trimmed
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows)
}

// Package db defines the database adapter contract shared by the dialect
// drivers under db/postgres, db/mysql, db/sqlite, and db/duckdb.
package db

import (
	"context"
	"fmt"
	"strings"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

// ParseDialect maps user-facing dialect names and common aliases onto the
// canonical constants.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "duckdb":
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", value)
	}
}

// Column is one introspected column, ordered by table then ordinal position.
type Column struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Type   string `json:"type"`
}

// Result is the outcome of one executed query. Rows hold driver values with
// []byte already normalized to string.
type Result struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// Adapter is the capability set every dialect driver implements. Connections
// are opened lazily on first use; Close is safe to call at any point,
// including before the first query.
type Adapter interface {
	Dialect() Dialect

	// DefaultSchema is the schema queries target when none is configured:
	// "public" for postgres, the database name for mysql, "main" for sqlite
	// and duckdb.
	DefaultSchema() string

	// Execute runs a single read query. When schema differs from the
	// default, the session schema context is switched first.
	Execute(ctx context.Context, sql, schema string) (Result, error)

	// RawQuery runs an arbitrary statement without schema switching and
	// returns rows as column-keyed records. It bypasses validation and is
	// reserved for operator tooling.
	RawQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error)

	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
	Columns(ctx context.Context, schema string) ([]Column, error)

	Close() error
}

// DatabaseError wraps a driver failure with the dialect and the operation
// that failed.
type DatabaseError struct {
	Dialect Dialect
	Op      string
	Err     error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Dialect, e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// WrapError tags err with the dialect and operation. A nil err passes
// through untouched.
func WrapError(dialect Dialect, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Dialect: dialect, Op: op, Err: err}
}

// SchemaText renders the introspected columns of one schema as the compact
// text handed to the model: one line per table, tables in first-seen order,
// columns in the order the adapter returned them.
//
//	users(id integer, email text)
//	orders(id integer, user_id integer, total numeric)
func SchemaText(ctx context.Context, a Adapter, schema string) (string, error) {
	columns, err := a.Columns(ctx, schema)
	if err != nil {
		return "", fmt.Errorf("introspect schema %q: %w", schema, err)
	}

	order := make([]string, 0)
	grouped := make(map[string][]Column)
	for _, col := range columns {
		if _, seen := grouped[col.Table]; !seen {
			order = append(order, col.Table)
		}
		grouped[col.Table] = append(grouped[col.Table], col)
	}

	var b strings.Builder
	for i, table := range order {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(table)
		b.WriteByte('(')
		for j, col := range grouped[table] {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Column)
			b.WriteByte(' ')
			b.WriteString(col.Type)
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}

// SanitizeSchemaName strips every character outside [A-Za-z0-9_-] so schema
// names can be spliced into session statements that do not support
// placeholders.
func SanitizeSchemaName(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// QuoteIdent double-quotes an identifier for dialects in the postgres
// family.
func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

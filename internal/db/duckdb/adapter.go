// Package duckdb implements the database adapter for DuckDB files and
// in-memory databases.
package duckdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askdb/askdb/internal/db"
)

const defaultSchema = "main"

type Config struct {
	// Path is the database file; empty opens an in-memory database.
	Path         string
	QueryTimeout time.Duration
}

type Adapter struct {
	pool *db.Pool
}

func New(cfg Config) (*Adapter, error) {
	return &Adapter{
		pool: db.NewPool(db.PoolConfig{
			Driver: "duckdb",
			DSN:    normalizePath(cfg.Path),
			// DuckDB files take a single writer process; one pooled
			// connection also keeps in-memory databases stable.
			MaxOpenConns: 1,
			QueryTimeout: cfg.QueryTimeout,
		}),
	}, nil
}

func normalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "duckdb://")
	if raw == ":memory:" {
		return ""
	}
	return raw
}

func (a *Adapter) Dialect() db.Dialect { return db.DialectDuckDB }

func (a *Adapter) DefaultSchema() string { return defaultSchema }

func (a *Adapter) Execute(ctx context.Context, sqlText, schema string) (db.Result, error) {
	var setup []string
	if schema = db.SanitizeSchemaName(schema); schema != "" && schema != defaultSchema {
		setup = append(setup, fmt.Sprintf("USE %s", db.QuoteIdent(schema)))
	}
	result, err := a.pool.QuerySessionResult(ctx, setup, sqlText)
	if err != nil {
		return db.Result{}, db.WrapError(db.DialectDuckDB, "execute query", err)
	}
	return result, nil
}

func (a *Adapter) RawQuery(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	records, err := a.pool.QueryRecords(ctx, sqlText, args...)
	if err != nil {
		return nil, db.WrapError(db.DialectDuckDB, "raw query", err)
	}
	return records, nil
}

func (a *Adapter) ListSchemas(ctx context.Context) ([]string, error) {
	schemas, err := a.pool.QueryStrings(ctx, `
SELECT schema_name
FROM information_schema.schemata
WHERE schema_name NOT IN ('information_schema', 'pg_catalog')
ORDER BY schema_name`)
	if err != nil {
		return nil, db.WrapError(db.DialectDuckDB, "list schemas", err)
	}
	return schemas, nil
}

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	tables, err := a.pool.QueryStrings(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = ? AND table_type = 'BASE TABLE'
ORDER BY table_name`, targetSchema(schema))
	if err != nil {
		return nil, db.WrapError(db.DialectDuckDB, "list tables", err)
	}
	return tables, nil
}

func (a *Adapter) Columns(ctx context.Context, schema string) ([]db.Column, error) {
	columns, err := a.pool.QueryColumns(ctx, `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = ?
ORDER BY table_name, ordinal_position`, targetSchema(schema))
	if err != nil {
		return nil, db.WrapError(db.DialectDuckDB, "introspect columns", err)
	}
	return columns, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return db.WrapError(db.DialectDuckDB, "ping", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.pool.Close()
}

func targetSchema(schema string) string {
	if schema = db.SanitizeSchemaName(schema); schema == "" {
		return defaultSchema
	}
	return schema
}

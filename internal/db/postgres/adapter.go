// Package postgres implements the database adapter for PostgreSQL via the
// pgx stdlib driver.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/db"
)

const defaultSchema = "public"

type Config struct {
	URL          string
	PoolSize     int
	QueryTimeout time.Duration
}

type Adapter struct {
	pool *db.Pool
}

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}
	return &Adapter{
		pool: db.NewPool(db.PoolConfig{
			Driver:       "pgx",
			DSN:          cfg.URL,
			MaxOpenConns: cfg.PoolSize,
			QueryTimeout: cfg.QueryTimeout,
		}),
	}, nil
}

func (a *Adapter) Dialect() db.Dialect { return db.DialectPostgres }

func (a *Adapter) DefaultSchema() string { return defaultSchema }

func (a *Adapter) Execute(ctx context.Context, sqlText, schema string) (db.Result, error) {
	var setup []string
	if schema = db.SanitizeSchemaName(schema); schema != "" && schema != defaultSchema {
		setup = append(setup, fmt.Sprintf("SET search_path TO %s", db.QuoteIdent(schema)))
	}
	result, err := a.pool.QuerySessionResult(ctx, setup, sqlText)
	if err != nil {
		return db.Result{}, db.WrapError(db.DialectPostgres, "execute query", err)
	}
	return result, nil
}

func (a *Adapter) RawQuery(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	records, err := a.pool.QueryRecords(ctx, sqlText, args...)
	if err != nil {
		return nil, db.WrapError(db.DialectPostgres, "raw query", err)
	}
	return records, nil
}

func (a *Adapter) ListSchemas(ctx context.Context) ([]string, error) {
	schemas, err := a.pool.QueryStrings(ctx, `
SELECT schema_name
FROM information_schema.schemata
WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
ORDER BY schema_name`)
	if err != nil {
		return nil, db.WrapError(db.DialectPostgres, "list schemas", err)
	}
	return schemas, nil
}

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	schema = targetSchema(schema)
	tables, err := a.pool.QueryStrings(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`, schema)
	if err != nil {
		return nil, db.WrapError(db.DialectPostgres, "list tables", err)
	}
	return tables, nil
}

func (a *Adapter) Columns(ctx context.Context, schema string) ([]db.Column, error) {
	schema = targetSchema(schema)
	columns, err := a.pool.QueryColumns(ctx, `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`, schema)
	if err != nil {
		return nil, db.WrapError(db.DialectPostgres, "introspect columns", err)
	}
	return columns, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return db.WrapError(db.DialectPostgres, "ping", err)
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

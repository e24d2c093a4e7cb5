// Package sqlite implements the database adapter for SQLite files via the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/askdb/askdb/internal/db"
)

const defaultSchema = "main"

type Config struct {
	// Path accepts a filesystem path, a sqlite:// URL, a file: URI, or
	// :memory:.
	Path         string
	QueryTimeout time.Duration
}

type Adapter struct {
	pool *db.Pool
}

func New(cfg Config) (*Adapter, error) {
	dsn := normalizePath(cfg.Path)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	return &Adapter{
		pool: db.NewPool(db.PoolConfig{
			Driver: "sqlite",
			DSN:    dsn,
			// SQLite allows one writer; a single pooled connection also
			// keeps :memory: databases stable across queries.
			MaxOpenConns: 1,
			QueryTimeout: cfg.QueryTimeout,
		}),
	}, nil
}

func normalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "sqlite://"):
		return strings.TrimPrefix(raw, "sqlite://")
	case strings.HasPrefix(raw, "sqlite:"):
		return strings.TrimPrefix(raw, "sqlite:")
	default:
		return raw
	}
}

func (a *Adapter) Dialect() db.Dialect { return db.DialectSQLite }

func (a *Adapter) DefaultSchema() string { return defaultSchema }

// Execute ignores the schema argument: a SQLite file holds a single schema,
// so there is no session context to switch.
func (a *Adapter) Execute(ctx context.Context, sqlText, schema string) (db.Result, error) {
	result, err := a.pool.QuerySessionResult(ctx, nil, sqlText)
	if err != nil {
		return db.Result{}, db.WrapError(db.DialectSQLite, "execute query", err)
	}
	return result, nil
}

func (a *Adapter) RawQuery(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	records, err := a.pool.QueryRecords(ctx, sqlText, args...)
	if err != nil {
		return nil, db.WrapError(db.DialectSQLite, "raw query", err)
	}
	return records, nil
}

func (a *Adapter) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{defaultSchema}, nil
}

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	tables, err := a.pool.QueryStrings(ctx, `
SELECT name
FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, db.WrapError(db.DialectSQLite, "list tables", err)
	}
	return tables, nil
}

func (a *Adapter) Columns(ctx context.Context, schema string) ([]db.Column, error) {
	columns, err := a.pool.QueryColumns(ctx, `
SELECT m.name, p.name, p.type
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`)
	if err != nil {
		return nil, db.WrapError(db.DialectSQLite, "introspect columns", err)
	}
	return columns, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return db.WrapError(db.DialectSQLite, "ping", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.pool.Close()
}

// Package mysql implements the database adapter for MySQL and MariaDB via
// the go-sql-driver.
package mysql

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/askdb/askdb/internal/db"
)

type Config struct {
	URL          string
	PoolSize     int
	QueryTimeout time.Duration
}

type Adapter struct {
	pool          *db.Pool
	defaultSchema string
}

func New(cfg Config) (*Adapter, error) {
	dsn, dbName, err := parseTarget(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		pool: db.NewPool(db.PoolConfig{
			Driver:       "mysql",
			DSN:          dsn,
			MaxOpenConns: cfg.PoolSize,
			QueryTimeout: cfg.QueryTimeout,
		}),
		defaultSchema: dbName,
	}, nil
}

// parseTarget accepts either a mysql:// URL or a native go-sql-driver DSN
// and returns the DSN plus the database name it targets.
func parseTarget(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("mysql URL is required")
	}

	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql URL: %w", err)
		}
		cfg := mysql.NewConfig()
		cfg.User = parsed.User.Username()
		if password, ok := parsed.User.Password(); ok {
			cfg.Passwd = password
		}
		cfg.Net = "tcp"
		cfg.Addr = parsed.Host
		cfg.DBName = strings.TrimPrefix(parsed.Path, "/")
		cfg.ParseTime = true
		if query := parsed.Query(); len(query) > 0 {
			cfg.Params = make(map[string]string, len(query))
			for key, values := range query {
				if len(values) > 0 {
					cfg.Params[key] = values[0]
				}
			}
		}
		return cfg.FormatDSN(), cfg.DBName, nil
	}

	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), cfg.DBName, nil
}

func (a *Adapter) Dialect() db.Dialect { return db.DialectMySQL }

func (a *Adapter) DefaultSchema() string { return a.defaultSchema }

func (a *Adapter) Execute(ctx context.Context, sqlText, schema string) (db.Result, error) {
	var setup []string
	if schema = db.SanitizeSchemaName(schema); schema != "" && schema != a.defaultSchema {
		setup = append(setup, "USE "+quoteIdent(schema))
	}
	result, err := a.pool.QuerySessionResult(ctx, setup, sqlText)
	if err != nil {
		return db.Result{}, db.WrapError(db.DialectMySQL, "execute query", err)
	}
	return result, nil
}

func (a *Adapter) RawQuery(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	records, err := a.pool.QueryRecords(ctx, sqlText, args...)
	if err != nil {
		return nil, db.WrapError(db.DialectMySQL, "raw query", err)
	}
	return records, nil
}

func (a *Adapter) ListSchemas(ctx context.Context) ([]string, error) {
	schemas, err := a.pool.QueryStrings(ctx, `
SELECT schema_name
FROM information_schema.schemata
WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
ORDER BY schema_name`)
	if err != nil {
		return nil, db.WrapError(db.DialectMySQL, "list schemas", err)
	}
	return schemas, nil
}

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	tables, err := a.pool.QueryStrings(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = ? AND table_type = 'BASE TABLE'
ORDER BY table_name`, a.targetSchema(schema))
	if err != nil {
		return nil, db.WrapError(db.DialectMySQL, "list tables", err)
	}
	return tables, nil
}

func (a *Adapter) Columns(ctx context.Context, schema string) ([]db.Column, error) {
	columns, err := a.pool.QueryColumns(ctx, `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = ?
ORDER BY table_name, ordinal_position`, a.targetSchema(schema))
	if err != nil {
		return nil, db.WrapError(db.DialectMySQL, "introspect columns", err)
	}
	return columns, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return db.WrapError(db.DialectMySQL, "ping", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.pool.Close()
}

func (a *Adapter) targetSchema(schema string) string {
	if schema = db.SanitizeSchemaName(schema); schema == "" {
		return a.defaultSchema
	}
	return schema
}

func quoteIdent(value string) string {
	return "`" + strings.ReplaceAll(value, "`", "``") + "`"
}

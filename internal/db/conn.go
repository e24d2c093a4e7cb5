package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// PoolConfig tunes the database/sql pool shared by all dialect drivers.
type PoolConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// Pool opens a database/sql handle on first use. Concurrent first uses share
// one in-flight open; Close is idempotent and a no-op when nothing was ever
// opened.
type Pool struct {
	cfg PoolConfig

	once sync.Once
	db   *sql.DB
	err  error

	mu     sync.Mutex
	closed bool
}

func NewPool(cfg PoolConfig) *Pool {
	return &Pool{cfg: cfg}
}

func (p *Pool) open() {
	handle, err := sql.Open(p.cfg.Driver, p.cfg.DSN)
	if err != nil {
		p.err = fmt.Errorf("open %s: %w", p.cfg.Driver, err)
		return
	}
	if p.cfg.MaxOpenConns > 0 {
		handle.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}
	if p.cfg.MaxIdleConns > 0 {
		handle.SetMaxIdleConns(p.cfg.MaxIdleConns)
	}
	if p.cfg.ConnMaxIdleTime > 0 {
		handle.SetConnMaxIdleTime(p.cfg.ConnMaxIdleTime)
	}
	if p.cfg.ConnMaxLifetime > 0 {
		handle.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
	}
	p.db = handle
}

// DB returns the lazily opened handle.
func (p *Pool) DB() (*sql.DB, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}

	p.once.Do(p.open)
	if p.err != nil {
		return nil, p.err
	}
	return p.db, nil
}

// ExecContext applies the pool's statement timeout and runs the statement.
func (p *Pool) ExecContext(ctx context.Context, query string, args ...any) error {
	handle, err := p.DB()
	if err != nil {
		return err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err = handle.ExecContext(ctx, query, args...)
	return err
}

func (p *Pool) Ping(ctx context.Context) error {
	handle, err := p.DB()
	if err != nil {
		return err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return handle.PingContext(ctx)
}

// QueryResult runs the query under the statement timeout and drains every
// row into a Result.
func (p *Pool) QueryResult(ctx context.Context, query string, args ...any) (Result, error) {
	var result Result
	err := p.query(ctx, query, args, func(rows *sql.Rows) error {
		var err error
		result, err = CollectResult(rows)
		return err
	})
	return result, err
}

// QueryRecords runs the query and drains rows as column-keyed records.
func (p *Pool) QueryRecords(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	var records []map[string]any
	err := p.query(ctx, query, args, func(rows *sql.Rows) error {
		var err error
		records, err = CollectRecords(rows)
		return err
	})
	return records, err
}

// QueryStrings runs a single-column query and drains non-NULL values.
func (p *Pool) QueryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	var values []string
	err := p.query(ctx, query, args, func(rows *sql.Rows) error {
		var err error
		values, err = CollectStrings(rows)
		return err
	})
	return values, err
}

// QueryColumns runs a (table, column, type) query and drains the rows.
func (p *Pool) QueryColumns(ctx context.Context, query string, args ...any) ([]Column, error) {
	var columns []Column
	err := p.query(ctx, query, args, func(rows *sql.Rows) error {
		var err error
		columns, err = CollectColumns(rows)
		return err
	})
	return columns, err
}

// QuerySessionResult pins one connection, applies the setup statements on
// it, then runs the query on the same connection so session-scoped settings
// (search_path, USE) hold for the query.
func (p *Pool) QuerySessionResult(ctx context.Context, setup []string, query string, args ...any) (Result, error) {
	handle, err := p.DB()
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	conn, err := handle.Conn(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for _, stmt := range setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return Result{}, fmt.Errorf("apply session setup: %w", err)
		}
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()
	return CollectResult(rows)
}

func (p *Pool) query(ctx context.Context, query string, args []any, drain func(*sql.Rows) error) error {
	handle, err := p.DB()
	if err != nil {
		return err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := handle.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return drain(rows)
}

func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.cfg.QueryTimeout)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// CollectResult drains rows into a Result, normalizing driver values.
func CollectResult(rows *sql.Rows) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("read columns: %w", err)
	}

	collected := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		collected = append(collected, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{Columns: columns, Rows: collected, RowCount: len(collected)}, nil
}

// CollectRecords drains rows into column-keyed records.
func CollectRecords(rows *sql.Rows) ([]map[string]any, error) {
	result, err := CollectResult(rows)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0, result.RowCount)
	for _, row := range result.Rows {
		record := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			record[column] = row[i]
		}
		records = append(records, record)
	}
	return records, nil
}

// CollectStrings drains a single-column result into a string slice,
// skipping NULLs.
func CollectStrings(rows *sql.Rows) ([]string, error) {
	values := make([]string, 0)
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		if value.Valid {
			values = append(values, value.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return values, nil
}

// CollectColumns drains a (table, column, type) result.
func CollectColumns(rows *sql.Rows) ([]Column, error) {
	columns := make([]Column, 0)
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Table, &col.Column, &col.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

package sqlite

import (
	"context"
	"testing"

	"github.com/askdb/askdb/internal/db"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := New(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	ctx := context.Background()
	seed := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT, created_at TEXT)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, total REAL)`,
		`INSERT INTO users (id, email, created_at) VALUES (1, 'a@example.com', '2026-01-01')`,
		`INSERT INTO users (id, email, created_at) VALUES (2, 'b@example.com', '2026-02-01')`,
		`INSERT INTO orders (id, user_id, total) VALUES (10, 1, 19.5)`,
	}
	for _, stmt := range seed {
		if _, err := adapter.RawQuery(ctx, stmt); err != nil {
			t.Fatalf("seed %q error = %v", stmt, err)
		}
	}
	return adapter
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "sqlite:///var/data/app.db", want: "/var/data/app.db"},
		{in: "sqlite:app.db", want: "app.db"},
		{in: "./app.db", want: "./app.db"},
		{in: ":memory:", want: ":memory:"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Fatalf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExecuteSelect(t *testing.T) {
	adapter := newTestAdapter(t)

	result, err := adapter.Execute(context.Background(), "SELECT id, email FROM users ORDER BY id LIMIT 10", "main")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
	if result.Columns[1] != "email" {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if result.Rows[0][1] != "a@example.com" {
		t.Fatalf("Rows[0][1] = %#v", result.Rows[0][1])
	}
}

func TestExecuteBadSQL(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.Execute(context.Background(), "SELECT missing FROM users", "main")
	if err == nil {
		t.Fatal("Execute() error = nil, want failure")
	}
}

func TestListTablesHidesInternal(t *testing.T) {
	adapter := newTestAdapter(t)

	tables, err := adapter.ListTables(context.Background(), "")
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	want := []string{"orders", "users"}
	if len(tables) != len(want) {
		t.Fatalf("tables = %v, want %v", tables, want)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Fatalf("tables = %v, want %v", tables, want)
		}
	}
}

func TestSchemaTextRendering(t *testing.T) {
	adapter := newTestAdapter(t)

	text, err := db.SchemaText(context.Background(), adapter, "main")
	if err != nil {
		t.Fatalf("SchemaText() error = %v", err)
	}
	want := "orders(id INTEGER, user_id INTEGER, total REAL)\nusers(id INTEGER, email TEXT, created_at TEXT)"
	if text != want {
		t.Fatalf("SchemaText() = %q, want %q", text, want)
	}
}

func TestListSchemas(t *testing.T) {
	adapter := newTestAdapter(t)

	schemas, err := adapter.ListSchemas(context.Background())
	if err != nil {
		t.Fatalf("ListSchemas() error = %v", err)
	}
	if len(schemas) != 1 || schemas[0] != "main" {
		t.Fatalf("schemas = %v, want [main]", schemas)
	}
}

package guard

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAcceptsReadQueries(t *testing.T) {
	cases := []struct {
		name string
		sql  string
	}{
		{name: "plain select", sql: "SELECT id, email FROM users"},
		{name: "lowercase select", sql: "select count(*) from orders"},
		{name: "cte", sql: "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent"},
		{name: "trailing semicolon", sql: "SELECT 1;"},
		{name: "keyword inside identifier", sql: "SELECT updated_at, delete_reason FROM audit_log"},
		{name: "keyword inside literal", sql: "SELECT * FROM notes WHERE note = 'please DELETE this'"},
		{name: "semicolon inside literal", sql: "SELECT * FROM notes WHERE note = 'a; b; c'"},
		{name: "escaped quote literal", sql: "SELECT * FROM notes WHERE note = 'it''s; DROP'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.sql, Options{}); err != nil {
				t.Fatalf("Validate(%q) error = %v, want nil", tc.sql, err)
			}
		})
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name       string
		sql        string
		wantReason string
	}{
		{
			name:       "insert statement",
			sql:        "INSERT INTO users (id) VALUES (1)",
			wantReason: "Only read queries (SELECT or WITH) are allowed",
		},
		{
			name:       "empty input",
			sql:        "   ",
			wantReason: "Only read queries (SELECT or WITH) are allowed",
		},
		{
			name:       "stacked statements",
			sql:        "SELECT * FROM users; DROP TABLE users;",
			wantReason: "Multiple statements are not allowed",
		},
		{
			name:       "drop in cte",
			sql:        "WITH d AS (DROP TABLE users) SELECT * FROM d",
			wantReason: "DROP operations are not allowed",
		},
		{
			name:       "delete keyword",
			sql:        "WITH d AS (DELETE FROM users RETURNING id) SELECT * FROM d",
			wantReason: "DELETE operations are not allowed",
		},
		{
			name:       "copy keyword",
			sql:        "SELECT 1 COPY users TO '/tmp/out'",
			wantReason: "COPY operations are not allowed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.sql, Options{})
			if err == nil {
				t.Fatalf("Validate(%q) = nil, want rejection", tc.sql)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate(%q) error type = %T, want *ValidationError", tc.sql, err)
			}
			if verr.Reason != tc.wantReason {
				t.Fatalf("Validate(%q) reason = %q, want %q", tc.sql, verr.Reason, tc.wantReason)
			}
			if verr.SQL != tc.sql {
				t.Fatalf("ValidationError.SQL = %q, want %q", verr.SQL, tc.sql)
			}
		})
	}
}

func TestValidateMultiStatementMessage(t *testing.T) {
	err := Validate("SELECT * FROM users; DROP TABLE users;", Options{})
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if !strings.Contains(err.Error(), "Multiple statements") {
		t.Fatalf("error = %q, want mention of Multiple statements", err.Error())
	}
}

func TestValidatePrecedence(t *testing.T) {
	// A write statement that also stacks statements must report the shape
	// problem, not the later checks.
	err := Validate("DROP TABLE users; SELECT 1", Options{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if verr.Reason != "Only read queries (SELECT or WITH) are allowed" {
		t.Fatalf("reason = %q, want shape rejection first", verr.Reason)
	}

	// Stacked statements win over keywords.
	err = Validate("SELECT 1; TRUNCATE users", Options{})
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if verr.Reason != "Multiple statements are not allowed" {
		t.Fatalf("reason = %q, want multi-statement rejection before keyword", verr.Reason)
	}
}

func TestValidateAllowWrites(t *testing.T) {
	sql := "DROP TABLE users; DELETE FROM orders"
	if err := Validate(sql, Options{AllowWrites: true}); err != nil {
		t.Fatalf("Validate() with AllowWrites error = %v, want nil", err)
	}
}

func TestEnsureLimit(t *testing.T) {
	cases := []struct {
		name    string
		sql     string
		maxRows int
		want    string
	}{
		{name: "appends limit", sql: "SELECT * FROM t", maxRows: 50, want: "SELECT * FROM t LIMIT 50"},
		{name: "strips terminator", sql: "SELECT * FROM t;", maxRows: 50, want: "SELECT * FROM t LIMIT 50"},
		{name: "keeps existing limit", sql: "SELECT * FROM t LIMIT 10", maxRows: 50, want: "SELECT * FROM t LIMIT 10"},
		{name: "keeps lowercase limit", sql: "select * from t limit 10", maxRows: 50, want: "select * from t limit 10"},
		{name: "limit with offset", sql: "SELECT * FROM t LIMIT 10 OFFSET 5", maxRows: 50, want: "SELECT * FROM t LIMIT 10 OFFSET 5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EnsureLimit(tc.sql, tc.maxRows)
			if got != tc.want {
				t.Fatalf("EnsureLimit(%q, %d) = %q, want %q", tc.sql, tc.maxRows, got, tc.want)
			}
		})
	}
}

func TestEnsureLimitIdempotent(t *testing.T) {
	once := EnsureLimit("SELECT * FROM t", 50)
	twice := EnsureLimit(once, 50)
	if once != twice {
		t.Fatalf("EnsureLimit applied twice = %q, want %q", twice, once)
	}
}

package ask

import (
	"errors"
	"strings"
	"testing"
)

func TestParseResponsePlainJSON(t *testing.T) {
	parsed, err := parseResponse(`{"sql": "SELECT 1", "explanation": "one", "chartType": "number"}`)
	if err != nil {
		t.Fatalf("parseResponse() error = %v", err)
	}
	if parsed.SQL != "SELECT 1" || parsed.Explanation != "one" || parsed.ChartType != "number" {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseResponseStripsMarkdownFences(t *testing.T) {
	tests := []string{
		"```json\n{\"sql\": \"SELECT 1\", \"explanation\": \"one\"}\n```",
		"```\n{\"sql\": \"SELECT 1\", \"explanation\": \"one\"}\n```",
		"Here you go:\n```json\n{\"sql\": \"SELECT 1\", \"explanation\": \"one\"}\n```",
	}
	for _, content := range tests {
		parsed, err := parseResponse(content)
		if err != nil {
			t.Fatalf("parseResponse(%q) error = %v", content, err)
		}
		if parsed.SQL != "SELECT 1" {
			t.Fatalf("parseResponse(%q) sql = %q", content, parsed.SQL)
		}
	}
}

func TestParseResponseNotJSON(t *testing.T) {
	_, err := parseResponse("SELECT 1 -- sure, here is your query")
	if err == nil || !strings.Contains(err.Error(), "failed to parse model response") {
		t.Fatalf("parseResponse() error = %v", err)
	}
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("parseResponse() error = %v, want ErrInvalidResponse", err)
	}
}

func TestParseResponseMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no sql", content: `{"explanation": "one"}`},
		{name: "blank sql", content: `{"sql": "  ", "explanation": "one"}`},
		{name: "no explanation", content: `{"sql": "SELECT 1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse(tt.content)
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("parseResponse() error = %v, want ErrMissingField", err)
			}
		})
	}
}

func TestParseResponseChartTypeNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "bar", want: "bar"},
		{raw: "LINE", want: "line"},
		{raw: " pie ", want: "pie"},
		{raw: "histogram", want: "table"},
		{raw: "", want: "table"},
	}
	for _, tt := range tests {
		content := `{"sql": "SELECT 1", "explanation": "one", "chartType": "` + tt.raw + `"}`
		parsed, err := parseResponse(content)
		if err != nil {
			t.Fatalf("parseResponse(%q) error = %v", tt.raw, err)
		}
		if parsed.ChartType != tt.want {
			t.Fatalf("chartType %q normalized to %q, want %q", tt.raw, parsed.ChartType, tt.want)
		}
	}
}

func TestNormalizeSQLUnescapes(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			name: "escaped double quotes",
			sql:  `SELECT \"email\" FROM users`,
			want: `SELECT "email" FROM users`,
		},
		{
			name: "escaped single quotes",
			sql:  `SELECT * FROM users WHERE name = \'Ada\'`,
			want: `SELECT * FROM users WHERE name = 'Ada'`,
		},
		{
			name: "literal newline sequences",
			sql:  `SELECT id\nFROM users`,
			want: "SELECT id\nFROM users",
		},
		{
			name: "escaped backslash survives as one",
			sql:  `SELECT '\\n'`,
			want: `SELECT '\n'`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeSQL(tt.sql, ""); got != tt.want {
				t.Fatalf("normalizeSQL(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestStripSchemaPrefix(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		schema string
		want   string
	}{
		{
			name:   "quoted qualifier",
			sql:    `SELECT * FROM "analytics".events`,
			schema: "analytics",
			want:   "SELECT * FROM events",
		},
		{
			name:   "bare qualifier case-insensitive",
			sql:    "SELECT * FROM Analytics.events",
			schema: "analytics",
			want:   "SELECT * FROM events",
		},
		{
			name:   "column references untouched",
			sql:    "SELECT users.id FROM users",
			schema: "analytics",
			want:   "SELECT users.id FROM users",
		},
		{
			name:   "no schema configured",
			sql:    `SELECT * FROM "analytics".events`,
			schema: "",
			want:   `SELECT * FROM "analytics".events`,
		},
		{
			name:   "regex metacharacters in schema name",
			sql:    "SELECT * FROM my.schema.events",
			schema: "my.schema",
			want:   "SELECT * FROM events",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripSchemaPrefix(tt.sql, tt.schema); got != tt.want {
				t.Fatalf("stripSchemaPrefix(%q, %q) = %q, want %q", tt.sql, tt.schema, got, tt.want)
			}
		})
	}
}

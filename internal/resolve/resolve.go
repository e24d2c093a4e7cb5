// Package resolve classifies loosely specified database and model targets
// and constructs the matching adapter or provider. Classification is pure
// and table-driven so the rules stay testable and their precedence explicit.
package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/db/duckdb"
	"github.com/askdb/askdb/internal/db/mysql"
	"github.com/askdb/askdb/internal/db/postgres"
	"github.com/askdb/askdb/internal/db/sqlite"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/llm/anthropic"
	"github.com/askdb/askdb/internal/llm/compat"
	"github.com/askdb/askdb/internal/llm/openai"
)

// ConfigurationError marks a target no rule could classify.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

type DatabaseTarget struct {
	// URL is a connection URL, DSN, or file path.
	URL string
	// Dialect overrides sniffing when set.
	Dialect      string
	PoolSize     int
	QueryTimeout time.Duration
}

type ModelTarget struct {
	// Provider overrides sniffing when set.
	Provider      string
	URL           string
	APIKey        string
	Model         string
	ContextLength int
	Temperature   float64
	Timeout       time.Duration
}

type ModelKind string

const (
	KindOpenAI    ModelKind = "openai"
	KindAnthropic ModelKind = "anthropic"
	KindCompat    ModelKind = "openai-compatible"
)

// schemeRules maps URL prefixes to dialects.
var schemeRules = []struct {
	prefix  string
	dialect db.Dialect
}{
	{"postgres://", db.DialectPostgres},
	{"postgresql://", db.DialectPostgres},
	{"mysql://", db.DialectMySQL},
	{"mariadb://", db.DialectMySQL},
	{"sqlite://", db.DialectSQLite},
	{"sqlite:", db.DialectSQLite},
	{"file:", db.DialectSQLite},
	{"duckdb://", db.DialectDuckDB},
}

// suffixRules maps file extensions to dialects.
var suffixRules = []struct {
	suffix  string
	dialect db.Dialect
}{
	{".sqlite3", db.DialectSQLite},
	{".sqlite", db.DialectSQLite},
	{".db", db.DialectSQLite},
	{".duckdb", db.DialectDuckDB},
	{".ddb", db.DialectDuckDB},
}

// keyPrefixRules is ordered most specific first: an Anthropic key also
// matches the bare sk- prefix, so sk-ant- has to be tried before it.
var keyPrefixRules = []struct {
	prefix string
	kind   ModelKind
}{
	{"sk-ant-", KindAnthropic},
	{"sk-", KindOpenAI},
}

// ClassifyDatabase decides the dialect of a database target. Precedence:
// explicit dialect, URL scheme, file extension, path-shaped input (sqlite).
func ClassifyDatabase(t DatabaseTarget) (db.Dialect, error) {
	if explicit := strings.TrimSpace(t.Dialect); explicit != "" {
		dialect, err := db.ParseDialect(explicit)
		if err != nil {
			return "", &ConfigurationError{Reason: fmt.Sprintf("unknown database dialect %q", explicit)}
		}
		return dialect, nil
	}

	target := strings.TrimSpace(t.URL)
	if target == "" {
		return "", &ConfigurationError{Reason: "database URL is required"}
	}
	lower := strings.ToLower(target)

	for _, rule := range schemeRules {
		if strings.HasPrefix(lower, rule.prefix) {
			return rule.dialect, nil
		}
	}
	for _, rule := range suffixRules {
		if strings.HasSuffix(lower, rule.suffix) {
			return rule.dialect, nil
		}
	}
	if lower == ":memory:" || strings.HasPrefix(target, "/") || strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		return db.DialectSQLite, nil
	}

	return "", &ConfigurationError{Reason: fmt.Sprintf("cannot determine database dialect from %q; set an explicit dialect", t.URL)}
}

// Database classifies the target and constructs its adapter.
func Database(t DatabaseTarget) (db.Adapter, error) {
	dialect, err := ClassifyDatabase(t)
	if err != nil {
		return nil, err
	}
	switch dialect {
	case db.DialectPostgres:
		return postgres.New(postgres.Config{URL: t.URL, PoolSize: t.PoolSize, QueryTimeout: t.QueryTimeout})
	case db.DialectMySQL:
		return mysql.New(mysql.Config{URL: t.URL, PoolSize: t.PoolSize, QueryTimeout: t.QueryTimeout})
	case db.DialectSQLite:
		return sqlite.New(sqlite.Config{Path: t.URL, QueryTimeout: t.QueryTimeout})
	case db.DialectDuckDB:
		return duckdb.New(duckdb.Config{Path: t.URL, QueryTimeout: t.QueryTimeout})
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("no adapter for dialect %q", dialect)}
	}
}

// ClassifyModel decides which provider a model target describes.
// Precedence: explicit provider, key prefix (most specific first), bare URL
// (a local OpenAI-compatible server), URL plus an unrecognized key (hosted
// OpenAI behind a custom endpoint).
func ClassifyModel(t ModelTarget) (ModelKind, error) {
	if explicit := strings.ToLower(strings.TrimSpace(t.Provider)); explicit != "" {
		switch explicit {
		case "openai":
			return KindOpenAI, nil
		case "anthropic", "claude":
			return KindAnthropic, nil
		case "compat", "openai-compatible", "local", "ollama", "lmstudio":
			return KindCompat, nil
		default:
			return "", &ConfigurationError{Reason: fmt.Sprintf("unknown model provider %q", t.Provider)}
		}
	}

	key := strings.TrimSpace(t.APIKey)
	url := strings.TrimSpace(t.URL)

	for _, rule := range keyPrefixRules {
		if strings.HasPrefix(key, rule.prefix) {
			return rule.kind, nil
		}
	}
	if url != "" && key == "" {
		return KindCompat, nil
	}
	if url != "" {
		return KindOpenAI, nil
	}

	return "", &ConfigurationError{Reason: "cannot determine model provider: set a provider name, a recognizable api key, or a base URL"}
}

// Model classifies the target and constructs its provider.
func Model(t ModelTarget) (llm.Provider, error) {
	kind, err := ClassifyModel(t)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindOpenAI:
		return openai.New(openai.Config{BaseURL: t.URL, APIKey: t.APIKey, Model: t.Model, ContextLength: t.ContextLength, Timeout: t.Timeout})
	case KindAnthropic:
		return anthropic.New(anthropic.Config{BaseURL: t.URL, APIKey: t.APIKey, Model: t.Model, ContextLength: t.ContextLength, Timeout: t.Timeout})
	case KindCompat:
		return compat.New(compat.Config{BaseURL: t.URL, APIKey: t.APIKey, Model: t.Model, ContextLength: t.ContextLength, Timeout: t.Timeout})
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("no provider for kind %q", kind)}
	}
}

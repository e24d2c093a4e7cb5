// Package ask orchestrates the full question pipeline: schema text lookup,
// context budgeting, model invocation, response parsing, validation and
// read-only execution against the configured database.
package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/guard"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/prompt"
)

const (
	DefaultMaxRows           = 100
	DefaultCacheTTL          = 5 * time.Minute
	DefaultTemperature       = 0.1
	DefaultMaxResponseTokens = 1024
)

// Options tune one engine. Zero values fall back to the defaults above.
type Options struct {
	// Schema overrides the adapter's default schema as the query target.
	Schema string
	// MaxRows caps result size via an appended LIMIT clause.
	MaxRows int
	// CacheTTL bounds how long introspected schema text is reused.
	CacheTTL time.Duration
	// Temperature is passed through to the model provider.
	Temperature float64
	// MaxResponseTokens is reserved out of the context window for the answer.
	MaxResponseTokens int
	// AllowWrites disables the read-only guard. Off unless explicitly set.
	AllowWrites bool
	// Debug attaches budget accounting to every result.
	Debug bool
	// History enables stateful Ask calls when non-nil.
	History History
	Logger  *slog.Logger
}

// Engine owns one database adapter and one model provider and answers
// natural language questions against them.
type Engine struct {
	adapter  db.Adapter
	provider llm.Provider
	opts     Options
	schemas  *cache.Cache
	history  History
	logger   *slog.Logger
}

func New(adapter db.Adapter, provider llm.Provider, opts Options) *Engine {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxResponseTokens <= 0 {
		opts.MaxResponseTokens = DefaultMaxResponseTokens
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		adapter:  adapter,
		provider: provider,
		opts:     opts,
		schemas:  cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		history:  opts.History,
		logger:   opts.Logger,
	}
}

// Query answers one question with the supplied conversation history. It is
// stateless: history is read but never written.
func (e *Engine) Query(ctx context.Context, question string, history []Message) (*Result, error) {
	start := time.Now()
	schemaName := e.targetSchema()

	schemaText, err := e.SchemaText(ctx, schemaName)
	if err != nil {
		observability.ObserveQuery("schema_error", time.Since(start))
		return nil, err
	}

	contextLength, err := e.provider.ContextLength(ctx)
	if err != nil {
		observability.ObserveQuery("model_error", time.Since(start))
		return nil, fmt.Errorf("resolve context length: %w", err)
	}

	dialect := e.adapter.Dialect()
	budget := contextLength - e.opts.MaxResponseTokens
	questionTokens := prompt.EstimateTokens(question)
	instructionTokens := prompt.EstimateTokens(prompt.Instructions(dialect, schemaName))

	schemaText, truncated := prompt.TruncateSchema(schemaText, budget-instructionTokens-questionTokens)
	if truncated {
		e.logger.WarnContext(ctx, "schema text truncated to fit context window",
			slog.String("schema", schemaName),
			slog.Int("context_length", contextLength))
	}

	system := prompt.System(dialect, schemaName, schemaText)
	systemTokens := prompt.EstimateTokens(system)

	included, historyTokens := fitHistory(history, budget-systemTokens-questionTokens)

	messages := make([]llm.Message, 0, len(included)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, included...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	response, err := e.provider.Generate(ctx, llm.GenerateRequest{
		Messages:    messages,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxResponseTokens,
	})
	if err != nil {
		var overflow *llm.ContextOverflowError
		if errors.As(err, &overflow) {
			observability.IncrementContextOverflow()
		}
		observability.ObserveQuery("model_error", time.Since(start))
		return nil, err
	}

	parsed, err := parseResponse(response.Content)
	if err != nil {
		observability.ObserveQuery("parse_error", time.Since(start))
		return nil, err
	}

	sql := normalizeSQL(parsed.SQL, schemaName)
	if err := guard.Validate(sql, guard.Options{AllowWrites: e.opts.AllowWrites}); err != nil {
		observability.IncrementGuardRejection()
		observability.ObserveQuery("blocked", time.Since(start))
		return nil, err
	}
	sql = guard.EnsureLimit(sql, e.opts.MaxRows)

	executed, err := e.adapter.Execute(ctx, sql, schemaName)
	if err != nil {
		observability.ObserveQuery("db_error", time.Since(start))
		return nil, err
	}

	elapsed := time.Since(start)
	result := &Result{
		SQL:         sql,
		Explanation: parsed.Explanation,
		ChartType:   parsed.ChartType,
		Columns:     executed.Columns,
		Rows:        executed.Rows,
		RowCount:    executed.RowCount,
	}
	if e.opts.Debug {
		result.Debug = &DebugInfo{
			Model:           response.Model,
			ContextLength:   contextLength,
			SystemTokens:    systemTokens,
			QuestionTokens:  questionTokens,
			HistoryTokens:   historyTokens,
			HistoryMessages: len(included),
			SchemaTruncated: truncated,
			Dialect:         string(dialect),
			Elapsed:         elapsed,
		}
	}

	e.logger.DebugContext(ctx, "question answered",
		slog.String("schema", schemaName),
		slog.Int("rows", result.RowCount),
		slog.Duration("elapsed", elapsed))
	observability.ObserveQuery("ok", elapsed)
	return result, nil
}

// Ask answers one question using the engine's own history and records both
// turns on success. Appends are last-write-wins: concurrent Ask calls may
// interleave their history entries.
func (e *Engine) Ask(ctx context.Context, question string) (*Result, error) {
	var history []Message
	if e.history != nil {
		loaded, err := e.history.Messages(ctx)
		if err != nil {
			return nil, err
		}
		history = loaded
	}

	result, err := e.Query(ctx, question, history)
	if err != nil {
		return nil, err
	}

	if e.history != nil {
		assistant := Message{Role: llm.RoleAssistant, Result: result}
		assistant.Content = assistant.promptContent()
		err := e.history.Append(ctx,
			Message{Role: llm.RoleUser, Content: question},
			assistant,
		)
		if err != nil {
			e.logger.WarnContext(ctx, "history append failed", slog.Any("error", err))
		}
	}
	return result, nil
}

func (e *Engine) ClearHistory(ctx context.Context) error {
	if e.history == nil {
		return nil
	}
	return e.history.Clear(ctx)
}

// SchemaText returns the rendered schema for the given schema name (the
// engine target when empty), introspecting on cache miss.
func (e *Engine) SchemaText(ctx context.Context, schema string) (string, error) {
	if schema == "" {
		schema = e.targetSchema()
	}
	if cached, ok := e.schemas.Get(schema); ok {
		observability.ObserveSchemaCache(true)
		return cached.(string), nil
	}
	observability.ObserveSchemaCache(false)
	text, err := db.SchemaText(ctx, e.adapter, schema)
	if err != nil {
		return "", err
	}
	e.schemas.Set(schema, text, cache.DefaultExpiration)
	return text, nil
}

// RefreshSchema drops every cached schema text so the next query
// re-introspects.
func (e *Engine) RefreshSchema() {
	e.schemas.Flush()
}

func (e *Engine) ListSchemas(ctx context.Context) ([]string, error) {
	return e.adapter.ListSchemas(ctx)
}

func (e *Engine) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = e.targetSchema()
	}
	return e.adapter.ListTables(ctx, schema)
}

func (e *Engine) Dialect() db.Dialect {
	return e.adapter.Dialect()
}

func (e *Engine) TargetSchema() string {
	return e.targetSchema()
}

func (e *Engine) Close() error {
	return e.adapter.Close()
}

func (e *Engine) targetSchema() string {
	if e.opts.Schema != "" {
		return e.opts.Schema
	}
	return e.adapter.DefaultSchema()
}

// fitHistory walks history newest to oldest, keeping each message whose
// token estimate still fits and stopping at the first that does not. The
// kept slice is returned in chronological order.
func fitHistory(history []Message, budget int) ([]llm.Message, int) {
	if len(history) == 0 || budget <= 0 {
		return nil, 0
	}
	var kept []llm.Message
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		content := history[i].promptContent()
		cost := prompt.EstimateTokens(content)
		if total+cost > budget {
			break
		}
		total += cost
		kept = append(kept, llm.Message{Role: history[i].Role, Content: content})
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, total
}

// Package shell implements the interactive askdb session. Plain lines are
// asked as questions against the engine, dot-commands cover introspection,
// history and exports.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"

	"github.com/askdb/askdb/internal/ask"
	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/guard"
	"github.com/askdb/askdb/internal/llm"
)

const prompt = "askdb> "

// Engine is the slice of the ask engine the shell drives.
type Engine interface {
	Ask(ctx context.Context, question string) (*ask.Result, error)
	ClearHistory(ctx context.Context) error
	SchemaText(ctx context.Context, schema string) (string, error)
	RefreshSchema()
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
	Dialect() db.Dialect
	TargetSchema() string
}

// Exporter writes the last result to the configured object store.
type Exporter interface {
	Export(ctx context.Context, question string, result *ask.Result, format export.Format) (export.Export, error)
}

type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Plain disables the spinner for piped or scripted sessions.
	Plain bool
	// DefaultFormat is used when .export names no format.
	DefaultFormat export.Format
	// ExportRoot, when set, is the local directory store keys resolve
	// under and is echoed after an export.
	ExportRoot string
}

type session struct {
	engine   Engine
	exporter Exporter
	opts     Options
	out      io.Writer
	errw     io.Writer

	lastQuestion string
	lastResult   *ask.Result
}

// Run drives the shell until the input ends or an exit command arrives.
// The return value is the process exit code.
func Run(ctx context.Context, engine Engine, exporter Exporter, opts Options) int {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	s := &session{
		engine:   engine,
		exporter: exporter,
		opts:     opts,
		out:      opts.Out,
		errw:     opts.Err,
	}
	return s.run(ctx)
}

func (s *session) run(ctx context.Context) int {
	fmt.Fprintf(s.out, "askdb: connected to %s, schema %q\n", s.engine.Dialect(), s.engine.TargetSchema())
	fmt.Fprintln(s.out, `type a question, or ".help" for commands`)

	scanner := bufio.NewScanner(s.opts.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return 0
		}
		fmt.Fprint(s.out, prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := s.command(ctx, line); quit {
				return 0
			}
			continue
		}
		s.ask(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(s.errw, "read input: %v\n", err)
		return 1
	}
	return 0
}

// command dispatches one dot-command and reports whether the shell should
// exit.
func (s *session) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".exit", ".quit":
		return true
	case ".help":
		s.printHelp()
	case ".schemas":
		schemas, err := s.engine.ListSchemas(ctx)
		if err != nil {
			s.renderError(err)
			break
		}
		for _, schema := range schemas {
			fmt.Fprintln(s.out, schema)
		}
	case ".tables":
		tables, err := s.engine.ListTables(ctx, argOr(fields, 1))
		if err != nil {
			s.renderError(err)
			break
		}
		for _, table := range tables {
			fmt.Fprintln(s.out, table)
		}
	case ".schema":
		text, err := s.engine.SchemaText(ctx, argOr(fields, 1))
		if err != nil {
			s.renderError(err)
			break
		}
		fmt.Fprintln(s.out, text)
	case ".refresh":
		s.engine.RefreshSchema()
		fmt.Fprintln(s.out, "schema cache cleared")
	case ".clear":
		if err := s.engine.ClearHistory(ctx); err != nil {
			s.renderError(err)
			break
		}
		fmt.Fprintln(s.out, "conversation history cleared")
	case ".export":
		s.export(ctx, fields[1:])
	default:
		fmt.Fprintf(s.errw, "unknown command %q\n", fields[0])
		s.printHelp()
	}
	return false
}

func (s *session) ask(ctx context.Context, question string) {
	var spinner *pterm.SpinnerPrinter
	if !s.opts.Plain {
		spinner, _ = pterm.DefaultSpinner.WithWriter(s.out).Start("thinking")
	}
	result, err := s.engine.Ask(ctx, question)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		s.renderError(err)
		return
	}

	s.lastQuestion = question
	s.lastResult = result
	s.renderResult(result)
}

// RenderResult writes the explanation, a dimmed SQL echo and a table of
// rows to w. Shared with the one-shot query command.
func RenderResult(w io.Writer, result *ask.Result) {
	fmt.Fprintln(w, result.Explanation)
	fmt.Fprintln(w, pterm.FgGray.Sprint(result.SQL))

	if len(result.Columns) > 0 {
		data := pterm.TableData{result.Columns}
		for _, row := range result.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = export.FormatValue(cell)
			}
			data = append(data, cells)
		}
		_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
	}

	if result.ChartType != "" && result.ChartType != "table" {
		fmt.Fprintf(w, "%d rows, suggested chart: %s\n", result.RowCount, result.ChartType)
	} else {
		fmt.Fprintf(w, "%d rows\n", result.RowCount)
	}
	if result.Debug != nil {
		fmt.Fprintln(w, pterm.FgGray.Sprintf(
			"model=%s context=%d system=%dt history=%dm/%dt elapsed=%s",
			result.Debug.Model, result.Debug.ContextLength, result.Debug.SystemTokens,
			result.Debug.HistoryMessages, result.Debug.HistoryTokens, result.Debug.Elapsed,
		))
	}
}

func (s *session) renderResult(result *ask.Result) {
	RenderResult(s.out, result)
}

func (s *session) renderError(err error) {
	var validationErr *guard.ValidationError
	if errors.As(err, &validationErr) {
		pterm.Error.WithWriter(s.errw).Println(validationErr.Reason)
		if validationErr.SQL != "" {
			fmt.Fprintln(s.errw, pterm.FgGray.Sprint(validationErr.SQL))
		}
		return
	}

	var overflowErr *llm.ContextOverflowError
	if errors.As(err, &overflowErr) {
		pterm.Error.WithWriter(s.errw).Println(err.Error())
		fmt.Fprintln(s.errw, `hint: ".clear" drops the conversation history`)
		return
	}

	pterm.Error.WithWriter(s.errw).Println(err.Error())
}

// export writes the last result either through the object store or, when a
// path argument is given, straight to a local file.
func (s *session) export(ctx context.Context, args []string) {
	if s.lastResult == nil {
		fmt.Fprintln(s.errw, "nothing to export: ask a question first")
		return
	}

	format := s.opts.DefaultFormat
	if format == "" {
		format = export.FormatCSV
	}
	if len(args) > 0 {
		parsed, err := export.ParseFormat(args[0])
		if err != nil {
			fmt.Fprintln(s.errw, err)
			return
		}
		format = parsed
	}

	if len(args) > 1 {
		data, err := export.Encode(s.lastResult, format)
		if err != nil {
			s.renderError(err)
			return
		}
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			s.renderError(err)
			return
		}
		fmt.Fprintf(s.out, "wrote %d rows to %s\n", s.lastResult.RowCount, args[1])
		return
	}

	if s.exporter == nil {
		fmt.Fprintln(s.errw, "no export store configured")
		return
	}
	out, err := s.exporter.Export(ctx, s.lastQuestion, s.lastResult, format)
	if err != nil {
		s.renderError(err)
		return
	}
	location := out.Location
	if s.opts.ExportRoot != "" {
		location = filepath.Join(s.opts.ExportRoot, filepath.FromSlash(out.Location))
	}
	fmt.Fprintf(s.out, "wrote %d rows to %s\n", out.RowCount, location)
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out, "commands:")
	fmt.Fprintln(s.out, "  .schemas                 list schemas")
	fmt.Fprintln(s.out, "  .tables [schema]         list tables")
	fmt.Fprintln(s.out, "  .schema [schema]         show the schema text sent to the model")
	fmt.Fprintln(s.out, "  .refresh                 drop the cached schema text")
	fmt.Fprintln(s.out, "  .clear                   clear the conversation history")
	fmt.Fprintln(s.out, "  .export [format] [path]  export the last result (csv, json, parquet)")
	fmt.Fprintln(s.out, "  .exit                    leave the shell")
	fmt.Fprintln(s.out, "anything else is asked as a question")
}

func argOr(fields []string, index int) string {
	if index < len(fields) {
		return fields[index]
	}
	return ""
}

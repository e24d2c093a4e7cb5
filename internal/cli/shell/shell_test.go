package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/ask"
	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/guard"
	"github.com/askdb/askdb/internal/llm"
)

type fakeEngine struct {
	result     *ask.Result
	askErr     error
	schemas    []string
	tables     []string
	schemaText string
	refreshed  int
	cleared    int
	questions  []string
	lastSchema string
}

func (f *fakeEngine) Ask(_ context.Context, question string) (*ask.Result, error) {
	f.questions = append(f.questions, question)
	if f.askErr != nil {
		return nil, f.askErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ask.Result{
		SQL:         "SELECT count(*) FROM users LIMIT 100",
		Explanation: "Counts all users.",
		ChartType:   "number",
		Columns:     []string{"count"},
		Rows:        [][]any{{int64(42)}},
		RowCount:    1,
	}, nil
}

func (f *fakeEngine) ClearHistory(_ context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeEngine) SchemaText(_ context.Context, schema string) (string, error) {
	f.lastSchema = schema
	return f.schemaText, nil
}

func (f *fakeEngine) RefreshSchema() {
	f.refreshed++
}

func (f *fakeEngine) ListSchemas(_ context.Context) ([]string, error) {
	return f.schemas, nil
}

func (f *fakeEngine) ListTables(_ context.Context, schema string) ([]string, error) {
	f.lastSchema = schema
	return f.tables, nil
}

func (f *fakeEngine) Dialect() db.Dialect {
	return db.DialectPostgres
}

func (f *fakeEngine) TargetSchema() string {
	return "public"
}

type fakeExporter struct {
	out        export.Export
	err        error
	lastFormat export.Format
}

func (f *fakeExporter) Export(_ context.Context, _ string, _ *ask.Result, format export.Format) (export.Export, error) {
	f.lastFormat = format
	if f.err != nil {
		return export.Export{}, f.err
	}
	return f.out, nil
}

func runScript(t *testing.T, engine Engine, exporter Exporter, script string) (string, string, int) {
	t.Helper()
	var out, errw bytes.Buffer
	code := Run(context.Background(), engine, exporter, Options{
		In:    strings.NewReader(script),
		Out:   &out,
		Err:   &errw,
		Plain: true,
	})
	return out.String(), errw.String(), code
}

func TestShellAnswersQuestion(t *testing.T) {
	engine := &fakeEngine{}
	out, errw, code := runScript(t, engine, nil, "how many users?\n.exit\n")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, errw)
	}
	if len(engine.questions) != 1 || engine.questions[0] != "how many users?" {
		t.Fatalf("questions = %v", engine.questions)
	}
	for _, want := range []string{"Counts all users.", "SELECT count(*) FROM users LIMIT 100", "42", "suggested chart: number"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShellExitsOnEOF(t *testing.T) {
	_, _, code := runScript(t, &fakeEngine{}, nil, "")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestShellIgnoresBlankLines(t *testing.T) {
	engine := &fakeEngine{}
	_, errw, code := runScript(t, engine, nil, "\n   \n.exit\n")
	if code != 0 || errw != "" {
		t.Fatalf("code = %d, stderr = %q", code, errw)
	}
	if len(engine.questions) != 0 {
		t.Fatalf("questions = %v", engine.questions)
	}
}

func TestShellUnknownCommandPrintsHelp(t *testing.T) {
	out, errw, _ := runScript(t, &fakeEngine{}, nil, ".bogus\n.exit\n")
	if !strings.Contains(errw, `unknown command ".bogus"`) {
		t.Fatalf("stderr = %q", errw)
	}
	if !strings.Contains(out, ".schemas") {
		t.Fatalf("help not printed:\n%s", out)
	}
}

func TestShellTablesCommand(t *testing.T) {
	engine := &fakeEngine{tables: []string{"users", "orders"}}
	out, _, _ := runScript(t, engine, nil, ".tables analytics\n.exit\n")
	if engine.lastSchema != "analytics" {
		t.Fatalf("schema = %q", engine.lastSchema)
	}
	if !strings.Contains(out, "users") || !strings.Contains(out, "orders") {
		t.Fatalf("output = %s", out)
	}
}

func TestShellSchemaCommand(t *testing.T) {
	engine := &fakeEngine{schemaText: "users(id integer, email text)"}
	out, _, _ := runScript(t, engine, nil, ".schema\n.exit\n")
	if !strings.Contains(out, "users(id integer, email text)") {
		t.Fatalf("output = %s", out)
	}
}

func TestShellRefreshAndClear(t *testing.T) {
	engine := &fakeEngine{}
	out, _, _ := runScript(t, engine, nil, ".refresh\n.clear\n.exit\n")
	if engine.refreshed != 1 || engine.cleared != 1 {
		t.Fatalf("refreshed = %d, cleared = %d", engine.refreshed, engine.cleared)
	}
	if !strings.Contains(out, "schema cache cleared") || !strings.Contains(out, "conversation history cleared") {
		t.Fatalf("output = %s", out)
	}
}

func TestShellExportThroughStore(t *testing.T) {
	exporter := &fakeExporter{out: export.Export{
		Location: "2025/03/09/how-many-users-1741539845.json",
		Format:   export.FormatJSON,
		RowCount: 1,
	}}
	out, errw, _ := runScript(t, &fakeEngine{}, exporter, "how many users?\n.export json\n.exit\n")
	if errw != "" {
		t.Fatalf("stderr = %q", errw)
	}
	if exporter.lastFormat != export.FormatJSON {
		t.Fatalf("format = %q", exporter.lastFormat)
	}
	if !strings.Contains(out, "wrote 1 rows to 2025/03/09/how-many-users-1741539845.json") {
		t.Fatalf("output = %s", out)
	}
}

func TestShellExportJoinsExportRoot(t *testing.T) {
	exporter := &fakeExporter{out: export.Export{Location: "a/b.csv", Format: export.FormatCSV, RowCount: 1}}
	var out bytes.Buffer
	Run(context.Background(), &fakeEngine{}, exporter, Options{
		In:         strings.NewReader("q\n.export csv\n.exit\n"),
		Out:        &out,
		Err:        &out,
		Plain:      true,
		ExportRoot: "/data/exports",
	})
	if !strings.Contains(out.String(), filepath.Join("/data/exports", "a", "b.csv")) {
		t.Fatalf("output = %s", out.String())
	}
}

func TestShellExportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, errw, _ := runScript(t, &fakeEngine{}, nil, "how many users?\n.export csv "+path+"\n.exit\n")
	if errw != "" {
		t.Fatalf("stderr = %q", errw)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "count\n42\n" {
		t.Fatalf("file content = %q", data)
	}
}

func TestShellExportWithoutResult(t *testing.T) {
	_, errw, _ := runScript(t, &fakeEngine{}, &fakeExporter{}, ".export csv\n.exit\n")
	if !strings.Contains(errw, "nothing to export") {
		t.Fatalf("stderr = %q", errw)
	}
}

func TestShellExportRejectsUnknownFormat(t *testing.T) {
	_, errw, _ := runScript(t, &fakeEngine{}, &fakeExporter{}, "q\n.export xlsx\n.exit\n")
	if !strings.Contains(errw, "unknown export format") {
		t.Fatalf("stderr = %q", errw)
	}
}

func TestShellRendersGuardRejection(t *testing.T) {
	engine := &fakeEngine{askErr: &guard.ValidationError{
		Reason: "Only read queries (SELECT or WITH) are allowed",
		SQL:    "DROP TABLE users",
	}}
	_, errw, code := runScript(t, engine, nil, "drop the users table\n.exit\n")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(errw, "Only read queries") || !strings.Contains(errw, "DROP TABLE users") {
		t.Fatalf("stderr = %q", errw)
	}
}

func TestShellOverflowHintsClear(t *testing.T) {
	engine := &fakeEngine{askErr: &llm.ContextOverflowError{Provider: "openai", Message: "too long"}}
	_, errw, _ := runScript(t, engine, nil, "q\n.exit\n")
	if !strings.Contains(errw, `".clear"`) {
		t.Fatalf("stderr = %q", errw)
	}
}

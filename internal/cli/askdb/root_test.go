package askdb

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
)

func TestNewRootRegistersSubcommands(t *testing.T) {
	root := NewRoot("1.2.3")
	if root.Use != "askdb" {
		t.Fatalf("root.Use = %q, want askdb", root.Use)
	}
	if root.Version != "1.2.3" {
		t.Fatalf("root.Version = %q, want 1.2.3", root.Version)
	}

	want := []string{"query", "schemas", "tables", "schema", "export"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
}

func TestRedisOptionsParsesURL(t *testing.T) {
	opts, err := redisOptions("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("redisOptions() error = %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("Addr = %q, want localhost:6379", opts.Addr)
	}
	if opts.DB != 2 {
		t.Fatalf("DB = %d, want 2", opts.DB)
	}
}

func TestRedisOptionsBareAddress(t *testing.T) {
	opts, err := redisOptions("redis14.internal:6380")
	if err != nil {
		t.Fatalf("redisOptions() error = %v", err)
	}
	if opts.Addr != "redis14.internal:6380" {
		t.Fatalf("Addr = %q", opts.Addr)
	}
}

func TestRedisOptionsRejectsUnknownScheme(t *testing.T) {
	if _, err := redisOptions("amqp://localhost:5672"); err == nil {
		t.Fatal("redisOptions() expected error for non-redis scheme")
	}
}

func TestStdinIsTerminalFalseForBuffer(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(bytes.NewBufferString("hello"))
	if stdinIsTerminal(cmd) {
		t.Fatal("stdinIsTerminal() = true for an in-memory buffer")
	}
}

func TestStdinIsTerminalFalseForRegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	cmd := &cobra.Command{}
	cmd.SetIn(f)
	if stdinIsTerminal(cmd) {
		t.Fatal("stdinIsTerminal() = true for a regular file")
	}
}

// Package askdb builds the cobra command tree for the askdb CLI. The root
// command opens the configured database and model and drops into the
// interactive shell; subcommands cover one-shot questions, introspection and
// exports.
package askdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/ask"
	"github.com/askdb/askdb/internal/cli/shell"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/resolve"
	"github.com/askdb/askdb/internal/storage"
	"github.com/askdb/askdb/internal/storage/local"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

type app struct {
	flagSchema string
	flagDebug  bool

	cfg        config.Config
	logger     *slog.Logger
	engine     *ask.Engine
	exporter   *export.Exporter
	exportRoot string
}

func NewRoot(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "askdb",
		Short:         "Ask your database questions in plain language",
		Long:          "askdb turns natural language questions into validated, read-only SQL,\nruns them against the configured database and renders the results.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			code := shell.Run(cmd.Context(), a.engine, a.exporter, shell.Options{
				In:            cmd.InOrStdin(),
				Out:           cmd.OutOrStdout(),
				Err:           cmd.ErrOrStderr(),
				Plain:         !stdinIsTerminal(cmd),
				DefaultFormat: export.Format(a.cfg.Export.Format),
				ExportRoot:    a.exportRoot,
			})
			if code != 0 {
				return fmt.Errorf("shell exited with code %d", code)
			}
			return nil
		}),
	}

	root.PersistentFlags().StringVar(&a.flagSchema, "schema", "", "target schema (defaults to the dialect default)")
	root.PersistentFlags().BoolVar(&a.flagDebug, "debug", false, "attach token budget details to every answer")

	root.AddCommand(
		a.queryCommand(),
		a.schemasCommand(),
		a.tablesCommand(),
		a.schemaCommand(),
		a.exportCommand(),
	)
	return root
}

// run wraps a command body with engine wiring and teardown. Wiring happens
// here rather than in a persistent hook so "askdb help" works without a
// configured database.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.init(cmd.Context()); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args)
	}
}

// init loads config from the environment and wires the engine and exporter.
// Database and model connections open lazily, so this stays cheap.
func (a *app) init(ctx context.Context) error {
	cfg, err := config.LoadFromEnv("askdb")
	if err != nil {
		return err
	}
	if a.flagSchema != "" {
		cfg.Query.Schema = a.flagSchema
	}
	if a.flagDebug {
		cfg.Query.Debug = true
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg, os.Stderr)

	adapter, err := resolve.Database(resolve.DatabaseTarget{
		URL:          cfg.Database.URL,
		Dialect:      cfg.Database.Dialect,
		PoolSize:     cfg.Database.PoolSize,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		return err
	}
	provider, err := resolve.Model(resolve.ModelTarget{
		Provider:      cfg.Model.Provider,
		URL:           cfg.Model.URL,
		APIKey:        cfg.Model.APIKey,
		Model:         cfg.Model.Name,
		ContextLength: cfg.Model.ContextLength,
		Temperature:   cfg.Model.Temperature,
		Timeout:       cfg.Model.Timeout,
	})
	if err != nil {
		_ = adapter.Close()
		return err
	}

	history, err := buildHistory(cfg)
	if err != nil {
		_ = adapter.Close()
		return err
	}

	a.engine = ask.New(adapter, provider, ask.Options{
		Schema:            cfg.Query.Schema,
		MaxRows:           cfg.Query.MaxRows,
		CacheTTL:          cfg.Query.SchemaCacheTTL,
		Temperature:       cfg.Model.Temperature,
		MaxResponseTokens: cfg.Model.MaxTokens,
		AllowWrites:       cfg.Query.AllowWrites,
		Debug:             cfg.Query.Debug,
		History:           history,
		Logger:            a.logger,
	})

	store, root, err := buildStore(ctx, cfg)
	if err != nil {
		_ = a.engine.Close()
		return err
	}
	a.exporter = export.New(store, "")
	a.exportRoot = root
	return nil
}

func (a *app) close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
}

func buildHistory(cfg config.Config) (ask.History, error) {
	if cfg.History.RedisAddr == "" {
		return ask.NewMemoryHistory(), nil
	}
	opts, err := redisOptions(cfg.History.RedisAddr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return ask.NewRedisHistory(client, cfg.History.RedisKey, cfg.History.TTL), nil
}

// redisOptions accepts both redis:// URLs and bare host:port addresses.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

func (a *app) queryCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			result, err := a.engine.Query(cmd.Context(), strings.Join(args, " "), nil)
			if err != nil {
				return err
			}
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			}
			shell.RenderResult(cmd.OutOrStdout(), result)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

func (a *app) schemasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the schemas the target database exposes",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			schemas, err := a.engine.ListSchemas(cmd.Context())
			if err != nil {
				return err
			}
			for _, schema := range schemas {
				fmt.Fprintln(cmd.OutOrStdout(), schema)
			}
			return nil
		}),
	}
}

func (a *app) tablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables [schema]",
		Short: "List the tables of a schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			schema := ""
			if len(args) > 0 {
				schema = args[0]
			}
			tables, err := a.engine.ListTables(cmd.Context(), schema)
			if err != nil {
				return err
			}
			for _, table := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), table)
			}
			return nil
		}),
	}
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [schema]",
		Short: "Print the schema text sent to the model",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			schema := ""
			if len(args) > 0 {
				schema = args[0]
			}
			text, err := a.engine.SchemaText(cmd.Context(), schema)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}),
	}
}

func (a *app) exportCommand() *cobra.Command {
	var formatFlag string
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <question>",
		Short: "Ask one question and export the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			result, err := a.engine.Query(cmd.Context(), question, nil)
			if err != nil {
				return err
			}

			raw := formatFlag
			if raw == "" {
				raw = a.cfg.Export.Format
			}
			format, err := export.ParseFormat(raw)
			if err != nil {
				return err
			}

			if outPath != "" {
				data, err := export.Encode(result, format)
				if err != nil {
					return err
				}
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", result.RowCount, outPath)
				return nil
			}

			out, err := a.exporter.Export(cmd.Context(), question, result, format)
			if err != nil {
				return err
			}
			location := out.Location
			if a.exportRoot != "" {
				location = filepath.Join(a.exportRoot, filepath.FromSlash(location))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", out.RowCount, location)
			return nil
		}),
	}
	cmd.Flags().StringVar(&formatFlag, "format", "", "export format: csv, json or parquet")
	cmd.Flags().StringVar(&outPath, "out", "", "write to a local file instead of the export store")
	return cmd
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	file, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// buildStore picks the S3-compatible store when an endpoint is configured
// and the local filesystem store otherwise. The second return is the local
// root for display purposes, empty for remote stores.
func buildStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, string, error) {
	if cfg.Export.S3.Endpoint != "" {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Export.S3.Endpoint,
			Region:           cfg.Export.S3.Region,
			Bucket:           cfg.Export.S3.Bucket,
			AccessKeyID:      cfg.Export.S3.AccessKeyID,
			SecretAccessKey:  cfg.Export.S3.SecretAccessKey,
			UseSSL:           cfg.Export.S3.UseSSL,
			Prefix:           cfg.Export.S3.Prefix,
			AutoCreateBucket: cfg.Export.S3.AutoCreateBucket,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}
	store, err := local.New(cfg.Export.Dir)
	if err != nil {
		return nil, "", err
	}
	return store, cfg.Export.Dir, nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/ask"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/resolve"
	"github.com/askdb/askdb/internal/storage"
	"github.com/askdb/askdb/internal/storage/local"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

// version is stamped by the build via -ldflags.
var version = "dev"

func main() {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	adapter, err := resolve.Database(resolve.DatabaseTarget{
		URL:          cfg.Database.URL,
		Dialect:      cfg.Database.Dialect,
		PoolSize:     cfg.Database.PoolSize,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
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
		logger.Error("failed to configure model provider", slog.Any("error", err))
		os.Exit(1)
	}

	history, err := buildHistory(cfg)
	if err != nil {
		logger.Error("failed to configure history store", slog.Any("error", err))
		os.Exit(1)
	}

	engine := ask.New(adapter, provider, ask.Options{
		Schema:            cfg.Query.Schema,
		MaxRows:           cfg.Query.MaxRows,
		CacheTTL:          cfg.Query.SchemaCacheTTL,
		Temperature:       cfg.Model.Temperature,
		MaxResponseTokens: cfg.Model.MaxTokens,
		AllowWrites:       cfg.Query.AllowWrites,
		Debug:             cfg.Query.Debug,
		History:           history,
		Logger:            logger,
	})
	defer func() { _ = engine.Close() }()

	store, err := buildStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize export store", slog.Any("error", err))
		os.Exit(1)
	}
	exporter := export.New(store, "")

	deps := api.Dependencies{
		Logger:        logger,
		Engine:        engine,
		Exporter:      exporter,
		DefaultFormat: export.Format(cfg.Export.Format),
		Version:       version,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(adapter),
			api.CheckModelConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", string(engine.Dialect())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func buildHistory(cfg config.Config) (ask.History, error) {
	if cfg.History.RedisAddr == "" {
		return ask.NewMemoryHistory(), nil
	}
	var opts *redis.Options
	if strings.Contains(cfg.History.RedisAddr, "://") {
		parsed, err := redis.ParseURL(cfg.History.RedisAddr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.History.RedisAddr}
	}
	return ask.NewRedisHistory(redis.NewClient(opts), cfg.History.RedisKey, cfg.History.TTL), nil
}

func buildStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.Export.S3.Endpoint != "" {
		return s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Export.S3.Endpoint,
			Region:           cfg.Export.S3.Region,
			Bucket:           cfg.Export.S3.Bucket,
			AccessKeyID:      cfg.Export.S3.AccessKeyID,
			SecretAccessKey:  cfg.Export.S3.SecretAccessKey,
			UseSSL:           cfg.Export.S3.UseSSL,
			Prefix:           cfg.Export.S3.Prefix,
			AutoCreateBucket: cfg.Export.S3.AutoCreateBucket,
		})
	}
	return local.New(cfg.Export.Dir)
}

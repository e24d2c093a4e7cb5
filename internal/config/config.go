package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Model         ModelConfig
	Query         QueryConfig
	History       HistoryConfig
	Export        ExportConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL          string
	Dialect      string
	PoolSize     int
	QueryTimeout time.Duration
}

type ModelConfig struct {
	Provider      string
	URL           string
	APIKey        string
	Name          string
	ContextLength int
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

type QueryConfig struct {
	Schema         string
	MaxRows        int
	SchemaCacheTTL time.Duration
	AllowWrites    bool
	Debug          bool
}

type HistoryConfig struct {
	RedisAddr string
	RedisKey  string
	TTL       time.Duration
}

type ExportConfig struct {
	Dir    string
	Format string
	S3     S3Config
}

type S3Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKDB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_DATABASE_URL", &cfg.Database.URL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_DATABASE_DIALECT", &cfg.Database.Dialect); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_DATABASE_POOL_SIZE", &cfg.Database.PoolSize); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_DATABASE_QUERY_TIMEOUT", &cfg.Database.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_MODEL_PROVIDER", &cfg.Model.Provider); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_MODEL_URL", &cfg.Model.URL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_MODEL_API_KEY", &cfg.Model.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_MODEL_NAME", &cfg.Model.Name); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_MODEL_CONTEXT_LENGTH", &cfg.Model.ContextLength); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "ASKDB_MODEL_TEMPERATURE", &cfg.Model.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_MODEL_MAX_TOKENS", &cfg.Model.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_MODEL_TIMEOUT", &cfg.Model.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_SCHEMA", &cfg.Query.Schema); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_MAX_ROWS", &cfg.Query.MaxRows); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_SCHEMA_CACHE_TTL", &cfg.Query.SchemaCacheTTL); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_ALLOW_WRITES", &cfg.Query.AllowWrites); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_DEBUG", &cfg.Query.Debug); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_HISTORY_REDIS_ADDR", &cfg.History.RedisAddr); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_HISTORY_REDIS_KEY", &cfg.History.RedisKey); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_HISTORY_TTL", &cfg.History.TTL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_DIR", &cfg.Export.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_FORMAT", &cfg.Export.Format); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_S3_ENDPOINT", &cfg.Export.S3.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_S3_REGION", &cfg.Export.S3.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_S3_BUCKET", &cfg.Export.S3.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_S3_ACCESS_KEY", &cfg.Export.S3.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_S3_SECRET_KEY", &cfg.Export.S3.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_EXPORT_S3_USE_SSL", &cfg.Export.S3.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_EXPORT_S3_PREFIX", &cfg.Export.S3.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_EXPORT_S3_AUTO_CREATE_BUCKET", &cfg.Export.S3.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Export.Format != "" && !isValidExportFormat(cfg.Export.Format) {
		return Config{}, fmt.Errorf("invalid ASKDB_EXPORT_FORMAT: %q", cfg.Export.Format)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb-api"},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			PoolSize:     4,
			QueryTimeout: 30 * time.Second,
		},
		Model: ModelConfig{
			Temperature: 0.1,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Query: QueryConfig{
			MaxRows:        100,
			SchemaCacheTTL: 5 * time.Minute,
			AllowWrites:    false,
			Debug:          true,
		},
		History: HistoryConfig{
			RedisKey: "askdb:history",
			TTL:      24 * time.Hour,
		},
		Export: ExportConfig{
			Dir:    "./exports",
			Format: "csv",
			S3: S3Config{
				Region:           "us-east-1",
				UseSSL:           false,
				AutoCreateBucket: true,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Query.Debug = false
		cfg.Auth.Required = true
		cfg.Export.S3.UseSSL = true
		cfg.Export.S3.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidExportFormat(format string) bool {
	switch format {
	case "csv", "json", "parquet":
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

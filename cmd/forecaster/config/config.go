// Package config provides configuration parsing and management for the forecaster.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for the forecaster including:
//   - Dataset source (csv or http) and its settings
//   - CPU and storage predictors (linear, byom or baseline)
//   - Report storage (memory, redis or postgres)
//   - Report scheduling, capacity policy and monitoring limits
//   - Logging configuration (level, format)
//
// Source-specific settings are read from SOURCE_* environment variables, e.g.
// SOURCE_ROWS_PATH becomes the "rowsPath" key of SourceConfig.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	source, err := adapters.New(cfg.Source, cfg.SourceConfig)
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/demandcast/pkg/capacity"
	"github.com/HatiCode/demandcast/pkg/storage"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Source       string
	SourceConfig map[string]string
	DataPath     string
	DataURL      string
	Region       string

	CPUModel             string
	CPUModelPath         string
	CPUModelURL          string
	CPUModelFeatures     string
	StorageModel         string
	StorageModelPath     string
	StorageModelURL      string
	StorageModelFeatures string
	ModelMetadataPath    string
	ModelTimeout         time.Duration

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	PostgresDSN   string
	ReportHistory int
	ReportTTL     time.Duration

	ReportInterval  time.Duration
	ReportRegions   []string
	ReportDays      int
	DefaultCapacity float64
	DefaultMAPE     float64

	MAPEThreshold  float64
	MaxModelAge    time.Duration
	ModelTrainedAt string
	ScaleUpAbove   string
	ScaleDownBelow string

	// Derived by Parse.
	TrainedAt time.Time
	Policy    capacity.Policy
}

// ParseFlags parses command-line flags and environment variables into a Config.
// It exits the process when the configuration is invalid.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse parses args and the environment into a validated Config.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("forecaster", flag.ContinueOnError)

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-health-listen", getEnv("GRPC_HEALTH_LISTEN", ""), "gRPC health listen address (empty disables)")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", "csv"), "Dataset source: csv or http")
	fs.StringVar(&cfg.DataPath, "data", getEnv("DATA_PATH", "data/mlmodeltrainingdataset.csv"), "CSV dataset path (source=csv)")
	fs.StringVar(&cfg.DataURL, "data-url", getEnv("DATA_URL", ""), "Dataset URL (source=http)")
	fs.StringVar(&cfg.Region, "data-region", getEnv("DATA_REGION", ""), "Only load dataset rows of this region")

	fs.StringVar(&cfg.CPUModel, "cpu-model", getEnv("CPU_MODEL", "linear"), "CPU predictor: linear, byom or baseline")
	fs.StringVar(&cfg.CPUModelPath, "cpu-model-path", getEnv("CPU_MODEL_PATH", "models/cpu_model.json"), "CPU linear model artifact")
	fs.StringVar(&cfg.CPUModelURL, "cpu-model-url", getEnv("CPU_MODEL_URL", ""), "CPU inference service URL (cpu-model=byom)")
	fs.StringVar(&cfg.CPUModelFeatures, "cpu-model-features", getEnv("CPU_MODEL_FEATURES", ""), "Comma-separated CPU feature names (byom; empty reads them with GET on the model URL)")
	fs.StringVar(&cfg.StorageModel, "storage-model", getEnv("STORAGE_MODEL", "linear"), "Storage predictor: linear, byom or baseline")
	fs.StringVar(&cfg.StorageModelPath, "storage-model-path", getEnv("STORAGE_MODEL_PATH", "models/storage_model.json"), "Storage linear model artifact")
	fs.StringVar(&cfg.StorageModelURL, "storage-model-url", getEnv("STORAGE_MODEL_URL", ""), "Storage inference service URL (storage-model=byom)")
	fs.StringVar(&cfg.StorageModelFeatures, "storage-model-features", getEnv("STORAGE_MODEL_FEATURES", ""), "Comma-separated storage feature names (byom; empty reads them with GET on the model URL)")
	fs.StringVar(&cfg.ModelMetadataPath, "model-metadata-path", getEnv("MODEL_METADATA_PATH", "feature_names"), "gjson path of feature names in the inference service metadata")
	fs.DurationVar(&cfg.ModelTimeout, "model-timeout", getEnvDuration("MODEL_TIMEOUT", 10*time.Second), "Timeout for inference service metadata calls")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Report storage backend: memory, redis or postgres")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 7*24*time.Hour), "Redis report list TTL")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", getEnv("POSTGRES_DSN", ""), "PostgreSQL DSN (storage=postgres)")
	fs.IntVar(&cfg.ReportHistory, "report-history", getEnvInt("REPORT_HISTORY", storage.DefaultHistory), "Reports kept per region (memory, redis)")
	fs.DurationVar(&cfg.ReportTTL, "report-ttl", getEnvDuration("REPORT_TTL", 0), "In-memory report TTL (0 keeps reports until evicted)")

	fs.DurationVar(&cfg.ReportInterval, "report-interval", getEnvDuration("REPORT_INTERVAL", 5*time.Minute), "Scheduled report interval (0 disables)")
	reportRegions := fs.String("report-regions", getEnv("REPORT_REGIONS", "East"), "Comma-separated regions reported on each interval")
	fs.IntVar(&cfg.ReportDays, "report-days", getEnvInt("REPORT_DAYS", 7), "Days forecast per report")
	fs.Float64Var(&cfg.DefaultCapacity, "capacity", getEnvFloat("CAPACITY", 10000), "Default provisioned capacity")
	fs.Float64Var(&cfg.DefaultMAPE, "report-mape", getEnvFloat("REPORT_MAPE", 8.5), "MAPE assumed by reports when none is given")

	fs.Float64Var(&cfg.MAPEThreshold, "mape-threshold", getEnvFloat("MAPE_THRESHOLD", 10), "MAPE above which the model is drifting")
	fs.DurationVar(&cfg.MaxModelAge, "max-model-age", getEnvDuration("MAX_MODEL_AGE", 30*24*time.Hour), "Model age after which it is stale")
	fs.StringVar(&cfg.ModelTrainedAt, "model-trained-at", getEnv("MODEL_TRAINED_AT", ""), "Model training time, RFC3339 or YYYY-MM-DD (empty uses startup time)")
	fs.StringVar(&cfg.ScaleUpAbove, "scale-up-above", getEnv("SCALE_UP_ABOVE", "80%"), "Average utilisation above which to scale up")
	fs.StringVar(&cfg.ScaleDownBelow, "scale-down-below", getEnv("SCALE_DOWN_BELOW", "40%"), "Average utilisation below which to scale down")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ReportRegions = SplitList(*reportRegions)
	cfg.SourceConfig = parseSourceConfig()
	switch cfg.Source {
	case "csv":
		cfg.SourceConfig["path"] = cfg.DataPath
	case "http":
		if cfg.DataURL != "" {
			cfg.SourceConfig["url"] = cfg.DataURL
		}
	}
	if cfg.Region != "" {
		cfg.SourceConfig["region"] = cfg.Region
	}

	if err := cfg.derive(time.Now()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) derive(now time.Time) error {
	c.TrainedAt = now
	if c.ModelTrainedAt != "" {
		t, err := parseTime(c.ModelTrainedAt)
		if err != nil {
			return fmt.Errorf("invalid model-trained-at %q: %w", c.ModelTrainedAt, err)
		}
		c.TrainedAt = t
	}

	c.Policy = capacity.DefaultPolicy()
	up, err := capacity.ParsePercent(c.ScaleUpAbove)
	if err != nil {
		return fmt.Errorf("invalid scale-up-above: %w", err)
	}
	down, err := capacity.ParsePercent(c.ScaleDownBelow)
	if err != nil {
		return fmt.Errorf("invalid scale-down-below: %w", err)
	}
	c.Policy.ScaleUpAbove = up
	c.Policy.ScaleDownBelow = down
	return nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// Validate checks the configuration for missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	switch c.Source {
	case "csv":
		if c.SourceConfig["path"] == "" {
			return errors.New("source=csv requires a data path")
		}
	case "http":
		if c.SourceConfig["url"] == "" {
			return errors.New("source=http requires a data URL")
		}
	default:
		return fmt.Errorf("invalid source %q (must be csv or http)", c.Source)
	}

	if err := validateModel("cpu", c.CPUModel, c.CPUModelPath, c.CPUModelURL); err != nil {
		return err
	}
	if err := validateModel("storage", c.StorageModel, c.StorageModelPath, c.StorageModelURL); err != nil {
		return err
	}

	switch c.Storage {
	case "memory":
		if c.ReportTTL < 0 {
			return errors.New("report-ttl cannot be negative")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("storage=redis requires redis-addr")
		}
		if c.RedisDB < 0 {
			return errors.New("redis-db must be >= 0")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("storage=postgres requires postgres-dsn")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory, redis or postgres)", c.Storage)
	}

	if c.ReportInterval < 0 {
		return errors.New("report-interval cannot be negative")
	}
	if c.ReportInterval > 0 && len(c.ReportRegions) == 0 {
		return errors.New("report-regions cannot be empty when reports are scheduled")
	}
	for _, region := range c.ReportRegions {
		if err := storage.ValidateRegion(region); err != nil {
			return fmt.Errorf("report-regions: %w", err)
		}
	}
	if c.ReportDays <= 0 {
		return errors.New("report-days must be > 0")
	}
	if c.DefaultCapacity <= 0 {
		return errors.New("capacity must be > 0")
	}
	if c.DefaultMAPE < 0 {
		return errors.New("report-mape cannot be negative")
	}
	if c.MAPEThreshold <= 0 {
		return errors.New("mape-threshold must be > 0")
	}
	if c.MaxModelAge <= 0 {
		return errors.New("max-model-age must be > 0")
	}

	return c.Policy.Validate()
}

func validateModel(target, kind, path, url string) error {
	switch kind {
	case "linear":
		if path == "" {
			return fmt.Errorf("%s-model=linear requires a model path", target)
		}
	case "byom":
		if url == "" {
			return fmt.Errorf("%s-model=byom requires a model URL", target)
		}
	case "baseline":
	default:
		return fmt.Errorf("invalid %s model %q (must be linear, byom or baseline)", target, kind)
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSourceConfig parses SOURCE_* environment variables into a generic configuration map.
// Environment variable names are converted to camelCase for the map keys (SOURCE_ROWS_PATH → rowsPath).
// SOURCE itself is the source kind and is skipped.
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "SOURCE_") || len(key) == len("SOURCE_") {
			continue
		}
		config[toLowerCamelCase(key[len("SOURCE_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Package config loads and validates the toolkit configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// pipeline stage (TF-IDF, propensity, merge, evaluation) and for the optional
// infrastructure around them (Postgres run store, Redis cache, Kafka events,
// Prometheus metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

// Propensity modes.
const (
	ModeIndividual = "individual"
	ModeLegacy     = "legacy"
	ModeJoint      = "joint"
	ModeFrequency  = "frequency"
	ModeBeta       = "beta"
)

// TF-IDF backends.
const (
	BackendAuto      = "auto"
	BackendMemory    = "memory"
	BackendStreaming = "streaming"
)

// Config is the top-level toolkit configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	TFIDF      TFIDFConfig      `yaml:"tfidf"`
	Propensity PropensityConfig `yaml:"propensity"`
	Merge      MergeConfig      `yaml:"merge"`
	Evaluate   EvaluateConfig   `yaml:"evaluate"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Recorder   RecorderConfig   `yaml:"recorder"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// RuntimeConfig bounds the parallelism of every stage.
type RuntimeConfig struct {
	Workers int `yaml:"workers" validate:"min=1,max=1024"`
}

// DatasetConfig describes how ids are encoded in the text files.
type DatasetConfig struct {
	IndexBase int `yaml:"indexBase" validate:"oneof=0 1"`
}

// TFIDFConfig selects the transformer backend and output formatting.
type TFIDFConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=auto memory streaming"`
	MemoryLimitMB  int64  `yaml:"memoryLimitMB" validate:"min=1"`
	Precision      int    `yaml:"precision" validate:"min=1,max=17"`
	FailOnZeroNorm bool   `yaml:"failOnZeroNorm"`
}

// PropensityConfig holds the Jain model parameters and the adaptation mode.
type PropensityConfig struct {
	Mode          string  `yaml:"mode" validate:"required"`
	A             float64 `yaml:"a" validate:"gt=0"`
	B             float64 `yaml:"b" validate:"gt=0"`
	WeightPattern string  `yaml:"weightPattern" validate:"required"`
}

// MergeConfig controls shard merging.
type MergeConfig struct {
	OutputName string `yaml:"outputName" validate:"required"`
	Extension  string `yaml:"extension" validate:"required"`
}

// EvaluateConfig controls which cut-offs are printed.
type EvaluateConfig struct {
	Ranks []int `yaml:"ranks" validate:"required,min=1,dive,min=1"`
}

// MetricsConfig controls Prometheus output. Batch commands write a textfile
// when TextfilePath is set; the recorder serves /metrics on Port.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Port         int    `yaml:"port" validate:"min=0,max=65535"`
	TextfilePath string `yaml:"textfilePath"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for run events.
type KafkaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Brokers        []string      `yaml:"brokers"`
	ConsumerGroup  string        `yaml:"consumerGroup"`
	RunsTopic      string        `yaml:"runsTopic"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// RecorderConfig holds the HTTP settings of the run recorder service.
type RecorderConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. The result is not validated; callers apply flag overrides first
// and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, xerrors.Newf(xerrors.ErrConfig, "parsing config file %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the toolkit defaults: a=0.55, b=1.5, legacy
// propensities and P@1/3/5 reports.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Runtime: RuntimeConfig{
			Workers: 4,
		},
		TFIDF: TFIDFConfig{
			Backend:       BackendAuto,
			MemoryLimitMB: 2048,
			Precision:     4,
		},
		Propensity: PropensityConfig{
			Mode:          ModeLegacy,
			A:             0.55,
			B:             1.5,
			WeightPattern: "weights-{split}-{kind}.txt",
		},
		Merge: MergeConfig{
			OutputName: "final_pred.txt",
			Extension:  ".txt",
		},
		Evaluate: EvaluateConfig{
			Ranks: []int{1, 3, 5},
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "xmc",
			User:            "xmc",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
			CacheTTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			ConsumerGroup:  "xmc-recorder",
			RunsTopic:      "xmc.runs",
			PublishTimeout: 10 * time.Second,
		},
		Recorder: RecorderConfig{
			Port:            8085,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks every field once, before any data is processed. All
// failures are reported together as a single ErrConfig.
func (c *Config) Validate() error {
	var problems []string
	if err := structValidator().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, describeFieldError(fe))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}
	if !IsKnownMode(c.Propensity.Mode) {
		problems = append(problems, fmt.Sprintf("propensity.mode: unknown mode %q", c.Propensity.Mode))
	}
	if !strings.Contains(c.Propensity.WeightPattern, "{split}") || !strings.Contains(c.Propensity.WeightPattern, "{kind}") {
		problems = append(problems, "propensity.weightPattern: must contain {split} and {kind}")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers: required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.RunsTopic == "" {
		problems = append(problems, "kafka.runsTopic: required when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr: required when redis is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.Host == "" {
		problems = append(problems, "postgres.host: required when postgres is enabled")
	}
	if len(problems) > 0 {
		return xerrors.New(xerrors.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

// IsKnownMode reports whether mode names a propensity mode. Matching is
// case-insensitive.
func IsKnownMode(mode string) bool {
	switch strings.ToLower(mode) {
	case ModeIndividual, ModeLegacy, ModeJoint, ModeFrequency, ModeBeta:
		return true
	}
	return false
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value())
}

// applyEnvOverrides reads XMC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("XMC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("XMC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("XMC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.Workers = n
		}
	}
	if v := os.Getenv("XMC_INDEX_BASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dataset.IndexBase = n
		}
	}
	if v := os.Getenv("XMC_TFIDF_BACKEND"); v != "" {
		cfg.TFIDF.Backend = v
	}
	if v := os.Getenv("XMC_PROPENSITY_MODE"); v != "" {
		cfg.Propensity.Mode = v
	}
	if v := os.Getenv("XMC_PROPENSITY_A"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Propensity.A = f
		}
	}
	if v := os.Getenv("XMC_PROPENSITY_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Propensity.B = f
		}
	}
	if v := os.Getenv("XMC_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("XMC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("XMC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("XMC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("XMC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("XMC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("XMC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("XMC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("XMC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("XMC_KAFKA_RUNS_TOPIC"); v != "" {
		cfg.Kafka.RunsTopic = v
	}
}

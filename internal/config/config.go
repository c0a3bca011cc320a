// Package config loads tokensplit settings from defaults, an optional .env
// file, TOKENSPLIT_* environment variables and command-line overrides, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/internal/oracle"
	"github.com/dshills/tokensplit/internal/processor"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TOKENSPLIT_"

// Common errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds every tokensplit setting.
type Config struct {
	Delimiter         string `koanf:"delimiter"`
	TokenLimit        int    `koanf:"token_limit"`
	WorkerCount       int    `koanf:"worker_count"`
	UndelimitedPolicy string `koanf:"undelimited_policy"`

	Oracle OracleConfig `koanf:"oracle"`

	OutputDir     string `koanf:"output_dir"`
	QuarantineDir string `koanf:"quarantine_dir"`
	SummaryDir    string `koanf:"summary_dir"`
	DBPath        string `koanf:"db_path"`

	Log LogConfig `koanf:"log"`
}

// OracleConfig selects and tunes the token counter.
type OracleConfig struct {
	Provider   string        `koanf:"provider"`
	Encoding   string        `koanf:"encoding"`
	URL        string        `koanf:"url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	Serial     bool          `koanf:"serial"`
	CacheSize  int           `koanf:"cache_size"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Delimiter:         processor.DefaultDelimiter,
		TokenLimit:        processor.DefaultTokenLimit,
		WorkerCount:       runtime.NumCPU(),
		UndelimitedPolicy: string(processor.PolicyPassThrough),
		Oracle: OracleConfig{
			Provider:   oracle.ProviderTiktoken,
			Encoding:   oracle.DefaultEncoding,
			Timeout:    oracle.DefaultTimeout,
			MaxRetries: oracle.DefaultMaxRetries,
			CacheSize:  oracle.DefaultCacheSize,
		},
		OutputDir:     "./data/split",
		QuarantineDir: "./data/exceeding",
		SummaryDir:    "./data/summary",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// EnvFile is loaded into the environment when it exists. Empty means ".env".
	EnvFile string
	// Overrides are applied last, keyed by koanf path (e.g. "oracle.provider").
	Overrides map[string]any
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return transformEnvKey(key), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// sections are the nested config groups; other keys are top level.
var sections = map[string]bool{"oracle": true, "log": true}

// transformEnvKey maps TOKENSPLIT_ORACLE_CACHE_SIZE to oracle.cache_size and
// TOKENSPLIT_TOKEN_LIMIT to token_limit.
func transformEnvKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return ""
	}
	if len(parts) > 1 && sections[parts[0]] {
		return parts[0] + "." + strings.Join(parts[1:], "_")
	}
	return strings.Join(parts, "_")
}

// Validate rejects settings that would make every document fail.
func (c *Config) Validate() error {
	var errs []error
	if c.TokenLimit <= 0 {
		errs = append(errs, fmt.Errorf("token_limit must be positive, got %d", c.TokenLimit))
	}
	if c.Delimiter == "" {
		errs = append(errs, errors.New("delimiter must not be empty"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount))
	}
	switch processor.UndelimitedPolicy(c.UndelimitedPolicy) {
	case processor.PolicyPassThrough, processor.PolicyQuarantine:
	default:
		errs = append(errs, fmt.Errorf("undelimited_policy must be %q or %q, got %q",
			processor.PolicyPassThrough, processor.PolicyQuarantine, c.UndelimitedPolicy))
	}
	if !oracle.ValidProvider(c.Oracle.Provider) {
		errs = append(errs, fmt.Errorf("unknown oracle.provider %q", c.Oracle.Provider))
	}
	if strings.EqualFold(c.Oracle.Provider, oracle.ProviderHTTP) && c.Oracle.URL == "" {
		errs = append(errs, errors.New("oracle.url is required for the http provider"))
	}
	if c.Oracle.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("oracle.max_retries must not be negative, got %d", c.Oracle.MaxRetries))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ProcessorOptions returns the processor settings.
func (c *Config) ProcessorOptions() processor.Options {
	return processor.Options{
		Delimiter:   c.Delimiter,
		TokenLimit:  c.TokenLimit,
		Undelimited: processor.UndelimitedPolicy(c.UndelimitedPolicy),
	}
}

// OracleConfig returns the oracle factory settings.
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		Provider:   c.Oracle.Provider,
		Encoding:   c.Oracle.Encoding,
		URL:        c.Oracle.URL,
		Timeout:    c.Oracle.Timeout,
		MaxRetries: c.Oracle.MaxRetries,
		Serial:     c.Oracle.Serial,
		CacheSize:  c.Oracle.CacheSize,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, JSON: c.Log.JSON}
}

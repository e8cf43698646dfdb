// Package config resolves the run configuration from flags, CHURN_* environment
// variables, an optional .env file and defaults, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"churn-metrics/pkg/apperrors"
)

// EnvPrefix namespaces every environment variable.
const EnvPrefix = "CHURN"

// Output formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatBoth = "both"
)

// Config holds everything a run needs.
type Config struct {
	Input            string `mapstructure:"input"`
	DSN              string `mapstructure:"dsn"`
	Table            string `mapstructure:"table"`
	OutputDir        string `mapstructure:"output_dir"`
	Format           string `mapstructure:"format"`
	Verbose          bool   `mapstructure:"verbose"`
	Partitions       int    `mapstructure:"partitions"`
	Schedule         string `mapstructure:"schedule"`
	PushgatewayURL   string `mapstructure:"pushgateway_url"`
	AMQPURL          string `mapstructure:"amqp_url"`
	OutreachExchange string `mapstructure:"outreach_exchange"`
	SQLCrosscheck    bool   `mapstructure:"sql_crosscheck"`
}

// WritesJSON reports whether the JSON report is requested.
func (c *Config) WritesJSON() bool { return c.Format == FormatJSON || c.Format == FormatBoth }

// WritesCSV reports whether the CSV exports are requested.
func (c *Config) WritesCSV() bool { return c.Format == FormatCSV || c.Format == FormatBoth }

// FromDatabase reports whether customers are read from a database rather than a CSV file.
func (c *Config) FromDatabase() bool { return c.DSN != "" }

type option struct {
	key, flag, usage string
	def              any
}

var options = []option{
	{"input", "input", "path to the customer CSV export", ""},
	{"dsn", "dsn", "database DSN (mysql://, mariadb://, postgres:// or native)", ""},
	{"table", "table", "customer table when reading from a database", "customers"},
	{"output_dir", "output-dir", "directory for report files", "."},
	{"format", "format", "report files to write: json, csv or both", FormatBoth},
	{"verbose", "verbose", "debug logging and progress bars", false},
	{"partitions", "partitions", "concurrent partitions per aggregation", runtime.NumCPU()},
	{"schedule", "schedule", "cron spec for repeated runs; empty runs once", ""},
	{"pushgateway_url", "pushgateway-url", "Prometheus Pushgateway URL; empty disables the push", ""},
	{"amqp_url", "amqp-url", "RabbitMQ URL for outreach events; empty logs them instead", ""},
	{"outreach_exchange", "outreach-exchange", "topic exchange for outreach events", "churn.outreach"},
	{"sql_crosscheck", "sql-crosscheck", "recompute the contract segmentation in SQL and compare", false},
}

// Flags returns a flag set carrying every option plus --env-file.
func Flags(name string) *pflag.FlagSet {
	f := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f.String("env-file", ".env", "dotenv file loaded before reading the environment")
	for _, o := range options {
		switch d := o.def.(type) {
		case string:
			f.String(o.flag, d, o.usage)
		case bool:
			f.Bool(o.flag, d, o.usage)
		case int:
			f.Int(o.flag, d, o.usage)
		}
	}
	return f
}

// Load resolves and validates the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "read "+envFile)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, o := range options {
		v.SetDefault(o.key, o.def)
		if flags == nil {
			continue
		}
		if f := flags.Lookup(o.flag); f != nil {
			if err := v.BindPFlag(o.key, f); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "decode configuration")
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field rules.
func (c *Config) Validate() error {
	switch {
	case c.Input == "" && c.DSN == "":
		return apperrors.New(apperrors.CodeInvalidInput, "one of input or dsn is required")
	case c.Input != "" && c.DSN != "":
		return apperrors.New(apperrors.CodeInvalidInput, "input and dsn are mutually exclusive")
	}
	switch c.Format {
	case FormatJSON, FormatCSV, FormatBoth:
	default:
		return apperrors.New(apperrors.CodeInvalidInput, "format must be json, csv or both, got "+c.Format)
	}
	if c.Partitions < 1 {
		c.Partitions = 1
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return apperrors.Wrap(err, apperrors.CodeInvalidInput, "schedule")
		}
	}
	if c.SQLCrosscheck && c.DSN == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "sql_crosscheck needs dsn")
	}
	return nil
}

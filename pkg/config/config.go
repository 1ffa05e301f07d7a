package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opscart/vm-reclaim/pkg/models"
	"github.com/prometheus/common/model"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the environment
const EnvPrefix = "RECLAIM"

// Configuration keys, shared by the YAML file, environment and flags
const (
	KeyVMs            = "vms"
	KeyCPUThreshold   = "cpu_threshold"
	KeyMemThreshold   = "mem_threshold"
	KeyIOThreshold    = "io_threshold"
	KeyTicks          = "ticks"
	KeyInterval       = "interval"
	KeyPSPath         = "ps_path"
	KeyIotopPath      = "iotop_path"
	KeyIOReadColumn   = "io_read_column"
	KeyIOWriteColumn  = "io_write_column"
	KeyStorageEnabled = "storage_enabled"
	KeyDatabaseURL    = "database_url"
	KeyOutputFormat   = "output"
	KeyMetricsAddr    = "metrics_addr"
	KeyLogLevel       = "log_level"
)

// ErrInvalidConfig matches every ValidationError with errors.Is
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError rejects a configuration before monitoring starts
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Config holds application configuration
type Config struct {
	// Fleet
	VMCount int

	// Thresholds, CPU and memory in percent, I/O in Kbps
	CPUThreshold float64
	MemThreshold float64
	IOThreshold  float64

	// Monitoring window
	Ticks        int
	TickInterval time.Duration

	// Inspection tools
	PSPath        string
	IotopPath     string
	IOReadColumn  int
	IOWriteColumn int

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Output
	OutputFormat string // text, json, yaml, csv
	MetricsAddr  string
	LogLevel     string
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		VMCount:        4,
		CPUThreshold:   10,
		MemThreshold:   10,
		IOThreshold:    100,
		Ticks:          10,
		TickInterval:   time.Minute,
		PSPath:         "ps",
		IotopPath:      "iotop",
		IOReadColumn:   3,
		IOWriteColumn:  5,
		StorageEnabled: false,
		DatabaseURL:    "host=localhost port=5432 user=reclaim password=devpassword dbname=vmreclaim sslmode=disable",
		OutputFormat:   "text",
		LogLevel:       "info",
	}
}

// NewConfig creates a new configuration from defaults and the environment
func NewConfig() *Config {
	return fromViper(newViper())
}

// Load reads defaults, then the optional YAML file at path, then the
// environment, then any changed flags registered with RegisterFlags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if flags != nil {
		for key, name := range flagNames {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	return fromViper(v), nil
}

// flagNames maps configuration keys to CLI flag names
var flagNames = map[string]string{
	KeyVMs:          "vms",
	KeyCPUThreshold: "cpu-threshold",
	KeyMemThreshold: "mem-threshold",
	KeyIOThreshold:  "io-threshold",
	KeyTicks:        "ticks",
	KeyInterval:     "interval",
	KeyPSPath:       "ps-path",
	KeyIotopPath:    "iotop-path",
	KeyOutputFormat: "output",
	KeyMetricsAddr:  "metrics-addr",
	KeyLogLevel:     "log-level",
}

// RegisterFlags adds the configuration flags to fs with the built-in defaults
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	fs.Int(flagNames[KeyVMs], d.VMCount, "Number of VMs to monitor")
	fs.Float64(flagNames[KeyCPUThreshold], d.CPUThreshold, "CPU threshold in percent")
	fs.Float64(flagNames[KeyMemThreshold], d.MemThreshold, "Memory threshold in percent")
	fs.Float64(flagNames[KeyIOThreshold], d.IOThreshold, "Disk I/O threshold in Kbps (read + write)")
	fs.Int(flagNames[KeyTicks], d.Ticks, "Number of monitoring ticks")
	fs.String(flagNames[KeyInterval], "1m", "Wait between ticks (e.g. 30s, 1m)")
	fs.String(flagNames[KeyPSPath], d.PSPath, "Path to the ps binary")
	fs.String(flagNames[KeyIotopPath], d.IotopPath, "Path to the iotop binary")
	fs.StringP(flagNames[KeyOutputFormat], "o", d.OutputFormat, "Output format: text, json, yaml, csv")
	fs.String(flagNames[KeyMetricsAddr], "", "Serve Prometheus metrics on this address (e.g. :9100)")
	fs.String(flagNames[KeyLogLevel], d.LogLevel, "Log level: debug, info, warn, error")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for compatibility with common deployments
	_ = v.BindEnv(KeyDatabaseURL, EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv(KeyLogLevel, EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	return v
}

func fromViper(v *viper.Viper) *Config {
	d := DefaultConfig()

	return &Config{
		VMCount:        getInt(v, KeyVMs, d.VMCount),
		CPUThreshold:   getFloat(v, KeyCPUThreshold, d.CPUThreshold),
		MemThreshold:   getFloat(v, KeyMemThreshold, d.MemThreshold),
		IOThreshold:    getFloat(v, KeyIOThreshold, d.IOThreshold),
		Ticks:          getInt(v, KeyTicks, d.Ticks),
		TickInterval:   getDuration(v, KeyInterval, d.TickInterval),
		PSPath:         getString(v, KeyPSPath, d.PSPath),
		IotopPath:      getString(v, KeyIotopPath, d.IotopPath),
		IOReadColumn:   getInt(v, KeyIOReadColumn, d.IOReadColumn),
		IOWriteColumn:  getInt(v, KeyIOWriteColumn, d.IOWriteColumn),
		StorageEnabled: getBool(v, KeyStorageEnabled, d.StorageEnabled),
		DatabaseURL:    getString(v, KeyDatabaseURL, d.DatabaseURL),
		OutputFormat:   getString(v, KeyOutputFormat, d.OutputFormat),
		MetricsAddr:    getString(v, KeyMetricsAddr, d.MetricsAddr),
		LogLevel:       getString(v, KeyLogLevel, d.LogLevel),
	}
}

func getString(v *viper.Viper, key, defaultValue string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(v *viper.Viper, key string, defaultValue int) int {
	value := v.GetString(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getFloat(v *viper.Viper, key string, defaultValue float64) float64 {
	value := v.GetString(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("ignoring invalid number setting", "key", key, "value", value)
		return defaultValue
	}
	return f
}

func getBool(v *viper.Viper, key string, defaultValue bool) bool {
	if value := v.GetString(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getDuration accepts Prometheus duration syntax such as 30s, 1m or 1h30m
func getDuration(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	value := v.GetString(key)
	if value == "" {
		return defaultValue
	}
	d, err := model.ParseDuration(value)
	if err != nil {
		slog.Warn("ignoring invalid duration setting", "key", key, "value", value)
		return defaultValue
	}
	return time.Duration(d)
}

// Thresholds returns the classification limits
func (c *Config) Thresholds() models.Thresholds {
	return models.Thresholds{
		CPU:  c.CPUThreshold,
		Mem:  c.MemThreshold,
		Disk: c.IOThreshold,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.VMCount <= 0 {
		return &ValidationError{Field: "vm count", Value: c.VMCount, Reason: "must be greater than 0"}
	}
	if !inPercentRange(c.CPUThreshold) {
		return &ValidationError{Field: "cpu threshold", Value: c.CPUThreshold, Reason: "must be between 0 and 100"}
	}
	if !inPercentRange(c.MemThreshold) {
		return &ValidationError{Field: "mem threshold", Value: c.MemThreshold, Reason: "must be between 0 and 100"}
	}
	if math.IsNaN(c.IOThreshold) || math.IsInf(c.IOThreshold, 0) || c.IOThreshold < 0 {
		return &ValidationError{Field: "io threshold", Value: c.IOThreshold, Reason: "must be a finite number >= 0"}
	}
	if c.Ticks < 0 {
		return &ValidationError{Field: "ticks", Value: c.Ticks, Reason: "must be >= 0"}
	}
	if c.TickInterval < 0 {
		return &ValidationError{Field: "interval", Value: c.TickInterval, Reason: "must be >= 0"}
	}
	if c.IOReadColumn < 1 || c.IOWriteColumn < 1 {
		return &ValidationError{Field: "io columns", Value: [2]int{c.IOReadColumn, c.IOWriteColumn}, Reason: "token 0 is the pid, columns must be >= 1"}
	}
	switch c.OutputFormat {
	case "text", "json", "yaml", "csv":
	default:
		return &ValidationError{Field: "output", Value: c.OutputFormat, Reason: "must be text, json, yaml, or csv"}
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return &ValidationError{Field: "database url", Value: "", Reason: "DATABASE_URL must be set when storage is enabled"}
	}
	return nil
}

// inPercentRange is false for NaN, which compares false against both bounds
func inPercentRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

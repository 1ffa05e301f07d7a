package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 4, cfg.VMCount)
	assert.Equal(t, 10.0, cfg.CPUThreshold)
	assert.Equal(t, 10.0, cfg.MemThreshold)
	assert.Equal(t, 100.0, cfg.IOThreshold)
	assert.Equal(t, 10, cfg.Ticks)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, "ps", cfg.PSPath)
	assert.Equal(t, "iotop", cfg.IotopPath)
	assert.Equal(t, 3, cfg.IOReadColumn)
	assert.Equal(t, 5, cfg.IOWriteColumn)
	assert.False(t, cfg.StorageEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("RECLAIM_VMS", "8")
	t.Setenv("RECLAIM_CPU_THRESHOLD", "25.5")
	t.Setenv("RECLAIM_TICKS", "3")
	t.Setenv("RECLAIM_INTERVAL", "30s")
	t.Setenv("RECLAIM_STORAGE_ENABLED", "1")
	t.Setenv("DATABASE_URL", "postgres://test")

	cfg := NewConfig()

	assert.Equal(t, 8, cfg.VMCount)
	assert.Equal(t, 25.5, cfg.CPUThreshold)
	assert.Equal(t, 3, cfg.Ticks)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.True(t, cfg.StorageEnabled)
	assert.Equal(t, "postgres://test", cfg.DatabaseURL)
}

func TestPrefixedDatabaseURLWins(t *testing.T) {
	t.Setenv("RECLAIM_DATABASE_URL", "postgres://prefixed")
	t.Setenv("DATABASE_URL", "postgres://plain")

	assert.Equal(t, "postgres://prefixed", NewConfig().DatabaseURL)
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("RECLAIM_TICKS", "invalid")
	t.Setenv("RECLAIM_CPU_THRESHOLD", "lots")
	t.Setenv("RECLAIM_INTERVAL", "soon")

	cfg := NewConfig()

	// Should fall back to defaults
	assert.Equal(t, 10, cfg.Ticks)
	assert.Equal(t, 10.0, cfg.CPUThreshold)
	assert.Equal(t, time.Minute, cfg.TickInterval)
}

func TestNaNThresholdFromEnvRejected(t *testing.T) {
	t.Setenv("RECLAIM_CPU_THRESHOLD", "NaN")

	cfg := NewConfig()

	assert.True(t, math.IsNaN(cfg.CPUThreshold))
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reclaim.yaml")
	content := "vms: 2\ncpu_threshold: 15\nio_threshold: 250\ninterval: 2m\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.VMCount)
	assert.Equal(t, 15.0, cfg.CPUThreshold)
	assert.Equal(t, 250.0, cfg.IOThreshold)
	assert.Equal(t, 2*time.Minute, cfg.TickInterval)
	assert.Equal(t, 10.0, cfg.MemThreshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reclaim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ticks: 5\nvms: 6\nmem_threshold: 20\n"), 0o644))
	t.Setenv("RECLAIM_TICKS", "7")
	t.Setenv("RECLAIM_VMS", "9")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--vms", "3"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.VMCount, "changed flag beats env")
	assert.Equal(t, 7, cfg.Ticks, "env beats file")
	assert.Equal(t, 20.0, cfg.MemThreshold, "file beats default")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid default config",
			setupConfig: func(c *Config) {},
		},
		{
			name:          "no vms",
			setupConfig:   func(c *Config) { c.VMCount = 0 },
			expectError:   true,
			errorContains: "vm count",
		},
		{
			name:          "negative cpu threshold",
			setupConfig:   func(c *Config) { c.CPUThreshold = -1 },
			expectError:   true,
			errorContains: "cpu threshold",
		},
		{
			name:          "cpu threshold above 100",
			setupConfig:   func(c *Config) { c.CPUThreshold = 100.1 },
			expectError:   true,
			errorContains: "cpu threshold",
		},
		{
			name:          "cpu threshold NaN",
			setupConfig:   func(c *Config) { c.CPUThreshold = math.NaN() },
			expectError:   true,
			errorContains: "cpu threshold",
		},
		{
			name:          "mem threshold NaN",
			setupConfig:   func(c *Config) { c.MemThreshold = math.NaN() },
			expectError:   true,
			errorContains: "mem threshold",
		},
		{
			name:          "io threshold NaN",
			setupConfig:   func(c *Config) { c.IOThreshold = math.NaN() },
			expectError:   true,
			errorContains: "io threshold",
		},
		{
			name:          "io threshold infinite",
			setupConfig:   func(c *Config) { c.IOThreshold = math.Inf(1) },
			expectError:   true,
			errorContains: "io threshold",
		},
		{
			name:          "mem threshold above 100",
			setupConfig:   func(c *Config) { c.MemThreshold = 101 },
			expectError:   true,
			errorContains: "mem threshold",
		},
		{
			name:          "negative io threshold",
			setupConfig:   func(c *Config) { c.IOThreshold = -0.5 },
			expectError:   true,
			errorContains: "io threshold",
		},
		{
			name:          "negative ticks",
			setupConfig:   func(c *Config) { c.Ticks = -1 },
			expectError:   true,
			errorContains: "ticks",
		},
		{
			name:          "negative interval",
			setupConfig:   func(c *Config) { c.TickInterval = -time.Second },
			expectError:   true,
			errorContains: "interval",
		},
		{
			name:          "read column on pid",
			setupConfig:   func(c *Config) { c.IOReadColumn = 0 },
			expectError:   true,
			errorContains: "io columns",
		},
		{
			name:          "unknown output",
			setupConfig:   func(c *Config) { c.OutputFormat = "xml" },
			expectError:   true,
			errorContains: "output",
		},
		{
			name: "storage without url",
			setupConfig: func(c *Config) {
				c.StorageEnabled = true
				c.DatabaseURL = ""
			},
			expectError:   true,
			errorContains: "DATABASE_URL",
		},
		{
			name: "valid edge case - zero ticks and bounds",
			setupConfig: func(c *Config) {
				c.Ticks = 0
				c.CPUThreshold = 0
				c.MemThreshold = 100
				c.IOThreshold = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()

			if !tt.expectError {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestThresholds(t *testing.T) {
	cfg := DefaultConfig()
	th := cfg.Thresholds()

	assert.Equal(t, cfg.CPUThreshold, th.CPU)
	assert.Equal(t, cfg.MemThreshold, th.Mem)
	assert.Equal(t, cfg.IOThreshold, th.Disk)
}

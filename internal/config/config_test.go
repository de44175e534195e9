package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/embedids/internal/config"
	"codeberg.org/mutker/embedids/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embedids.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interval = 5
log_level = "debug"
pid_file = "/tmp/embedids.pid"

[sources]
host = true
gpu = true
disk_path = "/var"

[events]
enabled = true
db_path = "/tmp/events.db"
batch_size = 8
batch_timeout = 3
max_buffered = 64

[prometheus]
enabled = true
listen = ":9100"

[[metrics]]
name = "temperature"
kind = "float"
history = 16

  [[metrics.algorithms]]
  type = "threshold"
  min = 10.0
  max = 80.0

  [[metrics.algorithms]]
  type = "custom"
  detector = "variance"
  params = { threshold = 10.0, window = 5 }

[[metrics]]
name = "fan"
kind = "uint32"
enabled = false
`)
	t.Setenv("EMBEDIDS_CONFIG", path)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Interval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/embedids.pid", cfg.PIDFile)
	assert.True(t, cfg.Sources.GPU)
	assert.Equal(t, "/var", cfg.Sources.DiskPath)
	assert.Equal(t, "/tmp/events.db", cfg.Events.DBPath)
	assert.Equal(t, 8, cfg.Events.BatchSize)
	assert.Equal(t, 3, cfg.Events.BatchTimeout)
	assert.Equal(t, 64, cfg.Events.MaxBuffered)
	assert.Equal(t, ":9100", cfg.Prometheus.Listen)

	require.Len(t, cfg.Metrics, 2)
	temp := cfg.Metrics[0]
	assert.Equal(t, "temperature", temp.Name)
	assert.Equal(t, 16, temp.History)
	assert.True(t, temp.IsEnabled())
	require.Len(t, temp.Algorithms, 2)
	require.NotNil(t, temp.Algorithms[0].Min)
	assert.InDelta(t, 10.0, *temp.Algorithms[0].Min, 1e-9)
	assert.InDelta(t, 80.0, *temp.Algorithms[0].Max, 1e-9)
	assert.True(t, temp.Algorithms[0].IsEnabled())
	assert.Equal(t, "variance", temp.Algorithms[1].Detector)
	assert.InDelta(t, 5.0, temp.Algorithms[1].Params["window"], 1e-9)

	fan := cfg.Metrics[1]
	assert.False(t, fan.IsEnabled())
	assert.Equal(t, config.DefaultHistory, fan.History)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EMBEDIDS_CONFIG", "")

	cfg, err := config.Load(nil, config.WithEnvPrefix("EMBEDIDS_TEST_DEFAULTS"))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.True(t, cfg.Sources.Host)
	assert.False(t, cfg.Sources.GPU)
	assert.True(t, cfg.Events.Enabled)
	assert.False(t, cfg.Prometheus.Enabled)
	assert.Equal(t, config.DefaultMetrics(), cfg.Metrics)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(nil, config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(nil, config.WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "invalid"`)

	_, err := config.Load(nil, config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, `interval = 5`)
	t.Setenv("EMBEDIDS_INTERVAL", "9")
	t.Setenv("EMBEDIDS_EVENTS_BATCH_SIZE", "4")

	cfg, err := config.Load(nil, config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Interval)
	assert.Equal(t, 4, cfg.Events.BatchSize)
}

func TestFlags(t *testing.T) {
	path := writeConfig(t, `
interval = 5
log_level = "warning"
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--log-level", "debug"}))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "flag overrides file")
	assert.Equal(t, 5, cfg.Interval, "unset flag keeps file value")
}

func TestWithEnvPrefixRejectsEmpty(t *testing.T) {
	_, err := config.Load(nil, config.WithEnvPrefix(""))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		maxValue := 10.0
		return &config.Config{
			Interval: 1,
			LogLevel: "info",
			Metrics: []config.MetricConfig{{
				Name:       "cpu",
				Kind:       "percentage",
				History:    4,
				Algorithms: []config.AlgorithmConfig{{Type: "threshold", Max: &maxValue}},
			}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   errors.ErrorCode
	}{
		{"valid", func(*config.Config) {}, errors.ErrOK},
		{"interval", func(c *config.Config) { c.Interval = 0 }, errors.ErrInvalidInterval},
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }, errors.ErrInvalidLogLevel},
		{"events without path", func(c *config.Config) { c.Events = config.EventsConfig{Enabled: true, BatchSize: 1, BatchTimeout: 1} }, errors.ErrInvalidConfig},
		{"max buffered below batch", func(c *config.Config) {
			c.Events = config.EventsConfig{Enabled: true, DBPath: "/tmp/e.db", BatchSize: 8, BatchTimeout: 1, MaxBuffered: 4}
		}, errors.ErrInvalidConfig},
		{"prometheus without listen", func(c *config.Config) { c.Prometheus.Enabled = true }, errors.ErrInvalidConfig},
		{"unnamed metric", func(c *config.Config) { c.Metrics[0].Name = "" }, errors.ErrInvalidConfig},
		{"long name", func(c *config.Config) { c.Metrics[0].Name = "this_metric_name_is_far_too_long_for_it" }, errors.ErrMetricNameTooLong},
		{"negative history", func(c *config.Config) { c.Metrics[0].History = -1 }, errors.ErrInvalidConfig},
		{"kind", func(c *config.Config) { c.Metrics[0].Kind = "complex" }, errors.ErrMetricTypeMismatch},
		{"duplicate", func(c *config.Config) { c.Metrics = append(c.Metrics, c.Metrics[0]) }, errors.ErrInvalidConfig},
		{"too many metrics", func(c *config.Config) {
			for i := 0; i < 40; i++ {
				c.Metrics = append(c.Metrics, c.Metrics[0])
			}
		}, errors.ErrInvalidConfig},
		{"algorithm type", func(c *config.Config) { c.Metrics[0].Algorithms[0].Type = "fourier" }, errors.ErrAlgorithmNotSupported},
		{"threshold without bounds", func(c *config.Config) { c.Metrics[0].Algorithms[0].Max = nil }, errors.ErrInvalidConfig},
		{"unknown detector", func(c *config.Config) {
			c.Metrics[0].Algorithms[0] = config.AlgorithmConfig{Type: "custom", Detector: "fourier"}
		}, errors.ErrAlgorithmNotSupported},
		{"trend window", func(c *config.Config) {
			c.Metrics[0].Algorithms[0] = config.AlgorithmConfig{Type: "trend", Window: 1}
		}, errors.ErrInvalidConfig},
		{"trend expected", func(c *config.Config) {
			c.Metrics[0].Algorithms[0] = config.AlgorithmConfig{Type: "trend", Window: 4, Expected: "sideways"}
		}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Equal(t, tt.want, errors.CodeOf(cfg.Validate()))
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &config.Config{
		Interval: 1,
		LogLevel: "info",
		Metrics: []config.MetricConfig{{
			Name:       "mem",
			Kind:       "percentage",
			Algorithms: []config.AlgorithmConfig{{Type: "trend"}},
		}},
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.DefaultHistory, cfg.Metrics[0].History)
	assert.Equal(t, 2, cfg.Metrics[0].Algorithms[0].Window)
}

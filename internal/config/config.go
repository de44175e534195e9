package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"codeberg.org/mutker/embedids/internal/algorithm"
	"codeberg.org/mutker/embedids/internal/detectors"
	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/ids"
	"codeberg.org/mutker/embedids/internal/logger"
	"codeberg.org/mutker/embedids/internal/metric"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix    = "EMBEDIDS"
	DefaultConfigName   = "embedids"
	DefaultConfigDir    = "/etc"
	DefaultInterval     = 2
	DefaultLogLevel     = "info"
	DefaultPIDFile      = "/run/embedids.pid"
	DefaultHistory      = 32
	DefaultEventsDB     = "/var/lib/embedids/events.db"
	DefaultBatchSize    = 32
	DefaultBatchTimeout = 10
	DefaultListen       = "127.0.0.1:9464"
)

type Config struct {
	Interval   int              `mapstructure:"interval"`
	LogLevel   string           `mapstructure:"log_level"`
	PIDFile    string           `mapstructure:"pid_file"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Events     EventsConfig     `mapstructure:"events"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Metrics    []MetricConfig   `mapstructure:"metrics"`
}

type SourcesConfig struct {
	Host     bool   `mapstructure:"host"`
	GPU      bool   `mapstructure:"gpu"`
	DiskPath string `mapstructure:"disk_path"`
}

type EventsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
	MaxBuffered  int    `mapstructure:"max_buffered"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type MetricConfig struct {
	Name       string            `mapstructure:"name"`
	Kind       string            `mapstructure:"kind"`
	History    int               `mapstructure:"history"`
	Enabled    *bool             `mapstructure:"enabled"`
	Algorithms []AlgorithmConfig `mapstructure:"algorithms"`
}

type AlgorithmConfig struct {
	Type        string             `mapstructure:"type"`
	Enabled     *bool              `mapstructure:"enabled"`
	Min         *float64           `mapstructure:"min"`
	Max         *float64           `mapstructure:"max"`
	Window      int                `mapstructure:"window"`
	MaxSlope    float64            `mapstructure:"max_slope"`
	MaxVariance float64            `mapstructure:"max_variance"`
	Expected    string             `mapstructure:"expected"`
	Detector    string             `mapstructure:"detector"`
	Params      map[string]float64 `mapstructure:"params"`
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "EMBEDIDS".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		if prefix == "" {
			return errors.New().WithData(errors.ErrInvalidArgument, "empty env prefix")
		}
		o.envPrefix = prefix
		return nil
	}
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"interval":          "interval",
	"log-level":         "log_level",
	"pid-file":          "pid_file",
	"events-db":         "events.db_path",
	"prometheus-listen": "prometheus.listen",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to configuration file")
	fs.Int("interval", DefaultInterval, "Sampling interval in seconds")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("pid-file", DefaultPIDFile, "Path to PID file")
	fs.String("events-db", DefaultEventsDB, "Path to anomaly event database")
	fs.String("prometheus-listen", DefaultListen, "Listen address for the metrics endpoint")
}

// Load reads the configuration from defaults, the config file, the
// environment and flags, in increasing order of precedence.
func Load(flags *pflag.FlagSet, opts ...Option) (*Config, error) {
	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
		if f := flags.Lookup("config"); f != nil && f.Changed && o.configPath == "" {
			o.configPath = f.Value.String()
		}
	}

	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfig(v, o.configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New().Wrap(errors.ErrReadConfig, err)
	}

	if len(cfg.Metrics) == 0 {
		cfg.Metrics = DefaultMetrics()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", DefaultPIDFile)
	v.SetDefault("sources.host", true)
	v.SetDefault("sources.gpu", false)
	v.SetDefault("sources.disk_path", "/")
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.db_path", DefaultEventsDB)
	v.SetDefault("events.batch_size", DefaultBatchSize)
	v.SetDefault("events.batch_timeout", DefaultBatchTimeout)
	v.SetDefault("events.max_buffered", 0)
	v.SetDefault("prometheus.enabled", false)
	v.SetDefault("prometheus.listen", DefaultListen)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.New().Wrap(errors.ErrBindFlags, err)
		}
	}
	return nil
}

func readConfig(v *viper.Viper, path string) error {
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.New().Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(DefaultConfigName)
	v.AddConfigPath(DefaultConfigDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.New().Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// DefaultMetrics is the metric set used when the file defines none.
func DefaultMetrics() []MetricConfig {
	maxCPU, maxMem, maxDisk, maxGPUTemp := 95.0, 90.0, 90.0, 85.0

	return []MetricConfig{
		{
			Name: "cpu_percent", Kind: "percentage", History: DefaultHistory,
			Algorithms: []AlgorithmConfig{
				{Type: "threshold", Max: &maxCPU},
				{Type: "custom", Detector: detectors.NameVariance, Params: map[string]float64{"threshold": 400, "window": 8}},
			},
		},
		{
			Name: "mem_percent", Kind: "percentage", History: DefaultHistory,
			Algorithms: []AlgorithmConfig{
				{Type: "threshold", Max: &maxMem},
				{Type: "trend", Window: 8, Expected: "stable"},
			},
		},
		{
			Name: "disk_percent", Kind: "percentage", History: DefaultHistory,
			Algorithms: []AlgorithmConfig{{Type: "threshold", Max: &maxDisk}},
		},
		{
			Name: "net_packets_rate", Kind: "rate", History: DefaultHistory,
			Algorithms: []AlgorithmConfig{
				{Type: "custom", Detector: detectors.NameRateOfChange, Params: map[string]float64{"max_rate": 50000}},
			},
		},
		{
			Name: "gpu_temperature", Kind: "uint32", History: DefaultHistory,
			Algorithms: []AlgorithmConfig{
				{Type: "threshold", Max: &maxGPUTemp},
				{Type: "custom", Detector: detectors.NameRapidChange, Params: map[string]float64{"max_step": 15}},
			},
		},
	}
}

// IsEnabled reports whether the metric is enabled. Metrics default to enabled.
func (m MetricConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// IsEnabled reports whether the algorithm slot is enabled. Slots default to enabled.
func (a AlgorithmConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	if c.Prometheus.Enabled && c.Prometheus.Listen == "" {
		return invalid("prometheus.listen is required when prometheus is enabled")
	}

	if len(c.Metrics) > ids.MaxMetrics {
		return invalid(fmt.Sprintf("%d metrics configured, at most %d supported", len(c.Metrics), ids.MaxMetrics))
	}

	seen := make(map[string]struct{}, len(c.Metrics))
	for i := range c.Metrics {
		m := &c.Metrics[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.Name]; dup {
			return invalid("duplicate metric " + m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	return nil
}

func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}
	if e.DBPath == "" {
		return invalid("events.db_path is required when events are enabled")
	}
	if e.BatchSize <= 0 {
		return invalid("events.batch_size must be positive")
	}
	if e.BatchTimeout <= 0 {
		return invalid("events.batch_timeout must be positive")
	}
	if e.MaxBuffered < 0 || (e.MaxBuffered > 0 && e.MaxBuffered < e.BatchSize) {
		return invalid("events.max_buffered must be zero or at least events.batch_size")
	}
	return nil
}

func (m *MetricConfig) Validate() error {
	if m.Name == "" {
		return invalid("metric without name")
	}
	if len(m.Name) >= metric.MaxNameLen {
		return errors.New().WithData(errors.ErrMetricNameTooLong, m.Name)
	}

	if m.History == 0 {
		m.History = DefaultHistory
	}
	if m.History < 0 {
		return invalid(fmt.Sprintf("metric %s: history must be positive", m.Name))
	}

	if _, ok := metric.ParseKind(m.Kind); !ok {
		return errors.New().WithData(errors.ErrMetricTypeMismatch, fmt.Sprintf("metric %s: kind %q", m.Name, m.Kind))
	}

	if len(m.Algorithms) > ids.MaxAlgorithmsPerMetric {
		return invalid(fmt.Sprintf("metric %s: at most %d algorithms", m.Name, ids.MaxAlgorithmsPerMetric))
	}

	for i := range m.Algorithms {
		if err := m.Algorithms[i].Validate(); err != nil {
			return errors.New().Wrap(errors.CodeOf(err), fmt.Errorf("metric %s: %w", m.Name, err))
		}
	}

	return nil
}

func (a *AlgorithmConfig) Validate() error {
	switch strings.ToLower(a.Type) {
	case "threshold":
		if a.Min == nil && a.Max == nil {
			return invalid("threshold needs min or max")
		}
		if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
			return invalid("threshold min above max")
		}
	case "trend":
		if a.Window == 0 {
			a.Window = 2
		}
		if _, ok := algorithm.ParseTrend(strings.ToLower(a.Expected)); a.Expected != "" && !ok {
			return invalid("unknown trend " + a.Expected)
		}
		if a.Window < 2 || a.MaxSlope < 0 || a.MaxVariance < 0 || math.IsNaN(a.MaxSlope) || math.IsNaN(a.MaxVariance) {
			return invalid("trend window must be at least 2 with non-negative limits")
		}
	case "custom":
		if !detectors.Known(a.Detector) {
			return errors.New().WithData(errors.ErrAlgorithmNotSupported,
				fmt.Sprintf("detector %q, known: %s", a.Detector, strings.Join(detectors.Names(), ", ")))
		}
	default:
		return errors.New().WithData(errors.ErrAlgorithmNotSupported, a.Type)
	}
	return nil
}

func invalid(msg string) error {
	return errors.New().WithData(errors.ErrInvalidConfig, msg)
}

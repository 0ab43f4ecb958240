package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. ZOOM_LOG_LEVEL
const EnvPrefix = "ZOOM"

// Sink types understood by Build
const (
	SinkConsole    = "console"
	SinkFile       = "file"
	SinkLog        = "log"
	SinkPrometheus = "prometheus"
	SinkOTLP       = "otlp"
	SinkSQL        = "sql"
)

// Config is the top-level configuration
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogJSON  bool         `mapstructure:"log_json" yaml:"log_json" json:"log_json"`
	LogFile  string       `mapstructure:"log_file" yaml:"log_file,omitempty" json:"log_file,omitempty"`
	Sinks    []SinkConfig `mapstructure:"sinks" yaml:"sinks" json:"sinks"`
}

// SinkConfig describes one sink. Only the fields relevant to Type are read.
type SinkConfig struct {
	Type string `mapstructure:"type" yaml:"type" json:"type"`
	Name string `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`
	// Enabled is parsed leniently: only "false" disables.
	Enabled string `mapstructure:"enabled" yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Format  string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"`

	// console / file
	Path         string `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
	MaxSizeBytes int64  `mapstructure:"max_size_bytes" yaml:"max_size_bytes,omitempty" json:"max_size_bytes,omitempty"`

	// log
	Level string `mapstructure:"level" yaml:"level,omitempty" json:"level,omitempty"`

	// prometheus
	Namespace string    `mapstructure:"namespace" yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Buckets   []float64 `mapstructure:"buckets" yaml:"buckets,omitempty" json:"buckets,omitempty"`

	// otlp
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure       bool   `mapstructure:"insecure" yaml:"insecure,omitempty" json:"insecure,omitempty"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name,omitempty" json:"service_name,omitempty"`
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version,omitempty" json:"service_version,omitempty"`
	Environment    string `mapstructure:"environment" yaml:"environment,omitempty" json:"environment,omitempty"`

	// sql
	Driver  string        `mapstructure:"driver" yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN     string        `mapstructure:"dsn" yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// RatePerSecond > 0 drops measurements above that rate, per tag
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second,omitempty" json:"rate_per_second,omitempty"`
	Burst         int     `mapstructure:"burst" yaml:"burst,omitempty" json:"burst,omitempty"`
}

// DisplayName returns Name, or Type when no name is set
func (c SinkConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// Default returns the configuration used when no file is found: a single
// console sink.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Sinks:    []SinkConfig{{Type: SinkConsole}},
	}
}

// New returns a viper instance with defaults and environment overrides set up
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML file at path
func Load(path string) (*Config, error) {
	v := New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return FromViper(v)
}

// FromViper decodes v. Without any configured sinks the default console sink is used.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		boolToStringHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = Default().Sinks
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// boolToStringHook keeps an unquoted YAML `enabled: false` meaning "false"
// instead of the weakly typed "0".
func boolToStringHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() == reflect.Bool && to.Kind() == reflect.String {
		return strconv.FormatBool(data.(bool)), nil
	}
	return data, nil
}

// Validate checks that every sink has the settings its type needs
func (c *Config) Validate() error {
	for i, s := range c.Sinks {
		switch s.Type {
		case SinkConsole, SinkLog, SinkPrometheus:
		case SinkFile:
			if s.Path == "" {
				return fmt.Errorf("sink %d (%s): path is required", i, s.DisplayName())
			}
		case SinkOTLP:
			if s.Endpoint == "" {
				return fmt.Errorf("sink %d (%s): endpoint is required", i, s.DisplayName())
			}
		case SinkSQL:
			if s.Driver == "" || s.DSN == "" {
				return fmt.Errorf("sink %d (%s): driver and dsn are required", i, s.DisplayName())
			}
		default:
			return fmt.Errorf("sink %d: unknown type %q", i, s.Type)
		}
	}
	return nil
}

// YAML renders the configuration as a config file
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

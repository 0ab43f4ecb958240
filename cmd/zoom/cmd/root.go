package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/stopwatch/pkg/config"
	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/sink"
)

const metricsNamespace = "zoom"

var (
	cfgFile      string
	logLevel     string
	outputFormat string

	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "zoom",
	Short: "Time commands and send the measurements to configurable sinks",
	Long: `zoom measures how long commands take and records every measurement to the
sinks listed in its configuration: the console, files, structured logs,
Prometheus, OpenTelemetry collectors or a SQL database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.zoom/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
}

// initConfig reads the config file and environment, then sets up logging
func initConfig() error {
	v := config.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".zoom"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded, err := config.FromViper(v)
	if err != nil {
		return err
	}
	cfg = loaded

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFile != "" {
		logger, err = logging.NewFileLogger(cfg.LogFile, level, cfg.LogJSON)
		if err != nil {
			return err
		}
	} else {
		logger = logging.NewLogger(level, cfg.LogJSON)
		logger.SetOutput(os.Stderr)
	}

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("Configuration loaded", logging.Fields{"path": used, "sinks": len(cfg.Sinks)})
	}
	return nil
}

// buildDispatcher creates the configured sinks, registering metrics with reg
func buildDispatcher(ctx context.Context, reg prometheus.Registerer) (*sink.Dispatcher, error) {
	d, err := config.Build(ctx, cfg, logger, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sinks: %w", err)
	}
	return d, nil
}

// addMetricsSink adds a Prometheus sink exporting under the "zoom" namespace
// into reg, unless a configured sink already does
func addMetricsSink(d *sink.Dispatcher, reg prometheus.Registerer, name string, log *logging.Logger) error {
	prom, err := sink.NewPrometheus(name, sink.PrometheusOptions{Namespace: metricsNamespace, Registerer: reg})
	if sink.IsAlreadyRegistered(err) {
		log.Debug("Metrics already exported by a configured sink", logging.Fields{"namespace": metricsNamespace})
		return nil
	}
	if err != nil {
		return err
	}
	d.Add(prom)
	return nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// IsYAMLOutput returns true if YAML output is requested
func IsYAMLOutput() bool {
	return outputFormat == "yaml"
}

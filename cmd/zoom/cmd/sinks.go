package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/stopwatch/pkg/config"
	"github.com/psantana5/stopwatch/pkg/sink"
)

var sinksCmd = &cobra.Command{
	Use:   "sinks",
	Short: "List configured sinks",
	Long:  `Shows every sink from the configuration and whether it is enabled. Sinks are not opened.`,
	RunE:  runSinks,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an example configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := exampleConfig().YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sinksCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configExampleCmd)
}

// SinkSummary describes one configured sink
type SinkSummary struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
}

func summarizeSinks(sinks []config.SinkConfig) []SinkSummary {
	out := make([]SinkSummary, 0, len(sinks))
	for _, sc := range sinks {
		out = append(out, SinkSummary{
			Name:    sc.DisplayName(),
			Type:    sc.Type,
			Enabled: sink.ParseEnabled(sc.Enabled),
			Target:  sinkTarget(sc),
		})
	}
	return out
}

func sinkTarget(sc config.SinkConfig) string {
	switch sc.Type {
	case config.SinkConsole:
		if sc.Path == "stderr" {
			return "stderr"
		}
		return "stdout"
	case config.SinkFile:
		return sc.Path
	case config.SinkLog:
		if sc.Level != "" {
			return "level " + sc.Level
		}
		return "level info"
	case config.SinkPrometheus:
		if sc.Namespace != "" {
			return sc.Namespace + "_timing_duration_seconds"
		}
		return "timing_duration_seconds"
	case config.SinkOTLP:
		return sc.Endpoint
	case config.SinkSQL:
		return sc.Driver
	default:
		return ""
	}
}

func runSinks(cmd *cobra.Command, args []string) error {
	summaries := summarizeSinks(cfg.Sinks)

	switch {
	case IsJSONOutput():
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	case IsYAMLOutput():
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(summaries)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Type", "Enabled", "Target")
	for _, s := range summaries {
		table.Append([]string{s.Name, s.Type, boolToYesNo(s.Enabled), s.Target})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("\n%d sink(s) configured\n", len(summaries))
	return nil
}

func exampleConfig() *config.Config {
	return &config.Config{
		LogLevel: "info",
		Sinks: []config.SinkConfig{
			{Type: config.SinkConsole},
			{Type: config.SinkFile, Name: "timings", Path: "./logs/timings.log", MaxSizeBytes: 10 << 20, Format: "json"},
			{Type: config.SinkLog, Level: "debug", Enabled: "false"},
			{Type: config.SinkPrometheus, Namespace: "zoom"},
			{Type: config.SinkOTLP, Endpoint: "localhost:4318", Insecure: true, Enabled: "false", RatePerSecond: 10, Burst: 5},
			{Type: config.SinkSQL, Driver: "sqlite3", DSN: "./timings.db", Enabled: "false"},
		},
	}
}

func boolToYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

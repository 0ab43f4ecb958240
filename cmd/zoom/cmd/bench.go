package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/sink"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

var (
	benchIterations int
	benchTag        string
	benchShowLaps   bool
	benchMetrics    bool
	benchPassOutput bool
)

var benchCmd = &cobra.Command{
	Use:   "bench [flags] -- command [args...]",
	Short: "Run a command repeatedly and report how long it takes",
	Long: `Runs the command the requested number of times. Every iteration is recorded
as a lap under "<tag>/iteration" and the whole run under "<tag>", through all
enabled sinks. The summary includes the throughput in iterations per second.`,
	Example: `  zoom bench -n 20 -- curl -s http://localhost:8080/health
  zoom bench -n 5 --laps --metrics -- sleep 0.1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntVarP(&benchIterations, "iterations", "n", 10, "number of times to run the command")
	benchCmd.Flags().StringVarP(&benchTag, "tag", "t", "", "tag for the measurements (default is the command name)")
	benchCmd.Flags().BoolVar(&benchShowLaps, "laps", false, "print every iteration")
	benchCmd.Flags().BoolVar(&benchMetrics, "metrics", false, "print the Prometheus metrics collected during the run")
	benchCmd.Flags().BoolVar(&benchPassOutput, "show-output", false, "pass the command's stdout/stderr through")
}

// BenchResult is the machine-readable outcome of a bench run
type BenchResult struct {
	RunID      string               `json:"run_id" yaml:"run_id"`
	Command    string               `json:"command" yaml:"command"`
	Host       string               `json:"host,omitempty" yaml:"host,omitempty"`
	Iterations int                  `json:"iterations" yaml:"iterations"`
	Total      stopwatch.Snapshot   `json:"total" yaml:"total"`
	Laps       []stopwatch.Snapshot `json:"laps,omitempty" yaml:"laps,omitempty"`
	PerSecond  string               `json:"iterations_per_second" yaml:"iterations_per_second"`
	Summary    string               `json:"summary" yaml:"summary"`
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchIterations < 1 {
		return fmt.Errorf("--iterations must be at least 1, got %d", benchIterations)
	}
	tag := benchTag
	if tag == "" {
		tag = args[0]
	}

	reg := prometheus.NewRegistry()
	d, err := buildDispatcher(cmd.Context(), reg)
	if err != nil {
		return err
	}
	defer d.Shutdown()

	if benchMetrics {
		if err := addMetricsSink(d, reg, "bench-metrics", logger); err != nil {
			return err
		}
	}

	runID := uuid.NewString()
	log := logger.WithFields(logging.Fields{"run_id": runID, "tag": tag})
	log.Info("Benchmark started", logging.Fields{"command": strings.Join(args, " "), "iterations": benchIterations})

	out := io.Discard
	if benchPassOutput {
		out = os.Stderr
	}
	run := commandRunner(args, out)

	total, laps, err := runIterations(cmd.Context(), run, benchIterations, tag, d, log)
	if err != nil {
		return err
	}

	result := BenchResult{
		RunID:      runID,
		Command:    strings.Join(args, " "),
		Host:       hostDescription(),
		Iterations: benchIterations,
		Total:      total.Snapshot(),
		Summary:    total.StringIterations(uint64(benchIterations)),
	}
	if rate, err := total.Rate(uint64(benchIterations)); err == nil {
		result.PerSecond = rate.String()
	} else {
		result.PerSecond = "inf"
	}
	if benchShowLaps {
		for _, lap := range laps {
			result.Laps = append(result.Laps, lap.Snapshot())
		}
	}

	log.Info("Benchmark finished", logging.Fields{"elapsed_ns": total.ElapsedNanos()})

	if err := printBenchResult(result, laps); err != nil {
		return err
	}
	if benchMetrics && !IsJSONOutput() && !IsYAMLOutput() {
		return writeMetrics(os.Stdout, reg)
	}
	return nil
}

// commandRunner returns a function that runs args once
func commandRunner(args []string, out io.Writer) func(context.Context) error {
	return func(ctx context.Context) error {
		c := exec.CommandContext(ctx, args[0], args[1:]...)
		c.Stdout = out
		c.Stderr = out
		return c.Run()
	}
}

// runIterations calls run n times, recording each lap as "<tag>/iteration"
// and the whole run as "<tag>". The lap is frozen before recording and
// restarted after it, so sink latency does not count towards the next
// iteration.
func runIterations(ctx context.Context, run func(context.Context) error, n int, tag string, rec sink.Sink, log *logging.Logger) (*stopwatch.StopWatch, []*stopwatch.StopWatch, error) {
	lapTag := tag + "/iteration"
	laps := make([]*stopwatch.StopWatch, 0, n)

	total := stopwatch.New(tag, "")
	lap := stopwatch.New(lapTag, "")
	for i := 0; i < n; i++ {
		if err := run(ctx); err != nil {
			return nil, nil, fmt.Errorf("iteration %d failed: %w", i+1, err)
		}

		frozen := lap.Freeze()
		laps = append(laps, frozen)
		if err := rec.Record(frozen); err != nil {
			log.Warn("Failed to record lap", logging.Fields{"iteration": i + 1, "error": err.Error()})
		}
		lap.Lap()
	}
	total.StopAs(tag)

	if err := rec.Record(total); err != nil {
		log.Warn("Failed to record total", logging.Fields{"error": err.Error()})
	}
	return total, laps, nil
}

func printBenchResult(result BenchResult, laps []*stopwatch.StopWatch) error {
	switch {
	case IsJSONOutput():
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case IsYAMLOutput():
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(result)
	}

	if benchShowLaps {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Elapsed", "Nanoseconds")
		for i, lap := range laps {
			table.Append([]string{
				strconv.Itoa(i + 1),
				stopwatch.FormatNanos(lap.ElapsedNanos()),
				strconv.FormatInt(lap.ElapsedNanos(), 10),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Println()
	}

	fmt.Printf("Run:     %s\n", result.RunID)
	if result.Host != "" {
		fmt.Printf("Host:    %s\n", result.Host)
	}
	fmt.Printf("Command: %s\n", result.Command)
	fmt.Printf("Result:  %s\n", result.Summary)
	return nil
}

// hostDescription returns "<cpu model> (<n> threads)", or "" if unknown
func hostDescription() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return ""
	}
	threads, err := cpu.Counts(true)
	if err != nil {
		return infos[0].ModelName
	}
	return fmt.Sprintf("%s (%d threads)", infos[0].ModelName, threads)
}

// writeMetrics dumps reg in the Prometheus text exposition format
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	fmt.Fprintln(w)
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

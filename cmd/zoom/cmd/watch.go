package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/shutdown"
	"github.com/psantana5/stopwatch/pkg/sink"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

var (
	watchInterval time.Duration
	watchListen   string
	watchTag      string
	watchTimeout  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] -- command [args...]",
	Short: "Run a command on an interval and export its timings",
	Long: `Runs the command every interval, records how long each run took through all
enabled sinks, and serves the collected Prometheus metrics on /metrics until
interrupted with SIGINT or SIGTERM.`,
	Example: `  zoom watch --interval 30s --listen :9464 -- pg_isready -h db`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "time between runs")
	watchCmd.Flags().StringVar(&watchListen, "listen", ":9464", "address to serve /metrics on")
	watchCmd.Flags().StringVarP(&watchTag, "tag", "t", "", "tag for the measurements (default is the command name)")
	watchCmd.Flags().DurationVar(&watchTimeout, "shutdown-timeout", 10*time.Second, "maximum time for a graceful shutdown")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", watchInterval)
	}
	tag := watchTag
	if tag == "" {
		tag = args[0]
	}

	reg := prometheus.NewRegistry()
	d, err := buildDispatcher(cmd.Context(), reg)
	if err != nil {
		return err
	}
	if err := addMetricsSink(d, reg, "watch-metrics", logger); err != nil {
		return errors.Join(err, d.Shutdown())
	}

	log := logger.WithField("tag", tag)
	srv := &http.Server{
		Addr:         watchListen,
		Handler:      newWatchRouter(reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	m := shutdown.New(watchTimeout, logger)
	m.Register("sinks", shutdown.ShutdownSink(d))
	m.Register("http", shutdown.StopHTTPServer(srv))

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Serving metrics", logging.Fields{"addr": watchListen})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", logging.Fields{"error": err.Error()})
			serverErr <- err
			m.Shutdown()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchLoop(ctx, args, tag, watchInterval, d, log)
	}()
	m.Register("runner", func(context.Context) error {
		cancel()
		wg.Wait()
		return nil
	})

	waitCtx, stopWait := context.WithCancel(cmd.Context())
	defer stopWait()
	go func() {
		<-m.Done()
		stopWait()
	}()
	err = m.WaitWithContext(waitCtx)

	select {
	case serr := <-serverErr:
		return errors.Join(fmt.Errorf("metrics server failed: %w", serr), err)
	default:
		return err
	}
}

func newWatchRouter(reg *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	return router
}

// watchLoop runs args immediately and then on every tick until ctx is done
func watchLoop(ctx context.Context, args []string, tag string, interval time.Duration, rec sink.Sink, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sw := timeCommand(ctx, args, tag)
		if ctx.Err() != nil {
			return
		}
		if err := rec.Record(sw); err != nil {
			log.Warn("Failed to record run", logging.Fields{"error": err.Error()})
		}
		log.Debug(sw.String())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// timeCommand runs args once. A failed run keeps its timing and carries the
// error in the message.
func timeCommand(ctx context.Context, args []string, tag string) *stopwatch.StopWatch {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdout = os.Stderr
	c.Stderr = os.Stderr

	sw := stopwatch.New(tag, "")
	if err := c.Run(); err != nil {
		return sw.StopWith(tag, " (failed: "+strings.TrimSpace(err.Error())+")")
	}
	return sw.Stop()
}

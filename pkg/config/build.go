package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/sink"
)

// Build creates every configured sink and returns them behind a Dispatcher.
// reg receives the Prometheus collectors; nil means the default registerer.
// If any sink fails to build, the ones already built are shut down.
func Build(ctx context.Context, cfg *Config, logger *logging.Logger, reg prometheus.Registerer) (*sink.Dispatcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	d := sink.NewDispatcher(logger)
	for i, sc := range cfg.Sinks {
		s, err := buildSink(ctx, sc, logger, reg)
		if err != nil {
			return nil, abandon(d, fmt.Errorf("sink %d (%s): %w", i, sc.DisplayName(), err))
		}
		if sc.RatePerSecond > 0 {
			s = sink.NewThrottled(s, sc.RatePerSecond, sc.Burst)
		}
		s.SetEnabled(sc.Enabled)
		d.Add(s)

		logger.Debug("Sink configured", logging.Fields{
			"sink":    sc.DisplayName(),
			"type":    sc.Type,
			"enabled": s.IsEnabled(),
		})
	}
	return d, nil
}

// abandon shuts down the sinks built so far and adds any failure to err
func abandon(d interface{ Shutdown() error }, err error) error {
	if cerr := d.Shutdown(); cerr != nil {
		return errors.Join(err, fmt.Errorf("cleanup: %w", cerr))
	}
	return err
}

func buildSink(ctx context.Context, sc SinkConfig, logger *logging.Logger, reg prometheus.Registerer) (sink.Sink, error) {
	name := sc.DisplayName()
	format := sink.ParseFormat(sc.Format)

	switch sc.Type {
	case SinkConsole:
		w := os.Stdout
		if sc.Path == "stderr" {
			w = os.Stderr
		}
		return sink.NewWriter(name, w, format), nil

	case SinkFile:
		return sink.NewFile(name, sc.Path, format, sc.MaxSizeBytes)

	case SinkLog:
		level := logging.INFO
		if sc.Level != "" {
			level = logging.ParseLevel(sc.Level)
		}
		return sink.NewLog(name, logger.WithField("sink", name), level), nil

	case SinkPrometheus:
		return sink.NewPrometheus(name, sink.PrometheusOptions{
			Namespace:  sc.Namespace,
			Buckets:    sc.Buckets,
			Registerer: reg,
		})

	case SinkOTLP:
		serviceName := sc.ServiceName
		if serviceName == "" {
			serviceName = "zoom"
		}
		return sink.NewOTLPTrace(ctx, name, sink.TraceConfig{
			ServiceName:    serviceName,
			ServiceVersion: sc.ServiceVersion,
			Environment:    sc.Environment,
			Endpoint:       sc.Endpoint,
			Insecure:       sc.Insecure,
		})

	case SinkSQL:
		return sink.NewSQL(name, sc.Driver, sc.DSN, sc.Timeout)

	default:
		return nil, fmt.Errorf("unknown sink type %q", sc.Type)
	}
}

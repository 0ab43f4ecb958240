package sink

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// PrometheusOptions configures a Prometheus sink
type PrometheusOptions struct {
	Namespace string
	// Buckets in seconds. prometheus.DefBuckets when empty.
	Buckets []float64
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Prometheus observes every measurement into a histogram labelled by tag.
// Aggregation happens in Prometheus, not here.
type Prometheus struct {
	Base

	name       string
	registerer prometheus.Registerer
	duration   *prometheus.HistogramVec
	recorded   *prometheus.CounterVec

	mu     sync.RWMutex
	closed bool
}

// NewPrometheus creates and registers the collectors
func NewPrometheus(name string, opts PrometheusOptions) (*Prometheus, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "timing_duration_seconds",
			Help:      "Elapsed time of measured code sections in seconds",
			Buckets:   opts.Buckets,
		},
		[]string{"tag"},
	)
	recorded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "timings_recorded_total",
			Help:      "Total number of measurements recorded",
		},
		[]string{"tag"},
	)

	var err error
	if duration, err = register(opts.Registerer, duration); err != nil {
		return nil, err
	}
	if recorded, err = register(opts.Registerer, recorded); err != nil {
		opts.Registerer.Unregister(duration)
		return nil, err
	}

	return &Prometheus{
		name:       name,
		registerer: opts.Registerer,
		duration:   duration,
		recorded:   recorded,
	}, nil
}

// register registers c. A collector that is already registered belongs to
// another sink, so the AlreadyRegisteredError is returned wrapped rather than
// shared.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		return c, fmt.Errorf("failed to register timing metrics: %w", err)
	}
	return c, nil
}

// IsAlreadyRegistered reports whether err comes from a namespace that another
// sink already exports into the same registry
func IsAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}

// Name implements Named
func (s *Prometheus) Name() string {
	return s.name
}

// Record observes the elapsed time of sw
func (s *Prometheus) Record(sw *stopwatch.StopWatch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.duration.WithLabelValues(sw.Tag()).Observe(sw.Elapsed().Seconds())
	s.recorded.WithLabelValues(sw.Tag()).Inc()
	return nil
}

// Shutdown unregisters the collectors
func (s *Prometheus) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.registerer.Unregister(s.duration)
	s.registerer.Unregister(s.recorded)
	return nil
}

package sink

import (
	"errors"
	"fmt"
	"sync"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Named is implemented by sinks that want a readable name in logs
type Named interface {
	Name() string
}

// NameOf returns the sink's name, or its Go type when it has none
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Dispatcher fans a measurement out to every enabled sink.
// It is itself a Sink, so dispatchers can be nested.
type Dispatcher struct {
	Base

	mu       sync.RWMutex
	sinks    []Sink
	logger   *logging.Logger
	shutdown bool
}

// NewDispatcher creates a dispatcher over sinks
func NewDispatcher(logger *logging.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
	}
}

// Name implements Named
func (d *Dispatcher) Name() string {
	return "dispatcher"
}

// Add registers another sink
func (d *Dispatcher) Add(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Sinks returns the registered sinks in registration order
func (d *Dispatcher) Sinks() []Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Sink(nil), d.sinks...)
}

// Record freezes sw once and passes the copy to every enabled sink.
// Failures are logged and joined; one failing sink does not stop the others.
func (d *Dispatcher) Record(sw *stopwatch.StopWatch) error {
	if !d.IsEnabled() {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shutdown {
		return ErrClosed
	}

	frozen := sw.Freeze()
	var errs []error
	for _, s := range d.sinks {
		if !s.IsEnabled() {
			continue
		}
		if err := s.Record(frozen); err != nil {
			name := NameOf(s)
			d.logger.Error("Failed to record timing", logging.Fields{
				"sink":  name,
				"tag":   frozen.Tag(),
				"error": err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown shuts every sink down in reverse registration order.
// Calling it again is a no-op.
func (d *Dispatcher) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown {
		return nil
	}
	d.shutdown = true

	var errs []error
	for i := len(d.sinks) - 1; i >= 0; i-- {
		s := d.sinks[i]
		if err := s.Shutdown(); err != nil {
			name := NameOf(s)
			d.logger.Error("Failed to shut down sink", logging.Fields{"sink": name, "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.logger.Debug("Sinks shut down", logging.Fields{"count": len(d.sinks)})
	return errors.Join(errs...)
}

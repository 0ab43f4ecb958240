package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Func is a named shutdown step
type Func struct {
	Name string
	Fn   func(context.Context) error
}

// Manager runs registered shutdown steps once a signal arrives
type Manager struct {
	mu      sync.Mutex
	funcs   []Func
	timeout time.Duration
	logger  *logging.Logger
	done    chan struct{}
	once    sync.Once
}

// New creates a manager that gives all steps together at most timeout
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a shutdown step. Steps run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, Func{Name: name, Fn: fn})
}

// Done is closed when shutdown starts
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown runs every step, newest first, and times the whole sequence.
// Only the first call does anything.
func (m *Manager) Shutdown() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = m.run()
	})
	return err
}

func (m *Manager) run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sw := stopwatch.New("shutdown", "")
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var failed int
	for i := len(m.funcs) - 1; i >= 0; i-- {
		f := m.funcs[i]
		err := f.Fn(ctx)
		step := sw.Freeze()
		sw.Lap()

		fields := logging.Fields{
			"step":       f.Name,
			"elapsed":    stopwatch.FormatNanos(step.ElapsedNanos()),
			"elapsed_ns": step.ElapsedNanos(),
		}
		if err != nil {
			failed++
			fields["error"] = err.Error()
			m.logger.Error("Shutdown step failed", fields)
			continue
		}
		m.logger.Debug("Shutdown step done", fields)
	}

	m.logger.Info("Graceful shutdown complete", logging.Fields{"steps": len(m.funcs), "failed": failed})
	if failed > 0 {
		return fmt.Errorf("%d of %d shutdown steps failed", failed, len(m.funcs))
	}
	return nil
}

// WaitWithContext blocks until SIGINT/SIGTERM or ctx is done, then shuts down.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("Received signal, initiating graceful shutdown", logging.Fields{"signal": sig.String()})
	case <-ctx.Done():
		m.logger.Info("Context done, initiating graceful shutdown")
	}
	return m.Shutdown()
}

// StopHTTPServer creates a shutdown step for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// ShutdownSink creates a shutdown step for anything with a Shutdown() error
// method, such as a sink.Dispatcher
func ShutdownSink(s interface{ Shutdown() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- s.Shutdown() }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("timeout shutting down sink: %w", ctx.Err())
		}
	}
}

package sink

import (
	"sync/atomic"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Log writes measurements as structured log entries
type Log struct {
	Base

	name   string
	logger *logging.Logger
	level  logging.Level
	closed atomic.Bool
}

// NewLog creates a sink logging at level
func NewLog(name string, logger *logging.Logger, level logging.Level) *Log {
	return &Log{name: name, logger: logger, level: level}
}

// Name implements Named
func (s *Log) Name() string {
	return s.name
}

// Record logs sw with its tag and elapsed time as fields
func (s *Log) Record(sw *stopwatch.StopWatch) error {
	if s.closed.Load() {
		return ErrClosed
	}
	fields := logging.Fields{
		"tag":        sw.Tag(),
		"elapsed_ns": sw.ElapsedNanos(),
	}
	if sw.Message() != "" {
		fields["message"] = sw.Message()
	}
	s.logger.Log(s.level, sw.String(), fields)
	return nil
}

// Shutdown stops further records. The logger belongs to the caller.
func (s *Log) Shutdown() error {
	s.closed.Store(true)
	return nil
}

package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Format selects how line-oriented sinks render a measurement
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a config string to a Format, defaulting to text
func ParseFormat(s string) Format {
	if Format(s) == FormatJSON {
		return FormatJSON
	}
	return FormatText
}

func formatLine(sw *stopwatch.StopWatch, format Format) ([]byte, error) {
	if format == FormatJSON {
		data, err := json.Marshal(sw.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal timing: %w", err)
		}
		return append(data, '\n'), nil
	}
	return []byte(sw.String() + "\n"), nil
}

// Writer writes one line per measurement to an io.Writer.
// The writer is not closed on Shutdown.
type Writer struct {
	Base

	name   string
	format Format
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// NewWriter creates a sink writing to w
func NewWriter(name string, w io.Writer, format Format) *Writer {
	return &Writer{name: name, w: w, format: format}
}

// Name implements Named
func (s *Writer) Name() string {
	return s.name
}

// Record writes sw as a single line
func (s *Writer) Record(sw *stopwatch.StopWatch) error {
	line, err := formatLine(sw, s.format)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write timing: %w", err)
	}
	return nil
}

// Shutdown stops accepting records
func (s *Writer) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Package sink defines where finished StopWatch measurements go.
//
// A Sink decides how a measurement is surfaced: written to a file, exported
// as a metric, stored as a row. Sinks carry an enabled flag, but Record does
// not consult it; whoever fans measurements out (see Dispatcher) checks
// IsEnabled first.
package sink

import (
	"errors"
	"sync/atomic"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// ErrClosed is returned by sinks in this package when Record is called after Shutdown.
var ErrClosed = errors.New("sink: closed")

// DisableValue is the only SetEnabled input that disables a sink.
const DisableValue = "false"

// Sink receives finished measurements
type Sink interface {
	// SetEnabled parses raw with ParseEnabled. It never fails.
	SetEnabled(raw string)
	IsEnabled() bool
	// Record surfaces sw. It may be called on a disabled sink.
	Record(sw *stopwatch.StopWatch) error
	// Shutdown releases held resources. Record must not be called afterwards.
	Shutdown() error
}

// ParseEnabled reports false only for the exact string "false". Anything
// else, including "False", "0" and "", means enabled.
func ParseEnabled(raw string) bool {
	return raw != DisableValue
}

// Base provides the enabled flag and a no-op Shutdown. Embed it in concrete
// sinks. The zero value is enabled.
type Base struct {
	disabled atomic.Bool
}

// SetEnabled sets the flag from a string, see ParseEnabled
func (b *Base) SetEnabled(raw string) {
	b.disabled.Store(!ParseEnabled(raw))
}

// IsEnabled reports the current flag
func (b *Base) IsEnabled() bool {
	return !b.disabled.Load()
}

// Shutdown does nothing
func (b *Base) Shutdown() error {
	return nil
}

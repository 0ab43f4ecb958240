package stopwatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"lukechampine.com/uint128"
)

// DefaultTag is used when a StopWatch is created without a tag.
const DefaultTag = "?"

const nanosInSecond = 1000 * 1000 * 1000

// ErrNoElapsedTime is returned by Rate when the measured interval is empty.
var ErrNoElapsedTime = errors.New("stopwatch: no elapsed time")

// StopWatch measures the elapsed time of a code section with nanosecond
// precision (though not necessarily accuracy).
//
// The tag is a short grouping identifier. The message travels with the
// StopWatch and is printed by String.
//
// A StopWatch is not safe for concurrent use. Hand a Freeze copy to anything
// that outlives the current flow of control.
type StopWatch struct {
	clock     clockwork.Clock
	tag       string
	message   string
	startedAt time.Time
	stoppedAt time.Time
	stopped   bool
}

// Option configures a StopWatch
type Option func(*StopWatch)

// WithClock sets the time source. The real clock is used by default.
func WithClock(c clockwork.Clock) Option {
	return func(sw *StopWatch) {
		sw.clock = c
	}
}

// New creates a running StopWatch.
func New(tag, message string, opts ...Option) *StopWatch {
	if tag == "" {
		tag = DefaultTag
	}
	sw := &StopWatch{
		clock:   clockwork.NewRealClock(),
		tag:     tag,
		message: message,
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw.Start()
}

// Start (re)sets the start time and puts the StopWatch back into the running state.
func (sw *StopWatch) Start() *StopWatch {
	sw.startedAt = sw.clock.Now()
	sw.stopped = false
	return sw
}

// Stop records the stop time. Stopping again overwrites it with a later reading.
func (sw *StopWatch) Stop() *StopWatch {
	sw.stoppedAt = sw.clock.Now()
	sw.stopped = true
	return sw
}

// StopAs sets the tag and stops.
func (sw *StopWatch) StopAs(tag string) *StopWatch {
	sw.tag = tag
	return sw.Stop()
}

// StopWith sets the tag and the message and stops.
func (sw *StopWatch) StopWith(tag, message string) *StopWatch {
	sw.tag = tag
	sw.message = message
	return sw.Stop()
}

// Lap stops and immediately restarts the StopWatch. The interval that just
// ended is lost; Freeze first if you need it.
func (sw *StopWatch) Lap() *StopWatch {
	sw.Stop()
	return sw.Start()
}

// Tag returns the grouping identifier
func (sw *StopWatch) Tag() string {
	return sw.tag
}

// Message returns the free-form message, empty if none was set
func (sw *StopWatch) Message() string {
	return sw.message
}

// StartedAt returns the start reading
func (sw *StopWatch) StartedAt() time.Time {
	return sw.startedAt
}

// StoppedAt returns the stop reading and whether the StopWatch is stopped
func (sw *StopWatch) StoppedAt() (time.Time, bool) {
	return sw.stoppedAt, sw.stopped
}

// Running reports whether the StopWatch has been started but not stopped
func (sw *StopWatch) Running() bool {
	return !sw.stopped
}

// Elapsed returns the measured interval. A running StopWatch reports the
// time since Start.
func (sw *StopWatch) Elapsed() time.Duration {
	if sw.stopped {
		return sw.stoppedAt.Sub(sw.startedAt)
	}
	return sw.clock.Since(sw.startedAt)
}

// ElapsedNanos returns Elapsed in nanoseconds.
func (sw *StopWatch) ElapsedNanos() int64 {
	return sw.Elapsed().Nanoseconds()
}

// Freeze returns an independent, stopped copy. A running StopWatch is
// stopped at the time of the call in the copy only.
func (sw *StopWatch) Freeze() *StopWatch {
	frozen := &StopWatch{
		clock:     sw.clock,
		tag:       sw.tag,
		message:   sw.message,
		startedAt: sw.startedAt,
		stoppedAt: sw.stoppedAt,
		stopped:   true,
	}
	if !sw.stopped {
		frozen.stoppedAt = sw.clock.Now()
	}
	return frozen
}

// Rate returns iterations per second over the elapsed interval, truncated.
func (sw *StopWatch) Rate(iterations uint64) (uint128.Uint128, error) {
	ns := sw.ElapsedNanos()
	if ns <= 0 {
		return uint128.Zero, ErrNoElapsedTime
	}
	return uint128.From64(iterations).Mul64(nanosInSecond).Div64(uint64(ns)), nil
}

// String returns a human-readable form such as "db-query: 120 us".
// Do not parse it; the format is for people.
func (sw *StopWatch) String() string {
	return sw.tag + ": " + FormatNanos(sw.ElapsedNanos()) + sw.message
}

// StringIterations is String plus the throughput of the measured loop:
//
//	sw := stopwatch.New("test", "")
//	for i := 0; i < 1000; i++ {
//		// Do something
//	}
//	fmt.Println(sw.Stop().StringIterations(1000))
//
// might print "test: 14520 ms (68 iterations/second)". A StopWatch with no
// elapsed time reports "inf" iterations per second.
func (sw *StopWatch) StringIterations(iterations uint64) string {
	var b strings.Builder
	b.WriteString(sw.tag)
	b.WriteString(": ")
	b.WriteString(FormatNanos(sw.ElapsedNanos()))
	if sw.message != "" {
		b.WriteString(" ")
		b.WriteString(sw.message)
	}

	rate, err := sw.Rate(iterations)
	if err != nil {
		b.WriteString(" (inf iterations/second)")
	} else {
		fmt.Fprintf(&b, " (%s iterations/second)", rate.String())
	}
	return b.String()
}

// FormatNanos scales ns to the coarsest unit that still shows at least 50 of it.
func FormatNanos(ns int64) string {
	switch {
	case ns < 50*1000:
		return fmt.Sprintf("%d ns", ns)
	case ns < 50*1000*1000:
		return fmt.Sprintf("%d us", ns/1000)
	case ns < 50*1000*1000*1000:
		return fmt.Sprintf("%d ms", ns/(1000*1000))
	default:
		return fmt.Sprintf("%d s", ns/nanosInSecond)
	}
}

package sink

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Throttled forwards at most rps measurements per second per tag to the
// wrapped sink, with the given burst. Excess measurements are dropped and
// counted.
type Throttled struct {
	Base

	next     Sink
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	dropped  atomic.Uint64
	closed   atomic.Bool
}

// NewThrottled wraps next
func NewThrottled(next Sink, rps float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:     next,
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Name implements Named
func (s *Throttled) Name() string {
	return NameOf(s.next)
}

// Unwrap returns the wrapped sink
func (s *Throttled) Unwrap() Sink {
	return s.next
}

// SetEnabled applies to the wrapped sink as well
func (s *Throttled) SetEnabled(raw string) {
	s.Base.SetEnabled(raw)
	s.next.SetEnabled(raw)
}

// IsEnabled requires both the wrapper and the wrapped sink to be enabled
func (s *Throttled) IsEnabled() bool {
	return s.Base.IsEnabled() && s.next.IsEnabled()
}

func (s *Throttled) limiter(tag string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[tag]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[tag] = l
	}
	return l
}

// Record forwards sw unless its tag is over the limit
func (s *Throttled) Record(sw *stopwatch.StopWatch) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.limiter(sw.Tag()).Allow() {
		s.dropped.Add(1)
		return nil
	}
	return s.next.Record(sw)
}

// Dropped returns how many measurements were discarded
func (s *Throttled) Dropped() uint64 {
	return s.dropped.Load()
}

// Shutdown shuts the wrapped sink down
func (s *Throttled) Shutdown() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.next.Shutdown()
}

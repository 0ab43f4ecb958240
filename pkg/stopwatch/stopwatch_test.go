package stopwatch

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFake(tag, message string) (*StopWatch, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(tag, message, WithClock(clock)), clock
}

func TestNewStartsImmediately(t *testing.T) {
	sw := New("tag", "message")
	time.Sleep(2 * time.Millisecond)

	if sw.ElapsedNanos() <= 0 {
		t.Errorf("expected positive elapsed time, got %d", sw.ElapsedNanos())
	}
	if !sw.Running() {
		t.Error("new StopWatch should be running")
	}
}

func TestNewDefaultTag(t *testing.T) {
	sw, _ := newFake("", "")
	assert.Equal(t, DefaultTag, sw.Tag())
}

func TestStopFreezesElapsed(t *testing.T) {
	sw, clock := newFake("t", "")
	clock.Advance(300 * time.Microsecond)
	sw.Stop()

	e1 := sw.ElapsedNanos()
	clock.Advance(5 * time.Second)
	e2 := sw.ElapsedNanos()

	assert.Equal(t, e1, e2)
	assert.Equal(t, int64(300_000), e1)
}

func TestStopFreezesElapsedRealClock(t *testing.T) {
	sw := New("t", "").Stop()
	e1 := sw.ElapsedNanos()
	time.Sleep(time.Millisecond)
	assert.Equal(t, e1, sw.ElapsedNanos())
}

func TestRunningElapsedMonotonic(t *testing.T) {
	sw := New("t", "")
	prev := sw.ElapsedNanos()
	for i := 0; i < 1000; i++ {
		cur := sw.ElapsedNanos()
		if cur < prev {
			t.Fatalf("elapsed went backwards: %d < %d", cur, prev)
		}
		prev = cur
	}
}

func TestDoubleStopOverwrites(t *testing.T) {
	sw, clock := newFake("t", "")
	clock.Advance(10 * time.Nanosecond)
	sw.Stop()
	clock.Advance(20 * time.Nanosecond)
	sw.Stop()

	assert.Equal(t, int64(30), sw.ElapsedNanos())
}

func TestStopAsAndStopWith(t *testing.T) {
	sw, _ := newFake("a", "m")

	sw.StopAs("b")
	assert.Equal(t, "b", sw.Tag())
	assert.Equal(t, "m", sw.Message())
	assert.False(t, sw.Running())

	sw.Start()
	assert.True(t, sw.Running())

	sw.StopWith("c", " done")
	assert.Equal(t, "c", sw.Tag())
	assert.Equal(t, " done", sw.Message())
}

func TestStartKeepsTagAndMessage(t *testing.T) {
	sw, clock := newFake("keep", "msg")
	clock.Advance(time.Second)
	sw.Stop().Start()

	assert.Equal(t, "keep", sw.Tag())
	assert.Equal(t, "msg", sw.Message())
	assert.Equal(t, int64(0), sw.ElapsedNanos())
}

func TestLap(t *testing.T) {
	sw, clock := newFake("lap", "")
	clock.Advance(100 * time.Nanosecond)

	first := sw.Freeze()
	sw.Lap()
	clock.Advance(40 * time.Nanosecond)

	assert.True(t, sw.Running())
	assert.Equal(t, int64(40), sw.ElapsedNanos())
	assert.Equal(t, int64(100), first.ElapsedNanos())
}

func TestFreezeIndependence(t *testing.T) {
	sw, clock := newFake("orig", "msg")
	clock.Advance(time.Millisecond)

	frozen := sw.Freeze()
	require.False(t, frozen.Running())
	assert.True(t, sw.Running(), "freezing must not stop the original")
	assert.Equal(t, sw.Tag(), frozen.Tag())
	assert.Equal(t, sw.Message(), frozen.Message())
	assert.Equal(t, sw.StartedAt(), frozen.StartedAt())

	clock.Advance(time.Millisecond)
	sw.Lap()
	sw.StopWith("changed", "other")
	assert.Equal(t, int64(time.Millisecond), frozen.ElapsedNanos())
	assert.Equal(t, "orig", frozen.Tag())

	origStart := sw.StartedAt()
	frozen.Start()
	frozen.Lap()
	assert.Equal(t, origStart, sw.StartedAt())
}

func TestFreezeOfStoppedKeepsStopTime(t *testing.T) {
	sw, clock := newFake("t", "")
	clock.Advance(7 * time.Microsecond)
	sw.Stop()
	clock.Advance(time.Hour)

	frozen := sw.Freeze()
	stoppedAt, ok := frozen.StoppedAt()
	require.True(t, ok)
	orig, _ := sw.StoppedAt()
	assert.Equal(t, orig, stoppedAt)
	assert.Equal(t, int64(7000), frozen.ElapsedNanos())
}

func TestFormatThresholds(t *testing.T) {
	tests := []struct {
		name string
		ns   int64
		want string
	}{
		{"zero", 0, "0 ns"},
		{"just below us", 49_999, "49999 ns"},
		{"us boundary", 50_000, "50 us"},
		{"just below ms", 49_999_999, "49999 us"},
		{"ms boundary", 50_000_000, "50 ms"},
		{"just below s", 49_999_999_999, "49999 ms"},
		{"s boundary", 50_000_000_000, "50 s"},
		{"truncates", 120_999_999_999, "120 s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw, clock := newFake("x", "")
			clock.Advance(time.Duration(tt.ns))
			sw.Stop()

			if got := sw.String(); got != "x: "+tt.want {
				t.Errorf("String() = %q, want %q", got, "x: "+tt.want)
			}
		})
	}
}

func TestStringScenario(t *testing.T) {
	sw, clock := newFake("db-query", "")
	clock.Advance(120_000 * time.Nanosecond)
	sw.Stop()

	assert.Equal(t, "db-query: 120 us", sw.String())
}

func TestStringWithMessage(t *testing.T) {
	sw, clock := newFake("db-query", "")
	clock.Advance(3 * time.Millisecond)
	sw.StopWith("db-query", " (users)")

	assert.Equal(t, "db-query: 3000 us (users)", sw.String())
}

func TestStringIterations(t *testing.T) {
	sw, clock := newFake("loop", "")
	clock.Advance(time.Second)
	sw.Stop()

	assert.Equal(t, "loop: 1000 ms (1000 iterations/second)", sw.StringIterations(1000))

	rate, err := sw.Rate(1000)
	require.NoError(t, err)
	assert.True(t, rate.Equals64(1000))
}

func TestStringIterationsWithMessage(t *testing.T) {
	sw, clock := newFake("loop", "")
	clock.Advance(14520 * time.Millisecond)
	sw.StopWith("test", "warm")

	assert.Equal(t, "test: 14520 ms warm (68 iterations/second)", sw.StringIterations(1000))
}

func TestStringIterationsZeroElapsed(t *testing.T) {
	sw, _ := newFake("instant", "")
	sw.Stop()

	_, err := sw.Rate(10)
	assert.ErrorIs(t, err, ErrNoElapsedTime)
	assert.Equal(t, "instant: 0 ns (inf iterations/second)", sw.StringIterations(10))
}

func TestRateDoesNotOverflow(t *testing.T) {
	sw, clock := newFake("big", "")
	clock.Advance(time.Nanosecond)
	sw.Stop()

	rate, err := sw.Rate(1 << 62)
	require.NoError(t, err)
	// 2^62 * 1e9 does not fit in 64 bits
	assert.Equal(t, "4611686018427387904000000000", rate.String())
}

func TestSnapshot(t *testing.T) {
	sw, clock := newFake("snap", "m")
	clock.Advance(2 * time.Microsecond)

	running := sw.Snapshot()
	assert.True(t, running.Running)
	assert.Nil(t, running.StoppedAt)
	assert.Equal(t, int64(2000), running.ElapsedNano)

	sw.Stop()
	stopped := sw.Snapshot()
	assert.False(t, stopped.Running)
	require.NotNil(t, stopped.StoppedAt)
	assert.Equal(t, sw.StartedAt().Add(2*time.Microsecond), *stopped.StoppedAt)
}

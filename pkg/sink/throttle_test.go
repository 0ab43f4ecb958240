package sink

import (
	"errors"
	"testing"
	"time"
)

func TestThrottledPerTag(t *testing.T) {
	next := &recorder{name: "next"}
	// 1 per second with a burst of 2: the third record of a tag in the same
	// instant is dropped
	s := NewThrottled(next, 1, 2)

	for i := 0; i < 3; i++ {
		if err := s.Record(stopped("hot", time.Millisecond)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(stopped("cold", time.Millisecond)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if next.count() != 3 {
		t.Errorf("expected 3 forwarded records, got %d", next.count())
	}
	if s.Dropped() != 1 {
		t.Errorf("expected 1 dropped record, got %d", s.Dropped())
	}
}

func TestThrottledEnabledFollowsWrapped(t *testing.T) {
	next := &recorder{name: "next"}
	s := NewThrottled(next, 10, 1)

	if s.Name() != "next" {
		t.Errorf("Name() = %q, want wrapped sink name", s.Name())
	}

	s.SetEnabled("false")
	if s.IsEnabled() || next.IsEnabled() {
		t.Error("disabling the wrapper should disable the wrapped sink")
	}

	s.SetEnabled("true")
	next.SetEnabled("false")
	if s.IsEnabled() {
		t.Error("wrapper should report disabled when the wrapped sink is")
	}
}

func TestThrottledShutdown(t *testing.T) {
	var closed []string
	next := &recorder{name: "next", shutdown: func(name string) { closed = append(closed, name) }}

	if err := NewThrottled(next, 1, 1).Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(closed) != 1 {
		t.Error("Shutdown should reach the wrapped sink")
	}
}

func TestThrottledAfterShutdown(t *testing.T) {
	var closed []string
	next := &recorder{name: "next", shutdown: func(name string) { closed = append(closed, name) }}
	s := NewThrottled(next, 1, 1)

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if len(closed) != 1 {
		t.Errorf("wrapped sink shut down %d times, want 1", len(closed))
	}

	if err := s.Record(stopped("t", time.Millisecond)); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after Shutdown = %v, want ErrClosed", err)
	}
	if next.count() != 0 || s.Dropped() != 0 {
		t.Error("a record after Shutdown must neither reach the wrapped sink nor count as dropped")
	}
}

package stopwatch

import "time"

// Snapshot is the serializable form of a StopWatch
type Snapshot struct {
	Tag         string     `json:"tag" yaml:"tag"`
	Message     string     `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	ElapsedNano int64      `json:"elapsed_ns" yaml:"elapsed_ns"`
	Running     bool       `json:"running" yaml:"running"`
}

// Snapshot captures the current state. A running StopWatch reports its live
// elapsed time and no stop time.
func (sw *StopWatch) Snapshot() Snapshot {
	s := Snapshot{
		Tag:         sw.tag,
		Message:     sw.message,
		StartedAt:   sw.startedAt,
		ElapsedNano: sw.ElapsedNanos(),
		Running:     !sw.stopped,
	}
	if sw.stopped {
		stoppedAt := sw.stoppedAt
		s.StoppedAt = &stoppedAt
	}
	return s
}

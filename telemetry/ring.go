package telemetry

import "time"

// RingBuffer retains the most recent window of samples for one battery, used to attach context to a
// CRITICAL AlertEvent so the backend can see what the site was doing in the seconds leading up to the
// fault without a follow-up query. Not safe for concurrent use - one per Battery, fed from its own tick
// loop.
type RingBuffer struct {
	window  time.Duration
	samples []Sample
}

// NewRingBuffer retains samples younger than window. window <= 0 defaults to 10s.
func NewRingBuffer(window time.Duration) *RingBuffer {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &RingBuffer{window: window}
}

// Add records a new sample and evicts anything that has fallen outside the window.
func (r *RingBuffer) Add(s Sample) {
	r.samples = append(r.samples, s)
	cutoff := s.Time.Add(-r.window)
	i := 0
	for i < len(r.samples) && r.samples[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.samples = append([]Sample(nil), r.samples[i:]...)
	}
}

// Snapshot returns a copy of the currently retained samples, oldest first.
func (r *RingBuffer) Snapshot() []Sample {
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

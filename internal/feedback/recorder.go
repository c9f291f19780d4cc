package feedback

import (
	"sync"
	"time"
)

// Recorder is a sink that keeps every event, for tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of what has been recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Tags returns the recorded events as tags.
func (r *Recorder) Tags() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Tag()
	}
	return out
}

// WaitFor blocks until match reports true for the recorded events or the
// timeout passes. It reports whether the match happened.
func (r *Recorder) WaitFor(timeout time.Duration, match func([]Event) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if match(r.Events()) {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return match(r.Events())
		}
	}
}

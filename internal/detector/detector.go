// Package detector turns classifier and button streams into trigger events.
// Every adapter runs on its own goroutine and publishes into the shared
// trigger queue without blocking.
package detector

import (
	"context"
	"iter"
	"strings"
	"time"
)

// Sample is one classification of one frame.
type Sample struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	At         time.Time
}

// Classifier produces an infinite lazy stream of samples. Calling Detect
// again restarts the underlying model. A sequence that yields an error ends.
type Classifier interface {
	Name() string
	Detect(ctx context.Context) iter.Seq2[Sample, error]
}

// idleLabels never confirm a trigger.
var idleLabels = map[string]bool{"none": true, "background": true, "nothing": true, "": true}

// Debouncer confirms a label once it has been seen strictly above the threshold for
// a run of consecutive samples.
type Debouncer struct {
	threshold float64
	frames    int

	label string
	count int
}

// NewDebouncer creates a debouncer. frames below one is treated as one.
func NewDebouncer(threshold float64, frames int) *Debouncer {
	return &Debouncer{threshold: threshold, frames: max(1, frames)}
}

// Observe feeds one sample and reports whether it completes a confirmation.
// A sample must be strictly above the threshold to extend the streak; the
// streak resets after a confirmation, on a label change or otherwise.
func (d *Debouncer) Observe(s Sample) bool {
	label := strings.ToLower(strings.TrimSpace(s.Label))
	if idleLabels[label] || normalizeConfidence(s.Confidence) <= d.threshold {
		d.Reset()
		return false
	}
	if label != d.label {
		d.label, d.count = label, 0
	}
	d.count++
	if d.count < d.frames {
		return false
	}
	d.Reset()
	return true
}

// Reset clears the streak.
func (d *Debouncer) Reset() {
	d.label, d.count = "", 0
}

// normalizeConfidence accepts both fractions and percentages.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		return c / 100
	}
	return c
}

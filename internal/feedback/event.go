// Package feedback carries phase-change events from the engine to the
// status display, the audio cues and any other observers. Emission never
// blocks the engine; a single dispatcher preserves order.
package feedback

import (
	"fmt"
	"time"
)

// Phase is an engine phase.
type Phase int

const (
	Idle Phase = iota
	Armed
	Countdown
	Capturing
	Analyzing
	Generating
	Printing
	Cooldown
	Error
)

var phaseNames = [...]string{"idle", "armed", "countdown", "capturing", "analyzing", "generating", "printing", "cooldown", "error"}

func (p Phase) String() string {
	if int(p) >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Reason is the machine-readable cause of an Error phase.
type Reason string

const (
	NoReason         Reason = ""
	CaptureFailed    Reason = "capture_failed"
	AnalysisFailed   Reason = "analysis_failed"
	GenerationFailed Reason = "generation_failed"
	PrintFailed      Reason = "print_failed"
)

// Event is one phase entry. Remaining is set for Countdown ticks and Reason
// for Error.
type Event struct {
	Phase     Phase     `json:"phase"`
	Remaining int       `json:"remaining,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	At        time.Time `json:"at"`
}

// StatusID is the canonical id used to look up display text: the reason for
// errors that carry one, otherwise the phase name.
func (e Event) StatusID() string {
	if e.Phase == Error && e.Reason != NoReason {
		return string(e.Reason)
	}
	return e.Phase.String()
}

// Tag renders the event as a compact tag such as Countdown(3) or
// Error(capture_failed).
func (e Event) Tag() string {
	switch e.Phase {
	case Countdown:
		return fmt.Sprintf("countdown(%d)", e.Remaining)
	case Error:
		return fmt.Sprintf("error(%s)", e.Reason)
	default:
		return e.Phase.String()
	}
}

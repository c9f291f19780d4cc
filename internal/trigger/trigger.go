// Package trigger defines the events that start a pipeline run and the
// bounded queue that carries them from detector adapters to the engine.
package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which adapter produced an event.
type Source int

const (
	// GestureModelA is the Teachable Machine classifier.
	GestureModelA Source = iota
	// GestureModelB is the MediaPipe hand landmark classifier.
	GestureModelB
	// ManualButton is the physical (or HTTP) button.
	ManualButton
)

func (s Source) String() string {
	switch s {
	case GestureModelA:
		return "gesture_a"
	case GestureModelB:
		return "gesture_b"
	case ManualButton:
		return "button"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Event is an immutable trigger produced by an adapter.
type Event struct {
	Source     Source
	Label      string
	Confidence float64
	At         time.Time
}

// Mode is the interaction mode selected on the device.
type Mode int

const (
	ModeTeachable Mode = iota
	ModeMediaPipe
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeTeachable:
		return "teachable"
	case ModeMediaPipe:
		return "mediapipe"
	case ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the canonical names plus a few aliases used on the LCD menu.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "teachable", "teachable_machine", "tm":
		return ModeTeachable, nil
	case "mediapipe", "mp":
		return ModeMediaPipe, nil
	case "manual", "button", "":
		return ModeManual, nil
	default:
		return ModeManual, fmt.Errorf("unknown mode %q", s)
	}
}

// Accepts reports whether an event from src may arm a run in mode m. Each
// mode listens to exactly one source.
func (m Mode) Accepts(src Source) bool {
	switch src {
	case ManualButton:
		return m == ModeManual
	case GestureModelA:
		return m == ModeTeachable
	case GestureModelB:
		return m == ModeMediaPipe
	default:
		return false
	}
}

package feedback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/logging"
)

// Cue names an audio cue.
type Cue string

const (
	CueStartup         Cue = "startup"
	CueSystemReady     Cue = "system_ready"
	CueButtonPress     Cue = "button_press"
	CueGestureDetected Cue = "gesture_detected"
	CueCountdown       Cue = "countdown"
	CueCapture         Cue = "capture"
	CueProcessing      Cue = "processing"
	CuePrintStart      Cue = "print_start"
	CuePrintComplete   Cue = "print_complete"
	CueSuccess         Cue = "success"
	CueError           Cue = "error"
	CueModeSwitch      Cue = "mode_switch"
)

// Tone is one note; a zero frequency is a rest.
type Tone struct {
	Hz  float64
	Dur time.Duration
}

// Note frequencies in Hz.
const (
	C4 = 261.63
	D4 = 293.66
	E4 = 329.63
	F4 = 349.23
	G4 = 392.00
	A4 = 440.00
	B4 = 493.88
	C5 = 523.25
	D5 = 587.33
	E5 = 659.25
)

const noteGap = 50 * time.Millisecond

func melody(d time.Duration, notes ...float64) []Tone {
	out := make([]Tone, 0, 2*len(notes))
	for i, n := range notes {
		if i > 0 {
			out = append(out, Tone{Dur: noteGap})
		}
		out = append(out, Tone{Hz: n, Dur: d})
	}
	return out
}

// Melodies holds the tone sequence of every cue.
var Melodies = map[Cue][]Tone{
	CueStartup:         melody(200*time.Millisecond, C4, D4, E4, F4, G4),
	CueSystemReady:     melody(300*time.Millisecond, C4, E4, G4),
	CueButtonPress:     {{A4, 100 * time.Millisecond}},
	CueGestureDetected: melody(150*time.Millisecond, E4, G4),
	CueCountdown:       {{G4, 150 * time.Millisecond}},
	CueCapture:         {{C5, 100 * time.Millisecond}, {0, noteGap}, {E5, 100 * time.Millisecond}},
	CueProcessing:      melody(300*time.Millisecond, F4, A4, F4, A4),
	CuePrintStart: {
		{D4, 100 * time.Millisecond}, {0, noteGap},
		{D4, 100 * time.Millisecond}, {0, noteGap},
		{D4, 100 * time.Millisecond},
	},
	CuePrintComplete: melody(200*time.Millisecond, G4, C5, E5, G4, C5),
	CueSuccess:       melody(250*time.Millisecond, C4, E4, G4, C5),
	CueError:         melody(200*time.Millisecond, B4, A4, G4, F4),
	CueModeSwitch:    melody(150*time.Millisecond, C4, E4, C4),
}

// CueFor maps a phase event to its cue. Idle has none.
func CueFor(e Event) (Cue, bool) {
	switch e.Phase {
	case Armed:
		return CueGestureDetected, true
	case Countdown:
		return CueCountdown, true
	case Capturing:
		return CueCapture, true
	case Analyzing, Generating:
		return CueProcessing, true
	case Printing:
		return CuePrintStart, true
	case Cooldown:
		return CuePrintComplete, true
	case Error:
		return CueError, true
	}
	return "", false
}

// Player renders a cue.
type Player interface {
	Play(ctx context.Context, cue Cue) error
}

// BuzzerPlayer bit-bangs tones on a GPIO buzzer line.
type BuzzerPlayer struct {
	gpio hardware.GPIO
}

// NewBuzzerPlayer creates a player on g.
func NewBuzzerPlayer(g hardware.GPIO) *BuzzerPlayer {
	return &BuzzerPlayer{gpio: g}
}

func (p *BuzzerPlayer) Play(ctx context.Context, cue Cue) error {
	for _, t := range Melodies[cue] {
		if err := p.tone(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (p *BuzzerPlayer) tone(ctx context.Context, t Tone) error {
	if t.Hz <= 0 {
		select {
		case <-time.After(t.Dur):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	half := time.Duration(float64(time.Second) / t.Hz / 2)
	ticker := time.NewTicker(half)
	defer ticker.Stop()
	deadline := time.NewTimer(t.Dur)
	defer deadline.Stop()
	defer p.gpio.SetBuzzer(false)

	on := true
	if err := p.gpio.SetBuzzer(on); err != nil {
		return err
	}
	for {
		select {
		case <-ticker.C:
			on = !on
			if err := p.gpio.SetBuzzer(on); err != nil {
				return err
			}
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CueSink plays cues for phase events on its own goroutine so slow melodies
// never hold up the bus. The LED is lit while a run is active.
type CueSink struct {
	player Player
	gpio   hardware.GPIO
	queue  chan Cue
	logger zerolog.Logger
}

// NewCueSink creates a cue sink. gpio may be nil when there is no LED.
func NewCueSink(player Player, gpio hardware.GPIO) *CueSink {
	return &CueSink{
		player: player,
		gpio:   gpio,
		queue:  make(chan Cue, 16),
		logger: logging.WithComponent("cues"),
	}
}

func (s *CueSink) Handle(e Event) {
	if s.gpio != nil {
		led := e.Phase != Idle
		if e.Phase == Countdown {
			led = e.Remaining%2 == 1
		}
		if err := s.gpio.SetLED(led); err != nil {
			s.logger.Debug().Err(err).Msg("LED update failed")
		}
	}
	if cue, ok := CueFor(e); ok {
		s.Enqueue(cue)
	}
}

// Enqueue schedules cue without blocking; when the queue is full it is skipped.
func (s *CueSink) Enqueue(cue Cue) {
	select {
	case s.queue <- cue:
	default:
		s.logger.Debug().Str("cue", string(cue)).Msg("Cue queue full, skipping")
	}
}

// Run plays queued cues in order until ctx is done.
func (s *CueSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cue := <-s.queue:
			if err := s.player.Play(ctx, cue); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("cue", string(cue)).Msg("Cue playback failed")
			}
		}
	}
}

// Package engine runs the trigger-to-output state machine. A single control
// goroutine consumes trigger events, and while a run is in flight every other
// trigger is held in the bounded queue and discarded when the run ends.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/chat"
	"github.com/fpang/poetry-camera/internal/config"
	"github.com/fpang/poetry-camera/internal/feedback"
	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/logging"
	"github.com/fpang/poetry-camera/internal/metrics"
	"github.com/fpang/poetry-camera/internal/printout"
	"github.com/fpang/poetry-camera/internal/store"
	"github.com/fpang/poetry-camera/internal/trigger"
)

// Services are the two chained text services.
type Services interface {
	DescribeImage(ctx context.Context, image []byte, mime string) (*chat.Description, error)
	ComposeArtifact(ctx context.Context, description string) (string, error)
}

// Emitter receives phase events. It must not block.
type Emitter interface {
	Emit(feedback.Event)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options wires an engine. Store may be nil.
type Options struct {
	Config     config.EngineConfig
	Mode       trigger.Mode
	Queue      *trigger.Queue
	Camera     *hardware.Chain[hardware.Camera]
	Printer    *hardware.Chain[hardware.Printer]
	Services   Services
	Dispatcher *printout.Dispatcher
	Store      *store.Store
	Feedback   Emitter

	// Sleep and Now default to real time.
	Sleep Sleeper
	Now   func() time.Time
}

// Status is a snapshot of the engine for status endpoints.
type Status struct {
	Phase     feedback.Phase  `json:"phase"`
	Remaining int             `json:"remaining,omitempty"`
	Reason    feedback.Reason `json:"reason,omitempty"`
	RunID     string          `json:"runId,omitempty"`
	Mode      string          `json:"mode"`
	Since     time.Time       `json:"since"`
	Runs      int64           `json:"runs"`
	Discarded int64           `json:"discarded"`
}

// Engine is the orchestration state machine.
type Engine struct {
	cfg        config.EngineConfig
	queue      *trigger.Queue
	camera     *hardware.Chain[hardware.Camera]
	printer    *hardware.Chain[hardware.Printer]
	services   Services
	dispatcher *printout.Dispatcher
	store      *store.Store
	feedback   Emitter
	sleep      Sleeper
	now        func() time.Time
	logger     zerolog.Logger

	mode      atomic.Int32
	active    atomic.Int32
	runs      atomic.Int64
	discarded atomic.Int64

	// captureFailures counts consecutive failed captures. Only the control
	// goroutine touches it.
	captureFailures int

	mu     sync.RWMutex
	status Status
}

// New creates an engine. It starts in Idle without emitting an event.
func New(opts Options) *Engine {
	e := &Engine{
		cfg:        opts.Config,
		queue:      opts.Queue,
		camera:     opts.Camera,
		printer:    opts.Printer,
		services:   opts.Services,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		feedback:   opts.Feedback,
		sleep:      opts.Sleep,
		now:        opts.Now,
		logger:     logging.WithComponent("engine"),
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.cfg.CountdownTicks < 0 {
		e.cfg.CountdownTicks = 0
	}
	if e.cfg.CaptureFailures < 1 {
		e.cfg.CaptureFailures = 1
	}
	e.mode.Store(int32(opts.Mode))
	e.status = Status{Phase: feedback.Idle, Mode: opts.Mode.String(), Since: e.now()}
	return e
}

// Mode returns the interaction mode.
func (e *Engine) Mode() trigger.Mode {
	return trigger.Mode(e.mode.Load())
}

// SetMode switches the interaction mode. It takes effect for the next
// trigger the control loop examines and reports whether the mode changed.
func (e *Engine) SetMode(m trigger.Mode) bool {
	old := trigger.Mode(e.mode.Swap(int32(m)))
	if old == m {
		return false
	}
	e.mu.Lock()
	e.status.Mode = m.String()
	e.mu.Unlock()
	e.logger.Info().Str("from", old.String()).Str("to", m.String()).Msg("Interaction mode changed")
	return true
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Runs = e.runs.Load()
	s.Discarded = e.discarded.Load()
	return s
}

// Run consumes triggers until ctx is done. A run in flight when ctx is
// cancelled still finishes.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Str("mode", e.Mode().String()).Msg("Engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine stopped")
			return nil
		case <-e.queue.Ready():
			e.consume(ctx)
		}
	}
}

// consume pops queued events until one starts a run or the queue is empty.
func (e *Engine) consume(ctx context.Context) {
	for {
		ev, ok := e.queue.Pop()
		if !ok {
			return
		}
		mode := e.Mode()
		if !mode.Accepts(ev.Source) {
			metrics.Triggers.WithLabelValues(ev.Source.String(), "filtered").Inc()
			e.logger.Debug().
				Str("source", ev.Source.String()).
				Str("mode", mode.String()).
				Msg("Trigger ignored in current mode")
			continue
		}
		metrics.Triggers.WithLabelValues(ev.Source.String(), "accepted").Inc()
		e.execute(context.WithoutCancel(ctx), ev, mode)
		return
	}
}

// discardPending drops triggers that arrived during a run so that a fresh
// trigger is needed once Idle is reached.
func (e *Engine) discardPending() {
	if n := e.queue.Drain(); n > 0 {
		e.discarded.Add(int64(n))
		metrics.Triggers.WithLabelValues("any", "discarded").Add(float64(n))
		e.logger.Debug().Int("count", n).Msg("Discarded triggers received during run")
	}
}

// enter records and emits a phase change.
func (e *Engine) enter(run *store.Run, phase feedback.Phase, remaining int, reason feedback.Reason) {
	at := e.now()
	var runID string
	if run != nil && phase != feedback.Idle {
		runID = run.ID
	}
	e.mu.Lock()
	e.status.Phase = phase
	e.status.Remaining = remaining
	e.status.Reason = reason
	e.status.RunID = runID
	e.status.Since = at
	e.mu.Unlock()

	if phase != feedback.Countdown || remaining == e.cfg.CountdownTicks {
		metrics.PhaseTransitions.WithLabelValues(phase.String()).Inc()
	}
	if e.feedback != nil {
		e.feedback.Emit(feedback.Event{Phase: phase, Remaining: remaining, Reason: reason, RunID: runID, At: at})
	}
}

// ActiveRuns reports how many runs are between Armed and Idle. It is never
// more than one.
func (e *Engine) ActiveRuns() int {
	return int(e.active.Load())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reasonError pairs a failure reason with its cause.
type reasonError struct {
	reason feedback.Reason
	err    error
}

func (r *reasonError) Error() string { return string(r.reason) + ": " + r.err.Error() }
func (r *reasonError) Unwrap() error { return r.err }

func fail(reason feedback.Reason, err error) error {
	return &reasonError{reason: reason, err: err}
}

// ReasonOf extracts the failure reason from a run error.
func ReasonOf(err error) feedback.Reason {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	return feedback.NoReason
}

// Package hardware resolves a concrete backend for each device class by
// probing an ordered candidate list, falling back to a simulation backend
// that honours the same interface when nothing real is available.
package hardware

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/poetry-camera/internal/metrics"
)

// Class is a device class.
type Class string

const (
	ClassCamera  Class = "camera"
	ClassGPIO    Class = "gpio"
	ClassPrinter Class = "printer"
)

// SimulationBackend is the backend name of every simulation handle.
const SimulationBackend = "simulation"

// ErrUnavailable reports that a device cannot serve requests right now.
var ErrUnavailable = errors.New("device unavailable")

// DeviceGone reports whether err means the backend itself disappeared, such
// as an unplugged device node or a removed capture tool.
func DeviceGone(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound)
}

// Capabilities are the static properties a backend declares when probed.
type Capabilities struct {
	FrameWidth  int
	FrameHeight int
	Columns     int
	HasButton   bool
}

// Candidate is one backend to try for a device class.
type Candidate[T any] struct {
	Name  string
	Probe func(ctx context.Context) (T, Capabilities, error)
}

// Handle is the resolved backend for a device class.
type Handle[T any] struct {
	Class        Class
	Backend      string
	Simulated    bool
	Capabilities Capabilities
	Device       T
}

// ProbeFailure records a candidate whose probe failed.
type ProbeFailure struct {
	Candidate string
	Err       error
}

// Outcome describes one resolution.
type Outcome struct {
	Class     Class
	Backend   string
	Simulated bool
	Failures  []ProbeFailure
	Skipped   []string
}

// Observer receives every resolution outcome.
type Observer func(Outcome)

// LogObserver logs the outcome and counts it.
func LogObserver(o Outcome) {
	for _, f := range o.Failures {
		metrics.BackendProbeFailures.WithLabelValues(string(o.Class), f.Candidate).Inc()
		log.Debug().Err(f.Err).
			Str("class", string(o.Class)).
			Str("candidate", f.Candidate).
			Msg("Backend probe failed")
	}
	metrics.BackendResolutions.WithLabelValues(string(o.Class), o.Backend, metrics.Bool(o.Simulated)).Inc()

	evt := log.Info()
	if o.Simulated {
		evt = log.Warn()
	}
	evt.Str("class", string(o.Class)).
		Str("backend", o.Backend).
		Bool("simulated", o.Simulated).
		Int("failedProbes", len(o.Failures)).
		Strs("skipped", o.Skipped).
		Msg("Device backend resolved")
}

// Resolve probes candidates in order and returns the first that succeeds.
// When every probe fails the simulation candidate is used; its probe is
// expected never to fail, and Resolve never returns an error. skip names
// candidates to pass over without probing.
func Resolve[T any](ctx context.Context, class Class, candidates []Candidate[T], sim Candidate[T], skip map[string]bool, observers ...Observer) *Handle[T] {
	out := Outcome{Class: class}

	for _, c := range candidates {
		if skip[c.Name] {
			out.Skipped = append(out.Skipped, c.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Failures = append(out.Failures, ProbeFailure{Candidate: c.Name, Err: err})
			continue
		}
		dev, caps, err := c.Probe(ctx)
		if err != nil {
			out.Failures = append(out.Failures, ProbeFailure{Candidate: c.Name, Err: err})
			continue
		}
		out.Backend = c.Name
		notify(out, observers)
		return &Handle[T]{Class: class, Backend: c.Name, Capabilities: caps, Device: dev}
	}

	dev, caps, err := sim.Probe(context.WithoutCancel(ctx))
	if err != nil {
		// A simulation that cannot start still yields a handle; the
		// device methods report ErrUnavailable.
		out.Failures = append(out.Failures, ProbeFailure{Candidate: SimulationBackend, Err: err})
	}
	out.Backend = SimulationBackend
	out.Simulated = true
	notify(out, observers)
	return &Handle[T]{Class: class, Backend: SimulationBackend, Simulated: true, Capabilities: caps, Device: dev}
}

func notify(o Outcome, observers []Observer) {
	for _, obs := range observers {
		if obs != nil {
			obs(o)
		}
	}
}

// Chain owns the candidate list for one device class so it can be
// re-resolved after a persistent failure. A failed candidate is skipped only
// by the re-resolution it triggered; later resolutions probe it again.
type Chain[T any] struct {
	class      Class
	candidates []Candidate[T]
	sim        Candidate[T]
	observers  []Observer

	mu     sync.Mutex
	handle *Handle[T]
}

// NewChain creates a chain for class.
func NewChain[T any](class Class, candidates []Candidate[T], sim Candidate[T], observers ...Observer) *Chain[T] {
	return &Chain[T]{
		class:      class,
		candidates: candidates,
		sim:        sim,
		observers:  observers,
	}
}

// Resolve resolves the class and remembers the handle.
func (c *Chain[T]) Resolve(ctx context.Context) *Handle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = Resolve(ctx, c.class, c.candidates, c.sim, nil, c.observers...)
	return c.handle
}

// Reresolve closes the current device and resolves again, passing over the
// failed candidate this once. Re-resolving away from the simulation backend
// is allowed: a real device may have appeared.
func (c *Chain[T]) Reresolve(ctx context.Context, failed string) *Handle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var skip map[string]bool
	if failed != SimulationBackend {
		skip = map[string]bool{failed: true}
	}
	log.Warn().Str("class", string(c.class)).Str("failed", failed).Msg("Re-resolving device backend")
	if c.handle != nil {
		if cl, ok := any(c.handle.Device).(io.Closer); ok {
			if err := cl.Close(); err != nil {
				log.Debug().Err(err).Str("class", string(c.class)).Msg("Closing failed backend")
			}
		}
	}
	c.handle = Resolve(ctx, c.class, c.candidates, c.sim, skip, c.observers...)
	return c.handle
}

// Handle returns the current handle, or nil before the first Resolve.
func (c *Chain[T]) Handle() *Handle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

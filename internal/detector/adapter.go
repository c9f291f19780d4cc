package detector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/logging"
	"github.com/fpang/poetry-camera/internal/metrics"
	"github.com/fpang/poetry-camera/internal/trigger"
)

const maxRestartBackoff = 30 * time.Second

// Publisher accepts trigger events without blocking.
type Publisher interface {
	Publish(trigger.Event)
}

// Adapter runs one gesture classifier and publishes confirmed gestures.
type Adapter struct {
	source     trigger.Source
	classifier Classifier
	debouncer  *Debouncer
	out        Publisher
	backoff    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// AdapterOptions configures a gesture adapter.
type AdapterOptions struct {
	Threshold      float64
	ConfirmFrames  int
	RestartBackoff time.Duration
}

// NewAdapter creates an adapter for source.
func NewAdapter(source trigger.Source, c Classifier, out Publisher, opts AdapterOptions) *Adapter {
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = time.Second
	}
	return &Adapter{
		source:     source,
		classifier: c,
		debouncer:  NewDebouncer(opts.Threshold, opts.ConfirmFrames),
		out:        out,
		backoff:    opts.RestartBackoff,
		now:        time.Now,
		logger:     logging.WithComponent("detector").With().Str("source", source.String()).Str("classifier", c.Name()).Logger(),
	}
}

// Run consumes the classifier until ctx is done, restarting it with
// exponential backoff whenever its stream ends.
func (a *Adapter) Run(ctx context.Context) error {
	backoff := a.backoff
	for {
		healthy := a.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if healthy {
			backoff = a.backoff
		}
		metrics.DetectorRestarts.WithLabelValues(a.source.String()).Inc()
		a.logger.Warn().Dur("backoff", backoff).Msg("Classifier stream ended, restarting")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, maxRestartBackoff)
	}
}

// consume reads one classifier stream and reports whether it produced any
// sample, which resets the restart backoff.
func (a *Adapter) consume(ctx context.Context) bool {
	a.debouncer.Reset()
	a.logger.Info().Msg("Classifier started")
	healthy := false
	for s, err := range a.classifier.Detect(ctx) {
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Error().Err(err).Msg("Classifier failed")
			}
			return healthy
		}
		healthy = true
		if !a.debouncer.Observe(s) {
			continue
		}
		at := s.At
		if at.IsZero() {
			at = a.now()
		}
		a.logger.Info().Str("label", s.Label).Float64("confidence", s.Confidence).Msg("Gesture confirmed")
		a.out.Publish(trigger.Event{
			Source:     a.source,
			Label:      s.Label,
			Confidence: normalizeConfidence(s.Confidence),
			At:         at,
		})
	}
	return healthy
}

// ButtonAdapter turns pressed GPIO edges into ManualButton events.
type ButtonAdapter struct {
	gpio     *hardware.Chain[hardware.GPIO]
	out      Publisher
	debounce time.Duration
	onPress  func()
	logger   zerolog.Logger
}

// NewButtonAdapter creates a button adapter reading the resolved GPIO.
// onPress, when set, runs for every accepted press.
func NewButtonAdapter(gpio *hardware.Chain[hardware.GPIO], out Publisher, debounce time.Duration, onPress func()) *ButtonAdapter {
	return &ButtonAdapter{
		gpio:     gpio,
		out:      out,
		debounce: debounce,
		onPress:  onPress,
		logger:   logging.WithComponent("detector").With().Str("source", trigger.ManualButton.String()).Logger(),
	}
}

// Run forwards presses until ctx is done or the edge channel closes.
func (b *ButtonAdapter) Run(ctx context.Context) error {
	h := b.gpio.Handle()
	if h == nil {
		h = b.gpio.Resolve(ctx)
	}
	if h.Device == nil {
		b.logger.Warn().Msg("No GPIO device, button disabled")
		<-ctx.Done()
		return nil
	}
	edges := h.Device.Edges()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-edges:
			if !ok {
				b.logger.Warn().Msg("Button edge stream closed")
				return nil
			}
			if !e.Pressed {
				continue
			}
			if !last.IsZero() && e.At.Sub(last) < b.debounce {
				b.logger.Debug().Msg("Button bounce ignored")
				continue
			}
			last = e.At
			b.logger.Info().Msg("Button pressed")
			if b.onPress != nil {
				b.onPress()
			}
			b.out.Publish(trigger.Event{Source: trigger.ManualButton, Label: "button", Confidence: 1, At: e.At})
		}
	}
}

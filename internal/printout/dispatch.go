package printout

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/logging"
	"github.com/fpang/poetry-camera/internal/metrics"
)

// Job is a formatted, encoded receipt ready to send.
type Job struct {
	Doc  *Document
	Data []byte
}

// Dispatcher formats poems and sends them to a resolved printer.
type Dispatcher struct {
	columns int
	now     func() time.Time
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher. columns is the paper width used when a
// printer handle does not declare one. now may be nil.
func NewDispatcher(columns int, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{columns: columns, now: now, logger: logging.WithComponent("printout")}
}

// Columns returns the wrap width for the printer behind h.
func (d *Dispatcher) Columns(h *hardware.Handle[hardware.Printer]) int {
	if h != nil && h.Capabilities.Columns > 0 {
		return h.Capabilities.Columns
	}
	return d.columns
}

// Prepare formats and encodes poem for the printer behind h.
func (d *Dispatcher) Prepare(h *hardware.Handle[hardware.Printer], poem string) (*Job, error) {
	doc := Format(poem, d.Columns(h), d.now())
	data, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	return &Job{Doc: doc, Data: data}, nil
}

// Send writes job to the printer behind h.
func (d *Dispatcher) Send(ctx context.Context, h *hardware.Handle[hardware.Printer], job *Job) error {
	start := time.Now()
	if err := h.Device.Send(ctx, job.Data); err != nil {
		d.logger.Warn().Err(err).Str("backend", h.Backend).Msg("Print failed")
		return fmt.Errorf("print via %s: %w", h.Backend, err)
	}
	metrics.PrintedBytes.WithLabelValues(h.Backend).Add(float64(len(job.Data)))
	d.logger.Info().
		Str("backend", h.Backend).
		Int("bytes", len(job.Data)).
		Int("lines", len(job.Doc.Lines)).
		Dur("duration", time.Since(start)).
		Msg("Receipt printed")
	return nil
}

// Dispatch prepares and sends poem in one step.
func (d *Dispatcher) Dispatch(ctx context.Context, h *hardware.Handle[hardware.Printer], poem string) (*Job, error) {
	job, err := d.Prepare(h, poem)
	if err != nil {
		return nil, err
	}
	return job, d.Send(ctx, h, job)
}

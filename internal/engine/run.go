package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/chat"
	"github.com/fpang/poetry-camera/internal/feedback"
	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/metrics"
	"github.com/fpang/poetry-camera/internal/printout"
	"github.com/fpang/poetry-camera/internal/store"
	"github.com/fpang/poetry-camera/internal/trigger"
)

// execute drives one run from Armed back to Idle. It never returns early:
// every failure ends in Error, then Idle.
func (e *Engine) execute(ctx context.Context, ev trigger.Event, mode trigger.Mode) {
	e.active.Add(1)
	defer e.active.Add(-1)
	e.runs.Add(1)

	started := e.now()
	run := store.NewRun(ev.Source.String(), mode.String(), started)
	log := e.logger.With().Str("runId", run.ID).Logger()
	log.Info().
		Str("source", ev.Source.String()).
		Str("label", ev.Label).
		Float64("confidence", ev.Confidence).
		Msg("Run armed")

	e.enter(run, feedback.Armed, 0, feedback.NoReason)
	e.persist(ctx, log, "begin", func() error { return e.store.Begin(ctx, run) })

	err := e.pipeline(ctx, log, run)
	result := store.ResultCompleted
	if err != nil {
		reason := ReasonOf(err)
		result = string(reason)
		run.Error = err.Error()
		log.Error().Err(err).Str("reason", string(reason)).Msg("Run failed")
		e.enter(run, feedback.Error, 0, reason)
		e.finish(ctx, log, run, result)
		_ = e.sleep(ctx, e.cfg.ErrorHold)
	} else {
		e.finish(ctx, log, run, result)
	}

	metrics.Runs.WithLabelValues(result).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	e.discardPending()
	e.enter(run, feedback.Idle, 0, feedback.NoReason)
	log.Info().Str("result", result).Dur("duration", e.now().Sub(started)).Msg("Run finished")
}

func (e *Engine) pipeline(ctx context.Context, log zerolog.Logger, run *store.Run) error {
	for remaining := e.cfg.CountdownTicks; remaining >= 1; remaining-- {
		e.enter(run, feedback.Countdown, remaining, feedback.NoReason)
		_ = e.sleep(ctx, e.cfg.Tick)
	}

	e.enter(run, feedback.Capturing, 0, feedback.NoReason)
	capture, err := e.capture(ctx, log, run)
	if err != nil {
		return fail(feedback.CaptureFailed, err)
	}

	e.enter(run, feedback.Analyzing, 0, feedback.NoReason)
	desc, err := e.services.DescribeImage(ctx, capture.Image, capture.MIME)
	if err != nil {
		return fail(feedback.AnalysisFailed, err)
	}
	run.Description = desc.Text
	run.Story = desc.Story
	e.persist(ctx, log, "description", func() error {
		if err := e.store.Artifacts.WriteText(run, store.FileDescription, desc.String()); err != nil {
			return err
		}
		return e.store.Artifacts.WriteText(run, store.FileStory, desc.Story)
	})

	e.enter(run, feedback.Generating, 0, feedback.NoReason)
	poem, err := e.services.ComposeArtifact(ctx, desc.PromptJSON())
	if err != nil {
		return fail(feedback.GenerationFailed, err)
	}
	run.Poem = poem
	e.persist(ctx, log, "poem", func() error {
		if err := e.store.Artifacts.WriteText(run, store.FilePoem, poem); err != nil {
			return err
		}
		return e.store.Checkpoint(ctx, run)
	})

	e.enter(run, feedback.Printing, 0, feedback.NoReason)
	if err := e.print(ctx, log, run, poem); err != nil {
		return fail(feedback.PrintFailed, err)
	}

	e.enter(run, feedback.Cooldown, 0, feedback.NoReason)
	_ = e.sleep(ctx, e.cfg.Cooldown)
	return nil
}

func (e *Engine) capture(ctx context.Context, log zerolog.Logger, run *store.Run) (*hardware.Capture, error) {
	h := e.camera.Handle()
	if h == nil {
		h = e.camera.Resolve(ctx)
	}
	run.Backends.Camera = h.Backend
	if h.Device == nil {
		return nil, hardware.ErrUnavailable
	}
	capture, err := h.Device.Capture(ctx)
	if err != nil {
		e.captureFailures++
		if !h.Simulated && (e.captureFailures >= e.cfg.CaptureFailures || hardware.DeviceGone(err)) {
			// The next run gets another backend; this one still fails.
			log.Warn().Err(err).
				Str("backend", h.Backend).
				Int("consecutiveFailures", e.captureFailures).
				Msg("Capture failing, re-resolving camera")
			e.camera.Reresolve(ctx, h.Backend)
			e.captureFailures = 0
		}
		return nil, err
	}
	e.captureFailures = 0
	e.persist(ctx, log, "capture", func() error { return e.store.Artifacts.WriteCapture(run, capture) })
	return capture, nil
}

// print sends the receipt, re-resolving the printer and retrying once when
// the first send fails. The receipt is wrapped to the width of whichever
// printer it goes to.
func (e *Engine) print(ctx context.Context, log zerolog.Logger, run *store.Run, poem string) error {
	h := e.printer.Handle()
	if h == nil {
		h = e.printer.Resolve(ctx)
	}
	job, err := e.prepare(ctx, log, run, h, poem)
	if err != nil {
		return err
	}
	run.Backends.Printer = h.Backend
	run.PrintAttempts++
	err = e.dispatcher.Send(ctx, h, job)
	if err == nil {
		run.Printed = true
		return nil
	}

	log.Warn().Err(err).Str("backend", h.Backend).Msg("Print failed, re-resolving printer")
	columns := e.dispatcher.Columns(h)
	h = e.printer.Reresolve(ctx, h.Backend)
	if e.dispatcher.Columns(h) != columns {
		if job, err = e.prepare(ctx, log, run, h, poem); err != nil {
			return err
		}
	}
	run.Backends.Printer = h.Backend
	run.PrintAttempts++
	if err := e.dispatcher.Send(ctx, h, job); err != nil {
		return err
	}
	run.Printed = true
	return nil
}

func (e *Engine) prepare(ctx context.Context, log zerolog.Logger, run *store.Run, h *hardware.Handle[hardware.Printer], poem string) (*printout.Job, error) {
	job, err := e.dispatcher.Prepare(h, poem)
	if err != nil {
		return nil, err
	}
	e.persist(ctx, log, "receipt", func() error { return e.store.Artifacts.WriteFile(run, store.FileReceipt, job.Data) })
	return job, nil
}

// persist runs a storage step when a store is configured. Storage failures
// are logged and never fail the run.
func (e *Engine) persist(ctx context.Context, log zerolog.Logger, step string, fn func() error) {
	if e.store == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn().Err(err).Str("step", step).Msg("Failed to persist run artifact")
	}
}

func (e *Engine) finish(ctx context.Context, log zerolog.Logger, run *store.Run, result string) {
	if b, ok := e.services.(interface{ Backends() (string, string) }); ok {
		run.Backends.Vision, run.Backends.Poem = b.Backends()
	}
	e.persist(ctx, log, "finish", func() error { return e.store.Finish(ctx, run, result, e.now()) })
}

var _ Services = (*chat.Client)(nil)

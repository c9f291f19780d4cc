package config

import (
	"fmt"
	"strings"

	"github.com/fpang/poetry-camera/internal/trigger"
)

// ValidationError represents a specific type of configuration failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes configuration failures.
type ValidationErrorType int

const (
	// ErrTypeMalformed indicates a value could not be parsed.
	ErrTypeMalformed ValidationErrorType = iota
	// ErrTypeOutOfRange indicates a parsed value is outside its allowed range.
	ErrTypeOutOfRange
	// ErrTypeUnknownBackend indicates an unrecognised service backend name.
	ErrTypeUnknownBackend
)

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func outOfRange(field string, format string, args ...any) *ValidationError {
	return &ValidationError{
		Type:    ErrTypeOutOfRange,
		Message: field + " " + fmt.Sprintf(format, args...),
	}
}

// Validate checks ranges and names. It does not touch the filesystem or network.
func (c *Config) Validate() error {
	if _, err := trigger.ParseMode(c.Engine.Mode); err != nil {
		return &ValidationError{Type: ErrTypeMalformed, Message: "engine.mode", Err: err}
	}
	if c.Engine.CountdownTicks < 0 {
		return outOfRange("engine.countdown_ticks", "must be >= 0, got %d", c.Engine.CountdownTicks)
	}
	if c.Engine.Tick < 0 || c.Engine.Cooldown < 0 || c.Engine.ErrorHold < 0 {
		return outOfRange("engine", "durations must not be negative")
	}
	if c.Engine.QueueSize < 1 {
		return outOfRange("engine.queue_size", "must be >= 1, got %d", c.Engine.QueueSize)
	}
	if c.Engine.CaptureFailures < 1 {
		return outOfRange("engine.capture_failures", "must be >= 1, got %d", c.Engine.CaptureFailures)
	}
	if c.Detector.Threshold <= 0 || c.Detector.Threshold > 1 {
		return outOfRange("detector.threshold", "must be in (0,1], got %g", c.Detector.Threshold)
	}
	if c.Detector.ConfirmFrames < 1 {
		return outOfRange("detector.confirm_frames", "must be >= 1, got %d", c.Detector.ConfirmFrames)
	}
	for name, svc := range map[string]ServiceConfig{"vision": c.Services.Vision, "poem": c.Services.Poem} {
		if err := validateService(name, svc); err != nil {
			return err
		}
	}
	if c.Devices.FrameWidth <= 0 || c.Devices.FrameHeight <= 0 {
		return outOfRange("devices.frame", "must be positive, got %dx%d", c.Devices.FrameWidth, c.Devices.FrameHeight)
	}
	if c.Storage.ContentDir == "" {
		return outOfRange("storage.content_dir", "must not be empty")
	}
	return nil
}

func validateService(name string, svc ServiceConfig) error {
	switch strings.ToLower(svc.Backend) {
	case "", "openai", "deepseek", "gemini", "mock":
	default:
		return &ValidationError{
			Type:    ErrTypeUnknownBackend,
			Message: fmt.Sprintf("services.%s.backend %q is not one of openai, deepseek, gemini, mock", name, svc.Backend),
		}
	}
	if svc.Retry.MaxAttempts < 1 {
		return outOfRange("services."+name+".retry.max_attempts", "must be >= 1, got %d", svc.Retry.MaxAttempts)
	}
	if svc.Retry.BaseDelay < 0 {
		return outOfRange("services."+name+".retry.base_delay", "must not be negative")
	}
	if svc.Retry.Multiplier < 1 {
		return outOfRange("services."+name+".retry.multiplier", "must be >= 1, got %g", svc.Retry.Multiplier)
	}
	return nil
}

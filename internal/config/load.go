package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Options selects the sources Load reads from.
type Options struct {
	// EnvFile is a dotenv file merged into the process environment if it
	// exists. Variables already set in the environment win.
	EnvFile string
	// File is an optional YAML file layered over the defaults.
	File string
	// Getenv overrides os.Getenv, mainly for tests.
	Getenv func(string) string
	// Secrets fetches API keys that are still empty after the env layer.
	Secrets SecretSource
}

// SecretSource resolves a named secret (e.g. "openai-api-key").
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// Load builds a Config from defaults, the dotenv file, the YAML file, the
// environment and finally the secret source, then validates it.
func Load(ctx context.Context, opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ValidationError{Type: ErrTypeMalformed, Message: "config file is not valid YAML", Err: err}
		}
		log.Debug().Str("file", opts.File).Msg("Config file loaded")
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return nil, err
	}

	if opts.Secrets != nil {
		loadSecrets(ctx, &cfg, opts.Secrets)
	}

	cfg.Detector.Threshold = normalizeThreshold(cfg.Detector.Threshold)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays POETRY_* variables and the well-known API key variables.
func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("POETRY_MODE", &cfg.Engine.Mode)
	integer("POETRY_COUNTDOWN", &cfg.Engine.CountdownTicks)
	duration("POETRY_TICK", &cfg.Engine.Tick)
	duration("POETRY_COOLDOWN", &cfg.Engine.Cooldown)
	duration("POETRY_ERROR_HOLD", &cfg.Engine.ErrorHold)
	integer("POETRY_QUEUE_SIZE", &cfg.Engine.QueueSize)
	integer("POETRY_CAPTURE_FAILURES", &cfg.Engine.CaptureFailures)

	float("POETRY_GESTURE_THRESHOLD", &cfg.Detector.Threshold)
	integer("POETRY_DETECTION_FRAMES", &cfg.Detector.ConfirmFrames)
	str("POETRY_TEACHABLE_URL", &cfg.Detector.TeachableURL)
	str("POETRY_MEDIAPIPE_URL", &cfg.Detector.MediaPipeURL)
	str("POETRY_DETECTOR_SCRIPT", &cfg.Detector.Script)

	str("POETRY_VISION_BACKEND", &cfg.Services.Vision.Backend)
	str("POETRY_VISION_MODEL", &cfg.Services.Vision.Model)
	str("POETRY_VISION_BASE_URL", &cfg.Services.Vision.BaseURL)
	str("POETRY_POEM_BACKEND", &cfg.Services.Poem.Backend)
	str("POETRY_POEM_MODEL", &cfg.Services.Poem.Model)
	str("POETRY_POEM_BASE_URL", &cfg.Services.Poem.BaseURL)
	str("POETRY_SSM_PREFIX", &cfg.Services.SSMPrefix)

	// Both services share the retry knobs from the device's original
	// API_RETRIES / API_RETRY_DELAY settings unless set individually.
	integer("API_RETRIES", &cfg.Services.Vision.Retry.MaxAttempts)
	integer("API_RETRIES", &cfg.Services.Poem.Retry.MaxAttempts)
	duration("API_RETRY_DELAY", &cfg.Services.Vision.Retry.BaseDelay)
	duration("API_RETRY_DELAY", &cfg.Services.Poem.Retry.BaseDelay)
	integer("POETRY_VISION_RETRIES", &cfg.Services.Vision.Retry.MaxAttempts)
	integer("POETRY_POEM_RETRIES", &cfg.Services.Poem.Retry.MaxAttempts)

	str("POETRY_CAMERA_COMMAND", &cfg.Devices.CameraCommand)
	str("POETRY_CAMERA_DEVICE", &cfg.Devices.CameraDevice)
	integer("FRAME_WIDTH", &cfg.Devices.FrameWidth)
	integer("FRAME_HEIGHT", &cfg.Devices.FrameHeight)
	str("POETRY_PRINTER_DEVICE", &cfg.Devices.PrinterDevice)
	str("POETRY_PRINTER_ADDR", &cfg.Devices.PrinterAddr)
	integer("PRINTER_WIDTH", &cfg.Devices.PrinterWidthMM)
	str("POETRY_GPIO_CHIP", &cfg.Devices.GPIOChip)
	integer("POETRY_BUTTON_PIN", &cfg.Devices.ButtonPin)
	integer("POETRY_LED_PIN", &cfg.Devices.LEDPin)
	integer("POETRY_BUZZER_PIN", &cfg.Devices.BuzzerPin)
	boolean("POETRY_SIMULATE", &cfg.Devices.Simulate)

	str("POETRY_CONTENT_DIR", &cfg.Storage.ContentDir)
	str("POETRY_SINK_PATH", &cfg.Storage.SinkPath)
	str("POETRY_LEDGER_PATH", &cfg.Storage.LedgerPath)
	str("POETRY_S3_BUCKET", &cfg.Storage.S3Bucket)
	str("POETRY_S3_PREFIX", &cfg.Storage.S3Prefix)

	str("POETRY_HTTP_ADDR", &cfg.Server.Addr)

	// API keys never come from the YAML file.
	cfg.Services.Vision.APIKey = keyFor(cfg.Services.Vision.Backend, getenv, "OPENAI_API_KEY")
	cfg.Services.Poem.APIKey = keyFor(cfg.Services.Poem.Backend, getenv, "DEEPSEEK_API_KEY")

	if len(errs) > 0 {
		return &ValidationError{Type: ErrTypeMalformed, Message: "invalid environment override", Err: errors.Join(errs...)}
	}
	return nil
}

// keyFor returns the API key matching backend. An empty backend falls back to
// the service's conventional variable and then to GEMINI_API_KEY.
func keyFor(backend string, getenv func(string) string, conventional string) string {
	switch strings.ToLower(backend) {
	case "gemini":
		return getenv("GEMINI_API_KEY")
	case "openai":
		return getenv("OPENAI_API_KEY")
	case "deepseek":
		return getenv("DEEPSEEK_API_KEY")
	case "mock":
		return ""
	}
	if v := getenv(conventional); v != "" {
		return v
	}
	return getenv("GEMINI_API_KEY")
}

// loadSecrets fills empty API keys from the secret source. Failures are
// logged and leave the key empty, which later selects the mock backend.
func loadSecrets(ctx context.Context, cfg *Config, src SecretSource) {
	fill := func(svc *ServiceConfig, fallback string) {
		if svc.APIKey != "" || strings.EqualFold(svc.Backend, "mock") {
			return
		}
		name := secretName(svc.Backend, fallback)
		v, err := src.GetSecret(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("secret", name).Msg("Secret not available")
			return
		}
		svc.APIKey = v
	}
	fill(&cfg.Services.Vision, "openai")
	fill(&cfg.Services.Poem, "deepseek")
}

func secretName(backend, fallback string) string {
	if backend == "" {
		backend = fallback
	}
	return strings.ToLower(backend) + "-api-key"
}

// parseDuration accepts Go durations and bare numbers of seconds, the form
// the device's original env file used (API_RETRY_DELAY=2).
func parseDuration(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// normalizeThreshold maps percent thresholds (95.0) onto [0,1].
func normalizeThreshold(t float64) float64 {
	if t > 1 {
		return t / 100
	}
	return t
}

// Package config builds the immutable runtime configuration for the poetry
// camera. A Config is loaded once at startup and handed to constructors by
// pointer; nothing writes to it afterwards.
package config

import (
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Detector DetectorConfig `yaml:"detector"`
	Services ServicesConfig `yaml:"services"`
	Devices  DevicesConfig  `yaml:"devices"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
}

// EngineConfig controls the phase sequencer timings.
type EngineConfig struct {
	Mode           string        `yaml:"mode"`
	CountdownTicks int           `yaml:"countdown_ticks"`
	Tick           time.Duration `yaml:"tick"`
	Cooldown       time.Duration `yaml:"cooldown"`
	ErrorHold      time.Duration `yaml:"error_hold"`
	QueueSize      int           `yaml:"queue_size"`
	FeedbackBuffer int           `yaml:"feedback_buffer"`
	// CaptureFailures is how many captures in a row must fail before the
	// camera is re-resolved.
	CaptureFailures int `yaml:"capture_failures"`
}

// DetectorConfig controls trigger confirmation and the remote classifiers.
type DetectorConfig struct {
	// Threshold is a confidence in [0,1]. Values above 1 are read as percent.
	Threshold      float64       `yaml:"threshold"`
	ConfirmFrames  int           `yaml:"confirm_frames"`
	ButtonDebounce time.Duration `yaml:"button_debounce"`
	RestartBackoff time.Duration `yaml:"restart_backoff"`
	// TeachableURL and MediaPipeURL are websocket endpoints of classifier sidecars.
	TeachableURL string `yaml:"teachable_url"`
	MediaPipeURL string `yaml:"mediapipe_url"`
	// Script, when set, replays a fixed label sequence instead of a sidecar.
	Script string `yaml:"script"`
}

// RetryConfig mirrors chat.RetryPolicy without importing it.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// ServiceConfig describes one external text service.
type ServiceConfig struct {
	// Backend is one of openai, deepseek, gemini, mock. Empty picks from the
	// configured keys.
	Backend string        `yaml:"backend"`
	APIKey  string        `yaml:"-"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

// ServicesConfig holds the vision and poem services.
type ServicesConfig struct {
	Vision ServiceConfig `yaml:"vision"`
	Poem   ServiceConfig `yaml:"poem"`
	// RatePerMinute caps outbound calls across both services.
	RatePerMinute int `yaml:"rate_per_minute"`
	// SSMPrefix, when set, loads missing API keys from Parameter Store.
	SSMPrefix string `yaml:"ssm_prefix"`
}

// DevicesConfig holds hardware overrides.
type DevicesConfig struct {
	CameraCommand  string `yaml:"camera_command"`
	CameraDevice   string `yaml:"camera_device"`
	FrameWidth     int    `yaml:"frame_width"`
	FrameHeight    int    `yaml:"frame_height"`
	PrinterDevice  string `yaml:"printer_device"`
	PrinterAddr    string `yaml:"printer_addr"`
	PrinterWidthMM int    `yaml:"printer_width_mm"`
	GPIOChip       string `yaml:"gpio_chip"`
	ButtonPin      int    `yaml:"button_pin"`
	LEDPin         int    `yaml:"led_pin"`
	BuzzerPin      int    `yaml:"buzzer_pin"`
	// Simulate skips probing and binds every class to its simulation backend.
	Simulate bool `yaml:"simulate"`
}

// StorageConfig holds artifact and ledger locations.
type StorageConfig struct {
	ContentDir string `yaml:"content_dir"`
	SinkPath   string `yaml:"sink_path"`
	LedgerPath string `yaml:"ledger_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
}

// ServerConfig holds the status server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// TriggerPerMinute limits POST /api/trigger per client.
	TriggerPerMinute int `yaml:"trigger_per_minute"`
}

// Default returns the configuration a device ships with.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Mode:            "manual",
			CountdownTicks:  5,
			Tick:            time.Second,
			Cooldown:        3 * time.Second,
			ErrorHold:       3 * time.Second,
			QueueSize:       1,
			FeedbackBuffer:  64,
			CaptureFailures: 3,
		},
		Detector: DetectorConfig{
			Threshold:      0.95,
			ConfirmFrames:  3,
			ButtonDebounce: 300 * time.Millisecond,
			RestartBackoff: time.Second,
		},
		Services: ServicesConfig{
			Vision: ServiceConfig{
				Timeout: 60 * time.Second,
				Retry:   RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2},
			},
			Poem: ServiceConfig{
				Timeout: 60 * time.Second,
				Retry:   RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2},
			},
			RatePerMinute: 30,
		},
		Devices: DevicesConfig{
			CameraDevice:   "/dev/video0",
			FrameWidth:     800,
			FrameHeight:    600,
			PrinterDevice:  "/dev/usb/lp0",
			PrinterWidthMM: 58,
			GPIOChip:       "gpiochip0",
			ButtonPin:      16,
			LEDPin:         13,
			BuzzerPin:      5,
		},
		Storage: StorageConfig{
			ContentDir: "content",
			SinkPath:   "content/printer_sink.bin",
			LedgerPath: "content/runs.db",
		},
		Server: ServerConfig{
			Addr:             ":8000",
			TriggerPerMinute: 6,
		},
	}
}

// PrinterColumns returns the character width for the configured paper.
// 58mm rolls fit 32 half-width characters, 80mm rolls fit 48.
func (d DevicesConfig) PrinterColumns() int {
	if d.PrinterWidthMM >= 80 {
		return 48
	}
	return 32
}

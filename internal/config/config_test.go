package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), Options{Getenv: envMap(nil)})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.CountdownTicks != 5 {
		t.Errorf("expected 5 countdown ticks, got %d", cfg.Engine.CountdownTicks)
	}
	if cfg.Detector.Threshold != 0.95 {
		t.Errorf("expected threshold 0.95, got %g", cfg.Detector.Threshold)
	}
	if cfg.Detector.ConfirmFrames != 3 {
		t.Errorf("expected 3 confirm frames, got %d", cfg.Detector.ConfirmFrames)
	}
	if cfg.Services.Vision.Retry.MaxAttempts != 3 || cfg.Services.Vision.Retry.BaseDelay != 2*time.Second {
		t.Errorf("unexpected vision retry defaults: %+v", cfg.Services.Vision.Retry)
	}
	if cfg.Devices.PrinterColumns() != 32 {
		t.Errorf("expected 32 columns for 58mm paper, got %d", cfg.Devices.PrinterColumns())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := Load(context.Background(), Options{Getenv: envMap(map[string]string{
		"POETRY_MODE":              "mediapipe",
		"POETRY_GESTURE_THRESHOLD": "90",
		"API_RETRIES":              "5",
		"API_RETRY_DELAY":          "1.5",
		"POETRY_POEM_RETRIES":      "2",
		"OPENAI_API_KEY":           "sk-openai",
		"DEEPSEEK_API_KEY":         "sk-deepseek",
		"PRINTER_WIDTH":            "80",
	})})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Mode != "mediapipe" {
		t.Errorf("expected mediapipe mode, got %s", cfg.Engine.Mode)
	}
	if cfg.Detector.Threshold != 0.9 {
		t.Errorf("expected percent threshold normalised to 0.9, got %g", cfg.Detector.Threshold)
	}
	if cfg.Services.Vision.Retry.MaxAttempts != 5 {
		t.Errorf("expected vision attempts 5, got %d", cfg.Services.Vision.Retry.MaxAttempts)
	}
	if cfg.Services.Poem.Retry.MaxAttempts != 2 {
		t.Errorf("expected poem attempts 2, got %d", cfg.Services.Poem.Retry.MaxAttempts)
	}
	if cfg.Services.Vision.Retry.BaseDelay != 1500*time.Millisecond {
		t.Errorf("expected 1.5s delay, got %s", cfg.Services.Vision.Retry.BaseDelay)
	}
	if cfg.Services.Vision.APIKey != "sk-openai" || cfg.Services.Poem.APIKey != "sk-deepseek" {
		t.Errorf("unexpected keys: vision=%q poem=%q", cfg.Services.Vision.APIKey, cfg.Services.Poem.APIKey)
	}
	if cfg.Devices.PrinterColumns() != 48 {
		t.Errorf("expected 48 columns for 80mm paper, got %d", cfg.Devices.PrinterColumns())
	}
}

func TestLoad_GeminiBackendUsesGeminiKey(t *testing.T) {
	cfg, err := Load(context.Background(), Options{Getenv: envMap(map[string]string{
		"POETRY_VISION_BACKEND": "gemini",
		"GEMINI_API_KEY":        "g-key",
		"OPENAI_API_KEY":        "sk-openai",
	})})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Services.Vision.APIKey != "g-key" {
		t.Errorf("expected gemini key, got %q", cfg.Services.Vision.APIKey)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera.yaml")
	data := `
engine:
  countdown_ticks: 3
  cooldown: 10s
services:
  poem:
    backend: deepseek
    retry:
      max_attempts: 4
      base_delay: 500ms
      multiplier: 3
devices:
  printer_addr: 192.168.1.50:9100
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(context.Background(), Options{File: path, Getenv: envMap(nil)})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.CountdownTicks != 3 || cfg.Engine.Cooldown != 10*time.Second {
		t.Errorf("engine overrides not applied: %+v", cfg.Engine)
	}
	if got := cfg.Services.Poem.Retry; got.MaxAttempts != 4 || got.BaseDelay != 500*time.Millisecond || got.Multiplier != 3 {
		t.Errorf("poem retry not applied: %+v", got)
	}
	if cfg.Engine.Tick != time.Second {
		t.Errorf("unset fields should keep defaults, tick = %s", cfg.Engine.Tick)
	}
	if cfg.Devices.PrinterAddr != "192.168.1.50:9100" {
		t.Errorf("printer addr = %q", cfg.Devices.PrinterAddr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantType ValidationErrorType
	}{
		{"bad integer", map[string]string{"POETRY_COUNTDOWN": "five"}, ErrTypeMalformed},
		{"bad mode", map[string]string{"POETRY_MODE": "telepathy"}, ErrTypeMalformed},
		{"zero frames", map[string]string{"POETRY_DETECTION_FRAMES": "0"}, ErrTypeOutOfRange},
		{"zero capture failures", map[string]string{"POETRY_CAPTURE_FAILURES": "0"}, ErrTypeOutOfRange},
		{"zero retries", map[string]string{"API_RETRIES": "0"}, ErrTypeOutOfRange},
		{"unknown backend", map[string]string{"POETRY_POEM_BACKEND": "eliza"}, ErrTypeUnknownBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), Options{Getenv: envMap(tt.env)})
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if valErr.Type != tt.wantType {
				t.Errorf("expected type %d, got %d (%v)", tt.wantType, valErr.Type, err)
			}
		})
	}
}

type fakeSSM struct {
	values map[string]string
	asked  []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = append(f.asked, *in.Name)
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: &v}}, nil
}

func TestLoad_SecretsFillMissingKeys(t *testing.T) {
	client := &fakeSSM{values: map[string]string{
		"/poetry-camera/prod/openai-api-key": "from-ssm",
	}}
	cfg, err := Load(context.Background(), Options{
		Getenv:  envMap(map[string]string{"DEEPSEEK_API_KEY": "from-env"}),
		Secrets: NewSSMSecrets(client, "/poetry-camera/prod"),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Services.Vision.APIKey != "from-ssm" {
		t.Errorf("expected vision key from SSM, got %q", cfg.Services.Vision.APIKey)
	}
	if cfg.Services.Poem.APIKey != "from-env" {
		t.Errorf("env key should win over SSM, got %q", cfg.Services.Poem.APIKey)
	}
	if len(client.asked) != 1 {
		t.Errorf("expected exactly one SSM lookup, got %v", client.asked)
	}
}

package detector

import (
	"context"
	"time"

	"github.com/fpang/poetry-camera/internal/config"
	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/trigger"
)

// Runner is a long-running adapter.
type Runner interface {
	Run(ctx context.Context) error
}

// scriptInterval paces scripted samples like a camera at roughly 10 fps.
const scriptInterval = 100 * time.Millisecond

// Build assembles the adapters the configuration asks for: a websocket
// classifier per configured sidecar, a scripted classifier when a script is
// set, and always the button.
func Build(cfg *config.Config, out Publisher, gpio *hardware.Chain[hardware.GPIO], onPress func()) ([]Runner, error) {
	d := cfg.Detector
	opts := AdapterOptions{
		Threshold:      d.Threshold,
		ConfirmFrames:  d.ConfirmFrames,
		RestartBackoff: d.RestartBackoff,
	}

	var runners []Runner
	if d.TeachableURL != "" {
		runners = append(runners, NewAdapter(trigger.GestureModelA, NewWebsocketClassifier("teachable", d.TeachableURL), out, opts))
	}
	if d.MediaPipeURL != "" {
		runners = append(runners, NewAdapter(trigger.GestureModelB, NewWebsocketClassifier("mediapipe", d.MediaPipeURL), out, opts))
	}
	if d.Script != "" {
		samples, err := ParseScript(d.Script)
		if err != nil {
			return nil, err
		}
		source := trigger.GestureModelA
		if mode, _ := trigger.ParseMode(cfg.Engine.Mode); mode == trigger.ModeMediaPipe {
			source = trigger.GestureModelB
		}
		runners = append(runners, NewAdapter(source, NewScriptClassifier("script", samples, scriptInterval, true), out, opts))
	}
	runners = append(runners, NewButtonAdapter(gpio, out, d.ButtonDebounce, onPress))
	return runners, nil
}

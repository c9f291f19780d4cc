package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// Edge is a button transition.
type Edge struct {
	At      time.Time
	Pressed bool
}

// GPIO drives the status LED and buzzer and reports button edges.
type GPIO interface {
	SetLED(on bool) error
	SetBuzzer(on bool) error
	Edges() <-chan Edge
	Close() error
}

// GPIOOptions selects the chip and BCM line offsets.
type GPIOOptions struct {
	Chip      string
	ButtonPin int
	LEDPin    int
	BuzzerPin int
}

// GPIOCandidates returns the GPIO chain. Only the Linux GPIO character device
// is supported; older sysfs and vendor libraries are not probed.
func GPIOCandidates(opts GPIOOptions) []Candidate[GPIO] {
	return []Candidate[GPIO]{
		{
			Name: "gpiocdev",
			Probe: func(ctx context.Context) (GPIO, Capabilities, error) {
				g, err := openCdevGPIO(opts)
				if err != nil {
					return nil, Capabilities{}, err
				}
				return g, Capabilities{HasButton: true}, nil
			},
		},
	}
}

type cdevGPIO struct {
	led    *gpiocdev.Line
	buzzer *gpiocdev.Line
	button *gpiocdev.Line
	edges  chan Edge
}

func openCdevGPIO(opts GPIOOptions) (*cdevGPIO, error) {
	g := &cdevGPIO{edges: make(chan Edge, 8)}

	var err error
	g.led, err = gpiocdev.RequestLine(opts.Chip, opts.LEDPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("poetry-led"))
	if err != nil {
		return nil, fmt.Errorf("request LED line %d: %w", opts.LEDPin, err)
	}
	g.buzzer, err = gpiocdev.RequestLine(opts.Chip, opts.BuzzerPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("poetry-buzzer"))
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("request buzzer line %d: %w", opts.BuzzerPin, err)
	}
	g.button, err = gpiocdev.RequestLine(opts.Chip, opts.ButtonPin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer("poetry-button"),
		gpiocdev.WithEventHandler(g.handle),
	)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("request button line %d: %w", opts.ButtonPin, err)
	}
	return g, nil
}

// handle runs on the gpiocdev watcher goroutine. The button pulls the line
// low, so a falling edge is a press.
func (g *cdevGPIO) handle(evt gpiocdev.LineEvent) {
	e := Edge{At: time.Now(), Pressed: evt.Type == gpiocdev.LineEventFallingEdge}
	select {
	case g.edges <- e:
	default:
		log.Debug().Msg("Button edge dropped, reader is behind")
	}
}

func (g *cdevGPIO) SetLED(on bool) error {
	return g.led.SetValue(level(on))
}

func (g *cdevGPIO) SetBuzzer(on bool) error {
	return g.buzzer.SetValue(level(on))
}

func (g *cdevGPIO) Edges() <-chan Edge {
	return g.edges
}

func (g *cdevGPIO) Close() error {
	for _, l := range []*gpiocdev.Line{g.button, g.buzzer, g.led} {
		if l != nil {
			l.Close()
		}
	}
	return nil
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}

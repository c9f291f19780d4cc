package hardware

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SimCamera renders a placeholder frame: a blue field with a green square
// that drifts with the clock and a caption with the capture time.
type SimCamera struct {
	width  int
	height int
	now    func() time.Time
}

// SimulatedCamera returns the camera simulation candidate.
func SimulatedCamera(width, height int) Candidate[Camera] {
	return Candidate[Camera]{
		Name: SimulationBackend,
		Probe: func(context.Context) (Camera, Capabilities, error) {
			return &SimCamera{width: width, height: height, now: time.Now},
				Capabilities{FrameWidth: width, FrameHeight: height}, nil
		},
	}
}

func (c *SimCamera) Capture(ctx context.Context) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	at := c.now()
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 30, G: 60, B: 160, A: 255}), image.Point{}, draw.Src)

	side := min(c.width, c.height) / 4
	span := max(1, c.width-side)
	x := int(at.UnixMilli()/10) % span
	y := (c.height - side) / 2
	draw.Draw(img, image.Rect(x, y, x+side, y+side), image.NewUniform(color.RGBA{G: 200, A: 255}), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(16, 24),
	}
	d.DrawString("Test Image")
	d.Dot = fixed.P(16, c.height-16)
	d.DrawString(at.Format("2006-01-02 15:04:05"))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	log.Debug().Msg("Simulated frame captured")
	return &Capture{
		Image:   buf.Bytes(),
		MIME:    "image/jpeg",
		Width:   c.width,
		Height:  c.height,
		At:      at,
		Backend: SimulationBackend,
	}, nil
}

// SimPrinter writes each job to a sink file instead of paper. The sink holds
// the most recent receipt; it is replaced atomically so readers never see a
// partial job.
type SimPrinter struct {
	path string
	jobs atomic.Int64
}

// SimulatedPrinter returns the printer simulation candidate.
func SimulatedPrinter(sinkPath string, columns int) Candidate[Printer] {
	return Candidate[Printer]{
		Name: SimulationBackend,
		Probe: func(context.Context) (Printer, Capabilities, error) {
			if err := os.MkdirAll(filepath.Dir(sinkPath), 0o755); err != nil {
				return &SimPrinter{path: sinkPath}, Capabilities{Columns: columns}, fmt.Errorf("sink dir: %w", err)
			}
			return &SimPrinter{path: sinkPath}, Capabilities{Columns: columns}, nil
		},
	}
}

func (p *SimPrinter) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := renameio.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write printer sink: %w", err)
	}
	n := p.jobs.Add(1)
	log.Info().Str("sink", p.path).Int("bytes", len(data)).Int64("job", n).Msg("Simulated print written")
	return nil
}

// Jobs returns how many jobs were written.
func (p *SimPrinter) Jobs() int64 {
	return p.jobs.Load()
}

// Path returns the sink file path.
func (p *SimPrinter) Path() string {
	return p.path
}

// SimGPIO logs the intended pin changes. Press injects a button edge, which
// is how the HTTP trigger and tests drive it.
type SimGPIO struct {
	mu     sync.Mutex
	led    bool
	buzzer bool
	edges  chan Edge
}

// SimulatedGPIO returns the GPIO simulation candidate.
func SimulatedGPIO() Candidate[GPIO] {
	return Candidate[GPIO]{
		Name: SimulationBackend,
		Probe: func(context.Context) (GPIO, Capabilities, error) {
			return NewSimGPIO(), Capabilities{HasButton: true}, nil
		},
	}
}

// NewSimGPIO creates a simulated GPIO bank.
func NewSimGPIO() *SimGPIO {
	return &SimGPIO{edges: make(chan Edge, 4)}
}

func (g *SimGPIO) SetLED(on bool) error {
	g.mu.Lock()
	g.led = on
	g.mu.Unlock()
	log.Trace().Bool("on", on).Msg("Simulated LED")
	return nil
}

func (g *SimGPIO) SetBuzzer(on bool) error {
	g.mu.Lock()
	g.buzzer = on
	g.mu.Unlock()
	log.Trace().Bool("on", on).Msg("Simulated buzzer")
	return nil
}

func (g *SimGPIO) Edges() <-chan Edge {
	return g.edges
}

// Press injects a button press. It drops the press if edges are not being read.
func (g *SimGPIO) Press() {
	select {
	case g.edges <- Edge{At: time.Now(), Pressed: true}:
	default:
	}
}

// State returns the last LED and buzzer levels.
func (g *SimGPIO) State() (led, buzzer bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.led, g.buzzer
}

func (g *SimGPIO) Close() error {
	return nil
}

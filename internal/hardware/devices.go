package hardware

import (
	"context"
	"time"

	"github.com/fpang/poetry-camera/internal/config"
)

// Devices holds the resolution chains for every device class.
type Devices struct {
	Camera  *Chain[Camera]
	GPIO    *Chain[GPIO]
	Printer *Chain[Printer]
}

// NewDevices builds the candidate chains from configuration. With
// Devices.Simulate set every chain is empty and resolves straight to its
// simulation backend.
func NewDevices(cfg *config.Config, observers ...Observer) *Devices {
	d := cfg.Devices
	cols := d.PrinterColumns()

	var (
		cams     []Candidate[Camera]
		gpios    []Candidate[GPIO]
		printers []Candidate[Printer]
	)
	if !d.Simulate {
		cams = CameraCandidates(CameraOptions{
			Command:     d.CameraCommand,
			Device:      d.CameraDevice,
			FrameWidth:  d.FrameWidth,
			FrameHeight: d.FrameHeight,
			Timeout:     15 * time.Second,
		})
		gpios = GPIOCandidates(GPIOOptions{
			Chip:      d.GPIOChip,
			ButtonPin: d.ButtonPin,
			LEDPin:    d.LEDPin,
			BuzzerPin: d.BuzzerPin,
		})
		printers = PrinterCandidates(PrinterOptions{
			Device:  d.PrinterDevice,
			Addr:    d.PrinterAddr,
			Columns: cols,
		})
	}

	obs := append([]Observer{LogObserver}, observers...)
	return &Devices{
		Camera:  NewChain(ClassCamera, cams, SimulatedCamera(d.FrameWidth, d.FrameHeight), obs...),
		GPIO:    NewChain(ClassGPIO, gpios, SimulatedGPIO(), obs...),
		Printer: NewChain(ClassPrinter, printers, SimulatedPrinter(cfg.Storage.SinkPath, cols), obs...),
	}
}

// ResolveAll resolves every class once.
func (d *Devices) ResolveAll(ctx context.Context) {
	d.Camera.Resolve(ctx)
	d.GPIO.Resolve(ctx)
	d.Printer.Resolve(ctx)
}

// Close releases the GPIO lines and printer device.
func (d *Devices) Close() {
	if h := d.GPIO.Handle(); h != nil && h.Device != nil {
		h.Device.Close()
	}
	if h := d.Printer.Handle(); h != nil {
		if c, ok := h.Device.(interface{ Close() error }); ok {
			c.Close()
		}
	}
}

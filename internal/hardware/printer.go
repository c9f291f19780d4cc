package hardware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Printer sends raw ESC/POS bytes to a receipt printer.
type Printer interface {
	Send(ctx context.Context, data []byte) error
}

// escInit resets the printer; every probe sends it as a self-test.
var escInit = []byte{0x1B, 0x40}

// PrinterOptions configures the printer candidates.
type PrinterOptions struct {
	Device  string
	Addr    string
	Columns int
	Timeout time.Duration
}

// PrinterCandidates returns the printer chain: USB line-printer device, then
// a network printer on a raw TCP port when an address is configured.
func PrinterCandidates(opts PrinterOptions) []Candidate[Printer] {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	caps := Capabilities{Columns: opts.Columns}

	var out []Candidate[Printer]
	if opts.Device != "" {
		out = append(out, Candidate[Printer]{
			Name: "usb",
			Probe: func(ctx context.Context) (Printer, Capabilities, error) {
				p, err := openDevicePrinter(opts.Device)
				if err != nil {
					return nil, caps, err
				}
				if err := p.Send(ctx, escInit); err != nil {
					p.Close()
					return nil, caps, fmt.Errorf("self-test: %w", err)
				}
				return p, caps, nil
			},
		})
	}
	if opts.Addr != "" {
		out = append(out, Candidate[Printer]{
			Name: "network",
			Probe: func(ctx context.Context) (Printer, Capabilities, error) {
				p := &netPrinter{addr: opts.Addr, timeout: opts.Timeout}
				if err := p.Send(ctx, escInit); err != nil {
					return nil, caps, fmt.Errorf("self-test: %w", err)
				}
				return p, caps, nil
			},
		})
	}
	return out
}

// devicePrinter writes to a character device such as /dev/usb/lp0.
type devicePrinter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openDevicePrinter(path string) (*devicePrinter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open printer device: %w", err)
	}
	return &devicePrinter{path: path, f: f}, nil
}

func (p *devicePrinter) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return fmt.Errorf("printer %s closed: %w", p.path, ErrUnavailable)
	}
	if _, err := p.f.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", p.path, err)
	}
	return nil
}

func (p *devicePrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}

// netPrinter dials a raw ESC/POS port (usually 9100) once per job.
type netPrinter struct {
	addr    string
	timeout time.Duration
}

func (p *netPrinter) Send(ctx context.Context, data []byte) error {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return fmt.Errorf("dial printer %s: %w", p.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	n, err := conn.Write(data)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			log.Warn().Str("addr", p.addr).Int("written", n).Msg("Printer write timed out")
		}
		return fmt.Errorf("write to printer %s: %w", p.addr, err)
	}
	return nil
}

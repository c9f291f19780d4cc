package hardware

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{800, 600, 800, 600, 800, 600},
		{1920, 1080, 800, 600, 800, 450},
		{1080, 1920, 800, 600, 337, 600},
		{400, 300, 800, 600, 400, 300},
	}
	for _, tt := range tests {
		gotW, gotH := fitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitWithin(%d,%d,%d,%d) = %d,%d; want %d,%d",
				tt.w, tt.h, tt.maxW, tt.maxH, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestNormalize_ScalesLargePNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1600, 1200))
	img.Set(10, 10, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	c, err := Normalize(buf.Bytes(), 800, 600)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if c.Width != 800 || c.Height != 600 || c.MIME != "image/jpeg" {
		t.Errorf("unexpected capture %dx%d %s", c.Width, c.Height, c.MIME)
	}
	if _, err := jpeg.Decode(bytes.NewReader(c.Image)); err != nil {
		t.Errorf("output is not JPEG: %v", err)
	}
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	if _, err := Normalize([]byte("not an image"), 800, 600); err == nil {
		t.Error("expected decode error")
	}
}

func TestSimCamera_ProducesPlaceholder(t *testing.T) {
	cam, caps, err := SimulatedCamera(320, 240).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if caps.FrameWidth != 320 || caps.FrameHeight != 240 {
		t.Errorf("unexpected caps %+v", caps)
	}
	c, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(c.Image))
	if err != nil {
		t.Fatalf("placeholder is not JPEG: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("placeholder size %dx%d", cfg.Width, cfg.Height)
	}
	if c.Backend != SimulationBackend {
		t.Errorf("backend = %s", c.Backend)
	}
}

func TestSimPrinter_WritesSink(t *testing.T) {
	sink := filepath.Join(t.TempDir(), "out", "sink.bin")
	p, caps, err := SimulatedPrinter(sink, 32).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if caps.Columns != 32 {
		t.Errorf("columns = %d", caps.Columns)
	}
	if err := p.Send(context.Background(), []byte("receipt")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := os.ReadFile(sink)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "receipt" {
		t.Errorf("sink = %q", got)
	}
	if p.(*SimPrinter).Jobs() != 1 {
		t.Errorf("jobs = %d", p.(*SimPrinter).Jobs())
	}
}

func TestPrinterCandidates_MissingDeviceFails(t *testing.T) {
	cands := PrinterCandidates(PrinterOptions{Device: filepath.Join(t.TempDir(), "lp0"), Columns: 32})
	if len(cands) != 1 || cands[0].Name != "usb" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
	if _, _, err := cands[0].Probe(context.Background()); err == nil {
		t.Error("expected probe failure for missing device")
	}
}

func TestPrinterCandidates_DeviceFileReceivesInit(t *testing.T) {
	dev := filepath.Join(t.TempDir(), "lp0")
	if err := os.WriteFile(dev, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	p, _, err := PrinterCandidates(PrinterOptions{Device: dev, Columns: 32})[0].Probe(context.Background())
	if err != nil {
		t.Fatalf("probe error = %v", err)
	}
	defer p.(*devicePrinter).Close()

	got, _ := os.ReadFile(dev)
	if !bytes.Equal(got, escInit) {
		t.Errorf("expected ESC @ self-test, got %x", got)
	}
}

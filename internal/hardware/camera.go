package hardware

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// Capture is a single still image taken by a camera backend.
type Capture struct {
	Image   []byte
	MIME    string
	Width   int
	Height  int
	At      time.Time
	Backend string
}

// Camera takes still images.
type Camera interface {
	Capture(ctx context.Context) (*Capture, error)
}

// CameraOptions configures the camera candidates.
type CameraOptions struct {
	// Command overrides the candidate chain with a single shell-free command
	// that writes a JPEG or PNG to stdout.
	Command     string
	Device      string
	FrameWidth  int
	FrameHeight int
	Timeout     time.Duration
}

// CameraCandidates returns the camera chain in priority order:
// rpicam-still, libcamera-still, then ffmpeg reading a V4L2 device.
func CameraCandidates(opts CameraOptions) []Candidate[Camera] {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	w, h := strconv.Itoa(opts.FrameWidth), strconv.Itoa(opts.FrameHeight)

	if opts.Command != "" {
		fields := strings.Fields(opts.Command)
		return []Candidate[Camera]{commandCandidate("custom", fields[0], fields[1:], opts)}
	}

	still := []string{"-n", "-t", "500", "--width", w, "--height", h, "-e", "jpg", "-o", "-"}
	v4l2 := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", opts.Device,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-",
	}
	return []Candidate[Camera]{
		commandCandidate("rpicam", "rpicam-still", still, opts),
		commandCandidate("libcamera", "libcamera-still", still, opts),
		{
			Name: "v4l2",
			Probe: func(ctx context.Context) (Camera, Capabilities, error) {
				if _, err := os.Stat(opts.Device); err != nil {
					return nil, Capabilities{}, fmt.Errorf("video device: %w", err)
				}
				return commandCandidate("v4l2", "ffmpeg", v4l2, opts).Probe(ctx)
			},
		},
	}
}

// commandCandidate probes a camera that shells out to bin. The probe looks up
// the executable and takes one test frame.
func commandCandidate(name, bin string, args []string, opts CameraOptions) Candidate[Camera] {
	return Candidate[Camera]{
		Name: name,
		Probe: func(ctx context.Context) (Camera, Capabilities, error) {
			path, err := exec.LookPath(bin)
			if err != nil {
				return nil, Capabilities{}, fmt.Errorf("%s not found: %w", bin, err)
			}
			cam := &commandCamera{
				name:    name,
				path:    path,
				args:    args,
				width:   opts.FrameWidth,
				height:  opts.FrameHeight,
				timeout: opts.Timeout,
			}
			if _, err := cam.Capture(ctx); err != nil {
				return nil, Capabilities{}, fmt.Errorf("test capture: %w", err)
			}
			return cam, Capabilities{FrameWidth: opts.FrameWidth, FrameHeight: opts.FrameHeight}, nil
		},
	}
}

type commandCamera struct {
	name    string
	path    string
	args    []string
	width   int
	height  int
	timeout time.Duration
}

func (c *commandCamera) Capture(ctx context.Context) (*Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s capture failed: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s capture produced no image: %w", c.name, ErrUnavailable)
	}

	capture, err := Normalize(stdout.Bytes(), c.width, c.height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	capture.Backend = c.name

	log.Debug().
		Str("backend", c.name).
		Int("bytes", len(capture.Image)).
		Dur("elapsed", time.Since(start)).
		Msg("Frame captured")
	return capture, nil
}

// Normalize decodes a JPEG or PNG frame, scales it to fit within width x
// height keeping the aspect ratio, and re-encodes it as JPEG. Frames that
// already fit are passed through untouched when they are JPEG.
func Normalize(raw []byte, width, height int) (*Capture, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	b := img.Bounds()
	now := time.Now()

	if b.Dx() <= width && b.Dy() <= height && format == "jpeg" {
		return &Capture{Image: raw, MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy(), At: now}, nil
	}

	newW, newH := fitWithin(b.Dx(), b.Dy(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return &Capture{Image: buf.Bytes(), MIME: "image/jpeg", Width: newW, Height: newH, At: now}, nil
}

// fitWithin returns dimensions no larger than maxW x maxH with the source
// aspect ratio preserved.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

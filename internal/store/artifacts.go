package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanoberholster/imagemeta"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"

	"github.com/fpang/poetry-camera/internal/hardware"
)

const dirTimeFormat = "20060102-150405"

// Artifacts manages run directories under a content root.
type Artifacts struct {
	root string
}

// NewArtifacts creates the content root if needed.
func NewArtifacts(root string) (*Artifacts, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content dir: %w", err)
	}
	return &Artifacts{root: root}, nil
}

// Root returns the content root.
func (a *Artifacts) Root() string {
	return a.root
}

// RunDirName names the directory of a run started at run.StartedAt.
func RunDirName(run *Run) string {
	return run.StartedAt.Format(dirTimeFormat) + "_" + run.ShortID()
}

// Dir returns the absolute path of the run directory.
func (a *Artifacts) Dir(run *Run) string {
	return filepath.Join(a.root, run.Dir)
}

// Begin assigns and creates the run directory.
func (a *Artifacts) Begin(run *Run) error {
	run.Dir = RunDirName(run)
	if err := os.MkdirAll(a.Dir(run), 0o755); err != nil {
		return fmt.Errorf("failed to create run dir: %w", err)
	}
	return nil
}

// WriteFile atomically writes one artifact into the run directory.
func (a *Artifacts) WriteFile(run *Run, name string, data []byte) error {
	if run.Dir == "" {
		return fmt.Errorf("run %s has no directory", run.ID)
	}
	path := filepath.Join(a.Dir(run), name)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// WriteText writes a text artifact with a trailing newline.
func (a *Artifacts) WriteText(run *Run, name, text string) error {
	return a.WriteFile(run, name, []byte(strings.TrimRight(text, "\n")+"\n"))
}

// WriteCapture stores the frame and fills run.Capture, including camera EXIF
// fields when the frame carries them.
func (a *Artifacts) WriteCapture(run *Run, c *hardware.Capture) error {
	if err := a.WriteFile(run, FileCapture, c.Image); err != nil {
		return err
	}
	info := &CaptureInfo{Width: c.Width, Height: c.Height, Bytes: len(c.Image)}
	readExif(c.Image, info)
	run.Capture = info
	return nil
}

func readExif(image []byte, info *CaptureInfo) {
	exif, err := imagemeta.Decode(bytes.NewReader(image))
	if err != nil {
		log.Debug().Err(err).Msg("Frame has no EXIF metadata")
		return
	}
	info.Make = strings.TrimSpace(exif.Make)
	info.Model = strings.TrimSpace(exif.Model)
	if t := exif.DateTimeOriginal(); !t.IsZero() {
		info.TakenAt = t
	} else if t := exif.CreateDate(); !t.IsZero() {
		info.TakenAt = t
	}
}

// WriteManifest writes run.json.
func (a *Artifacts) WriteManifest(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run manifest: %w", err)
	}
	return a.WriteFile(run, FileManifest, data)
}

// ReadManifest loads run.json from a run directory name.
func (a *Artifacts) ReadManifest(dir string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(a.root, dir, FileManifest))
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode %s manifest: %w", dir, err)
	}
	return &run, nil
}

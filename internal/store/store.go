// Package store persists each run: the artifact directory on disk, a
// queryable ledger of run records, and an optional S3 mirror.
//
// A run directory is named <YYYYMMDD-HHMMSS>_<last 8 chars of run id> and
// holds capture.jpg, description.txt, story.txt, poem.txt, receipt.bin and
// run.json.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fpang/poetry-camera/internal/logging"
)

// Run results besides the failure reasons.
const (
	ResultRunning   = "running"
	ResultCompleted = "completed"
)

// Artifact file names.
const (
	FileCapture     = "capture.jpg"
	FileDescription = "description.txt"
	FileStory       = "story.txt"
	FilePoem        = "poem.txt"
	FileReceipt     = "receipt.bin"
	FileManifest    = "run.json"
)

// Backends records which backend served each step of a run.
type Backends struct {
	Camera  string `json:"camera,omitempty"`
	Printer string `json:"printer,omitempty"`
	Vision  string `json:"vision,omitempty"`
	Poem    string `json:"poem,omitempty"`
}

// CaptureInfo describes the stored frame.
type CaptureInfo struct {
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Bytes   int       `json:"bytes"`
	Make    string    `json:"make,omitempty"`
	Model   string    `json:"model,omitempty"`
	TakenAt time.Time `json:"takenAt,omitzero"`
}

// Run is the record of one trigger-to-output run.
type Run struct {
	ID            string       `json:"id"`
	Dir           string       `json:"dir"`
	Source        string       `json:"source"`
	Mode          string       `json:"mode"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt,omitzero"`
	Result        string       `json:"result"`
	Error         string       `json:"error,omitempty"`
	Backends      Backends     `json:"backends"`
	Capture       *CaptureInfo `json:"capture,omitempty"`
	Description   string       `json:"description,omitempty"`
	Story         string       `json:"story,omitempty"`
	Poem          string       `json:"poem,omitempty"`
	Printed       bool         `json:"printed"`
	PrintAttempts int          `json:"printAttempts"`
}

// NewRun starts a run record with a fresh time-ordered id.
func NewRun(source, mode string, at time.Time) *Run {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Run{
		ID:        id.String(),
		Source:    source,
		Mode:      mode,
		StartedAt: at,
		Result:    ResultRunning,
	}
}

// ShortID is the last eight characters of the run id. The leading
// characters of a v7 id are a timestamp and repeat between nearby runs.
func (r *Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[len(r.ID)-8:]
	}
	return r.ID
}

// Ledger stores run records.
//
// GetRun returns nil, nil when the run does not exist. PutRun replaces the
// whole record.
type Ledger interface {
	PutRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}

// Mirror copies a finished run directory somewhere else.
type Mirror interface {
	MirrorRun(ctx context.Context, dir string, run *Run) error
}

// Store ties the artifact directory, the ledger and the optional mirror
// together.
type Store struct {
	Artifacts *Artifacts
	Ledger    Ledger
	mirror    Mirror
	logger    zerolog.Logger

	wg sync.WaitGroup
}

// New creates a store. mirror may be nil.
func New(artifacts *Artifacts, ledger Ledger, mirror Mirror) *Store {
	return &Store{
		Artifacts: artifacts,
		Ledger:    ledger,
		mirror:    mirror,
		logger:    logging.WithComponent("store"),
	}
}

// Begin creates the run directory and records the run as running.
func (s *Store) Begin(ctx context.Context, run *Run) error {
	if err := s.Artifacts.Begin(run); err != nil {
		return err
	}
	return s.Checkpoint(ctx, run)
}

// Checkpoint writes run.json and updates the ledger.
func (s *Store) Checkpoint(ctx context.Context, run *Run) error {
	if err := s.Artifacts.WriteManifest(run); err != nil {
		return err
	}
	if err := s.Ledger.PutRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Finish stamps the run with its result, checkpoints it and starts the
// mirror upload in the background.
func (s *Store) Finish(ctx context.Context, run *Run, result string, at time.Time) error {
	run.Result = result
	run.FinishedAt = at
	if err := s.Checkpoint(ctx, run); err != nil {
		return err
	}
	if s.mirror == nil {
		return nil
	}

	dir := s.Artifacts.Dir(run)
	snapshot := *run
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		if err := s.mirror.MirrorRun(mctx, dir, &snapshot); err != nil {
			s.logger.Warn().Err(err).Str("runId", snapshot.ID).Msg("Run mirror failed")
		}
	}()
	return nil
}

// Close waits for pending mirror uploads and closes the ledger.
func (s *Store) Close() error {
	s.wg.Wait()
	return s.Ledger.Close()
}

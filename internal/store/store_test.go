package store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"

	"github.com/fpang/poetry-camera/internal/hardware"
)

func newRun(t *testing.T, at time.Time) *Run {
	t.Helper()
	return NewRun("button", "manual", at)
}

func TestNewRun(t *testing.T) {
	at := time.Date(2024, 3, 9, 8, 7, 6, 0, time.Local)
	run := newRun(t, at)
	if len(run.ID) != 36 {
		t.Fatalf("ID = %q, want a UUID", run.ID)
	}
	if run.Result != ResultRunning {
		t.Errorf("Result = %q", run.Result)
	}
	want := "20240309-080706_" + run.ID[len(run.ID)-8:]
	if got := RunDirName(run); got != want {
		t.Errorf("RunDirName() = %q, want %q", got, want)
	}
}

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Ledger{"sqlite": sq, "memory": NewMemoryLedger()}
}

func TestLedger_PutGetList(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			var ids []string
			for i := range 3 {
				run := NewRun("gesture_a", "teachable", base.Add(time.Duration(i)*time.Minute))
				run.Dir = RunDirName(run)
				if err := l.PutRun(ctx, run); err != nil {
					t.Fatalf("PutRun() error = %v", err)
				}
				ids = append(ids, run.ID)
			}

			got, err := l.GetRun(ctx, ids[1])
			if err != nil || got == nil {
				t.Fatalf("GetRun() = %v, %v", got, err)
			}
			got.Result = ResultCompleted
			got.Poem = "詩"
			got.Printed = true
			got.FinishedAt = base.Add(time.Hour)
			if err := l.PutRun(ctx, got); err != nil {
				t.Fatal(err)
			}
			again, _ := l.GetRun(ctx, ids[1])
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			missing, err := l.GetRun(ctx, "nope")
			if missing != nil || err != nil {
				t.Errorf("GetRun(missing) = %v, %v; want nil, nil", missing, err)
			}

			list, err := l.ListRuns(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			var listed []string
			for _, r := range list {
				listed = append(listed, r.ID)
			}
			want := []string{ids[2], ids[1]}
			if diff := cmp.Diff(want, listed); diff != "" {
				t.Errorf("ListRuns() order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteLedger_Stats(t *testing.T) {
	ctx := context.Background()
	l, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	now := time.Now()
	for _, result := range []string{ResultCompleted, ResultCompleted, "print_failed"} {
		run := NewRun("button", "manual", now)
		run.Result = result
		if err := l.PutRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := l.Stats(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]int{ResultCompleted: 2, "print_failed": 1}, stats); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestArtifacts_WriteRun(t *testing.T) {
	root := t.TempDir()
	a, err := NewArtifacts(root)
	if err != nil {
		t.Fatal(err)
	}
	run := newRun(t, time.Now())
	if err := a.Begin(run); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	cam, _, err := hardware.SimulatedCamera(64, 48).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	frame, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteCapture(run, frame); err != nil {
		t.Fatalf("WriteCapture() error = %v", err)
	}
	if run.Capture == nil || run.Capture.Bytes != len(frame.Image) {
		t.Errorf("Capture info = %+v", run.Capture)
	}
	if err := a.WriteText(run, FilePoem, "line one\nline two"); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteManifest(run); err != nil {
		t.Fatal(err)
	}

	poem, _ := os.ReadFile(filepath.Join(root, run.Dir, FilePoem))
	if string(poem) != "line one\nline two\n" {
		t.Errorf("poem.txt = %q", poem)
	}
	back, err := a.ReadManifest(run.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != run.ID || back.Capture == nil {
		t.Errorf("ReadManifest() = %+v", back)
	}
}

func TestArtifacts_WriteWithoutBegin(t *testing.T) {
	a, _ := NewArtifacts(t.TempDir())
	if err := a.WriteText(&Run{ID: "x"}, FilePoem, "p"); err == nil {
		t.Error("writing before Begin should fail")
	}
}

type fakeS3 struct {
	mu   sync.Mutex
	keys map[string][]byte
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) sortedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func TestStore_FinishMirrorsRun(t *testing.T) {
	ctx := context.Background()
	a, _ := NewArtifacts(t.TempDir())
	fake := &fakeS3{keys: map[string][]byte{}}
	s := New(a, NewMemoryLedger(), NewS3Mirror(fake, "bucket", "device-1"))

	run := newRun(t, time.Now())
	if err := s.Begin(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteText(run, FilePoem, "p"); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, run, ResultCompleted, time.Now()); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"device-1/" + run.Dir + "/" + FilePoem,
		"device-1/" + run.Dir + "/" + FileManifest,
	}
	slices.Sort(want)
	if diff := cmp.Diff(want, fake.sortedKeys()); diff != "" {
		t.Errorf("mirrored keys mismatch (-want +got):\n%s", diff)
	}

	stored, _ := s.Ledger.GetRun(ctx, run.ID)
	if stored == nil || stored.Result != ResultCompleted || stored.FinishedAt.IsZero() {
		t.Errorf("ledger record = %+v", stored)
	}
}

func TestStore_MirrorFailureDoesNotFailFinish(t *testing.T) {
	ctx := context.Background()
	a, _ := NewArtifacts(t.TempDir())
	s := New(a, NewMemoryLedger(), NewS3Mirror(&fakeS3{err: io.ErrUnexpectedEOF}, "b", ""))
	run := newRun(t, time.Now())
	if err := s.Begin(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, run, "print_failed", time.Now()); err != nil {
		t.Errorf("Finish() error = %v", err)
	}
	s.Close()
}

func TestExport(t *testing.T) {
	root := t.TempDir()
	a, _ := NewArtifacts(root)

	old := NewRun("button", "manual", time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local))
	recent := NewRun("button", "manual", time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local))
	for _, r := range []*Run{old, recent} {
		if err := a.Begin(r); err != nil {
			t.Fatal(err)
		}
		if err := a.WriteText(r, FilePoem, "p"); err != nil {
			t.Fatal(err)
		}
	}
	// Not a run directory.
	os.WriteFile(filepath.Join(root, "printer_sink.bin"), []byte{1}, 0o644)

	var buf bytes.Buffer
	n, err := a.Export(&buf, time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Export() runs = %d, want 1", n)
	}
	names, err := ListArchive(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{recent.Dir + "/" + FilePoem}, names); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
}

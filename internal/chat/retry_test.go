package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleeper records requested delays without sleeping.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type scriptedDescriber struct {
	errs  []error
	calls int
}

func (s *scriptedDescriber) Name() string { return "scripted" }

func (s *scriptedDescriber) Describe(ctx context.Context, image []byte, mime string) (*Description, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	return &Description{Text: "a red bicycle"}, nil
}

type scriptedComposer struct {
	err   error
	calls int
}

func (s *scriptedComposer) Name() string { return "scripted" }

func (s *scriptedComposer) Compose(ctx context.Context, description string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "line one\nline two\nline three\nline four", nil
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestDescribeImage_TransientThenSuccess(t *testing.T) {
	transient := &HTTPStatusError{StatusCode: 503, Body: "overloaded"}
	d := &scriptedDescriber{errs: []error{transient, transient}}
	rec := &recordingSleeper{}
	c := NewClient(d, &scriptedComposer{},
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2},
		RetryPolicy{MaxAttempts: 1},
		WithSleeper(rec.sleep))

	desc, err := c.DescribeImage(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
	if err != nil {
		t.Fatalf("DescribeImage() error = %v", err)
	}
	if desc.Text != "a red bicycle" {
		t.Errorf("unexpected description %q", desc.Text)
	}
	if d.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", d.calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 backoff waits, got %v", rec.delays)
	}
	if !(rec.delays[0] < rec.delays[1]) {
		t.Errorf("delays not increasing: %v", rec.delays)
	}
}

func TestDescribeImage_PermanentFailsImmediately(t *testing.T) {
	d := &scriptedDescriber{errs: []error{
		&HTTPStatusError{StatusCode: 401, Body: "bad key"},
		nil,
	}}
	rec := &recordingSleeper{}
	c := NewClient(d, &scriptedComposer{},
		RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2},
		RetryPolicy{MaxAttempts: 1},
		WithSleeper(rec.sleep))

	_, err := c.DescribeImage(context.Background(), []byte{1}, "image/jpeg")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if d.calls != 1 {
		t.Errorf("expected a single attempt, got %d", d.calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("expected no backoff, got %v", rec.delays)
	}
}

func TestComposeArtifact_ExhaustsRetries(t *testing.T) {
	comp := &scriptedComposer{err: errors.New("connection reset by peer")}
	rec := &recordingSleeper{}
	c := NewClient(&scriptedDescriber{}, comp,
		RetryPolicy{MaxAttempts: 1},
		RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 3},
		WithSleeper(rec.sleep))

	_, err := c.ComposeArtifact(context.Background(), "a red bicycle")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServiceError, got %v", err)
	}
	if se.Kind != Transient || se.Op != OpCompose {
		t.Errorf("unexpected classification %+v", se)
	}
	if comp.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", comp.calls)
	}
	want := []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}
	if len(rec.delays) != 2 || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
}

func TestComposeArtifact_EmptyDescriptionIsPermanent(t *testing.T) {
	comp := &scriptedComposer{}
	c := NewClient(&scriptedDescriber{}, comp, RetryPolicy{MaxAttempts: 3}, RetryPolicy{MaxAttempts: 3})

	_, err := c.ComposeArtifact(context.Background(), "   ")
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if comp.calls != 0 {
		t.Errorf("backend should not be called, got %d calls", comp.calls)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	d := &scriptedDescriber{errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(d, &scriptedComposer{},
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2},
		RetryPolicy{MaxAttempts: 1},
		WithSleeper(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	_, err := c.DescribeImage(ctx, []byte{1}, "image/jpeg")
	if !IsPermanent(err) {
		t.Errorf("expected cancellation to surface as permanent, got %v", err)
	}
	if d.calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", d.calls)
	}
}

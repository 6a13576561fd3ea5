package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"wardenbot/pkg/logx"
)

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())

	boom := errors.New("boom")
	s.Go("a", func(ctx context.Context) error { return boom })
	s.Go("b", func(ctx context.Context) error { return nil })

	if err := s.Stop(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Stop = %v, want wrapped boom", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())

	s.Go("panicky", func(ctx context.Context) error { panic("ouch") })

	err := s.Stop(context.Background())
	if err == nil {
		t.Fatal("panic must surface as the supervisor error")
	}
}

func TestCanceledReturnIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())

	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop = %v, want nil for context-cancelled loop", err)
	}
}

func TestGoRestartRetriesUntilCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())

	var runs atomic.Int64
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	})

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatal("failing loop was not restarted")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())

	var runs atomic.Int64
	s.GoRestart("once", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if runs.Load() != 1 {
		t.Fatalf("clean exit restarted %d times", runs.Load())
	}
}

func TestWaitBoundedByContext(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), logx.Nop())

	release := make(chan struct{})
	s.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline", err)
	}
	close(release)
}

// Package supervisor runs the app's long-lived goroutines under one
// context: named starts, panic recovery, optional restart with backoff,
// and a bounded wait on shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"wardenbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	wg       sync.WaitGroup
	errOnce  sync.Once
	firstErr atomic.Value // error

	doneOnce sync.Once
	doneCh   chan struct{}
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		doneCh: make(chan struct{}),
	}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error or panic any supervised goroutine produced.
func (s *Supervisor) Err() error {
	if v := s.firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Go runs fn once. A panic is recovered, logged and recorded as the
// supervisor's first error; a context.Canceled return is a clean stop.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(name, fn); err != nil {
			s.setErr(err)
		}
	}()
}

// restart backoff window for long-running loops.
const (
	restartMinBackoff = 250 * time.Millisecond
	restartMaxBackoff = 30 * time.Second
)

// GoRestart runs fn and restarts it with jittered exponential backoff when
// it fails or panics, until the supervisor context is cancelled. A clean
// nil return stops the loop. Meant for pollers and watchers whose transient
// failures should self-heal without taking the process down.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := restartMinBackoff
		for {
			if s.ctx.Err() != nil {
				return
			}
			startedAt := time.Now()
			err := s.run(name, fn)
			if s.ctx.Err() != nil || err == nil {
				return
			}

			// A loop that ran a while before failing gets a fresh window,
			// so rare failures don't pay for old ones.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = restartMinBackoff
			}
			wait := backoff + jitter(backoff)
			s.log.Warn("loop restarting",
				logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > restartMaxBackoff {
				backoff = restartMaxBackoff
			}
		}
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked",
				logx.String("name", name), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	s.log.Debug("goroutine started", logx.String("name", name))
	err = fn(s.ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
	}
	s.log.Debug("goroutine stopped", logx.String("name", name))
	return err
}

// Stop cancels the supervisor context and waits for all goroutines, bounded
// by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}

func (s *Supervisor) setErr(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}

func jitter(d time.Duration) time.Duration {
	n := int64(d) / 5
	if n <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() % (n + 1))
}

// Package autosave persists editor state in the background. Edits mark the
// session dirty and (re)arm a debounce timer; when it fires the save runs
// with bounded retries. A failed save is reported and never touches the
// in-memory state.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SaveFunc writes the current state.
type SaveFunc func(ctx context.Context) error

// Timer is what AfterFunc returns; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

type Option func(*Scheduler)

func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) { s.debounce = d }
}

func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.backoff = backoff
	}
}

// WithOnError registers the callback that receives saves that failed after
// every retry.
func WithOnError(fn func(error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// WithOnSaved registers a callback run after every successful save.
func WithOnSaved(fn func()) Option {
	return func(s *Scheduler) { s.onSaved = fn }
}

// WithTimers replaces time.AfterFunc and time.After.
func WithTimers(afterFunc func(time.Duration, func()) Timer, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		if afterFunc != nil {
			s.afterFunc = afterFunc
		}
		if after != nil {
			s.after = after
		}
	}
}

type Scheduler struct {
	save       SaveFunc
	debounce   time.Duration
	maxRetries int
	backoff    time.Duration
	onError    func(error)
	onSaved    func()
	afterFunc  func(time.Duration, func()) Timer
	after      func(time.Duration) <-chan time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timer      Timer
	generation uint64
	dirty      bool
	closed     bool

	saveMu sync.Mutex
	wg     sync.WaitGroup
}

func New(save SaveFunc, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		save:       save,
		debounce:   1500 * time.Millisecond,
		maxRetries: 3,
		backoff:    time.Second,
		afterFunc:  func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		after:      time.After,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Touch records an edit. A save that has not started yet is cancelled and
// rescheduled one debounce window from now.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty = true
	s.generation++
	s.stopTimerLocked()
	gen := s.generation
	s.wg.Add(1)
	s.timer = s.afterFunc(s.debounce, func() {
		defer s.wg.Done()
		s.fire(gen)
	})
}

// stopTimerLocked disarms the pending timer. A timer that was stopped before
// firing will never run its callback, so its WaitGroup slot is released here.
func (s *Scheduler) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	if s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
}

// Dirty reports whether edits are waiting to be saved.
func (s *Scheduler) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation || !s.dirty {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.run(s.ctx); err != nil && s.onError != nil {
		s.onError(err)
	}
}

// Flush saves immediately if there are unsaved edits.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.generation++
	dirty := s.dirty
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	return s.run(ctx)
}

// run performs one save with retries. Saves never overlap.
func (s *Scheduler) run(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	s.mu.Unlock()

	err := s.attempt(ctx)
	if err == nil {
		if s.onSaved != nil {
			s.onSaved()
		}
		return nil
	}

	// Keep the edits pending so the next Touch or Flush tries again.
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	return err
}

func (s *Scheduler) attempt(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("autosave cancelled: %w", err)
			case <-s.after(s.backoff << uint(attempt-1)):
			}
		}
		if err = s.save(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("autosave failed after %d retries: %w", s.maxRetries, err)
}

// Close cancels pending work and waits for a running save to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

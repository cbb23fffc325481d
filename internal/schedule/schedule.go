// Package schedule provides the cancelable delayed-task and cooperative-yield
// primitives used by the indexing pipeline. Both are small interfaces so unit
// tests can substitute deterministic fakes for real timers.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Scheduler arms cancelable delayed tasks keyed by string. Re-arming a key
// cancels the previously scheduled task, which is the debounce behavior the
// coordinator relies on.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string)
	CancelAll()
}

// TimerScheduler is the production Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerScheduler creates an empty timer scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms fn to run after delay, canceling any pending task for key.
func (s *TimerScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops any pending task for key.
func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// CancelAll stops every pending task.
func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending returns the number of armed tasks.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Yielder cooperatively pauses bulk work so other pending work can run.
type Yielder interface {
	Yield(ctx context.Context, d time.Duration) error
}

// SleepYielder yields with a context-aware sleep.
type SleepYielder struct{}

// Yield sleeps for d or until ctx is done, whichever comes first.
func (SleepYielder) Yield(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ImmediateScheduler runs tasks synchronously on Schedule. Test fake.
type ImmediateScheduler struct{}

func (ImmediateScheduler) Schedule(_ string, _ time.Duration, fn func()) { fn() }
func (ImmediateScheduler) Cancel(string)                                 {}
func (ImmediateScheduler) CancelAll()                                    {}

// ManualScheduler holds tasks until Fire is called. Test fake.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks map[string]func()
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{tasks: make(map[string]func())}
}

func (s *ManualScheduler) Schedule(key string, _ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[key] = fn
}

func (s *ManualScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, key)
}

func (s *ManualScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]func())
}

// Fire runs and clears the pending task for key, returning whether one existed.
func (s *ManualScheduler) Fire(key string) bool {
	s.mu.Lock()
	fn, ok := s.tasks[key]
	delete(s.tasks, key)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

// FireAll runs and clears every pending task.
func (s *ManualScheduler) FireAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]func())
	s.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

// Pending returns the number of held tasks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// NopYielder never sleeps. Test fake.
type NopYielder struct{}

func (NopYielder) Yield(ctx context.Context, _ time.Duration) error { return ctx.Err() }

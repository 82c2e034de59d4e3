// Package clock provides the scheduled-task abstraction used by the adapter core.
//
// The core never touches platform timers directly. It asks a Scheduler for
// one-shot and periodic tasks, which lets the bridge run on real time while
// tests drive the same code with a Virtual clock.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Task is a handle to a scheduled callback.
// Stop is idempotent and safe to call on an already fired task.
type Task interface {
	Stop()
}

// Scheduler creates one-shot and periodic tasks.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Task
	Every(d time.Duration, f func()) Task
}

// Real schedules callbacks on runtime timers.
//
// Callbacks run on timer goroutines. When Guard is set every callback runs
// while holding it, so a per-session mutex serializes timer work with host
// calls. A task stopped under Guard never runs its callback afterwards.
type Real struct {
	Guard sync.Locker
}

// NewReal creates a real-time scheduler guarded by the given lock (may be nil)
func NewReal(guard sync.Locker) *Real {
	return &Real{Guard: guard}
}

// Now returns the wall-clock time
func (r *Real) Now() time.Time {
	return time.Now()
}

type realTask struct {
	stopped atomic.Bool
	once    sync.Once
	timer   *time.Timer
	done    chan struct{}
}

func (t *realTask) Stop() {
	t.stopped.Store(true)
	t.once.Do(func() {
		if t.timer != nil {
			t.timer.Stop()
		}
		if t.done != nil {
			close(t.done)
		}
	})
}

// AfterFunc runs f once after d
func (r *Real) AfterFunc(d time.Duration, f func()) Task {
	t := &realTask{}
	t.timer = time.AfterFunc(d, func() { r.run(t, f) })
	return t
}

// Every runs f every d until the task is stopped
func (r *Real) Every(d time.Duration, f func()) Task {
	t := &realTask{done: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				r.run(t, f)
			}
		}
	}()
	return t
}

func (r *Real) run(t *realTask, f func()) {
	if r.Guard != nil {
		r.Guard.Lock()
		defer r.Guard.Unlock()
	}
	if t.stopped.Load() {
		return
	}
	f()
}

package clock

import (
	"sync"
	"time"
)

// Virtual is a manually advanced clock.
// Callbacks run synchronously inside Advance, in due-time order, on the
// caller's goroutine.
type Virtual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*virtualTask
}

type virtualTask struct {
	owner   *Virtual
	at      time.Time
	every   time.Duration
	seq     int
	f       func()
	stopped bool
}

func (t *virtualTask) Stop() {
	t.owner.mu.Lock()
	t.stopped = true
	t.owner.mu.Unlock()
}

// NewVirtual creates a virtual clock starting at start
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the virtual time
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// AfterFunc schedules f at now+d
func (v *Virtual) AfterFunc(d time.Duration, f func()) Task {
	return v.schedule(d, 0, f)
}

// Every schedules f at now+d, now+2d, ...
func (v *Virtual) Every(d time.Duration, f func()) Task {
	if d <= 0 {
		d = time.Millisecond
	}
	return v.schedule(d, d, f)
}

func (v *Virtual) schedule(d, every time.Duration, f func()) Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	t := &virtualTask{owner: v, at: v.now.Add(d), every: every, seq: v.seq, f: f}
	v.tasks = append(v.tasks, t)
	return t
}

// Advance moves the clock forward by d, firing every task that falls due.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		next := v.nextDue(target)
		if next == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		v.now = next.at
		if next.every > 0 {
			next.at = next.at.Add(next.every)
		} else {
			next.stopped = true
		}
		f := next.f
		v.mu.Unlock()

		f()
	}
}

// nextDue returns the earliest live task due at or before target and prunes
// stopped ones. Caller holds mu.
func (v *Virtual) nextDue(target time.Time) *virtualTask {
	live := v.tasks[:0]
	var next *virtualTask
	for _, t := range v.tasks {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	v.tasks = live
	return next
}

// Pending returns the number of live tasks
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, t := range v.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

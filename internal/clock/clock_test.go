package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestVirtual_AfterFuncFiresOnce(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	calls := 0
	v.AfterFunc(75*time.Millisecond, func() { calls++ })

	v.Advance(74 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("Expected no call before deadline, got %d", calls)
	}

	v.Advance(1 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("Expected 1 call at deadline, got %d", calls)
	}

	v.Advance(time.Second)
	if calls != 1 {
		t.Errorf("Expected one-shot task to fire once, got %d", calls)
	}
	if v.Pending() != 0 {
		t.Errorf("Expected no pending tasks, got %d", v.Pending())
	}
}

func TestVirtual_EveryFiresAtInterval(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var at []time.Duration
	start := v.Now()
	v.Every(100*time.Millisecond, func() { at = append(at, v.Now().Sub(start)) })

	v.Advance(350 * time.Millisecond)

	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	if len(at) != len(expected) {
		t.Fatalf("Expected %d ticks, got %d", len(expected), len(at))
	}
	for i := range expected {
		if at[i] != expected[i] {
			t.Errorf("Tick %d: expected %v, got %v", i, expected[i], at[i])
		}
	}
	if got := v.Now().Sub(start); got != 350*time.Millisecond {
		t.Errorf("Expected clock at 350ms, got %v", got)
	}
}

func TestVirtual_StopCancels(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	calls := 0
	task := v.Every(10*time.Millisecond, func() { calls++ })

	v.Advance(25 * time.Millisecond)
	task.Stop()
	task.Stop()
	v.Advance(100 * time.Millisecond)

	if calls != 2 {
		t.Errorf("Expected 2 calls before stop, got %d", calls)
	}
}

func TestVirtual_CallbackCanSchedule(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var order []string
	v.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "first")
		v.AfterFunc(5*time.Millisecond, func() { order = append(order, "second") })
	})

	v.Advance(20 * time.Millisecond)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected [first second], got %v", order)
	}
}

func TestVirtual_SameDeadlineKeepsScheduleOrder(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		v.AfterFunc(time.Millisecond, func() { order = append(order, i) })
	}
	v.Advance(time.Millisecond)

	for i, got := range order {
		if got != i {
			t.Fatalf("Expected schedule order, got %v", order)
		}
	}
}

func TestReal_AfterFuncRunsUnderGuard(t *testing.T) {
	var mu sync.Mutex
	r := NewReal(&mu)
	done := make(chan struct{})

	r.AfterFunc(5*time.Millisecond, func() {
		if mu.TryLock() {
			t.Error("Expected guard to be held during callback")
			mu.Unlock()
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Callback did not fire")
	}
}

func TestReal_StopUnderGuardPreventsCallback(t *testing.T) {
	var mu sync.Mutex
	r := NewReal(&mu)
	var fired atomic.Int32

	mu.Lock()
	task := r.AfterFunc(time.Millisecond, func() { fired.Add(1) })
	time.Sleep(10 * time.Millisecond)
	task.Stop()
	mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("Expected stopped task not to run, ran %d times", fired.Load())
	}
}

func TestReal_EveryStops(t *testing.T) {
	var mu sync.Mutex
	r := NewReal(&mu)
	var ticks atomic.Int32
	task := r.Every(2*time.Millisecond, func() { ticks.Add(1) })

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	task.Stop()
	task.Stop()
	after := ticks.Load()
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)

	if after == 0 {
		t.Error("Expected at least one tick")
	}
	if ticks.Load() != after {
		t.Errorf("Expected no ticks after stop, got %d more", ticks.Load()-after)
	}
}

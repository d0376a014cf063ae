package daemon

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFired(fired <-chan struct{}, d time.Duration) bool {
	select {
	case <-fired:
		return true
	case <-time.After(d):
		return false
	}
}

func TestTrackerFiresAfterIdleWindow(t *testing.T) {
	fired := make(chan struct{}, 1)
	tr := NewTracker(30*time.Millisecond, func() { fired <- struct{}{} })
	defer tr.Stop()

	if !waitFired(fired, time.Second) {
		t.Fatal("idle callback not called")
	}
}

func TestTrackerInFlightRequestBlocksIdle(t *testing.T) {
	fired := make(chan struct{}, 1)
	tr := NewTracker(30*time.Millisecond, func() { fired <- struct{}{} })
	defer tr.Stop()

	tr.Begin()
	tr.Begin()
	if got := tr.Active(); got != 2 {
		t.Fatalf("Active() = %d, want 2", got)
	}
	if waitFired(fired, 100*time.Millisecond) {
		t.Fatal("idle callback fired with requests in flight")
	}

	tr.End()
	if waitFired(fired, 100*time.Millisecond) {
		t.Fatal("idle callback fired with one request still in flight")
	}
	tr.End()
	if !waitFired(fired, time.Second) {
		t.Fatal("idle callback not called after last request ended")
	}
}

func TestTrackerZeroTimeoutOnlyCounts(t *testing.T) {
	var calls atomic.Int32
	tr := NewTracker(0, func() { calls.Add(1) })
	defer tr.Stop()

	tr.Begin()
	tr.End()
	tr.End() // extra End stays at zero
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("idle callback called %d times, want 0", got)
	}
	if got := tr.Active(); got != 0 {
		t.Fatalf("Active() = %d, want 0", got)
	}
}

func TestTrackerStopCancelsPendingTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	tr := NewTracker(30*time.Millisecond, func() { fired <- struct{}{} })
	tr.Stop()
	tr.End()

	if waitFired(fired, 100*time.Millisecond) {
		t.Fatal("idle callback fired after Stop")
	}
}

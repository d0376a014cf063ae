package daemon

import (
	"sync"
	"time"
)

// Tracker counts in-flight requests and fires onIdle once no request has
// been running for the idle timeout. A zero timeout only counts.
type Tracker struct {
	mu          sync.Mutex
	timer       *time.Timer
	timerID     uint64
	nextTimerID uint64
	inFlight    int
	timeout     time.Duration
	onIdle      func()
	stopped     bool
}

// NewTracker creates a tracker. The idle window starts immediately.
func NewTracker(timeout time.Duration, onIdle func()) *Tracker {
	t := &Tracker{timeout: timeout, onIdle: onIdle}
	t.mu.Lock()
	t.startTimerLocked()
	t.mu.Unlock()
	return t
}

// Begin marks the beginning of an in-flight request.
// Any pending idle timer is canceled so a long-running request never triggers it.
func (t *Tracker) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTimerLocked()
	t.inFlight++
}

// End marks completion of an in-flight request.
// The idle timer starts only after the final in-flight request completes.
func (t *Tracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight > 0 {
		t.inFlight--
	}
	if t.inFlight == 0 {
		t.startTimerLocked()
	}
}

// Active returns the number of in-flight requests.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Stop cancels the idle timer for good.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	t.stopped = true
}

func (t *Tracker) startTimerLocked() {
	t.stopTimerLocked()
	if t.stopped || t.timeout <= 0 || t.onIdle == nil {
		return
	}

	t.nextTimerID++
	id := t.nextTimerID
	t.timer = time.AfterFunc(t.timeout, func() {
		t.expire(id)
	})
	t.timerID = id
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
		t.timerID = 0
	}
}

func (t *Tracker) expire(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timerID != id || t.inFlight > 0 {
		return
	}
	t.timer = nil
	t.timerID = 0
	go t.onIdle()
}

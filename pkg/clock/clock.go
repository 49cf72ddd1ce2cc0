// Package clock abstracts timer scheduling so components built on debounce
// and interval timers can be tested without real wall-clock waits.
// No external dependencies - uses only standard library.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the timer. Returns false when the callback already
	// fired or the timer was stopped before.
	Stop() bool

	// Reset reschedules the timer to fire after d.
	Reset(d time.Duration) bool
}

// Clock creates timers and reads the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules fn to run after d. The returned Timer can be
	// stopped or reset before it fires.
	AfterFunc(d time.Duration, fn func()) Timer
}

// ─────────────────────────────────────────────────────────────────────────────
// Real clock
// ─────────────────────────────────────────────────────────────────────────────

type realClock struct{}

// New returns a Clock backed by the system clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool {
	return r.t.Stop()
}

func (r realTimer) Reset(d time.Duration) bool {
	return r.t.Reset(d)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fake clock (for tests)
// ─────────────────────────────────────────────────────────────────────────────

// Fake is a manually advanced Clock. Timers fire synchronously inside
// Advance, in deadline order, on the calling goroutine.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	nextID int
}

// NewFake creates a fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run when the fake clock advances past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	t := &fakeTimer{
		clock:    f,
		id:       f.nextID,
		deadline: f.now.Add(d),
		fn:       fn,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake time forward, firing due timers in deadline
// order. Callbacks run on the caller's goroutine; a callback may schedule
// new timers, which fire too if they fall within the advance window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.popDue(target)
		if t == nil {
			break
		}
		f.mu.Lock()
		if t.deadline.After(f.now) {
			f.now = t.deadline
		}
		f.mu.Unlock()
		t.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// PendingTimers returns the number of scheduled, unfired timers.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// popDue removes and returns the earliest timer due at or before target.
func (f *Fake) popDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	sort.SliceStable(f.timers, func(i, j int) bool {
		if f.timers[i].deadline.Equal(f.timers[j].deadline) {
			return f.timers[i].id < f.timers[j].id
		}
		return f.timers[i].deadline.Before(f.timers[j].deadline)
	})

	for i, t := range f.timers {
		if !t.deadline.After(target) {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return t
		}
	}
	return nil
}

func (f *Fake) remove(t *fakeTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cand := range f.timers {
		if cand == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTimer struct {
	clock    *Fake
	id       int
	deadline time.Time
	fn       func()
}

func (t *fakeTimer) Stop() bool {
	return t.clock.remove(t)
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	active := t.clock.remove(t)
	t.clock.mu.Lock()
	t.deadline = t.clock.now.Add(d)
	t.clock.timers = append(t.clock.timers, t)
	t.clock.mu.Unlock()
	return active
}

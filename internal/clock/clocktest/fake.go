// Package clocktest provides a manually advanced clock.Scheduler for tests.
package clocktest

import (
	"sync"
	"time"

	"github.com/rbright/scribe/internal/clock"
)

// Fake fires scheduled callbacks only when Advance is called. Callbacks run on
// the goroutine calling Advance, outside the fake's lock, so they may schedule
// or cancel other activities.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*timer
}

type timer struct {
	id     int
	at     time.Time
	period time.Duration
	fn     func()
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, timers: make(map[int]*timer)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(interval time.Duration, fn func()) clock.Handle {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return f.add(interval, interval, fn)
}

func (f *Fake) After(delay time.Duration, fn func()) clock.Handle {
	return f.add(delay, 0, fn)
}

func (f *Fake) add(delay time.Duration, period time.Duration, fn func()) clock.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &timer{id: f.seq, at: f.now.Add(delay), period: period, fn: fn}
	f.timers[t.id] = t
	return &handle{fake: f, id: t.id}
}

// Advance moves time forward by d, firing every due callback in time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			delete(f.timers, next.id)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending reports how many activities are still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDueLocked(target time.Time) *timer {
	var next *timer
	for _, t := range f.timers {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
			next = t
		}
	}
	return next
}

type handle struct {
	fake *Fake
	id   int
}

func (h *handle) Cancel() {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	delete(h.fake.timers, h.id)
}

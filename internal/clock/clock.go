// Package clock schedules the periodic and one-shot activities of a session.
//
// Every activity is represented by its own Handle so teardown code can cancel
// each one explicitly.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels one scheduled activity. Cancel is idempotent and never blocks
// on an in-flight callback.
type Handle interface {
	Cancel()
}

// Scheduler is the time source used by session components.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Handle
	After(delay time.Duration, fn func()) Handle
}

// Cancel stops h when it is non-nil.
func Cancel(h Handle) {
	if h != nil {
		h.Cancel()
	}
}

// Real is the wall-clock scheduler.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Every runs fn on its own goroutine each interval until cancelled.
func (Real) Every(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{done: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				if h.cancelled.Load() {
					return
				}
				fn()
			}
		}
	}()
	return h
}

// After runs fn once after delay unless cancelled first.
func (Real) After(delay time.Duration, fn func()) Handle {
	h := &timerHandle{}
	h.timer = time.AfterFunc(delay, func() {
		if h.cancelled.Load() {
			return
		}
		fn()
	})
	return h
}

type tickerHandle struct {
	once      sync.Once
	cancelled atomic.Bool
	done      chan struct{}
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		h.cancelled.Store(true)
		close(h.done)
	})
}

type timerHandle struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (h *timerHandle) Cancel() {
	h.cancelled.Store(true)
	h.timer.Stop()
}

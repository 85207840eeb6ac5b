package session

import (
	"context"

	"github.com/rbright/scribe/internal/fsm"
	"github.com/rbright/scribe/internal/recognition"
	"github.com/rbright/scribe/internal/segment"
	"github.com/rbright/scribe/internal/transcription"
)

// engineListener binds recognition callbacks to one start attempt so output
// from a torn-down engine never reaches a newer session.
type engineListener struct {
	c     *Controller
	token uint64
}

func (l *engineListener) Active() bool {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return l.c.attempt == l.token && l.c.state == fsm.StateRecording
}

func (l *engineListener) Final(r recognition.Result) {
	c := l.c
	c.mu.Lock()
	if c.attempt != l.token || c.session == nil || !acceptsFinals(c.state) {
		c.mu.Unlock()
		return
	}
	end := c.sched.Now().Sub(c.session.StartedAt).Seconds()
	seg, ok := c.builder.Build(segment.Fragment{
		Text:          r.Transcript,
		Confidence:    r.Confidence,
		HasConfidence: r.HasConfidence,
	}, end, c.speaker)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.segments = append(c.segments, seg)
	c.fragments = append(c.fragments, seg.Text)
	c.interim = ""
	c.mu.Unlock()

	c.logger.Debug("segment appended", "segment_id", seg.ID, "medical", seg.IsMedicalTerm)
	c.notify()
}

func (l *engineListener) Interim(text string) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != l.token || c.state != fsm.StateRecording {
		return
	}
	c.interim = text
}

// Failure records a non-fatal error. Capture continues.
func (l *engineListener) Failure(err *transcription.Error) {
	c := l.c
	c.mu.Lock()
	if c.attempt != l.token || fsm.Settled(c.state) {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.mu.Unlock()

	c.logger.Warn("recognition failure; capture continues", "code", string(err.Code))
	c.notify()
}

// Fatal moves a recording session to error and releases its devices.
func (l *engineListener) Fatal(err *transcription.Error) {
	c := l.c
	c.mu.Lock()
	if c.attempt != l.token || c.state != fsm.StateRecording {
		c.mu.Unlock()
		return
	}
	_ = c.transitionLocked(fsm.EventFail)
	c.err = err
	c.interim = ""
	c.stopLoopsLocked()
	adapter, handles, consumerCancel := c.adapter, c.handles, c.consumerCancel
	c.adapter, c.handles, c.consumerCancel = nil, nil, nil
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if consumerCancel != nil {
		consumerCancel()
	}
	if adapter != nil {
		adapter.Stop()
	}
	c.acquirer.Release(handles)

	c.logger.Error("recognition failed; session stopped", "code", string(err.Code))
	c.indicator.ShowError(context.Background(), err.Message)
	c.notify()
}

// Finals arriving during the stop grace period still count.
func acceptsFinals(state fsm.State) bool {
	switch state {
	case fsm.StateRecording, fsm.StatePaused, fsm.StateProcessing:
		return true
	default:
		return false
	}
}

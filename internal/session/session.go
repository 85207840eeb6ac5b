// Package session coordinates the recording lifecycle: device acquisition,
// recognition, live analysis, and transcript accumulation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/scribe/internal/audio"
	"github.com/rbright/scribe/internal/clock"
	"github.com/rbright/scribe/internal/fsm"
	"github.com/rbright/scribe/internal/medterm"
	"github.com/rbright/scribe/internal/quality"
	"github.com/rbright/scribe/internal/recognition"
	"github.com/rbright/scribe/internal/segment"
	"github.com/rbright/scribe/internal/transcription"
	"github.com/rbright/scribe/internal/waveform"
)

var (
	// ErrInvalidState reports a control call that the current state does not allow.
	ErrInvalidState = errors.New("invalid session state")
	// ErrStartAborted reports a start superseded by stop or reset before
	// devices were acquired.
	ErrStartAborted = errors.New("session start aborted")
)

const (
	DefaultMaxDuration = 30 * time.Minute
	DefaultStopGrace   = 500 * time.Millisecond

	durationTick = time.Second
)

// ResourceAcquirer opens and releases the devices of one session.
type ResourceAcquirer interface {
	Acquire(ctx context.Context, c audio.Constraints) (*audio.Handles, error)
	Release(h *audio.Handles)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowPaused(context.Context)
	ShowProcessing(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueComplete(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowPaused(context.Context)        {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) Hide(context.Context)              {}

// Options tunes session timing and device requests. Zero values take defaults.
type Options struct {
	MaxDuration      time.Duration
	StopGrace        time.Duration
	QualityInterval  time.Duration
	WaveformInterval time.Duration
	ChunkInterval    time.Duration
	Constraints      audio.Constraints
	Recognition      recognition.Config
	// OnChange receives a snapshot after each state change and new segment.
	OnChange func(Snapshot)
}

func (o Options) withDefaults() Options {
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	if o.QualityInterval <= 0 {
		o.QualityInterval = quality.DefaultInterval
	}
	if o.WaveformInterval <= 0 {
		o.WaveformInterval = waveform.FrameInterval
	}
	if o.ChunkInterval <= 0 {
		o.ChunkInterval = audio.DefaultChunkInterval
	}
	if o.Constraints.SampleRate <= 0 {
		o.Constraints = audio.DefaultConstraints()
	}
	if o.Recognition.SampleRate <= 0 {
		o.Recognition.SampleRate = o.Constraints.SampleRate
	}
	o.Recognition = o.Recognition.Normalize()
	return o
}

// RecordingSession is the active recording.
type RecordingSession struct {
	ID             string
	StartedAt      time.Time
	ElapsedSeconds int
	Speaker        segment.Speaker
}

// Controller owns one recording session at a time. All state mutation happens
// under mu; engine, recorder, acquirer, and indicator calls happen outside it.
type Controller struct {
	logger    *slog.Logger
	acquirer  ResourceAcquirer
	factory   recognition.Factory
	sched     clock.Scheduler
	indicator Indicator
	opts      Options

	mu        sync.Mutex
	state     fsm.State
	attempt   uint64
	session   *RecordingSession
	speaker   segment.Speaker
	builder   *segment.Builder
	fragments []string
	segments  []segment.Segment
	interim   string
	quality   *quality.Metrics
	waveform  []float64
	artifact  *audio.Artifact
	err       *transcription.Error

	handles        *audio.Handles
	adapter        *recognition.Adapter
	consumerCancel func()
	cancelAcquire  context.CancelFunc

	durationLoop clock.Handle
	qualityLoop  clock.Handle
	waveformLoop clock.Handle
	grace        clock.Handle

	// done is closed when the current recording reaches a settled state.
	done chan struct{}
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	acquirer ResourceAcquirer,
	factory recognition.Factory,
	index medterm.Index,
	sched clock.Scheduler,
	indicator Indicator,
	opts Options,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if factory == nil {
		factory = recognition.Unsupported
	}
	if sched == nil {
		sched = clock.Real{}
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	return &Controller{
		logger:    logger,
		acquirer:  acquirer,
		factory:   factory,
		sched:     sched,
		indicator: indicator,
		opts:      opts.withDefaults(),
		state:     fsm.StateIdle,
		speaker:   segment.SpeakerUnknown,
		builder:   segment.NewBuilder(index),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transitionLocked applies one FSM event to the controller state.
func (c *Controller) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	c.logger.Debug("session transition", "from", string(c.state), "event", string(event), "to", string(next))
	c.state = next
	return nil
}

// Start acquires devices and begins recording. It is valid from idle or
// error and blocks while devices are acquired.
func (c *Controller) Start(ctx context.Context) error {
	acquireCtx, cancelAcquire := context.WithCancel(ctx)
	defer cancelAcquire()

	c.mu.Lock()
	if err := c.transitionLocked(fsm.EventStart); err != nil {
		c.mu.Unlock()
		return err
	}
	c.err = nil
	c.attempt++
	token := c.attempt
	c.cancelAcquire = cancelAcquire
	c.mu.Unlock()
	c.notify()

	engine, err := c.factory(c.opts.Recognition)
	if err != nil {
		code := transcription.CodeUnknown
		if errors.Is(err, recognition.ErrUnsupported) {
			code = transcription.CodeBrowserNotSupported
		}
		return c.failStart(ctx, token, transcription.Wrap(err, code))
	}

	handles, err := c.acquirer.Acquire(acquireCtx, c.opts.Constraints)
	if err != nil {
		return c.failStart(ctx, token, classifyAcquireError(err))
	}

	c.mu.Lock()
	if c.attempt != token || c.state != fsm.StateRequestingPermission {
		c.mu.Unlock()
		c.logger.Info("session start superseded; releasing late devices")
		c.acquirer.Release(handles)
		return ErrStartAborted
	}
	if err := c.transitionLocked(fsm.EventGranted); err != nil {
		c.mu.Unlock()
		c.acquirer.Release(handles)
		return err
	}

	c.cancelAcquire = nil
	c.session = &RecordingSession{
		ID:        uuid.NewString(),
		StartedAt: c.sched.Now(),
		Speaker:   c.speaker,
	}
	c.clearResultsLocked()
	c.handles = handles
	c.adapter = recognition.NewAdapter(engine, c.sched, &engineListener{c: c, token: token}, c.logger)
	if consumer, ok := engine.(recognition.AudioConsumer); ok && handles.Stream != nil {
		c.consumerCancel = handles.Stream.Subscribe(consumer.ConsumeAudio)
	}
	c.done = make(chan struct{})
	c.startLoopsLocked(token)
	adapter, recorder := c.adapter, handles.Recorder
	sessionID := c.session.ID
	c.mu.Unlock()

	if recorder != nil {
		if err := recorder.Start(c.opts.ChunkInterval); err != nil {
			c.logger.Warn("recorder start failed", "error", err.Error())
		}
	}
	adapter.Start(ctx)

	if !c.current(token) {
		// Reset or stop raced the startup calls above.
		adapter.Stop()
		return ErrStartAborted
	}

	c.logger.Info("session recording", "session_id", sessionID, "recorder", recorderMime(recorder))
	c.indicator.ShowRecording(ctx)
	c.notify()
	return nil
}

// failStart moves a still-current start attempt to error.
func (c *Controller) failStart(ctx context.Context, token uint64, terr *transcription.Error) error {
	c.mu.Lock()
	if c.attempt != token || c.state != fsm.StateRequestingPermission {
		c.mu.Unlock()
		return ErrStartAborted
	}
	_ = c.transitionLocked(fsm.EventFail)
	c.err = terr
	c.cancelAcquire = nil
	c.mu.Unlock()

	c.logger.Error("session start failed", "code", string(terr.Code), "error", terr.Error())
	c.indicator.ShowError(ctx, terr.Message)
	c.notify()
	return terr
}

// Pause stops recognition and the live loops while keeping the stream open.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if err := c.transitionLocked(fsm.EventPause); err != nil {
		c.mu.Unlock()
		return err
	}
	c.stopLoopsLocked()
	c.interim = ""
	adapter, recorder := c.adapter, c.recorderLocked()
	c.mu.Unlock()

	if adapter != nil {
		adapter.Stop()
	}
	if recorder != nil {
		recorder.Pause()
	}
	c.indicator.ShowPaused(context.Background())
	c.notify()
	return nil
}

// Resume restarts recognition and the live loops. Elapsed time continues
// from where Pause left it.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if err := c.transitionLocked(fsm.EventResume); err != nil {
		c.mu.Unlock()
		return err
	}
	c.startLoopsLocked(c.attempt)
	adapter, recorder := c.adapter, c.recorderLocked()
	c.mu.Unlock()

	if recorder != nil {
		recorder.Resume()
	}
	if adapter != nil {
		adapter.Start(context.Background())
	}
	c.indicator.ShowRecording(context.Background())
	c.notify()
	return nil
}

// Stop ends the recording and blocks until the artifact is stored and the
// session is completed, or ctx ends. Stop during device acquisition returns
// the session to idle immediately.
func (c *Controller) Stop(ctx context.Context) error {
	done, err := c.beginStop()
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginStop starts the stop sequence without waiting for it.
func (c *Controller) beginStop() (<-chan struct{}, error) {
	c.mu.Lock()
	switch c.state {
	case fsm.StateRequestingPermission:
		_ = c.transitionLocked(fsm.EventCancel)
		c.attempt++
		if c.cancelAcquire != nil {
			c.cancelAcquire()
			c.cancelAcquire = nil
		}
		c.mu.Unlock()

		c.logger.Info("session start cancelled during device acquisition")
		c.indicator.Hide(context.Background())
		c.notify()
		return closedChan(), nil

	case fsm.StateProcessing:
		done := c.done
		c.mu.Unlock()
		return done, nil

	case fsm.StateRecording, fsm.StatePaused:
		_ = c.transitionLocked(fsm.EventStop)
		c.interim = ""
		c.stopLoopsLocked()
		token := c.attempt
		c.grace = c.sched.After(c.opts.StopGrace, func() { c.finishStop(token) })
		adapter, recorder, consumerCancel := c.adapter, c.recorderLocked(), c.consumerCancel
		c.consumerCancel = nil
		done := c.done
		c.mu.Unlock()

		if consumerCancel != nil {
			consumerCancel()
		}
		if adapter != nil {
			adapter.Stop()
		}
		if recorder != nil {
			recorder.Stop()
		}
		c.indicator.CueStop(context.Background())
		c.indicator.ShowProcessing(context.Background())
		c.notify()
		return done, nil

	default:
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop from state %s", ErrInvalidState, state)
	}
}

// finishStop runs after the grace period: it stores the artifact, releases
// devices, and completes the session.
func (c *Controller) finishStop(token uint64) {
	c.mu.Lock()
	if c.attempt != token || c.state != fsm.StateProcessing {
		c.mu.Unlock()
		return
	}
	c.grace = nil
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()

	var artifact *audio.Artifact
	if handles != nil && handles.Recorder != nil {
		artifact = handles.Recorder.Artifact()
	}
	c.acquirer.Release(handles)

	c.mu.Lock()
	if c.attempt != token || c.state != fsm.StateProcessing {
		c.mu.Unlock()
		return
	}
	_ = c.transitionLocked(fsm.EventFlushed)
	c.artifact = artifact
	c.adapter = nil
	done := c.done
	c.done = nil
	segments := len(c.segments)
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	c.logger.Info("session completed", "segments", segments, "artifact_bytes", artifact.Size())
	c.indicator.CueComplete(context.Background())
	c.indicator.Hide(context.Background())
	c.notify()
}

// Reset tears down everything from any state and returns to idle with all
// results cleared.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.attempt++
	if c.cancelAcquire != nil {
		c.cancelAcquire()
		c.cancelAcquire = nil
	}
	c.stopLoopsLocked()
	clock.Cancel(c.grace)
	c.grace = nil

	adapter, handles, consumerCancel := c.adapter, c.handles, c.consumerCancel
	c.adapter, c.handles, c.consumerCancel = nil, nil, nil
	c.session = nil
	c.clearResultsLocked()
	c.err = nil
	_ = c.transitionLocked(fsm.EventReset)
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
	c.indicator.Hide(context.Background())
	c.notify()
}

// SetSpeaker sets the label applied to segments built after the call.
func (c *Controller) SetSpeaker(label string) error {
	speaker, err := segment.ParseSpeaker(label)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.speaker = speaker
	if c.session != nil {
		c.session.Speaker = speaker
	}
	c.mu.Unlock()
	return nil
}

// Artifact returns the finalized recording of a completed session.
func (c *Controller) Artifact() *audio.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Done returns a channel closed when the current recording settles, or nil
// when no recording is in progress.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return nil
	}
	return c.done
}

func (c *Controller) startLoopsLocked(token uint64) {
	c.durationLoop = c.sched.Every(durationTick, func() { c.onTick(token) })
	if c.handles == nil || c.handles.Graph == nil {
		return
	}
	graph := c.handles.Graph
	c.qualityLoop = quality.Start(c.sched, graph, c.opts.QualityInterval, func(m quality.Metrics) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.attempt == token && c.state == fsm.StateRecording {
			c.quality = &m
		}
	})
	c.waveformLoop = waveform.Start(c.sched, graph, c.opts.WaveformInterval, func(bars []float64) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.attempt == token && c.state == fsm.StateRecording {
			c.waveform = bars
		}
	})
}

func (c *Controller) stopLoopsLocked() {
	clock.Cancel(c.durationLoop)
	clock.Cancel(c.qualityLoop)
	clock.Cancel(c.waveformLoop)
	c.durationLoop, c.qualityLoop, c.waveformLoop = nil, nil, nil
}

func (c *Controller) onTick(token uint64) {
	c.mu.Lock()
	if c.attempt != token || c.state != fsm.StateRecording || c.session == nil {
		c.mu.Unlock()
		return
	}
	c.session.ElapsedSeconds++
	limitReached := time.Duration(c.session.ElapsedSeconds)*time.Second >= c.opts.MaxDuration
	c.mu.Unlock()

	if limitReached {
		c.logger.Info("session reached maximum duration; stopping", "max_duration", c.opts.MaxDuration.String())
		if _, err := c.beginStop(); err != nil {
			c.logger.Warn("auto-stop failed", "error", err.Error())
		}
	}
}

func (c *Controller) clearResultsLocked() {
	c.builder.Reset()
	c.fragments = nil
	c.segments = nil
	c.interim = ""
	c.quality = nil
	c.waveform = nil
	c.artifact = nil
}

func (c *Controller) recorderLocked() audio.Recorder {
	if c.handles == nil {
		return nil
	}
	return c.handles.Recorder
}

func (c *Controller) current(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt == token
}

func (c *Controller) notify() {
	if c.opts.OnChange == nil {
		return
	}
	c.opts.OnChange(c.Snapshot())
}

// classifyAcquireError maps device failures to session errors.
func classifyAcquireError(err error) *transcription.Error {
	if errors.Is(err, audio.ErrPermissionDenied) {
		return transcription.New(transcription.CodeMicrophoneDenied, "").WithCause(err)
	}
	// Unclassified device failures are reported as a missing microphone.
	return transcription.New(transcription.CodeMicrophoneNotFound, "").WithCause(err)
}

func recorderMime(r audio.Recorder) string {
	if r == nil {
		return "none"
	}
	return r.MimeType()
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

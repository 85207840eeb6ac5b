package recognition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/scribe/internal/clock"
	"github.com/rbright/scribe/internal/transcription"
)

// StartRetryDelay is the wait before the single start retry.
const StartRetryDelay = 200 * time.Millisecond

// Listener receives classified engine output. Active reports whether the
// owning session is currently recording.
type Listener interface {
	Active() bool
	Final(Result)
	Interim(text string)
	Failure(*transcription.Error)
	Fatal(*transcription.Error)
}

// Adapter wraps an Engine with start retry, restart on end, and error
// classification.
type Adapter struct {
	engine   Engine
	sched    clock.Scheduler
	listener Listener
	logger   *slog.Logger

	mu    sync.Mutex
	retry clock.Handle
}

func NewAdapter(engine Engine, sched clock.Scheduler, listener Listener, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Adapter{engine: engine, sched: sched, listener: listener, logger: logger}
	engine.SetHandlers(Handlers{
		OnResult: a.onResult,
		OnError:  a.onError,
		OnEnd:    a.onEnd,
	})
	return a
}

// Start starts the engine. A failed start is retried once after
// StartRetryDelay if the session is still active; a second failure is logged
// and dropped.
func (a *Adapter) Start(ctx context.Context) {
	err := a.engine.Start(ctx)
	if err == nil || errors.Is(err, ErrAlreadyStarted) {
		return
	}
	a.logger.Warn("recognition start failed; retrying", "error", err.Error(), "delay", StartRetryDelay.String())

	a.mu.Lock()
	clock.Cancel(a.retry)
	a.retry = a.sched.After(StartRetryDelay, a.retryStart)
	a.mu.Unlock()
}

func (a *Adapter) retryStart() {
	a.mu.Lock()
	a.retry = nil
	a.mu.Unlock()

	if !a.listener.Active() {
		return
	}
	err := a.engine.Start(context.Background())
	if err != nil && !errors.Is(err, ErrAlreadyStarted) {
		a.logger.Error("recognition start retry failed; giving up", "error", err.Error())
	}
}

// Stop cancels a pending retry and stops the engine.
func (a *Adapter) Stop() {
	a.mu.Lock()
	clock.Cancel(a.retry)
	a.retry = nil
	a.mu.Unlock()

	if err := a.engine.Stop(); err != nil {
		a.logger.Debug("recognition stop failed", "error", err.Error())
	}
}

func (a *Adapter) onResult(batch []Result) {
	interim := make([]string, 0, len(batch))
	for _, r := range batch {
		if r.IsFinal {
			a.listener.Final(r)
			continue
		}
		if text := strings.TrimSpace(r.Transcript); text != "" {
			interim = append(interim, text)
		}
	}
	a.listener.Interim(strings.Join(interim, " "))
}

func (a *Adapter) onError(e EngineError) {
	switch e.Kind {
	case KindNoSpeech, KindAborted:
		a.logger.Debug("recognition idle condition", "kind", string(e.Kind))
	case KindNetwork:
		a.logger.Warn("recognition network error", "message", e.Message)
		a.listener.Failure(transcription.New(transcription.CodeNetwork, "").WithCause(e))
	case KindNotAllowed, KindServiceNotAllowed:
		a.logger.Error("recognition permission revoked", "kind", string(e.Kind), "message", e.Message)
		a.listener.Fatal(transcription.New(transcription.CodeMicrophoneDenied, "").WithCause(e))
	default:
		a.logger.Warn("recognition error ignored", "kind", string(e.Kind), "message", e.Message)
	}
}

// onEnd restarts the engine once when the session is still recording.
func (a *Adapter) onEnd() {
	if !a.listener.Active() {
		return
	}
	err := a.engine.Start(context.Background())
	switch {
	case err == nil, errors.Is(err, ErrAlreadyStarted):
	default:
		a.logger.Warn("recognition restart after end failed", "error", err.Error())
	}
}

// Package indicator handles desktop state notifications and audio cue playback.
package indicator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/scribe/internal/config"
)

const dispatchTimeout = 400 * time.Millisecond

// Notifier shows session state as one replaceable desktop notification and
// plays short synthesized cues on transitions.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	notify  func(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error
	cue     func(ctx context.Context, kind cueKind) error

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
	cues           sync.WaitGroup
}

// New creates a notifier from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: messagesFromEnv(),
		notify:   desktopNotify,
		dismiss:  desktopDismiss,
		cue:      emitCue,
	}
}

// ShowRecording signals recording start and emits the start cue.
func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, n.messages.recording, 0)
}

// ShowPaused signals a paused recording.
func (n *Notifier) ShowPaused(ctx context.Context) {
	n.playCue(cuePause)
	n.show(ctx, n.messages.paused, 0)
}

// ShowProcessing signals the stop grace period.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	n.show(ctx, n.messages.processing, 0)
}

// ShowError displays an error message that expires on its own.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.playCue(cueError)
	if strings.TrimSpace(text) == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.show(ctx, text, timeout)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueComplete emits the completion cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}

	n.run(ctx, func(ctx context.Context) error {
		return n.dismiss(ctx, id)
	})
}

// Wait blocks until queued cues finish playing.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

// show replaces the current notification. A zero timeout keeps it until
// replaced or dismissed.
func (n *Notifier) show(ctx context.Context, text string, timeoutMS int) {
	if !n.cfg.Enable {
		return
	}

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "scribe-indicator"
	}

	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		replaceID := n.notificationID
		n.mu.Unlock()

		id, err := n.notify(ctx, appName, replaceID, text, timeoutMS)
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.notificationID = id
		if timeoutMS > 0 {
			// Expiring notifications are not replaced later.
			n.notificationID = 0
		}
		n.mu.Unlock()
		return nil
	})
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := n.cue(ctx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}

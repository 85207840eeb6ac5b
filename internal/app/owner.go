package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/scribe/internal/audio"
	"github.com/rbright/scribe/internal/cli"
	"github.com/rbright/scribe/internal/clock"
	"github.com/rbright/scribe/internal/config"
	"github.com/rbright/scribe/internal/fsm"
	"github.com/rbright/scribe/internal/indicator"
	"github.com/rbright/scribe/internal/ipc"
	"github.com/rbright/scribe/internal/medterm"
	"github.com/rbright/scribe/internal/output"
	"github.com/rbright/scribe/internal/recognition"
	"github.com/rbright/scribe/internal/recognition/remote"
	"github.com/rbright/scribe/internal/session"
)

const (
	ownerProbeTimeout = 180 * time.Millisecond
	ownerRetries      = 8
	signalStopTimeout = 5 * time.Second
)

// commandRecord makes this process the session owner: it serves IPC, records
// until the session settles, then delivers the transcript. toggle forwards to
// an existing owner instead of failing.
func (r Runner) commandRecord(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	toggle := parsed.Command == cli.CommandToggle

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if toggle {
		if code, handled := r.forwardToggle(ctx, socketPath); handled {
			return code
		}
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: ownerProbeTimeout,
		Retries:      ownerRetries,
		OnStale: func(path string) {
			logger.Warn("removed stale session socket", "path", path)
		},
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) && toggle {
			if code, handled := r.forwardToggle(ctx, socketPath); handled {
				return code
			}
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = listener.Close() }()

	factory, closeFactory := r.recognitionFactory(ctx, cfg, logger)
	defer closeFactory()

	notifier := indicator.New(cfg.Indicator, logger)
	defer notifier.Wait()

	controller := session.NewController(
		logger,
		audio.NewAcquirer(r.opener(logger), clock.Real{}, logger, audio.WithEncodings(cfg.Recorder.Encodings)),
		factory,
		medterm.NewSet(config.MedicalTerms(cfg)...),
		clock.Real{},
		notifier,
		sessionOptions(cfg, logger),
	)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, ipc.HandlerFunc(controller.Handle))
	}()

	stopSession := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), signalStopTimeout)
		defer cancel()
		if err := controller.Stop(stopCtx); err != nil {
			logger.Warn("stop on signal", "error", err.Error())
		}
	}
	stopOnSignal := context.AfterFunc(ctx, stopSession)
	defer stopOnSignal()

	startErr := controller.Start(context.WithoutCancel(ctx))
	if startErr == nil {
		// A signal that landed before Start left idle found nothing to stop.
		if ctx.Err() != nil {
			stopSession()
		}
		if done := controller.Done(); done != nil {
			<-done
		}
	}

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	snap := controller.Snapshot()
	logSessionResult(logger, snap)

	switch {
	case errors.Is(startErr, session.ErrStartAborted):
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	case startErr != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", startErr)
		return 1
	}

	switch snap.Status {
	case fsm.StateCompleted:
		return r.deliver(ctx, parsed, cfg, logger, snap.Transcript, controller.Artifact())
	case fsm.StateError:
		message := "recording failed"
		if snap.Error != nil {
			message = snap.Error.Error()
		}
		fmt.Fprintf(r.Stderr, "error: %s\n", message)
		return 1
	default:
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
}

func (r Runner) forwardToggle(ctx context.Context, socketPath string) (int, bool) {
	resp, handled, err := tryForward(ctx, socketPath, "toggle", "")
	if !handled {
		return 0, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, true
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0, true
}

// deliver prints the finished transcript, copies it, and writes the audio
// artifact when requested. Delivery failures do not discard the transcript.
func (r Runner) deliver(
	ctx context.Context,
	parsed cli.Parsed,
	cfg config.Config,
	logger *slog.Logger,
	transcript string,
	artifact *audio.Artifact,
) int {
	code := 0
	transcript = strings.TrimSpace(transcript)
	if transcript != "" {
		fmt.Fprintln(r.Stdout, transcript)
	}

	if !parsed.NoClipboard {
		if err := output.NewCommitter(cfg.Output, logger).Commit(ctx, transcript); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			code = 1
		}
	}

	if parsed.SaveAudio != "" {
		if artifact == nil {
			fmt.Fprintln(r.Stderr, "warning: no audio artifact was recorded")
		} else if err := output.WriteArtifact(parsed.SaveAudio, artifact); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			code = 1
		}
	}
	return code
}

func (r Runner) opener(logger *slog.Logger) audio.Opener {
	if r.Opener != nil {
		return r.Opener
	}
	return audio.PulseOpener{Logger: logger}
}

// recognitionFactory dials the configured recognizer. A dial failure is
// deferred to session start so it surfaces as a session error.
func (r Runner) recognitionFactory(ctx context.Context, cfg config.Config, logger *slog.Logger) (recognition.Factory, func()) {
	if r.Factory != nil {
		return r.Factory, func() {}
	}

	timeout := time.Duration(cfg.Recognizer.DialTimeoutMS) * time.Millisecond
	conn, err := remote.Dial(ctx, cfg.Recognizer.GRPC, timeout)
	if err != nil {
		logger.Warn("recognizer unavailable", "endpoint", cfg.Recognizer.GRPC, "error", err.Error())
		dialErr := err
		return func(recognition.Config) (recognition.Engine, error) {
			return nil, fmt.Errorf("connect recognizer: %w", dialErr)
		}, func() {}
	}
	return remote.NewFactory(conn, logger), func() { _ = conn.Close() }
}

func sessionOptions(cfg config.Config, logger *slog.Logger) session.Options {
	phrases, warnings, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		logger.Warn("speech phrases disabled", "error", err.Error())
	}
	for _, w := range warnings {
		logger.Warn("speech phrase warning", "message", w.Message)
	}
	hints := make([]recognition.Phrase, 0, len(phrases))
	for _, p := range phrases {
		hints = append(hints, recognition.Phrase{Phrase: p.Phrase, Boost: p.Boost})
	}
	logger.Debug("speech context plan", "phrase_count", len(hints))

	waveformInterval := time.Duration(0)
	if cfg.Session.WaveformFPS > 0 {
		waveformInterval = time.Second / time.Duration(cfg.Session.WaveformFPS)
	}

	return session.Options{
		MaxDuration:      time.Duration(cfg.Session.MaxDurationMinutes) * time.Minute,
		StopGrace:        time.Duration(cfg.Session.StopGraceMS) * time.Millisecond,
		QualityInterval:  time.Duration(cfg.Session.QualityIntervalMS) * time.Millisecond,
		WaveformInterval: waveformInterval,
		ChunkInterval:    time.Duration(cfg.Recorder.ChunkMS) * time.Millisecond,
		Constraints: audio.Constraints{
			EchoCancellation: cfg.Audio.EchoCancellation,
			NoiseSuppression: cfg.Audio.NoiseSuppression,
			AutoGainControl:  cfg.Audio.AutoGainControl,
			SampleRate:       cfg.Audio.SampleRate,
			Channels:         1,
			Input:            cfg.Audio.Input,
			Fallback:         cfg.Audio.Fallback,
		},
		Recognition: recognition.Config{
			Language:        cfg.Recognizer.Language,
			Continuous:      true,
			InterimResults:  true,
			MaxAlternatives: cfg.Recognizer.MaxAlternatives,
			Phrases:         hints,
		},
		OnChange: func(s session.Snapshot) {
			logger.Debug("session update", "status", string(s.Status), "segments", len(s.Segments), "elapsed", s.Elapsed)
		},
	}
}

func logSessionResult(logger *slog.Logger, snap session.Snapshot) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", snap.SessionID,
		"state", string(snap.Status),
		"elapsed_seconds", snap.ElapsedSeconds,
		"segments", len(snap.Segments),
		"transcript_length", len(snap.Transcript),
	}
	if snap.Artifact != nil {
		fields = append(fields, "artifact_mime", snap.Artifact.MimeType, "artifact_bytes", snap.Artifact.Size)
	}
	if snap.Quality != nil {
		fields = append(fields, "quality_score", snap.Quality.Score)
	}

	if snap.Error != nil {
		logger.Error("session failed", append(fields, "error", snap.Error.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/scribe/internal/audio/audiotest"
	"github.com/rbright/scribe/internal/config"
	"github.com/rbright/scribe/internal/fsm"
	"github.com/rbright/scribe/internal/ipc"
	"github.com/rbright/scribe/internal/quality"
	"github.com/rbright/scribe/internal/recognition"
	"github.com/rbright/scribe/internal/recognition/recognitiontest"
	"github.com/rbright/scribe/internal/session"
	"github.com/rbright/scribe/internal/transcription"
)

const quietConfig = `{
  // keep tests off the desktop and the clipboard
  "recognizer": {"grpc": "127.0.0.1:1", "dial_timeout_ms": 100},
  "session": {"stop_grace_ms": 50},
  "indicator": {"enable": false, "sound_enable": false},
  "output": {"clipboard": false}
}
`

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "scribe")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidSpeakerIsUsageError(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"speaker", "nurse"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown speaker")
}

func TestRunnerInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t, `{"session": {"waveform_fps": 0}}`)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "waveform_fps")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{"--config", paths.configPath, "status", "--json"})
	require.Equal(t, 0, exitCode)
	require.JSONEq(t, `{"status":"idle"}`, stdout.String())
}

func TestRunnerStopReturnsNoActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no active scribe session")
}

func TestRunnerForwardsCommandsToActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "scribe.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case "status":
			return ipc.Response{OK: true, State: "recording"}
		case "pause", "resume", "stop", "reset", "speaker", "toggle":
			return ipc.Response{OK: true, Message: req.Command + " handled"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	invocations := [][]string{
		{"status"},
		{"pause"},
		{"resume"},
		{"speaker", "patient"},
		{"stop"},
		{"reset"},
		{"toggle"},
	}
	for _, args := range invocations {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner := Runner{Stdout: stdout, Stderr: stderr}

		exitCode := runner.Execute(context.Background(), append([]string{"--config", paths.configPath}, args...))
		require.Equal(t, 0, exitCode, args)
		require.Empty(t, stderr.String(), args)
	}

	got := make([]ipc.Request, 0, len(invocations))
	for range invocations {
		got = append(got, <-requests)
	}
	require.Equal(t, []ipc.Request{
		{Command: "status"},
		{Command: "pause"},
		{Command: "resume"},
		{Command: "speaker", Arg: "patient"},
		{Command: "stop"},
		{Command: "reset"},
		{Command: "toggle"},
	}, got)
}

func TestRunnerForwardReportsRejectedCommand(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "scribe.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: false, State: "idle", Error: "invalid session state: pause from idle"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "pause"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "pause from idle")
}

func TestRunnerStatusJSONPrintsSnapshot(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "scribe.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "recording", Snapshot: []byte(`{"status":"recording","elapsed":"00:07"}`)}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status", "--json"})
	require.Equal(t, 0, exitCode)
	require.JSONEq(t, `{"status":"recording","elapsed":"00:07"}`, stdout.String())
}

func TestRunnerStatusPrintsLivePreview(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "scribe.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "recording", Snapshot: []byte(`{"status":"recording","elapsed":"01:05","transcript":"the patient has","interimText":" hyper tension "}`)}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "recording 01:05\nthe patient has hyper tension\n", stdout.String())
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "scribe.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	serverCtx, cancelServer := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- ipc.Serve(serverCtx, listener, ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
			switch req.Command {
			case "status":
				return ipc.Response{OK: true, State: "recording"}
			default:
				return ipc.Response{OK: false, Error: "unsupported"}
			}
		}))
	}()

	resp, handled, err := tryForward(context.Background(), socketPath, "status", "")
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "recording", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, "reset", "")
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")

	cancelServer()
	require.NoError(t, <-serverDone)
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "scribe.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, "status", "")
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "scribe.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, "status", "")
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "forward command \"status\":")

	<-done
	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
	require.NoError(t, listener.Close())
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "[FAIL] recognizer")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerRecordFailsWhenRecognizerUnreachable(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	opener := &audiotest.Opener{}
	runner := Runner{Stdout: &stdout, Stderr: &stderr, Opener: opener}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "record"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), string(transcription.CodeUnknown))
	require.Contains(t, stderr.String(), "connect recognizer")
	require.Zero(t, opener.Opens())

	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "scribe.sock"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerToggleOwnerReportsMissingMicrophone(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)

	var stderr bytes.Buffer
	engine := &recognitiontest.Engine{}
	runner := Runner{
		Stdout:  &bytes.Buffer{},
		Stderr:  &stderr,
		Opener:  &audiotest.Opener{Err: errors.New("no sources")},
		Factory: engine.Factory(),
	}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "toggle"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), string(transcription.CodeMicrophoneNotFound))
	require.Zero(t, engine.Starts())
}

func TestRunnerRecordDeliversTranscriptAfterIPCStop(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	socketPath := filepath.Join(paths.runtimeDir, "scribe.sock")
	artifactPath := filepath.Join(t.TempDir(), "visits", "visit.wav")

	engine := &recognitiontest.Engine{}
	opener := &audiotest.Opener{}
	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: stderr, Opener: opener, Factory: engine.Factory()}

	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(context.Background(), []string{
			"--config", paths.configPath, "record", "--save-audio", artifactPath,
		})
	}()

	waitForOwnerState(t, socketPath, fsm.StateRecording)
	require.True(t, engine.Running())
	require.Equal(t, "en-US", engine.Config().Language)
	require.Equal(t, 48000, opener.LastConstraints().SampleRate)

	engine.EmitFinal("Patient denies chest pain", 0.92)

	resp, err := ipc.Command(context.Background(), socketPath, "speaker", "doctor", time.Second)
	require.NoError(t, err)
	require.True(t, resp.OK)

	resp, err = ipc.Command(context.Background(), socketPath, "stop", "", time.Second)
	require.NoError(t, err)
	require.Equal(t, "stop requested", resp.Message)

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("record did not finish")
	}

	require.Equal(t, "Patient denies chest pain\n", stdout.String())
	require.False(t, engine.Running())
	require.True(t, opener.Stream.Stopped())

	data, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[:4]))

	_, statErr := os.Stat(socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerRecordStopsOnContextCancel(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	socketPath := filepath.Join(paths.runtimeDir, "scribe.sock")

	engine := &recognitiontest.Engine{}
	opener := &audiotest.Opener{}
	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Opener: opener, Factory: engine.Factory()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(ctx, []string{"--config", paths.configPath, "record"})
	}()

	waitForOwnerState(t, socketPath, fsm.StateRecording)
	engine.EmitFinal("Follow up in two weeks", 0.8)
	cancel()

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("record did not stop on cancel")
	}
	require.Equal(t, "Follow up in two weeks\n", stdout.String())
	require.True(t, opener.Stream.Stopped())
}

func TestRunnerRecordResetPrintsCancelled(t *testing.T) {
	paths := setupRunnerEnv(t, quietConfig)
	socketPath := filepath.Join(paths.runtimeDir, "scribe.sock")

	engine := &recognitiontest.Engine{}
	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Opener: &audiotest.Opener{}, Factory: engine.Factory()}

	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "record"})
	}()

	waitForOwnerState(t, socketPath, fsm.StateRecording)
	_, err := ipc.Command(context.Background(), socketPath, "reset", "", time.Second)
	require.NoError(t, err)

	select {
	case code := <-exitCh:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("record did not finish after reset")
	}
	require.Equal(t, "cancelled\n", stdout.String())
}

func TestRecognitionFactoryDefersDialFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Recognizer.GRPC = "127.0.0.1:1"
	cfg.Recognizer.DialTimeoutMS = 50

	factory, closeFactory := Runner{}.recognitionFactory(context.Background(), cfg, slog.New(slog.DiscardHandler))
	defer closeFactory()

	_, err := factory(recognition.DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect recognizer")
}

func TestSessionOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.WaveformFPS = 50
	cfg.Session.StopGraceMS = 250
	cfg.Audio.Input = "usb"
	cfg.Audio.NoiseSuppression = false

	opts := sessionOptions(cfg, slog.New(slog.DiscardHandler))
	require.Equal(t, 20*time.Millisecond, opts.WaveformInterval)
	require.Equal(t, 250*time.Millisecond, opts.StopGrace)
	require.Equal(t, 30*time.Minute, opts.MaxDuration)
	require.Equal(t, "usb", opts.Constraints.Input)
	require.False(t, opts.Constraints.NoiseSuppression)
	require.Equal(t, 1, opts.Constraints.Channels)
	require.True(t, opts.Recognition.Continuous)
	require.True(t, opts.Recognition.InterimResults)
}

func TestLogSessionResultWritesFailureAndSuccess(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	logSessionResult(logger, session.Snapshot{
		SessionID:      "abc",
		Status:         fsm.StateCompleted,
		ElapsedSeconds: 12,
		Transcript:     "hello",
		Quality:        &quality.Metrics{Score: 80},
		Artifact:       &session.ArtifactInfo{MimeType: "audio/wav", Size: 44},
	})

	require.Contains(t, logBuf.String(), "session complete")
	require.Contains(t, logBuf.String(), "\"transcript_length\":5")
	require.Contains(t, logBuf.String(), "\"artifact_bytes\":44")
	require.Contains(t, logBuf.String(), "\"quality_score\":80")

	logBuf.Reset()
	logSessionResult(logger, session.Snapshot{
		Status: fsm.StateError,
		Error:  transcription.New(transcription.CodeMicrophoneDenied, ""),
	})
	require.Contains(t, logBuf.String(), "session failed")
	require.Contains(t, logBuf.String(), "MICROPHONE_DENIED")
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T, content string) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func waitForOwnerState(t *testing.T, socketPath string, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := ipc.Send(context.Background(), socketPath, ipc.Request{Command: "status"}, 200*time.Millisecond)
		return err == nil && resp.State == string(want)
	}, 5*time.Second, 10*time.Millisecond)
}

// syncBuffer guards a bytes.Buffer written by the runner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

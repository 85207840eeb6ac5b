// Package app dispatches parsed CLI commands to the session owner, the IPC
// client, and the diagnostics.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/scribe/internal/audio"
	"github.com/rbright/scribe/internal/cli"
	"github.com/rbright/scribe/internal/config"
	"github.com/rbright/scribe/internal/doctor"
	"github.com/rbright/scribe/internal/ipc"
	"github.com/rbright/scribe/internal/logging"
	"github.com/rbright/scribe/internal/recognition"
	"github.com/rbright/scribe/internal/transcript"
	"github.com/rbright/scribe/internal/version"
)

const forwardTimeout = 220 * time.Millisecond

// Runner executes one CLI invocation. Opener and Factory replace the Pulse
// capture and the remote recognizer when set.
type Runner struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
	Opener  audio.Opener
	Factory recognition.Factory
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("scribe"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("scribe"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	if err := logRuntime.SetLevel(cfgLoaded.Config.Log.Level); err != nil {
		logger.Warn("ignoring log level", "error", err.Error())
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx, parsed.JSON)
	case cli.CommandPause, cli.CommandResume, cli.CommandStop, cli.CommandReset, cli.CommandSpeaker:
		return r.forwardOrFail(ctx, string(parsed.Command), parsed.Arg)
	case cli.CommandRecord, cli.CommandToggle:
		return r.commandRecord(ctx, parsed, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context, asJSON bool) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		r.printIdle(asJSON)
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status", "")
	if !handled {
		r.printIdle(asJSON)
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if asJSON && len(resp.Snapshot) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, resp.Snapshot, "", "  "); err != nil {
			fmt.Fprintf(r.Stderr, "error: decode snapshot: %v\n", err)
			return 1
		}
		fmt.Fprintln(r.Stdout, out.String())
		return 0
	}
	if resp.State == "" {
		resp.State = "idle"
	}

	var live struct {
		Elapsed     string `json:"elapsed"`
		Transcript  string `json:"transcript"`
		InterimText string `json:"interimText"`
	}
	if ok, err := resp.DecodeSnapshot(&live); err != nil || !ok || live.Elapsed == "" {
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}
	fmt.Fprintf(r.Stdout, "%s %s\n", resp.State, live.Elapsed)
	if text := transcript.Preview(live.Transcript, live.InterimText); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	return 0
}

func (r Runner) printIdle(asJSON bool) {
	if asJSON {
		fmt.Fprintln(r.Stdout, `{"status": "idle"}`)
		return
	}
	fmt.Fprintln(r.Stdout, "idle")
}

func (r Runner) forwardOrFail(ctx context.Context, command string, arg string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command, arg)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active scribe session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// tryForward sends command to a running owner. handled is false when no owner
// is listening.
func tryForward(ctx context.Context, socketPath string, command string, arg string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command, Arg: arg}, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if errors.Is(err, ipc.ErrNoOwner) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

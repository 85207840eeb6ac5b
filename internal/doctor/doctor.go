// Package doctor runs runtime readiness diagnostics for config, tools, audio,
// and the recognizer.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/scribe/internal/audio"
	"github.com/rbright/scribe/internal/config"
	"github.com/rbright/scribe/internal/recognition/remote"
)

const recognizerCheckTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config. Slow
// probes run concurrently; the report keeps a stable order.
func Run(ctx context.Context, cfg config.Loaded) Report {
	probes := []func(context.Context) Check{
		func(context.Context) Check { return checkConfig(cfg) },
	}
	if cfg.Config.Output.Clipboard {
		probes = append(probes, func(context.Context) Check {
			return checkCommand(cfg.Config.Output.ClipboardCmd.Argv, "output.clipboard_cmd")
		})
	}
	if cfg.Config.Indicator.Enable {
		probes = append(probes, func(context.Context) Check {
			return checkBinary("busctl", "desktop notifications use busctl")
		})
	}
	probes = append(probes,
		func(ctx context.Context) Check { return checkAudioSelection(ctx, cfg.Config) },
		func(ctx context.Context) Check { return checkRecognizer(ctx, cfg.Config) },
	)

	checks := make([]Check, len(probes))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, probe := range probes {
		group.Go(func() error {
			checks[i] = probe(groupCtx)
			return nil
		})
	}
	_ = group.Wait()

	return Report{Checks: checks}
}

// checkConfig reports where configuration came from.
func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	if len(cfg.EnvOverrides) > 0 {
		message = fmt.Sprintf("%s; overridden by %s", message, strings.Join(cfg.EnvOverrides, ", "))
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRecognizer dials the configured recognizer and queries its gRPC
// health service.
func checkRecognizer(ctx context.Context, cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.Recognizer.GRPC)
	if endpoint == "" {
		return Check{Name: "recognizer", Pass: false, Message: "recognizer.grpc is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, recognizerCheckTimeout)
	defer cancel()

	conn, err := remote.Dial(ctx, endpoint, recognizerCheckTimeout)
	if err != nil {
		return Check{Name: "recognizer", Pass: false, Message: err.Error()}
	}
	defer conn.Close()

	if err := remote.CheckHealth(ctx, conn); err != nil {
		return Check{Name: "recognizer", Pass: false, Message: err.Error()}
	}
	return Check{Name: "recognizer", Pass: true, Message: fmt.Sprintf("%s is serving", endpoint)}
}

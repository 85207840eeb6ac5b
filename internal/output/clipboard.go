// Package output applies the side effects of a completed recording:
// clipboard commit of the transcript and optional audio artifact export.
package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/scribe/internal/audio"
	"github.com/rbright/scribe/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Committer applies transcript output side effects.
type Committer struct {
	config config.OutputConfig
	logger *slog.Logger
}

// NewCommitter constructs a transcript committer from runtime config.
func NewCommitter(cfg config.OutputConfig, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Committer{config: cfg, logger: logger}
}

// Commit writes transcript text to the clipboard when enabled. Blank
// transcripts are skipped.
func (c *Committer) Commit(ctx context.Context, transcript string) error {
	if strings.TrimSpace(transcript) == "" || !c.config.Clipboard {
		return nil
	}

	clipboardCtx, clipboardCancel := context.WithTimeout(ctx, clipboardTimeout)
	defer clipboardCancel()
	if err := pipeTo(clipboardCtx, c.config.ClipboardCmd.Argv, transcript); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	c.logger.Debug("transcript copied to clipboard", "chars", len(transcript))
	return nil
}

// WriteArtifact stores the recording at path with owner-only permissions.
func WriteArtifact(path string, artifact *audio.Artifact) error {
	if artifact == nil || len(artifact.Data) == 0 {
		return fmt.Errorf("no audio artifact to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, artifact.Data, 0o600); err != nil {
		return fmt.Errorf("write artifact %q: %w", path, err)
	}
	return nil
}

// pipeTo runs argv with input on stdin. A failing command's stderr is folded
// into the returned error.
func pipeTo(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, detail)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/scribe/internal/audio"
	"github.com/rbright/scribe/internal/config"
)

func TestPipeToWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	err := pipeTo(context.Background(), []string{scriptPath, outputPath}, "BP 142 over 90, recheck in two weeks")
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "BP 142 over 90, recheck in two weeks", string(data))
}

func TestPipeToRejectsEmptyArgv(t *testing.T) {
	require.ErrorContains(t, pipeTo(context.Background(), nil, "payload"), "argv cannot be empty")
}

func TestPipeToHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, pipeTo(ctx, []string{writeStdinCaptureScript(t), filepath.Join(t.TempDir(), "out")}, "x"))
}

func TestCommitterCommitWritesClipboard(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default().Output
	cfg.ClipboardCmd = config.CommandConfig{Argv: []string{scriptPath, clipboardPath}}

	committer := NewCommitter(cfg, nil)
	err := committer.Commit(context.Background(), "Patient has hypertension")
	require.NoError(t, err)

	data, err := os.ReadFile(clipboardPath)
	require.NoError(t, err)
	require.Equal(t, "Patient has hypertension", string(data))
}

func TestCommitterCommitSkipsBlankTranscriptAndDisabledClipboard(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default().Output
	cfg.ClipboardCmd = config.CommandConfig{Argv: []string{scriptPath, clipboardPath}}
	require.NoError(t, NewCommitter(cfg, nil).Commit(context.Background(), "  "))

	cfg.Clipboard = false
	require.NoError(t, NewCommitter(cfg, nil).Commit(context.Background(), "captured transcript"))

	_, statErr := os.Stat(clipboardPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestCommitterCommitReturnsErrorWhenClipboardCommandFails(t *testing.T) {
	failScript := writeFailScript(t, "clipboard failed")

	cfg := config.Default().Output
	cfg.ClipboardCmd = config.CommandConfig{Argv: []string{failScript}}

	committer := NewCommitter(cfg, nil)
	err := committer.Commit(context.Background(), "captured transcript")
	require.Error(t, err)
	require.Contains(t, err.Error(), "set clipboard")
	require.Contains(t, err.Error(), "clipboard failed")
}

func TestWriteArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visits", "visit.wav")
	artifact := &audio.Artifact{Data: []byte("RIFF-data"), MimeType: audio.MimeWAV}

	require.NoError(t, WriteArtifact(path, artifact))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "RIFF-data", string(data))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())

	require.Error(t, WriteArtifact(path, nil))
	require.Error(t, WriteArtifact(path, &audio.Artifact{}))
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "capture-stdin.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
cat > "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho " + "\"" + message + "\"" + " >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

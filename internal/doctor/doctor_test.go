package doctor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/scribe/internal/config"
	"github.com/rbright/scribe/internal/recognition/remote"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckConfigMessages(t *testing.T) {
	check := checkConfig(config.Loaded{Path: "/tmp/missing.jsonc"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "using defaults")

	check = checkConfig(config.Loaded{Path: "/tmp/c.jsonc", Exists: true, Warnings: []config.Warning{{Message: "w"}}})
	require.Equal(t, `loaded "/tmp/c.jsonc" with 1 warning(s)`, check.Message)

	check = checkConfig(config.Loaded{Path: "/tmp/c.jsonc", Exists: true, EnvOverrides: []string{"SCRIBE_LOG_LEVEL"}})
	require.Equal(t, `loaded "/tmp/c.jsonc"; overridden by SCRIBE_LOG_LEVEL`, check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "output.clipboard_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	installFakeBinary(t, "fake-bin")

	check := checkCommand([]string{"fake-bin", "--arg"}, "output.clipboard_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "output.clipboard_cmd command is available")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Equal(t, "audio.device", check.Name)
}

func TestCheckRecognizerServing(t *testing.T) {
	endpoint := startHealthServer(t, healthpb.HealthCheckResponse_SERVING)

	cfg := config.Default()
	cfg.Recognizer.GRPC = endpoint

	check := checkRecognizer(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "is serving")
}

func TestCheckRecognizerNotServing(t *testing.T) {
	endpoint := startHealthServer(t, healthpb.HealthCheckResponse_NOT_SERVING)

	cfg := config.Default()
	cfg.Recognizer.GRPC = endpoint

	check := checkRecognizer(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "NOT_SERVING")
}

func TestCheckRecognizerEmptyEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Recognizer.GRPC = " "

	check := checkRecognizer(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "recognizer.grpc is empty")
}

func TestRunOrdersChecksAndSkipsDisabledTools(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	endpoint := startHealthServer(t, healthpb.HealthCheckResponse_SERVING)
	installFakeBinary(t, "fake-clipboard")

	cfg := config.Default()
	cfg.Recognizer.GRPC = endpoint
	cfg.Indicator.Enable = false
	cfg.Output.ClipboardCmd = config.CommandConfig{Raw: "fake-clipboard", Argv: []string{"fake-clipboard"}}

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg, Exists: true})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "fake-clipboard", "audio.device", "recognizer"}, names)
	require.True(t, report.Checks[1].Pass)
	require.False(t, report.Checks[2].Pass)
	require.True(t, report.Checks[3].Pass)
	require.False(t, report.OK())
}

func startHealthServer(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(remote.ServiceName, status)
	healthpb.RegisterHealthServer(server, healthServer)

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)
	return listener.Addr().String()
}

func installFakeBinary(t *testing.T, name string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

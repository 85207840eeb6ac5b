package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("scribe session already running")

const (
	socketEnv           = "SCRIBE_SOCKET"
	defaultProbeTimeout = 180 * time.Millisecond
)

// RuntimeSocketPath returns $SCRIBE_SOCKET when set, else the owner socket
// under XDG_RUNTIME_DIR, else a per-user directory under the temp dir.
func RuntimeSocketPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(socketEnv)); explicit != "" {
		return explicit, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		runtimeDir = filepath.Join(os.TempDir(), fmt.Sprintf("scribe-%d", os.Getuid()))
	}
	return filepath.Join(runtimeDir, "scribe.sock"), nil
}

// AcquireOptions tunes owner-socket acquisition.
type AcquireOptions struct {
	ProbeTimeout time.Duration
	Retries      int
	// OnStale runs after an unresponsive socket file has been removed.
	OnStale func(path string)
}

// Acquire listens on path as the single session owner. A responsive owner
// yields ErrAlreadyRunning. A socket nobody answers on is removed and the
// listen is retried. Closing the returned listener unlinks the socket.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &ownerListener{Listener: listener, path: path}, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		if err := clearStale(ctx, path, opts); err != nil {
			return nil, err
		}
		if attempt >= opts.Retries {
			return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
		}
	}
}

// clearStale removes path when no owner answers on it. An inconclusive probe
// leaves the file alone.
func clearStale(ctx context.Context, path string, opts AcquireOptions) error {
	alive, err := Probe(ctx, path, opts.ProbeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	if opts.OnStale != nil {
		opts.OnStale(path)
	}
	return nil
}

// ownerListener unlinks its socket file on the first Close.
type ownerListener struct {
	net.Listener
	path string
	once sync.Once
}

func (l *ownerListener) Close() error {
	err := l.Listener.Close()
	l.once.Do(func() {
		if removeErr := os.Remove(l.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
			err = removeErr
		}
	})
	return err
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrNoOwner reports that nothing is listening on the owner socket.
var ErrNoOwner = errors.New("no active scribe session")

// maxResponseBytes bounds one response line; snapshots of long visits carry
// every segment.
const maxResponseBytes = 8 << 20

// Send performs one request/response roundtrip on the unix socket at path.
// A missing socket or a refused connection wraps ErrNoOwner.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	if req.Command == "" {
		return Response{}, errors.New("ipc request command is empty")
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return Response{}, fmt.Errorf("%w: %v", ErrNoOwner, err)
		}
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(io.LimitReader(conn, maxResponseBytes)).Decode(&resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Command sends command with an optional argument and converts a rejected
// response into an error.
func Command(ctx context.Context, path string, command string, arg string, timeout time.Duration) (Response, error) {
	resp, err := Send(ctx, path, Request{Command: command, Arg: arg}, timeout)
	if err != nil {
		return Response{}, err
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "request rejected"
		}
		return resp, fmt.Errorf("%s: %s", command, msg)
	}
	return resp, nil
}

// Probe reports whether a responsive owner is listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: "status"}, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoOwner):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

func isSocketMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

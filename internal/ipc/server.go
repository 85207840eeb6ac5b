package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// DefaultReadTimeout bounds how long a client may take to send its request.
	DefaultReadTimeout = 2 * time.Second
	maxRequestBytes    = 64 << 10
)

// ServeOption customizes Serve.
type ServeOption func(*server)

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) ServeOption {
	return func(s *server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// Handler answers one request from a control client.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

type server struct {
	handler     Handler
	readTimeout time.Duration
}

// Serve answers control clients on listener, one request per connection,
// until ctx is cancelled or the listener closes. In-flight connections are
// drained before it returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler, opts ...ServeOption) error {
	s := &server{handler: handler, readTimeout: DefaultReadTimeout}
	for _, opt := range opts {
		opt(s)
	}

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	req, err := s.readRequest(conn)
	if err != nil {
		_ = writeResponse(conn, Response{OK: false, Error: err.Error()})
		return
	}
	_ = writeResponse(conn, s.handler.Handle(ctx, req))
}

func (s *server) readRequest(conn net.Conn) (Request, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	line, err := bufio.NewReader(io.LimitReader(conn, maxRequestBytes)).ReadBytes('\n')
	if err != nil {
		return Request{}, fmt.Errorf("read request: %v", err)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %v", err)
	}
	return req, nil
}

func writeResponse(w io.Writer, resp Response) error {
	return json.NewEncoder(w).Encode(resp)
}

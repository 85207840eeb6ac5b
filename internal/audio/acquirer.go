package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/scribe/internal/clock"
)

// Handles are the device resources held by one session.
type Handles struct {
	mu       sync.Mutex
	Stream   Stream
	Graph    *Graph
	Recorder Recorder
}

// Option customizes an Acquirer.
type Option func(*Acquirer)

// WithEncodings sets the recorder encoding preference order.
func WithEncodings(encodings []string) Option {
	return func(a *Acquirer) {
		if len(encodings) > 0 {
			a.encodings = append([]string(nil), encodings...)
		}
	}
}

// WithRecorder registers a recorder implementation for mime.
func WithRecorder(mime string, factory RecorderFactory) Option {
	return func(a *Acquirer) {
		if factory == nil {
			delete(a.recorders, mime)
			return
		}
		a.recorders[mime] = factory
	}
}

// Acquirer opens and releases session device handles. It is the only
// component that stops tracks.
type Acquirer struct {
	opener    Opener
	sched     clock.Scheduler
	logger    *slog.Logger
	encodings []string
	recorders map[string]RecorderFactory
	window    int
}

func NewAcquirer(opener Opener, sched clock.Scheduler, logger *slog.Logger, opts ...Option) *Acquirer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Acquirer{
		opener:    opener,
		sched:     sched,
		logger:    logger,
		encodings: append([]string(nil), DefaultEncodings...),
		recorders: map[string]RecorderFactory{MimeWAV: NewWAVRecorder},
		window:    AnalyserWindow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Encoding reports the recorder encoding Acquire will use, if any.
func (a *Acquirer) Encoding() (string, bool) {
	return NegotiateEncoding(a.encodings, func(mime string) bool {
		_, ok := a.recorders[mime]
		return ok
	})
}

// Acquire opens the stream and wires the graph and recorder to it. Open
// failures keep ErrPermissionDenied/ErrDeviceNotFound in their chain.
func (a *Acquirer) Acquire(ctx context.Context, c Constraints) (*Handles, error) {
	stream, err := a.opener.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	h := &Handles{Stream: stream, Graph: NewGraph(stream, a.window)}
	if mime, ok := a.Encoding(); ok {
		h.Recorder = a.recorders[mime](stream, a.sched)
	} else {
		a.logger.Warn("no supported recorder encoding; audio artifact disabled", "preferred", a.encodings)
	}
	return h, nil
}

// Release stops the recorder, closes the graph, stops every track, and clears
// h. It tolerates nil and partially populated handles and may be called
// repeatedly. Panics in any step are logged and do not skip later steps.
func (a *Acquirer) Release(h *Handles) {
	if h == nil {
		return
	}

	h.mu.Lock()
	stream, graph, recorder := h.Stream, h.Graph, h.Recorder
	h.Stream, h.Graph, h.Recorder = nil, nil, nil
	h.mu.Unlock()

	if recorder != nil {
		a.safely("stop recorder", recorder.Stop)
	}
	if graph != nil {
		a.safely("close graph", graph.Close)
	}
	if stream != nil {
		var tracks []Track
		a.safely("list tracks", func() { tracks = stream.Tracks() })
		for _, track := range tracks {
			if track != nil {
				a.safely("stop track", track.Stop)
			}
		}
	}
}

func (a *Acquirer) safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("audio release step failed", "step", step, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

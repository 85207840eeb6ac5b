package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rbright/scribe/internal/recognition"
)

// StreamMethod is the full gRPC method name of the recognition stream.
const StreamMethod = "/" + ServiceName + "/StreamingRecognize"

var streamDesc = &grpc.StreamDesc{
	StreamName:    "StreamingRecognize",
	ServerStreams: true,
	ClientStreams: true,
}

// NewFactory returns a recognition.Factory whose engines share conn.
func NewFactory(conn grpc.ClientConnInterface, logger *slog.Logger) recognition.Factory {
	return func(cfg recognition.Config) (recognition.Engine, error) {
		if conn == nil {
			return nil, recognition.ErrUnsupported
		}
		return NewEngine(conn, cfg, logger), nil
	}
}

// Engine streams PCM pushed through ConsumeAudio and reports recognition
// results through its handlers.
type Engine struct {
	conn   grpc.ClientConnInterface
	cfg    recognition.Config
	logger *slog.Logger

	mu       sync.Mutex
	handlers recognition.Handlers
	stream   grpc.ClientStream
	cancel   context.CancelFunc

	// sendMu serializes SendMsg and CloseSend on the active stream.
	sendMu sync.Mutex
}

func NewEngine(conn grpc.ClientConnInterface, cfg recognition.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{conn: conn, cfg: cfg.Normalize(), logger: logger}
}

func (e *Engine) SetHandlers(h recognition.Handlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = h
}

// Start opens a stream and sends the recognition config. ctx bounds only the
// setup; the stream lives until Stop or a server-side end.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		return recognition.ErrAlreadyStarted
	}

	config, err := e.configMessage()
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := e.conn.NewStream(streamCtx, streamDesc, StreamMethod)
	if err != nil {
		cancel()
		return fmt.Errorf("open recognition stream: %w", err)
	}
	if err := stream.SendMsg(config); err != nil {
		cancel()
		return fmt.Errorf("send recognition config: %w", err)
	}

	e.stream = stream
	e.cancel = cancel
	go e.recvLoop(stream)
	return nil
}

// Stop closes the active stream. Events from a stopped stream are dropped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	stream, cancel := e.stream, e.cancel
	e.stream, e.cancel = nil, nil
	e.mu.Unlock()

	if stream == nil {
		return nil
	}
	e.sendMu.Lock()
	err := stream.CloseSend()
	e.sendMu.Unlock()
	cancel()
	return err
}

// ConsumeAudio sends one s16le PCM chunk. Chunks arriving while stopped are
// dropped.
func (e *Engine) ConsumeAudio(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	e.mu.Lock()
	stream := e.stream
	e.mu.Unlock()
	if stream == nil {
		return
	}

	msg, err := anypb.New(wrapperspb.Bytes(pcm))
	if err != nil {
		e.logger.Debug("encode audio chunk failed", "error", err.Error())
		return
	}
	e.sendMu.Lock()
	err = stream.SendMsg(msg)
	e.sendMu.Unlock()
	if err != nil && !errors.Is(err, io.EOF) {
		e.logger.Debug("send audio chunk failed", "error", err.Error())
	}
}

// Running reports whether a stream is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream != nil
}

func (e *Engine) configMessage() (*anypb.Any, error) {
	phrases := make([]any, 0, len(e.cfg.Phrases))
	for _, p := range e.cfg.Phrases {
		text := strings.TrimSpace(p.Phrase)
		if text == "" {
			continue
		}
		phrases = append(phrases, map[string]any{"phrase": text, "boost": float64(p.Boost)})
	}

	cfg, err := structpb.NewStruct(map[string]any{
		"language":         e.cfg.Language,
		"continuous":       e.cfg.Continuous,
		"interim_results":  e.cfg.InterimResults,
		"max_alternatives": e.cfg.MaxAlternatives,
		"sample_rate_hz":   e.cfg.SampleRate,
		"phrases":          phrases,
	})
	if err != nil {
		return nil, fmt.Errorf("build recognition config: %w", err)
	}
	msg, err := anypb.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("pack recognition config: %w", err)
	}
	return msg, nil
}

// recvLoop delivers server messages until the stream ends.
func (e *Engine) recvLoop(stream grpc.ClientStream) {
	for {
		msg := &structpb.Struct{}
		err := stream.RecvMsg(msg)
		if err == nil {
			if !e.isCurrent(stream) {
				continue
			}
			e.dispatch(msg)
			continue
		}

		if !e.detach(stream) {
			return
		}
		h := e.currentHandlers()
		if kind, ok := classifyStreamError(err); ok && h.OnError != nil {
			h.OnError(recognition.EngineError{Kind: kind, Message: status.Convert(err).Message()})
		}
		if h.OnEnd != nil {
			h.OnEnd()
		}
		return
	}
}

func (e *Engine) dispatch(msg *structpb.Struct) {
	h := e.currentHandlers()
	fields := msg.GetFields()

	if v, ok := fields["error"]; ok {
		if h.OnError != nil {
			h.OnError(recognition.EngineError{
				Kind:    recognition.ErrorKind(v.GetStringValue()),
				Message: fields["message"].GetStringValue(),
			})
		}
		return
	}

	batch := parseResults(fields["results"].GetListValue())
	if len(batch) > 0 && h.OnResult != nil {
		h.OnResult(batch)
	}
}

func parseResults(list *structpb.ListValue) []recognition.Result {
	values := list.GetValues()
	batch := make([]recognition.Result, 0, len(values))
	for _, v := range values {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			continue
		}
		r := recognition.Result{
			Transcript: fields["transcript"].GetStringValue(),
			IsFinal:    fields["is_final"].GetBoolValue(),
		}
		if c, ok := fields["confidence"]; ok {
			if _, isNum := c.GetKind().(*structpb.Value_NumberValue); isNum {
				r.Confidence = c.GetNumberValue()
				r.HasConfidence = true
			}
		}
		batch = append(batch, r)
	}
	return batch
}

// classifyStreamError maps a terminal stream error to an engine error kind.
// Clean EOF yields no error event.
func classifyStreamError(err error) (recognition.ErrorKind, bool) {
	if errors.Is(err, io.EOF) {
		return "", false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return recognition.KindNetwork, true
	case codes.Canceled:
		return recognition.KindAborted, true
	case codes.PermissionDenied:
		return recognition.KindNotAllowed, true
	case codes.Unauthenticated:
		return recognition.KindServiceNotAllowed, true
	case codes.InvalidArgument:
		return recognition.KindLanguageNotSupported, true
	default:
		return recognition.ErrorKind(strings.ToLower(status.Code(err).String())), true
	}
}

func (e *Engine) isCurrent(stream grpc.ClientStream) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream == stream
}

// detach clears stream if it is still active and reports whether it was.
func (e *Engine) detach(stream grpc.ClientStream) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != stream {
		return false
	}
	e.cancel()
	e.stream, e.cancel = nil, nil
	return true
}

func (e *Engine) currentHandlers() recognition.Handlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers
}

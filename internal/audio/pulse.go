package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// fragmentMillis sets the Pulse record fragment size.
const fragmentMillis = 20

// PulseOpener opens capture streams on the local PulseAudio/PipeWire server.
type PulseOpener struct {
	Logger *slog.Logger
}

// Open selects a source per c.Input/c.Fallback and starts a mono s16 record
// stream at c.SampleRate. Echo cancellation, noise suppression, and gain
// control are server-side modules in Pulse and are only recorded here.
func (o PulseOpener) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultConstraints().SampleRate
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	devices, err := listDevices(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	selection, err := selectDeviceFromList(devices, c.Input, c.Fallback)
	if err != nil {
		client.Close()
		return nil, err
	}
	if selection.Warning != "" {
		logger.Warn("audio device fallback", "warning", selection.Warning)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrDeviceNotFound, selection.Device.ID, err)
	}

	s := &pulseStream{
		device:     selection.Device,
		client:     client,
		sampleRate: sampleRate,
		subs:       make(map[int]func([]byte)),
		stopCh:     make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	record, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(uint32(sampleRate*2*fragmentMillis/1000)),
		pulse.RecordMediaName("scribe clinical capture"),
	)
	if err != nil {
		s.stop()
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrPermissionDenied, err)
	}
	s.record = record

	if err := ctx.Err(); err != nil {
		s.stop()
		return nil, err
	}
	record.Start()

	logger.Info("audio stream opened",
		"device", selection.Device.ID,
		"sample_rate", sampleRate,
		"echo_cancellation", c.EchoCancellation,
		"noise_suppression", c.NoiseSuppression,
		"auto_gain_control", c.AutoGainControl,
	)
	return s, nil
}

// pulseStream fans one Pulse record stream out to subscribers.
type pulseStream struct {
	device     Device
	client     *pulse.Client
	record     *pulse.RecordStream
	sampleRate int

	mu      sync.Mutex
	subs    map[int]func([]byte)
	nextSub int
	stopped bool
	stopCh  chan struct{}

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

func (s *pulseStream) Tracks() []Track {
	return []Track{pulseTrack{stream: s}}
}

func (s *pulseStream) SampleRate() int { return s.sampleRate }

func (s *pulseStream) Subscribe(fn func(pcm []byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// BytesCaptured reports total bytes accepted from Pulse.
func (s *pulseStream) BytesCaptured() int64 {
	return s.bytes.Load()
}

// onPCM receives raw Pulse frames and hands a copy to every subscriber.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as s.stopped to avoid Add/Wait races.
	s.inflight.Add(1)
	subs := make([]func([]byte), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	s.bytes.Add(int64(len(buffer)))

	for _, fn := range subs {
		chunk := make([]byte, len(buffer))
		copy(chunk, buffer)
		fn(chunk)
	}
	return len(buffer), nil
}

// stop halts the record stream and closes the client exactly once.
func (s *pulseStream) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.subs = map[int]func([]byte){}
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	s.inflight.Wait()
}

type pulseTrack struct {
	stream *pulseStream
}

func (t pulseTrack) Label() string {
	if t.stream.device.Description != "" {
		return t.stream.device.Description
	}
	return t.stream.device.ID
}

func (t pulseTrack) Stop() { t.stream.stop() }

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

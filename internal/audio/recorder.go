package audio

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rbright/scribe/internal/clock"
)

const (
	MimeWebMOpus = "audio/webm;codecs=opus"
	MimeOggOpus  = "audio/ogg;codecs=opus"
	MimeWAV      = "audio/wav"

	// DefaultChunkInterval is the recorder chunk cadence.
	DefaultChunkInterval = time.Second
)

// DefaultEncodings lists recorder encodings in preference order.
var DefaultEncodings = []string{MimeWebMOpus, MimeOggOpus, MimeWAV}

// Recorder accumulates stream audio into an artifact produced once on Stop.
type Recorder interface {
	MimeType() string
	Start(chunkInterval time.Duration) error
	Pause()
	Resume()
	Stop()
	Artifact() *Artifact
}

// RecorderFactory builds a recorder for one encoding.
type RecorderFactory func(stream Stream, sched clock.Scheduler) Recorder

// NegotiateEncoding returns the first preferred encoding supported reports true for.
func NegotiateEncoding(preferred []string, supported func(mime string) bool) (string, bool) {
	for _, mime := range preferred {
		mime = strings.TrimSpace(mime)
		if mime != "" && supported(mime) {
			return mime, true
		}
	}
	return "", false
}

// WAVRecorder buffers PCM in chunks and encodes a WAV artifact on Stop.
type WAVRecorder struct {
	stream Stream
	sched  clock.Scheduler

	mu          sync.Mutex
	started     bool
	stopped     bool
	paused      bool
	pending     []byte
	chunks      [][]byte
	tick        clock.Handle
	unsubscribe func()
	artifact    *Artifact
}

func NewWAVRecorder(stream Stream, sched clock.Scheduler) Recorder {
	return &WAVRecorder{stream: stream, sched: sched}
}

func (r *WAVRecorder) MimeType() string { return MimeWAV }

// Start subscribes to the stream and seals a chunk every chunkInterval.
func (r *WAVRecorder) Start(chunkInterval time.Duration) error {
	if chunkInterval <= 0 {
		chunkInterval = DefaultChunkInterval
	}

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	unsubscribe := r.stream.Subscribe(r.onPCM)
	tick := r.sched.Every(chunkInterval, r.sealChunk)

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.tick = tick
	stopped := r.stopped
	r.mu.Unlock()

	if stopped {
		unsubscribe()
		tick.Cancel()
	}
	return nil
}

func (r *WAVRecorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

func (r *WAVRecorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
}

// Stop finalizes the artifact. Later calls are no-ops.
func (r *WAVRecorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	unsubscribe, tick := r.unsubscribe, r.tick
	r.unsubscribe, r.tick = nil, nil
	r.sealChunkLocked()

	var pcm bytes.Buffer
	for _, chunk := range r.chunks {
		pcm.Write(chunk)
	}
	r.chunks = nil

	var out bytes.Buffer
	out.Grow(wavHeaderSize + pcm.Len())
	_ = writePCM16WAV(&out, pcm.Bytes(), r.stream.SampleRate(), 1)
	r.artifact = &Artifact{Data: out.Bytes(), MimeType: MimeWAV}
	r.mu.Unlock()

	clock.Cancel(tick)
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Artifact returns the finalized recording, or nil before Stop.
func (r *WAVRecorder) Artifact() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact
}

// ChunkCount reports how many chunks have been sealed so far.
func (r *WAVRecorder) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *WAVRecorder) onPCM(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.paused {
		return
	}
	r.pending = append(r.pending, pcm...)
}

func (r *WAVRecorder) sealChunk() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealChunkLocked()
}

func (r *WAVRecorder) sealChunkLocked() {
	if len(r.pending) == 0 {
		return
	}
	r.chunks = append(r.chunks, r.pending)
	r.pending = nil
}

// Package audiotest provides in-memory capture doubles.
package audiotest

import (
	"context"
	"sync"

	"github.com/rbright/scribe/internal/audio"
)

// Track records whether it was stopped.
type Track struct {
	mu     sync.Mutex
	label  string
	stops  int
	OnStop func()
}

func (t *Track) Label() string { return t.label }

func (t *Track) Stop() {
	t.mu.Lock()
	t.stops++
	onStop := t.OnStop
	t.mu.Unlock()
	if onStop != nil {
		onStop()
	}
}

// Stops reports how many times Stop was called.
func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Stream is an audio.Stream fed by Emit.
type Stream struct {
	mu      sync.Mutex
	rate    int
	tracks  []*Track
	subs    map[int]func([]byte)
	nextSub int
}

// NewStream returns a one-track stream at sampleRate.
func NewStream(sampleRate int) *Stream {
	return &Stream{
		rate:   sampleRate,
		tracks: []*Track{{label: "fake microphone"}},
		subs:   make(map[int]func([]byte)),
	}
}

func (s *Stream) Tracks() []audio.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *Stream) SampleRate() int { return s.rate }

func (s *Stream) Subscribe(fn func([]byte)) func() {
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

// Emit delivers pcm to every current subscriber.
func (s *Stream) Emit(pcm []byte) {
	s.mu.Lock()
	subs := make([]func([]byte), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(append([]byte(nil), pcm...))
	}
}

// Subscribers reports the current subscriber count.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Track returns the i-th fake track.
func (s *Stream) Track(i int) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[i]
}

// Stopped reports whether every track has been stopped at least once.
func (s *Stream) Stopped() bool {
	for _, t := range s.Tracks() {
		if t.(*Track).Stops() == 0 {
			return false
		}
	}
	return true
}

// Opener hands out Stream or Err. When Gate is non-nil Open blocks until it
// is closed or ctx ends.
type Opener struct {
	mu          sync.Mutex
	Stream      *Stream
	Err         error
	Gate        chan struct{}
	Entered     chan struct{}
	opens       int
	constraints []audio.Constraints
}

func (o *Opener) Open(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	o.mu.Lock()
	o.opens++
	o.constraints = append(o.constraints, c)
	gate, entered := o.Gate, o.Entered
	o.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	if o.Stream == nil {
		o.Stream = NewStream(c.SampleRate)
	}
	return o.Stream, nil
}

// Opens reports how many times Open was called.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// LastConstraints returns the constraints of the most recent Open.
func (o *Opener) LastConstraints() audio.Constraints {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.constraints) == 0 {
		return audio.Constraints{}
	}
	return o.constraints[len(o.constraints)-1]
}

// PCM encodes samples as little-endian s16.
func PCM(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, v := range samples {
		out = append(out, byte(uint16(v)), byte(uint16(v)>>8))
	}
	return out
}

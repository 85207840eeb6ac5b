// Package audio acquires and releases the microphone stream, metering graph,
// and chunked recorder used by a recording session.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied reports that the input exists but cannot be opened.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceNotFound reports that no usable input device exists.
	ErrDeviceNotFound = errors.New("microphone not found")
)

// Constraints requests capture processing and format for one stream.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	Channels         int
	Input            string
	Fallback         string
}

// DefaultConstraints returns 48 kHz mono capture with all processing enabled.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       48000,
		Channels:         1,
		Input:            "default",
		Fallback:         "default",
	}
}

// Track is one stoppable capture source of a stream.
type Track interface {
	Label() string
	Stop()
}

// Stream delivers little-endian s16 PCM to subscribers.
type Stream interface {
	Tracks() []Track
	SampleRate() int
	Subscribe(fn func(pcm []byte)) (cancel func())
}

// Opener opens a capture stream honoring constraints.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Artifact is the finalized recording of a session.
type Artifact struct {
	Data     []byte
	MimeType string
}

// Size returns the payload length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

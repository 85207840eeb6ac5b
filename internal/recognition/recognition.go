// Package recognition defines the speech recognition engine contract and the
// adapter that keeps an engine running for the life of a recording.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported reports that no recognition engine is available.
	ErrUnsupported = errors.New("speech recognition not supported")
	// ErrAlreadyStarted reports a Start on a running engine.
	ErrAlreadyStarted = errors.New("recognition already started")
)

// Phrase is one vocabulary hint with a boost weight.
type Phrase struct {
	Phrase string
	Boost  float32
}

// Config configures one engine instance.
type Config struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
	SampleRate      int
	Phrases         []Phrase
}

func DefaultConfig() Config {
	return Config{
		Language:        "en-US",
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 3,
		SampleRate:      48000,
	}
}

// Normalize fills unset fields from DefaultConfig.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Language) == "" {
		c.Language = def.Language
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = def.MaxAlternatives
	}
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	return c
}

// Result is the top alternative of one recognition result.
type Result struct {
	Transcript    string
	Confidence    float64
	HasConfidence bool
	IsFinal       bool
}

// ErrorKind names an engine error condition.
type ErrorKind string

const (
	KindNoSpeech             ErrorKind = "no-speech"
	KindAborted              ErrorKind = "aborted"
	KindAudioCapture         ErrorKind = "audio-capture"
	KindNetwork              ErrorKind = "network"
	KindNotAllowed           ErrorKind = "not-allowed"
	KindServiceNotAllowed    ErrorKind = "service-not-allowed"
	KindLanguageNotSupported ErrorKind = "language-not-supported"
)

// EngineError is an asynchronous engine failure.
type EngineError struct {
	Kind    ErrorKind
	Message string
}

func (e EngineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition error: %s", e.Kind)
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Kind, e.Message)
}

// Handlers receive engine events. Engines may invoke them from any goroutine.
type Handlers struct {
	OnResult func(batch []Result)
	OnError  func(EngineError)
	OnEnd    func()
}

// Engine is a continuous speech recognizer. The ctx passed to Start bounds
// only session setup; the engine runs until Stop or an end event.
type Engine interface {
	SetHandlers(Handlers)
	Start(ctx context.Context) error
	Stop() error
}

// AudioConsumer is implemented by engines that need PCM pushed to them rather
// than capturing on their own.
type AudioConsumer interface {
	ConsumeAudio(pcm []byte)
}

// Factory builds an engine for cfg or returns ErrUnsupported.
type Factory func(cfg Config) (Engine, error)

// Unsupported is a Factory for runtimes without a recognizer.
func Unsupported(Config) (Engine, error) {
	return nil, ErrUnsupported
}

// Package recognitiontest provides a scripted recognition engine.
package recognitiontest

import (
	"context"
	"sync"

	"github.com/rbright/scribe/internal/recognition"
)

// Engine is a deterministic recognition.Engine driven by Emit* calls.
type Engine struct {
	mu        sync.Mutex
	handlers  recognition.Handlers
	running   bool
	starts    int
	stops     int
	startErrs []error
	audio     [][]byte
	config    recognition.Config
}

// FailStarts queues errors returned by the next Start calls, in order.
func (e *Engine) FailStarts(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErrs = append(e.startErrs, errs...)
}

// Factory returns a recognition.Factory that hands out e.
func (e *Engine) Factory() recognition.Factory {
	return func(cfg recognition.Config) (recognition.Engine, error) {
		e.mu.Lock()
		e.config = cfg
		e.mu.Unlock()
		return e, nil
	}
}

func (e *Engine) SetHandlers(h recognition.Handlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = h
}

func (e *Engine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if len(e.startErrs) > 0 {
		err := e.startErrs[0]
		e.startErrs = e.startErrs[1:]
		if err != nil {
			return err
		}
	}
	if e.running {
		return recognition.ErrAlreadyStarted
	}
	e.running = true
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.running = false
	return nil
}

func (e *Engine) ConsumeAudio(pcm []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audio = append(e.audio, pcm)
}

// EmitResults delivers one result batch.
func (e *Engine) EmitResults(batch ...recognition.Result) {
	if h := e.snapshot(); h.OnResult != nil {
		h.OnResult(batch)
	}
}

// EmitFinal delivers a batch holding one final result.
func (e *Engine) EmitFinal(text string, confidence float64) {
	e.EmitResults(recognition.Result{Transcript: text, Confidence: confidence, HasConfidence: true, IsFinal: true})
}

// EmitError delivers an engine error.
func (e *Engine) EmitError(kind recognition.ErrorKind) {
	if h := e.snapshot(); h.OnError != nil {
		h.OnError(recognition.EngineError{Kind: kind})
	}
}

// EmitEnd marks the engine stopped and delivers an end event.
func (e *Engine) EmitEnd() {
	e.mu.Lock()
	e.running = false
	h := e.handlers
	e.mu.Unlock()
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

func (e *Engine) snapshot() recognition.Handlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers
}

func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// AudioChunks reports how many PCM chunks were pushed to the engine.
func (e *Engine) AudioChunks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.audio)
}

// Config returns the configuration the factory last received.
func (e *Engine) Config() recognition.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Package transcription defines the structured failure type surfaced by a
// recording session.
package transcription

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure category.
type Code string

const (
	CodeMicrophoneDenied    Code = "MICROPHONE_DENIED"
	CodeMicrophoneNotFound  Code = "MICROPHONE_NOT_FOUND"
	CodeBrowserNotSupported Code = "BROWSER_NOT_SUPPORTED"
	CodeNetwork             Code = "NETWORK_ERROR"
	CodeUnknown             Code = "UNKNOWN"
)

var defaultMessages = map[Code]string{
	CodeMicrophoneDenied:    "Microphone access was denied. Allow microphone access and try again.",
	CodeMicrophoneNotFound:  "No microphone was found. Connect an input device and try again.",
	CodeBrowserNotSupported: "Speech recognition is not available in this runtime.",
	CodeNetwork:             "Speech recognition lost its network connection. Recording continues.",
	CodeUnknown:             "An unexpected error occurred.",
}

// Error is a session failure with a recoverability hint.
type Error struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Cause       error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New builds an Error with the default recoverability for code. An empty
// message is replaced by the code's default text.
func New(code Code, message string) *Error {
	if message == "" {
		message = DefaultMessage(code)
	}
	return &Error{
		Code:        code,
		Message:     message,
		Recoverable: IsRecoverableCode(code),
	}
}

// IsRecoverableCode reports whether a caller can retry after a failure with code.
func IsRecoverableCode(code Code) bool {
	return code != CodeBrowserNotSupported
}

// DefaultMessage returns the user-facing text for code.
func DefaultMessage(code Code) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return defaultMessages[CodeUnknown]
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Wrap converts err into an *Error, keeping an existing one as-is.
func Wrap(err error, fallback Code) *Error {
	if err == nil {
		return nil
	}
	if existing, ok := As(err); ok {
		return existing
	}
	return New(fallback, "").WithCause(err)
}

// Package fsm defines the recording session state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StatePaused               State = "paused"
	StateProcessing           State = "processing"
	StateCompleted            State = "completed"
	StateError                State = "error"
)

const (
	EventStart   Event = "start"
	EventGranted Event = "granted"
	EventPause   Event = "pause"
	EventResume  Event = "resume"
	EventStop    Event = "stop"
	EventFlushed Event = "flushed"
	EventCancel  Event = "cancel"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Transition returns the state reached by applying event to current.
func Transition(current State, event Event) (State, error) {
	if event == EventReset {
		if !Known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateIdle, nil
	}

	switch current {
	case StateIdle, StateError:
		switch event {
		case EventStart:
			return StateRequestingPermission, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequestingPermission:
		switch event {
		case EventGranted:
			return StateRecording, nil
		case EventCancel:
			return StateIdle, nil
		case EventFail:
			return StateError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventPause:
			return StatePaused, nil
		case EventStop:
			return StateProcessing, nil
		case EventFail:
			return StateError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePaused:
		switch event {
		case EventResume:
			return StateRecording, nil
		case EventStop:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventFlushed:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCompleted:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Known reports whether s is one of the defined states.
func Known(s State) bool {
	switch s {
	case StateIdle, StateRequestingPermission, StateRecording, StatePaused,
		StateProcessing, StateCompleted, StateError:
		return true
	default:
		return false
	}
}

// Settled reports whether s is a rest state no pending work can leave.
func Settled(s State) bool {
	return s == StateIdle || s == StateCompleted || s == StateError
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

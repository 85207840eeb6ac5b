package ipc

import (
	"encoding/json"
	"fmt"
)

// Request is one newline-delimited command sent to the session owner.
type Request struct {
	Command string `json:"command"`
	Arg     string `json:"arg,omitempty"`
}

// Response carries the command outcome and, when available, a session snapshot.
type Response struct {
	OK       bool            `json:"ok"`
	State    string          `json:"state,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// DecodeSnapshot unmarshals the response snapshot into v. It reports false
// when the response carries none.
func (r Response) DecodeSnapshot(v any) (bool, error) {
	if len(r.Snapshot) == 0 || string(r.Snapshot) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(r.Snapshot, v); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	return true, nil
}

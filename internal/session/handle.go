package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rbright/scribe/internal/fsm"
	"github.com/rbright/scribe/internal/ipc"
)

// Handle maps IPC commands onto the running session. Every response carries
// the resulting snapshot.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	command := strings.ToLower(strings.TrimSpace(req.Command))

	var err error
	message := ""
	switch command {
	case "status":
	case "pause":
		err = c.Pause()
		message = "paused"
	case "resume":
		err = c.Resume()
		message = "resumed"
	case "stop":
		_, err = c.beginStop()
		message = "stop requested"
	case "toggle":
		switch c.State() {
		case fsm.StateRecording, fsm.StatePaused, fsm.StateRequestingPermission:
			_, err = c.beginStop()
			message = "stop requested"
		default:
			err = fmt.Errorf("%w: no active recording to toggle", ErrInvalidState)
		}
	case "reset":
		c.Reset()
		message = "reset"
	case "speaker":
		err = c.SetSpeaker(req.Arg)
		message = "speaker set"
	default:
		return c.respond(false, "", fmt.Errorf("unknown command %q", req.Command))
	}
	return c.respond(err == nil, message, err)
}

func (c *Controller) respond(ok bool, message string, err error) ipc.Response {
	snap := c.Snapshot()
	resp := ipc.Response{OK: ok, State: string(snap.Status), Message: message}
	if err != nil {
		resp.Error = err.Error()
		resp.Message = ""
	}
	if raw, encodeErr := json.Marshal(snap); encodeErr == nil {
		resp.Snapshot = raw
	} else {
		c.logger.Warn("encode snapshot failed", "error", encodeErr.Error())
	}
	return resp
}

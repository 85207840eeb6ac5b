package session

import (
	"fmt"

	"github.com/rbright/scribe/internal/fsm"
	"github.com/rbright/scribe/internal/quality"
	"github.com/rbright/scribe/internal/segment"
	"github.com/rbright/scribe/internal/transcript"
	"github.com/rbright/scribe/internal/transcription"
)

// Snapshot is a read-only copy of the session state for display and IPC.
type Snapshot struct {
	SessionID        string               `json:"sessionId,omitempty"`
	Status           fsm.State            `json:"status"`
	StartedAtEpochMs int64                `json:"startedAtEpochMs,omitempty"`
	ElapsedSeconds   int                  `json:"elapsedSeconds"`
	Elapsed          string               `json:"elapsed"`
	Speaker          segment.Speaker      `json:"speaker"`
	Transcript       string               `json:"transcript"`
	InterimText      string               `json:"interimText"`
	Segments         []segment.Segment    `json:"segments"`
	Quality          *quality.Metrics     `json:"quality"`
	Waveform         []float64            `json:"waveform"`
	Artifact         *ArtifactInfo        `json:"audioArtifact"`
	Error            *transcription.Error `json:"error"`
}

// ArtifactInfo describes a stored recording without its bytes.
type ArtifactInfo struct {
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// Snapshot copies the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Status:      c.state,
		Speaker:     c.speaker,
		Transcript:  transcript.Assemble(c.fragments),
		InterimText: c.interim,
		Segments:    append([]segment.Segment{}, c.segments...),
		Waveform:    append([]float64{}, c.waveform...),
		Error:       c.err,
		Elapsed:     FormatElapsed(0),
	}
	if c.session != nil {
		snap.SessionID = c.session.ID
		snap.StartedAtEpochMs = c.session.StartedAt.UnixMilli()
		snap.ElapsedSeconds = c.session.ElapsedSeconds
		snap.Elapsed = FormatElapsed(c.session.ElapsedSeconds)
	}
	if c.quality != nil {
		m := *c.quality
		m.Issues = append([]string{}, c.quality.Issues...)
		snap.Quality = &m
	}
	if c.artifact != nil {
		snap.Artifact = &ArtifactInfo{MimeType: c.artifact.MimeType, Size: c.artifact.Size()}
	}
	return snap
}

// FormatElapsed renders seconds as MM:SS.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

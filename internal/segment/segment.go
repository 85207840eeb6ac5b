// Package segment turns final recognition fragments into timestamped
// transcript segments.
package segment

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rbright/scribe/internal/medterm"
)

const (
	// SecondsPerChar estimates spoken duration when the engine reports no timing.
	SecondsPerChar = 0.06
	// DefaultConfidence applies when the engine omits a confidence score.
	DefaultConfidence = 0.85
)

type Speaker string

const (
	SpeakerDoctor  Speaker = "doctor"
	SpeakerPatient Speaker = "patient"
	SpeakerUnknown Speaker = "unknown"
)

// ParseSpeaker validates a speaker label.
func ParseSpeaker(raw string) (Speaker, error) {
	switch s := Speaker(strings.ToLower(strings.TrimSpace(raw))); s {
	case SpeakerDoctor, SpeakerPatient, SpeakerUnknown:
		return s, nil
	default:
		return "", fmt.Errorf("unknown speaker %q (want doctor, patient, or unknown)", raw)
	}
}

type Word struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	IsMedicalTerm bool    `json:"isMedicalTerm"`
}

// Segment is one immutable final transcript unit.
type Segment struct {
	ID            int     `json:"id"`
	Text          string  `json:"text"`
	StartTimeSec  float64 `json:"startTimeSec"`
	EndTimeSec    float64 `json:"endTimeSec"`
	Confidence    float64 `json:"confidence"`
	Speaker       Speaker `json:"speaker"`
	IsFinal       bool    `json:"isFinal"`
	IsMedicalTerm bool    `json:"isMedicalTerm"`
	Words         []Word  `json:"words"`
}

// Fragment is one final piece of recognized text.
type Fragment struct {
	Text          string
	Confidence    float64
	HasConfidence bool
}

// Builder assigns session-scoped ids. It is not safe for concurrent use.
type Builder struct {
	index  medterm.Index
	nextID int
}

func NewBuilder(index medterm.Index) *Builder {
	if index == nil {
		index = medterm.Empty{}
	}
	return &Builder{index: index, nextID: 1}
}

// Reset restarts id assignment at 1.
func (b *Builder) Reset() {
	b.nextID = 1
}

// Build converts frag into a segment ending endSec seconds into the session.
// Blank fragments yield false and consume no id.
func (b *Builder) Build(frag Fragment, endSec float64, speaker Speaker) (Segment, bool) {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return Segment{}, false
	}
	if endSec < 0 {
		endSec = 0
	}

	confidence := DefaultConfidence
	if frag.HasConfidence {
		confidence = clampUnit(frag.Confidence)
	}

	tokens := strings.Fields(text)
	normalized := make([]string, len(tokens))
	for i, token := range tokens {
		normalized[i] = medterm.Normalize(token)
	}
	flags := medterm.Tag(b.index, normalized)

	words := make([]Word, 0, len(tokens))
	medical := false
	for i, token := range tokens {
		medical = medical || flags[i]
		words = append(words, Word{Text: token, Confidence: confidence, IsMedicalTerm: flags[i]})
	}

	seg := Segment{
		ID:            b.nextID,
		Text:          text,
		StartTimeSec:  EstimateStart(text, endSec),
		EndTimeSec:    endSec,
		Confidence:    confidence,
		Speaker:       speaker,
		IsFinal:       true,
		IsMedicalTerm: medical,
		Words:         words,
	}
	b.nextID++
	return seg, true
}

// EstimateStart backs off from endSec by SecondsPerChar per rune of text.
func EstimateStart(text string, endSec float64) float64 {
	return math.Max(0, endSec-float64(utf8.RuneCountInString(text))*SecondsPerChar)
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

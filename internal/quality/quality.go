// Package quality scores live microphone input from analyser snapshots.
package quality

import (
	"math"
	"time"

	"github.com/rbright/scribe/internal/clock"
)

// DefaultInterval is the sampling cadence while recording.
const DefaultInterval = 500 * time.Millisecond

const (
	clipHigh = 250
	clipLow  = 5
	minDB    = -100.0
)

const (
	IssueVolumeTooLow   = "Volume too low — speak closer to the microphone"
	IssueVolumeLow      = "Volume is a bit low"
	IssueClipping       = "Audio clipping detected — reduce volume or move back"
	IssueSlightClipping = "Slight clipping detected"
	IssueHighNoise      = "High background noise — move to a quieter area"
	IssueModerateNoise  = "Moderate background noise detected"
)

// Metrics is one quality reading. Each reading replaces the previous one.
type Metrics struct {
	Score        int      `json:"score"`
	Volume       float64  `json:"volume"`
	VolumeDB     float64  `json:"volumeDb"`
	NoiseLevel   float64  `json:"noiseLevel"`
	ClippingRate float64  `json:"clippingRate"`
	Issues       []string `json:"issues"`
}

// Source exposes byte snapshots centered at 128.
type Source interface {
	TimeDomainData() []byte
	FrequencyData() []byte
}

// Analyze computes metrics for one pair of snapshots.
func Analyze(timeDomain, frequency []byte) Metrics {
	volume, clipping := levels(timeDomain)
	m := Metrics{
		Volume:       volume,
		VolumeDB:     toDB(volume),
		NoiseLevel:   noiseLevel(frequency),
		ClippingRate: clipping,
		Issues:       []string{},
	}

	score := 100
	switch {
	case m.Volume < 0.02:
		score -= 30
		m.Issues = append(m.Issues, IssueVolumeTooLow)
	case m.Volume < 0.05:
		score -= 10
		m.Issues = append(m.Issues, IssueVolumeLow)
	}
	switch {
	case m.ClippingRate >= 0.05:
		score -= 25
		m.Issues = append(m.Issues, IssueClipping)
	case m.ClippingRate > 0.01:
		score -= 10
		m.Issues = append(m.Issues, IssueSlightClipping)
	}
	switch {
	case m.NoiseLevel > 0.5:
		score -= 30
		m.Issues = append(m.Issues, IssueHighNoise)
	case m.NoiseLevel > 0.35:
		score -= 15
		m.Issues = append(m.Issues, IssueModerateNoise)
	}

	m.Score = max(score, 0)
	return m
}

// Start samples src every interval and hands each reading to emit.
func Start(sched clock.Scheduler, src Source, interval time.Duration, emit func(Metrics)) clock.Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return sched.Every(interval, func() {
		emit(Analyze(src.TimeDomainData(), src.FrequencyData()))
	})
}

func levels(samples []byte) (rms float64, clipping float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sumSquares float64
	clipped := 0
	for _, b := range samples {
		v := (float64(b) - 128) / 128
		sumSquares += v * v
		if b >= clipHigh || b <= clipLow {
			clipped++
		}
	}
	n := float64(len(samples))
	return math.Sqrt(sumSquares / n), float64(clipped) / n
}

func toDB(volume float64) float64 {
	if volume <= 0 {
		return minDB
	}
	return math.Min(0, math.Max(minDB, 20*math.Log10(volume)))
}

func noiseLevel(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	half := len(bins) / 2
	var total, upper float64
	for i, b := range bins {
		total += float64(b)
		if i >= half {
			upper += float64(b)
		}
	}
	if total == 0 {
		return 0
	}
	return upper / total
}

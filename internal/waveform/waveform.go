// Package waveform downsamples analyser snapshots into display bars.
package waveform

import (
	"math"
	"time"

	"github.com/rbright/scribe/internal/clock"
)

const (
	// Bars is the number of magnitudes produced per frame.
	Bars = 48
	// FrameInterval is one display frame at 60 fps.
	FrameInterval = time.Second / 60
)

// Source exposes a byte time-domain snapshot centered at 128.
type Source interface {
	TimeDomainData() []byte
}

// Sample splits samples into bars buckets and returns each bucket's peak
// normalized magnitude in [0, 1].
func Sample(samples []byte, bars int) []float64 {
	if bars <= 0 {
		return nil
	}
	out := make([]float64, bars)
	n := len(samples)
	if n == 0 {
		return out
	}
	for i := 0; i < bars; i++ {
		lo := n * i / bars
		hi := n * (i + 1) / bars
		if hi <= lo {
			hi = lo + 1
		}
		if lo >= n {
			continue
		}
		hi = min(hi, n)
		peak := 0.0
		for _, b := range samples[lo:hi] {
			peak = math.Max(peak, math.Abs((float64(b)-128)/128))
		}
		out[i] = math.Min(peak, 1)
	}
	return out
}

// Start samples src once per interval and hands each frame to emit.
func Start(sched clock.Scheduler, src Source, interval time.Duration, emit func([]float64)) clock.Handle {
	if interval <= 0 {
		interval = FrameInterval
	}
	return sched.Every(interval, func() {
		emit(Sample(src.TimeDomainData(), Bars))
	})
}

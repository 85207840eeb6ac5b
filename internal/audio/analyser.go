package audio

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// AnalyserWindow is the number of samples each snapshot covers.
	AnalyserWindow = 2048

	analyserMinDB = -100.0
	analyserMaxDB = -30.0
)

// Analyser keeps the most recent window of PCM and exposes byte snapshots of
// it. Time-domain bytes are centered at 128; frequency bytes map
// [-100 dB, -30 dB] onto [0, 255].
type Analyser struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
	fft     *fourier.FFT
}

func NewAnalyser(size int) *Analyser {
	if size <= 0 || size%2 != 0 {
		size = AnalyserWindow
	}
	return &Analyser{
		samples: make([]float64, size),
		fft:     fourier.NewFFT(size),
	}
}

// Size returns the window length in samples.
func (a *Analyser) Size() int {
	return len(a.samples)
}

// Write appends little-endian s16 PCM. A trailing odd byte is ignored.
func (a *Analyser) Write(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		a.samples[a.next] = float64(v) / 32768
		a.next++
		if a.next == len(a.samples) {
			a.next = 0
			a.filled = true
		}
	}
}

// TimeDomainData returns the window oldest-first as bytes centered at 128.
func (a *Analyser) TimeDomainData() []byte {
	ordered := a.ordered()
	out := make([]byte, len(ordered))
	for i, v := range ordered {
		out[i] = toByte(128 * (1 + v))
	}
	return out
}

// FrequencyData returns Size()/2 magnitude bins of the Blackman-windowed window.
func (a *Analyser) FrequencyData() []byte {
	seq := window.Blackman(a.ordered())

	a.mu.Lock()
	coeffs := a.fft.Coefficients(nil, seq)
	a.mu.Unlock()

	n := len(seq)
	out := make([]byte, n/2)
	for i := range out {
		mag := cmplx.Abs(coeffs[i]) / float64(n)
		db := analyserMinDB
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		out[i] = toByte(255 * (db - analyserMinDB) / (analyserMaxDB - analyserMinDB))
	}
	return out
}

func (a *Analyser) ordered() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.samples))
	if !a.filled {
		copy(out[len(out)-a.next:], a.samples[:a.next])
		return out
	}
	n := copy(out, a.samples[a.next:])
	copy(out[n:], a.samples[:a.next])
	return out
}

func toByte(v float64) byte {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}

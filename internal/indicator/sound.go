package indicator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"gonum.org/v1/gonum/dsp/window"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cuePause
	cueStop
	cueComplete
	cueError
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	cueGain       = 0.18
	// cueTaper is the Tukey taper fraction that keeps note edges click free.
	cueTaper = 0.25
)

// note is one tone of a cue.
type note struct {
	hz float64
	ms int
}

var cueScores = map[cueKind][]note{
	cueStart:    {{1047, 70}, {1319, 70}},
	cuePause:    {{784, 55}, {784, 55}},
	cueStop:     {{659, 110}},
	cueComplete: {{784, 60}, {1047, 60}, {1319, 80}},
	cueError:    {{440, 80}, {330, 100}},
}

// rendered caches PCM per cueKind.
var rendered sync.Map

// emitCue plays the cue for kind on the default pulse sink.
func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playPCM(ctx, samples)
}

func cueSamples(kind cueKind) []int16 {
	if pcm, ok := rendered.Load(kind); ok {
		return pcm.([]int16)
	}
	score, ok := cueScores[kind]
	if !ok {
		return nil
	}
	pcm, _ := rendered.LoadOrStore(kind, renderScore(score))
	return pcm.([]int16)
}

func renderScore(score []note) []int16 {
	gap := make([]int16, samplesFor(cueGap))
	var pcm []int16
	for i, n := range score {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, renderNote(n)...)
	}
	return pcm
}

func renderNote(n note) []int16 {
	count := samplesFor(time.Duration(n.ms) * time.Millisecond)
	if count <= 0 || n.hz <= 0 {
		return nil
	}

	wave := make([]float64, count)
	for i := range wave {
		wave[i] = math.Sin(2 * math.Pi * n.hz * float64(i) / cueSampleRate)
	}
	window.Tukey{Alpha: cueTaper}.Transform(wave)

	pcm := make([]int16, count)
	for i, v := range wave {
		pcm[i] = int16(math.Round(v * cueGain * math.MaxInt16))
	}
	return pcm
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}

// pcmSource feeds a fixed buffer to a pulse playback stream.
type pcmSource struct {
	ctx     context.Context
	samples []int16
	cursor  int
}

func (s *pcmSource) read(buf []int16) (int, error) {
	if s.ctx.Err() != nil || s.cursor >= len(s.samples) {
		return 0, pulse.EndOfData
	}
	n := copy(buf, s.samples[s.cursor:])
	s.cursor += n
	if s.cursor >= len(s.samples) {
		return n, pulse.EndOfData
	}
	return n, nil
}

func playPCM(ctx context.Context, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("scribe"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	source := &pcmSource{ctx: ctx, samples: samples}
	stream, err := client.NewPlayback(
		pulse.Int16Reader(source.read),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("scribe indicator cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return ctx.Err()
}

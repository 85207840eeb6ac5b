package audio

import "sync"

// Graph routes a stream into an analyser shared by the quality monitor and the
// waveform sampler.
type Graph struct {
	*Analyser

	once        sync.Once
	unsubscribe func()
}

// NewGraph subscribes an analyser of the given window size to stream.
func NewGraph(stream Stream, size int) *Graph {
	g := &Graph{Analyser: NewAnalyser(size)}
	g.unsubscribe = stream.Subscribe(g.Write)
	return g
}

// Close detaches the analyser from its stream. Snapshots stay readable.
func (g *Graph) Close() {
	g.once.Do(func() {
		if g.unsubscribe != nil {
			g.unsubscribe()
		}
	})
}

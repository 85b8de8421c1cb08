package audio

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChunkInterval is the cadence at which mixed audio is framed into
// chunks. Shorter intervals lower end-to-end latency at the cost of
// per-chunk framing overhead.
const DefaultChunkInterval = 250 * time.Millisecond

// ChunkWriter receives encoded audio chunks. Implementations decide what
// to do with chunks that arrive after their transport has closed.
type ChunkWriter interface {
	WriteChunk(p []byte) error
}

// Encoder taps the mixing graph destination and forwards one chunk of
// PCM16-LE audio per interval to the sink. Empty intervals emit nothing.
type Encoder struct {
	graph    *Graph
	sink     ChunkWriter
	interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewEncoder(graph *Graph, sink ChunkWriter, interval time.Duration) *Encoder {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Encoder{
		graph:    graph,
		sink:     sink,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins emitting chunks until Stop is called.
func (e *Encoder) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go e.run()
}

func (e *Encoder) run() {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			chunk := e.graph.Drain()
			if len(chunk) == 0 {
				continue
			}
			if err := e.sink.WriteChunk(chunk); err != nil {
				log.Printf("audio chunk write error: %v", err)
			}
		}
	}
}

// Stop halts chunk emission and waits for the loop to exit. Idempotent and
// safe to call on an encoder that was never started.
func (e *Encoder) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	if e.started.Load() {
		<-e.done
	}
}

package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// Graph sums any number of PCM16-LE inputs into a single destination
// stream. Inputs are Node handles created with NewNode; Drain returns
// everything mixed since the previous drain.
type Graph struct {
	mu     sync.Mutex
	nodes  []*Node
	closed bool
}

func NewGraph() *Graph {
	return &Graph{}
}

// NewNode connects a new input into the destination. Nodes created after
// Close are detached and discard all writes.
func (g *Graph) NewNode() *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return &Node{detached: true}
	}
	n := &Node{graph: g}
	g.nodes = append(g.nodes, n)
	return n
}

// Disconnect removes a node from the destination and detaches it. Safe for
// nodes that were already disconnected.
func (g *Graph) Disconnect(n *Node) {
	if n == nil {
		return
	}
	g.mu.Lock()
	for i, candidate := range g.nodes {
		if candidate == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	g.mu.Unlock()
	n.detach()
}

// Drain mixes and returns all samples queued since the last drain as
// PCM16-LE bytes. Inputs with fewer queued samples contribute silence for
// the remainder; sums are clamped to the int16 range. Returns nil when no
// input produced anything.
func (g *Graph) Drain() []byte {
	g.mu.Lock()
	nodes := append([]*Node(nil), g.nodes...)
	g.mu.Unlock()

	var buffers [][]int16
	mixLen := 0
	for _, n := range nodes {
		samples := n.take()
		if len(samples) == 0 {
			continue
		}
		if len(samples) > mixLen {
			mixLen = len(samples)
		}
		buffers = append(buffers, samples)
	}
	if mixLen == 0 {
		return nil
	}

	mixed := make([]int16, mixLen)
	for _, samples := range buffers {
		for i, s := range samples {
			sum := int32(mixed[i]) + int32(s)
			if sum > math.MaxInt16 {
				sum = math.MaxInt16
			}
			if sum < math.MinInt16 {
				sum = math.MinInt16
			}
			mixed[i] = int16(sum)
		}
	}

	out := make([]byte, len(mixed)*2)
	for i, s := range mixed {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Close detaches every node and marks the graph unusable. Idempotent.
func (g *Graph) Close() {
	g.mu.Lock()
	nodes := g.nodes
	g.nodes = nil
	g.closed = true
	g.mu.Unlock()

	for _, n := range nodes {
		n.detach()
	}
}

// Node is one input connected into the graph destination. It accepts
// PCM16-LE bytes via Write and queues samples until the next drain.
type Node struct {
	graph *Graph

	mu         sync.Mutex
	queue      []int16
	pending    byte
	hasPending bool
	detached   bool
}

// Write queues PCM16-LE bytes. An odd trailing byte is held until the next
// write completes the sample. Returns io.ErrClosedPipe once detached.
func (n *Node) Write(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.detached {
		return 0, io.ErrClosedPipe
	}

	data := p
	if n.hasPending {
		data = make([]byte, 0, len(p)+1)
		data = append(data, n.pending)
		data = append(data, p...)
		n.hasPending = false
	}
	for len(data) >= 2 {
		n.queue = append(n.queue, int16(binary.LittleEndian.Uint16(data)))
		data = data[2:]
	}
	if len(data) == 1 {
		n.pending = data[0]
		n.hasPending = true
	}
	return len(p), nil
}

func (n *Node) take() []int16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	samples := n.queue
	n.queue = nil
	return samples
}

func (n *Node) detach() {
	n.mu.Lock()
	n.detached = true
	n.queue = nil
	n.mu.Unlock()
}

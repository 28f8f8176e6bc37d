// Package timer implements the simulator's global timer index (spec §3,
// §4.1 step 2): a map from expiry tick to the tasks waiting for that tick.
// It is modeled directly on the teacher's dispatcher/alarm_mgr.go: a
// binary heap ordered by expiry tick, plus a lookup map so a node's
// pending registration can be found and cancelled in O(log n).
//
// At most one layer task per node is ever blocked on a timer at once —
// the five layers of one node run strictly sequentially via ctrl_accept
// handoffs, so only the layer currently holding that node's token can be
// waiting on an expiry — which is exactly the invariant alarm_mgr.go
// relies on for its one-entry-per-node design.
package timer

import (
	"container/heap"

	"github.com/simonlingoogle/go-simplelogger"

	"github.com/pdsns/sim/types"
)

// Ever is the sentinel expiry tick meaning "no timer registered".
const Ever uint64 = ^uint64(0) >> 1

type entry struct {
	node   types.NodeID
	layer  types.LayerID
	expiry uint64
	index  int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].expiry != h[j].expiry {
		return h[i].expiry < h[j].expiry
	}
	return h[i].node < h[j].node
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Manager is the global timer index for one simulation run.
type Manager struct {
	q      entryHeap
	byNode map[types.NodeID]*entry
}

// NewManager creates an empty timer index.
func NewManager() *Manager {
	m := &Manager{byNode: map[types.NodeID]*entry{}}
	heap.Init(&m.q)
	return m
}

// AddNode registers a node with no pending timer (expiry Ever). Called
// once per node at startup, mirroring alarm_mgr.AddNode.
func (m *Manager) AddNode(node types.NodeID) {
	simplelogger.AssertNil(m.byNode[node])
	e := &entry{node: node, layer: types.NetLayer, expiry: Ever}
	heap.Push(&m.q, e)
	m.byNode[node] = e
}

// Register arms node's timer for layer to fire at expiry. A node has at
// most one live registration; Register overwrites any prior one (which is
// how a cancel-then-reschedule is expressed by callers).
func (m *Manager) Register(node types.NodeID, layer types.LayerID, expiry uint64) {
	e := m.byNode[node]
	simplelogger.AssertNotNil(e)
	e.layer = layer
	if e.expiry != expiry {
		e.expiry = expiry
		heap.Fix(&m.q, e.index)
	}
}

// Cancel removes node's pending registration, if any (spec §3: "a cancel
// removes exactly that (tick, task) pair").
func (m *Manager) Cancel(node types.NodeID) {
	e := m.byNode[node]
	simplelogger.AssertNotNil(e)
	if e.expiry != Ever {
		e.expiry = Ever
		heap.Fix(&m.q, e.index)
	}
}

// DeleteNode removes node from the index entirely (used on teardown).
func (m *Manager) DeleteNode(node types.NodeID) {
	e := m.byNode[node]
	simplelogger.AssertNotNil(e)
	heap.Remove(&m.q, e.index)
	delete(m.byNode, node)
}

// NextExpiry returns the earliest tick at which some task is waiting, or
// Ever if nothing is registered.
func (m *Manager) NextExpiry() uint64 {
	if len(m.q) == 0 {
		return Ever
	}
	return m.q[0].expiry
}

// Fire returns every (node, layer) pair whose timer expires exactly at
// tick, clearing those registrations (spec §4.1 step 2: "each waiting
// task is yielded to once, then the (tick, task) entries ... are
// erased"). Order is by node id, for determinism (invariant §8.7).
func (m *Manager) Fire(tick uint64) []struct {
	Node  types.NodeID
	Layer types.LayerID
} {
	var fired []struct {
		Node  types.NodeID
		Layer types.LayerID
	}
	for len(m.q) > 0 && m.q[0].expiry == tick {
		e := m.q[0]
		fired = append(fired, struct {
			Node  types.NodeID
			Layer types.LayerID
		}{e.node, e.layer})
		e.expiry = Ever
		heap.Fix(&m.q, e.index)
	}
	return fired
}

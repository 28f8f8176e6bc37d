// Package queue implements the scheduler's dual event queues (spec §3,
// §4.1): the `now` and `next` lists of in-flight transmission records,
// swapped at the end of every tick. Stylistically grounded on the
// teacher's dispatcher/send_queue.go, but simplified: send_queue.go
// orders its entries by an arbitrary future delivery timestamp and needs
// a priority queue to find the next-due one, whereas here the entire
// `now` list is drained unconditionally every tick and the entire `next`
// list becomes `now` by a single slice swap — so a plain slice, not a
// heap, is the right structure.
package queue

import (
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/types"
)

// TransmissionRecord is the scheduler-owned object tracking one in-flight
// frame across ticks (spec §3: "source list, destination list with
// per-destination received-power, total duration in ticks, remaining
// ticks, and the frame bytes").
type TransmissionRecord struct {
	Sources      []types.NodeID
	SourcePowers map[types.NodeID]float64
	Destinations []types.NodeID
	DestPowers   map[types.NodeID]float64
	Duration     uint64
	Remaining    uint64
	Frame        payload.LlcPayload
}

// Dual holds the `now`/`next` queues described in spec §3.
type Dual struct {
	now  []*TransmissionRecord
	next []*TransmissionRecord
}

// NewDual creates an empty pair of queues.
func NewDual() *Dual {
	return &Dual{}
}

// PushNext enqueues tr onto the `next` queue — how a START_TRANSMITTING
// radio action and a continuing transmission both make their record
// visible on the following tick (spec §4.1 step 1).
func (d *Dual) PushNext(tr *TransmissionRecord) {
	d.next = append(d.next, tr)
}

// Now returns the records due for processing this tick, in FIFO order.
func (d *Dual) Now() []*TransmissionRecord {
	return d.now
}

// Swap makes `next` the new `now` and clears `next` (spec §4.1 step 3).
func (d *Dual) Swap() {
	d.now, d.next = d.next, nil
}

// Len reports how many records are currently pending across both queues,
// for diagnostics and tests.
func (d *Dual) Len() int {
	return len(d.now) + len(d.next)
}

// Clear drops every in-flight transmission record from both queues (spec
// §9's Open Question on leak-on-shutdown). Called once by
// Simulation.Close when a run is torn down.
func (d *Dual) Clear() {
	d.now = nil
	d.next = nil
}

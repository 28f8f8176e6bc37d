// Package ctrl implements the simulator's inter-task control-transfer
// discipline (spec §4.8 / §5): at any moment exactly one task holds the
// virtual CPU, and every suspension point is an explicit handoff of that
// token to a named peer. There is no preemption.
//
// Each cooperative task (one goroutine per layer per node, plus the
// scheduler) owns exactly one Slot, used as its "resume" rendezvous. A
// task accepts control from a peer by blocking on its own Slot; it
// transfers control to a peer by handing off on the peer's Slot. Since the
// handoff is an unbuffered channel send, a send only completes once the
// peer is actually parked waiting to receive it, which is exactly the
// single-threaded, no-mutex-needed guarantee spec §5 requires: the
// scheduler, the event queues, and the timer index are only ever touched
// by whichever task currently holds the token.
package ctrl

import (
	"github.com/pdsns/sim/perr"
)

// Slot is one task's control-rendezvous point. A nil Slot represents a
// peer that does not exist (spec §4.8: "a yield that fails ... is
// fatal").
type Slot chan struct{}

// NewSlot creates a fresh, unheld control slot for one task.
func NewSlot() Slot {
	return make(chan struct{})
}

// CtrlAccept transfers control to peer and then blocks until some other
// task later hands control back to self. It implements spec §4.8's
// ctrl_accept primitive: "yield execution to a specific named peer task".
//
// Calling CtrlAccept with a nil peer is a fatal invariant violation: the
// named peer task does not exist, and the C implementation this is
// modeled on aborts the run rather than deadlock.
func CtrlAccept(peer, self Slot) error {
	if peer == nil {
		return perr.New(perr.Fatal, "ctrl_accept: peer task does not exist")
	}
	peer <- struct{}{}
	<-self
	return nil
}

// Wake hands control to peer without then waiting to be resumed. The
// simulation driver does not use it: sim.Simulation owns its own Slot and
// hands control to layer tasks with CtrlAccept like any other task.
func Wake(peer Slot) error {
	if peer == nil {
		return perr.New(perr.Fatal, "ctrl_accept: peer task does not exist")
	}
	peer <- struct{}{}
	return nil
}

// EventSlot is the single-cell mailbox described in spec §3: it holds at
// most one event for a layer task. A depositor writes it and then yields
// control (via CtrlAccept) so the reader runs next and observes exactly
// one Take per Deposit — the single-producer-single-consumer discipline
// spec §5 calls out needs no locking, since the channel handoff in
// CtrlAccept is what provides the happens-before edge between the write
// and the read.
type EventSlot[T any] struct {
	ev  T
	has bool
}

// Deposit places ev into the slot, overwriting any previous unread value.
// Per spec's invariant, a depositor must yield control immediately after
// this so the reader runs next; EventSlot itself does not enforce that —
// it is enforced by the calling layer's control flow.
func (s *EventSlot[T]) Deposit(ev T) {
	s.ev = ev
	s.has = true
}

// Take removes and returns the slot's event, if any.
func (s *EventSlot[T]) Take() (T, bool) {
	if !s.has {
		var zero T
		return zero, false
	}
	ev := s.ev
	s.has = false
	var zero T
	s.ev = zero
	return ev, true
}

// Peek reports whether the slot currently holds an event, without
// consuming it.
func (s *EventSlot[T]) Peek() bool {
	return s.has
}

// RCSlot is the per-upward-edge return-code slot of spec §3: a callee
// writes it before yielding control back to its caller, who reads it as
// its "return value" for a cross-task call.
type RCSlot struct {
	rc    error
	valid bool
}

// Store writes rc into the slot (spec §4.8's store_rc primitive).
func (s *RCSlot) Store(rc error) {
	s.rc = rc
	s.valid = true
}

// Load reads and clears the slot. ok is false if nothing was stored since
// the last Load.
func (s *RCSlot) Load() (error, bool) {
	if !s.valid {
		return nil, false
	}
	rc := s.rc
	s.valid = false
	s.rc = nil
	return rc, true
}

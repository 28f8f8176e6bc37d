// Package radio implements the per-node radio state machine of spec
// §4.2: the {OFF, IDLE, TRANSMITTING, RECEIVING} channel automaton, its
// action transition table, and the START_TX handshake with the
// user-supplied propagation predicate.
package radio

import (
	"github.com/pdsns/sim/hook"
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/queue"
	"github.com/pdsns/sim/types"
)

// State is one of the four radio channel states.
type State int

const (
	Off State = iota
	Idle
	Transmitting
	Receiving
)

func (s State) String() string {
	switch s {
	case Off:
		return "OFF"
	case Idle:
		return "IDLE"
	case Transmitting:
		return "TRANSMITTING"
	case Receiving:
		return "RECEIVING"
	default:
		return "UNKNOWN"
	}
}

// Scheduler is the part of the scheduler a radio needs during a
// START_TX handshake: a place to deposit the resulting transmission
// record for next-tick fan-out (spec §4.2: "deposits it into scheduler
// `next`").
type Scheduler interface {
	EnqueueTransmission(tr *queue.TransmissionRecord)
	CurrentTick() uint64
}

// Radio is one node's radio layer instance.
type Radio struct {
	NodeID      types.NodeID
	Sensitivity float64
	MaxPower    float64
	TxDuration  uint64

	state   State
	current *payload.RadioPayload

	propagate hook.Propagation
	sched     Scheduler
}

// New creates a radio layer for one node.
func New(id types.NodeID, sensitivity, maxPower float64, txDuration uint64, propagate hook.Propagation, sched Scheduler) *Radio {
	return &Radio{
		NodeID:      id,
		Sensitivity: sensitivity,
		MaxPower:    maxPower,
		TxDuration:  txDuration,
		state:       Off,
		propagate:   propagate,
		sched:       sched,
	}
}

// State reports the radio's current channel state.
func (r *Radio) State() State { return r.state }

// TurnOn implements the TURN_ON action (spec §4.2 table).
func (r *Radio) TurnOn() error {
	switch r.state {
	case Off:
		r.state = Idle
		return nil
	case Idle, Receiving, Transmitting:
		return perr.New(perr.InvalidArgument, "radio %d: TURN_ON invalid in state %s", r.NodeID, r.state)
	}
	return perr.New(perr.Fatal, "radio %d: unreachable state %v", r.NodeID, r.state)
}

// TurnOff implements the TURN_OFF action.
func (r *Radio) TurnOff() error {
	switch r.state {
	case Off, Idle, Receiving, Transmitting:
		r.state = Off
		r.current = nil
		return nil
	}
	return perr.New(perr.Fatal, "radio %d: unreachable state %v", r.NodeID, r.state)
}

// StartTx implements the START_TX action: it invokes the propagation
// predicate, builds a transmission record, and deposits it for next-tick
// fan-out (spec §4.2). dstID and param are passed through to the
// predicate untouched; frame is the outbound LLC payload.
func (r *Radio) StartTx(dstID types.NodeID, frame payload.LlcPayload, param interface{}) error {
	switch r.state {
	case Off, Transmitting:
		return perr.New(perr.InvalidArgument, "radio %d: START_TX invalid in state %s", r.NodeID, r.state)
	case Receiving:
		return perr.New(perr.InvalidArgument, "radio %d: START_TX invalid in state %s", r.NodeID, r.state)
	case Idle:
		srcs, srcPowers, dsts, dstPowers, err := r.propagate(r.NodeID, dstID, param)
		if err != nil {
			return perr.Wrap(perr.BadMessage, err, "radio %d: propagation predicate failed", r.NodeID)
		}
		tr := &queue.TransmissionRecord{
			Sources:      srcs,
			SourcePowers: srcPowers,
			Destinations: dsts,
			DestPowers:   dstPowers,
			Duration:     r.TxDuration,
			Remaining:    r.TxDuration,
			Frame:        frame,
		}
		r.sched.EnqueueTransmission(tr)
		r.state = Transmitting
		return nil
	}
	return perr.New(perr.Fatal, "radio %d: unreachable state %v", r.NodeID, r.state)
}

// StopTx implements the STOP_TX action.
func (r *Radio) StopTx() error {
	switch r.state {
	case Transmitting:
		r.state = Idle
		return nil
	case Off, Idle, Receiving:
		return perr.New(perr.Fatal, "radio %d: STOP_TX invalid in state %s", r.NodeID, r.state)
	}
	return perr.New(perr.Fatal, "radio %d: unreachable state %v", r.NodeID, r.state)
}

// StartReceiving implements the scheduler-delivered START_RX action: an
// incoming transmission's fan-out reaches this node with power pwr,
// carrying rp. In IDLE, the radio snapshots the frame as `current` if
// pwr meets sensitivity, else drops it. In RECEIVING, an overlapping
// signal above sensitivity taints the current reception (spec invariant
// 3). OFF and TRANSMITTING ignore it.
func (r *Radio) StartReceiving(pwr float64, rp payload.RadioPayload) {
	switch r.state {
	case Idle:
		if pwr >= r.Sensitivity {
			rp.RxPwr = pwr
			r.current = &rp
			r.state = Receiving
		}
	case Receiving:
		if pwr > r.Sensitivity {
			r.current.Tainted = true
		}
	case Off, Transmitting:
		// ignore
	}
}

// Release drops the radio's owned in-progress reception, if any,
// regardless of state (spec §9's Open Question on leak-on-shutdown: a
// reimplementation should release all owned payloads on teardown). Called
// once by node.Node.Release when a simulation is closed.
func (r *Radio) Release() {
	r.current = nil
}

// StopReceiving implements the scheduler-delivered STOP_RX action: the
// transmission the radio was receiving has ended. Returns the payload to
// push up to MAC, or ok=false if nothing should be delivered (tainted,
// or the radio was not actually receiving this one).
func (r *Radio) StopReceiving() (ready *payload.MacPayload, ok bool) {
	switch r.state {
	case Receiving:
		cur := r.current
		r.current = nil
		r.state = Idle
		if cur.Tainted {
			return nil, false
		}
		return &cur.MacPayload, true
	case Off, Idle, Transmitting:
		return nil, false
	}
	return nil, false
}

// Package mac implements the MAC sublayer's Layer API (spec §4.3): the
// thin framing/dispatch primitives a user-supplied MAC routine calls —
// wait_for_event, accept, recv, send, pass, sleep, notify_sender. The
// routine itself (the decision logic built on top of these primitives)
// is an external collaborator (spec §1); this package only provides the
// primitives and the goroutine that hosts whatever routine is plugged in.
package mac

import (
	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/radio"
	"github.com/pdsns/sim/sched"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

// Routine is a user-supplied MAC task body: it runs as one goroutine per
// node, driving the simulation purely through Mac's API methods.
type Routine func(m *Mac)

// Mac is one node's MAC layer instance.
type Mac struct {
	id    types.NodeID
	self  ctrl.Slot
	radio *radio.Radio
	sc    sched.Context

	llc        ctrl.Slot
	llcRC      *ctrl.RCSlot                        // MAC writes (notify_sender), LLC reads.
	llcRecvIn  *ctrl.EventSlot[xfer.LlcRecvEvent]   // MAC deposits (Pass), LLC reads.

	events  ctrl.EventSlot[xfer.MacEvent]
	pending xfer.MacEvent
}

// New creates a MAC layer instance wired to its radio and to its LLC
// peer's control slot, return-code slot, and RECV event slot. All control
// slots are created up-front by the node package (spec §4.7: a node
// "wires each layer's down/up pointers") and passed in here, rather than
// self-generated, since adjacent layers need to know each other's slots
// before either side exists. Passing the raw slot pointers (rather than
// calling back into the llc package) also avoids mac and llc importing
// each other, since llc already imports mac to drive MAC's send-side API.
func New(id types.NodeID, r *radio.Radio, sc sched.Context, self, llc ctrl.Slot, llcRC *ctrl.RCSlot, llcRecvIn *ctrl.EventSlot[xfer.LlcRecvEvent]) *Mac {
	return &Mac{
		id:        id,
		self:      self,
		radio:     r,
		sc:        sc,
		llc:       llc,
		llcRC:     llcRC,
		llcRecvIn: llcRecvIn,
	}
}

// Self is the control slot a peer hands off to in order to wake this MAC
// task (spec §4.8's addressed inter-task handoff).
func (m *Mac) Self() ctrl.Slot { return m.self }

// Run starts routine as this MAC's goroutine. The caller is responsible
// for the initial kick (spec §4.7: each task is entered once at startup).
func (m *Mac) Run(routine Routine) {
	go func() {
		<-m.self // park until the node/driver performs the initial kick
		routine(m)
	}()
}

// RequestSend deposits a SEND event from LLC and hands control to MAC,
// parking the caller (LLC) until MAC eventually yields back (spec §4.3:
// "accept ... extracts a pending SEND deposited from LLC").
func (m *Mac) RequestSend(llcSelf ctrl.Slot, frame payload.LlcPayload, pwr float64, param interface{}) error {
	m.events.Deposit(xfer.MacEvent{Action: xfer.MacSend, Frame: frame, Pwr: pwr, Param: param})
	return ctrl.CtrlAccept(m.self, llcSelf)
}

// DeliverRecv deposits a RECV event produced by a completed radio
// reception and hands control to MAC, parking the caller (the driver)
// until MAC yields back.
func (m *Mac) DeliverRecv(driverSelf ctrl.Slot, p payload.MacPayload) error {
	m.events.Deposit(xfer.MacEvent{Action: xfer.MacRecv, Recv: p})
	return ctrl.CtrlAccept(m.self, driverSelf)
}

// WaitForEvent blocks until an event (SEND from LLC or RECV from radio)
// is pending, then consumes it and reports its action (spec §4.3
// wait_for_event).
func (m *Mac) WaitForEvent() (xfer.MacAction, error) {
	if err := sched.WaitFor(m.sc, m.self, m.events.Peek); err != nil {
		return 0, err
	}
	ev, _ := m.events.Take()
	m.pending = ev
	return ev.Action, nil
}

// Accept extracts the pending SEND request's fields (spec §4.3 accept).
func (m *Mac) Accept() (frame payload.LlcPayload, pwr float64, param interface{}, err error) {
	if m.pending.Action != xfer.MacSend {
		return payload.LlcPayload{}, 0, nil, perr.New(perr.InvalidArgument, "mac %d: accept without a pending SEND", m.id)
	}
	return m.pending.Frame, m.pending.Pwr, m.pending.Param, nil
}

// AcceptRecv extracts the pending RECV event's payload (spec §4.3 accept,
// RECV flavor) — call after WaitForEvent reports MacRecv, mirroring how
// Accept serves the MacSend case.
func (m *Mac) AcceptRecv() (payload.MacPayload, error) {
	if m.pending.Action != xfer.MacRecv {
		return payload.MacPayload{}, perr.New(perr.InvalidArgument, "mac %d: accept_recv without a pending RECV", m.id)
	}
	return m.pending.Recv, nil
}

// Recv waits up to timeout ticks for a RECV event from radio (spec §4.3
// recv). On timeout, the timer registration is removed and a Timeout
// error is returned.
func (m *Mac) Recv(timeout uint64) (payload.MacPayload, error) {
	expiry := m.sc.CurrentTick() + timeout
	m.sc.Timers().Register(m.id, types.MacLayer, expiry)

	err := sched.WaitFor(m.sc, m.self, func() bool {
		return m.events.Peek() || m.sc.CurrentTick() >= expiry
	})
	if err != nil {
		return payload.MacPayload{}, err
	}

	if !m.events.Peek() {
		m.sc.Timers().Cancel(m.id)
		return payload.MacPayload{}, perr.New(perr.Timeout, "mac %d: recv timed out", m.id)
	}
	ev, _ := m.events.Take()
	m.sc.Timers().Cancel(m.id)
	if ev.Action != xfer.MacRecv {
		// A SEND arrived while we were waiting for a RECV; not the
		// shape the caller asked for. Re-deposit it so WaitForEvent
		// (or a subsequent Recv) still observes it, and report NoData.
		m.events.Deposit(ev)
		return payload.MacPayload{}, perr.New(perr.NoData, "mac %d: recv observed a SEND, not a RECV", m.id)
	}
	return ev.Recv, nil
}

// Send deposits a START_TX event into the radio and returns its return
// code (spec §4.3 send). Radio has no goroutine of its own (spec §9:
// "simpler to reason about determinism"); the hand-off is a direct call.
func (m *Mac) Send(frame payload.LlcPayload, pwr float64, param interface{}) error {
	frame.Pwr = pwr
	return m.radio.StartTx(frame.DstID, frame, param)
}

// Pass deposits a RECV event into LLC's slot and yields up (spec §4.3
// pass).
func (m *Mac) Pass(p payload.MacPayload) error {
	m.llcRecvIn.Deposit(xfer.LlcRecvEvent{Frame: p})
	return ctrl.CtrlAccept(m.llc, m.self)
}

// Sleep registers a timer for tout ticks and yields to the scheduler
// until it fires (spec §4.3 sleep).
func (m *Mac) Sleep(tout uint64) error {
	expiry := m.sc.CurrentTick() + tout
	m.sc.Timers().Register(m.id, types.MacLayer, expiry)
	return sched.WaitFor(m.sc, m.self, func() bool { return m.sc.CurrentTick() >= expiry })
}

// NotifySender writes the MAC->LLC return-code slot and yields up (spec
// §4.3 notify_sender).
func (m *Mac) NotifySender(rc error) error {
	m.llcRC.Store(rc)
	return ctrl.CtrlAccept(m.llc, m.self)
}

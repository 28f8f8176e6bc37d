// Package network implements the network layer's Layer API (spec §4.6):
// the topmost per-node task, exposing send/recv/sleep to the user-supplied
// net routine. Named "network" rather than "net" so files needing both
// this package and the standard library's net package don't collide.
package network

import (
	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/link"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/sched"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

// Routine is a user-supplied network task body: one goroutine per node,
// entered once at simulation start with an empty event slot (spec §9
// design notes, resolving the Open Question on initial net-layer entry).
type Routine func(n *Network)

// Network is one node's network layer instance.
type Network struct {
	id   types.NodeID
	self ctrl.Slot
	sc   sched.Context

	link  *link.Link
	linkRC *ctrl.RCSlot                       // link writes (notify_sender), net reads
	recvIn *ctrl.EventSlot[xfer.NetRecvEvent] // link deposits (pass), net reads
}

// New creates a network layer instance wired to its link peer (spec §4.7).
func New(id types.NodeID, sc sched.Context, self ctrl.Slot, l *link.Link, linkRC *ctrl.RCSlot, recvIn *ctrl.EventSlot[xfer.NetRecvEvent]) *Network {
	return &Network{id: id, self: self, sc: sc, link: l, linkRC: linkRC, recvIn: recvIn}
}

// Self is network's control slot.
func (n *Network) Self() ctrl.Slot { return n.self }

// CurrentTick reports the global clock as of this routine's last resume —
// the "observing the clock at resume" a net routine needs to confirm
// Sleep's resumption tick for itself.
func (n *Network) CurrentTick() uint64 { return n.sc.CurrentTick() }

// Run starts routine as this network layer's goroutine. The node/driver
// performs the initial kick once at startup (spec §4.7).
func (n *Network) Run(routine Routine) {
	go func() {
		<-n.self
		routine(n)
	}()
}

// Send builds a link payload (spec §4.6: "dst-power initially undefined
// until the link-layer user fills it") and deposits a LINK_SEND request
// into link's slot, yielding down; the link return code becomes this
// call's result.
func (n *Network) Send(dst types.NodeID, data []byte, param interface{}) error {
	pwr := 0.0
	if err := n.link.RequestSend(n.self, dst, data, pwr, param); err != nil {
		return err
	}
	rc, ok := n.linkRC.Load()
	if !ok {
		return perr.New(perr.Fatal, "net %d: link did not notify_sender after a send request", n.id)
	}
	return rc
}

// Recv blocks by yielding down until its event slot holds a NET_RECV (spec
// §4.6 recv).
func (n *Network) Recv() (src types.NodeID, data []byte, err error) {
	if err := sched.WaitFor(n.sc, n.self, n.recvIn.Peek); err != nil {
		return 0, nil, err
	}
	ev, _ := n.recvIn.Take()
	return ev.Src, ev.Data, nil
}

// Sleep registers a timer for tout ticks and yields to the scheduler until
// it fires (spec §4.6 sleep).
func (n *Network) Sleep(tout uint64) error {
	expiry := n.sc.CurrentTick() + tout
	n.sc.Timers().Register(n.id, types.NetLayer, expiry)
	err := sched.WaitFor(n.sc, n.self, func() bool { return n.sc.CurrentTick() >= expiry })
	n.sc.Timers().Cancel(n.id)
	return err
}

// Package link implements the link sublayer's Layer API (spec §4.5): four
// directed send variants (blocking/nonblocking x ack/no-ack), a receive
// with timeout, and the accept/pass/wait_for_event/notify_sender/sleep
// primitives shared with mac and network. The decision logic built on top
// of this API is an external collaborator (spec §1); this package only
// hosts the primitives and the goroutine that runs whatever routine is
// plugged in.
package link

import (
	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/llc"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/sched"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

// Routine is a user-supplied link task body: one goroutine per node.
type Routine func(l *Link)

// Link is one node's link layer instance.
type Link struct {
	id   types.NodeID
	self ctrl.Slot
	sc   sched.Context

	llc    *llc.Llc
	llcRC  *ctrl.RCSlot                         // llc writes (reportToLink), link reads
	recvIn *ctrl.EventSlot[xfer.LinkRecvEvent] // llc deposits (PASS reply), link reads

	net     ctrl.Slot
	netRC   *ctrl.RCSlot                       // link writes (notify_sender), net reads
	netRecv *ctrl.EventSlot[xfer.NetRecvEvent] // link deposits (pass), net reads

	events     ctrl.EventSlot[xfer.LinkEvent] // net deposits send requests
	pending    xfer.LinkEvent
	hasPending bool
}

// New creates a link layer instance. self, the llc reference, the shared
// llc<->link RC/recv slots, and the link<->net peer slots are all created
// and wired up front by the node package (spec §4.7).
func New(
	id types.NodeID,
	sc sched.Context,
	self ctrl.Slot,
	l *llc.Llc,
	llcRC *ctrl.RCSlot,
	recvIn *ctrl.EventSlot[xfer.LinkRecvEvent],
	net ctrl.Slot,
	netRC *ctrl.RCSlot,
	netRecv *ctrl.EventSlot[xfer.NetRecvEvent],
) *Link {
	return &Link{
		id:      id,
		self:    self,
		sc:      sc,
		llc:     l,
		llcRC:   llcRC,
		recvIn:  recvIn,
		net:     net,
		netRC:   netRC,
		netRecv: netRecv,
	}
}

// Self is link's control slot.
func (l *Link) Self() ctrl.Slot { return l.self }

// Run starts routine as this link's goroutine.
func (l *Link) Run(routine Routine) {
	go func() {
		<-l.self // initial kick
		routine(l)
	}()
}

// RequestSend deposits a send request from network and hands control to
// link, parking the caller (network) until link yields back (spec §4.6:
// network "deposits a LINK_SEND into the link slot").
func (l *Link) RequestSend(netSelf ctrl.Slot, dst types.NodeID, data []byte, pwr float64, param interface{}) error {
	l.events.Deposit(xfer.LinkEvent{Dst: dst, Data: data, Pwr: pwr, Param: param})
	return ctrl.CtrlAccept(l.self, netSelf)
}

// sendVia packages one LLC send request via the named action and blocks
// for its return code (spec §4.5: "package a link payload ... into an LLC
// event tagged with the corresponding action, deposit it into the LLC
// slot, and yield down; the return code becomes the link caller's
// result").
func (l *Link) sendVia(action xfer.LlcAction, dst types.NodeID, data []byte, pwr float64, param interface{}) error {
	ev := xfer.LlcEvent{Action: action, Dst: dst, Pwr: pwr, Data: data, Param: param}
	if err := l.llc.RequestSend(l.self, ev); err != nil {
		return err
	}
	rc, ok := l.llcRC.Load()
	if !ok {
		return perr.New(perr.Fatal, "link %d: llc did not report a return code", l.id)
	}
	return rc
}

// SendNonblockingNoAck implements spec §4.5's nonblocking, unacknowledged
// send variant.
func (l *Link) SendNonblockingNoAck(dst types.NodeID, data []byte, pwr float64, param interface{}) error {
	return l.sendVia(xfer.LlcSendNonblockingNoAck, dst, data, pwr, param)
}

// SendBlockingNoAck implements spec §4.5's blocking, unacknowledged send.
func (l *Link) SendBlockingNoAck(dst types.NodeID, data []byte, pwr float64, param interface{}) error {
	return l.sendVia(xfer.LlcSendBlockingNoAck, dst, data, pwr, param)
}

// SendNonblockingAck implements spec §4.5's nonblocking, acknowledged send.
func (l *Link) SendNonblockingAck(dst types.NodeID, data []byte, pwr float64, param interface{}) error {
	return l.sendVia(xfer.LlcSendNonblockingAck, dst, data, pwr, param)
}

// SendBlockingAck implements spec §4.5's blocking, acknowledged send.
func (l *Link) SendBlockingAck(dst types.NodeID, data []byte, pwr float64, param interface{}) error {
	return l.sendVia(xfer.LlcSendBlockingAck, dst, data, pwr, param)
}

// Recv repeatedly deposits a PASS request into LLC and yields down, each
// time checking whether a RECV came back up, up to tout ticks (spec §4.5
// recv). If a SEND event appears in link's own slot while recv is pending
// (user code tried to send concurrently), link notifies that would-be
// sender with failure and continues waiting.
func (l *Link) Recv(tout uint64) (src types.NodeID, data []byte, pwr float64, err error) {
	expiry := l.sc.CurrentTick() + tout
	l.sc.Timers().Register(l.id, types.LinkLayer, expiry)
	for {
		if err := l.llc.RequestSend(l.self, xfer.LlcEvent{Action: xfer.LlcPass}); err != nil {
			l.sc.Timers().Cancel(l.id)
			return 0, nil, 0, err
		}
		if l.recvIn.Peek() {
			re, _ := l.recvIn.Take()
			l.sc.Timers().Cancel(l.id)
			return re.Src, re.Data, re.Pwr, nil
		}
		if l.events.Peek() {
			_, _ = l.events.Take()
			l.netRC.Store(perr.New(perr.NoData, "link %d: send attempted while recv was pending", l.id))
			if werr := ctrl.CtrlAccept(l.net, l.self); werr != nil {
				l.sc.Timers().Cancel(l.id)
				return 0, nil, 0, werr
			}
		}
		if l.sc.CurrentTick() >= expiry {
			l.sc.Timers().Cancel(l.id)
			return 0, nil, 0, perr.New(perr.Timeout, "link %d: recv timed out", l.id)
		}
		if werr := sched.WaitFor(l.sc, l.self, func() bool {
			return l.sc.CurrentTick() >= expiry
		}); werr != nil {
			l.sc.Timers().Cancel(l.id)
			return 0, nil, 0, werr
		}
	}
}

// WaitForEvent blocks until a send request from network is pending, then
// consumes it and reports its action (mirrors mac.WaitForEvent).
func (l *Link) WaitForEvent() (xfer.LinkAction, error) {
	if err := sched.WaitFor(l.sc, l.self, l.events.Peek); err != nil {
		return 0, err
	}
	ev, _ := l.events.Take()
	l.pending = ev
	l.hasPending = true
	return ev.Action, nil
}

// Accept extracts the pending send request's fields (spec §4.3/§4.5
// accept, link flavor). Tracked via a dedicated hasPending flag, the same
// way mac.Mac.Accept tracks its pending action, rather than inferring
// "no pending send" from zero-valued fields: node id 0 is a legitimate
// destination (spec §6: ids are assigned starting at 0) and a nil/empty
// payload is a legitimate send, so neither can double as a sentinel.
func (l *Link) Accept() (dst types.NodeID, data []byte, pwr float64, param interface{}, err error) {
	if !l.hasPending {
		return 0, nil, 0, nil, perr.New(perr.InvalidArgument, "link %d: accept without a pending send", l.id)
	}
	return l.pending.Dst, l.pending.Data, l.pending.Pwr, l.pending.Param, nil
}

// Pass deposits a NET_RECV event into network's slot and yields up (spec
// §4.5: pass mirrors mac's with link semantics).
func (l *Link) Pass(src types.NodeID, data []byte) error {
	l.netRecv.Deposit(xfer.NetRecvEvent{Src: src, Data: data})
	return ctrl.CtrlAccept(l.net, l.self)
}

// Sleep registers a timer for tout ticks and yields to the scheduler until
// it fires.
func (l *Link) Sleep(tout uint64) error {
	expiry := l.sc.CurrentTick() + tout
	l.sc.Timers().Register(l.id, types.LinkLayer, expiry)
	err := sched.WaitFor(l.sc, l.self, func() bool { return l.sc.CurrentTick() >= expiry })
	l.sc.Timers().Cancel(l.id)
	return err
}

// NotifySender writes the link->net return-code slot and yields up (spec
// §4.5 notify_sender).
func (l *Link) NotifySender(rc error) error {
	l.netRC.Store(rc)
	return ctrl.CtrlAccept(l.net, l.self)
}

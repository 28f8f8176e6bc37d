// Package llc implements the LLC sublayer (spec §4.4): sequencing,
// ack/retry, and the rx/tx queues. Unlike mac/link/network, LLC has no
// user-supplied routine — its outer loop is entirely internal, dispatched
// on the event its slot holds, exactly as spec §4.4 describes it.
package llc

import (
	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/logger"
	"github.com/pdsns/sim/mac"
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/prng"
	"github.com/pdsns/sim/sched"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

// AckTimeout is the default tick budget spec §4.4 gives an acknowledged
// send to see its matching ACK before reporting Timeout. A scenario may
// override it per run (SPEC_FULL.md §6).
const AckTimeout uint64 = 100

// DefaultRxQueueDepth is the rx queue cap decided in SPEC_FULL.md §10 for
// the Open Question spec §9 raises about unbounded re-queueing.
const DefaultRxQueueDepth = 64

// Neighbors resolves the per-neighbor received power LLC needs to
// address a synthesized ACK frame back to its sender.
type Neighbors interface {
	Power(dst types.NodeID) (float64, bool)
}

// Llc is one node's LLC layer instance.
type Llc struct {
	id   types.NodeID
	self ctrl.Slot
	sc   sched.Context

	mac   *mac.Mac
	macRC *ctrl.RCSlot // mac writes (notify_sender), llc reads

	neighbors Neighbors

	link       ctrl.Slot
	linkRC     *ctrl.RCSlot                       // llc writes, link reads
	linkRecvIn *ctrl.EventSlot[xfer.LinkRecvEvent] // llc deposits (PASS reply), link reads
	events     *ctrl.EventSlot[xfer.LlcEvent]      // link deposits (send/pass requests)
	recvIn     *ctrl.EventSlot[xfer.LlcRecvEvent]  // mac deposits (Pass), llc reads

	rx         []payload.LlcPayload
	rxCap      int
	ackTimeout uint64
}

// New creates an LLC layer instance. self, the mac/llc event & rc slots,
// and the llc/link event & rc slots are all created up front by the node
// package and wired in (spec §4.7).
func New(
	id types.NodeID,
	sc sched.Context,
	self ctrl.Slot,
	m *mac.Mac,
	macRC *ctrl.RCSlot,
	recvIn *ctrl.EventSlot[xfer.LlcRecvEvent],
	neighbors Neighbors,
	link ctrl.Slot,
	linkRC *ctrl.RCSlot,
	linkRecvIn *ctrl.EventSlot[xfer.LinkRecvEvent],
	events *ctrl.EventSlot[xfer.LlcEvent],
	rxCap int,
	ackTimeout uint64,
) *Llc {
	if rxCap <= 0 {
		rxCap = DefaultRxQueueDepth
	}
	if ackTimeout == 0 {
		ackTimeout = AckTimeout
	}
	return &Llc{
		id:         id,
		self:       self,
		sc:         sc,
		mac:        m,
		macRC:      macRC,
		recvIn:     recvIn,
		neighbors:  neighbors,
		link:       link,
		linkRC:     linkRC,
		linkRecvIn: linkRecvIn,
		events:     events,
		rxCap:      rxCap,
		ackTimeout: ackTimeout,
	}
}

// Self is LLC's control slot.
func (l *Llc) Self() ctrl.Slot { return l.self }

// Release drops LLC's owned rx queue contents (spec §9's Open Question on
// leak-on-shutdown). Called once by node.Node.Release when a simulation is
// closed.
func (l *Llc) Release() {
	l.rx = nil
}

// RequestSend deposits a send/pass request from link and hands control to
// LLC, parking the caller (link) until LLC yields back.
func (l *Llc) RequestSend(linkSelf ctrl.Slot, ev xfer.LlcEvent) error {
	l.events.Deposit(ev)
	return ctrl.CtrlAccept(l.self, linkSelf)
}

// Run starts LLC's internal outer loop as a goroutine (spec §4.4: "Its
// outer loop switches on its event slot").
func (l *Llc) Run() {
	go func() {
		<-l.self // initial kick
		for !l.sc.Terminated() {
			if err := l.step(); err != nil {
				return
			}
		}
	}()
}

type inbound struct {
	isRecv bool
	recv   xfer.LlcRecvEvent
	link   xfer.LlcEvent
}

func (l *Llc) next() (inbound, error) {
	if err := sched.WaitFor(l.sc, l.self, func() bool {
		return l.recvIn.Peek() || l.events.Peek()
	}); err != nil {
		return inbound{}, err
	}
	if l.recvIn.Peek() {
		re, _ := l.recvIn.Take()
		return inbound{isRecv: true, recv: re}, nil
	}
	le, _ := l.events.Take()
	return inbound{link: le}, nil
}

func (l *Llc) step() error {
	in, err := l.next()
	if err != nil {
		return err
	}
	if in.isRecv {
		l.handleRecv(in.recv.Frame)
		return nil
	}
	switch in.link.Action {
	case xfer.LlcSendNonblockingNoAck:
		frame := l.buildFrame(in.link, 0, 0)
		rc := l.sendDown(frame, in.link.Pwr, in.link.Param)
		l.reportToLink(rc)
	case xfer.LlcSendBlockingNoAck:
		frame := l.buildFrame(in.link, 0, 0)
		rc := l.sendRetrying(frame, in.link.Pwr, in.link.Param)
		l.reportToLink(rc)
	case xfer.LlcSendNonblockingAck:
		l.handleSendAck(in.link, false)
	case xfer.LlcSendBlockingAck:
		l.handleSendAck(in.link, true)
	case xfer.LlcPass:
		l.handlePass()
	default:
		return perr.New(perr.InvalidArgument, "llc %d: unknown link action %v", l.id, in.link.Action)
	}
	return nil
}

// handleRecv implements spec §4.4's RECV bullet: a frame arrived from
// mac. Drop if misaddressed (invariant 5), else enqueue and, if it is a
// data frame requesting an ack, synthesize and send one immediately.
func (l *Llc) handleRecv(mp payload.MacPayload) {
	l.ingest(mp)
	_ = ctrl.CtrlAccept(l.link, l.self)
}

// ingest enqueues an inbound frame (if addressed to this node) and
// triggers an ack reply for data frames, without yielding up — used both
// by handleRecv (which then yields) and by the ack-wait/blocking-send
// loops below (which keep running).
func (l *Llc) ingest(mp payload.MacPayload) {
	frame := mp.LlcPayload
	if frame.DstID != l.id {
		return // invariant 5: never delivered to the wrong node
	}
	l.enqueueRx(frame)
	if frame.Seq != 0 {
		l.sendAckFor(frame)
	}
}

func (l *Llc) enqueueRx(p payload.LlcPayload) {
	if len(l.rx) >= l.rxCap {
		dropped := l.rx[0]
		l.rx = l.rx[1:]
		_ = perr.New(perr.BadMessage, "llc %d: rx queue overflow, dropping oldest frame", l.id)
		logger.Warnf("llc %d: rx queue overflow (cap %d), dropped frame from %d", l.id, l.rxCap, dropped.SrcID)
	}
	l.rx = append(l.rx, p)
}

// sendAckFor synthesizes and sends an ACK for a received data frame.
// Decision recorded in SPEC_FULL.md §10 for spec §9's Open Question: if
// the sender is not among this node's neighbors, surface NotFound and
// drop the ack rather than retry — a missing neighbor entry is a
// topology fact retrying cannot fix.
func (l *Llc) sendAckFor(frame payload.LlcPayload) {
	pwr, ok := l.neighbors.Power(frame.SrcID)
	if !ok {
		perr.New(perr.NotFound, "llc %d: ack destination %d is not a neighbor", l.id, frame.SrcID)
		return
	}
	ack := payload.LlcPayload{
		LinkPayload: payload.LinkPayload{SrcID: l.id, DstID: frame.SrcID, Pwr: pwr},
		Seq:         0,
		Ack:         frame.Seq,
	}
	_ = l.sendDown(ack, pwr, nil)
}

func (l *Llc) buildFrame(ev xfer.LlcEvent, seq, ack uint16) payload.LlcPayload {
	return payload.LlcPayload{
		LinkPayload: payload.LinkPayload{
			NetPayload: payload.NetPayload{Data: ev.Data},
			SrcID:      l.id,
			DstID:      ev.Dst,
			Pwr:        ev.Pwr,
		},
		Seq: seq,
		Ack: ack,
	}
}

// sendDown makes one send attempt through MAC and returns its result
// (spec §4.4 SEND_NONBLOCKING_NOACK: "attempt one send down to MAC").
func (l *Llc) sendDown(frame payload.LlcPayload, pwr float64, param interface{}) error {
	if err := l.mac.RequestSend(l.self, frame, pwr, param); err != nil {
		return err
	}
	rc, ok := l.macRC.Load()
	if !ok {
		return perr.New(perr.Fatal, "llc %d: mac did not notify_sender after a send request", l.id)
	}
	return rc
}

// sendRetrying retries a send until it succeeds, interleaving inbound
// RECV processing while it waits (spec §4.4 SEND_BLOCKING_NOACK).
func (l *Llc) sendRetrying(frame payload.LlcPayload, pwr float64, param interface{}) error {
	for {
		if l.recvIn.Peek() {
			re, _ := l.recvIn.Take()
			l.ingest(re.Frame)
		}
		rc := l.sendDown(frame, pwr, param)
		if rc == nil {
			return nil
		}
		if err := l.sleepTicks(1); err != nil {
			return err
		}
	}
}

func (l *Llc) sleepTicks(n uint64) error {
	expiry := l.sc.CurrentTick() + n
	l.sc.Timers().Register(l.id, types.LlcLayer, expiry)
	err := sched.WaitFor(l.sc, l.self, func() bool { return l.sc.CurrentTick() >= expiry })
	l.sc.Timers().Cancel(l.id)
	return err
}

// handleSendAck implements spec §4.4's SEND_NONBLOCKING_ACK /
// SEND_BLOCKING_ACK bullet.
func (l *Llc) handleSendAck(ev xfer.LlcEvent, blocking bool) {
	s := prng.NewLlcSequence()
	frame := l.buildFrame(ev, s, 0)

	var rc error
	if blocking {
		rc = l.sendRetrying(frame, ev.Pwr, ev.Param)
	} else {
		rc = l.sendDown(frame, ev.Pwr, ev.Param)
	}
	if rc != nil {
		l.reportToLink(rc)
		return
	}
	l.reportToLink(l.waitForAck(s))
}

// waitForAck blocks up to the configured ack timeout (AckTimeout unless
// overridden) for a matching ACK frame,
// enqueueing any non-matching inbound frame it observes meanwhile (spec
// invariant 4).
func (l *Llc) waitForAck(s uint16) error {
	expiry := l.sc.CurrentTick() + l.ackTimeout
	l.sc.Timers().Register(l.id, types.LlcLayer, expiry)
	for {
		err := sched.WaitFor(l.sc, l.self, func() bool {
			return l.recvIn.Peek() || l.sc.CurrentTick() >= expiry
		})
		if err != nil {
			return err
		}
		if !l.recvIn.Peek() {
			return perr.New(perr.Timeout, "llc %d: ack timeout waiting for seq %d", l.id, s)
		}
		re, _ := l.recvIn.Take()
		frame := re.Frame.LlcPayload
		if frame.DstID == l.id && frame.Seq == 0 && frame.Ack == s {
			l.sc.Timers().Cancel(l.id)
			return nil
		}
		l.ingest(re.Frame)
	}
}

// handlePass implements spec §4.4's PASS bullet: link wants one rx
// frame. Block cooperatively until rx is non-empty, processing inbound
// RECVs inline; abandon (deliver nothing) if a new send request arrives
// on the event slot while waiting.
func (l *Llc) handlePass() {
	for len(l.rx) == 0 {
		err := sched.WaitFor(l.sc, l.self, func() bool {
			return l.recvIn.Peek() || l.events.Peek() || len(l.rx) > 0
		})
		if err != nil {
			return
		}
		if len(l.rx) > 0 {
			break
		}
		if l.recvIn.Peek() {
			re, _ := l.recvIn.Take()
			l.ingest(re.Frame)
			continue
		}
		if l.events.Peek() {
			return // abandoned: link's caller will see no data
		}
	}
	frame := l.rx[0]
	l.rx = l.rx[1:]
	l.linkRecvIn.Deposit(xfer.LinkRecvEvent{Src: frame.SrcID, Dst: frame.DstID, Pwr: frame.Pwr, Data: frame.Data})
	_ = ctrl.CtrlAccept(l.link, l.self)
}

func (l *Llc) reportToLink(rc error) {
	l.linkRC.Store(rc)
	_ = ctrl.CtrlAccept(l.link, l.self)
}

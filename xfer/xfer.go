// Package xfer defines the event vocabularies exchanged across adjacent
// layer edges (spec §3 "Event slot"): mac<->llc, llc<->link, link<->net.
// Each edge is bidirectional (a lower layer reports receptions upward,
// an upper layer requests sends downward), so the types live in one
// shared, dependency-free package rather than in the layers themselves —
// otherwise mac and llc would need to import each other, and so on up
// the stack.
package xfer

import (
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/types"
)

// MacAction tags an event deposited into a MAC layer's event slot.
type MacAction int

const (
	// MacSend is deposited by LLC: "please transmit this frame" (spec
	// §4.3: "accept ... extracts a pending SEND deposited from LLC").
	MacSend MacAction = iota
	// MacRecv is deposited by the radio-delivery path after a
	// STOP_RECEIVING fan-out produces a frame for this node.
	MacRecv
)

// MacEvent is the payload of one MAC-layer event slot entry.
type MacEvent struct {
	Action MacAction
	Frame  payload.LlcPayload // valid for MacSend
	Pwr    float64            // valid for MacSend
	Param  interface{}        // valid for MacSend
	Recv   payload.MacPayload // valid for MacRecv
}

// LlcAction tags an event deposited into LLC's event slot, either by the
// link layer (a send request or a PASS request) or by the mac layer (a
// RECV notification, carried separately — see LlcRecvEvent).
type LlcAction int

const (
	LlcSendNonblockingNoAck LlcAction = iota
	LlcSendBlockingNoAck
	LlcSendNonblockingAck
	LlcSendBlockingAck
	// LlcPass is deposited by link: "hand me one rx frame" (spec §4.4 PASS).
	LlcPass
)

// LlcEvent is a send/pass request deposited into LLC by the link layer.
type LlcEvent struct {
	Action LlcAction
	Dst    types.NodeID
	Pwr    float64
	Param  interface{}
	Data   []byte
}

// LlcRecvEvent is deposited into LLC by MAC's Pass, carrying a frame that
// arrived off the radio (spec §4.4 RECV).
type LlcRecvEvent struct {
	Frame payload.MacPayload
}

// LinkAction tags a send request deposited into the link layer's event
// slot by the network layer.
type LinkAction int

const (
	LinkSendBlockingNoAck LinkAction = iota
	LinkSendNonblockingNoAck
	LinkSendBlockingAck
	LinkSendNonblockingAck
)

// LinkEvent is a send request deposited into link by the network layer.
type LinkEvent struct {
	Action LinkAction
	Dst    types.NodeID
	Pwr    float64
	Param  interface{}
	Data   []byte
}

// LinkRecvEvent is deposited into link by LLC, delivering one rx frame
// (spec §4.4 PASS's reply, consumed by link.Recv's polling loop).
type LinkRecvEvent struct {
	Src  types.NodeID
	Dst  types.NodeID
	Pwr  float64
	Data []byte
}

// NetRecvEvent is deposited into network by link, delivering application
// payload bytes (spec §4.6: "net_recv ... blocks ... until ... NET_RECV").
type NetRecvEvent struct {
	Src  types.NodeID
	Data []byte
}

// Package payload implements the simulator's stack-shaped frame payload
// (spec §3: "Frame payloads (nested one-of, stack-shaped)"). Each layer's
// payload embeds the one below it and adds exactly the header fields that
// layer contributes, so a send walks downward by wrapping and a receive
// walks upward by unwrapping — with no per-layer heap allocation or byte
// (de)serialization, per design note §9 ("a single tagged variant per
// tick owned by whichever layer currently holds it").
package payload

import "github.com/pdsns/sim/types"

// NetPayload is the opaque application byte region handed to the network
// layer's send/recv API. It carries no header fields of its own — the
// network layer is the stack's top.
type NetPayload struct {
	Data []byte
}

// LinkPayload is a NetPayload plus the addressing and power a send
// requires (spec §3: "adds src/dst ids and tx power").
type LinkPayload struct {
	NetPayload
	SrcID types.NodeID
	DstID types.NodeID
	Pwr   float64
}

// LlcPayload is a LinkPayload plus the sequencing fields LLC owns (spec
// §3: "adds seq/ack 16-bit fields"). Seq == 0 marks an ACK frame; Ack
// echoes the sequence number it acknowledges.
type LlcPayload struct {
	LinkPayload
	Seq uint16
	Ack uint16
}

// MacPayload is an LlcPayload plus the power at which it was actually
// received (spec §3: "adds received power"), filled in by the radio layer
// on the upward path.
type MacPayload struct {
	LlcPayload
	RxPwr float64
}

// RadioPayload is a MacPayload plus the taint flag the radio state
// machine maintains while a reception is in progress (spec §3: "adds a
// tainted boolean, initially false"). Tainted is monotone: once set, a
// reception never un-taints.
type RadioPayload struct {
	MacPayload
	Tainted bool
}

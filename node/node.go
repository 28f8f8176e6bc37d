// Package node implements spec §4.7: a node composes one radio, MAC, LLC,
// link and network instance, wires each layer's control slots to its
// neighbors, and spawns one goroutine per layer task (radio excepted — see
// DESIGN.md for why radio has no goroutine of its own).
package node

import (
	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/hook"
	"github.com/pdsns/sim/link"
	"github.com/pdsns/sim/llc"
	"github.com/pdsns/sim/mac"
	"github.com/pdsns/sim/network"
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/radio"
	"github.com/pdsns/sim/sched"
	"github.com/pdsns/sim/timer"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

// Driver is what a node needs from the simulation to build each layer's
// sched.Context: the shared clock, termination predicate, control slot to
// yield to when idle, and timer index. Defined here (rather than
// importing package sim) so sim can depend on node without a cycle.
type Driver interface {
	CurrentTick() uint64
	Terminated() bool
	ControlSlot() ctrl.Slot
	Timers() *timer.Manager
}

// neighborTable implements llc.Neighbors over a node's frozen, startup-time
// neighbor/received-power arrays (spec §4.7, §6: "the result is frozen for
// the run").
type neighborTable struct {
	ids   []types.NodeID
	power map[types.NodeID]float64
}

func (nt *neighborTable) Power(dst types.NodeID) (float64, bool) {
	p, ok := nt.power[dst]
	return p, ok
}

// Neighbors returns the node's frozen neighbor ids (for diagnostics/tests).
func (nt *neighborTable) Neighbors() []types.NodeID { return nt.ids }

// Config bundles a node's static properties (spec §3's Node data model)
// and its three user-supplied routine bodies (spec §6).
type Config struct {
	ID          types.NodeID
	Pos         types.Pos
	Sensitivity float64
	MaxPower    float64
	TxDuration  uint64 // ticks a START_TX's transmission record occupies the medium
	RxQueueCap  int    // 0 selects llc.DefaultRxQueueDepth
	AckTimeout  uint64 // 0 selects llc.AckTimeout

	Mac  mac.Routine
	Link link.Routine
	Net  network.Routine
}

// Node is one simulated node's complete five-layer stack.
type Node struct {
	id  types.NodeID
	pos types.Pos

	radio   *radio.Radio
	mac     *mac.Mac
	llc     *llc.Llc
	link    *link.Link
	network *network.Network

	macSelf  ctrl.Slot
	llcSelf  ctrl.Slot
	linkSelf ctrl.Slot
	netSelf  ctrl.Slot
}

type nodeCtx struct {
	id types.NodeID
	d  Driver
}

func (c *nodeCtx) NodeID() types.NodeID    { return c.id }
func (c *nodeCtx) CurrentTick() uint64     { return c.d.CurrentTick() }
func (c *nodeCtx) Terminated() bool        { return c.d.Terminated() }
func (c *nodeCtx) Driver() ctrl.Slot       { return c.d.ControlSlot() }
func (c *nodeCtx) Timers() *timer.Manager { return c.d.Timers() }

var _ sched.Context = (*nodeCtx)(nil)

// New builds one node's full layer stack and wires every inter-layer
// control slot (spec §4.7). neighbors is the frozen result of the
// user-supplied neighbor predicate, invoked once by the simulation driver
// before New is called. radioSched is the scheduler-facing interface the
// radio layer needs for its START_TX handshake (spec §4.2).
func New(cfg Config, d Driver, propagate hook.Propagation, radioSched radio.Scheduler, neighborIDs []types.NodeID, neighborPowers map[types.NodeID]float64) *Node {
	sc := &nodeCtx{id: cfg.ID, d: d}

	n := &Node{
		id:       cfg.ID,
		pos:      cfg.Pos,
		macSelf:  ctrl.NewSlot(),
		llcSelf:  ctrl.NewSlot(),
		linkSelf: ctrl.NewSlot(),
		netSelf:  ctrl.NewSlot(),
	}

	n.radio = radio.New(cfg.ID, cfg.Sensitivity, cfg.MaxPower, cfg.TxDuration, propagate, radioSched)
	_ = n.radio.TurnOn() // OFF -> IDLE always succeeds; no routine has any other way to do this before first use

	macToLlcRC := &ctrl.RCSlot{}
	macToLlcRecv := &ctrl.EventSlot[xfer.LlcRecvEvent]{}
	n.mac = mac.New(cfg.ID, n.radio, sc, n.macSelf, n.llcSelf, macToLlcRC, macToLlcRecv)

	llcToLinkRC := &ctrl.RCSlot{}
	llcToLinkRecv := &ctrl.EventSlot[xfer.LinkRecvEvent]{}
	llcEvents := &ctrl.EventSlot[xfer.LlcEvent]{}
	nt := &neighborTable{ids: neighborIDs, power: neighborPowers}
	n.llc = llc.New(cfg.ID, sc, n.llcSelf, n.mac, macToLlcRC, macToLlcRecv, nt, n.linkSelf, llcToLinkRC, llcToLinkRecv, llcEvents, cfg.RxQueueCap, cfg.AckTimeout)

	linkToNetRC := &ctrl.RCSlot{}
	linkToNetRecv := &ctrl.EventSlot[xfer.NetRecvEvent]{}
	n.link = link.New(cfg.ID, sc, n.linkSelf, n.llc, llcToLinkRC, llcToLinkRecv, n.netSelf, linkToNetRC, linkToNetRecv)

	n.network = network.New(cfg.ID, sc, n.netSelf, n.link, linkToNetRC, linkToNetRecv)

	n.mac.Run(cfg.Mac)
	n.llc.Run()
	n.link.Run(cfg.Link)
	n.network.Run(cfg.Net)

	return n
}

// NodeID reports the node's identity.
func (n *Node) NodeID() types.NodeID { return n.id }

// Pos reports the node's static position.
func (n *Node) Pos() types.Pos { return n.pos }

// Radio exposes the node's radio layer, driven directly by the simulation
// (transmission fan-out) and by MAC's send path.
func (n *Node) Radio() *radio.Radio { return n.radio }

// Mac exposes the node's MAC layer, used by the driver to hand off a
// completed reception (spec §4.2: radio yields "to the MAC task").
func (n *Node) Mac() *mac.Mac { return n.mac }

// SelfFor returns the control slot of the goroutine hosting layer — used
// by the driver to directly wake the one task a fired timer names (spec
// §4.1 step 2) and by Start to perform each layer's one-time initial
// kick (spec §4.7).
func (n *Node) SelfFor(layer types.LayerID) ctrl.Slot {
	switch layer {
	case types.MacLayer:
		return n.macSelf
	case types.LlcLayer:
		return n.llcSelf
	case types.LinkLayer:
		return n.linkSelf
	case types.NetLayer:
		return n.netSelf
	default:
		return nil
	}
}

// Start performs every layer's one-time initial entry (spec §4.7: "each
// task is entered once at startup"), innermost layer first. Kicking mac
// before llc before link before net matters: each inner layer's routine
// runs just enough to reach its own first blocking wait and yield back
// to the driver, so by the time an outer layer's routine makes its first
// downward call (say, a receive-only net routine whose link routine
// polls llc.Pass right away), the layer below is already parked on its
// own control slot ready to receive it. Without this, a node built
// entirely around receiving — never itself initiating a send — would
// never enter its link/llc/mac goroutines at all, resolving §9's Open
// Question on initial net-layer entry into something that also holds
// for the layers below it.
func (n *Node) Start(driverSelf ctrl.Slot) error {
	for _, self := range []ctrl.Slot{n.macSelf, n.llcSelf, n.linkSelf, n.netSelf} {
		if err := ctrl.CtrlAccept(self, driverSelf); err != nil {
			return perr.Wrap(perr.Fatal, err, "node %d: initial kick failed", n.id)
		}
	}
	return nil
}

// Release drops this node's owned in-flight payloads — the radio's current
// reception snapshot and the LLC's rx queue — so nothing outlives a
// simulation once it is closed (spec §9's Open Question on
// leak-on-shutdown). Called once per node by Simulation.Close.
func (n *Node) Release() {
	n.radio.Release()
	n.llc.Release()
}

// InjectFrame sends a raw frame directly through this node's MAC/radio,
// bypassing LLC/link/net routine logic entirely. Used by interactive
// tooling (the CLI's `send` command) to drive one-shot traffic: the
// cooperative scheduler has no safe way to reach into a running user
// routine's own goroutine from outside it, so this goes straight to the
// lowest layer that has no goroutine of its own.
func (n *Node) InjectFrame(dst types.NodeID, data []byte, pwr float64) error {
	frame := payload.LlcPayload{
		LinkPayload: payload.LinkPayload{
			NetPayload: payload.NetPayload{Data: data},
			SrcID:      n.id,
			DstID:      dst,
			Pwr:        pwr,
		},
	}
	return n.mac.Send(frame, pwr, nil)
}

// WakeTimer directly wakes the single task named by a fired timer entry
// and waits for it to yield back (spec §4.1 step 2).
func (n *Node) WakeTimer(layer types.LayerID, driverSelf ctrl.Slot) error {
	target := n.SelfFor(layer)
	if target == nil {
		return perr.New(perr.Fatal, "node %d: timer fired for unknown layer %v", n.id, layer)
	}
	return ctrl.CtrlAccept(target, driverSelf)
}

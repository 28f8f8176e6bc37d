// This file supplies the default propagation/neighbor predicates and
// routine bundle the pdsns binary loads with — the external collaborators
// spec §1 leaves out of scope. A real deployment swaps these for its own
// RF model and application logic; these exist only so `pdsns` has
// something runnable out of the box.
package main

import (
	"sync"

	"github.com/pdsns/sim/cli"
	"github.com/pdsns/sim/link"
	"github.com/pdsns/sim/llc"
	"github.com/pdsns/sim/mac"
	"github.com/pdsns/sim/network"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/topo"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

var (
	topoMu    sync.Mutex
	positions = map[types.NodeID]types.Pos{}
	maxPowers = map[types.NodeID]float64{}
	allNodes  []types.NodeID
)

func onLoad(specs []topo.NodeSpec) {
	topoMu.Lock()
	defer topoMu.Unlock()
	positions = make(map[types.NodeID]types.Pos, len(specs))
	maxPowers = make(map[types.NodeID]float64, len(specs))
	allNodes = allNodes[:0]
	for _, s := range specs {
		positions[s.ID] = s.Pos
		maxPowers[s.ID] = s.MaxPower
		allNodes = append(allNodes, s.ID)
	}
}

// receivedPower implements a simple inverse-square free-space falloff
// from src's maximum power, scaled by distance between the two nodes.
func receivedPower(src, dst types.NodeID) float64 {
	sp := positions[src]
	dp := positions[dst]
	dx := float64(sp.X - dp.X)
	dy := float64(sp.Y - dp.Y)
	distSq := dx*dx + dy*dy
	return maxPowers[src] / (1.0 + distSq)
}

// examplePropagation treats every node other than the source as a
// potential destination, each seeing the free-space-falloff power from
// the source (spec §6's propagation predicate contract).
func examplePropagation(srcID, dstID types.NodeID, param interface{}) (srcs []types.NodeID, srcPowers map[types.NodeID]float64, dsts []types.NodeID, dstPowers map[types.NodeID]float64, err error) {
	topoMu.Lock()
	defer topoMu.Unlock()
	srcs = []types.NodeID{srcID}
	srcPowers = map[types.NodeID]float64{srcID: maxPowers[srcID]}
	dsts = make([]types.NodeID, 0, len(allNodes))
	dstPowers = make(map[types.NodeID]float64, len(allNodes))
	for _, n := range allNodes {
		if n == srcID {
			continue
		}
		dsts = append(dsts, n)
		dstPowers[n] = receivedPower(srcID, n)
	}
	return srcs, srcPowers, dsts, dstPowers, nil
}

// exampleNeighbors reports every other loaded node as a neighbor, with
// the same free-space-falloff power the propagation predicate computes
// (spec §6's neighbor predicate contract).
func exampleNeighbors(node types.NodeID) (neighbors []types.NodeID, powers map[types.NodeID]float64, err error) {
	topoMu.Lock()
	defer topoMu.Unlock()
	neighbors = make([]types.NodeID, 0, len(allNodes))
	powers = make(map[types.NodeID]float64, len(allNodes))
	for _, n := range allNodes {
		if n == node {
			continue
		}
		neighbors = append(neighbors, n)
		powers[n] = receivedPower(node, n)
	}
	return neighbors, powers, nil
}

// helloMac is a minimal MAC routine: wait for a SEND request from LLC,
// pass it straight to radio, and otherwise pass received frames up.
func helloMac(m *mac.Mac) {
	for {
		action, err := m.WaitForEvent()
		if err != nil {
			return
		}
		switch action {
		case xfer.MacSend:
			frame, pwr, param, err := m.Accept()
			if err != nil {
				continue
			}
			_ = m.NotifySender(m.Send(frame, pwr, param))
		case xfer.MacRecv:
			p, err := m.AcceptRecv()
			if err == nil {
				_ = m.Pass(p)
			}
		}
	}
}

// helloSenderLink forwards each outbound send request from net straight
// down via the matching LLC send variant. It never needs to service
// inbound data, since this node's net routine only ever sends.
func helloSenderLink(l *link.Link) {
	for {
		action, err := l.WaitForEvent()
		if err != nil {
			return
		}
		dst, data, pwr, param, err := l.Accept()
		if err != nil {
			continue
		}
		var rc error
		switch action {
		case xfer.LinkSendNonblockingNoAck:
			rc = l.SendNonblockingNoAck(dst, data, pwr, param)
		case xfer.LinkSendBlockingAck:
			rc = l.SendBlockingAck(dst, data, pwr, param)
		case xfer.LinkSendNonblockingAck:
			rc = l.SendNonblockingAck(dst, data, pwr, param)
		default:
			rc = l.SendBlockingNoAck(dst, data, pwr, param)
		}
		_ = l.NotifySender(rc)
	}
}

// helloReceiverLink repeatedly polls LLC for one inbound frame and
// forwards it up to net, retrying past its own timeouts. It never needs
// to service outbound send requests, since this node's net routine only
// ever receives.
func helloReceiverLink(l *link.Link) {
	for {
		src, data, _, err := l.Recv(llc.AckTimeout)
		if err != nil {
			if kind, ok := perr.KindOf(err); ok && kind == perr.Timeout {
				continue
			}
			return
		}
		if err := l.Pass(src, data); err != nil {
			return
		}
	}
}

// helloSender is the net routine for scenario A's sender node: it
// repeats one send followed by an idle period for the life of the run.
// It must keep looping rather than return after one round: every layer
// task's blocking call only yields back to the driver from inside the
// loop, and a routine that returns mid-run (instead of on a propagated
// termination error) would leave the driver's next hand-off to this
// node with no one left to receive it.
func helloSender(n *network.Network) {
	for {
		if err := n.Send(1, []byte("Hello World"), nil); err != nil {
			return
		}
		if err := n.Sleep(8); err != nil {
			return
		}
	}
}

// helloReceiver is the net routine for scenario A's receiver node: it
// waits for messages for the life of the run (see helloSender for why
// this can't just receive once and return).
func helloReceiver(n *network.Network) {
	for {
		if _, _, err := n.Recv(); err != nil {
			return
		}
	}
}

func routineBundles() map[string]cli.RoutineBundle {
	return map[string]cli.RoutineBundle{
		"hello-sender":   {Mac: helloMac, Link: helloSenderLink, Net: helloSender},
		"hello-receiver": {Mac: helloMac, Link: helloReceiverLink, Net: helloReceiver},
	}
}

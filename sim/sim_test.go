package sim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdsns/sim/link"
	"github.com/pdsns/sim/llc"
	"github.com/pdsns/sim/mac"
	"github.com/pdsns/sim/network"
	"github.com/pdsns/sim/node"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/types"
	"github.com/pdsns/sim/xfer"
)

// The fixtures below reproduce spec §8's end-to-end scenarios: a flat,
// two-node (or three-node) topology with a free-space falloff propagation
// model shared by every test, differing only in the per-test sensitivity,
// neighbor table, and node routines each scenario calls for.

type fixture struct {
	mu        sync.Mutex
	pos       map[types.NodeID]types.Pos
	maxPower  map[types.NodeID]float64
	neighbors map[types.NodeID]map[types.NodeID]float64 // nil entry = no neighbor relation
}

func newFixture() *fixture {
	return &fixture{
		pos:       map[types.NodeID]types.Pos{},
		maxPower:  map[types.NodeID]float64{},
		neighbors: map[types.NodeID]map[types.NodeID]float64{},
	}
}

func (f *fixture) addNode(id types.NodeID, x, y int64, maxPower float64) {
	f.pos[id] = types.Pos{X: x, Y: y}
	f.maxPower[id] = maxPower
	if f.neighbors[id] == nil {
		f.neighbors[id] = map[types.NodeID]float64{}
	}
}

// link connects src -> dst with the free-space falloff power from src's
// max power and distance, recorded as a one-way neighbor entry (tests
// that need node 1 unaware of node 0 simply omit that direction).
func (f *fixture) link(src, dst types.NodeID) {
	sp, dp := f.pos[src], f.pos[dst]
	dx := float64(sp.X - dp.X)
	dy := float64(sp.Y - dp.Y)
	distSq := dx*dx + dy*dy
	pwr := f.maxPower[src] / (1.0 + distSq)
	f.neighbors[src][dst] = pwr
}

func (f *fixture) propagation(src, dst types.NodeID, param interface{}) ([]types.NodeID, map[types.NodeID]float64, []types.NodeID, map[types.NodeID]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dsts := make([]types.NodeID, 0, 1)
	dstPowers := make(map[types.NodeID]float64, 1)
	if pwr, ok := f.neighbors[src][dst]; ok {
		dsts = append(dsts, dst)
		dstPowers[dst] = pwr
	}
	return []types.NodeID{src}, map[types.NodeID]float64{src: f.maxPower[src]}, dsts, dstPowers, nil
}

func (f *fixture) neighborFunc(id types.NodeID) ([]types.NodeID, map[types.NodeID]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nbrs := f.neighbors[id]
	ids := make([]types.NodeID, 0, len(nbrs))
	powers := make(map[types.NodeID]float64, len(nbrs))
	for n, p := range nbrs {
		ids = append(ids, n)
		powers[n] = p
	}
	return ids, powers, nil
}

// passthroughMac forwards every LLC send straight to the radio and every
// radio receive straight up to LLC — the minimal MAC routine every
// scenario below needs, since none of them exercise MAC-level framing
// decisions of their own.
func passthroughMac(m *mac.Mac) {
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

// senderLink forwards each net send request down through the matching
// LLC variant; it never needs to service an inbound frame since this
// node's net routine only ever sends.
func senderLink(l *link.Link) {
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
		case xfer.LinkSendNonblockingAck:
			rc = l.SendNonblockingAck(dst, data, pwr, param)
		case xfer.LinkSendBlockingAck:
			rc = l.SendBlockingAck(dst, data, pwr, param)
		default:
			rc = l.SendBlockingNoAck(dst, data, pwr, param)
		}
		_ = l.NotifySender(rc)
	}
}

// receiverLink polls LLC for one inbound frame at a time, retrying past
// its own recv timeouts, and forwards each to net.
func receiverLink(l *link.Link) {
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

// sendVariantLink returns a link routine that forwards every net send
// request through one fixed link send variant. Network.Send leaves the
// variant to the link routine, so a scenario that needs a particular one
// plugs this in instead of senderLink.
func sendVariantLink(send func(l *link.Link, dst types.NodeID, data []byte, pwr float64, param interface{}) error) link.Routine {
	return func(l *link.Link) {
		for {
			if _, err := l.WaitForEvent(); err != nil {
				return
			}
			dst, data, pwr, param, err := l.Accept()
			if err != nil {
				continue
			}
			_ = l.NotifySender(send(l, dst, data, pwr, param))
		}
	}
}

func nodeConfig(id types.NodeID, x, y int64, sensitivity, maxPower float64, macR mac.Routine, linkR link.Routine, netR network.Routine) node.Config {
	return node.Config{
		ID:          id,
		Pos:         types.Pos{X: x, Y: y},
		Sensitivity: sensitivity,
		MaxPower:    maxPower,
		TxDuration:  1,
		Mac:         macR,
		Link:        linkR,
		Net:         netR,
	}
}

// Scenario A (spec §8): two-node hello. Node 0 sends "Hello World" to
// node 1 via net.Send; node 1 recv's it. Both sensitivities are low
// enough that the frame is delivered.
func TestScenarioA_TwoNodeHello(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)
	f.addNode(1, 1, 0, 1.0)
	f.link(0, 1)
	f.link(1, 0)

	var (
		mu       sync.Mutex
		received []byte
		gotAt    uint64
	)

	sentOnce := false
	sender := func(n *network.Network) {
		for !sentOnce {
			sentOnce = true
			_ = n.Send(1, []byte("Hello World"), nil)
		}
		<-make(chan struct{}) // park forever; driver terminates via Stop
	}
	receiver := func(n *network.Network) {
		_, data, err := n.Recv()
		if err == nil {
			mu.Lock()
			received = data
			gotAt = n.CurrentTick()
			mu.Unlock()
		}
		<-make(chan struct{})
	}

	s := New(Config{Duration: 10, Seed: 1, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, senderLink, sender)))
	require.NoError(t, s.AddNode(nodeConfig(1, 1, 0, 0.1, 1.0, passthroughMac, receiverLink, receiver)))

	require.NoError(t, s.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("Hello World"), received)
	assert.GreaterOrEqual(t, gotAt, uint64(2))
}

// Scenario B (spec §8): destination sensitivity above the received power.
// The frame is never delivered, but the sender's nonblocking no-ack send
// still reports success (the medium accepted the frame regardless of
// whether any destination's radio could hear it).
func TestScenarioB_BelowSensitivityNeverDelivered(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)
	f.addNode(1, 1, 0, 1.0)
	f.link(0, 1)
	f.link(1, 0)

	var sendErr error
	var recvCount int
	var mu sync.Mutex

	sender := func(n *network.Network) {
		sendErr = n.Send(1, []byte("ping"), nil)
		<-make(chan struct{})
	}
	receiver := func(n *network.Network) {
		for {
			if _, _, err := n.Recv(); err != nil {
				return
			}
			mu.Lock()
			recvCount++
			mu.Unlock()
		}
	}

	s := New(Config{Duration: 10, Seed: 1, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, sendVariantLink((*link.Link).SendNonblockingNoAck), sender)))
	// sensitivity 2.0 exceeds any power this topology can deliver (max power 1.0).
	require.NoError(t, s.AddNode(nodeConfig(1, 1, 0, 2.0, 1.0, passthroughMac, receiverLink, receiver)))

	require.NoError(t, s.Run())

	assert.NoError(t, sendErr)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, recvCount)
}

// Scenario C (spec §8): ACK timeout. Node 1's neighbor table omits node 0,
// so its synthesized ACK can never reach back (node 1's LLC finds no
// neighbor power for node 0 and drops the ACK unsent). A blocking-ack
// send from node 0 must time out after exactly 100 ticks past the send.
func TestScenarioC_AckTimeout(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)
	f.addNode(1, 1, 0, 1.0)
	f.link(0, 1) // node 0 -> 1 only; node 1 has no route back to 0

	var sendErr error
	var sentAt, failedAt uint64

	sender := func(n *network.Network) {
		sentAt = n.CurrentTick()
		sendErr = n.Send(1, []byte("ack-me"), nil)
		failedAt = n.CurrentTick()
		<-make(chan struct{})
	}
	receiver := func(n *network.Network) {
		for {
			if _, _, err := n.Recv(); err != nil {
				return
			}
		}
	}

	// Network.Send always deposits a bare send request (it leaves the
	// ack/blocking choice to the link routine, per spec §4.5: that choice
	// is the user-supplied link decision logic's job, not the net layer's).
	// This scenario's link routine always treats an outbound request as a
	// blocking, acknowledged send.
	senderLinkAck := func(l *link.Link) {
		for {
			_, err := l.WaitForEvent()
			if err != nil {
				return
			}
			dst, data, pwr, param, err := l.Accept()
			if err != nil {
				continue
			}
			rc := l.SendBlockingAck(dst, data, pwr, param)
			_ = l.NotifySender(rc)
		}
	}

	s := New(Config{Duration: 150, Seed: 1, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, senderLinkAck, sender)))
	require.NoError(t, s.AddNode(nodeConfig(1, 1, 0, 0.1, 1.0, passthroughMac, receiverLink, receiver)))

	require.NoError(t, s.Run())

	require.Error(t, sendErr)
	kind, ok := perr.KindOf(sendErr)
	require.True(t, ok)
	assert.Equal(t, perr.Timeout, kind)
	assert.Equal(t, llc.AckTimeout, failedAt-sentAt)
}

// Scenario E (spec §8): a net routine calling Sleep(5) at tick 1 resumes
// at tick 6 — the inclusive boundary spec §8 calls out.
func TestScenarioE_SleepDeterministicResume(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)

	var resumeTick uint64
	done := make(chan struct{})

	routine := func(n *network.Network) {
		for n.CurrentTick() < 1 {
			if err := n.Sleep(1); err != nil {
				close(done)
				return
			}
		}
		if err := n.Sleep(5); err != nil {
			close(done)
			return
		}
		resumeTick = n.CurrentTick()
		close(done)
		<-make(chan struct{})
	}

	s := New(Config{Duration: 20, Seed: 1, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, senderLink, routine)))

	require.NoError(t, s.Run())

	<-done
	assert.Equal(t, uint64(6), resumeTick)
}

// Scenario D (spec §8): collision tainting. Nodes 0 and 2 both transmit to
// node 1 in overlapping ticks at power above its sensitivity; node 1's
// radio must flag the overlapping reception as tainted and deliver no MAC
// receive for either transmission.
func TestScenarioD_CollisionTaints(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)
	f.addNode(1, 2, 0, 1.0)
	f.addNode(2, 4, 0, 1.0)
	f.link(0, 1)
	f.link(2, 1)

	var recvCount int
	var mu sync.Mutex

	txOnce := func(dst types.NodeID) network.Routine {
		sent := false
		return func(n *network.Network) {
			for !sent {
				sent = true
				_ = n.Send(dst, []byte("collide"), nil)
			}
			<-make(chan struct{})
		}
	}
	receiver := func(n *network.Network) {
		for {
			if _, _, err := n.Recv(); err != nil {
				return
			}
			mu.Lock()
			recvCount++
			mu.Unlock()
		}
	}

	s := New(Config{Duration: 10, Seed: 1, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, senderLink, txOnce(1))))
	require.NoError(t, s.AddNode(nodeConfig(1, 2, 0, 0.1, 1.0, passthroughMac, receiverLink, receiver)))
	require.NoError(t, s.AddNode(nodeConfig(2, 4, 0, 0.1, 1.0, passthroughMac, senderLink, txOnce(1))))

	require.NoError(t, s.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, recvCount, "a tainted overlapping reception must deliver nothing to either sender's frame")
}

// Round-trip property (spec §8): payload bytes sent must match exactly on
// receipt across a single-hop, two-node, collision-free topology when
// acked and blocking.
func TestRoundTripPayloadBytesMatch(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)
	f.addNode(1, 1, 0, 1.0)
	f.link(0, 1)
	f.link(1, 0)

	payload := []byte("round-trip-payload")
	var got []byte
	var mu sync.Mutex

	sent := false
	sender := func(n *network.Network) {
		for !sent {
			sent = true
			_ = n.Send(1, payload, nil)
		}
		<-make(chan struct{})
	}
	receiver := func(n *network.Network) {
		_, data, err := n.Recv()
		if err == nil {
			mu.Lock()
			got = data
			mu.Unlock()
		}
		<-make(chan struct{})
	}

	s := New(Config{Duration: 10, Seed: 42, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, sendVariantLink((*link.Link).SendBlockingAck), sender)))
	require.NoError(t, s.AddNode(nodeConfig(1, 1, 0, 0.1, 1.0, passthroughMac, receiverLink, receiver)))

	require.NoError(t, s.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, payload, got)
}

// Close/teardown (spec §9's Open Question on leak-on-shutdown): running
// two simulations back-to-back in one process, the first Close()d before
// the second starts, must not perturb the second run's determinism
// (invariant 7) — nothing from the first run's queues, timers, or
// per-node payloads may leak into the second.
func TestClose_BackToBackRunsDontPerturbDeterminism(t *testing.T) {
	runOnce := func() ([]byte, uint64) {
		f := newFixture()
		f.addNode(0, 0, 0, 1.0)
		f.addNode(1, 1, 0, 1.0)
		f.link(0, 1)
		f.link(1, 0)

		var (
			mu       sync.Mutex
			received []byte
			gotAt    uint64
		)

		sentOnce := false
		sender := func(n *network.Network) {
			for !sentOnce {
				sentOnce = true
				_ = n.Send(1, []byte("Hello World"), nil)
			}
			<-make(chan struct{})
		}
		receiver := func(n *network.Network) {
			_, data, err := n.Recv()
			if err == nil {
				mu.Lock()
				received = data
				gotAt = n.CurrentTick()
				mu.Unlock()
			}
			<-make(chan struct{})
		}

		s := New(Config{Duration: 10, Seed: 7, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
		require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, senderLink, sender)))
		require.NoError(t, s.AddNode(nodeConfig(1, 1, 0, 0.1, 1.0, passthroughMac, receiverLink, receiver)))
		require.NoError(t, s.Run())

		// Tear down fully before the caller starts the next run, releasing
		// this run's queues, timers, and per-node radio/LLC state.
		s.Close("test run complete")
		assert.Zero(t, s.queues.Len())

		mu.Lock()
		defer mu.Unlock()
		return received, gotAt
	}

	firstData, firstTick := runOnce()
	secondData, secondTick := runOnce()

	assert.Equal(t, []byte("Hello World"), firstData)
	assert.Equal(t, firstData, secondData)
	assert.Equal(t, firstTick, secondTick)
}

// Boundary case (spec §8): duration 0 runs exactly tick 0 and completes no
// transmission, since a START_TRANSMITTING issued at tick t only fans out
// at t+1.
func TestBoundary_ZeroDurationCompletesNoTransmission(t *testing.T) {
	f := newFixture()
	f.addNode(0, 0, 0, 1.0)
	f.addNode(1, 1, 0, 1.0)
	f.link(0, 1)
	f.link(1, 0)

	sender := func(n *network.Network) {
		_ = n.Send(1, []byte("x"), nil)
		<-make(chan struct{})
	}
	var recvCount int
	var mu sync.Mutex
	receiver := func(n *network.Network) {
		for {
			if _, _, err := n.Recv(); err != nil {
				return
			}
			mu.Lock()
			recvCount++
			mu.Unlock()
		}
	}

	s := New(Config{Duration: 0, Seed: 1, Propagation: f.propagation, NeighborFunc: f.neighborFunc})
	require.NoError(t, s.AddNode(nodeConfig(0, 0, 0, 0.1, 1.0, passthroughMac, senderLink, sender)))
	require.NoError(t, s.AddNode(nodeConfig(1, 1, 0, 0.1, 1.0, passthroughMac, receiverLink, receiver)))

	require.NoError(t, s.Run())
	assert.Equal(t, uint64(1), s.CurrentTick())
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, recvCount)
}

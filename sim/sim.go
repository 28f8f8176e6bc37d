// Package sim implements the scheduler / simulation driver of spec §4.1:
// the global tick loop, the radio-medium propagation fan-out, and per-node
// task joining at termination. Modeled on the teacher's
// dispatcher/dispatcher.go main loop and dispatcher/alarm_mgr.go timer
// index, but single-threaded-cooperative rather than event-queue-driven:
// this simulator's "events" are the ctrl handoffs between goroutines, not
// a wall-clock-timestamped message queue.
package sim

import (
	"sort"

	"github.com/simonlingoogle/go-simplelogger"

	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/hook"
	"github.com/pdsns/sim/logger"
	"github.com/pdsns/sim/node"
	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/prng"
	"github.com/pdsns/sim/progctx"
	"github.com/pdsns/sim/queue"
	"github.com/pdsns/sim/radio"
	"github.com/pdsns/sim/timer"
	"github.com/pdsns/sim/types"
)

// Config bundles the parameters a run needs beyond the topology itself
// (spec §6's propagation/neighbor predicates, plus the addition's PRNG
// seed and duration).
type Config struct {
	Duration     uint64
	Seed         int64
	Propagation  hook.Propagation
	NeighborFunc hook.Neighbor

	// Watched reports whether id is under the CLI's `watch` command, so
	// the driver's own tick-loop tracing (transmission fan-out, timer
	// wakes) surfaces for that node even when the process log level
	// would otherwise suppress it (logger.NodeLogf). Optional; nil means
	// no node is ever treated as watched.
	Watched func(id types.NodeID) bool
}

func (c Config) watched(id types.NodeID) bool {
	return c.Watched != nil && c.Watched(id)
}

// Simulation is the scheduler / simulation driver (spec §4.1, §4.7). It
// owns the global clock, the dual transmission queues, the timer index,
// and the node registry, and implements both node.Driver (what a node's
// layer tasks need from it) and radio.Scheduler (what a node's radio
// needs for its START_TX handshake).
type Simulation struct {
	cfg     Config
	clock   uint64
	ended   bool
	self    ctrl.Slot
	timers  *timer.Manager
	queues  *queue.Dual
	progCtx *progctx.ProgCtx

	order   []types.NodeID
	nodes   map[types.NodeID]*node.Node
	started bool
}

// New creates an empty simulation driver. Call AddNode for each node in
// the topology, then Run.
func New(cfg Config) *Simulation {
	prng.Init(cfg.Seed)
	s := &Simulation{
		cfg:     cfg,
		self:    ctrl.NewSlot(),
		timers:  timer.NewManager(),
		queues:  queue.NewDual(),
		progCtx: progctx.New(nil),
		nodes:   map[types.NodeID]*node.Node{},
	}
	s.progCtx.Defer(s.queues.Clear)
	return s
}

// --- node.Driver ---

func (s *Simulation) CurrentTick() uint64   { return s.clock }
func (s *Simulation) Terminated() bool      { return s.ended }
func (s *Simulation) ControlSlot() ctrl.Slot { return s.self }
func (s *Simulation) Timers() *timer.Manager { return s.timers }

// --- radio.Scheduler ---

// EnqueueTransmission implements radio.Scheduler: it deposits tr into the
// `next` queue (spec §4.2 StartTx handshake, §4.1 step 1). A slice append
// cannot itself fail in Go, so the only failure mode spec §7 assigns to
// this deposit — "Error returns from any deposit (queue push) abort the
// run" — collapses here into the propagation predicate's own error return,
// already surfaced by radio.StartTx before EnqueueTransmission is ever
// called.
func (s *Simulation) EnqueueTransmission(tr *queue.TransmissionRecord) {
	s.queues.PushNext(tr)
}

// AddNode resolves node's frozen neighbor table via the user-supplied
// neighbor predicate (spec §6, invoked once, "frozen for the run"),
// builds its five-layer stack, and registers it with the timer index.
func (s *Simulation) AddNode(cfg node.Config) error {
	if _, exists := s.nodes[cfg.ID]; exists {
		return perr.New(perr.InvalidArgument, "sim: duplicate node id %d", cfg.ID)
	}
	neighborIDs, neighborPowers, err := s.cfg.NeighborFunc(cfg.ID)
	if err != nil {
		return perr.Wrap(perr.BadMessage, err, "sim: neighbor predicate failed for node %d", cfg.ID)
	}

	n := node.New(cfg, s, s.cfg.Propagation, s, neighborIDs, neighborPowers)
	s.nodes[cfg.ID] = n
	s.order = append(s.order, cfg.ID)
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	s.timers.AddNode(cfg.ID)

	id := cfg.ID
	s.progCtx.Defer(func() {
		n.Release()
		s.timers.DeleteNode(id)
	})
	return nil
}

// ForEach visits every node in ascending id order (deterministic — spec §8
// invariant 7), supplementing spec.md's original pdsns_foreach (SPEC_FULL
// §10).
func (s *Simulation) ForEach(f func(*node.Node)) {
	for _, id := range s.order {
		f(s.nodes[id])
	}
}

// NodeByID looks up a node by id, supplementing spec.md's original
// pdsns_get_node_by_id (SPEC_FULL §10).
func (s *Simulation) NodeByID(id types.NodeID) (*node.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// NodeByLocation scans for a node at the given position, supplementing
// spec.md's original pdsns_get_node_by_location (SPEC_FULL §10).
func (s *Simulation) NodeByLocation(x, y int64) (*node.Node, bool) {
	for _, id := range s.order {
		n := s.nodes[id]
		if p := n.Pos(); p.X == x && p.Y == y {
			return n, true
		}
	}
	return nil, false
}

// Start performs the one-time initial kick of every node's layer tasks
// (spec §4.7). Advance calls it lazily, so callers that only need batch
// behavior can skip calling it directly.
func (s *Simulation) Start() error {
	if s.started {
		return nil
	}
	for _, id := range s.order {
		if err := s.nodes[id].Start(s.self); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

// Advance runs the tick loop (spec §4.1) for up to `ticks` more ticks, or
// until the configured duration is reached, whichever comes first —
// letting a CLI's `go <ticks>` command and a one-shot batch run share the
// same loop body. Once the configured duration is reached, every node's
// tasks are joined and further calls are no-ops.
func (s *Simulation) Advance(ticks uint64) error {
	if err := s.Start(); err != nil {
		return err
	}
	if s.ended {
		return nil
	}
	limit := s.clock + ticks
	for s.clock < limit && s.clock <= s.cfg.Duration {
		if err := s.drainNow(); err != nil {
			return err
		}
		s.fireTimers(s.clock)
		s.queues.Swap()
		s.clock++
	}
	if s.clock > s.cfg.Duration {
		s.Stop()
	}
	return nil
}

// Run executes the full tick loop from tick 0 through s.cfg.Duration
// inclusive, then terminates every node's tasks — the batch-mode
// counterpart to driving the same loop interactively via Advance.
func (s *Simulation) Run() error {
	return s.Advance(s.cfg.Duration + 1)
}

// Stop terminates every node's tasks (spec §4.1's termination join), if
// not already terminated. Safe to call more than once.
func (s *Simulation) Stop() {
	if s.ended {
		return
	}
	s.ended = true
	s.join()
}

// Close terminates the run (if Stop hasn't already been called) and then
// releases every owned payload the driver and its nodes still hold — the
// timer index, the dual transmission queues, and each node's radio/LLC
// state (spec §9's Open Question on leak-on-shutdown: "a reimplementation
// should release all owned payloads on teardown"). reason is recorded as
// the progctx.ProgCtx cancellation cause and is what progCtx.Err()/a
// caller-supplied logger sees; it may be nil for a clean, expected
// shutdown. Close is idempotent — only the first call runs teardown.
//
// This is the real counterpart to cli.Handler.handleLoad replacing
// h.sim with a freshly loaded Simulation: without it, the previous run's
// queues, timers, and per-node payloads would simply be dropped and left
// for the GC, which is fine for memory but leaves no deterministic point
// at which "this run's state is gone" is true — Close gives callers (and
// the back-to-back-runs test below) that point.
func (s *Simulation) Close(reason interface{}) {
	s.Stop()
	if s.progCtx.Err() != nil {
		return
	}
	s.progCtx.Cancel(reason)
}

// drainNow implements spec §4.1 step 1: for every in-flight transmission
// due this tick, fan out START_RECEIVING on its first tick, STOP_TX to its
// sources plus STOP_RECEIVING (and MAC delivery) on its last, or simply
// carry it forward otherwise.
func (s *Simulation) drainNow() error {
	for _, tr := range s.queues.Now() {
		switch {
		case tr.Remaining == tr.Duration:
			for _, dst := range tr.Destinations {
				dn, ok := s.nodes[dst]
				if !ok {
					continue // propagation predicate named an unknown node; nothing to deliver to
				}
				rp := payload.RadioPayload{MacPayload: payload.MacPayload{LlcPayload: tr.Frame, RxPwr: tr.DestPowers[dst]}}
				dn.Radio().StartReceiving(tr.DestPowers[dst], rp)
				logger.NodeLogf(dst, s.cfg.watched(dst), logger.TraceLevel,
					"START_RECEIVING from %d at %.3f (sensitivity %.3f)", tr.Frame.SrcID, tr.DestPowers[dst], dn.Radio().Sensitivity)
			}
			tr.Remaining--
			s.queues.PushNext(tr)
		case tr.Remaining == 0:
			// The transmission has left the medium: return its source
			// radios from TRANSMITTING to IDLE (STOP_TX) so they can send
			// and receive again.
			for _, src := range tr.Sources {
				if sn, ok := s.nodes[src]; ok && sn.Radio().State() == radio.Transmitting {
					_ = sn.Radio().StopTx()
				}
			}
			for _, dst := range tr.Destinations {
				dn, ok := s.nodes[dst]
				if !ok {
					continue
				}
				ready, ok := dn.Radio().StopReceiving()
				if !ok {
					logger.NodeLogf(dst, s.cfg.watched(dst), logger.DebugLevel,
						"STOP_RECEIVING from %d: dropped (below sensitivity or tainted)", tr.Frame.SrcID)
					continue // below sensitivity, tainted, or radio not in that reception
				}
				logger.NodeLogf(dst, s.cfg.watched(dst), logger.TraceLevel,
					"STOP_RECEIVING from %d: delivering to mac", tr.Frame.SrcID)
				if err := dn.Mac().DeliverRecv(s.self, *ready); err != nil {
					return err
				}
			}
		default:
			tr.Remaining--
			s.queues.PushNext(tr)
		}
	}
	return nil
}

// fireTimers implements spec §4.1 step 2: every (node, layer) pair whose
// timer expires this tick is yielded to once, in deterministic node-id
// order (timer.Manager.Fire already orders by node id).
func (s *Simulation) fireTimers(tick uint64) {
	for _, f := range s.timers.Fire(tick) {
		n, ok := s.nodes[f.Node]
		if !ok {
			simplelogger.Panicf("sim: timer fired for unknown node %d", f.Node)
		}
		logger.NodeLogf(f.Node, s.cfg.watched(f.Node), logger.TraceLevel, "timer fired for layer %v", f.Layer)
		if err := n.WakeTimer(f.Layer, s.self); err != nil {
			logger.NodeLogf(f.Node, s.cfg.watched(f.Node), logger.WarnLevel, "layer %v timer wake failed: %v", f.Layer, err)
		}
	}
}

// join implements spec §4.1's termination join: "a task that is still
// alive is first yielded to once, then forcibly cancelled if still not
// finished". Go has no goroutine.Kill; a task not currently parked on its
// own control slot (and so unreachable by a non-blocking send) is simply
// abandoned — it will exit on its own the next time it reaches a
// sched.WaitFor check, which now observes Terminated() and returns a
// Fatal error, or it leaks harmlessly until process exit (spec §9's Open
// Question on leak-on-shutdown already accepts this for Go's GC).
func (s *Simulation) join() {
	for _, id := range s.order {
		n := s.nodes[id]
		for _, layer := range []types.LayerID{types.MacLayer, types.LlcLayer, types.LinkLayer, types.NetLayer} {
			target := n.SelfFor(layer)
			select {
			case target <- struct{}{}:
			default:
			}
		}
	}
}

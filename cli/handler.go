// This file wires the command grammar in ast.go to a running simulation,
// implementing the CliHandler interface runcli.go drives. Modeled on the
// teacher's cli/cli.go command dispatch (a big switch over the parsed
// command union), adapted to this simulator's own command set.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pdsns/sim/hook"
	"github.com/pdsns/sim/link"
	"github.com/pdsns/sim/mac"
	"github.com/pdsns/sim/network"
	"github.com/pdsns/sim/node"
	"github.com/pdsns/sim/scenario"
	"github.com/pdsns/sim/sim"
	"github.com/pdsns/sim/topo"
	"github.com/pdsns/sim/types"
)

// RoutineBundle names a complete set of user task bodies a scenario file
// can select by name (SPEC_FULL.md §6: "letting one binary host several
// named user-routine sets and pick per node").
type RoutineBundle struct {
	Mac  mac.Routine
	Link link.Routine
	Net  network.Routine
}

// Handler implements CliHandler, driving a sim.Simulation from the
// commands in ast.go.
type Handler struct {
	help      Help
	bundles   map[string]RoutineBundle
	propagate hook.Propagation
	neighbor  hook.Neighbor

	sim     *sim.Simulation
	watched map[types.NodeID]bool
	exiting bool

	onLoad func([]topo.NodeSpec)
}

// SetOnLoad installs a callback invoked with the parsed topology right
// after a `load` command reads it and before nodes are built — lets the
// hosting binary's propagation/neighbor predicates learn node positions
// without this package needing to expose its internal topology state.
func (h *Handler) SetOnLoad(f func([]topo.NodeSpec)) {
	h.onLoad = f
}

// NewHandler creates a Handler ready to `load` a topology/scenario pair.
// bundles maps routine-bundle names (as named in a scenario file) to the
// Go functions implementing them; propagate and neighbor are the two
// user-supplied predicates spec §6 leaves as external collaborators.
func NewHandler(bundles map[string]RoutineBundle, propagate hook.Propagation, neighbor hook.Neighbor) *Handler {
	return &Handler{
		help:      newHelp(),
		bundles:   bundles,
		propagate: propagate,
		neighbor:  neighbor,
		watched:   map[types.NodeID]bool{},
	}
}

// GetPrompt implements CliHandler.
func (h *Handler) GetPrompt() string {
	if h.sim == nil {
		return "pdsns (no sim)> "
	}
	return "pdsns> "
}

// HandleCommand implements CliHandler: parse one line and dispatch it.
func (h *Handler) HandleCommand(cmdline string, output io.Writer) error {
	var cmd command
	if err := parseCmdBytes([]byte(cmdline), &cmd); err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
		return nil
	}

	switch {
	case cmd.Load != nil:
		return h.handleLoad(cmd.Load, output)
	case cmd.Go != nil:
		return h.handleGo(cmd.Go, output)
	case cmd.Node != nil:
		return h.handleNode(cmd.Node, output)
	case cmd.Send != nil:
		return h.handleSend(cmd.Send, output)
	case cmd.Watch != nil:
		h.setWatch(cmd.Watch.Nodes, true, output)
		return nil
	case cmd.Unwatch != nil:
		h.setWatch(cmd.Unwatch.Nodes, false, output)
		return nil
	case cmd.Help != nil:
		if cmd.Help.Command != nil {
			fmt.Fprint(output, h.help.outputCommandHelp(*cmd.Help.Command))
		} else {
			fmt.Fprint(output, h.help.outputGeneralHelp())
		}
		return nil
	case cmd.Exit != nil:
		h.exiting = true
		if h.sim != nil {
			h.sim.Close("cli exit")
		}
		return io.EOF
	}
	return nil
}

func (h *Handler) handleLoad(c *LoadCmd, output io.Writer) error {
	if h.sim != nil {
		// Tear down the previous run's queues, timers, and per-node
		// payloads before replacing it — otherwise `load` issued twice in
		// one CLI session would simply abandon the old Simulation to the
		// GC instead of releasing it deterministically (spec §9's Open
		// Question on leak-on-shutdown).
		h.sim.Close("superseded by a new load")
	}
	topoBytes, err := os.ReadFile(c.Topology)
	if err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
		return nil
	}
	specs, err := topo.Parse(topoBytes)
	if err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
		return nil
	}
	scenarioBytes, err := os.ReadFile(c.Scenario)
	if err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
		return nil
	}
	cfg, err := scenario.Parse(scenarioBytes)
	if err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
		return nil
	}

	if h.onLoad != nil {
		h.onLoad(specs)
	}

	s := sim.New(sim.Config{
		Duration:     cfg.Duration,
		Seed:         cfg.Seed,
		Propagation:  h.propagate,
		NeighborFunc: h.neighbor,
		Watched:      h.Watched,
	})
	for _, spec := range specs {
		bundleName := cfg.RoutineFor(spec.ID)
		bundle, ok := h.bundles[bundleName]
		if !ok {
			fmt.Fprintf(output, "error: unknown routine bundle %q for node %d\n", bundleName, spec.ID)
			return nil
		}
		rxCap := 0
		if cfg.RxQueueDepth != nil {
			rxCap = *cfg.RxQueueDepth
		}
		ackTimeout := uint64(0)
		if cfg.AckTimeout != nil {
			ackTimeout = *cfg.AckTimeout
		}
		nodeCfg := node.Config{
			ID:          spec.ID,
			Pos:         spec.Pos,
			Sensitivity: spec.Sensitivity,
			MaxPower:    spec.MaxPower,
			TxDuration:  1,
			RxQueueCap:  rxCap,
			AckTimeout:  ackTimeout,
			Mac:         bundle.Mac,
			Link:        bundle.Link,
			Net:         bundle.Net,
		}
		if err := s.AddNode(nodeCfg); err != nil {
			fmt.Fprintf(output, "error: %v\n", err)
			return nil
		}
	}

	h.sim = s
	fmt.Fprintf(output, "loaded %d node(s), duration %d ticks\n", len(specs), cfg.Duration)
	return nil
}

func (h *Handler) handleGo(c *GoCmd, output io.Writer) error {
	if h.sim == nil {
		fmt.Fprintln(output, "error: no simulation loaded")
		return nil
	}
	if c.Ticks < 0 {
		fmt.Fprintln(output, "error: tick count must not be negative")
		return nil
	}
	if err := h.sim.Advance(uint64(c.Ticks)); err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
	}
	return nil
}

func (h *Handler) handleNode(c *NodeCmd, output io.Writer) error {
	if h.sim == nil {
		fmt.Fprintln(output, "error: no simulation loaded")
		return nil
	}
	n, ok := h.sim.NodeByID(types.NodeID(c.Node.Id))
	if !ok {
		fmt.Fprintf(output, "error: no such node %d\n", c.Node.Id)
		return nil
	}
	pos := n.Pos()
	fmt.Fprintf(output, "node %d at (%d, %d), radio state %s\n", n.NodeID(), pos.X, pos.Y, n.Radio().State())
	return nil
}

func (h *Handler) handleSend(c *SendCmd, output io.Writer) error {
	if h.sim == nil {
		fmt.Fprintln(output, "error: no simulation loaded")
		return nil
	}
	n, ok := h.sim.NodeByID(types.NodeID(c.Src.Id))
	if !ok {
		fmt.Fprintf(output, "error: no such node %d\n", c.Src.Id)
		return nil
	}
	if err := n.InjectFrame(types.NodeID(c.Dst.Id), []byte(c.Data), n.Radio().MaxPower); err != nil {
		fmt.Fprintf(output, "error: %v\n", err)
	}
	return nil
}

func (h *Handler) setWatch(nodes []NodeSelector, on bool, output io.Writer) {
	for _, ns := range nodes {
		id := types.NodeID(ns.Id)
		if on {
			h.watched[id] = true
		} else {
			delete(h.watched, id)
		}
	}
	if on {
		fmt.Fprintf(output, "watching %d node(s)\n", len(nodes))
	} else {
		fmt.Fprintf(output, "unwatched %d node(s)\n", len(nodes))
	}
}

// Watched reports whether node is currently under `watch`, for routines
// or loggers that want to emit extra detail selectively.
func (h *Handler) Watched(id types.NodeID) bool {
	return h.watched[id]
}

// Package sched defines the small context contract every layer task
// needs from the simulation driver: its own node id, the global clock,
// the termination predicate, the driver's control slot to yield to when
// idle, and the shared timer index (spec §4.1, §4.8, §5). Putting this in
// its own package (rather than having mac/llc/link/network import sim
// directly) avoids an import cycle, since sim composes all of them.
package sched

import (
	"github.com/pdsns/sim/ctrl"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/timer"
	"github.com/pdsns/sim/types"
)

// Context is what one node's layer tasks see of the simulation driver.
type Context interface {
	NodeID() types.NodeID
	CurrentTick() uint64
	Terminated() bool
	Driver() ctrl.Slot
	Timers() *timer.Manager
}

// WaitFor blocks the calling task until ready reports true, yielding to
// the driver at each step (spec §4.2: "the radio yields to ... the
// scheduler ... when nothing upward is pending"; the same discipline
// applies to every layer's blocking primitives). self is the calling
// task's own control slot.
func WaitFor(sc Context, self ctrl.Slot, ready func() bool) error {
	for !ready() {
		if sc.Terminated() {
			return perr.New(perr.Fatal, "node %d: task terminated while waiting", sc.NodeID())
		}
		if err := ctrl.CtrlAccept(sc.Driver(), self); err != nil {
			return err
		}
	}
	return nil
}

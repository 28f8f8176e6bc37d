// Package hook defines the contracts for the two user-supplied
// collaborators the core simulator drives but does not implement (spec
// §6): the propagation predicate and the neighbor predicate. Both are
// "out of scope" per spec §1 — the core only depends on their shape.
package hook

import "github.com/pdsns/sim/types"

// Propagation computes, for one transmission attempt from src to dst
// carrying param, the set of nodes that count as sources and
// destinations of the resulting transmission and the power each of them
// sees (spec §6: "(sim, srcid, dstid, user_param) → (srcs[], srcpwrs[],
// dsts[], dstpwrs[])"). Only the destination side is used by the radio
// layer; each dstPowers[i] is compared against that destination's
// sensitivity.
type Propagation func(srcID, dstID types.NodeID, param interface{}) (srcs []types.NodeID, srcPowers map[types.NodeID]float64, dsts []types.NodeID, dstPowers map[types.NodeID]float64, err error)

// Neighbor computes node's neighbor set and the power it receives from
// each of them (spec §6: "(sim, node) → (neighbors[], received_powers[])").
// Invoked once per node at startup; the result is frozen for the run.
type Neighbor func(node types.NodeID) (neighbors []types.NodeID, powers map[types.NodeID]float64, err error)

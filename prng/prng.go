// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package prng provides the simulator's deterministic randomness. A single
// root seed is threaded through a handful of purpose-scoped generators
// instead of the process-global math/rand source, so a fixed seed
// reproduces byte-identical node output across runs (spec §8 invariant 7,
// §9 "Random sequence numbers").
package prng

import (
	"math/rand"
	"time"
)

var (
	llcSeqGenerator     *rand.Rand
	nodeJitterGenerator *rand.Rand
	tieBreakGenerator   *rand.Rand
)

// Init (re)initializes the prng package, either with a fixed root seed
// (rootSeed != 0, for reproducible runs) or a time-based seed (rootSeed ==
// 0, for an exploratory run that need not reproduce).
func Init(rootSeed int64) {
	if rootSeed == 0 {
		rootSeed = time.Now().UnixNano()
	}

	llcSeqGenerator = rand.New(rand.NewSource(rootSeed + 1))
	nodeJitterGenerator = rand.New(rand.NewSource(rootSeed + 2))
	tieBreakGenerator = rand.New(rand.NewSource(rootSeed + 3))
}

func init() {
	Init(1) // deterministic until a run calls Init explicitly with its own seed
}

// NewLlcSequence draws a sequence number uniformly from {1, ..., 65535},
// the non-zero range spec §4.4 reserves for data frames (0 marks an ACK).
func NewLlcSequence() uint16 {
	return uint16(1 + llcSeqGenerator.Intn(65535))
}

// NewNodeStartJitter returns a tick offset in [0, max), used to break ties
// between nodes that would otherwise act in the same tick in an arbitrary
// (map-iteration-order-dependent) sequence.
func NewNodeStartJitter(max int) int {
	if max <= 0 {
		return 0
	}
	return nodeJitterGenerator.Intn(max)
}

// TieBreak returns a uniform float64 in [0, 1), for any propagation or
// neighbor predicate that needs a reproducible random draw.
func TieBreak() float64 {
	return tieBreakGenerator.Float64()
}

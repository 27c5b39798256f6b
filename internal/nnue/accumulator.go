package nnue

import "github.com/SH11235/rshogi-sub004/internal/shogi"

// Accumulator stores the accumulated hidden layer values for incremental
// updates. Each side has its own accumulator from its perspective.
type Accumulator struct {
	Black [L1Size]int16
	White [L1Size]int16

	Computed bool
}

// AccumulatorStack manages accumulators during search. Unlike the
// teacher's chess version there is no incremental dirty-piece update path
// (dropped along with nnue_bridge.go): a pushed ply is simply marked
// uncomputed and recomputes from scratch on its first Evaluate call, the
// full-recompute-on-miss contract the engine package's nnueEvaluator
// interface was designed around.
type AccumulatorStack struct {
	stack [128]Accumulator // One per ply
	top   int
}

// NewAccumulatorStack creates a new accumulator stack.
func NewAccumulatorStack() *AccumulatorStack {
	return &AccumulatorStack{}
}

// Push advances to a new ply's accumulator slot, deferring computation
// until it's actually needed.
func (s *AccumulatorStack) Push() {
	if s.top < 127 {
		s.top++
		s.stack[s.top].Computed = false
	}
}

// Pop returns to the previous ply's accumulator slot; a slot that was
// never computed is computed by the next Evaluate.
func (s *AccumulatorStack) Pop() {
	if s.top > 0 {
		s.top--
	}
}

// Current returns the current accumulator.
func (s *AccumulatorStack) Current() *Accumulator {
	return &s.stack[s.top]
}

// Reset resets the stack to initial state.
func (s *AccumulatorStack) Reset() {
	s.top = 0
	s.stack[0].Computed = false
}

// ComputeFull computes the accumulator from scratch for a position.
func (acc *Accumulator) ComputeFull(pos *shogi.Position, net *Network) {
	blackFeatures, whiteFeatures := GetActiveFeatures(pos)

	copy(acc.Black[:], net.L1Bias[:])
	copy(acc.White[:], net.L1Bias[:])

	for _, idx := range blackFeatures {
		if idx >= 0 && idx < HalfKPSize {
			for i := 0; i < L1Size; i++ {
				acc.Black[i] += net.L1Weights[idx][i]
			}
		}
	}

	for _, idx := range whiteFeatures {
		if idx >= 0 && idx < HalfKPSize {
			for i := 0; i < L1Size; i++ {
				acc.White[i] += net.L1Weights[idx][i]
			}
		}
	}

	acc.Computed = true
}

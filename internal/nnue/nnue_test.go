package nnue

import (
	"testing"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

func newTestEvaluator() *Evaluator {
	net := NewNetwork()
	net.InitRandom(1)
	return NewEvaluatorForNetwork(net)
}

func TestEvaluatorSharedNetworkIndependentAccumulators(t *testing.T) {
	net := NewNetwork()
	net.InitRandom(42)

	a := NewEvaluatorForNetwork(net)
	b := NewEvaluatorForNetwork(net)

	pos := shogi.NewPosition()
	scoreA := a.Evaluate(pos)
	scoreB := b.Evaluate(pos)

	if scoreA != scoreB {
		t.Errorf("two evaluators sharing one network should score the same position identically: %d != %d", scoreA, scoreB)
	}

	a.Push()
	move := shogi.NewMove(shogi.NewSquare(7, 7), shogi.NewSquare(7, 6), false)
	undo := pos.MakeMove(move)
	_ = a.Evaluate(pos)
	pos.UnmakeMove(move, undo)
	a.Pop()

	if got := a.Evaluate(pos); got != scoreA {
		t.Errorf("Push/Pop round trip should restore the prior evaluation: got %d, want %d", got, scoreA)
	}

	// b's stack must be untouched by a's Push/Pop.
	if got := b.Evaluate(pos); got != scoreB {
		t.Errorf("independent evaluator's accumulator should be unaffected: got %d, want %d", got, scoreB)
	}
}

func TestEvaluatorResetRecomputes(t *testing.T) {
	e := newTestEvaluator()
	pos := shogi.NewPosition()

	before := e.Evaluate(pos)
	e.Push()
	e.Push()
	e.Reset()
	after := e.Evaluate(pos)

	if before != after {
		t.Errorf("Reset followed by Evaluate should reproduce the root score: got %d, want %d", after, before)
	}
}

package shogi

import "testing"

// perft counts the number of leaf nodes at the given depth. The standard
// way to verify move generation correctness.
func perft(p *Position, depth int) int64 {
	if depth == 0 {
		return 1
	}

	moves := p.GenerateLegalMoves()
	if depth == 1 {
		return int64(moves.Len())
	}

	var nodes int64
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := p.MakeMove(m)
		nodes += perft(p, depth-1)
		p.UnmakeMove(m, undo)
	}
	return nodes
}

// TestPerftStartingPosition checks move generation from the starting
// position against the documented perft counts (spec §8).
func TestPerftStartingPosition(t *testing.T) {
	pos := NewPosition()

	tests := []struct {
		depth    int
		expected int64
	}{
		{1, 30},
		{2, 900},
		{3, 25470},
		// Depth 4 takes longer, enable for thorough testing:
		// {4, 719731},
	}

	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			got := perft(pos, tc.depth)
			if got != tc.expected {
				t.Errorf("perft(%d) = %d, want %d", tc.depth, got, tc.expected)
			}
		})
	}
}

// TestPerftAfterOneMove sanity-checks perft recursion past the root by
// playing the most common opening move and confirming the side to move
// flips and still has a full, non-empty set of replies.
func TestPerftAfterOneMove(t *testing.T) {
	pos := NewPosition()
	m := NewMove(NewSquare(7, 7), NewSquare(7, 6), false) // 7g7f
	undo := pos.MakeMove(m)
	defer pos.UnmakeMove(m, undo)

	if pos.SideToMove != White {
		t.Fatalf("side to move after 7g7f = %v, want White", pos.SideToMove)
	}

	got := perft(pos, 1)
	if got == 0 {
		t.Errorf("perft(1) after 7g7f = 0, want > 0")
	}
	if got != int64(pos.GenerateLegalMoves().Len()) {
		t.Errorf("perft(1) = %d disagrees with GenerateLegalMoves().Len() = %d", got, pos.GenerateLegalMoves().Len())
	}
}

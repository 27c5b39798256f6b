package shogi

import "testing"

// TestNifuForbidsSecondPawnOnFile checks that a pawn cannot be dropped
// onto a file that already holds an unpromoted pawn of the same color
// (spec §4.1's "nifu" restriction).
func TestNifuForbidsSecondPawnOnFile(t *testing.T) {
	// Black has a pawn on file 5 (5g) and one more in hand.
	sfen := "lnsgkgsnl/1r5b1/pp1ppppp1/9/9/9/PP1PPPPP1/1B5R1/LNSGKGSNL b Pp 1"
	pos, err := FromSFEN(sfen)
	if err != nil {
		t.Fatalf("FromSFEN failed: %v", err)
	}

	drop := NewDrop(Pawn, NewSquare(5, 5))
	moves := pos.GenerateLegalMoves()
	if moves.Contains(drop) {
		t.Errorf("dropping a pawn on file 5 should be illegal: file 5 already holds a black pawn (nifu)")
	}

	// File 7 holds no black pawn in this position, so a drop there
	// remains legal.
	openDrop := NewDrop(Pawn, NewSquare(7, 5))
	if !moves.Contains(openDrop) {
		t.Errorf("dropping a pawn on the empty file 7 should be legal")
	}
}

// TestPawnDropCannotDeliverUchifuzumeMate builds a position where a pawn
// drop in front of the enemy king would be an immediate checkmate, and
// checks that move is excluded from legal move generation.
//
// White's king sits cornered at 9a with its own pawns blocking both
// flight squares (8a, 8b); a black gold on 8c guards 9b, the only square
// the king could otherwise escape to by capturing the checking pawn.
func TestPawnDropCannotDeliverUchifuzumeMate(t *testing.T) {
	sfen := "kp7/1p7/1G7/9/9/9/9/9/8K b P 1"
	pos, err := FromSFEN(sfen)
	if err != nil {
		t.Fatalf("FromSFEN failed: %v", err)
	}

	mateSquare := NewSquare(9, 2)
	drop := NewDrop(Pawn, mateSquare)
	if !pos.dropPawnIsUchifuzume(Black, mateSquare) {
		t.Fatalf("expected pos.dropPawnIsUchifuzume(Black, %v) to be true", mateSquare)
	}

	moves := pos.GenerateLegalMoves()
	if moves.Contains(drop) {
		t.Errorf("pawn drop delivering immediate checkmate should be illegal (uchifuzume)")
	}
}

// TestLastRankRestrictionsOnDrop verifies pawns/lances cannot be dropped
// on the far rank and knights cannot be dropped on the far two ranks.
func TestLastRankRestrictionsOnDrop(t *testing.T) {
	sfen := "9/9/9/9/4k4/9/9/9/K8 b PLN 1"
	pos, err := FromSFEN(sfen)
	if err != nil {
		t.Fatalf("FromSFEN failed: %v", err)
	}

	moves := pos.GenerateLegalMoves()

	if moves.Contains(NewDrop(Pawn, NewSquare(5, 1))) {
		t.Errorf("pawn drop on rank 1 (Black's last rank) should be illegal")
	}
	if moves.Contains(NewDrop(Lance, NewSquare(5, 1))) {
		t.Errorf("lance drop on rank 1 should be illegal")
	}
	if moves.Contains(NewDrop(Knight, NewSquare(5, 1))) {
		t.Errorf("knight drop on rank 1 should be illegal")
	}
	if moves.Contains(NewDrop(Knight, NewSquare(5, 2))) {
		t.Errorf("knight drop on rank 2 should be illegal")
	}
	if !moves.Contains(NewDrop(Knight, NewSquare(5, 3))) {
		t.Errorf("knight drop on rank 3 should be legal")
	}
}

// TestMustPromoteForcesPromotionOnLastRank checks that a pawn or knight
// reaching a square it could never move from again must promote.
func TestMustPromoteForcesPromotionOnLastRank(t *testing.T) {
	if !mustPromote(Pawn, Black, NewSquare(5, 1)) {
		t.Errorf("a pawn reaching rank 1 as Black must promote")
	}
	if mustPromote(Pawn, Black, NewSquare(5, 2)) {
		t.Errorf("a pawn reaching rank 2 as Black need not promote")
	}
	if !mustPromote(Knight, Black, NewSquare(5, 2)) {
		t.Errorf("a knight reaching rank 2 as Black must promote")
	}
	if !mustPromote(Knight, Black, NewSquare(5, 1)) {
		t.Errorf("a knight reaching rank 1 as Black must promote")
	}
	if mustPromote(Knight, Black, NewSquare(5, 3)) {
		t.Errorf("a knight reaching rank 3 as Black need not promote")
	}
}

func TestMoveEncodeDecode(t *testing.T) {
	m := NewMove(NewSquare(7, 7), NewSquare(7, 6), true)
	if m.From() != NewSquare(7, 7) || m.To() != NewSquare(7, 6) || !m.IsPromotion() || m.IsDrop() {
		t.Errorf("board move round trip failed: from=%v to=%v promote=%v drop=%v", m.From(), m.To(), m.IsPromotion(), m.IsDrop())
	}

	d := NewDrop(Bishop, NewSquare(5, 5))
	if !d.IsDrop() || d.DropPiece() != Bishop || d.To() != NewSquare(5, 5) {
		t.Errorf("drop move round trip failed: drop=%v piece=%v to=%v", d.IsDrop(), d.DropPiece(), d.To())
	}

	parsed, err := ParseMove("B*5e")
	if err != nil {
		t.Fatalf("ParseMove failed: %v", err)
	}
	if parsed != d {
		t.Errorf("ParseMove(%q) = %v, want %v", "B*5e", parsed, d)
	}

	parsedBoard, err := ParseMove("7g7f+")
	if err != nil {
		t.Fatalf("ParseMove failed: %v", err)
	}
	if parsedBoard != m {
		t.Errorf("ParseMove(%q) = %v, want %v", "7g7f+", parsedBoard, m)
	}
}

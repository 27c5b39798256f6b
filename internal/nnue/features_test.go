package nnue

import (
	"testing"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

func TestGetActiveFeaturesWithinBounds(t *testing.T) {
	pos := shogi.NewPosition()
	black, white := GetActiveFeatures(pos)

	if len(black) == 0 || len(white) == 0 {
		t.Fatal("expected non-empty feature sets for the starting position")
	}

	for _, idx := range black {
		if idx < 0 || idx >= HalfKPSize {
			t.Errorf("black feature index %d out of range [0, %d)", idx, HalfKPSize)
		}
	}
	for _, idx := range white {
		if idx < 0 || idx >= HalfKPSize {
			t.Errorf("white feature index %d out of range [0, %d)", idx, HalfKPSize)
		}
	}
}

func TestHalfKPIndexDistinctPerspectives(t *testing.T) {
	pos := shogi.NewPosition()
	blackKingSq := pos.KingSquare[shogi.Black]
	whiteKingSq := pos.KingSquare[shogi.White]

	sq, _ := shogi.ParseSquare("7g")
	blackIdx := halfKPIndex(shogi.Black, blackKingSq, shogi.Pawn, shogi.Black, sq)
	whiteIdx := halfKPIndex(shogi.White, whiteKingSq, shogi.Pawn, shogi.Black, sq)

	if blackIdx < 0 || whiteIdx < 0 {
		t.Fatal("expected valid indices for a black pawn")
	}
	if blackIdx == whiteIdx {
		t.Error("perspective-mirrored indices should differ for a non-central square")
	}
}

func TestHalfKPHandIndexRespectsMax(t *testing.T) {
	pos := shogi.NewPosition()
	kingSq := pos.KingSquare[shogi.Black]

	if idx := halfKPHandIndex(shogi.Black, kingSq, shogi.Pawn, shogi.Black, 0); idx != -1 {
		t.Errorf("count 0 should be invalid, got index %d", idx)
	}
	if idx := halfKPHandIndex(shogi.Black, kingSq, shogi.Pawn, shogi.Black, 19); idx != -1 {
		t.Errorf("count above max (18) should be invalid, got index %d", idx)
	}
	if idx := halfKPHandIndex(shogi.Black, kingSq, shogi.Pawn, shogi.Black, 18); idx < boardFeatureSize || idx >= HalfKPSize {
		t.Errorf("count at max should be a valid hand-feature index, got %d", idx)
	}
}

func TestClampedReLU(t *testing.T) {
	cases := []struct {
		in   int16
		want int8
	}{
		{-100, 0},
		{0, 0},
		{50, 50},
		{127, 127},
		{200, 127},
	}
	for _, c := range cases {
		if got := ClampedReLU(c.in); got != c.want {
			t.Errorf("ClampedReLU(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

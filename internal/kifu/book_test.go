package kifu

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

func TestBookLoadAndProbe(t *testing.T) {
	pos := shogi.NewPosition()
	key := pos.Hash

	// 7g7f: pawn push from 7g to 7f, no promotion.
	from, _ := shogi.ParseSquare("7g")
	to, _ := shogi.ParseSquare("7f")
	move := shogi.NewMove(from, to, false)

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, key)
	binary.Write(&buf, binary.BigEndian, uint32(move))
	binary.Write(&buf, binary.BigEndian, uint16(100)) // weight

	book, err := LoadReader(&buf)
	if err != nil {
		t.Fatalf("Failed to load book: %v", err)
	}

	if book.Size() != 1 {
		t.Errorf("Expected book size 1, got %d", book.Size())
	}

	probed, found := book.Probe(pos)
	if !found {
		t.Fatal("Expected to find move in book")
	}

	if probed.From() != from || probed.To() != to {
		t.Errorf("Expected 7g7f, got %s", probed.String())
	}
}

func TestBookMiss(t *testing.T) {
	book := New()
	pos := shogi.NewPosition()

	move, found := book.Probe(pos)
	if found {
		t.Error("Expected book miss on empty book")
	}
	if move != shogi.NoMove {
		t.Errorf("Expected NoMove on miss, got %s", move.String())
	}
}

func TestBookRejectsIllegalMove(t *testing.T) {
	pos := shogi.NewPosition()
	key := pos.Hash

	// A pawn "move" from 1a to 1i is nowhere near legal from the start
	// position; verifyAndConvert must turn it into NoMove rather than
	// hand back a move the engine can't play, even though the entry
	// itself was still found in the book.
	from, _ := shogi.ParseSquare("1a")
	to, _ := shogi.ParseSquare("1i")
	bogus := shogi.NewMove(from, to, false)

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, key)
	binary.Write(&buf, binary.BigEndian, uint32(bogus))
	binary.Write(&buf, binary.BigEndian, uint16(50))

	book, err := LoadReader(&buf)
	if err != nil {
		t.Fatalf("Failed to load book: %v", err)
	}

	move, found := book.Probe(pos)
	if !found {
		t.Fatal("Expected the stale entry to still be found")
	}
	if move != shogi.NoMove {
		t.Errorf("Expected verifyAndConvert to reject the move, got %s", move.String())
	}
}

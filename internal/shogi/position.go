package shogi

import (
	"fmt"
	"strings"
)

// Position represents a complete shogi position: board, both hands, side
// to move, ply, and a Zobrist hash kept incrementally up to date.
type Position struct {
	Pieces   [2][NoPieceType]Bitboard // [Color][PieceType]
	Occupied [2]Bitboard
	AllOccupied Bitboard

	board [81]Piece // cached piece-at-square lookup

	Hands      [2]Hand
	SideToMove Color
	Ply        int

	Hash uint64

	KingSquare [2]Square
	Checkers   Bitboard
}

// NewPosition returns the standard shogi starting position.
func NewPosition() *Position {
	pos, err := FromSFEN(StartSFEN)
	if err != nil {
		panic("shogi: invalid embedded start SFEN: " + err.Error())
	}
	return pos
}

// Copy returns a deep copy (no pointer aliasing) of the position.
func (p *Position) Copy() *Position {
	np := *p
	return &np
}

// PieceAt returns the piece occupying sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	return p.board[sq]
}

// IsEmpty reports whether sq holds no piece.
func (p *Position) IsEmpty(sq Square) bool {
	return p.board[sq] == NoPiece
}

func (p *Position) setPiece(piece Piece, sq Square) {
	if piece == NoPiece {
		return
	}
	c, pt := piece.Color(), piece.Type()
	bb := SquareBB(sq)
	p.Pieces[c][pt] = Or(p.Pieces[c][pt], bb)
	p.Occupied[c] = Or(p.Occupied[c], bb)
	p.AllOccupied = Or(p.AllOccupied, bb)
	p.board[sq] = piece
	if pt == King {
		p.KingSquare[c] = sq
	}
}

func (p *Position) removePiece(sq Square) Piece {
	piece := p.board[sq]
	if piece == NoPiece {
		return NoPiece
	}
	c, pt := piece.Color(), piece.Type()
	bb := SquareBB(sq)
	p.Pieces[c][pt] = AndNot(p.Pieces[c][pt], bb)
	p.Occupied[c] = AndNot(p.Occupied[c], bb)
	p.AllOccupied = AndNot(p.AllOccupied, bb)
	p.board[sq] = NoPiece
	return piece
}

// Clear resets the position to an empty board.
func (p *Position) Clear() {
	*p = Position{}
	for i := range p.board {
		p.board[i] = NoPiece
	}
	p.KingSquare[Black] = NoSquare
	p.KingSquare[White] = NoSquare
	p.Ply = 1
}

// String renders a human-readable board dump for debugging.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for rank := 1; rank <= 9; rank++ {
		for file := 9; file >= 1; file-- {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				sb.WriteString(" . ")
			} else {
				sb.WriteString(fmt.Sprintf("%2s ", piece.SFENChar()))
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(fmt.Sprintf("Side to move: %s\n", p.SideToMove))
	sb.WriteString(fmt.Sprintf("Black hand: %v  White hand: %v\n", p.Hands[Black], p.Hands[White]))
	sb.WriteString(fmt.Sprintf("Hash: %016x\n", p.Hash))
	return sb.String()
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers.More()
}

// IsSquareAttacked reports whether sq is attacked by any piece of color by.
func (p *Position) IsSquareAttacked(sq Square, by Color) bool {
	occ := p.AllOccupied
	for pt := Pawn; pt < NoPieceType; pt++ {
		bb := p.Pieces[by][pt]
		for bb.More() {
			from := bb.PopLSB()
			if PieceAttacks(pt, by, from, occ).IsSet(sq) {
				return true
			}
		}
	}
	return false
}

// AttackersTo returns all pieces of either color attacking sq, with slider
// attacks computed against the occupancy occ.
func (p *Position) AttackersTo(sq Square, occ Bitboard) Bitboard {
	var attackers Bitboard
	for _, by := range [2]Color{Black, White} {
		for pt := Pawn; pt < NoPieceType; pt++ {
			bb := p.Pieces[by][pt]
			for bb.More() {
				from := bb.PopLSB()
				if PieceAttacks(pt, by, from, occ).IsSet(sq) {
					attackers = attackers.Set(from)
				}
			}
		}
	}
	return attackers
}

// UpdateCheckers recomputes the Checkers bitboard for the side to move.
func (p *Position) UpdateCheckers() {
	us := p.SideToMove
	ksq := p.KingSquare[us]
	p.Checkers = AndNot(p.AttackersTo(ksq, p.AllOccupied), p.Occupied[us])
}

// ComputePinned returns pieces of the side to move pinned to its own king.
func (p *Position) ComputePinned() Bitboard {
	us := p.SideToMove
	them := us.Other()
	ksq := p.KingSquare[us]
	var pinned Bitboard

	snipers := AndNot(RookAttacks(ksq, Empty), p.Occupied[us])
	snipers = And(snipers, Or(p.Pieces[them][Rook], p.Pieces[them][PRook]))
	for snipers.More() {
		sq := snipers.PopLSB()
		blockers := And(Between(sq, ksq), p.AllOccupied)
		if blockers.PopCount() == 1 && And(blockers, p.Occupied[us]).More() {
			pinned = Or(pinned, blockers)
		}
	}

	snipers = AndNot(BishopAttacks(ksq, Empty), p.Occupied[us])
	snipers = And(snipers, Or(p.Pieces[them][Bishop], p.Pieces[them][PBishop]))
	for snipers.More() {
		sq := snipers.PopLSB()
		blockers := And(Between(sq, ksq), p.AllOccupied)
		if blockers.PopCount() == 1 && And(blockers, p.Occupied[us]).More() {
			pinned = Or(pinned, blockers)
		}
	}

	lanceDirSnipers := And(p.Pieces[them][Lance], AndNot(RookAttacks(ksq, Empty), p.Occupied[us]))
	for lanceDirSnipers.More() {
		sq := lanceDirSnipers.PopLSB()
		// Only the straight-line-toward-us direction can pin with a lance.
		if sq.File() != ksq.File() {
			continue
		}
		if (them == Black && sq.Rank() < ksq.Rank()) || (them == White && sq.Rank() > ksq.Rank()) {
			continue
		}
		blockers := And(Between(sq, ksq), p.AllOccupied)
		if blockers.PopCount() == 1 && And(blockers, p.Occupied[us]).More() {
			pinned = Or(pinned, blockers)
		}
	}

	return pinned
}

// Material returns the signed material balance (positive favors Black),
// including hand value, per spec §4.2.
func (p *Position) Material() int {
	score := 0
	for pt := Pawn; pt < NoPieceType; pt++ {
		score += p.Pieces[Black][pt].PopCount() * PieceValue[pt]
		score -= p.Pieces[White][pt].PopCount() * PieceValue[pt]
	}
	score += p.Hands[Black].Value()
	score -= p.Hands[White].Value()
	return score
}

// HasNonPawnMaterial reports whether the side to move has material beyond
// pawns, used to gate null-move pruning against zugzwang.
func (p *Position) HasNonPawnMaterial() bool {
	us := p.SideToMove
	for pt := Lance; pt < NoPieceType; pt++ {
		if pt == Gold || pt == King {
			continue
		}
		if p.Pieces[us][pt].More() {
			return true
		}
	}
	if p.Pieces[us][Gold].More() {
		return true
	}
	for _, pt := range HandTypes {
		if pt != Pawn && p.Hands[us].Count(pt) > 0 {
			return true
		}
	}
	return false
}

// MakeMove applies m (assumed pseudo-legal) and returns the undo record.
func (p *Position) MakeMove(m Move) UndoInfo {
	undo := UndoInfo{
		Hash:       p.Hash,
		CheckersLo: p.Checkers,
		KingSquare: p.KingSquare,
		Hand:       p.Hands,
	}

	us := p.SideToMove
	to := m.To()

	if m.IsDrop() {
		pt := m.DropPiece()
		p.Hands[us].Remove(pt)
		p.Hash ^= ZobristHandDelta(us, pt, p.Hands[us].Count(pt)+1)
		piece := NewPiece(pt, us)
		p.setPiece(piece, to)
		p.Hash ^= ZobristPiece(us, pt, to)
	} else {
		from := m.From()
		moving := p.removePiece(from)
		p.Hash ^= ZobristPiece(us, moving.Type(), from)

		captured := p.removePiece(to)
		undo.CapturedPiece = captured
		if captured != NoPiece {
			p.Hash ^= ZobristPiece(captured.Color(), captured.Type(), to)
			heldType := captured.Type().Unpromoted()
			p.Hands[us].Add(heldType)
			p.Hash ^= ZobristHandDelta(us, heldType, p.Hands[us].Count(heldType))
		}

		placed := moving
		if m.IsPromotion() {
			placed = moving.Promote()
		}
		p.setPiece(placed, to)
		p.Hash ^= ZobristPiece(us, placed.Type(), to)
	}

	p.SideToMove = us.Other()
	p.Hash ^= ZobristSideToMove()
	p.Ply++
	p.UpdateCheckers()

	return undo
}

// UnmakeMove reverses a previous MakeMove call.
func (p *Position) UnmakeMove(m Move, undo UndoInfo) {
	p.Ply--
	p.SideToMove = p.SideToMove.Other()
	to := m.To()

	if m.IsDrop() {
		p.removePiece(to)
	} else {
		placed := p.removePiece(to)
		from := m.From()
		orig := placed
		if m.IsPromotion() {
			orig = placed.Demote()
		}
		p.setPiece(orig, from)
		if undo.CapturedPiece != NoPiece {
			p.setPiece(undo.CapturedPiece, to)
		}
	}

	p.Hands = undo.Hand
	p.Hash = undo.Hash
	p.Checkers = undo.CheckersLo
	p.KingSquare = undo.KingSquare
}

// NullMoveUndo stores the minimal state to undo MakeNullMove.
type NullMoveUndo struct {
	Hash     uint64
	Checkers Bitboard
}

// MakeNullMove passes the turn without moving, used by null-move pruning.
func (p *Position) MakeNullMove() NullMoveUndo {
	undo := NullMoveUndo{Hash: p.Hash, Checkers: p.Checkers}
	p.SideToMove = p.SideToMove.Other()
	p.Hash ^= ZobristSideToMove()
	p.UpdateCheckers()
	return undo
}

// UnmakeNullMove reverses MakeNullMove.
func (p *Position) UnmakeNullMove(undo NullMoveUndo) {
	p.SideToMove = p.SideToMove.Other()
	p.Hash = undo.Hash
	p.Checkers = undo.Checkers
}

// Validate checks the structural invariants spec §3 requires.
func (p *Position) Validate() error {
	if p.Pieces[Black][King].PopCount() != 1 {
		return fmt.Errorf("black must have exactly one king")
	}
	if p.Pieces[White][King].PopCount() != 1 {
		return fmt.Errorf("white must have exactly one king")
	}
	for _, c := range [2]Color{Black, White} {
		total := p.Pieces[c][Pawn].PopCount() + p.Pieces[c][PPawn].PopCount() + p.Hands[c].Count(Pawn)
		if total > 18 {
			return fmt.Errorf("%s has more than 18 pawns", c)
		}
		lastRank := 1
		if c == White {
			lastRank = 9
		}
		if And(p.Pieces[c][Pawn], RankMask[lastRank]).More() {
			return fmt.Errorf("%s has an unpromoted pawn on the last rank", c)
		}
	}
	return nil
}

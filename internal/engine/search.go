package engine

import "github.com/SH11235/rshogi-sub004/internal/shogi"

// Infinity bounds the root aspiration window before a real score narrows
// it. MateScore and MaxPly live in material.go.
const Infinity = 30000

// PVTable stores the principal variation being built during search: for
// each ply, the line of moves from that ply onward that the search
// currently believes is best (Worker.negamax's triangular PV array).
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]shogi.Move
}

package engine

import (
	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// Move ordering priorities
const (
	TTMoveScore     = 10000000 // TT move gets highest priority
	GoodCaptureBase = 1000000  // Base score for good captures
	KillerScore1    = 900000   // First killer move
	KillerScore2    = 800000   // Second killer move
	BadCaptureBase  = -100000  // Losing captures
)

// numPieceCodes is the number of distinct (color, type) piece codes, used
// to size history tables indexed by shogi.Piece (teacher: 12 for chess's
// 6 types x 2 colors; here 14 types x 2 colors).
const numPieceCodes = int(shogi.NoPieceType) * 2

// numSquares is the board's square count (teacher: 64; here 81).
const numSquares = 81

// mvvLva scores captures by victim/attacker value, following spec §4.1's
// "captures (by MVV-LVA)" ordering. Indexed by base (unpromoted) piece
// type on both axes; promoted attacker/victim values fold to their base
// row/column since promotion doesn't change capture priority ordering.
var mvvLva [8][8]int

func init() {
	// victim*10 - attacker, scaled by PieceValue so promoted/base pieces
	// of similar strength land close together, matching the teacher's
	// "victimValue*10 - attackerValue" shape.
	for victim := shogi.Pawn; victim < shogi.King; victim++ {
		for attacker := shogi.Pawn; attacker <= shogi.King; attacker++ {
			mvvLva[victim][attacker] = shogi.PieceValue[victim]/10 - shogi.PieceValue[attacker]/100
		}
	}
}

// PieceToHistory is a continuation-history slab: for a fixed (prior piece,
// prior destination) pair, the bonus earned by following up with
// (piece, to). Ported from Stockfish's ContinuationHistory entry type.
type PieceToHistory [numPieceCodes][numSquares]int

// MoveOrderer handles move ordering for the search.
type MoveOrderer struct {
	// Killer moves (quiet moves that caused beta cutoffs)
	killers [MaxPly][2]shogi.Move

	// History heuristic (indexed by [from][to]); drops use a synthetic
	// from-square per hand piece type so they get their own history slot
	// distinct from board moves (see dropFromIndex).
	history [numSquares + int(shogi.NoPieceType)][numSquares]int

	// Counter move heuristic (indexed by [piece][to])
	counterMoves [numPieceCodes][numSquares]shogi.Move

	// Capture history (indexed by [attackerPiece][toSquare][capturedPieceType])
	captureHistory [numPieceCodes][numSquares][8]int

	// Countermove history (indexed by [prevPiece][prevTo][movePiece][moveTo])
	countermoveHistory [numPieceCodes][numSquares][numPieceCodes][numSquares]int

	// Continuation history, indexed by [movedPiece][to] of the move being
	// followed up on; each slab is itself indexed by [piece][to] of the
	// following move (worker.go's searchStack chains these 1-6 plies back).
	continuationHistory [numPieceCodes][numSquares]PieceToHistory
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// dropFromIndex returns the synthetic "from" index a drop of pt uses in
// the history table, beyond the 81 real board squares.
func dropFromIndex(pt shogi.PieceType) int {
	return numSquares + int(pt)
}

func historyFrom(m shogi.Move) int {
	if m.IsDrop() {
		return dropFromIndex(m.DropPiece())
	}
	return int(m.From())
}

// Clear resets the move orderer for a new search.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = shogi.NoMove
		mo.killers[i][1] = shogi.NoMove
	}
	for i := range mo.history {
		for j := range mo.history[i] {
			mo.history[i][j] /= 2
		}
	}
	for i := range mo.counterMoves {
		for j := range mo.counterMoves[i] {
			mo.counterMoves[i][j] = shogi.NoMove
		}
	}
	mo.scaleCaptureHistory()
	mo.scaleCountermoveHistory()
}

// ScoreMoves assigns scores to moves for ordering.
func (mo *MoveOrderer) ScoreMoves(pos *shogi.Position, moves *shogi.MoveList, ply int, ttMove shogi.Move) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.Get(i), ply, ttMove)
	}
	return scores
}

// ScoreMovesWithCounter assigns scores including counter-move and CMH bonus.
func (mo *MoveOrderer) ScoreMovesWithCounter(pos *shogi.Position, moves *shogi.MoveList, ply int, ttMove, prevMove shogi.Move) []int {
	scores := make([]int, moves.Len())
	counterMove := mo.GetCounterMove(prevMove, pos)

	var prevPiece shogi.Piece = shogi.NoPiece
	if prevMove != shogi.NoMove {
		prevPiece = pos.PieceAt(prevMove.To())
	}

	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		scores[i] = mo.scoreMove(pos, move, ply, ttMove)

		if move == counterMove && scores[i] < KillerScore2 {
			scores[i] = KillerScore2 - 10000
		}

		if !move.IsCapture(pos) && !move.IsPromotion() && move != ttMove {
			var movePiece shogi.Piece
			if move.IsDrop() {
				movePiece = shogi.NewPiece(move.DropPiece(), pos.SideToMove)
			} else {
				movePiece = pos.PieceAt(move.From())
			}
			cmhScore := mo.GetCountermoveHistoryScore(prevMove, prevPiece, movePiece, move.To())
			scores[i] += cmhScore / 2
		}
	}

	return scores
}

// scoreMove returns the ordering score for a single move.
func (mo *MoveOrderer) scoreMove(pos *shogi.Position, m shogi.Move, ply int, ttMove shogi.Move) int {
	if m == ttMove {
		return TTMoveScore
	}

	// Drops of major pieces (rook, bishop) rank above quiets but below
	// captures, per spec §4.1's "drops of major pieces" ordering tier.
	if m.IsDrop() {
		pt := m.DropPiece()
		base := mo.history[dropFromIndex(pt)][m.To()]
		if pt == shogi.Rook || pt == shogi.Bishop {
			return GoodCaptureBase - 2000 + base
		}
		return base
	}

	from := m.From()
	to := m.To()

	if m.IsCapture(pos) {
		attackerPiece := pos.PieceAt(from)
		if attackerPiece == shogi.NoPiece {
			return GoodCaptureBase
		}
		attacker := attackerPiece.Type().Unpromoted()

		capturedPiece := pos.PieceAt(to)
		if capturedPiece == shogi.NoPiece {
			return GoodCaptureBase
		}
		victim := capturedPiece.Type().Unpromoted()

		score := GoodCaptureBase + mvvLva[victim][attacker]*1000

		captureHistScore := mo.GetCaptureHistoryScore(attackerPiece, to, victim)
		score += captureHistScore / 4

		if shogi.PieceValue[attacker] < shogi.PieceValue[victim] {
			score += 10000
		}

		return score
	}

	if m.IsPromotion() {
		return GoodCaptureBase - 1000 + int(pos.PieceAt(from).Type())*100
	}

	if m == mo.killers[ply][0] {
		return KillerScore1
	}
	if m == mo.killers[ply][1] {
		return KillerScore2
	}

	return mo.history[from][to]
}

// SortMoves sorts moves by their scores (descending).
func SortMoves(moves *shogi.MoveList, scores []int) {
	n := moves.Len()
	for i := 0; i < n-1; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if scores[j] > scores[best] {
				best = j
			}
		}
		if best != i {
			moves.Swap(i, best)
			scores[i], scores[best] = scores[best], scores[i]
		}
	}
}

// PickMove selects the best remaining move and moves it to position index.
func PickMove(moves *shogi.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers adds a killer move at the given ply.
func (mo *MoveOrderer) UpdateKillers(m shogi.Move, ply int) {
	if ply >= MaxPly {
		return
	}
	if mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory updates the history score for a move.
func (mo *MoveOrderer) UpdateHistory(m shogi.Move, depth int, isGood bool) {
	from := historyFrom(m)
	to := int(m.To())

	bonus := depth * depth
	if isGood {
		mo.history[from][to] += bonus
		if mo.history[from][to] > 400000 {
			for i := range mo.history {
				for j := range mo.history[i] {
					mo.history[i][j] /= 2
				}
			}
		}
	} else {
		mo.history[from][to] -= bonus
		if mo.history[from][to] < -400000 {
			mo.history[from][to] = -400000
		}
	}
}

// UpdateCounterMove updates the counter move table.
func (mo *MoveOrderer) UpdateCounterMove(prevMove, counterMove shogi.Move, pos *shogi.Position) {
	if prevMove == shogi.NoMove {
		return
	}
	piece := pos.PieceAt(prevMove.To())
	if piece == shogi.NoPiece {
		return
	}
	mo.counterMoves[piece][prevMove.To()] = counterMove
}

// GetCounterMove returns the counter move for a previous move.
func (mo *MoveOrderer) GetCounterMove(prevMove shogi.Move, pos *shogi.Position) shogi.Move {
	if prevMove == shogi.NoMove {
		return shogi.NoMove
	}
	piece := pos.PieceAt(prevMove.To())
	if piece == shogi.NoPiece {
		return shogi.NoMove
	}
	return mo.counterMoves[piece][prevMove.To()]
}

// GetHistoryScore returns the history score for a move.
func (mo *MoveOrderer) GetHistoryScore(m shogi.Move) int {
	return mo.history[historyFrom(m)][m.To()]
}

// UpdateCaptureHistory updates the capture history for a move.
func (mo *MoveOrderer) UpdateCaptureHistory(attackerPiece shogi.Piece, toSq shogi.Square, capturedType shogi.PieceType, depth int, isGood bool) {
	if attackerPiece == shogi.NoPiece || capturedType >= shogi.King {
		return
	}
	bonus := depth * depth
	if isGood {
		mo.captureHistory[attackerPiece][toSq][capturedType] += bonus
		if mo.captureHistory[attackerPiece][toSq][capturedType] > 400000 {
			mo.scaleCaptureHistory()
		}
	} else {
		mo.captureHistory[attackerPiece][toSq][capturedType] -= bonus
		if mo.captureHistory[attackerPiece][toSq][capturedType] < -400000 {
			mo.captureHistory[attackerPiece][toSq][capturedType] = -400000
		}
	}
}

func (mo *MoveOrderer) scaleCaptureHistory() {
	for i := range mo.captureHistory {
		for j := range mo.captureHistory[i] {
			for k := range mo.captureHistory[i][j] {
				mo.captureHistory[i][j][k] /= 2
			}
		}
	}
}

// GetCaptureHistoryScore returns the capture history score for a capture move.
func (mo *MoveOrderer) GetCaptureHistoryScore(attackerPiece shogi.Piece, toSq shogi.Square, capturedType shogi.PieceType) int {
	if attackerPiece == shogi.NoPiece || capturedType >= shogi.King {
		return 0
	}
	return mo.captureHistory[attackerPiece][toSq][capturedType]
}

// UpdateCountermoveHistory updates the countermove history for a quiet move.
func (mo *MoveOrderer) UpdateCountermoveHistory(prevMove, goodMove shogi.Move, prevPiece, movePiece shogi.Piece, depth int, isGood bool) {
	if prevMove == shogi.NoMove || prevPiece == shogi.NoPiece || movePiece == shogi.NoPiece {
		return
	}
	prevTo := prevMove.To()
	moveTo := goodMove.To()
	bonus := depth * depth

	if isGood {
		mo.countermoveHistory[prevPiece][prevTo][movePiece][moveTo] += bonus
		if mo.countermoveHistory[prevPiece][prevTo][movePiece][moveTo] > 400000 {
			mo.scaleCountermoveHistory()
		}
	} else {
		mo.countermoveHistory[prevPiece][prevTo][movePiece][moveTo] -= bonus
		if mo.countermoveHistory[prevPiece][prevTo][movePiece][moveTo] < -400000 {
			mo.countermoveHistory[prevPiece][prevTo][movePiece][moveTo] = -400000
		}
	}
}

func (mo *MoveOrderer) scaleCountermoveHistory() {
	for i := range mo.countermoveHistory {
		for j := range mo.countermoveHistory[i] {
			for k := range mo.countermoveHistory[i][j] {
				for l := range mo.countermoveHistory[i][j][k] {
					mo.countermoveHistory[i][j][k][l] /= 2
				}
			}
		}
	}
}

// GetCountermoveHistoryScore returns the CMH score for a move given the previous move.
func (mo *MoveOrderer) GetCountermoveHistoryScore(prevMove shogi.Move, prevPiece, movePiece shogi.Piece, moveTo shogi.Square) int {
	if prevMove == shogi.NoMove || prevPiece == shogi.NoPiece || movePiece == shogi.NoPiece {
		return 0
	}
	return mo.countermoveHistory[prevPiece][prevMove.To()][movePiece][moveTo]
}

// GetContinuationHistoryTable returns the continuation-history slab keyed
// by the move (piece, to) that a following move would chain off of.
// Ported from Stockfish's ContinuationHistory[piece][to] lookup; the
// definition was missing from the teacher's retrieved sources even
// though worker.go exercises it extensively, so it is reconstructed here
// from its call sites' documented behavior.
func (mo *MoveOrderer) GetContinuationHistoryTable(piece shogi.Piece, to shogi.Square) *PieceToHistory {
	if piece == shogi.NoPiece || !to.IsValid() {
		return nil
	}
	return &mo.continuationHistory[piece][to]
}

// UpdateContinuationHistory updates the continuation history entry
// chaining (prevPiece, prevTo) -> (piece, to), scaled by depth and
// plyBack (further-back plies get a smaller weight, matching
// Stockfish's update_continuation_histories weighting).
func (mo *MoveOrderer) UpdateContinuationHistory(prevPiece shogi.Piece, prevTo shogi.Square, piece shogi.Piece, to shogi.Square, depth, plyBack int, isGood bool) {
	if prevPiece == shogi.NoPiece || piece == shogi.NoPiece {
		return
	}
	slab := &mo.continuationHistory[prevPiece][prevTo]
	bonus := depth * depth / plyBack
	if isGood {
		slab[piece][to] += bonus
		if slab[piece][to] > 400000 {
			for p := range slab {
				for s := range slab[p] {
					slab[p][s] /= 2
				}
			}
		}
	} else {
		slab[piece][to] -= bonus
		if slab[piece][to] < -400000 {
			slab[piece][to] = -400000
		}
	}
}

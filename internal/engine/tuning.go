package engine

import "github.com/SH11235/rshogi-sub004/internal/shogi"

// Search feature switches, per spec §4.4's pruning/extension step list.
// Each gates one heuristic so it can be disabled wholesale (e.g. for
// search-stability debugging) without touching the call sites.
const (
	EnableThreatExt      = true
	EnableHindsightDepth = true
	EnableRFP            = true
	EnableRazoring       = true
	EnableNMP            = true
	EnableProbcut        = true
	EnableMulticut       = true
	EnableFutilityPruning = true
	EnableSingularExt    = true
	EnableSEEPruning     = true
	EnableLMP            = true
	EnableHistoryPruning = true
)

// Threat extension: a quiet move that escapes a serious threat is extended
// one ply at shallow remaining depth, per spec §4.4 step 4.
const (
	threatExtensionMinDepth = 3
	threatExtensionThreshold = shogi.PieceValue[shogi.Silver]
)

// probcutDepth is the minimum remaining depth at which ProbCut's shallow
// verification search is trusted (spec §4.4 step 9).
const probcutDepth = 5

// Multicut: if multicutMoves of the first moves searched at reduced depth
// each fail high, at least multicutRequired of them failing high is taken
// as evidence the node itself fails high without searching the rest.
const (
	multicutDepth    = 6
	multicutMoves    = 6
	multicutRequired = 3
)

// lmpThreshold[depth] bounds how many quiet moves are tried at shallow
// remaining depth before late-move pruning skips the rest (spec §4.4
// step 11). Index 0 unused; values grow roughly quadratically like
// Stockfish's late_move_count table.
var lmpThreshold = [8]int{0, 6, 9, 14, 21, 30, 41, 54}

// historyPruningThreshold is the history-score floor, the same at every
// depth where history pruning applies, that a quiet move must clear to
// avoid history pruning (spec §4.4 step 12).
const historyPruningThreshold = -2000

// lazyEvalMargin bounds quiescence delta pruning, scaled off a rook's
// value the way the teacher scales off a queen's.
const lazyEvalMargin = shogi.PieceValue[shogi.Rook]

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

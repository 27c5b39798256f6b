// Package engine implements the shogi search engine: iterative-deepening
// PVS, transposition table, move ordering heuristics and LazySMP
// coordination.
package engine

import "github.com/SH11235/rshogi-sub004/internal/shogi"

// MateScore anchors the reserved mate-score band (spec §4.2): a forced
// mate in n plies scores MateScore-n; anything outside
// [-MateScore+MaxPly, MateScore-MaxPly] is always a mate score.
const MateScore = 29000

// MaxPly bounds search depth and the per-worker SearchStack/history arrays.
const MaxPly = 128

// EvaluateMaterial returns the simple piece-value-sum evaluator (spec
// §4.2's "Material" variant), side-to-move relative.
func EvaluateMaterial(pos *shogi.Position) int {
	score := pos.Material()
	if pos.SideToMove == shogi.White {
		score = -score
	}
	return score
}

// EvaluateWithMaterialCache wraps EvaluateMaterial with the material-sum
// cache (matehash.go), used as the default evaluator when NNUE is
// disabled or has no loaded weights.
func EvaluateWithMaterialCache(pos *shogi.Position, cache *MaterialCache) int {
	if cache != nil {
		if score, ok := cache.Probe(pos.Hash); ok {
			return score
		}
	}
	score := EvaluateMaterial(pos)
	if cache != nil {
		cache.Store(pos.Hash, score)
	}
	return score
}

// IsMateScore reports whether score lies in the reserved mate band.
func IsMateScore(score int) bool {
	return score <= -MateScore+MaxPly || score >= MateScore-MaxPly
}

package engine

import (
	"math"
	"sync/atomic"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// lmrReductions precomputes late-move-reduction amounts from the
// Stockfish formula: 21.46 * log(depth) * log(moveCount) / 1024.
var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrReductions[d][m] = int(21.46 * math.Log(float64(d)) * math.Log(float64(m)) / 1024.0)
		}
	}
}

// nnueEvaluator is the minimal surface a NNUE network needs to expose to
// the search: a position-relative score, and an accumulator stack that
// mirrors the search's make/unmake move stack.
type nnueEvaluator interface {
	Evaluate(pos *shogi.Position) int
	Push()
	Pop()
	Reset()
}

// SearchStack stores per-ply search state for continuation history
// tracking, ported from Stockfish's Stack structure.
type SearchStack struct {
	currentMove          shogi.Move
	movedPiece           shogi.Piece
	moveTo               shogi.Square
	continuationHistory  *PieceToHistory
	statScore            int
	reduction            int
	cutoffCnt            int
}

// Worker runs one LazySMP search lane: its own position copy, move
// ordering state and search stacks, sharing the transposition table,
// shared history and correction history with its sibling workers.
type Worker struct {
	id int

	pos     *shogi.Position
	orderer *MoveOrderer

	nodes    uint64
	pv       PVTable
	seldepth int // deepest ply reached this search, incl. quiescence

	undoStack   [MaxPly]shogi.UndoInfo
	evalStack   [MaxPly]int
	searchStack [MaxPly]SearchStack

	// posHistoryBuffer holds root game history plus this search's visited
	// hashes for repetition detection; sized for a long game (640) plus a
	// full search line (MaxPly).
	posHistoryBuffer [768]uint64
	posHistoryLen    int
	rootPosHashes    []uint64

	excludedRootMoves []shogi.Move

	tt            *TranspositionTable
	materialCache *MaterialCache
	sharedHistory *SharedHistory
	corrHistory   *CorrectionHistory
	stopFlag      *atomic.Bool

	useNNUE  bool
	nnueEval nnueEvaluator

	debug bool

	resultCh chan<- WorkerResult

	depth int

	// optimism mirrors Stockfish evaluate.cpp's running-average material
	// scaling term, indexed by color.
	optimism [2]int
	avgScore int

	// rootDelta is the root aspiration window's width, used to scale LMR.
	rootDelta int

	// nmpMinPly disables null-move pruning until ply exceeds it, set while
	// a post-cutoff NMP verification search is in flight so that search
	// can't itself null-move its way to a false cutoff.
	nmpMinPly int
}

// WorkerResult reports one depth's completed search from a worker. Bound
// records whether Score is an exact value or an aspiration-window
// fail-high/fail-low bound, the distinction the LazySMP coordinator's
// result-combine rule uses to decide whether a helper's line is trusted
// enough to supplement the primary's.
type WorkerResult struct {
	WorkerID int
	Depth    int
	SelDepth int
	Score    int
	Bound    TTFlag
	Move     shogi.Move
	PV       []shogi.Move
	Nodes    uint64
}

// NewWorker creates a new search worker.
func NewWorker(id int, tt *TranspositionTable, materialCache *MaterialCache, sharedHistory *SharedHistory, stopFlag *atomic.Bool) *Worker {
	return &Worker{
		id:            id,
		orderer:       NewMoveOrderer(),
		tt:            tt,
		materialCache: materialCache,
		sharedHistory: sharedHistory,
		corrHistory:   NewCorrectionHistory(),
		stopFlag:      stopFlag,
	}
}

// EnableNNUE wires a loaded network into this worker; nil disables it.
func (w *Worker) EnableNNUE(net nnueEvaluator) {
	w.nnueEval = net
	w.useNNUE = net != nil
}

// SetUseNNUE toggles NNUE evaluation on or off without discarding an
// already-loaded network, so the engine can flip back to material-only
// evaluation mid-session (e.g. the UCI-style "setoption" equivalent).
func (w *Worker) SetUseNNUE(use bool) {
	w.useNNUE = use && w.nnueEval != nil
}

// ID returns the worker's ID.
func (w *Worker) ID() int {
	return w.id
}

// Nodes returns the number of nodes searched by this worker.
func (w *Worker) Nodes() uint64 {
	return w.nodes
}

// SelDepth returns the deepest ply reached so far this search.
func (w *Worker) SelDepth() int {
	return w.seldepth
}

// Reset resets the worker for a new search.
func (w *Worker) Reset() {
	w.nodes = 0
	w.seldepth = 0
	w.orderer.Clear()
	w.avgScore = -Infinity
	w.optimism[0] = 0
	w.optimism[1] = 0
}

// UpdateOptimism recalculates the per-color optimism term from avgScore,
// ported from Stockfish's iterative deepening loop. Call once per depth,
// before the search at that depth begins.
func (w *Worker) UpdateOptimism() {
	avg := w.avgScore
	if avg == -Infinity {
		w.optimism[0] = 0
		w.optimism[1] = 0
		return
	}

	us := int(shogi.Black)
	if w.pos.SideToMove == shogi.White {
		us = int(shogi.White)
	}

	w.optimism[us] = (142 * avg) / (abs(avg) + 91)
	w.optimism[1-us] = -w.optimism[us]
}

// UpdateAvgScore folds score into the running average used by UpdateOptimism.
func (w *Worker) UpdateAvgScore(score int) {
	if w.avgScore == -Infinity {
		w.avgScore = score
	} else {
		w.avgScore = (score + w.avgScore) / 2
	}
}

// SetRootHistory records the game's position history for repetition
// detection, ahead of the position currently being searched.
func (w *Worker) SetRootHistory(hashes []uint64) {
	w.rootPosHashes = make([]uint64, len(hashes))
	copy(w.rootPosHashes, hashes)
}

// SetResultChannel sets the channel SearchDepth sends results on.
func (w *Worker) SetResultChannel(ch chan<- WorkerResult) {
	w.resultCh = ch
}

// SetExcludedMoves sets the root moves to skip (MultiPV's already-reported lines).
func (w *Worker) SetExcludedMoves(moves []shogi.Move) {
	w.excludedRootMoves = moves
}

// InitSearch prepares the worker to search pos, which must be a dedicated
// copy owned by this worker alone.
func (w *Worker) InitSearch(pos *shogi.Position) {
	w.pos = pos

	if w.nnueEval != nil {
		w.nnueEval.Reset()
	}

	rootLen := len(w.rootPosHashes)
	if rootLen > 640 {
		copy(w.posHistoryBuffer[:640], w.rootPosHashes[rootLen-640:])
		rootLen = 640
	} else {
		copy(w.posHistoryBuffer[:rootLen], w.rootPosHashes)
	}
	w.posHistoryBuffer[rootLen] = w.pos.Hash
	w.posHistoryLen = rootLen + 1
}

// Pos returns the worker's current position.
func (w *Worker) Pos() *shogi.Position {
	return w.pos
}

// SearchDepth runs the search at depth and, if a result channel is set,
// reports the outcome.
func (w *Worker) SearchDepth(depth, alpha, beta int) (shogi.Move, int) {
	w.depth = depth

	score := w.negamax(depth, 0, alpha, beta, shogi.NoMove, shogi.NoMove, false)

	var bestMove shogi.Move
	if w.pv.length[0] > 0 {
		bestMove = w.pv.moves[0][0]
	}

	if bestMove == shogi.NoMove && !w.stopFlag.Load() {
		moves := w.pos.GenerateLegalMoves()
		if moves.Len() > 0 {
			bestMove = moves.Get(0)
		}
	}

	bound := TTExact
	if score <= alpha {
		bound = TTUpperBound
	} else if score >= beta {
		bound = TTLowerBound
	}

	if w.resultCh != nil && !w.stopFlag.Load() {
		pv := make([]shogi.Move, w.pv.length[0])
		for i := 0; i < w.pv.length[0]; i++ {
			pv[i] = w.pv.moves[0][i]
		}
		w.resultCh <- WorkerResult{
			WorkerID: w.id,
			Depth:    depth,
			SelDepth: w.seldepth,
			Score:    score,
			Bound:    bound,
			Move:     bestMove,
			PV:       pv,
			Nodes:    w.nodes,
		}
	}

	return bestMove, score
}

// evaluate returns the static evaluation of the current position, NNUE if
// loaded, else the cached material sum.
func (w *Worker) evaluate() int {
	if w.useNNUE && w.nnueEval != nil {
		return w.nnueEval.Evaluate(w.pos)
	}
	return EvaluateWithMaterialCache(w.pos, w.materialCache)
}

func (w *Worker) stopped() bool {
	return w.stopFlag.Load()
}

// GetPV returns the principal variation from the last search.
func (w *Worker) GetPV() []shogi.Move {
	pv := make([]shogi.Move, w.pv.length[0])
	for i := 0; i < w.pv.length[0]; i++ {
		pv[i] = w.pv.moves[0][i]
	}
	return pv
}

func (w *Worker) isExcludedRootMove(move shogi.Move) bool {
	for _, excluded := range w.excludedRootMoves {
		if move == excluded {
			return true
		}
	}
	return false
}

// isDraw checks for repetition. Shogi's sennichite rule is enforced by the
// host (spec §4.2/§13): this worker-local check exists only so a search
// line that revisits a position doesn't spin rather than scoring it flat.
func (w *Worker) isDraw() bool {
	if w.posHistoryLen == 0 {
		return false
	}
	currentHash := w.pos.Hash
	count := 0
	for i := 0; i < w.posHistoryLen; i++ {
		if w.posHistoryBuffer[i] == currentHash {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}

func (w *Worker) nnuePush() {
	if w.nnueEval != nil {
		w.nnueEval.Push()
	}
}

func (w *Worker) nnuePop() {
	if w.nnueEval != nil {
		w.nnueEval.Pop()
	}
}

// negamax implements PVS/negamax with alpha-beta pruning. excludedMove, if
// not shogi.NoMove, is skipped (singular-extension verification search).
// cutNode is true when this node is expected to fail high.
func (w *Worker) negamax(depth, ply int, alpha, beta int, prevMove, excludedMove shogi.Move, cutNode bool) int {
	if ply >= MaxPly-1 {
		return w.evaluate()
	}

	if w.nodes&4095 == 0 && w.stopFlag.Load() {
		return 0
	}

	w.nodes++
	if ply > w.seldepth {
		w.seldepth = ply
	}

	w.pv.length[ply] = ply

	if ply > 0 && w.isDraw() {
		return 0
	}

	// Mate-distance pruning (spec §4.4 step 2): a shorter mate than either
	// bound already describes can't change the result at this node.
	if ply > 0 {
		alpha = maxInt(alpha, -MateScore+ply)
		beta = minInt(beta, MateScore-ply-1)
		if alpha >= beta {
			return alpha
		}
	}

	var ttMove shogi.Move
	ttPv := false
	ttEntry, found := w.tt.Probe(w.pos.Hash)
	if found {
		ttMove = shogi.Move(ttEntry.Move)
		ttPv = ttEntry.PV

		// A hash collision can hand back a move belonging to an unrelated
		// position; validate before trusting it (Stockfish movepick.cpp).
		if ttMove != shogi.NoMove && !w.pos.PseudoLegal(ttMove) {
			ttMove = shogi.NoMove
		}

		ttCutoffAllowed := ply > 0 || !w.isExcludedRootMove(ttMove)

		if ttEntry.Depth >= depth && ttCutoffAllowed {
			score := AdjustScoreFromTT(ttEntry.Score, ply)
			switch ttEntry.Flag {
			case TTExact:
				if ply == 0 && ttMove != shogi.NoMove {
					w.pv.moves[0][0] = ttMove
					w.pv.length[0] = 1
				}
				return score
			case TTLowerBound:
				if score > alpha {
					alpha = score
				}
			case TTUpperBound:
				if score < beta {
					beta = score
				}
			}
			if alpha >= beta {
				if ply == 0 && ttMove != shogi.NoMove {
					w.pv.moves[0][0] = ttMove
					w.pv.length[0] = 1
				}
				return score
			}
		}
	}

	if depth <= 0 {
		return w.quiescence(ply, alpha, beta)
	}

	inCheck := w.pos.InCheck()

	// Internal Iterative Reduction: with no TT move to trust, shave depth
	// instead of a recursive probe (avoids undoStack[ply] reentrancy).
	if depth >= 4 && ttMove == shogi.NoMove && !inCheck {
		depth -= 2
	}

	extension := 0
	if inCheck {
		extension = 1
	}

	if EnableThreatExt && extension == 0 && depth >= threatExtensionMinDepth && ply > 0 {
		if w.detectSeriousThreats() {
			extension = 1
		}
	}

	rawEval := w.evaluate()
	correction := w.corrHistory.Get(w.pos)
	staticEval := rawEval + correction
	w.evalStack[ply] = staticEval

	improving := false
	if ply >= 2 {
		improving = staticEval > w.evalStack[ply-2]
	}

	opponentWorsening := false
	if ply >= 1 {
		opponentWorsening = staticEval > -w.evalStack[ply-1]
	}

	if EnableHindsightDepth && ply >= 1 {
		priorReduction := w.searchStack[ply-1].reduction
		if priorReduction >= 3 && !opponentWorsening {
			depth++
		}
		if priorReduction >= 2 && depth >= 2 {
			evalSum := staticEval + w.evalStack[ply-1]
			if evalSum > 173 {
				depth--
			}
		}
	}

	if ply+2 < MaxPly {
		w.searchStack[ply+2].cutoffCnt = 0
	}

	if EnableRFP && !inCheck && depth <= 6 && ply > 0 && !ttPv {
		rfpMargin := 80 * depth
		if !improving {
			rfpMargin -= 20
		}
		if staticEval-rfpMargin >= beta {
			return beta
		}
	}

	if EnableRazoring && depth <= 5 && !inCheck && ply > 0 && !ttPv {
		razorMargin := 485 + 281*depth*depth
		if staticEval+razorMargin <= alpha {
			score := w.quiescence(ply, alpha, beta)
			if score <= alpha {
				return score
			}
		}
	}

	if EnableNMP && !inCheck && depth >= 3 && ply > 0 && !ttPv && ply >= w.nmpMinPly && w.pos.HasNonPawnMaterial() {
		R := 7 + depth/3
		if R > depth-1 {
			R = depth - 1
		}

		nullUndo := w.pos.MakeNullMove()
		nullScore := -w.negamax(depth-1-R, ply+1, -beta, -beta+1, shogi.NoMove, shogi.NoMove, !cutNode)
		w.pos.UnmakeNullMove(nullUndo)

		if nullScore >= beta {
			if nullScore > MateScore-MaxPly {
				nullScore = beta
			}
			if depth < 12 {
				return nullScore
			}
			// Verification search with NMP disabled, to rule out
			// zugzwang positions where passing looked good only because
			// every actual move is worse (Stockfish search.cpp:900-912).
			savedMinPly := w.nmpMinPly
			w.nmpMinPly = ply + (depth-R)*3/4
			verifyScore := w.negamax(depth-R, ply, beta-1, beta, prevMove, shogi.NoMove, false)
			w.nmpMinPly = savedMinPly
			if verifyScore >= beta {
				return nullScore
			}
		}
	}

	if EnableProbcut && depth >= probcutDepth && !inCheck && ply > 0 && abs(beta) < MateScore-100 {
		adaptiveMargin := 235
		if improving {
			adaptiveMargin -= 63
		}
		probcutBeta := beta + adaptiveMargin

		evalDiff := staticEval - beta
		probcutSearchDepth := depth - 5 - evalDiff/315
		if probcutSearchDepth < 1 {
			probcutSearchDepth = 1
		}
		if probcutSearchDepth > depth {
			probcutSearchDepth = depth
		}

		captures := w.pos.GenerateCaptures()
		for i := 0; i < captures.Len(); i++ {
			capture := captures.Get(i)
			if w.pos.SEE(capture) < 0 {
				continue
			}

			w.nnuePush()
			undo := w.pos.MakeMove(capture)
			score := -w.negamax(probcutSearchDepth, ply+1, -probcutBeta, -probcutBeta+1, capture, shogi.NoMove, !cutNode)
			w.pos.UnmakeMove(capture, undo)
			w.nnuePop()

			if score >= probcutBeta {
				return score
			}
		}
	}

	if EnableMulticut && depth >= multicutDepth && !inCheck && ply > 0 && abs(beta) < MateScore-100 {
		mcMoves := w.pos.GenerateLegalMoves()
		mcScores := w.orderer.ScoreMovesWithCounter(w.pos, mcMoves, ply, ttMove, prevMove)

		mcCutoffs := 0
		mcSearched := 0
		mcSearchDepth := depth - 4
		if mcSearchDepth < 1 {
			mcSearchDepth = 1
		}

		for i := 0; i < mcMoves.Len() && mcSearched < multicutMoves; i++ {
			PickMove(mcMoves, mcScores, i)
			move := mcMoves.Get(i)

			w.nnuePush()
			undo := w.pos.MakeMove(move)
			mcSearched++

			score := -w.negamax(mcSearchDepth, ply+1, -beta, -beta+1, move, shogi.NoMove, !cutNode)
			w.pos.UnmakeMove(move, undo)
			w.nnuePop()

			if score >= beta {
				mcCutoffs++
				if mcCutoffs >= multicutRequired {
					return beta
				}
			}
		}
	}

	pruneQuietMoves := false
	if EnableFutilityPruning && depth <= 5 && !inCheck && ply > 0 {
		futilityMargin := []int{0, 200, 300, 500, 700, 900}
		if staticEval+futilityMargin[depth] <= alpha {
			pruneQuietMoves = true
		}
	}

	singularExtension := 0
	if EnableSingularExt && depth >= 6 && ttMove != shogi.NoMove && excludedMove == shogi.NoMove && found {
		if ttEntry.Depth >= depth-3 && (ttEntry.Flag == TTLowerBound || ttEntry.Flag == TTExact) {
			isPvNode := alpha < beta-1
			margin := 53
			if ttPv && !isPvNode {
				margin = 128
			}
			ttValue := AdjustScoreFromTT(ttEntry.Score, ply)
			singularBeta := ttValue - margin*depth/60

			singularDepth := (depth - 1) / 2
			singularScore := w.negamax(singularDepth, ply, singularBeta-1, singularBeta, prevMove, ttMove, cutNode)

			if singularScore < singularBeta {
				ttCapture := ttMove.IsCapture(w.pos)

				doubleMargin := -4
				if isPvNode {
					doubleMargin += 199
				}
				if !ttCapture {
					doubleMargin -= 201
				}

				tripleMargin := 73
				if isPvNode {
					tripleMargin += 302
				}
				if !ttCapture {
					tripleMargin -= 248
				}
				if ttPv {
					tripleMargin += 90
				}

				singularExtension = 1
				if singularScore < singularBeta-doubleMargin {
					singularExtension = 2
				}
				if singularScore < singularBeta-tripleMargin {
					singularExtension = 3
				}
			} else {
				ttValue := AdjustScoreFromTT(ttEntry.Score, ply)
				if ttValue >= beta {
					singularExtension = -3
				} else if cutNode {
					singularExtension = -2
				}
			}
		}
	}

	moves := w.pos.GenerateLegalMoves()

	if moves.Len() == 0 {
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	scores := w.orderer.ScoreMovesWithCounter(w.pos, moves, ply, ttMove, prevMove)

	bestScore := -Infinity
	bestMove := shogi.NoMove
	flag := TTUpperBound
	movesSearched := 0

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if ply == 0 && w.isExcludedRootMove(move) {
			continue
		}
		if move == excludedMove {
			continue
		}

		isCapture := move.IsCapture(w.pos)
		isPromotion := move.IsPromotion()

		if EnableFutilityPruning && pruneQuietMoves && !isCapture && !isPromotion && bestMove != shogi.NoMove {
			continue
		}

		if EnableSEEPruning && isCapture && depth <= 7 && !inCheck && movesSearched > 0 {
			seeThreshold := -20 * depth
			if w.pos.SEE(move) < seeThreshold {
				continue
			}
		}

		if EnableLMP && depth <= 7 && !inCheck && movesSearched > 0 && !isCapture && !isPromotion && move != ttMove {
			threshold := lmpThreshold[depth]
			if !improving {
				threshold = threshold * 2 / 3
			}
			if movesSearched >= threshold {
				continue
			}
		}

		if EnableHistoryPruning && depth <= 3 && !inCheck && movesSearched > 0 && !isCapture && !isPromotion && move != ttMove {
			if w.orderer.GetHistoryScore(move) < historyPruningThreshold {
				continue
			}
		}

		var movingPiece shogi.Piece
		if move.IsDrop() {
			movingPiece = shogi.NewPiece(move.DropPiece(), w.pos.SideToMove)
		} else {
			movingPiece = w.pos.PieceAt(move.From())
		}
		moveTo := move.To()

		w.nnuePush()
		w.undoStack[ply] = w.pos.MakeMove(move)

		w.searchStack[ply].currentMove = move
		w.searchStack[ply].movedPiece = movingPiece
		w.searchStack[ply].moveTo = moveTo
		w.searchStack[ply].continuationHistory = w.orderer.GetContinuationHistoryTable(movingPiece, moveTo)

		w.posHistoryBuffer[w.posHistoryLen] = w.pos.Hash
		w.posHistoryLen++
		movesSearched++

		var score int
		newDepth := depth - 1 + extension

		if move == ttMove && singularExtension != 0 {
			newDepth += singularExtension
		}

		if movesSearched > 4 && depth >= 3 && !inCheck && !isCapture && !isPromotion {
			d := depth
			if d > 63 {
				d = 63
			}
			m := movesSearched
			if m > 63 {
				m = 63
			}
			reduction := lmrReductions[d][m]

			if w.rootDelta > 0 && w.rootDelta < Infinity {
				delta := beta - alpha
				reduction -= delta * 608 / w.rootDelta
			}

			if !improving {
				reduction++
			}
			if move == ttMove {
				reduction -= 2
			}
			if ttPv {
				reduction--
			}

			if cutNode {
				extra := 3372
				if ttMove == shogi.NoMove {
					extra += 997
				}
				reduction += extra / 1024
			}

			isPvNode := alpha < beta-1
			allNode := !isPvNode && !cutNode
			if allNode && depth > 2 {
				reduction += reduction / (depth + 1)
			}

			if ply+1 < MaxPly {
				cutoffCnt := w.searchStack[ply+1].cutoffCnt
				if cutoffCnt > 1 {
					extra := 120
					if cutoffCnt > 2 {
						extra += 1024
					}
					if cutoffCnt > 3 {
						extra += 100
					}
					if allNode {
						extra += 1024
					}
					reduction += extra / 1024
				}
			}

			from := historyFrom(move)
			to := int(move.To())
			localHist := w.orderer.history[from][to]
			sharedHist := w.sharedHistory.Get(from, to)
			mainHist := (localHist + sharedHist) / 2

			contHist0 := 0
			contHist1 := 0
			if ply >= 1 && w.searchStack[ply-1].continuationHistory != nil {
				contHist0 = w.searchStack[ply-1].continuationHistory[movingPiece][moveTo]
			}
			if ply >= 2 && w.searchStack[ply-2].continuationHistory != nil {
				contHist1 = w.searchStack[ply-2].continuationHistory[movingPiece][moveTo]
			}

			statScore := 2*mainHist + contHist0 + contHist1
			w.searchStack[ply].statScore = statScore

			reduction -= statScore * 850 / 8192
			reduction -= movesSearched * 73 / 1024

			if reduction < 1 {
				reduction = 1
			}

			reducedDepth := newDepth - reduction
			if reducedDepth < 1 {
				reducedDepth = 1
			}

			w.searchStack[ply].reduction = reduction

			score = -w.negamax(reducedDepth, ply+1, -alpha-1, -alpha, move, shogi.NoMove, !cutNode)

			if score > alpha {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, move, shogi.NoMove, false)
			}
		} else if movesSearched == 1 {
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, move, shogi.NoMove, false)
		} else {
			score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, move, shogi.NoMove, !cutNode)
			if score > alpha && score < beta {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, move, shogi.NoMove, false)
			}
		}

		w.posHistoryLen--
		w.pos.UnmakeMove(move, w.undoStack[ply])
		w.nnuePop()

		if w.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				flag = TTExact

				w.pv.moves[ply][ply] = move
				for j := ply + 1; j < w.pv.length[ply+1]; j++ {
					w.pv.moves[ply][j] = w.pv.moves[ply+1][j]
				}
				w.pv.length[ply] = w.pv.length[ply+1]
			}
		}

		if score >= beta {
			isPvNode := alpha < beta-1
			if extension < 2 || isPvNode {
				w.searchStack[ply].cutoffCnt++
			}

			if ply == 0 && bestMove != shogi.NoMove {
				w.pv.moves[0][0] = bestMove
				w.pv.length[0] = 1
			}

			w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, uint32(bestMove))

			if isCapture {
				attackerPiece := movingPiece
				capturedType := shogi.NoPieceType
				capturedPiece := w.pos.PieceAt(move.To())
				if capturedPiece != shogi.NoPiece {
					capturedType = capturedPiece.Type().Unpromoted()
				}
				w.orderer.UpdateCaptureHistory(attackerPiece, move.To(), capturedType, depth, true)
			} else {
				w.orderer.UpdateKillers(move, ply)
				w.orderer.UpdateHistory(move, depth, true)

				bonus := depth * depth
				w.sharedHistory.Update(historyFrom(move), int(move.To()), bonus)
				w.orderer.UpdateCounterMove(prevMove, move, w.pos)

				if prevMove != shogi.NoMove {
					prevPiece := w.pos.PieceAt(prevMove.To())
					w.orderer.UpdateCountermoveHistory(prevMove, move, prevPiece, movingPiece, depth, true)
				}

				w.updateContinuationHistories(ply, movingPiece, moveTo, depth, true)
			}

			return score
		}
	}

	if bestMove == shogi.NoMove && moves.Len() > 0 {
		bestMove = moves.Get(0)
		if bestScore == -Infinity {
			bestScore = alpha
		}
	}

	if flag == TTExact && !inCheck && depth >= 2 {
		w.corrHistory.Update(w.pos, bestScore, rawEval, depth)
	}

	isPV := flag == TTExact
	w.tt.StorePV(w.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, uint32(bestMove), isPV)

	return bestScore
}

// quiescence searches captures (and, if in check, evasions) to avoid the
// horizon effect at the end of the main search.
func (w *Worker) quiescence(ply int, alpha, beta int) int {
	return w.quiescenceInternal(ply, 0, alpha, beta)
}

func (w *Worker) quiescenceInternal(ply, qPly int, alpha, beta int) int {
	const maxQuiescencePly = 32
	if ply >= MaxPly || qPly > maxQuiescencePly {
		return w.evaluate()
	}

	if w.stopFlag.Load() {
		return 0
	}

	w.nodes++
	if ply > w.seldepth {
		w.seldepth = ply
	}
	originalAlpha := alpha

	var ttMove shogi.Move
	ttEntry, ttHit := w.tt.Probe(w.pos.Hash)
	if ttHit {
		ttMove = shogi.Move(ttEntry.Move)
		if ttMove != shogi.NoMove && !w.pos.PseudoLegal(ttMove) {
			ttMove = shogi.NoMove
		}
		if ttEntry.Depth >= 0 {
			score := AdjustScoreFromTT(ttEntry.Score, ply)
			switch ttEntry.Flag {
			case TTExact:
				return score
			case TTLowerBound:
				if score >= beta {
					return score
				}
			case TTUpperBound:
				if score <= alpha {
					return score
				}
			}
		}
	}

	inCheck := w.pos.InCheck()

	var standPat, bestValue int
	bestMove := shogi.NoMove

	if inCheck {
		bestValue = -MateScore + ply
		standPat = bestValue
	} else {
		lazyEval := EvaluateMaterial(w.pos)
		if lazyEval-lazyEvalMargin >= beta {
			return beta
		}
		if lazyEval+lazyEvalMargin <= alpha {
			return alpha
		}

		standPat = w.evaluate()
		bestValue = standPat

		if standPat >= beta {
			w.tt.Store(w.pos.Hash, 0, AdjustScoreToTT(standPat, ply), TTLowerBound, uint32(shogi.NoMove))
			return beta
		}

		if standPat > alpha {
			alpha = standPat
		}

		if standPat+lazyEvalMargin < alpha {
			return alpha
		}
	}

	var moves *shogi.MoveList
	if inCheck {
		moves = w.pos.GenerateLegalMoves()
	} else {
		moves = w.pos.GenerateCaptures()
	}

	scores := w.orderer.ScoreMoves(w.pos, moves, ply, ttMove)

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if !inCheck && move.IsCapture(w.pos) {
			captureValue := qsCaptureValue(w.pos, move)
			futilityBase := standPat + 351

			if standPat+captureValue+200 < alpha && !move.IsPromotion() {
				if captureValue+futilityBase > bestValue {
					bestValue = captureValue + futilityBase
				}
				continue
			}

			seeValue := w.pos.SEE(move)
			if seeValue < 0 {
				continue
			}

			if futilityBase+seeValue <= alpha {
				if futilityBase > bestValue {
					bestValue = futilityBase
				}
				continue
			}
		}

		w.nnuePush()
		undo := w.pos.MakeMove(move)

		score := -w.quiescenceInternal(ply+1, qPly+1, -beta, -alpha)
		w.pos.UnmakeMove(move, undo)
		w.nnuePop()

		if score > bestValue {
			bestValue = score
			bestMove = move

			if score > alpha {
				alpha = score
				if score >= beta {
					break
				}
			}
		}
	}

	if inCheck && bestValue == -MateScore+ply {
		return -MateScore + ply
	}

	var ttFlag TTFlag
	if bestValue >= beta {
		ttFlag = TTLowerBound
	} else if bestValue > originalAlpha {
		ttFlag = TTExact
	} else {
		ttFlag = TTUpperBound
	}
	w.tt.Store(w.pos.Hash, 0, AdjustScoreToTT(bestValue, ply), ttFlag, uint32(bestMove))

	return bestValue
}

// qsCaptureValue returns the material value of a capture, for QS pruning
// margins. Shogi promotion is a fixed transform of the moving piece's own
// type rather than a choice among pieces, so the promotion bonus compares
// the piece's promoted value to its base value directly.
func qsCaptureValue(pos *shogi.Position, move shogi.Move) int {
	var value int
	captured := pos.PieceAt(move.To())
	if captured != shogi.NoPiece {
		value = shogi.PieceValue[captured.Type()]
	}
	if move.IsPromotion() {
		pt := pos.PieceAt(move.From()).Type()
		value += shogi.PieceValue[pt.Promoted()] - shogi.PieceValue[pt]
	}
	return value
}

// detectSeriousThreats reports whether the opponent threatens to win
// material beyond threatExtensionThreshold on their next move: an
// undefended piece of ours under attack, or a rook/bishop attacked by a
// lesser piece (ported from the teacher's hanging-piece/major-piece scan,
// rebuilt on shogi.Position.AttackersTo since shogi has no per-piece-type
// attack-bitboard helpers).
func (w *Worker) detectSeriousThreats() bool {
	pos := w.pos
	us := pos.SideToMove
	them := us.Other()
	occ := pos.AllOccupied

	ourPieces := shogi.AndNot(pos.Occupied[us], shogi.SquareBB(pos.KingSquare[us]))
	for ourPieces.More() {
		sq := ourPieces.PopLSB()
		attackers := pos.AttackersTo(sq, occ)
		enemyAttackers := shogi.And(attackers, pos.Occupied[them])
		if !enemyAttackers.More() {
			continue
		}

		piece := pos.PieceAt(sq)
		if piece == shogi.NoPiece {
			continue
		}
		pt := piece.Type().Unpromoted()

		// A rook or bishop attacked by a lesser piece is a threat even
		// when defended.
		if pt == shogi.Rook || pt == shogi.Bishop {
			for lesser := enemyAttackers; lesser.More(); {
				if pos.PieceAt(lesser.PopLSB()).Value() < piece.Value() {
					return true
				}
			}
		}

		defenders := shogi.AndNot(shogi.And(attackers, pos.Occupied[us]), shogi.SquareBB(sq))
		if defenders.More() {
			continue
		}
		if shogi.PieceValue[pt] >= threatExtensionThreshold {
			return true
		}
		if pt == shogi.Rook || pt == shogi.Bishop {
			return true
		}
	}

	return false
}

// updateContinuationHistories updates continuation history for plies 1-6
// back, ported from Stockfish's update_continuation_histories.
func (w *Worker) updateContinuationHistories(ply int, piece shogi.Piece, toSq shogi.Square, depth int, isGood bool) {
	for plyBack := 1; plyBack <= 6; plyBack++ {
		targetPly := ply - plyBack
		if targetPly < 0 {
			break
		}

		ss := &w.searchStack[targetPly]
		if ss.currentMove == shogi.NoMove || ss.movedPiece == shogi.NoPiece {
			continue
		}

		w.orderer.UpdateContinuationHistory(ss.movedPiece, ss.moveTo, piece, toSq, depth, plyBack, isGood)
	}
}

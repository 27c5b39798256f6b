package engine

import (
	"log"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SH11235/rshogi-sub004/internal/kifu"
	"github.com/SH11235/rshogi-sub004/internal/nnue"
	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// NumWorkers is the number of parallel search workers (matches CPU cores).
var NumWorkers = runtime.GOMAXPROCS(0)

// SearchInfo contains information about the current search.
type SearchInfo struct {
	Depth    int
	SelDepth int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []shogi.Move
	HashFull int // Permille of hash table used
	MultiPV  int // 1-based PV index, for SearchMultiPV reporting
}

// SearchLimits specifies constraints on the search.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	Nodes    uint64        // Maximum nodes (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = no limit)
	Infinite bool          // Search until stopped
	MultiPV  int           // Number of principal variations to find (0 or 1 = single best move)
}

// SearchResult contains the result of a single PV search.
type SearchResult struct {
	Move     shogi.Move
	Score    int
	PV       []shogi.Move
	Depth    int
	SelDepth int
}

// Difficulty represents the engine's strength level.
type Difficulty int

const (
	Easy   Difficulty = iota // 3 ply, 500ms
	Medium                   // 7 ply, 1s
	Hard                     // Maximum strength (40 ply), 3s
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 1 * time.Second},
	Hard:   {Depth: 40, MoveTime: 3 * time.Second}, // Max strength (time-limited)
}

// Engine is the shogi search engine: a LazySMP coordinator over a pool of
// Workers sharing a transposition table, a shared history table and
// (optionally) a joseki book and an NNUE network.
type Engine struct {
	// Workers for parallel search
	workers       []*Worker
	materialCache *MaterialCache
	tt            *TranspositionTable
	sharedHistory *SharedHistory // Shared history for Lazy SMP
	stopFlag      atomic.Bool

	difficulty Difficulty
	book       *kifu.Book

	// Position history for repetition detection
	rootPosHashes []uint64

	// NNUE evaluation
	useNNUE bool
	nnueNet *nnue.Network // Shared weights (immutable after load)

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates a new shogi engine with the given transposition table
// size in MB.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	sharedHistory := NewSharedHistory()

	e := &Engine{
		tt:            tt,
		materialCache: NewMaterialCache(1),
		sharedHistory: sharedHistory,
		difficulty:    Medium,
		workers:       make([]*Worker, NumWorkers),
	}

	log.Printf("[Engine] Creating %d workers (GOMAXPROCS=%d)", NumWorkers, runtime.GOMAXPROCS(0))

	// Create workers, each with its own material cache for thread safety
	for i := 0; i < NumWorkers; i++ {
		workerCache := NewMaterialCache(1) // 1MB per worker
		e.workers[i] = NewWorker(i, tt, workerCache, sharedHistory, &e.stopFlag)
	}

	return e
}

// SetDifficulty sets the engine difficulty.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// SetNumWorkers resizes the LazySMP pool to n workers, sharing the
// existing transposition table and history. Takes effect on the next
// search; never call while a search is in flight.
func (e *Engine) SetNumWorkers(n int) {
	if n < 1 {
		n = 1
	}
	if n == len(e.workers) {
		return
	}

	workers := make([]*Worker, n)
	for i := 0; i < n; i++ {
		workerCache := NewMaterialCache(1)
		workers[i] = NewWorker(i, e.tt, workerCache, e.sharedHistory, &e.stopFlag)
		if e.useNNUE && e.nnueNet != nil {
			workers[i].EnableNNUE(nnue.NewEvaluatorForNetwork(e.nnueNet))
		}
	}
	e.workers = workers
	NumWorkers = n
}

// LoadBook loads a joseki book from this module's binary book format.
func (e *Engine) LoadBook(filename string) error {
	b, err := kifu.Load(filename)
	if err != nil {
		return err
	}
	e.book = b
	return nil
}

// SetBook sets the opening book.
func (e *Engine) SetBook(b *kifu.Book) {
	e.book = b
}

// HasBook returns true if an opening book is loaded.
func (e *Engine) HasBook() bool {
	return e.book != nil
}

// SetPositionHistory sets the position history for repetition detection.
// This should be called before Search() with hashes from the game's move
// history.
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.rootPosHashes = make([]uint64, len(hashes))
	copy(e.rootPosHashes, hashes)

	for _, w := range e.workers {
		w.SetRootHistory(hashes)
	}
}

// Search finds the best move for the given position.
func (e *Engine) Search(pos *shogi.Position) shogi.Move {
	limits := DifficultySettings[e.difficulty]
	return e.SearchWithLimits(pos, limits)
}

// SearchWithLimits finds the best move with specific search limits.
// Uses Lazy SMP with multiple workers searching in parallel.
func (e *Engine) SearchWithLimits(pos *shogi.Position, limits SearchLimits) shogi.Move {
	log.Printf("[Search] Received position with SideToMove=%v", pos.SideToMove)

	// Try opening book first
	if e.book != nil {
		if move, ok := e.book.Probe(pos); ok {
			return move
		}
	}

	// Reset for new search
	e.stopFlag.Store(false)
	e.tt.NewSearch()

	// Log evaluation mode
	if e.useNNUE && e.nnueNet != nil {
		log.Printf("[Engine] Starting search with NNUE evaluation")
	} else {
		log.Printf("[Engine] Starting search with material evaluation")
	}

	// Reset all workers
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	var bestMove shogi.Move
	var bestScore int
	var bestPV []shogi.Move
	var bestDepth int
	var bestSelDepth int
	var primaryDepth int

	// Determine maximum depth
	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	// Determine deadline
	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	// Create result channel
	resultCh := make(chan WorkerResult, NumWorkers*maxDepth)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go e.workerSearch(i, pos, maxDepth, resultCh, &wg)
	}

	// Collect results in a separate goroutine
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}

			// Result combine: worker 0 is the primary and its result is
			// always authoritative. A helper's snapshot only supplements
			// the combined line when it reaches equal-or-greater depth
			// with an Exact bound and the primary hasn't gotten there yet.
			if result.WorkerID == 0 && result.Depth > primaryDepth {
				primaryDepth = result.Depth
			}
			accept := result.WorkerID == 0 || (result.Bound == TTExact && result.Depth > primaryDepth)

			if result.Move != shogi.NoMove && accept {
				if result.Depth > bestDepth ||
					(result.Depth == bestDepth && (result.WorkerID == 0 || result.Score > bestScore)) {
					bestMove = result.Move
					bestScore = result.Score
					bestPV = result.PV
					bestDepth = result.Depth
					bestSelDepth = result.SelDepth

					if e.OnInfo != nil {
						elapsed := time.Since(startTime)
						e.OnInfo(SearchInfo{
							Depth:    bestDepth,
							SelDepth: bestSelDepth,
							Score:    bestScore,
							Nodes:    e.getTotalNodes(),
							Time:     elapsed,
							PV:       bestPV,
							HashFull: e.tt.HashFull(),
						})
					}

					// Early termination: found mate
					if bestScore > MateScore-100 || bestScore < -MateScore+100 {
						e.stopFlag.Store(true)
						break resultLoop
					}
				}
			}

			// Check time limit
			if !deadline.IsZero() && time.Now().After(deadline) {
				e.stopFlag.Store(true)
				break resultLoop
			}

			// Node limit check
			if limits.Nodes > 0 && e.getTotalNodes() >= limits.Nodes {
				e.stopFlag.Store(true)
				break resultLoop
			}

		case <-done:
			break resultLoop
		}
	}

	// Ensure all workers are stopped
	e.stopFlag.Store(true)
	<-done

	return bestMove
}

// SearchWithUCILimits finds the best move using USI-style time controls.
// Supports btime/wtime/binc/winc plus byoyomi for tournament time
// management via TimeManager.
func (e *Engine) SearchWithUCILimits(pos *shogi.Position, limits UCILimits, ply int) shogi.Move {
	// Try opening book first
	if e.book != nil {
		if move, ok := e.book.Probe(pos); ok {
			return move
		}
	}

	// Initialize time manager
	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	// Reset for new search
	e.stopFlag.Store(false)
	e.tt.NewSearch()

	// Reset all workers
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	var bestMove shogi.Move
	var bestScore int
	var bestPV []shogi.Move
	var bestDepth int
	var bestSelDepth int
	var lastBestMove shogi.Move
	var stabilityCount int
	var instabilityCount int
	var primaryDepth int

	// Determine maximum depth
	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	// Create result channel
	resultCh := make(chan WorkerResult, NumWorkers*maxDepth)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go e.workerSearch(i, pos, maxDepth, resultCh, &wg)
	}

	// Collect results in a separate goroutine
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}

			// Result combine: worker 0 is the primary and its result is
			// always authoritative. A helper's snapshot only supplements
			// the combined line when it reaches equal-or-greater depth
			// with an Exact bound and the primary hasn't gotten there yet.
			if result.WorkerID == 0 && result.Depth > primaryDepth {
				primaryDepth = result.Depth
			}
			accept := result.WorkerID == 0 || (result.Bound == TTExact && result.Depth > primaryDepth)

			if result.Move != shogi.NoMove && accept {
				if result.Depth > bestDepth ||
					(result.Depth == bestDepth && (result.WorkerID == 0 || result.Score > bestScore)) {

					// Track move stability
					if result.Depth > bestDepth {
						if result.Move == lastBestMove {
							stabilityCount++
							instabilityCount = 0
						} else {
							instabilityCount++
							stabilityCount = 0
						}
						lastBestMove = result.Move
					}

					bestMove = result.Move
					bestScore = result.Score
					bestPV = result.PV
					bestDepth = result.Depth
					bestSelDepth = result.SelDepth

					if e.OnInfo != nil {
						elapsed := time.Since(startTime)
						e.OnInfo(SearchInfo{
							Depth:    bestDepth,
							SelDepth: bestSelDepth,
							Score:    bestScore,
							Nodes:    e.getTotalNodes(),
							Time:     elapsed,
							PV:       bestPV,
							HashFull: e.tt.HashFull(),
						})
					}

					// Early termination: found mate
					if bestScore > MateScore-100 || bestScore < -MateScore+100 {
						e.stopFlag.Store(true)
						break resultLoop
					}

					// Time management: check if we should stop based on stability
					if tm.PastOptimum() {
						if stabilityCount >= 4 {
							e.stopFlag.Store(true)
							break resultLoop
						}
					}
				}
			}

			// Check time limit
			if tm.ShouldStop() {
				e.stopFlag.Store(true)
				break resultLoop
			}

			// Node limit check
			if limits.Nodes > 0 && e.getTotalNodes() >= limits.Nodes {
				e.stopFlag.Store(true)
				break resultLoop
			}

		case <-done:
			break resultLoop
		}
	}

	// Ensure all workers are stopped
	e.stopFlag.Store(true)
	<-done

	return bestMove
}

// workerSearch runs iterative deepening search in a worker goroutine.
// Uses depth staggering: workers start at different depths to reduce
// redundant shallow work.
func (e *Engine) workerSearch(workerID int, pos *shogi.Position, maxDepth int, resultCh chan<- WorkerResult, wg *sync.WaitGroup) {
	defer wg.Done()

	worker := e.workers[workerID]
	worker.InitSearch(pos.Copy())

	var prevScore int

	// Depth staggering: helper workers skip shallow depths
	// Worker 0 (main): starts at depth 1
	// Workers 1-2: start at depth 2
	// Workers 3-5: start at depth 3
	// Workers 6+: start at depth 4
	startDepth := 1
	if workerID >= 6 {
		startDepth = 4
	} else if workerID >= 3 {
		startDepth = 3
	} else if workerID >= 1 {
		startDepth = 2
	}

	// Track recent scores for volatility calculation
	recentScores := make([]int, 0, 10)

	for depth := startDepth; depth <= maxDepth; depth++ {
		if e.stopFlag.Load() {
			return
		}

		worker.UpdateOptimism()

		var move shogi.Move
		var score int
		resultAlpha, resultBeta := -Infinity, Infinity

		// Use dynamic aspiration windows after depth 4
		// Window size adapts based on score volatility
		if depth >= 5 && prevScore != 0 {
			volatility := 0
			if len(recentScores) >= 2 {
				minScore, maxScore := recentScores[0], recentScores[0]
				for _, s := range recentScores {
					if s < minScore {
						minScore = s
					}
					if s > maxScore {
						maxScore = s
					}
				}
				volatility = maxScore - minScore
			}

			var window int
			if volatility > 400 {
				// High volatility (tactical position): use wider window
				window = 150 + volatility/4
			} else if volatility < 50 {
				// Stable position: use tight window
				window = 25
			} else {
				window = 50 + volatility/8
			}

			// Add worker-specific variation for search diversity
			window += (workerID % 8) * 3

			alpha := prevScore - window
			beta := prevScore + window
			retryCount := 0

			for {
				move, score = worker.SearchDepth(depth, alpha, beta)

				if e.stopFlag.Load() {
					return
				}

				if score <= alpha {
					retryCount++
					if retryCount >= 2 {
						alpha = -Infinity
					} else {
						alpha = prevScore - window*2
					}
				} else if score >= beta {
					retryCount++
					if retryCount >= 2 {
						beta = Infinity
					} else {
						beta = prevScore + window*2
					}
				} else {
					break
				}

				if alpha == -Infinity && beta == Infinity {
					break
				}
			}
			resultAlpha, resultBeta = alpha, beta
		} else {
			move, score = worker.SearchDepth(depth, -Infinity, Infinity)
		}

		if e.stopFlag.Load() {
			return
		}

		prevScore = score
		worker.UpdateAvgScore(score)

		recentScores = append(recentScores, score)
		if len(recentScores) > 10 {
			recentScores = recentScores[1:]
		}

		bound := TTExact
		if score <= resultAlpha {
			bound = TTUpperBound
		} else if score >= resultBeta {
			bound = TTLowerBound
		}

		pv := worker.GetPV()
		resultCh <- WorkerResult{
			WorkerID: workerID,
			Depth:    depth,
			Score:    score,
			Bound:    bound,
			Move:     move,
			PV:       pv,
			Nodes:    worker.Nodes(),
			SelDepth: worker.SelDepth(),
		}
	}
}

// getTotalNodes returns the total nodes searched by all workers.
func (e *Engine) getTotalNodes() uint64 {
	var total uint64
	for _, w := range e.workers {
		total += w.Nodes()
	}
	return total
}

// SearchMultiPV finds multiple best moves (principal variations) for
// analysis.
func (e *Engine) SearchMultiPV(pos *shogi.Position, limits SearchLimits) []SearchResult {
	numPV := limits.MultiPV
	if numPV <= 0 {
		numPV = 1
	}

	results := make([]SearchResult, 0, numPV)
	excludedMoves := make([]shogi.Move, 0, numPV)

	for i := 0; i < numPV; i++ {
		move, score, pv, depth, selDepth := e.searchWithExclusions(pos, limits, excludedMoves)
		if move == shogi.NoMove {
			break
		}

		results = append(results, SearchResult{
			Move:     move,
			Score:    score,
			PV:       pv,
			Depth:    depth,
			SelDepth: selDepth,
		})
		excludedMoves = append(excludedMoves, move)

		if e.OnInfo != nil {
			e.OnInfo(SearchInfo{
				Depth:    depth,
				SelDepth: selDepth,
				Score:    score,
				Nodes:    e.getTotalNodes(),
				PV:       pv,
				HashFull: e.tt.HashFull(),
				MultiPV:  i + 1,
			})
		}
	}

	// Sort results by score (descending) to ensure best moves are first
	for i := 0; i < len(results)-1; i++ {
		maxIdx := i
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[maxIdx].Score {
				maxIdx = j
			}
		}
		if maxIdx != i {
			results[i], results[maxIdx] = results[maxIdx], results[i]
		}
	}

	return results
}

// searchWithExclusions searches for the best move excluding certain moves
// at the root, using the main worker's own iterative deepening loop
// (the teacher's legacy single-threaded Searcher is gone; MultiPV simply
// reuses worker 0 sequentially between lines, which is fine since
// SearchMultiPV is an analysis path, not the time-critical game path).
func (e *Engine) searchWithExclusions(pos *shogi.Position, limits SearchLimits, excluded []shogi.Move) (shogi.Move, int, []shogi.Move, int, int) {
	worker := e.workers[0]
	worker.Reset()
	worker.SetExcludedMoves(excluded)
	worker.InitSearch(pos.Copy())
	e.tt.NewSearch()

	startTime := time.Now()
	var bestMove shogi.Move
	var bestScore int
	var bestDepth int

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	for depth := 1; depth <= maxDepth; depth++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		move, score := worker.SearchDepth(depth, -Infinity, Infinity)

		if worker.stopped() {
			break
		}

		if move != shogi.NoMove {
			bestMove = move
			bestScore = score
			bestDepth = depth
		}

		if score > MateScore-100 || score < -MateScore+100 {
			break
		}

		if limits.Nodes > 0 && worker.Nodes() >= limits.Nodes {
			break
		}

		if !deadline.IsZero() {
			elapsed := time.Since(startTime)
			remaining := limits.MoveTime - elapsed
			if remaining < elapsed {
				break
			}
		}
	}

	pv := worker.GetPV()
	selDepth := worker.SelDepth()
	worker.SetExcludedMoves(nil) // Clear exclusions

	return bestMove, bestScore, pv, bestDepth, selDepth
}

// Stop stops the current search.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
}

// Clear clears the transposition table and other caches.
func (e *Engine) Clear() {
	e.tt.Clear()
	for _, w := range e.workers {
		w.orderer.Clear()
	}
	e.sharedHistory.Clear()
}

// Perft performs a perft test (for debugging move generation).
func (e *Engine) Perft(pos *shogi.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *shogi.Position) int {
	return EvaluateWithMaterialCache(pos, e.materialCache)
}

// LoadNNUE loads an NNUE weights file and wires a fresh evaluator into
// every worker, each with its own accumulator stack over the one shared
// set of weights.
func (e *Engine) LoadNNUE(weightsPath string) error {
	log.Printf("[Engine] Loading NNUE network: %s", weightsPath)

	net := nnue.NewNetwork()
	if err := net.LoadWeights(weightsPath); err != nil {
		log.Printf("[Engine] Failed to load NNUE: %v", err)
		return err
	}
	e.nnueNet = net

	for _, w := range e.workers {
		w.EnableNNUE(nnue.NewEvaluatorForNetwork(net))
	}

	log.Printf("[Engine] NNUE network loaded successfully")
	return nil
}

// SetUseNNUE enables or disables NNUE evaluation.
func (e *Engine) SetUseNNUE(use bool) {
	e.useNNUE = use
	for _, w := range e.workers {
		w.SetUseNNUE(use)
	}

	if use {
		log.Printf("[Engine] Evaluation mode: NNUE")
	} else {
		log.Printf("[Engine] Evaluation mode: material")
	}
}

// UseNNUE returns whether NNUE evaluation is enabled.
func (e *Engine) UseNNUE() bool {
	return e.useNNUE
}

// HasNNUE returns whether an NNUE network is loaded.
func (e *Engine) HasNNUE() bool {
	return e.nnueNet != nil
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		// Mate distance is plies, not move-pairs (spec §4.2/§8.3/§8.4):
		// the worker encodes a k-ply mate as MateScore-k.
		mateIn := MateScore - score
		return "Mate in " + strconv.Itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := MateScore + score
		return "Mated in " + strconv.Itoa(mateIn)
	}

	// Convert centipawns to pawns
	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := strconv.Itoa(score % 100)
	if len(centipawns) < 2 {
		centipawns = "0" + centipawns
	}

	return sign + strconv.Itoa(pawns) + "." + centipawns
}

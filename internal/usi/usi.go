// Package usi implements the USI (Universal Shogi Interface) protocol,
// the shogi analogue of UCI that USI-aware hosts (ShogiGUI, 将棋所, etc.)
// speak with an engine over stdin/stdout.
package usi

import (
	"bufio"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/SH11235/rshogi-sub004/internal/engine"
	"github.com/SH11235/rshogi-sub004/internal/kifu"
	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// USI implements the Universal Shogi Interface protocol.
type USI struct {
	engine   *engine.Engine
	position *shogi.Position

	// Position history for repetition detection (sennichite)
	positionHashes []uint64

	// NNUE configuration
	nnueEvalPath string

	// Opening book configuration
	bookPath string

	// Search state
	searching     bool
	searchDone    chan struct{}
	stopRequested atomic.Bool

	// Ponder state: a "go ponder" runs an infinite search on the
	// predicted position; "ponderhit" converts it to the real,
	// time-limited search the pending GoOptions describe.
	pondering        atomic.Bool
	ponderOpts       GoOptions
	suppressBestmove atomic.Bool
	lastPV           []shogi.Move

	// multiPV is the number of principal variations handleGo requests,
	// set via the MultiPV USI option (default 1: single-PV search).
	multiPV int

	// Game log persistence (spec §12 KIF log), opened on demand via the
	// KifuDir option; nil means logging is off.
	kifuDir   string
	storage   *kifu.Storage
	gameRec   *kifu.GameRecord
	gameCount int

	// CPU profiling
	profileFile *os.File
}

// New creates a new USI protocol handler.
func New(eng *engine.Engine) *USI {
	return &USI{
		engine:   eng,
		position: shogi.NewPosition(),
		multiPV:  1,
	}
}

// Run starts the USI main loop.
func (u *USI) Run() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "usi":
			u.handleUSI()
		case "isready":
			fmt.Println("readyok")
		case "usinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "ponderhit":
			u.handlePonderHit()
		case "stop":
			u.handleStop()
		case "quit":
			u.handleQuit()
		case "gameover":
			u.handleGameOver(args)
		case "setoption":
			u.handleSetOption(args)
		case "d":
			fmt.Println(u.position.String())
		case "perft":
			u.handlePerft(args)
		}
	}
}

// handleUSI responds to the "usi" command.
func (u *USI) handleUSI() {
	fmt.Println("id name RShogi")
	fmt.Println("id author RShogi Team")
	fmt.Println()
	fmt.Println("option name USI_Hash type spin default 64 min 1 max 4096")
	fmt.Println("option name USI_Ponder type check default false")
	fmt.Println("option name UseNNUE type check default false")
	fmt.Println("option name EvalFile type string default <empty>")
	fmt.Println("option name BookFile type string default <empty>")
	fmt.Println("option name KifuDir type string default <empty>")
	fmt.Println("option name MultiPV type spin default 1 min 1 max 32")
	fmt.Printf("option name Threads type spin default %d min 1 max 512\n", engine.NumWorkers)
	fmt.Println("usiok")
}

// handleNewGame resets the engine for a new game.
func (u *USI) handleNewGame() {
	u.engine.Clear()
	u.position = shogi.NewPosition()
	u.positionHashes = []uint64{u.position.Hash}
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves 7g7f 3c3d
//   - position sfen <sfen>
//   - position sfen <sfen> moves 7g7f
func (u *USI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	u.positionHashes = nil
	var moveStart int
	var startSFEN string

	if args[0] == "startpos" {
		u.position = shogi.NewPosition()
		startSFEN = "startpos"
		moveStart = 1
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	} else if args[0] == "sfen" {
		sfenEnd := len(args)
		for i, arg := range args[1:] {
			if arg == "moves" {
				sfenEnd = i + 1
				break
			}
		}

		sfenStr := strings.Join(args[1:sfenEnd], " ")
		pos, err := shogi.FromSFEN(sfenStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string Invalid SFEN: %v\n", err)
			return
		}
		u.position = pos
		startSFEN = sfenStr

		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	} else {
		return
	}

	u.positionHashes = append(u.positionHashes, u.position.Hash)

	var rec *kifu.GameRecord
	if u.storage != nil {
		rec = kifu.NewGameRecord(startSFEN)
	}

	if moveStart < len(args) {
		for _, moveStr := range args[moveStart:] {
			move, err := shogi.ParseMove(moveStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string Invalid move: %s\n", moveStr)
				return
			}
			u.position.MakeMove(move)
			u.position.UpdateCheckers()
			u.positionHashes = append(u.positionHashes, u.position.Hash)
			if rec != nil {
				rec.RecordMove(move)
			}
		}
	}

	if rec != nil {
		u.gameRec = rec
	}
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth     int
	Nodes     uint64
	MoveTime  time.Duration
	Infinite  bool
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	Byoyomi   time.Duration
	MovesToGo int
	Ponder    bool
}

// handleGo starts a search with the given parameters. A "go ponder" defers
// the real, time-limited search until "ponderhit" or "stop" arrives: it
// runs an infinite search on the predicted position in the meantime and
// never prints bestmove on its own (spec §6).
func (u *USI) handleGo(args []string) {
	opts := u.parseGoOptions(args)

	if opts.Ponder {
		u.ponderOpts = opts
		u.pondering.Store(true)

		ponderOpts := opts
		ponderOpts.Infinite = true
		u.startSearch(ponderOpts)
		return
	}

	u.startSearch(opts)
}

// handlePonderHit converts an in-flight ponder search into the real search
// the original "go ponder" command's time controls describe.
func (u *USI) handlePonderHit() {
	if !u.pondering.Load() {
		return
	}
	u.pondering.Store(false)

	if u.searching {
		u.suppressBestmove.Store(true)
		u.stopRequested.Store(true)
		u.engine.Stop()
		<-u.searchDone
	}

	realOpts := u.ponderOpts
	realOpts.Ponder = false
	u.startSearch(realOpts)
}

// startSearch launches a search goroutine for opts and, unless this run's
// bestmove was suppressed by a ponderhit conversion, reports the result.
func (u *USI) startSearch(opts GoOptions) {
	u.engine.SetPositionHistory(u.positionHashes)

	u.engine.OnInfo = func(info engine.SearchInfo) {
		u.sendInfo(info)
	}

	limits := u.toUCILimits(opts)

	u.searching = true
	u.stopRequested.Store(false)
	u.searchDone = make(chan struct{})

	pos := u.position.Copy()
	ply := pos.Ply
	numPV := u.multiPV

	go func() {
		defer close(u.searchDone)

		var bestMove shogi.Move
		if numPV > 1 {
			bestMove = u.searchMultiPV(pos, limits)
		} else {
			bestMove = u.engine.SearchWithUCILimits(pos, limits, ply)
		}

		u.searching = false

		if u.suppressBestmove.Load() {
			u.suppressBestmove.Store(false)
			return
		}

		// Validate against the pre-search position: search may advance
		// the copy it was given, and a root-history mismatch should
		// never reach the GUI as an illegal bestmove.
		validationPos := u.position.Copy()
		if bestMove != shogi.NoMove {
			legal := validationPos.GenerateLegalMoves()
			found := false
			for i := 0; i < legal.Len(); i++ {
				if legal.Get(i) == bestMove {
					found = true
					break
				}
			}
			if found {
				u.printBestMove(bestMove)
				return
			}
			fmt.Fprintf(os.Stderr, "info string CRITICAL: search returned illegal move %s (not in %d legal moves)\n", bestMove.String(), legal.Len())
		}

		legal := validationPos.GenerateLegalMoves()
		if legal.Len() > 0 {
			u.printBestMove(legal.Get(0))
		} else if validationPos.InCheck() {
			fmt.Println("bestmove resign")
		} else {
			fmt.Println("bestmove none")
		}
	}()
}

// searchMultiPV runs an N-PV analysis search (§4.4.2) and returns the
// top-scoring move. Only depth, nodes, movetime and infinite are carried
// over; btime/wtime, increments and byoyomi are not consulted, since
// SearchMultiPV is an analysis path without the tournament TimeManager.
func (u *USI) searchMultiPV(pos *shogi.Position, limits engine.UCILimits) shogi.Move {
	searchLimits := engine.SearchLimits{
		Depth:    limits.Depth,
		Nodes:    limits.Nodes,
		MoveTime: limits.MoveTime,
		Infinite: limits.Infinite,
		MultiPV:  u.multiPV,
	}
	results := u.engine.SearchMultiPV(pos, searchLimits)
	if len(results) == 0 {
		return shogi.NoMove
	}
	return results[0].Move
}

// printBestMove prints "bestmove <m>", appending a ponder suggestion
// (the second move of the last reported PV) when the move matches it.
func (u *USI) printBestMove(move shogi.Move) {
	if len(u.lastPV) > 1 && u.lastPV[0] == move {
		fmt.Printf("bestmove %s ponder %s\n", move.String(), u.lastPV[1].String())
		return
	}
	fmt.Printf("bestmove %s\n", move.String())
}

// parseGoOptions parses "go" command arguments.
func (u *USI) parseGoOptions(args []string) GoOptions {
	opts := GoOptions{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				opts.Depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(args) {
				n, _ := strconv.ParseUint(args[i+1], 10, 64)
				opts.Nodes = n
				i++
			}
		case "movetime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.MoveTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "infinite":
			opts.Infinite = true
		case "ponder":
			opts.Ponder = true
		case "wtime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "btime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "winc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "binc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "byoyomi":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.Byoyomi = time.Duration(ms) * time.Millisecond
				i++
			}
		case "movestogo":
			if i+1 < len(args) {
				opts.MovesToGo, _ = strconv.Atoi(args[i+1])
				i++
			}
		}
	}

	return opts
}

// toUCILimits converts GoOptions to engine.UCILimits (spec §4.6's time
// manager consumes wtime/btime/byoyomi/increment directly, rather than
// the engine pre-computing a single move budget the way chess UCI does).
func (u *USI) toUCILimits(opts GoOptions) engine.UCILimits {
	limits := engine.UCILimits{
		Time:      [2]time.Duration{opts.BTime, opts.WTime},
		Inc:       [2]time.Duration{opts.BInc, opts.WInc},
		Byoyomi:   opts.Byoyomi,
		MovesToGo: opts.MovesToGo,
		MoveTime:  opts.MoveTime,
		Depth:     opts.Depth,
		Nodes:     opts.Nodes,
		Infinite:  opts.Infinite,
		Ponder:    opts.Ponder,
	}
	return limits
}

// sendInfo outputs search info in USI format.
func (u *USI) sendInfo(info engine.SearchInfo) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))
	if info.SelDepth > 0 {
		parts = append(parts, fmt.Sprintf("seldepth %d", info.SelDepth))
	}
	if info.MultiPV > 0 {
		parts = append(parts, fmt.Sprintf("multipv %d", info.MultiPV))
	}

	if info.Score > engine.MateScore-100 {
		// Mate distance is reported in plies, not move-pairs: the worker
		// encodes a k-ply mate as MateScore-k (spec §4.2/§8.3/§8.4).
		mateIn := engine.MateScore - info.Score
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else if info.Score < -engine.MateScore+100 {
		mateIn := -(engine.MateScore + info.Score)
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else {
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))

	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}

	if len(info.PV) > 0 {
		validPV := make([]string, 0, len(info.PV))
		validMoves := make([]shogi.Move, 0, len(info.PV))
		testPos := u.position.Copy()
		for _, move := range info.PV {
			legal := testPos.GenerateLegalMoves()
			isLegal := false
			for i := 0; i < legal.Len(); i++ {
				if legal.Get(i) == move {
					isLegal = true
					break
				}
			}
			if !isLegal {
				break
			}
			validPV = append(validPV, move.String())
			validMoves = append(validMoves, move)
			testPos.MakeMove(move)
		}
		if len(validPV) > 0 {
			parts = append(parts, "pv "+strings.Join(validPV, " "))
		}
		if info.MultiPV <= 1 {
			u.lastPV = validMoves
		}
	}

	fmt.Printf("info %s\n", strings.Join(parts, " "))
}

// handleGameOver flushes the current game record (if logging is enabled
// via KifuDir) to storage and emits its KIF export for the host, per
// spec §12's KIF log.
func (u *USI) handleGameOver(args []string) {
	if u.storage == nil || u.gameRec == nil {
		return
	}

	if len(args) > 0 {
		u.gameRec.Result = args[0]
	}

	u.gameCount++
	id := fmt.Sprintf("%d", u.gameCount)
	if err := u.storage.SaveGame(id, u.gameRec); err != nil {
		fmt.Fprintf(os.Stderr, "info string Failed to save game log: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "info string Game log saved: %s\n", id)
	}

	kif := kifu.ExportKIF(u.gameRec)
	for _, line := range strings.Split(strings.TrimRight(kif, "\n"), "\n") {
		fmt.Fprintf(os.Stderr, "info string %s\n", line)
	}

	u.gameRec = nil
}

// handleStop stops the current search.
func (u *USI) handleStop() {
	u.pondering.Store(false)
	if u.searching {
		u.stopRequested.Store(true)
		u.engine.Stop()
		<-u.searchDone
	}
}

// handleQuit exits the program.
func (u *USI) handleQuit() {
	u.handleStop()
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
		fmt.Fprintf(os.Stderr, "info string CPU profile saved\n")
	}
	if u.storage != nil {
		u.storage.Close()
	}
	os.Exit(0)
}

// handleSetOption processes "setoption" commands.
func (u *USI) handleSetOption(args []string) {
	var name, value string
	readingName := false
	readingValue := false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName = true
			readingValue = false
		case "value":
			readingName = false
			readingValue = true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	switch strings.ToLower(name) {
	case "usi_hash":
		// TODO: resize hash table once TranspositionTable supports live resize.
	case "multipv":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			n = 1
		}
		u.multiPV = n
	case "threads":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			n = 1
		}
		u.engine.SetNumWorkers(n)
	case "kifudir":
		u.kifuDir = value
		if u.storage != nil {
			u.storage.Close()
			u.storage = nil
		}
		if value != "" {
			s, err := kifu.NewStorage(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string Failed to open KifuDir: %v\n", err)
				return
			}
			u.storage = s
		}
	case "usennue":
		useNNUE := strings.ToLower(value) == "true"
		if useNNUE && u.nnueEvalPath != "" && !u.engine.HasNNUE() {
			if err := u.engine.LoadNNUE(u.nnueEvalPath); err != nil {
				fmt.Fprintf(os.Stderr, "info string Failed to load NNUE: %v\n", err)
				return
			}
		}
		u.engine.SetUseNNUE(useNNUE)
	case "evalfile":
		u.nnueEvalPath = value
		u.tryLoadNNUE()
	case "bookfile":
		u.bookPath = value
		u.tryLoadBook()
	case "cpuprofile":
		if u.profileFile != nil {
			pprof.StopCPUProfile()
			u.profileFile.Close()
			fmt.Fprintf(os.Stderr, "info string CPU profile stopped\n")
			u.profileFile = nil
		}
		if value != "" && value != "stop" {
			f, err := os.Create(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string Failed to create profile: %v\n", err)
				return
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				fmt.Fprintf(os.Stderr, "info string Failed to start profile: %v\n", err)
				return
			}
			u.profileFile = f
			fmt.Fprintf(os.Stderr, "info string CPU profiling to %s\n", value)
		}
	}
}

// tryLoadNNUE attempts to load the NNUE network if a path is set.
func (u *USI) tryLoadNNUE() {
	if u.nnueEvalPath == "" {
		return
	}
	if err := u.engine.LoadNNUE(u.nnueEvalPath); err != nil {
		fmt.Fprintf(os.Stderr, "info string Failed to load NNUE: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "info string NNUE network loaded\n")
	}
}

// tryLoadBook attempts to load the opening book if a path is set.
func (u *USI) tryLoadBook() {
	if u.bookPath == "" {
		return
	}
	b, err := kifu.Load(u.bookPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "info string Failed to load book: %v\n", err)
		return
	}
	u.engine.SetBook(b)
	fmt.Fprintf(os.Stderr, "info string Book loaded: %d entries\n", b.Size())
}

// handlePerft runs a perft test.
func (u *USI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		depth, _ = strconv.Atoi(args[0])
	}

	start := time.Now()
	nodes := u.engine.Perft(u.position, depth)
	elapsed := time.Since(start)

	fmt.Printf("Nodes: %d\n", nodes)
	fmt.Printf("Time: %v\n", elapsed)
	if elapsed > 0 {
		nps := float64(nodes) / elapsed.Seconds()
		fmt.Printf("NPS: %.0f\n", nps)
	}
}

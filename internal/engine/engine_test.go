package engine

import (
	"testing"
	"time"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

func TestMultiPV(t *testing.T) {
	pos := shogi.NewPosition()
	eng := NewEngine(16)

	limits := SearchLimits{
		Depth:    4,
		MoveTime: 2 * time.Second,
		MultiPV:  3,
	}

	results := eng.SearchMultiPV(pos, limits)

	if len(results) < 2 {
		t.Fatalf("Expected at least 2 PVs, got %d", len(results))
	}

	if results[0].Move == results[1].Move {
		t.Errorf("First two PVs have same move: %s", results[0].Move.String())
	}

	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("PV %d has higher score than PV %d (%d > %d)",
				i+1, i, results[i].Score, results[i-1].Score)
		}
	}

	t.Logf("Multi-PV results:")
	for i, r := range results {
		t.Logf("  PV %d: %s (score: %d, depth: %d)", i+1, r.Move.String(), r.Score, r.Depth)
	}
}

func TestSearchBasic(t *testing.T) {
	pos := shogi.NewPosition()
	eng := NewEngine(16)
	eng.SetDifficulty(Easy)

	move := eng.Search(pos)
	if move == shogi.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	t.Logf("Best move: %s", move.String())
}

// TestConcurrentSearchRace is a stress test for multi-threaded search.
// Run with: GOMAXPROCS=8 go test -race -run TestConcurrentSearchRace ./internal/engine -v
// This test verifies that parallel search doesn't have race conditions.
func TestConcurrentSearchRace(t *testing.T) {
	pos := shogi.NewPosition()
	eng := NewEngine(16)

	iterations := 10
	if testing.Short() {
		iterations = 3
	}

	for i := 0; i < iterations; i++ {
		limits := SearchLimits{
			Depth:    6,
			MoveTime: 500 * time.Millisecond,
		}

		move := eng.SearchWithLimits(pos, limits)
		if move == shogi.NoMove {
			t.Errorf("Iteration %d: Search returned NoMove for starting position", i)
		}

		// Vary the position between iterations (the start board with White
		// to move, and a variant with White's 3-file pawn on 3e) so workers
		// aren't always probing the same root.
		if i%2 == 0 {
			pos, _ = shogi.FromSFEN("lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 2")
		} else {
			pos, _ = shogi.FromSFEN("lnsgkgsnl/1r5b1/pppppp1pp/9/6p2/9/PPPPPPPPP/1B5R1/LNSGKGSNL w - 2")
		}
	}

	t.Logf("Completed %d concurrent search iterations without race condition", iterations)
}

// TestConcurrentSearchMultiplePositions tests searching different positions one after another with the same engine.
func TestConcurrentSearchMultiplePositions(t *testing.T) {
	eng := NewEngine(16)

	sfens := []string{
		shogi.StartSFEN,
		"lnsgkgsnl/1r5b1/pppppp1pp/6p2/9/2P6/PP1PPPPPP/1B5R1/LNSGKGSNL w - 4",
		"4k4/9/4P4/9/9/9/9/9/4K4 b - 1",
	}

	for i, sfen := range sfens {
		pos, err := shogi.FromSFEN(sfen)
		if err != nil {
			t.Fatalf("Failed to parse position %d: %v", i, err)
		}

		limits := SearchLimits{
			Depth:    5,
			MoveTime: 300 * time.Millisecond,
		}

		move := eng.SearchWithLimits(pos, limits)
		if move == shogi.NoMove {
			if !pos.InCheck() || pos.GenerateLegalMoves().Len() > 0 {
				t.Errorf("Position %d: Search returned NoMove", i)
			}
		} else {
			t.Logf("Position %d: best move = %s", i, move.String())
		}
	}
}

func TestMaterialCache(t *testing.T) {
	mc := NewMaterialCache(1) // 1MB

	pos := shogi.NewPosition()

	if _, found := mc.Probe(pos.Hash); found {
		t.Error("Expected cache miss on first probe")
	}

	mc.Store(pos.Hash, -15)

	score, found := mc.Probe(pos.Hash)
	if !found {
		t.Error("Expected cache hit after store")
	}
	if score != -15 {
		t.Errorf("Wrong value: got score=%d, want -15", score)
	}

	oldHash := pos.Hash
	move := shogi.NewMove(shogi.NewSquare(7, 7), shogi.NewSquare(7, 6), false)
	undo := pos.MakeMove(move)
	if pos.Hash == oldHash {
		t.Error("Hash should change when a pawn moves")
	}

	pos.UnmakeMove(move, undo)
	if pos.Hash != oldHash {
		t.Error("Hash should be restored on unmake")
	}

	mc.Clear()
	if _, found := mc.Probe(pos.Hash); found {
		t.Error("Expected cache miss after Clear")
	}
}

// TestResultCombineDepthNeverRegresses checks that every OnInfo callback
// fired during a multi-worker search reports a depth that only ever
// advances (the result-combine rule in SearchWithLimits never lets a
// shallower or lower-confidence helper snapshot regress the reported
// line once the primary has reached that depth).
func TestResultCombineDepthNeverRegresses(t *testing.T) {
	eng := NewEngine(4)
	pos := shogi.NewPosition()

	var lastDepth int
	eng.OnInfo = func(info SearchInfo) {
		if info.Depth < lastDepth {
			t.Errorf("reported depth regressed: %d after %d", info.Depth, lastDepth)
		}
		lastDepth = info.Depth
	}

	limits := SearchLimits{
		Depth:    6,
		MoveTime: 500 * time.Millisecond,
	}

	move := eng.SearchWithLimits(pos, limits)
	if move == shogi.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	if lastDepth == 0 {
		t.Error("expected at least one OnInfo callback")
	}
}

// TestSetNumWorkers checks that resizing the LazySMP pool doesn't disturb
// the engine's ability to search afterward.
func TestSetNumWorkers(t *testing.T) {
	eng := NewEngine(4)
	eng.SetNumWorkers(2)

	if got := len(eng.workers); got != 2 {
		t.Fatalf("expected 2 workers, got %d", got)
	}

	pos := shogi.NewPosition()
	limits := SearchLimits{Depth: 4, MoveTime: 300 * time.Millisecond}
	move := eng.SearchWithLimits(pos, limits)
	if move == shogi.NoMove {
		t.Error("Search returned NoMove for starting position after resize")
	}

	eng.SetNumWorkers(1)
	if got := len(eng.workers); got != 1 {
		t.Fatalf("expected 1 worker, got %d", got)
	}
}

// TestScoreToStringMateDistanceIsPlies checks ScoreToString reports mate
// distance in plies, not chess-style halved move-pairs.
func TestScoreToStringMateDistanceIsPlies(t *testing.T) {
	got := ScoreToString(MateScore - 3)
	want := "Mate in 3"
	if got != want {
		t.Errorf("ScoreToString(MateScore-3) = %q, want %q", got, want)
	}

	got = ScoreToString(-MateScore + 2)
	want = "Mated in 2"
	if got != want {
		t.Errorf("ScoreToString(-MateScore+2) = %q, want %q", got, want)
	}
}

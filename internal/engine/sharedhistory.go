package engine

import (
	"sync"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// SharedHistory is a history table shared across all LazySMP workers, so a
// quiet-move bonus earned by one worker's search informs every other
// worker's move ordering on its next probe (spec §4.5's "workers share a
// a history table for collective learning"). Reads and writes are
// protected by a mutex: the table is touched only at move-ordering and
// cutoff time, far off the hot per-node path, so a shared lock costs far
// less than the ordering quality lost by letting each worker learn alone.
// The definition was missing from the teacher's retrieved sources even
// though worker.go and engine.go both reference it, so it is reconstructed
// here from those call sites' documented behavior.
type SharedHistory struct {
	mu      sync.Mutex
	history [numSquares + int(shogi.NoPieceType)][numSquares]int
}

// NewSharedHistory creates an empty shared history table.
func NewSharedHistory() *SharedHistory {
	return &SharedHistory{}
}

// Get returns the shared history score for a (from, to) pair. from uses
// the same board-square-or-synthetic-drop-slot indexing as
// MoveOrderer.history (see dropFromIndex).
func (sh *SharedHistory) Get(from, to int) int {
	sh.mu.Lock()
	v := sh.history[from][to]
	sh.mu.Unlock()
	return v
}

// Update adds bonus to the shared entry for (from, to), clamping and
// periodically scaling down the same way MoveOrderer.UpdateHistory does.
func (sh *SharedHistory) Update(from, to, bonus int) {
	sh.mu.Lock()
	sh.history[from][to] += bonus
	if sh.history[from][to] > 400000 {
		for i := range sh.history {
			for j := range sh.history[i] {
				sh.history[i][j] /= 2
			}
		}
	} else if sh.history[from][to] < -400000 {
		sh.history[from][to] = -400000
	}
	sh.mu.Unlock()
}

// Clear resets the shared table (teacher: between games).
func (sh *SharedHistory) Clear() {
	sh.mu.Lock()
	for i := range sh.history {
		for j := range sh.history[i] {
			sh.history[i][j] = 0
		}
	}
	sh.mu.Unlock()
}

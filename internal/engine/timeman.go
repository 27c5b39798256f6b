package engine

import (
	"time"

	"github.com/SH11235/rshogi-sub004/internal/shogi"
)

// moveOverhead is subtracted from the soft budget to leave margin for
// USI round-trip and move-application latency.
const moveOverhead = 30 * time.Millisecond

// byoyomiDeadlineLead/byoyomiSafety bound the byoyomi-only formula in
// spec §4.6 ("soft = byoyomi - deadline_lead, hard = byoyomi - safety").
const (
	byoyomiDeadlineLead = 50 * time.Millisecond
	byoyomiSafety       = 20 * time.Millisecond
)

// UCILimits contains USI time control parameters for a single `go` command.
type UCILimits struct {
	Time      [2]time.Duration // btime, wtime (remaining time, indexed by Color)
	Inc       [2]time.Duration // binc, winc (increment per move, indexed by Color)
	Byoyomi   time.Duration    // fixed per-move countdown after main time runs out
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
	Ponder    bool             // ponder mode
}

// TimeManager handles time allocation for searches, per spec §4.6.
type TimeManager struct {
	optimumTime time.Duration // Target time for this move
	maximumTime time.Duration // Maximum time allowed
	startTime   time.Time     // When search started
}

// NewTimeManager creates a new time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init initializes the time manager for a new search.
// ply is the current game ply (half-move number), used to estimate game
// phase (opening/middlegame/endgame) for the factor term.
func (tm *TimeManager) Init(limits UCILimits, us shogi.Color, ply int) {
	tm.startTime = time.Now()

	if limits.MoveTime > 0 {
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	if limits.Infinite || (limits.Time[us] == 0 && limits.MoveTime == 0 && limits.Byoyomi == 0) {
		tm.optimumTime = time.Hour
		tm.maximumTime = time.Hour
		return
	}

	// Pure byoyomi: no main time left, only the per-move countdown.
	if limits.Time[us] == 0 && limits.Byoyomi > 0 {
		tm.optimumTime = limits.Byoyomi - byoyomiDeadlineLead
		tm.maximumTime = limits.Byoyomi - byoyomiSafety
		if tm.optimumTime < 10*time.Millisecond {
			tm.optimumTime = 10 * time.Millisecond
		}
		if tm.maximumTime < 50*time.Millisecond {
			tm.maximumTime = 50 * time.Millisecond
		}
		return
	}

	timeLeft := limits.Time[us]
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg == 0 {
		mtg = 50 - ply/4
		if mtg < 10 {
			mtg = 10
		}
		if mtg > 50 {
			mtg = 50
		}
	}

	base := timeLeft/time.Duration(mtg) + inc*8/10

	factor := 1.0
	switch {
	case ply < 24:
		factor = 1.2 // opening
	case ply < 80:
		factor = 1.0 // middlegame
	default:
		factor = 0.8 // endgame
	}

	tm.optimumTime = time.Duration(float64(base)*factor) - moveOverhead
	// Main time is present but byoyomi adds a floor: never budget below
	// what the upcoming byoyomi period alone would allow.
	if limits.Byoyomi > 0 && tm.optimumTime < limits.Byoyomi-byoyomiDeadlineLead {
		tm.optimumTime = limits.Byoyomi - byoyomiDeadlineLead
	}

	maxFromBase := base * 4
	maxFromRemaining := timeLeft * 8 / 10
	if maxFromBase < maxFromRemaining {
		tm.maximumTime = maxFromBase
	} else {
		tm.maximumTime = maxFromRemaining
	}
	if tm.maximumTime < 1000*time.Millisecond {
		tm.maximumTime = 1000 * time.Millisecond
	}

	safetyMargin := timeLeft * 95 / 100
	if tm.maximumTime > safetyMargin {
		tm.maximumTime = safetyMargin
	}

	if tm.optimumTime < 10*time.Millisecond {
		tm.optimumTime = 10 * time.Millisecond
	}
	if tm.maximumTime < 50*time.Millisecond {
		tm.maximumTime = 50 * time.Millisecond
	}
	if tm.optimumTime > tm.maximumTime {
		tm.optimumTime = tm.maximumTime
	}
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// OptimumTime returns the target (soft) time for this move.
func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

// MaximumTime returns the maximum (hard) time allowed.
func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// ShouldStop returns true once the hard deadline has passed.
func (tm *TimeManager) ShouldStop() bool {
	return tm.Elapsed() >= tm.maximumTime
}

// PastOptimum returns true once the soft deadline has passed.
func (tm *TimeManager) PastOptimum() bool {
	return tm.Elapsed() >= tm.optimumTime
}

// NearDeadline reports whether elapsed time is within hard/5 of the hard
// deadline (spec §4.6: "polling frequency increases" near the deadline).
func (tm *TimeManager) NearDeadline() bool {
	return tm.maximumTime-tm.Elapsed() <= tm.maximumTime/5
}

// AdjustForStability adjusts time allocation based on best move stability.
// stability: number of consecutive depths with the same best move.
func (tm *TimeManager) AdjustForStability(stability int) {
	switch {
	case stability >= 6:
		tm.optimumTime = tm.optimumTime * 40 / 100
	case stability >= 4:
		tm.optimumTime = tm.optimumTime * 60 / 100
	case stability >= 2:
		tm.optimumTime = tm.optimumTime * 80 / 100
	}
}

// AdjustForInstability increases time when best move keeps changing,
// bounded by the hard deadline (spec §4.6: adjust_by_stability).
func (tm *TimeManager) AdjustForInstability(changes int) {
	switch {
	case changes >= 4:
		tm.optimumTime = tm.optimumTime * 200 / 100
	case changes >= 2:
		tm.optimumTime = tm.optimumTime * 150 / 100
	}
	if tm.optimumTime > tm.maximumTime {
		tm.optimumTime = tm.maximumTime
	}
}

package engine

import (
	"time"
)

// Clock allocation bounds
const (
	minAllocation = 10 * time.Millisecond
	clockReserve  = 95 // percent of the remaining clock that may be spent on one move
)

// TimeManager tracks the wall-clock budget of one decision. The budget is
// only consulted between iterative-deepening depths, so a single depth may
// overrun it.
type TimeManager struct {
	budget    time.Duration // 0 means no limit
	startTime time.Time
}

// NewTimeManager creates a time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init starts the clock for a new decision.
func (tm *TimeManager) Init(budget time.Duration) {
	tm.budget = budget
	tm.startTime = time.Now()
}

// Elapsed returns the time elapsed since the decision started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// Budget returns the configured budget.
func (tm *TimeManager) Budget() time.Duration {
	return tm.budget
}

// Exceeded reports whether the budget has run out.
func (tm *TimeManager) Exceeded() bool {
	return tm.budget > 0 && tm.Elapsed() > tm.budget
}

// Remaining returns the unspent budget, 0 once exceeded or when unlimited.
func (tm *TimeManager) Remaining() time.Duration {
	if tm.budget <= 0 {
		return 0
	}
	if r := tm.budget - tm.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// AllocateFromClock splits a remaining game clock over the moves the side to
// move still has to make on a board with emptyCells free cells.
func AllocateFromClock(remaining time.Duration, emptyCells int) time.Duration {
	if remaining <= 0 {
		return 0
	}
	movesLeft := (emptyCells + 1) / 2
	if movesLeft < 1 {
		movesLeft = 1
	}

	alloc := remaining / time.Duration(movesLeft)
	if limit := remaining * clockReserve / 100; alloc > limit {
		alloc = limit
	}
	if alloc < minAllocation {
		alloc = minAllocation
	}
	return alloc
}

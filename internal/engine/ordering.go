package engine

import (
	"sort"

	"github.com/samber/lo"

	"github.com/hailam/connectplay/internal/board"
)

// History is halved across the board once any entry passes this.
const historyCeiling = 400_000

// Threat/structure heuristic weights
const (
	ownRunBonus       = 50
	oppRunBonus       = 30
	lowLandingBonus   = 10
	raggedNeighbour   = 20
	raggedHeightLimit = 2
)

// moveRank is the sort key of one candidate. Fields are compared in
// declaration order, higher first; col breaks ties ascending.
type moveRank struct {
	win     bool
	block   bool
	killer  int // 2 for the newest killer, 1 for the older, 0 otherwise
	history int
	center  int
	threat  int
	col     int
}

func (r moveRank) before(o moveRank) bool {
	if r.win != o.win {
		return r.win
	}
	if r.block != o.block {
		return r.block
	}
	if r.killer != o.killer {
		return r.killer > o.killer
	}
	if r.history != o.history {
		return r.history > o.history
	}
	if r.center != o.center {
		return r.center > o.center
	}
	if r.threat != o.threat {
		return r.threat > o.threat
	}
	return r.col < o.col
}

// MoveOrderer handles move ordering for the search.
type MoveOrderer struct {
	// Killer moves (columns that caused cutoffs), newest first
	killers [MaxPly][2]int

	// History heuristic (indexed by [column][mover])
	history [board.MaxColumns][2]int
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	mo := &MoveOrderer{}
	mo.ResetKillers()
	return mo
}

// Clear resets killers and ages the history table.
func (mo *MoveOrderer) Clear() {
	mo.ResetKillers()
	mo.AgeHistory()
}

// ResetKillers forgets every killer move.
func (mo *MoveOrderer) ResetKillers() {
	for i := range mo.killers {
		mo.killers[i][0] = NoMove
		mo.killers[i][1] = NoMove
	}
}

// AgeHistory halves every history score.
func (mo *MoveOrderer) AgeHistory() {
	for col := range mo.history {
		for p := range mo.history[col] {
			mo.history[col][p] /= 2
		}
	}
}

// ResetHistory zeroes the history table.
func (mo *MoveOrderer) ResetHistory() {
	mo.history = [board.MaxColumns][2]int{}
}

// Order returns moves sorted best first. The input slice is not modified.
// The ordering is total, so equal inputs always produce equal output.
func (mo *MoveOrderer) Order(b *board.Board, moves []int, ply int) []int {
	mover := b.SideToMove()
	opp := mover.Opponent()

	ranks := make([]moveRank, len(moves))
	for i, col := range moves {
		ranks[i] = moveRank{
			win:     b.WinsAt(col, mover),
			block:   b.WinsAt(col, opp),
			killer:  mo.killerRank(col, ply),
			history: mo.history[col][mover],
			center:  b.Columns() - b.Config().CenterDistance(col),
			threat:  threatScore(b, col, mover),
			col:     col,
		}
	}

	sort.Slice(ranks, func(i, j int) bool {
		return ranks[i].before(ranks[j])
	})

	return lo.Map(ranks, func(r moveRank, _ int) int { return r.col })
}

// killerRank returns 2 for the newest killer at ply, 1 for the older one.
func (mo *MoveOrderer) killerRank(col, ply int) int {
	if ply < 0 || ply >= MaxPly {
		return 0
	}
	switch lo.IndexOf(mo.killers[ply][:], col) {
	case 0:
		return 2
	case 1:
		return 1
	default:
		return 0
	}
}

// IsKiller reports whether col is a killer move at ply.
func (mo *MoveOrderer) IsKiller(col, ply int) bool {
	return mo.killerRank(col, ply) > 0
}

// Killers returns the killer slots at ply, newest first.
func (mo *MoveOrderer) Killers(ply int) [2]int {
	return mo.killers[ply]
}

// UpdateKillers records a cutoff move at ply. A column already present is
// left where it is; otherwise the older slot is dropped.
func (mo *MoveOrderer) UpdateKillers(col, ply int) {
	if ply < 0 || ply >= MaxPly {
		return
	}
	if lo.Contains(mo.killers[ply][:], col) {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = col
}

// UpdateHistory credits a cutoff move with depth*depth.
func (mo *MoveOrderer) UpdateHistory(col int, mover board.Player, depth int) {
	mo.history[col][mover] += depth * depth

	if mo.history[col][mover] > historyCeiling {
		mo.AgeHistory()
	}
}

// HistoryScore returns the history weight of col for mover.
func (mo *MoveOrderer) HistoryScore(col int, mover board.Player) int {
	return mo.history[col][mover]
}

// threatScore rates the landing cell of col for mover: runs it would extend
// for either side, how low it sits, and how ragged it leaves the skyline.
func threatScore(b *board.Board, col int, mover board.Player) int {
	row := b.Height(col)
	opp := mover.Opponent()
	score := 0

	for _, d := range board.Directions {
		if run := b.RunLength(col, row, d, mover); run >= 2 {
			score += run * ownRunBonus
		}
		if run := b.RunLength(col, row, d, opp); run >= 2 {
			score += run * oppRunBonus
		}
	}

	score += (b.Rows() - row) * lowLandingBonus

	for _, n := range [2]int{col - 1, col + 1} {
		if n < 0 || n >= b.Columns() {
			continue
		}
		diff := b.Height(n) - row
		if diff < 0 {
			diff = -diff
		}
		if diff > raggedHeightLimit {
			score -= raggedNeighbour
		}
	}
	return score
}

// Package engine implements the Connect-Four search engine.
package engine

import (
	"errors"
	"fmt"

	"github.com/hailam/connectplay/internal/board"
)

// WinScore is the magnitude of a decided game. Every heuristic score stays
// far below it.
const WinScore = 10_000_000

// MaxWeight is the largest accepted evaluation weight.
const MaxWeight = 100

// maxHeuristic caps heuristic scores below every proven score.
const maxHeuristic = provenScore - 1

// ErrInvalidWeights is wrapped by every weight validation failure.
var ErrInvalidWeights = errors.New("invalid weights")

// Window values by number of own tokens in an otherwise empty window
const (
	windowComplete = 10000 // k == L
	windowThree    = 500   // k == L-1
	windowOpenTwo  = 50    // k == L-2 with an open end
	windowTwo      = 10    // k == L-2, both ends occupied
)

// Threat tiers for the run through a landing cell
const (
	threatWin       = 1000
	threatDirect    = 100
	threatPotential = 20
)

const (
	cliffHeight  = 2 // Adjacent height difference tolerated without penalty
	cliffPenalty = 5
	mobilityBase = 2
)

// Weights scales each evaluation component. Own applies to the evaluated
// side, Opp to its opponent; both are in tenths.
type Weights struct {
	WindowsOwn   int `json:"windows_own" yaml:"windows_own"`
	WindowsOpp   int `json:"windows_opp" yaml:"windows_opp"`
	CenterOwn    int `json:"center_own" yaml:"center_own"`
	CenterOpp    int `json:"center_opp" yaml:"center_opp"`
	StructureOwn int `json:"structure_own" yaml:"structure_own"`
	StructureOpp int `json:"structure_opp" yaml:"structure_opp"`
	ThreatsOwn   int `json:"threats_own" yaml:"threats_own"`
	ThreatsOpp   int `json:"threats_opp" yaml:"threats_opp"`
	MobilityOwn  int `json:"mobility_own" yaml:"mobility_own"`
	MobilityOpp  int `json:"mobility_opp" yaml:"mobility_opp"`
}

// DefaultWeights returns the stock weights. Opponent windows and threats
// weigh slightly more than our own, biasing the engine toward defense.
func DefaultWeights() Weights {
	return Weights{
		WindowsOwn:   10,
		WindowsOpp:   11,
		CenterOwn:    15,
		CenterOpp:    15,
		StructureOwn: 10,
		StructureOpp: 10,
		ThreatsOwn:   10,
		ThreatsOpp:   12,
		MobilityOwn:  10,
		MobilityOpp:  10,
	}
}

// Validate checks that every weight lies in [0, MaxWeight] and that no
// opponent weight is below the matching own weight.
func (w Weights) Validate() error {
	pairs := []struct {
		name     string
		own, opp int
	}{
		{"windows", w.WindowsOwn, w.WindowsOpp},
		{"center", w.CenterOwn, w.CenterOpp},
		{"structure", w.StructureOwn, w.StructureOpp},
		{"threats", w.ThreatsOwn, w.ThreatsOpp},
		{"mobility", w.MobilityOwn, w.MobilityOpp},
	}
	for _, p := range pairs {
		for _, v := range [2]int{p.own, p.opp} {
			if v < 0 || v > MaxWeight {
				return fmt.Errorf("%w: %s weight %d outside 0..%d", ErrInvalidWeights, p.name, v, MaxWeight)
			}
		}
		if p.opp < p.own {
			return fmt.Errorf("%w: %s_opp %d below %s_own %d", ErrInvalidWeights, p.name, p.opp, p.name, p.own)
		}
	}
	return nil
}

// Evaluator scores positions from a fixed perspective.
type Evaluator struct {
	weights Weights
}

// NewEvaluator creates an evaluator with the given weights.
func NewEvaluator(w Weights) *Evaluator {
	return &Evaluator{weights: w}
}

// Weights returns the evaluator's weights.
func (e *Evaluator) Weights() Weights {
	return e.weights
}

// TerminalScore scores a decided position. Faster wins and slower losses
// score better: a win is WinScore + depthRemaining - ply, a loss its
// negation and a draw (NoPlayer) 0.
func (e *Evaluator) TerminalScore(winner, perspective board.Player, depthRemaining, ply int) int {
	switch winner {
	case board.NoPlayer:
		return 0
	case perspective:
		return WinScore + depthRemaining - ply
	default:
		return -(WinScore + depthRemaining - ply)
	}
}

// components holds the raw per-side terms, indexed by player.
type components struct {
	windows   [2]int
	center    [2]int
	structure [2]int
	threats   [2]int
	mobility  [2]int
}

// HeuristicScore evaluates a non-terminal position for perspective.
// The result is deterministic, unchanged by mirroring the board and never
// reaches a proven score.
func (e *Evaluator) HeuristicScore(b *board.Board, perspective board.Player) int {
	var c components
	scoreWindows(b, &c)
	scoreCenter(b, &c)
	scoreStructure(b, &c)
	scoreThreats(b, &c)
	scoreMobility(b, &c)

	us, them := perspective, perspective.Opponent()
	w := e.weights

	score := c.windows[us]*w.WindowsOwn - c.windows[them]*w.WindowsOpp
	score += c.center[us]*w.CenterOwn - c.center[them]*w.CenterOpp
	score += c.structure[us]*w.StructureOwn - c.structure[them]*w.StructureOpp
	score += c.threats[us]*w.ThreatsOwn - c.threats[them]*w.ThreatsOpp
	score += c.mobility[us]*w.MobilityOwn - c.mobility[them]*w.MobilityOpp

	return clampHeuristic(score / 10)
}

func clampHeuristic(score int) int {
	switch {
	case score > maxHeuristic:
		return maxHeuristic
	case score < -maxHeuristic:
		return -maxHeuristic
	default:
		return score
	}
}

// centerWeight is the column bonus: Columns at the middle, decaying by one
// per half column toward the edges.
func centerWeight(b *board.Board, col int) int {
	return b.Columns() - b.Config().CenterDistance(col)
}

// scoreWindows walks every WinLength window in all four directions.
// Windows holding tokens of both players are dead and score nothing.
func scoreWindows(b *board.Board, c *components) {
	rows, cols, length := b.Rows(), b.Columns(), b.WinLength()

	for _, d := range board.Directions {
		for col := 0; col < cols; col++ {
			for row := 0; row < rows; row++ {
				endCol := col + d.DC*(length-1)
				endRow := row + d.DR*(length-1)
				if endCol < 0 || endCol >= cols || endRow < 0 || endRow >= rows {
					continue
				}

				var counts [2]int
				for i := 0; i < length; i++ {
					p := b.At(col+d.DC*i, row+d.DR*i)
					if p != board.NoPlayer {
						counts[p]++
					}
				}

				var owner board.Player
				switch {
				case counts[0] > 0 && counts[1] > 0:
					continue
				case counts[0] > 0:
					owner = board.PlayerOne
				case counts[1] > 0:
					owner = board.PlayerTwo
				default:
					continue
				}

				openEnd := b.At(col, row) == board.NoPlayer || b.At(endCol, endRow) == board.NoPlayer
				c.windows[owner] += windowValue(counts[owner], length, openEnd)
			}
		}
	}
}

func windowValue(k, length int, openEnd bool) int {
	switch {
	case k >= length:
		return windowComplete
	case k == length-1:
		return windowThree
	case k == length-2:
		if openEnd {
			return windowOpenTwo
		}
		return windowTwo
	default:
		return k
	}
}

func scoreCenter(b *board.Board, c *components) {
	for col := 0; col < b.Columns(); col++ {
		w := centerWeight(b, col)
		for row := 0; row < b.Height(col); row++ {
			c.center[b.At(col, row)] += w
		}
	}
}

// scoreStructure rewards low tokens and penalizes cliffs between adjacent
// columns. A cliff is charged to whoever owns the top of the taller column.
func scoreStructure(b *board.Board, c *components) {
	rows := b.Rows()
	for col := 0; col < b.Columns(); col++ {
		for row := 0; row < b.Height(col); row++ {
			c.structure[b.At(col, row)] += rows - row
		}
	}

	for col := 0; col+1 < b.Columns(); col++ {
		left, right := b.Height(col), b.Height(col+1)
		diff := left - right
		if diff < 0 {
			diff = -diff
		}
		if diff <= cliffHeight {
			continue
		}
		taller, h := col, left
		if right > left {
			taller, h = col+1, right
		}
		c.structure[b.At(taller, h-1)] -= cliffPenalty
	}
}

// scoreThreats measures, for both players, the run each landing cell would
// complete in every direction.
func scoreThreats(b *board.Board, c *components) {
	length := b.WinLength()
	for col := 0; col < b.Columns(); col++ {
		if !b.CanPlay(col) {
			continue
		}
		row := b.Height(col)
		for _, p := range [2]board.Player{board.PlayerOne, board.PlayerTwo} {
			for _, d := range board.Directions {
				c.threats[p] += threatValue(b.RunLength(col, row, d, p), length)
			}
		}
	}
}

func threatValue(run, length int) int {
	switch {
	case run >= length:
		return threatWin
	case run == length-1:
		return threatDirect
	case run == length-2:
		return threatPotential
	default:
		return run
	}
}

// scoreMobility counts playable columns whose landing cell does not hand
// the opponent a win on the cell directly above it.
func scoreMobility(b *board.Board, c *components) {
	for col := 0; col < b.Columns(); col++ {
		if !b.CanPlay(col) {
			continue
		}
		row := b.Height(col)
		bonus := mobilityBase + centerWeight(b, col)
		for _, p := range [2]board.Player{board.PlayerOne, board.PlayerTwo} {
			if !poisonedAbove(b, col, row, p.Opponent()) {
				c.mobility[p] += bonus
			}
		}
	}
}

// poisonedAbove reports whether opp would win on the cell above (col, row)
// once (col, row) is filled.
func poisonedAbove(b *board.Board, col, row int, opp board.Player) bool {
	above := row + 1
	if above >= b.Rows() {
		return false
	}
	for _, d := range board.Directions {
		if b.RunLength(col, above, d, opp) >= b.WinLength() {
			return true
		}
	}
	return false
}

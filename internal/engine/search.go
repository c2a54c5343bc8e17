package engine

import (
	"fmt"

	"github.com/hailam/connectplay/internal/board"
)

// Search constants
const (
	Infinity = 1 << 30
	MaxPly   = board.MaxCells + 1
	NoMove   = -1
)

// provenScore bounds the scores that can only come from a decided game.
const provenScore = WinScore - MaxPly

// perspectiveSalt is mixed into table and cache keys so that scores stored
// for one root player are never read back for the other.
var perspectiveSalt = [2]uint64{0, 0x9E3779B97F4A7C15}

// IsProven reports whether score is a forced win or loss.
func IsProven(score int) bool {
	return score >= provenScore || score <= -provenScore
}

// searchFault carries an internal-consistency failure out of the recursion.
type searchFault struct {
	err error
}

// SearchCounters are the diagnostic counters of one search.
type SearchCounters struct {
	Nodes    uint64
	Cutoffs  uint64
	TTProbes uint64
	TTHits   uint64
	EvalHits uint64
}

// Searcher performs the alpha-beta search over a single shared board,
// applying and undoing moves in place. Scores are from the root player's
// point of view: the root player maximizes.
type Searcher struct {
	board   *board.Board
	root    board.Player
	eval    *Evaluator
	orderer *MoveOrderer
	tt      *TranspositionTable
	cache   *EvalCache
	pruning bool

	counters SearchCounters
}

// NewSearcher creates a new searcher. cache may be nil.
func NewSearcher(eval *Evaluator, tt *TranspositionTable, cache *EvalCache) *Searcher {
	return &Searcher{
		eval:    eval,
		orderer: NewMoveOrderer(),
		tt:      tt,
		cache:   cache,
		pruning: true,
	}
}

// SetPruning turns cutoffs and table lookups on or off. With pruning off the
// search is a plain full-width minimax.
func (s *Searcher) SetPruning(on bool) {
	s.pruning = on
}

// Pruning reports whether cutoffs are enabled.
func (s *Searcher) Pruning() bool {
	return s.pruning
}

// Orderer returns the searcher's move orderer.
func (s *Searcher) Orderer() *MoveOrderer {
	return s.orderer
}

// Reset zeroes the counters.
func (s *Searcher) Reset() {
	s.counters = SearchCounters{}
}

// Counters returns the counters accumulated since the last Reset.
func (s *Searcher) Counters() SearchCounters {
	return s.counters
}

// Search runs a full-window alpha-beta search of b to depth and returns the
// best column and its score. b is restored before Search returns, including
// when an internal error aborts the search.
func (s *Searcher) Search(b *board.Board, depth int) (move, score int, err error) {
	if depth < 1 {
		return NoMove, 0, fmt.Errorf("search depth %d: must be at least 1", depth)
	}

	s.board = b
	s.root = b.SideToMove()
	defer func() { s.board = nil }()

	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(searchFault)
			if !ok {
				panic(r)
			}
			move, score, err = NoMove, 0, fault.err
		}
	}()

	score, move = s.alphaBeta(depth, -Infinity, Infinity, true, 0)
	return move, score, nil
}

// key returns the table key of the current position for the root player.
func (s *Searcher) key() uint64 {
	return s.board.Hash() ^ perspectiveSalt[s.root]
}

// explore applies col, evaluates fn and undoes col on every way out of fn.
func (s *Searcher) explore(col int, fn func() int) int {
	if err := s.board.Apply(col); err != nil {
		panic(searchFault{fmt.Errorf("search apply: %w", err)})
	}
	defer func() {
		if err := s.board.Undo(col); err != nil {
			panic(searchFault{fmt.Errorf("search undo: %w", err)})
		}
	}()
	return fn()
}

// alphaBeta returns the score of the current position and the best column,
// NoMove at leaves.
func (s *Searcher) alphaBeta(depth, alpha, beta int, maximizing bool, ply int) (int, int) {
	s.counters.Nodes++
	key := s.key()

	// No cutoff at the root: it has to come back with a move.
	if s.pruning && ply > 0 {
		s.counters.TTProbes++
		if entry, ok := s.tt.Probe(key, depth, alpha, beta); ok {
			s.counters.TTHits++
			return entry.Score, entry.BestMove
		}
	}

	if winner := s.board.WinnerFromLastMove(); winner != board.NoPlayer {
		return s.eval.TerminalScore(winner, s.root, depth, ply), NoMove
	}
	if s.board.IsFull() {
		return 0, NoMove
	}
	if depth == 0 {
		return s.evaluate(), NoMove
	}

	origAlpha, origBeta := alpha, beta
	mover := s.board.SideToMove()
	moves := s.orderer.Order(s.board, s.board.ValidMoves(), ply)

	best := Infinity
	if maximizing {
		best = -Infinity
	}
	bestMove := moves[0]

	for _, col := range moves {
		score := s.explore(col, func() int {
			v, _ := s.alphaBeta(depth-1, alpha, beta, !maximizing, ply+1)
			return v
		})

		if maximizing {
			if score > best {
				best, bestMove = score, col
			}
			alpha = max(alpha, best)
		} else {
			if score < best {
				best, bestMove = score, col
			}
			beta = min(beta, best)
		}

		if s.pruning && beta <= alpha {
			s.counters.Cutoffs++
			s.orderer.UpdateKillers(col, ply)
			s.orderer.UpdateHistory(col, mover, depth)
			break
		}
	}

	if s.pruning {
		s.tt.Store(key, depth, best, bestMove, origAlpha, origBeta)
	}
	return best, bestMove
}

// evaluate scores a depth-0 leaf, consulting the eval cache first.
func (s *Searcher) evaluate() int {
	key := s.key()
	if v, ok := s.cache.Get(key); ok {
		s.counters.EvalHits++
		return v
	}
	v := s.eval.HeuristicScore(s.board, s.root)
	s.cache.Set(key, v)
	return v
}

// PrincipalVariation follows best moves stored in the table from b, starting
// with first, for at most maxLen moves. Only legal moves are followed, since
// a colliding fingerprint can point anywhere. b is not modified.
func (s *Searcher) PrincipalVariation(b *board.Board, first, maxLen int) []int {
	if first == NoMove || !b.CanPlay(first) || maxLen < 1 {
		return nil
	}
	salt := perspectiveSalt[b.SideToMove()]
	walk := b.Copy()
	pv := []int{first}
	_ = walk.Apply(first)

	for len(pv) < maxLen && walk.WinnerFromLastMove() == board.NoPlayer {
		entry, ok := s.tt.Entry(walk.Hash() ^ salt)
		if !ok || !walk.CanPlay(entry.BestMove) {
			break
		}
		pv = append(pv, entry.BestMove)
		_ = walk.Apply(entry.BestMove)
	}
	return pv
}

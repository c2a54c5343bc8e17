package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/connectplay/internal/board"
	"github.com/hailam/connectplay/internal/book"
)

var (
	// ErrNoMoves is returned when the position has no legal move.
	ErrNoMoves = errors.New("no legal moves")
	// ErrGameOver is returned when the position is already won.
	ErrGameOver = fmt.Errorf("%w: game already decided", ErrNoMoves)
)

// Source says which step of Decide produced the move.
type Source string

const (
	SourceForced   Source = "forced"
	SourceBook     Source = "book"
	SourceWin      Source = "win"
	SourceBlock    Source = "block"
	SourceSearch   Source = "search"
	SourceFallback Source = "fallback"
)

// SearchInfo contains information about one completed depth.
type SearchInfo struct {
	Depth    int
	Score    int
	Move     int
	Nodes    uint64
	Time     time.Duration
	PV       []int
	HashFull int // Permille of hash table used
}

// SearchLimits specifies constraints on the search.
type SearchLimits struct {
	MinDepth int           // First iterative-deepening depth
	MaxDepth int           // Last depth; depths step by 2 from MinDepth
	MoveTime time.Duration // Budget checked between depths (0 = no limit)
}

// Validate checks that the depths are usable.
func (l SearchLimits) Validate() error {
	if l.MinDepth < 1 {
		return fmt.Errorf("min depth %d: must be at least 1", l.MinDepth)
	}
	if l.MaxDepth < l.MinDepth {
		return fmt.Errorf("max depth %d below min depth %d", l.MaxDepth, l.MinDepth)
	}
	if l.MaxDepth >= MaxPly {
		return fmt.Errorf("max depth %d: must be below %d", l.MaxDepth, MaxPly)
	}
	if l.MoveTime < 0 {
		return fmt.Errorf("move time %v: must not be negative", l.MoveTime)
	}
	return nil
}

// Difficulty represents the AI difficulty level.
type Difficulty int

const (
	Easy   Difficulty = iota // 2-4 ply, 250ms
	Medium                   // 4-8 ply, 1s
	Hard                     // 4-12 ply, 5s
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {MinDepth: 2, MaxDepth: 4, MoveTime: 250 * time.Millisecond},
	Medium: {MinDepth: 4, MaxDepth: 8, MoveTime: time.Second},
	Hard:   {MinDepth: 4, MaxDepth: 12, MoveTime: 5 * time.Second},
}

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// ParseDifficulty parses "easy", "medium" or "hard".
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	}
	return Medium, fmt.Errorf("unknown difficulty %q", s)
}

// Stats are the diagnostics of the last decision. They are advisory.
type Stats struct {
	Source    Source
	Move      int
	Depth     int // Last completed depth, 0 if no search ran
	Score     int
	Nodes     uint64
	Cutoffs   uint64
	TTProbes  uint64
	TTHits    uint64
	TTEntries int
	EvalHits  uint64
	Elapsed   time.Duration
}

// Options configures a new engine.
type Options struct {
	TTEntries        int
	EvalCacheEntries int64 // 0 disables the evaluation cache
	Weights          Weights
	Book             *book.Book // nil disables the opening book
	Difficulty       Difficulty
}

// DefaultOptions returns the stock engine options with the built-in book.
func DefaultOptions() Options {
	return Options{
		TTEntries:        DefaultTTEntries,
		EvalCacheEntries: DefaultEvalCacheEntries,
		Weights:          DefaultWeights(),
		Book:             book.Default(),
		Difficulty:       Medium,
	}
}

// Engine is the Connect-Four AI engine. Killer moves are reset for every
// decision; the history table survives between decisions of one engine but
// is halved at the start of each; the transposition table survives until
// Clear. An Engine is not safe for concurrent use.
type Engine struct {
	searcher   *Searcher
	tt         *TranspositionTable
	cache      *EvalCache
	eval       *Evaluator
	book       *book.Book
	timer      *TimeManager
	difficulty Difficulty
	limits     SearchLimits
	stats      Stats

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates a new engine.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	cache, err := NewEvalCache(opts.EvalCacheEntries)
	if err != nil {
		return nil, err
	}
	tt := NewTranspositionTable(opts.TTEntries)
	eval := NewEvaluator(opts.Weights)

	e := &Engine{
		searcher: NewSearcher(eval, tt, cache),
		tt:       tt,
		cache:    cache,
		eval:     eval,
		book:     opts.Book,
		timer:    NewTimeManager(),
	}
	e.SetDifficulty(opts.Difficulty)
	return e, nil
}

// SetDifficulty sets the engine difficulty and its search limits.
func (e *Engine) SetDifficulty(d Difficulty) {
	limits, ok := DifficultySettings[d]
	if !ok {
		d, limits = Medium, DifficultySettings[Medium]
	}
	e.difficulty = d
	e.limits = limits
}

// Difficulty returns the current difficulty.
func (e *Engine) Difficulty() Difficulty {
	return e.difficulty
}

// SetLimits overrides the limits of the current difficulty.
func (e *Engine) SetLimits(l SearchLimits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	e.limits = l
	return nil
}

// Limits returns the limits Search uses.
func (e *Engine) Limits() SearchLimits {
	return e.limits
}

// SetBook replaces the opening book. nil disables it.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
}

// Book returns the opening book, possibly nil.
func (e *Engine) Book() *book.Book {
	return e.book
}

// SetPruning turns alpha-beta cutoffs and table lookups on or off.
func (e *Engine) SetPruning(on bool) {
	e.searcher.SetPruning(on)
}

// Pruning reports whether alpha-beta cutoffs and table lookups are on.
func (e *Engine) Pruning() bool {
	return e.searcher.Pruning()
}

// ResizeTT replaces the transposition table with an empty one holding up to
// n entries. Limits, pruning, the book and the move-ordering tables are kept.
func (e *Engine) ResizeTT(n int) {
	e.tt = NewTranspositionTable(n)
	e.searcher.tt = e.tt
}

// Stats returns the diagnostics of the last decision.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Search picks a move for b within the engine's limits.
func (e *Engine) Search(b *board.Board) (int, error) {
	return e.DecideWithLimits(b, e.limits)
}

// Decide picks a move for b, spending roughly budget on the search. The
// budget is only checked between depths.
func (e *Engine) Decide(b *board.Board, budget time.Duration) (int, error) {
	limits := e.limits
	limits.MoveTime = budget
	return e.DecideWithLimits(b, limits)
}

// DecideWithLimits picks a move for b. In order: the only legal move, an
// opening book move, an immediate win, a block of the opponent's immediate
// win, and finally iterative deepening. b is unchanged on return.
func (e *Engine) DecideWithLimits(b *board.Board, limits SearchLimits) (int, error) {
	if err := limits.Validate(); err != nil {
		return NoMove, err
	}

	e.timer.Init(limits.MoveTime)
	e.stats = Stats{Move: NoMove}
	defer func() {
		e.stats.Elapsed = e.timer.Elapsed()
		e.stats.TTEntries = e.tt.Len()
	}()

	if b.Winner() != board.NoPlayer {
		return NoMove, ErrGameOver
	}
	moves := b.ValidMoves()
	if len(moves) == 0 {
		return NoMove, ErrNoMoves
	}

	if len(moves) == 1 {
		return e.decided(SourceForced, moves[0]), nil
	}

	if col, ok := e.book.Probe(b); ok {
		return e.decided(SourceBook, col), nil
	}

	mover := b.SideToMove()
	for _, col := range moves {
		if b.WinsAt(col, mover) {
			return e.decided(SourceWin, col), nil
		}
	}
	for _, col := range moves {
		if b.WinsAt(col, mover.Opponent()) {
			return e.decided(SourceBlock, col), nil
		}
	}

	return e.iterativeDeepening(b, moves, limits)
}

func (e *Engine) decided(src Source, col int) int {
	e.stats.Source = src
	e.stats.Move = col
	log.Debug().Str("source", string(src)).Int("move", col).Msg("decided")
	return col
}

// iterativeDeepening searches MinDepth, MinDepth+2, ... up to MaxDepth and
// keeps the move of the last completed depth.
func (e *Engine) iterativeDeepening(b *board.Board, moves []int, limits SearchLimits) (int, error) {
	e.searcher.Reset()
	e.searcher.Orderer().ResetKillers()
	e.searcher.Orderer().AgeHistory()

	empty := b.Config().Cells() - b.Ply()
	maxDepth := min(limits.MaxDepth, empty)
	minDepth := min(limits.MinDepth, maxDepth)

	bestMove, bestScore := NoMove, 0
	for depth := minDepth; depth <= maxDepth; depth += 2 {
		if e.timer.Exceeded() {
			log.Debug().Int("depth", depth).Dur("elapsed", e.timer.Elapsed()).
				Dur("budget", e.timer.Budget()).Msg("budget-exhausted")
			break
		}

		log.Debug().Int("depth", depth).Dur("remaining", e.timer.Remaining()).Msg("deepening-iteratively")
		move, score, err := e.searcher.Search(b, depth)
		if err != nil {
			return NoMove, fmt.Errorf("search depth %d: %w", depth, err)
		}
		bestMove, bestScore = move, score
		e.stats.Depth = depth
		e.stats.Score = score
		e.collectCounters()

		if e.OnInfo != nil {
			e.OnInfo(SearchInfo{
				Depth:    depth,
				Score:    score,
				Move:     move,
				Nodes:    e.stats.Nodes,
				Time:     e.timer.Elapsed(),
				PV:       e.searcher.PrincipalVariation(b, move, depth),
				HashFull: e.tt.HashFull(),
			})
		}

		if IsProven(score) {
			log.Debug().Int("depth", depth).Int("score", score).Msg("proven-result")
			break
		}
	}

	if bestMove == NoMove || !b.CanPlay(bestMove) {
		return e.decided(SourceFallback, fallbackMove(b, moves)), nil
	}
	log.Debug().Int("move", bestMove).Int("score", bestScore).Int("depth", e.stats.Depth).
		Uint64("nodes", e.stats.Nodes).Msg("search-complete")
	return e.decided(SourceSearch, bestMove), nil
}

func (e *Engine) collectCounters() {
	c := e.searcher.Counters()
	e.stats.Nodes = c.Nodes
	e.stats.Cutoffs = c.Cutoffs
	e.stats.TTProbes = c.TTProbes
	e.stats.TTHits = c.TTHits
	e.stats.EvalHits = c.EvalHits
}

// fallbackMove returns the legal column nearest the center, lowest first.
func fallbackMove(b *board.Board, moves []int) int {
	best := NoMove
	for _, col := range moves {
		if best == NoMove || b.Config().CenterDistance(col) < b.Config().CenterDistance(best) {
			best = col
		}
	}
	if best == NoMove && len(moves) > 0 {
		best = moves[0]
	}
	return best
}

// SearchDepth runs one fixed-depth search from b, bypassing the book and
// the win/block shortcuts.
func (e *Engine) SearchDepth(b *board.Board, depth int) (move, score int, err error) {
	if b.Winner() != board.NoPlayer {
		return NoMove, 0, ErrGameOver
	}
	if len(b.ValidMoves()) == 0 {
		return NoMove, 0, ErrNoMoves
	}
	e.searcher.Reset()
	e.searcher.Orderer().ResetKillers()
	move, score, err = e.searcher.Search(b, depth)
	e.stats = Stats{Source: SourceSearch, Move: move, Depth: depth, Score: score, TTEntries: e.tt.Len()}
	e.collectCounters()
	return move, score, err
}

// Clear clears the transposition table and other caches.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.cache.Clear()
	e.searcher.Orderer().ResetKillers()
	e.searcher.Orderer().ResetHistory()
}

// Close releases the evaluation cache.
func (e *Engine) Close() {
	e.cache.Close()
}

// Perft counts the move sequences of length depth from b. Play stops at a
// won position.
func (e *Engine) Perft(b *board.Board, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	if b.WinnerFromLastMove() != board.NoPlayer {
		return 0
	}

	moves := b.ValidMoves()
	if depth == 1 {
		return uint64(len(moves))
	}

	var nodes uint64
	for _, col := range moves {
		if err := b.Apply(col); err != nil {
			continue
		}
		nodes += e.Perft(b, depth-1)
		_ = b.Undo(col)
	}
	return nodes
}

// Evaluate returns the static evaluation of b for the side to move.
func (e *Engine) Evaluate(b *board.Board) int {
	if winner := b.Winner(); winner != board.NoPlayer {
		return e.eval.TerminalScore(winner, b.SideToMove(), 0, 0)
	}
	return e.eval.HeuristicScore(b, b.SideToMove())
}

// ScoreToString converts a score found at depth to a human-readable string.
func ScoreToString(score, depth int) string {
	if plies, ok := PliesToEnd(score, depth); ok {
		if score > 0 {
			return fmt.Sprintf("Win in %d", (plies+1)/2)
		}
		return fmt.Sprintf("Loss in %d", (plies+1)/2)
	}
	return fmt.Sprintf("%d", score)
}

// PliesToEnd recovers the number of plies to the end of the game from a
// proven score found by a search of the given depth.
func PliesToEnd(score, depth int) (int, bool) {
	if !IsProven(score) {
		return 0, false
	}
	if score < 0 {
		score = -score
	}
	// score = WinScore + (depth - ply) - ply
	return (WinScore + depth - score) / 2, true
}

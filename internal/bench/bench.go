// Package bench runs the engine over a fixed suite of positions.
package bench

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/connectplay/internal/board"
	"github.com/hailam/connectplay/internal/engine"
)

// Position is one benchmark position given by its move history.
type Position struct {
	Name   string
	Config board.Config
	Moves  []int
}

// Result is the outcome of deciding one benchmark position.
type Result struct {
	Name    string
	Move    int
	Source  engine.Source
	Depth   int
	Score   int
	Nodes   uint64
	Elapsed time.Duration
}

// Summary totals a benchmark run.
type Summary struct {
	Positions int
	Nodes     uint64
	Elapsed   time.Duration
}

// NPS returns nodes per second over the summed search time.
func (s Summary) NPS() uint64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return uint64(float64(s.Nodes) / s.Elapsed.Seconds())
}

// DefaultSuite is the standard benchmark suite.
var DefaultSuite = []Position{
	{Name: "opening", Config: board.DefaultConfig},
	{Name: "center-pair", Config: board.DefaultConfig, Moves: []int{3, 3}},
	{Name: "early", Config: board.DefaultConfig, Moves: []int{3, 2, 4, 4, 1}},
	{Name: "midgame", Config: board.DefaultConfig, Moves: []int{3, 3, 3, 2, 4, 4, 1, 5, 2, 2}},
	{Name: "edge-play", Config: board.DefaultConfig, Moves: []int{0, 6, 0, 6, 1, 5}},
	{Name: "small-board", Config: board.Config{Rows: 5, Columns: 5, WinLength: 4}, Moves: []int{2, 2, 1}},
	{Name: "wide-five", Config: board.Config{Rows: 7, Columns: 9, WinLength: 5}, Moves: []int{4, 4, 3}},
}

// Run decides every position of suite with its own engine. Positions run in
// parallel; results keep the order of suite. The opening book is never
// consulted.
func Run(ctx context.Context, opts engine.Options, limits engine.SearchLimits, suite []Position) ([]Result, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	opts.Book = nil

	results := make([]Result, len(suite))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, pos := range suite {
		i, pos := i, pos
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := board.FromHistory(pos.Config, pos.Moves)
			if err != nil {
				return fmt.Errorf("%s: %w", pos.Name, err)
			}

			eng, err := engine.NewEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			move, err := eng.DecideWithLimits(b, limits)
			if err != nil {
				return fmt.Errorf("%s: %w", pos.Name, err)
			}
			st := eng.Stats()
			results[i] = Result{
				Name:    pos.Name,
				Move:    move,
				Source:  st.Source,
				Depth:   st.Depth,
				Score:   st.Score,
				Nodes:   st.Nodes,
				Elapsed: st.Elapsed,
			}
			log.Debug().Str("position", pos.Name).Int("move", move).Uint64("nodes", st.Nodes).Msg("bench-position")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	s := Summary{Positions: len(results)}
	for _, r := range results {
		s.Nodes += r.Nodes
		s.Elapsed += r.Elapsed
	}
	return s
}

// Report writes one line per result followed by the totals.
func Report(w io.Writer, results []Result) error {
	for _, r := range results {
		_, err := fmt.Fprintf(w, "%-12s move %d source %-8s depth %2d score %-12s nodes %s time %dms\n",
			r.Name, r.Move, r.Source, r.Depth, engine.ScoreToString(r.Score, r.Depth),
			humanize.Comma(int64(r.Nodes)), r.Elapsed.Milliseconds())
		if err != nil {
			return err
		}
	}
	s := Summarize(results)
	_, err := fmt.Fprintf(w, "positions %d nodes %s time %dms nps %s\n",
		s.Positions, humanize.Comma(int64(s.Nodes)), s.Elapsed.Milliseconds(), humanize.Comma(int64(s.NPS())))
	return err
}

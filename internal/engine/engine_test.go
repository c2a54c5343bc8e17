package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/hailam/connectplay/internal/board"
	"github.com/hailam/connectplay/internal/book"
)

// newTestEngine returns an engine without book or eval cache.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Book = nil
	opts.EvalCacheEntries = 0
	eng, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func mustHistory(t *testing.T, cfg board.Config, moves ...int) *board.Board {
	t.Helper()
	b, err := board.FromHistory(cfg, moves)
	if err != nil {
		t.Fatalf("FromHistory(%v): %v", moves, err)
	}
	return b
}

// minimax is a plain full-width reference search.
func minimax(b *board.Board, ev *Evaluator, root board.Player, depth, ply int, maximizing bool) int {
	if w := b.WinnerFromLastMove(); w != board.NoPlayer {
		return ev.TerminalScore(w, root, depth, ply)
	}
	if b.IsFull() {
		return 0
	}
	if depth == 0 {
		return ev.HeuristicScore(b, root)
	}

	best := Infinity
	if maximizing {
		best = -Infinity
	}
	for _, col := range b.ValidMoves() {
		_ = b.Apply(col)
		v := minimax(b, ev, root, depth-1, ply+1, !maximizing)
		_ = b.Undo(col)
		if maximizing {
			best = max(best, v)
		} else {
			best = min(best, v)
		}
	}
	return best
}

var searchPositions = [][]int{
	{},
	{3},
	{3, 3, 2},
	{3, 2, 4, 4, 1},
	{3, 3, 3, 2, 4, 4, 1},
	{0, 1, 0, 1, 6, 2},
}

func TestPrunedSearchMatchesMinimax(t *testing.T) {
	for _, moves := range searchPositions {
		for depth := 1; depth <= 4; depth++ {
			b := mustHistory(t, board.DefaultConfig, moves...)
			ev := NewEvaluator(DefaultWeights())
			want := minimax(b, ev, b.SideToMove(), depth, 0, true)

			pruned := newTestEngine(t)
			_, got, err := pruned.SearchDepth(b, depth)
			if err != nil {
				t.Fatalf("%v depth %d: %v", moves, depth, err)
			}

			full := newTestEngine(t)
			full.SetPruning(false)
			_, gotFull, err := full.SearchDepth(b, depth)
			if err != nil {
				t.Fatalf("%v depth %d unpruned: %v", moves, depth, err)
			}

			if got != want || gotFull != want {
				t.Errorf("%v depth %d: pruned=%d unpruned=%d minimax=%d", moves, depth, got, gotFull, want)
			}
			if pruned.Stats().Nodes > full.Stats().Nodes {
				t.Errorf("%v depth %d: pruned visited %d nodes, unpruned %d",
					moves, depth, pruned.Stats().Nodes, full.Stats().Nodes)
			}
		}
	}
}

func TestPrunedSearchWithEvalCache(t *testing.T) {
	opts := DefaultOptions()
	opts.Book = nil
	opts.EvalCacheEntries = 1 << 12
	eng, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	b := mustHistory(t, board.DefaultConfig, 3, 2, 4, 4, 1)
	want := minimax(b, eng.eval, b.SideToMove(), 4, 0, true)

	// Twice, so that the second run can hit the cache.
	for i := 0; i < 2; i++ {
		eng.tt.Clear()
		_, got, err := eng.SearchDepth(b, 4)
		if err != nil {
			t.Fatalf("SearchDepth: %v", err)
		}
		if got != want {
			t.Errorf("run %d: score %d, want %d", i, got, want)
		}
		eng.cache.Wait()
	}
	if eng.Stats().EvalHits == 0 {
		t.Error("second run never hit the eval cache")
	}
}

func TestSearchRestoresBoard(t *testing.T) {
	eng := newTestEngine(t)
	b := mustHistory(t, board.DefaultConfig, 3, 3, 2)
	before := b.Copy()

	if _, _, err := eng.SearchDepth(b, 5); err != nil {
		t.Fatalf("SearchDepth: %v", err)
	}
	if !b.Equal(before) {
		t.Errorf("board changed by search: %s, want %s", b, before)
	}

	if _, err := eng.Decide(b, time.Second); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !b.Equal(before) {
		t.Errorf("board changed by Decide: %s, want %s", b, before)
	}
}

func TestDecideImmediateWin(t *testing.T) {
	// Player one has three stacked in column 0; player two has two in column 1.
	moves := []int{0, 1, 0, 1, 0, 6}

	limits := []SearchLimits{
		{MinDepth: 1, MaxDepth: 1},
		{MinDepth: 2, MaxDepth: 4},
		{MinDepth: 4, MaxDepth: 12, MoveTime: 5 * time.Second},
	}
	for _, l := range limits {
		eng := newTestEngine(t)
		b := mustHistory(t, board.DefaultConfig, moves...)
		got, err := eng.DecideWithLimits(b, l)
		if err != nil {
			t.Fatalf("%+v: %v", l, err)
		}
		if got != 0 {
			t.Errorf("%+v: got %d, want winning column 0", l, got)
		}
		if eng.Stats().Source != SourceWin {
			t.Errorf("%+v: source %s, want %s", l, eng.Stats().Source, SourceWin)
		}
	}
}

func TestDecideBlocks(t *testing.T) {
	// Player two has three stacked in column 1 and player one cannot win.
	eng := newTestEngine(t)
	b := mustHistory(t, board.DefaultConfig, 0, 1, 0, 1, 6, 1)

	got, err := eng.Decide(b, time.Second)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got != 1 {
		t.Errorf("got %d, want blocking column 1", got)
	}
	if eng.Stats().Source != SourceBlock {
		t.Errorf("source %s, want %s", eng.Stats().Source, SourceBlock)
	}
}

func TestDecideForcedMove(t *testing.T) {
	cfg := board.Config{Rows: 1, Columns: 3, WinLength: 3}
	eng := newTestEngine(t)
	b := mustHistory(t, cfg, 0, 1)

	got, err := eng.Decide(b, time.Second)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got != 2 || eng.Stats().Source != SourceForced {
		t.Errorf("got %d from %s, want 2 from %s", got, eng.Stats().Source, SourceForced)
	}
}

func TestDecideEmptyBoard(t *testing.T) {
	t.Run("book", func(t *testing.T) {
		opts := DefaultOptions()
		opts.EvalCacheEntries = 0
		eng, err := NewEngine(opts)
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		b := mustHistory(t, board.DefaultConfig)
		got, err := eng.Decide(b, time.Second)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if got != 3 || eng.Stats().Source != SourceBook {
			t.Errorf("got %d from %s, want 3 from %s", got, eng.Stats().Source, SourceBook)
		}
	})

	t.Run("search", func(t *testing.T) {
		eng := newTestEngine(t)
		b := mustHistory(t, board.DefaultConfig)
		got, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 2, MaxDepth: 4})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if got != 3 || eng.Stats().Source != SourceSearch {
			t.Errorf("got %d from %s, want 3 from %s", got, eng.Stats().Source, SourceSearch)
		}
	})
}

func TestDecideScenarioBoard(t *testing.T) {
	P1, P2 := board.PlayerOne, board.PlayerTwo
	columns := [][]board.Player{{P1, P1}, {P1, P2, P2}, {}, {P2}, {}, {}, {}}

	for _, withBook := range []bool{false, true} {
		b, err := board.FromColumns(board.DefaultConfig, columns, P1)
		if err != nil {
			t.Fatalf("FromColumns: %v", err)
		}
		eng := newTestEngine(t)
		if withBook {
			eng.SetBook(book.Default())
		}

		got, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 2, MaxDepth: 6})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if got < 0 || got >= b.Columns() || !b.CanPlay(got) {
			t.Fatalf("Decide returned unplayable column %d", got)
		}

		// Brute force: any immediate win must be taken.
		for _, col := range b.ValidMoves() {
			if err := b.Apply(col); err != nil {
				t.Fatal(err)
			}
			wins := b.Winner() == P1
			if err := b.Undo(col); err != nil {
				t.Fatal(err)
			}
			if wins && !b.WinsAt(got, P1) {
				t.Errorf("column %d wins but Decide chose %d", col, got)
			}
		}
	}
}

func TestDecideErrors(t *testing.T) {
	eng := newTestEngine(t)

	won := mustHistory(t, board.DefaultConfig, 0, 1, 0, 1, 0, 1, 0)
	if _, err := eng.Decide(won, time.Second); !errors.Is(err, ErrGameOver) || !errors.Is(err, ErrNoMoves) {
		t.Errorf("won position: err = %v, want ErrGameOver", err)
	}

	// 1x2 board, win length 2: fills without a winner.
	cfg := board.Config{Rows: 1, Columns: 2, WinLength: 2}
	full := mustHistory(t, cfg, 0, 1)
	if _, err := eng.Decide(full, time.Second); !errors.Is(err, ErrNoMoves) {
		t.Errorf("full board: err = %v, want ErrNoMoves", err)
	}

	b := mustHistory(t, board.DefaultConfig)
	if _, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 4, MaxDepth: 2}); err == nil {
		t.Error("inverted limits accepted")
	}
}

func TestDecideFallsBackToCenter(t *testing.T) {
	eng := newTestEngine(t)
	b := mustHistory(t, board.DefaultConfig, 0, 6)

	// A budget that is gone before the first depth starts.
	got, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 2, MaxDepth: 4, MoveTime: time.Nanosecond})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got != 3 || eng.Stats().Source != SourceFallback {
		t.Errorf("got %d from %s, want 3 from %s", got, eng.Stats().Source, SourceFallback)
	}
}

func TestOnInfoDepths(t *testing.T) {
	eng := newTestEngine(t)
	var depths []int
	eng.OnInfo = func(info SearchInfo) {
		depths = append(depths, info.Depth)
		if len(info.PV) == 0 || info.PV[0] != info.Move {
			t.Errorf("depth %d: PV %v does not start with %d", info.Depth, info.PV, info.Move)
		}
	}

	b := mustHistory(t, board.DefaultConfig, 3, 3)
	if _, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 2, MaxDepth: 6}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	want := []int{2, 4, 6}
	if len(depths) != len(want) {
		t.Fatalf("depths = %v, want %v", depths, want)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Errorf("depths = %v, want %v", depths, want)
			break
		}
	}
	if s := eng.Stats(); s.Depth != 6 || s.Nodes == 0 || s.TTEntries == 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestProvenWinStopsDeepening(t *testing.T) {
	// Player one threatens on both sides of 1..3 in row 0: a win in two.
	eng := newTestEngine(t)
	b := mustHistory(t, board.DefaultConfig, 2, 2, 3, 3)

	var depths []int
	eng.OnInfo = func(info SearchInfo) { depths = append(depths, info.Depth) }

	got, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 4, MaxDepth: 12})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got != 1 && got != 4 {
		t.Errorf("got %d, want 1 or 4", got)
	}
	if !IsProven(eng.Stats().Score) {
		t.Errorf("score %d not proven", eng.Stats().Score)
	}
	if len(depths) != 1 {
		t.Errorf("searched depths %v, want only the first", depths)
	}
}

func TestHistoryPolicy(t *testing.T) {
	eng := newTestEngine(t)
	b := mustHistory(t, board.DefaultConfig, 3, 3, 2)

	if _, err := eng.DecideWithLimits(b, SearchLimits{MinDepth: 4, MaxDepth: 6}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	total := func() int {
		sum := 0
		for col := 0; col < b.Columns(); col++ {
			sum += eng.searcher.Orderer().HistoryScore(col, board.PlayerOne)
			sum += eng.searcher.Orderer().HistoryScore(col, board.PlayerTwo)
		}
		return sum
	}
	if total() == 0 {
		t.Fatal("search left no history")
	}
	if k := eng.searcher.Orderer().Killers(1); k[0] == NoMove {
		t.Error("search left no killer at ply 1")
	}

	eng.Clear()
	if total() != 0 {
		t.Error("Clear kept history")
	}
	if eng.tt.Len() != 0 {
		t.Error("Clear kept table entries")
	}
}

func TestCollidingTableStaysSane(t *testing.T) {
	for _, moves := range searchPositions {
		masked := newTestEngine(t)
		masked.tt.keyMask = 0xF
		plain := newTestEngine(t)

		b := mustHistory(t, board.DefaultConfig, moves...)
		before := b.Copy()

		for depth := 1; depth <= 5; depth++ {
			move, score, err := masked.SearchDepth(b, depth)
			if err != nil {
				t.Fatalf("%v depth %d: %v", moves, depth, err)
			}
			_, want, err := plain.SearchDepth(b, depth)
			if err != nil {
				t.Fatalf("%v depth %d unmasked: %v", moves, depth, err)
			}

			if !b.CanPlay(move) {
				t.Errorf("%v depth %d: unplayable move %d", moves, depth, move)
			}
			if score != want {
				t.Errorf("%v depth %d: colliding table scored %d, full keys %d", moves, depth, score, want)
			}
			if score < -(WinScore+MaxPly) || score > WinScore+MaxPly {
				t.Errorf("%v depth %d: unbounded score %d", moves, depth, score)
			}
		}
		if masked.tt.Len() > 16 {
			t.Errorf("masked table holds %d entries", masked.tt.Len())
		}
		if !b.Equal(before) {
			t.Errorf("%v: board changed", moves)
		}

		got, err := masked.DecideWithLimits(b, SearchLimits{MinDepth: 2, MaxDepth: 6})
		if err != nil || !b.CanPlay(got) {
			t.Errorf("%v: Decide = %d, %v", moves, got, err)
		}
	}
}

func TestResizeTTKeepsSettings(t *testing.T) {
	eng := newTestEngine(t)
	limits := SearchLimits{MinDepth: 2, MaxDepth: 10}
	if err := eng.SetLimits(limits); err != nil {
		t.Fatal(err)
	}

	b := mustHistory(t, board.DefaultConfig, 3, 3)
	if _, _, err := eng.SearchDepth(b, 4); err != nil {
		t.Fatal(err)
	}
	if eng.tt.Len() == 0 {
		t.Fatal("search stored nothing")
	}
	eng.SetPruning(false)

	eng.ResizeTT(500)
	if eng.tt.Len() != 0 || eng.tt.Capacity() != 500 {
		t.Errorf("table after resize: len %d capacity %d", eng.tt.Len(), eng.tt.Capacity())
	}
	if eng.searcher.tt != eng.tt {
		t.Error("searcher still uses the old table")
	}
	if eng.Limits() != limits || eng.Pruning() {
		t.Errorf("resize changed limits %+v or pruning %v", eng.Limits(), eng.Pruning())
	}
}

func TestTimeManagerBudget(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(0)
	if tm.Budget() != 0 || tm.Remaining() != 0 || tm.Exceeded() {
		t.Errorf("unlimited: budget %v remaining %v", tm.Budget(), tm.Remaining())
	}

	tm.Init(time.Hour)
	if tm.Budget() != time.Hour {
		t.Errorf("budget = %v", tm.Budget())
	}
	if r := tm.Remaining(); r <= 0 || r > time.Hour {
		t.Errorf("remaining = %v", r)
	}

	tm.Init(time.Nanosecond)
	time.Sleep(time.Millisecond)
	if !tm.Exceeded() || tm.Remaining() != 0 {
		t.Errorf("spent budget: exceeded %v remaining %v", tm.Exceeded(), tm.Remaining())
	}
}

func TestPerft(t *testing.T) {
	eng := newTestEngine(t)

	b := mustHistory(t, board.DefaultConfig)
	want := []uint64{1, 7, 49, 343, 2401}
	for depth, n := range want {
		if got := eng.Perft(b, depth); got != n {
			t.Errorf("perft(%d) = %d, want %d", depth, got, n)
		}
	}

	// One row, four columns: nobody can complete a line, so every order counts.
	row := mustHistory(t, board.Config{Rows: 1, Columns: 4, WinLength: 4})
	if got := eng.Perft(row, 4); got != 24 {
		t.Errorf("1x4 perft(4) = %d, want 24", got)
	}
}

func TestLimitsAndDifficulty(t *testing.T) {
	for _, d := range []Difficulty{Easy, Medium, Hard} {
		if err := DifficultySettings[d].Validate(); err != nil {
			t.Errorf("%s: %v", d, err)
		}
		parsed, err := ParseDifficulty(d.String())
		if err != nil || parsed != d {
			t.Errorf("ParseDifficulty(%q) = %v, %v", d.String(), parsed, err)
		}
	}
	if _, err := ParseDifficulty("impossible"); err == nil {
		t.Error("ParseDifficulty accepted an unknown level")
	}

	eng := newTestEngine(t)
	eng.SetDifficulty(Hard)
	if eng.Limits() != DifficultySettings[Hard] {
		t.Errorf("Limits = %+v", eng.Limits())
	}
	if err := eng.SetLimits(SearchLimits{MinDepth: 0, MaxDepth: 4}); err == nil {
		t.Error("SetLimits accepted min depth 0")
	}
}

func TestScoreToString(t *testing.T) {
	// Win found at ply 3 of a depth-6 search.
	win := WinScore + (6 - 3) - 3
	if got := ScoreToString(win, 6); got != "Win in 2" {
		t.Errorf("ScoreToString(win) = %q", got)
	}
	if got := ScoreToString(-win, 6); got != "Loss in 2" {
		t.Errorf("ScoreToString(loss) = %q", got)
	}
	if got := ScoreToString(-42, 6); got != "-42" {
		t.Errorf("ScoreToString(-42) = %q", got)
	}
}

func TestAllocateFromClock(t *testing.T) {
	if got := AllocateFromClock(42*time.Second, 42); got != 2*time.Second {
		t.Errorf("42s over 42 cells = %v, want 2s", got)
	}
	if got := AllocateFromClock(time.Second, 1); got != 950*time.Millisecond {
		t.Errorf("last move = %v, want 950ms", got)
	}
	if got := AllocateFromClock(time.Millisecond, 40); got != minAllocation {
		t.Errorf("tiny clock = %v, want %v", got, minAllocation)
	}
}

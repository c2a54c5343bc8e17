// Package protocol implements a line-based text protocol for driving the
// engine from a GUI or a terminal, in the manner of UCI.
package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/hailam/connectplay/internal/bench"
	"github.com/hailam/connectplay/internal/board"
	"github.com/hailam/connectplay/internal/book"
	"github.com/hailam/connectplay/internal/engine"
	"github.com/hailam/connectplay/internal/storage"
)

// ErrStorageDisabled is reported by commands that need a database when none is attached.
var ErrStorageDisabled = errors.New("storage disabled")

// Protocol reads commands and writes replies. Commands run one at a time;
// a "go" blocks until the engine has decided.
type Protocol struct {
	engine *engine.Engine
	opts   engine.Options
	cfg    board.Config
	board  *board.Board
	store  *storage.Storage // optional
	out    io.Writer

	gameStart time.Time
}

// New creates a protocol handler with a fresh engine on an empty board of cfg.
func New(opts engine.Options, cfg board.Config, out io.Writer) (*Protocol, error) {
	b, err := board.New(cfg)
	if err != nil {
		return nil, err
	}
	eng, err := engine.NewEngine(opts)
	if err != nil {
		return nil, err
	}
	return &Protocol{
		engine:    eng,
		opts:      opts,
		cfg:       cfg,
		board:     b,
		out:       out,
		gameStart: time.Now(),
	}, nil
}

// SetStorage attaches the database used by "result" and "stats".
func (p *Protocol) SetStorage(s *storage.Storage) {
	p.store = s
}

// Engine returns the engine in use.
func (p *Protocol) Engine() *engine.Engine {
	return p.engine
}

// Board returns a copy of the current position.
func (p *Protocol) Board() *board.Board {
	return p.board.Copy()
}

// Close releases the engine.
func (p *Protocol) Close() {
	p.engine.Close()
}

// Run executes commands from in until "quit" or end of input.
func (p *Protocol) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if !p.Execute(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// Execute runs one command line. It returns false after "quit".
func (p *Protocol) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := parts[0], parts[1:]
	log.Debug().Str("cmd", cmd).Strs("args", args).Msg("command")

	var err error
	switch cmd {
	case "hello":
		p.handleHello()
	case "isready":
		p.send("readyok")
	case "newgame":
		err = p.handleNewGame(args)
	case "position":
		err = p.handlePosition(args)
	case "move":
		err = p.handleMove(args)
	case "go":
		err = p.handleGo(args)
	case "setoption":
		err = p.handleSetOption(args)
	case "d":
		p.handleDisplay()
	case "perft":
		err = p.handlePerft(args)
	case "bench":
		err = p.handleBench(args)
	case "stats":
		err = p.handleStats()
	case "result":
		err = p.handleResult(args)
	case "quit":
		return false
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Debug().Err(err).Str("cmd", cmd).Msg("command-failed")
		p.send("info string error: %v", err)
	}
	return true
}

func (p *Protocol) send(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// handleHello responds to the "hello" handshake.
func (p *Protocol) handleHello() {
	p.send("id name ConnectPlay")
	p.send("id board %s", p.cfg)
	p.send("option name Difficulty type combo default %s var easy var medium var hard", p.engine.Difficulty())
	p.send("option name Hash type spin default %d min 1 max 100000000", engine.DefaultTTEntries)
	p.send("option name Book type string default <builtin>")
	p.send("option name Pruning type check default true")
	p.send("hellook")
}

// handleNewGame resets the engine and the board, optionally resizing it.
// Format: newgame [rows columns winlength]
func (p *Protocol) handleNewGame(args []string) error {
	cfg := p.cfg
	if len(args) > 0 {
		if len(args) != 3 {
			return fmt.Errorf("newgame takes rows, columns and win length")
		}
		var dims [3]int
		for i, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("newgame: %w", err)
			}
			dims[i] = n
		}
		cfg = board.Config{Rows: dims[0], Columns: dims[1], WinLength: dims[2]}
	}

	b, err := board.New(cfg)
	if err != nil {
		return err
	}
	p.engine.Clear()
	p.cfg = cfg
	p.board = b
	p.gameStart = time.Now()
	return nil
}

// handlePosition sets up a position.
// Formats:
//   - position startpos [moves c1 c2 ...]
//   - position notation <columns> [side] [moves c1 c2 ...]
func (p *Protocol) handlePosition(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("position needs startpos or notation")
	}

	setup, moves := args, []string(nil)
	if i := slices.Index(args, "moves"); i >= 0 {
		setup, moves = args[:i], args[i+1:]
	}
	if len(setup) == 0 {
		return fmt.Errorf("position needs startpos or notation")
	}

	var b *board.Board
	var err error
	switch setup[0] {
	case "startpos":
		b, err = board.New(p.cfg)
	case "notation":
		b, err = board.ParseNotation(p.cfg, strings.Join(setup[1:], " "))
	default:
		return fmt.Errorf("unknown position type %q", setup[0])
	}
	if err != nil {
		return err
	}

	if err := applyMoves(b, moves); err != nil {
		return err
	}
	p.board = b
	return nil
}

// handleMove plays moves on the current position.
func (p *Protocol) handleMove(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("move needs at least one column")
	}
	b := p.board.Copy()
	if err := applyMoves(b, args); err != nil {
		return err
	}
	p.board = b

	if winner := b.Winner(); winner != board.NoPlayer {
		p.send("info string game over winner %d", int(winner))
	} else if b.IsFull() {
		p.send("info string game over draw")
	}
	return nil
}

func applyMoves(b *board.Board, moves []string) error {
	for _, s := range moves {
		col, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid move %q", s)
		}
		if b.Winner() != board.NoPlayer {
			return fmt.Errorf("move %d: %w", col, engine.ErrGameOver)
		}
		if err := b.Apply(col); err != nil {
			return err
		}
	}
	return nil
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth    int
	MoveTime time.Duration
	Time     time.Duration // Time left on the mover's clock
	Infinite bool
}

// handleGo decides a move for the current position and reports it.
func (p *Protocol) handleGo(args []string) error {
	opts, err := parseGoOptions(args)
	if err != nil {
		return err
	}
	limits := p.calculateLimits(opts)

	p.engine.OnInfo = p.sendInfo
	defer func() { p.engine.OnInfo = nil }()

	move, err := p.engine.DecideWithLimits(p.board, limits)
	if err != nil {
		p.send("info string error: %v", err)
		p.send("bestmove none")
		return nil
	}
	stats := p.engine.Stats()

	if p.store != nil {
		if err := p.store.RecordDecision(stats.Nodes); err != nil {
			log.Warn().Err(err).Msg("record-decision")
		}
	}
	p.send("info string source %s", stats.Source)
	p.send("bestmove %d", move)
	return nil
}

// parseGoOptions parses "go" command arguments.
func parseGoOptions(args []string) (GoOptions, error) {
	var opts GoOptions
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "infinite":
			opts.Infinite = true
			continue
		case "depth", "movetime", "time":
		default:
			return opts, fmt.Errorf("unknown go option %q", args[i])
		}

		if i+1 >= len(args) {
			return opts, fmt.Errorf("go %s needs a value", args[i])
		}
		n, err := strconv.Atoi(args[i+1])
		if err != nil || n < 0 {
			return opts, fmt.Errorf("go %s: invalid value %q", args[i], args[i+1])
		}
		switch args[i] {
		case "depth":
			opts.Depth = n
		case "movetime":
			opts.MoveTime = time.Duration(n) * time.Millisecond
		case "time":
			opts.Time = time.Duration(n) * time.Millisecond
		}
		i++
	}
	return opts, nil
}

// calculateLimits converts GoOptions to engine.SearchLimits, starting from
// the engine's difficulty limits.
func (p *Protocol) calculateLimits(opts GoOptions) engine.SearchLimits {
	limits := p.engine.Limits()

	if opts.Depth > 0 {
		limits.MaxDepth = min(opts.Depth, engine.MaxPly-1)
		// Keep the step-2 sequence landing on the requested depth.
		if limits.MinDepth > limits.MaxDepth {
			limits.MinDepth = limits.MaxDepth
		} else {
			limits.MinDepth = limits.MaxDepth - 2*((limits.MaxDepth-limits.MinDepth)/2)
		}
	}

	switch {
	case opts.Infinite:
		limits.MoveTime = 0
	case opts.MoveTime > 0:
		limits.MoveTime = opts.MoveTime
	case opts.Time > 0:
		empty := p.cfg.Cells() - p.board.Ply()
		limits.MoveTime = engine.AllocateFromClock(opts.Time, empty)
		p.send("info string time_allocated=%dms empty=%d", limits.MoveTime.Milliseconds(), empty)
	}
	return limits
}

// sendInfo outputs one completed depth.
func (p *Protocol) sendInfo(info engine.SearchInfo) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))

	if plies, ok := engine.PliesToEnd(info.Score, info.Depth); ok {
		moves := (plies + 1) / 2
		if info.Score > 0 {
			parts = append(parts, fmt.Sprintf("score win %d", moves))
		} else {
			parts = append(parts, fmt.Sprintf("score loss %d", moves))
		}
	} else {
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))

	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}

	if len(info.PV) > 0 {
		pv := make([]string, len(info.PV))
		for i, col := range info.PV {
			pv[i] = strconv.Itoa(col)
		}
		parts = append(parts, "pv "+strings.Join(pv, " "))
	}

	p.send("info %s", strings.Join(parts, " "))
}

// handleSetOption processes "setoption name <name> value <value>".
func (p *Protocol) handleSetOption(args []string) error {
	var name, value []string
	var target *[]string
	for _, arg := range args {
		switch arg {
		case "name":
			target = &name
		case "value":
			target = &value
		default:
			if target != nil {
				*target = append(*target, arg)
			}
		}
	}
	val := strings.Join(value, " ")

	switch strings.ToLower(strings.Join(name, " ")) {
	case "difficulty":
		d, err := engine.ParseDifficulty(val)
		if err != nil {
			return err
		}
		p.engine.SetDifficulty(d)
		p.opts.Difficulty = d
		return p.savePreference(func(prefs *storage.UserPreferences) {
			prefs.Difficulty = d.String()
		})
	case "hash":
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return fmt.Errorf("hash: invalid entry count %q", val)
		}
		return p.resizeHash(n)
	case "book":
		return p.setBook(val)
	case "pruning":
		on, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}
		p.engine.SetPruning(on)
		return nil
	default:
		return fmt.Errorf("unknown option %q", strings.Join(name, " "))
	}
}

// resizeHash gives the engine an empty table of n entries.
func (p *Protocol) resizeHash(n int) error {
	p.engine.ResizeTT(n)
	p.opts.TTEntries = n
	return nil
}

// setBook switches the opening book: "none", "default" or a YAML file.
func (p *Protocol) setBook(val string) error {
	var b *book.Book
	switch strings.ToLower(val) {
	case "", "none", "off":
	case "default", "<builtin>":
		b = book.Default()
	default:
		loaded, err := book.LoadFile(val)
		if err != nil {
			return err
		}
		if err := loaded.CheckWidth(p.cfg.Columns); err != nil {
			return err
		}
		b = loaded
	}
	p.engine.SetBook(b)
	p.opts.Book = b
	p.send("info string book entries %d", b.Size())
	return p.savePreference(func(prefs *storage.UserPreferences) {
		prefs.UseBook = b != nil
	})
}

func (p *Protocol) savePreference(update func(*storage.UserPreferences)) error {
	if p.store == nil {
		return nil
	}
	prefs, err := p.store.LoadPreferences()
	if err != nil {
		return err
	}
	update(prefs)
	return p.store.SavePreferences(prefs)
}

// handleDisplay prints the current position.
func (p *Protocol) handleDisplay() {
	p.send("board %s", p.cfg)
	p.send("notation %s", p.board.Notation())
	p.send("history %s", p.board.HistoryString())
	p.send("hash %016x", p.board.Hash())
	p.send("eval %d", p.engine.Evaluate(p.board))
	l := p.engine.Limits()
	p.send("limits depth %d..%d movetime %dms pruning %t", l.MinDepth, l.MaxDepth, l.MoveTime.Milliseconds(), p.engine.Pruning())
}

// handlePerft counts move sequences to the given depth.
func (p *Protocol) handlePerft(args []string) error {
	depth := 5
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("perft: invalid depth %q", args[0])
		}
		depth = n
	}

	start := time.Now()
	nodes := p.engine.Perft(p.board, depth)
	elapsed := time.Since(start)

	p.send("perft %d nodes %d time %d", depth, nodes, elapsed.Milliseconds())
	return nil
}

// handleBench runs the benchmark suite with the current engine options.
// Format: bench [depth n] [movetime ms]
func (p *Protocol) handleBench(args []string) error {
	opts, err := parseGoOptions(args)
	if err != nil {
		return err
	}
	limits := p.calculateLimits(opts)
	if opts.MoveTime == 0 {
		limits.MoveTime = 0
	}

	results, err := bench.Run(context.Background(), p.opts, limits, bench.DefaultSuite)
	if err != nil {
		return err
	}
	return bench.Report(p.out, results)
}

// handleStats prints the last decision and the stored totals.
func (p *Protocol) handleStats() error {
	st := p.engine.Stats()
	p.send("info string last source %s move %d depth %d score %s", st.Source, st.Move, st.Depth, engine.ScoreToString(st.Score, st.Depth))
	p.send("info string last nodes %s cutoffs %s ttprobes %s tthits %s ttentries %s evalhits %s time %dms",
		humanize.Comma(int64(st.Nodes)), humanize.Comma(int64(st.Cutoffs)),
		humanize.Comma(int64(st.TTProbes)), humanize.Comma(int64(st.TTHits)),
		humanize.Comma(int64(st.TTEntries)), humanize.Comma(int64(st.EvalHits)), st.Elapsed.Milliseconds())

	if p.store == nil {
		return nil
	}
	gs, err := p.store.LoadStats()
	if err != nil {
		return err
	}
	p.send("info string games %d wins %d losses %d draws %d winrate %.1f%% streak %d best %d",
		gs.GamesPlayed, gs.Wins, gs.Losses, gs.Draws, gs.GetWinRate(), gs.CurrentStreak, gs.LongestWinStrk)
	p.send("info string decisions %s nodes %s moves %s playtime %s",
		humanize.Comma(int64(gs.Decisions)), humanize.Comma(int64(gs.NodesSearched)),
		humanize.Comma(int64(gs.TotalMoves)), gs.TotalPlayTime.Round(time.Second))
	return nil
}

// handleResult records the outcome of the current game from the human's side.
// Format: result win|loss|draw
func (p *Protocol) handleResult(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("result takes win, loss or draw")
	}
	outcome, err := storage.ParseOutcome(args[0])
	if err != nil {
		return err
	}
	if p.store == nil {
		return ErrStorageDisabled
	}
	return p.store.RecordGame(storage.GameResult{
		Outcome:    outcome,
		Difficulty: p.engine.Difficulty().String(),
		Board:      p.cfg,
		Moves:      p.board.Ply(),
		Duration:   time.Since(p.gameStart),
	})
}

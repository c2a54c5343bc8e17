package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/connectplay/internal/board"
	"github.com/hailam/connectplay/internal/config"
	"github.com/hailam/connectplay/internal/engine"
	"github.com/hailam/connectplay/internal/protocol"
	"github.com/hailam/connectplay/internal/storage"
)

var (
	configPath = flag.String("config", "", "YAML config file (default: config.yaml in the data directory, if present)")
	dbDir      = flag.String("db", "", "database directory (default: the platform data directory)")
	noStore    = flag.Bool("no-store", false, "do not open the preferences and statistics database")
	logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
	difficulty = flag.String("difficulty", "", "difficulty: easy, medium, hard")
	bookPath   = flag.String("book", "", "opening book YAML file, or \"none\"")
	history    = flag.String("history", "", "decide the position reached by these space separated columns and exit")
	notation   = flag.String("notation", "", "decide the position in board notation and exit")
	moveTime   = flag.Duration("movetime", 0, "budget for -history and -notation (default: difficulty preset)")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := run(); err != nil {
		log.Error().Err(err).Msg("connectplay")
		os.Exit(1)
	}
}

func run() error {
	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("cpu-profiling")
	}

	cfg, fromFile, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	var store *storage.Storage
	if cfg.Storage.Enabled && !*noStore {
		if store, err = openStorage(cfg); err != nil {
			log.Warn().Err(err).Msg("storage-unavailable")
		} else {
			defer store.Close()
			applyPreferences(store, &cfg, fromFile)
		}
	}

	if *difficulty != "" {
		cfg.Engine.Difficulty = *difficulty
	}
	applyBookFlag(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	limits, err := cfg.Limits()
	if err != nil {
		return err
	}
	log.Debug().Str("board", cfg.Board.String()).Str("difficulty", cfg.Difficulty().String()).
		Int("book", opts.Book.Size()).Msg("configured")

	if *history != "" || *notation != "" {
		return decideOnce(cfg, opts, limits)
	}

	p, err := protocol.New(opts, cfg.Board, os.Stdout)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.Engine().SetLimits(limits); err != nil {
		return err
	}
	if store != nil {
		p.SetStorage(store)
	}
	return p.Run(os.Stdin)
}

// loadConfig reads -config, or the user config file when it exists.
func loadConfig() (config.Config, bool, error) {
	path := *configPath
	if path == "" {
		userPath, err := storage.GetConfigPath()
		if err != nil {
			return config.Default(), false, nil
		}
		if _, err := os.Stat(userPath); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), false, nil
		}
		path = userPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, false, err
	}
	return cfg, true, nil
}

func setupLogging(cfg config.Config) {
	level := cfg.LogLevel()
	if *logLevel != "" {
		if l, err := zerolog.ParseLevel(*logLevel); err == nil {
			level = l
		} else {
			log.Warn().Str("level", *logLevel).Msg("unknown log level")
		}
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Log.Console {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func openStorage(cfg config.Config) (*storage.Storage, error) {
	dir := *dbDir
	if dir == "" {
		dir = cfg.Storage.Dir
	}
	if dir == "" {
		return storage.NewStorage()
	}
	return storage.Open(dir)
}

// applyPreferences uses the stored difficulty when no config file chose one.
func applyPreferences(store *storage.Storage, cfg *config.Config, fromFile bool) {
	first, err := store.IsFirstLaunch()
	if err != nil {
		log.Warn().Err(err).Msg("first-launch-check")
	} else if first {
		log.Info().Msg("first-launch")
		if err := store.MarkFirstLaunchComplete(); err != nil {
			log.Warn().Err(err).Msg("first-launch-mark")
		}
	}

	if fromFile {
		return
	}
	prefs, err := store.LoadPreferences()
	if err != nil {
		log.Warn().Err(err).Msg("load-preferences")
		return
	}
	if _, err := engine.ParseDifficulty(prefs.Difficulty); err == nil {
		cfg.Engine.Difficulty = prefs.Difficulty
	}
}

// applyBookFlag resolves -book, then falls back to the user book file.
func applyBookFlag(cfg *config.Config) {
	switch *bookPath {
	case "none":
		cfg.Engine.UseBook = false
		return
	case "":
	default:
		cfg.Engine.UseBook = true
		cfg.Engine.BookPath = *bookPath
		return
	}

	if !cfg.Engine.UseBook || cfg.Engine.BookPath != "" {
		return
	}
	userBook, err := storage.GetBookPath()
	if err != nil {
		return
	}
	if _, err := os.Stat(userBook); err == nil {
		log.Debug().Str("path", userBook).Msg("user-book")
		cfg.Engine.BookPath = userBook
	}
}

// decideOnce decides the position given by -history or -notation and prints it.
func decideOnce(cfg config.Config, opts engine.Options, limits engine.SearchLimits) error {
	var b *board.Board
	var err error
	if *notation != "" {
		b, err = board.ParseNotation(cfg.Board, *notation)
	} else {
		var moves []int
		for _, f := range strings.Fields(*history) {
			col, convErr := strconv.Atoi(f)
			if convErr != nil {
				return fmt.Errorf("history: invalid column %q", f)
			}
			moves = append(moves, col)
		}
		b, err = board.FromHistory(cfg.Board, moves)
	}
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()
	if *moveTime > 0 {
		limits.MoveTime = *moveTime
	}

	move, err := eng.DecideWithLimits(b, limits)
	if err != nil {
		return err
	}
	st := eng.Stats()
	fmt.Printf("bestmove %d\n", move)
	log.Info().Str("source", string(st.Source)).Int("depth", st.Depth).
		Str("score", engine.ScoreToString(st.Score, st.Depth)).Uint64("nodes", st.Nodes).
		Dur("elapsed", st.Elapsed).Msg("decided")
	return nil
}

// Package config loads the engine configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"

	"github.com/hailam/connectplay/internal/board"
	"github.com/hailam/connectplay/internal/book"
	"github.com/hailam/connectplay/internal/engine"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full configuration file.
type Config struct {
	Board   board.Config   `yaml:"board"`
	Engine  EngineConfig   `yaml:"engine"`
	Weights engine.Weights `yaml:"weights"`
	Log     LogConfig      `yaml:"log"`
	Storage StorageConfig  `yaml:"storage"`
}

// EngineConfig holds search settings. Zero depths and move time fall back to
// the difficulty preset.
type EngineConfig struct {
	Difficulty       string `yaml:"difficulty"`
	MinDepth         int    `yaml:"min_depth"`
	MaxDepth         int    `yaml:"max_depth"`
	MoveTimeMs       int    `yaml:"move_time_ms"`
	TTEntries        int    `yaml:"tt_entries"`
	EvalCacheEntries int64  `yaml:"eval_cache_entries"`
	UseBook          bool   `yaml:"use_book"`
	BookPath         string `yaml:"book_path"` // empty means the built-in book
}

// LogConfig controls logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"` // human-readable output instead of JSON
}

// StorageConfig controls the preferences and statistics database.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty means the platform data directory
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Board: board.DefaultConfig,
		Engine: EngineConfig{
			Difficulty:       engine.Medium.String(),
			TTEntries:        engine.DefaultTTEntries,
			EvalCacheEntries: engine.DefaultEvalCacheEntries,
			UseBook:          true,
		},
		Weights: engine.DefaultWeights(),
		Log: LogConfig{
			Level:   zerolog.InfoLevel.String(),
			Console: true,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Board.Validate(); err != nil {
		return err
	}
	if _, err := engine.ParseDifficulty(c.Engine.Difficulty); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.Limits(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Engine.TTEntries < 1 {
		return fmt.Errorf("%w: tt_entries %d must be positive", ErrInvalid, c.Engine.TTEntries)
	}
	if c.Engine.EvalCacheEntries < 0 {
		return fmt.Errorf("%w: eval_cache_entries %d must not be negative", ErrInvalid, c.Engine.EvalCacheEntries)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalid, err)
	}
	return nil
}

// Difficulty returns the parsed difficulty, Medium if it does not parse.
func (c Config) Difficulty() engine.Difficulty {
	d, _ := engine.ParseDifficulty(c.Engine.Difficulty)
	return d
}

// Limits returns the difficulty preset with any explicit overrides applied.
func (c Config) Limits() (engine.SearchLimits, error) {
	limits := engine.DifficultySettings[c.Difficulty()]
	if c.Engine.MinDepth > 0 {
		limits.MinDepth = c.Engine.MinDepth
	}
	if c.Engine.MaxDepth > 0 {
		limits.MaxDepth = c.Engine.MaxDepth
	}
	if c.Engine.MoveTimeMs > 0 {
		limits.MoveTime = time.Duration(c.Engine.MoveTimeMs) * time.Millisecond
	}
	if err := limits.Validate(); err != nil {
		return engine.SearchLimits{}, err
	}
	return limits, nil
}

// LoadBook returns the configured opening book, nil when disabled. A book
// for another board width is rejected.
func (c Config) LoadBook() (*book.Book, error) {
	if !c.Engine.UseBook {
		return nil, nil
	}
	var b *book.Book
	if c.Engine.BookPath == "" {
		b = book.Default()
		if b.Width() != c.Board.Columns {
			// The built-in book only covers the classic width.
			return nil, nil
		}
	} else {
		var err error
		if b, err = book.LoadFile(c.Engine.BookPath); err != nil {
			return nil, err
		}
	}
	if err := b.CheckWidth(c.Board.Columns); err != nil {
		return nil, err
	}
	return b, nil
}

// EngineOptions builds engine options, loading the book.
func (c Config) EngineOptions() (engine.Options, error) {
	bk, err := c.LoadBook()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		TTEntries:        c.Engine.TTEntries,
		EvalCacheEntries: c.Engine.EvalCacheEntries,
		Weights:          c.Weights,
		Book:             bk,
		Difficulty:       c.Difficulty(),
	}, nil
}

// LogLevel returns the parsed log level, Info if it does not parse.
func (c Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

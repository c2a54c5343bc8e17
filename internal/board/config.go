package board

import (
	"errors"
	"fmt"
)

// Board size limits. Zobrist keys are generated for the full MaxColumns x MaxRows grid.
const (
	MaxRows    = 16
	MaxColumns = 16
	MaxCells   = MaxRows * MaxColumns
)

var (
	ErrInvalidConfig   = errors.New("invalid board config")
	ErrInvalidMove     = errors.New("invalid move")
	ErrEmptyColumn     = errors.New("empty column")
	ErrIllegalUndo     = errors.New("illegal undo")
	ErrInvalidPosition = errors.New("invalid position")
)

// Config holds the fixed per-match board geometry.
type Config struct {
	Rows      int `json:"rows" yaml:"rows"`
	Columns   int `json:"columns" yaml:"columns"`
	WinLength int `json:"win_length" yaml:"win_length"`
}

// DefaultConfig is the classic 6x7 board with four in a row.
var DefaultConfig = Config{Rows: 6, Columns: 7, WinLength: 4}

// Validate checks the geometry. A winning length longer than both dimensions
// can never be completed along any axis, so it is rejected up front.
func (c Config) Validate() error {
	if c.Rows < 1 || c.Columns < 1 || c.WinLength < 1 {
		return fmt.Errorf("%w: dimensions must be positive (rows=%d columns=%d win=%d)",
			ErrInvalidConfig, c.Rows, c.Columns, c.WinLength)
	}
	if c.Rows > MaxRows || c.Columns > MaxColumns {
		return fmt.Errorf("%w: board %dx%d exceeds %dx%d",
			ErrInvalidConfig, c.Rows, c.Columns, MaxRows, MaxColumns)
	}
	if c.WinLength > c.Rows && c.WinLength > c.Columns {
		return fmt.Errorf("%w: winning length %d exceeds both %d rows and %d columns",
			ErrInvalidConfig, c.WinLength, c.Rows, c.Columns)
	}
	return nil
}

// Cells returns the number of cells on the board.
func (c Config) Cells() int {
	return c.Rows * c.Columns
}

// Center returns the middle column (left of middle for even widths).
func (c Config) Center() int {
	return (c.Columns - 1) / 2
}

// CenterDistance returns twice the distance of col from the board's axis of symmetry.
// Doubling keeps it integral for even widths and makes it mirror-symmetric.
func (c Config) CenterDistance(col int) int {
	d := 2*col - (c.Columns - 1)
	if d < 0 {
		return -d
	}
	return d
}

// String returns "rowsxcolumns/win".
func (c Config) String() string {
	return fmt.Sprintf("%dx%d/%d", c.Rows, c.Columns, c.WinLength)
}

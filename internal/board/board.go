package board

import (
	"fmt"
	"strings"
)

// Board is the mutable game state: one stack of tokens per column (bottom to top),
// the move history and the side to move. A Board is not safe for concurrent use.
type Board struct {
	cfg        Config
	columns    [][]Player
	history    []int
	sideToMove Player
	hash       uint64
}

// New returns an empty board for the given geometry.
func New(cfg Config) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Board{
		cfg:        cfg,
		columns:    make([][]Player, cfg.Columns),
		history:    make([]int, 0, cfg.Cells()),
		sideToMove: PlayerOne,
	}
	for i := range b.columns {
		b.columns[i] = make([]Player, 0, cfg.Rows)
	}
	return b, nil
}

// FromHistory replays moves from an empty board.
func FromHistory(cfg Config, moves []int) (*Board, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for i, col := range moves {
		if err := b.Apply(col); err != nil {
			return nil, fmt.Errorf("history index %d: %w", i, err)
		}
	}
	return b, nil
}

// FromColumns builds a board from explicit column contents. Token counts must agree
// with toMove (PlayerOne always starts) and a gravity-consistent alternating history
// must exist; it is reconstructed so that Undo and the opening book keep working.
func FromColumns(cfg Config, columns [][]Player, toMove Player) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(columns) != cfg.Columns {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrInvalidPosition, len(columns), cfg.Columns)
	}
	if !toMove.Valid() {
		return nil, fmt.Errorf("%w: side to move %v", ErrInvalidPosition, toMove)
	}

	var counts [2]int
	for col, stack := range columns {
		if len(stack) > cfg.Rows {
			return nil, fmt.Errorf("%w: column %d holds %d tokens, capacity %d",
				ErrInvalidPosition, col, len(stack), cfg.Rows)
		}
		for _, p := range stack {
			if !p.Valid() {
				return nil, fmt.Errorf("%w: column %d contains %v", ErrInvalidPosition, col, p)
			}
			counts[p]++
		}
	}

	switch {
	case toMove == PlayerOne && counts[PlayerOne] != counts[PlayerTwo],
		toMove == PlayerTwo && counts[PlayerOne] != counts[PlayerTwo]+1:
		return nil, fmt.Errorf("%w: %d/%d tokens inconsistent with %v to move",
			ErrInvalidPosition, counts[PlayerOne], counts[PlayerTwo], toMove)
	}

	history, ok := reconstructHistory(columns, counts[PlayerOne]+counts[PlayerTwo])
	if !ok {
		return nil, fmt.Errorf("%w: no alternating move order produces this board", ErrInvalidPosition)
	}
	return FromHistory(cfg, history)
}

// reconstructHistory peels tokens off the column tops in reverse move order.
// Token i of the history always belongs to player i%2. Dead-end height vectors are memoized.
func reconstructHistory(columns [][]Player, total int) ([]int, bool) {
	heights := make([]byte, len(columns))
	for i, stack := range columns {
		heights[i] = byte(len(stack))
	}
	history := make([]int, total)
	failed := make(map[string]struct{})

	var peel func(n int) bool
	peel = func(n int) bool {
		if n == 0 {
			return true
		}
		if _, seen := failed[string(heights)]; seen {
			return false
		}
		p := Player((n - 1) % 2)
		for col := range columns {
			h := int(heights[col])
			if h == 0 || columns[col][h-1] != p {
				continue
			}
			heights[col]--
			history[n-1] = col
			if peel(n - 1) {
				return true
			}
			heights[col]++
		}
		failed[string(heights)] = struct{}{}
		return false
	}

	if !peel(total) {
		return nil, false
	}
	return history, true
}

// Config returns the board geometry.
func (b *Board) Config() Config { return b.cfg }

// Rows returns the column capacity.
func (b *Board) Rows() int { return b.cfg.Rows }

// Columns returns the number of columns.
func (b *Board) Columns() int { return b.cfg.Columns }

// WinLength returns the line length needed to win.
func (b *Board) WinLength() int { return b.cfg.WinLength }

// SideToMove returns the player whose turn it is.
func (b *Board) SideToMove() Player { return b.sideToMove }

// Hash returns the Zobrist fingerprint of the contents and side to move.
// Distinct positions may collide.
func (b *Board) Hash() uint64 { return b.hash }

// Ply returns the number of tokens placed.
func (b *Board) Ply() int { return len(b.history) }

// History returns a copy of the applied columns in order.
func (b *Board) History() []int {
	h := make([]int, len(b.history))
	copy(h, b.history)
	return h
}

// LastMove returns the most recently applied column.
func (b *Board) LastMove() (int, bool) {
	if len(b.history) == 0 {
		return 0, false
	}
	return b.history[len(b.history)-1], true
}

// Height returns the number of tokens in col.
func (b *Board) Height(col int) int {
	return len(b.columns[col])
}

// At returns the owner of a cell, NoPlayer if empty or off the board.
func (b *Board) At(col, row int) Player {
	if col < 0 || col >= b.cfg.Columns || row < 0 || row >= len(b.columns[col]) {
		return NoPlayer
	}
	return b.columns[col][row]
}

// Column returns a copy of a column stack, bottom first.
func (b *Board) Column(col int) []Player {
	c := make([]Player, len(b.columns[col]))
	copy(c, b.columns[col])
	return c
}

// CanPlay reports whether col is in range and has room.
func (b *Board) CanPlay(col int) bool {
	return col >= 0 && col < b.cfg.Columns && len(b.columns[col]) < b.cfg.Rows
}

// Apply drops the side to move's token into col and passes the turn.
func (b *Board) Apply(col int) error {
	if col < 0 || col >= b.cfg.Columns {
		return fmt.Errorf("%w: column %d out of range [0,%d)", ErrInvalidMove, col, b.cfg.Columns)
	}
	row := len(b.columns[col])
	if row >= b.cfg.Rows {
		return fmt.Errorf("%w: column %d is full", ErrInvalidMove, col)
	}

	p := b.sideToMove
	b.columns[col] = append(b.columns[col], p)
	b.history = append(b.history, col)
	b.hash ^= zobristToken[p][col][row] ^ zobristSideToMove
	b.sideToMove = p.Opponent()
	return nil
}

// Undo reverses the most recent Apply, which must have been into col.
func (b *Board) Undo(col int) error {
	if col < 0 || col >= b.cfg.Columns {
		return fmt.Errorf("%w: column %d out of range [0,%d)", ErrIllegalUndo, col, b.cfg.Columns)
	}
	h := len(b.columns[col])
	if h == 0 {
		return fmt.Errorf("%w: column %d", ErrEmptyColumn, col)
	}
	n := len(b.history)
	if n == 0 || b.history[n-1] != col {
		return fmt.Errorf("%w: column %d is not the last move", ErrIllegalUndo, col)
	}

	p := b.columns[col][h-1]
	b.columns[col] = b.columns[col][:h-1]
	b.history = b.history[:n-1]
	b.hash ^= zobristToken[p][col][h-1] ^ zobristSideToMove
	b.sideToMove = p
	return nil
}

// ValidMoves returns the ascending columns that still have room.
func (b *Board) ValidMoves() []int {
	moves := make([]int, 0, b.cfg.Columns)
	for col := range b.columns {
		if len(b.columns[col]) < b.cfg.Rows {
			moves = append(moves, col)
		}
	}
	return moves
}

// IsFull reports whether every column is at capacity.
func (b *Board) IsFull() bool {
	return len(b.history) == b.cfg.Cells()
}

// IsTerminal reports whether the game is over.
func (b *Board) IsTerminal() bool {
	return b.IsFull() || b.Winner() != NoPlayer
}

// owns reports whether (col, row) is on the board and held by p.
func (b *Board) owns(col, row int, p Player) bool {
	return col >= 0 && col < b.cfg.Columns && row >= 0 && row < len(b.columns[col]) && b.columns[col][row] == p
}

// RunLength returns the length of p's consecutive run through (col, row) along d,
// counting the cell itself as p's whether or not it is occupied. Each side is
// scanned at most WinLength-1 cells.
func (b *Board) RunLength(col, row int, d Direction, p Player) int {
	count := 1
	for i := 1; i < b.cfg.WinLength; i++ {
		if !b.owns(col+i*d.DC, row+i*d.DR, p) {
			break
		}
		count++
	}
	for i := 1; i < b.cfg.WinLength; i++ {
		if !b.owns(col-i*d.DC, row-i*d.DR, p) {
			break
		}
		count++
	}
	return count
}

// WinnerFromLastMove checks only the lines through the last placed token.
// It is exact only immediately after a move; use Winner for arbitrary boards.
func (b *Board) WinnerFromLastMove() Player {
	n := len(b.history)
	if n == 0 {
		return NoPlayer
	}
	col := b.history[n-1]
	row := len(b.columns[col]) - 1
	p := b.columns[col][row]
	for _, d := range Directions {
		if b.RunLength(col, row, d, p) >= b.cfg.WinLength {
			return p
		}
	}
	return NoPlayer
}

// WinsAt reports whether dropping p's token into col would complete a line.
// The board is not modified.
func (b *Board) WinsAt(col int, p Player) bool {
	if !b.CanPlay(col) {
		return false
	}
	row := len(b.columns[col])
	for _, d := range Directions {
		if b.RunLength(col, row, d, p) >= b.cfg.WinLength {
			return true
		}
	}
	return false
}

// Winner scans every line on the board. If both players own a line (unreachable
// in legal play) the first found in column-major order is reported.
func (b *Board) Winner() Player {
	l := b.cfg.WinLength
	for col := 0; col < b.cfg.Columns; col++ {
		for row := 0; row < len(b.columns[col]); row++ {
			p := b.columns[col][row]
			for _, d := range Directions {
				endCol, endRow := col+(l-1)*d.DC, row+(l-1)*d.DR
				if endCol < 0 || endCol >= b.cfg.Columns || endRow < 0 || endRow >= b.cfg.Rows {
					continue
				}
				n := 1
				for n < l && b.owns(col+n*d.DC, row+n*d.DR, p) {
					n++
				}
				if n == l {
					return p
				}
			}
		}
	}
	return NoPlayer
}

// Copy returns a deep copy.
func (b *Board) Copy() *Board {
	nb := &Board{
		cfg:        b.cfg,
		columns:    make([][]Player, len(b.columns)),
		history:    make([]int, len(b.history), cap(b.history)),
		sideToMove: b.sideToMove,
		hash:       b.hash,
	}
	copy(nb.history, b.history)
	for i, stack := range b.columns {
		nb.columns[i] = make([]Player, len(stack), b.cfg.Rows)
		copy(nb.columns[i], stack)
	}
	return nb
}

// MirrorColumn maps col onto its left-right reflection.
func (b *Board) MirrorColumn(col int) int {
	return b.cfg.Columns - 1 - col
}

// Mirror returns the left-right reflection of the board, history included.
func (b *Board) Mirror() *Board {
	nb := b.Copy()
	for i := range b.columns {
		nb.columns[b.MirrorColumn(i)] = append(nb.columns[b.MirrorColumn(i)][:0], b.columns[i]...)
	}
	for i, col := range b.history {
		nb.history[i] = b.MirrorColumn(col)
	}
	nb.hash = nb.computeHash()
	return nb
}

// Equal reports whether two boards have the same geometry, contents, history and side to move.
func (b *Board) Equal(o *Board) bool {
	if b.cfg != o.cfg || b.sideToMove != o.sideToMove || b.hash != o.hash || len(b.history) != len(o.history) {
		return false
	}
	for i := range b.history {
		if b.history[i] != o.history[i] {
			return false
		}
	}
	for col := range b.columns {
		if len(b.columns[col]) != len(o.columns[col]) {
			return false
		}
		for row := range b.columns[col] {
			if b.columns[col][row] != o.columns[col][row] {
				return false
			}
		}
	}
	return true
}

// String returns the notation of the board.
func (b *Board) String() string {
	return b.Notation()
}

// HistoryString formats the move history as space separated columns.
func (b *Board) HistoryString() string {
	var sb strings.Builder
	for i, col := range b.history {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d", col)
	}
	return sb.String()
}

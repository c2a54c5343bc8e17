// Package book implements an opening book keyed by move history.
package book

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"

	"github.com/hailam/connectplay/internal/board"
)

// DefaultMaxPly is the longest history the book is consulted for.
const DefaultMaxPly = 8

// ErrWidthMismatch is returned when a book does not fit the board width.
var ErrWidthMismatch = errors.New("book width mismatch")

// Entry is a single book line: the moves played so far and the reply.
type Entry struct {
	Moves []int `yaml:"moves"`
	Move  int   `yaml:"move"`
}

// Book maps move histories on a board of a fixed width to a suggested column.
// Lookups also try the mirrored history and mirror the answer back, so only
// one side of each symmetric line needs an entry.
type Book struct {
	width   int
	maxPly  int
	entries map[uint64]Entry
}

// New creates an empty book for boards width columns wide.
func New(width int) *Book {
	return &Book{
		width:   width,
		maxPly:  DefaultMaxPly,
		entries: make(map[uint64]Entry),
	}
}

// Default returns the built-in book for 7-column boards.
func Default() *Book {
	b := New(7)
	for _, e := range defaultLines {
		// The built-in lines are all in range.
		_ = b.Add(e.Moves, e.Move)
	}
	return b
}

var defaultLines = []Entry{
	{Moves: []int{}, Move: 3},

	{Moves: []int{0}, Move: 3},
	{Moves: []int{1}, Move: 3},
	{Moves: []int{2}, Move: 3},
	{Moves: []int{3}, Move: 2},
	{Moves: []int{4}, Move: 3},
	{Moves: []int{5}, Move: 3},
	{Moves: []int{6}, Move: 3},

	{Moves: []int{3, 2}, Move: 4},
	{Moves: []int{3, 4}, Move: 2},
	{Moves: []int{3, 1}, Move: 5},
	{Moves: []int{3, 5}, Move: 1},
	{Moves: []int{3, 0}, Move: 6},
	{Moves: []int{3, 6}, Move: 0},
	{Moves: []int{3, 3}, Move: 2},
	{Moves: []int{2, 3}, Move: 4},
	{Moves: []int{4, 3}, Move: 2},
	{Moves: []int{1, 3}, Move: 5},
	{Moves: []int{5, 3}, Move: 1},
	{Moves: []int{2, 4}, Move: 3},
	{Moves: []int{4, 2}, Move: 3},

	{Moves: []int{3, 2, 4}, Move: 1},
	{Moves: []int{3, 4, 2}, Move: 5},
	{Moves: []int{3, 2, 1}, Move: 4},
	{Moves: []int{3, 4, 5}, Move: 2},
}

// Width returns the board width the book is for.
func (b *Book) Width() int {
	return b.width
}

// MaxPly returns the longest history the book is consulted for.
func (b *Book) MaxPly() int {
	return b.maxPly
}

// SetMaxPly sets the longest history the book is consulted for.
func (b *Book) SetMaxPly(n int) {
	b.maxPly = n
}

// Size returns the number of entries.
func (b *Book) Size() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Add records col as the reply to moves. A later Add for the same history
// replaces the earlier one.
func (b *Book) Add(moves []int, col int) error {
	for i, m := range moves {
		if m < 0 || m >= b.width {
			return fmt.Errorf("book line move %d: column %d out of range [0,%d)", i, m, b.width)
		}
	}
	if col < 0 || col >= b.width {
		return fmt.Errorf("book reply: column %d out of range [0,%d)", col, b.width)
	}
	line := make([]int, len(moves))
	copy(line, moves)
	b.entries[key(moves)] = Entry{Moves: line, Move: col}
	return nil
}

// Lookup returns the reply stored for exactly this history.
func (b *Book) Lookup(moves []int) (int, bool) {
	if b == nil {
		return -1, false
	}
	e, ok := b.entries[key(moves)]
	if !ok {
		return -1, false
	}
	return e.Move, true
}

// Probe returns the book reply for the position, trying the history as
// played and then mirrored. A reply is only returned if it is legal.
func (b *Book) Probe(pos *board.Board) (int, bool) {
	if b == nil || pos.Columns() != b.width || pos.Ply() > b.maxPly {
		return -1, false
	}

	history := pos.History()
	if col, ok := b.Lookup(history); ok && pos.CanPlay(col) {
		return col, true
	}

	mirrored := lo.Map(history, func(c int, _ int) int { return pos.MirrorColumn(c) })
	if col, ok := b.Lookup(mirrored); ok {
		if col = pos.MirrorColumn(col); pos.CanPlay(col) {
			return col, true
		}
	}
	return -1, false
}

// Entries returns all lines, shortest first.
func (b *Book) Entries() []Entry {
	entries := lo.Values(b.entries)
	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i].Moves, entries[j].Moves
		if len(a) != len(c) {
			return len(a) < len(c)
		}
		for k := range a {
			if a[k] != c[k] {
				return a[k] < c[k]
			}
		}
		return entries[i].Move < entries[j].Move
	})
	return entries
}

// key hashes a move sequence. Each column is encoded as one byte.
func key(moves []int) uint64 {
	buf := make([]byte, 0, len(moves)+binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(len(moves)))
	for _, m := range moves {
		buf = append(buf, byte(m))
	}
	return xxhash.Sum64(buf)
}

// file is the on-disk YAML layout.
type file struct {
	Width   int     `yaml:"width"`
	MaxPly  int     `yaml:"max_ply,omitempty"`
	Entries []Entry `yaml:"entries"`
}

// LoadFile loads a YAML book from a file.
func LoadFile(filename string) (*Book, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadYAML(f)
}

// LoadYAML loads a book of the form
//
//	width: 7
//	max_ply: 8
//	entries:
//	  - moves: [3, 2]
//	    move: 4
func LoadYAML(r io.Reader) (*Book, error) {
	var doc file
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	if doc.Width < 1 || doc.Width > board.MaxColumns {
		return nil, fmt.Errorf("book width %d out of range [1,%d]", doc.Width, board.MaxColumns)
	}

	b := New(doc.Width)
	if doc.MaxPly > 0 {
		b.maxPly = doc.MaxPly
	}
	for i, e := range doc.Entries {
		if err := b.Add(e.Moves, e.Move); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return b, nil
}

// WriteYAML writes the book in the format LoadYAML reads.
func (b *Book) WriteYAML(w io.Writer) error {
	doc := file{Width: b.width, MaxPly: b.maxPly, Entries: b.Entries()}
	return yaml.NewEncoder(w).Encode(doc)
}

// CheckWidth returns ErrWidthMismatch unless the book fits boards of width columns.
func (b *Book) CheckWidth(columns int) error {
	if b != nil && b.width != columns {
		return fmt.Errorf("%w: book is for %d columns, board has %d", ErrWidthMismatch, b.width, columns)
	}
	return nil
}

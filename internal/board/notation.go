package board

import (
	"fmt"
	"strings"
)

// StartNotation is the notation of the empty default board.
const StartNotation = "////// 0"

// ParseNotation parses "<col>/<col>/... [side]" where each column lists its tokens
// bottom to top as '0' or '1'. When the side field is omitted it is derived from
// the token counts.
func ParseNotation(cfg Config, s string) (*Board, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 2 {
		return nil, fmt.Errorf("%w: notation needs 1 or 2 fields, got %d", ErrInvalidPosition, len(parts))
	}

	cols := strings.Split(parts[0], "/")
	if len(cols) != cfg.Columns {
		return nil, fmt.Errorf("%w: notation has %d columns, board has %d", ErrInvalidPosition, len(cols), cfg.Columns)
	}

	columns := make([][]Player, len(cols))
	var counts [2]int
	for i, c := range cols {
		columns[i] = make([]Player, 0, len(c))
		for _, ch := range c {
			switch ch {
			case '0':
				columns[i] = append(columns[i], PlayerOne)
				counts[PlayerOne]++
			case '1':
				columns[i] = append(columns[i], PlayerTwo)
				counts[PlayerTwo]++
			default:
				return nil, fmt.Errorf("%w: unexpected %q in column %d", ErrInvalidPosition, ch, i)
			}
		}
	}

	toMove := PlayerOne
	if counts[PlayerOne] > counts[PlayerTwo] {
		toMove = PlayerTwo
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "0":
			toMove = PlayerOne
		case "1":
			toMove = PlayerTwo
		default:
			return nil, fmt.Errorf("%w: invalid side to move %q", ErrInvalidPosition, parts[1])
		}
	}

	return FromColumns(cfg, columns, toMove)
}

// Notation returns the board in ParseNotation form, side to move included.
func (b *Board) Notation() string {
	var sb strings.Builder
	for col, stack := range b.columns {
		if col > 0 {
			sb.WriteByte('/')
		}
		for _, p := range stack {
			sb.WriteByte(p.Symbol())
		}
	}
	sb.WriteByte(' ')
	sb.WriteByte(b.sideToMove.Symbol())
	return sb.String()
}

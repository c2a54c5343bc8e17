package board

// Player identifies the owner of a token or the side to move.
type Player uint8

const (
	PlayerOne Player = iota // Always moves first
	PlayerTwo
	NoPlayer Player = 2
)

// Opponent returns the other player.
func (p Player) Opponent() Player {
	return p ^ 1
}

// Valid reports whether p is one of the two players.
func (p Player) Valid() bool {
	return p == PlayerOne || p == PlayerTwo
}

// Symbol returns the notation character for the player.
func (p Player) Symbol() byte {
	switch p {
	case PlayerOne:
		return '0'
	case PlayerTwo:
		return '1'
	default:
		return '.'
	}
}

// String returns the player name.
func (p Player) String() string {
	switch p {
	case PlayerOne:
		return "PlayerOne"
	case PlayerTwo:
		return "PlayerTwo"
	default:
		return "NoPlayer"
	}
}

// Direction is a step along one of the four line axes.
type Direction struct {
	DC int // Column step
	DR int // Row step
}

// Directions lists the four axes checked for lines: horizontal, vertical and both diagonals.
var Directions = [4]Direction{
	{DC: 1, DR: 0},
	{DC: 0, DR: 1},
	{DC: 1, DR: 1},
	{DC: 1, DR: -1},
}

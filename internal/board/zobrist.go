package board

// Zobrist hash keys for position fingerprints.
// Uses PRNG with fixed seed for reproducibility.
var (
	zobristToken      [2][MaxColumns][MaxRows]uint64 // [Player][Column][Row]
	zobristSideToMove uint64                         // XOR when PlayerTwo to move
)

func init() {
	initZobrist()
}

// Simple PRNG for reproducible Zobrist keys
type prng struct {
	state uint64
}

func newPRNG(seed uint64) *prng {
	return &prng{state: seed}
}

// xorshift64* algorithm
func (p *prng) next() uint64 {
	p.state ^= p.state >> 12
	p.state ^= p.state << 25
	p.state ^= p.state >> 27
	return p.state * 0x2545F4914F6CDD1D
}

func initZobrist() {
	rng := newPRNG(0x98F107A2BEEF1234) // Fixed seed

	for p := PlayerOne; p <= PlayerTwo; p++ {
		for col := 0; col < MaxColumns; col++ {
			for row := 0; row < MaxRows; row++ {
				zobristToken[p][col][row] = rng.next()
			}
		}
	}

	zobristSideToMove = rng.next()
}

// computeHash recomputes the fingerprint from scratch.
func (b *Board) computeHash() uint64 {
	var h uint64
	for col, stack := range b.columns {
		for row, p := range stack {
			h ^= zobristToken[p][col][row]
		}
	}
	if b.sideToMove == PlayerTwo {
		h ^= zobristSideToMove
	}
	return h
}

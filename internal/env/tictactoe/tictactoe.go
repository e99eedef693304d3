// Package tictactoe implements env.Game for tic-tac-toe on bitboards.
//
// Squares are numbered 0 to 8, row by row from the top-left corner.
package tictactoe

import (
	"math/bits"
	"strings"

	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/pkg/errors"
)

const (
	// Name under which the game is registered.
	Name = "tictactoe"

	// Version of the rules and features.
	Version = "tictactoe-v1"

	NumSquares = 9
	fullBoard  = 0b111111111
)

func init() {
	env.Register(Name, func() env.Game { return New() })
}

// Horizontal, vertical and diagonal winning patterns.
var winningPatterns = [8]uint16{
	0b111000000, 0b000111000, 0b000000111,
	0b100100100, 0b010010010, 0b001001001,
	0b100010001, 0b001010100,
}

// Game of tic-tac-toe. Player 0 plays crosses.
type Game struct {
	// boards has one bitboard per player.
	boards [2]uint16
	next   int

	finished bool
	outcome  float32
}

var _ env.Game = (*Game)(nil)

// New returns a game in the initial position.
func New() *Game { return &Game{} }

func (g *Game) Name() string    { return Name }
func (g *Game) Version() string { return Version }
func (g *Game) NumActions() int { return NumSquares }

// NumFeatures: one per square for the player's own marks, one per square for the opponent's.
func (g *Game) NumFeatures() int { return 2 * NumSquares }

func (g *Game) Reset()          { *g = Game{} }
func (g *Game) NextPlayer() int { return g.next }
func (g *Game) Finished() bool  { return g.finished }
func (g *Game) Outcome() float32 {
	return g.outcome
}

func (g *Game) Clone() env.Game {
	clone := *g
	return &clone
}

func (g *Game) free() uint16 {
	return fullBoard ^ (g.boards[0] | g.boards[1])
}

func (g *Game) Legal() []int {
	if g.finished {
		return nil
	}
	free := uint(g.free())
	actions := make([]int, 0, bits.OnesCount(free))
	for free != 0 {
		actions = append(actions, bits.TrailingZeros(free))
		free &= free - 1
	}
	return actions
}

func (g *Game) Act(action int) error {
	if g.finished {
		return errors.Errorf("tictactoe: action %d played on a finished game", action)
	}
	if action < 0 || action >= NumSquares || g.free()&(1<<action) == 0 {
		return errors.Errorf("tictactoe: illegal action %d in position\n%s", action, g)
	}
	g.boards[g.next] |= 1 << action
	g.checkTermination()
	g.next = 1 - g.next
	return nil
}

// checkTermination after a move of g.next.
func (g *Game) checkTermination() {
	board := g.boards[g.next]
	for _, pattern := range winningPatterns {
		if board&pattern == pattern {
			g.finished = true
			g.outcome = 1
			if g.next == 1 {
				g.outcome = -1
			}
			return
		}
	}
	if g.free() == 0 {
		g.finished = true
		g.outcome = 0
	}
}

func (g *Game) Features(player int) []float32 {
	features := make([]float32, 2*NumSquares)
	own, other := g.boards[player], g.boards[1-player]
	for square := range NumSquares {
		if own&(1<<square) != 0 {
			features[square] = 1
		}
		if other&(1<<square) != 0 {
			features[NumSquares+square] = 1
		}
	}
	return features
}

// String renders the board, with "X" for player 0 and "O" for player 1.
func (g *Game) String() string {
	var sb strings.Builder
	for row := range 3 {
		for col := range 3 {
			square := 3*row + col
			switch {
			case g.boards[0]&(1<<square) != 0:
				sb.WriteByte('X')
			case g.boards[1]&(1<<square) != 0:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

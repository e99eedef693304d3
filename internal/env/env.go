// Package env defines the two-player, turn-based, zero-sum games that collectors play to generate
// trajectories, and a registry of the available ones.
package env

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// Game is the state of a match of a two-player game. Players are numbered 0 (first to play) and 1.
//
// A Game is not safe for concurrent use, use Clone to give each goroutine its own copy.
type Game interface {
	// Name of the game, as registered.
	Name() string

	// Version of the rules and of the features. Trajectories recorded with a different version are not
	// compatible.
	Version() string

	// Reset to the initial position.
	Reset()

	// Clone returns an independent copy of the game.
	Clone() Game

	// NumActions is the size of the action space: actions are integers in [0, NumActions).
	NumActions() int

	// Legal returns the legal actions for NextPlayer. Empty if the game is finished.
	Legal() []int

	// Act plays the action for NextPlayer. It returns an error if the action is not legal.
	Act(action int) error

	// NextPlayer to act.
	NextPlayer() int

	// Finished returns whether the game is over.
	Finished() bool

	// Outcome returns, for a finished game, +1 if player 0 won, -1 if player 1 won and 0 for a draw.
	Outcome() float32

	// NumFeatures is the length of the vectors returned by Features.
	NumFeatures() int

	// Features of the position from the point of view of the given player.
	Features(player int) []float32
}

// OutcomeFor converts the outcome of a finished game to the point of view of player.
func OutcomeFor(g Game, player int) float32 {
	if player == 0 {
		return g.Outcome()
	}
	return -g.Outcome()
}

var (
	muRegistry sync.Mutex
	registry   = make(map[string]func() Game)
)

// Register a game constructor under name. Usually called from the game package init.
func Register(name string, newGame func() Game) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	registry[name] = newGame
}

// New creates a new game registered under name.
func New(name string) (Game, error) {
	muRegistry.Lock()
	newGame, found := registry[name]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("unknown game %q, registered games are %q", name, Names())
	}
	return newGame(), nil
}

// Names of the registered games, sorted.
func Names() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

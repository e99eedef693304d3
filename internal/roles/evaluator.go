package roles

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Opponents recognized by Evaluator, besides the path to a weights file.
const (
	OpponentRandom   = "random"
	OpponentPrevious = "previous"
)

// Evaluator plays the checkpoint published in the cycle (or the cycle's input checkpoint, if no trainer
// runs) against a baseline opponent.
type Evaluator struct {
	// Game prototype, cloned for each match.
	Game env.Game

	NewModel ModelFactory

	// Opponent is OpponentRandom (the default), OpponentPrevious for the checkpoint the cycle started from,
	// or the path to a weights file.
	Opponent string

	NumMatches int

	// Parallelism is the number of matches played concurrently. Defaults to the number of CPUs.
	Parallelism int

	// StopsCollection makes the evaluator set the stop signal once done, ending the cycle's collection.
	StopsCollection bool

	Seed uint64
}

var _ workers.Evaluator = (*Evaluator)(nil)

// Evaluate implements workers.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, cc *workers.CycleContext) (summary workers.EvalSummary, err error) {
	if e.StopsCollection {
		defer func() {
			if cc.Stop.Set() {
				klog.V(1).Infof("Cycle %d: evaluator stopped collection", cc.Cycle)
			}
		}()
	}
	record, err := cc.AwaitPublished(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Cycle interrupted or another task failed.
			return summary, nil
		}
		return summary, err
	}
	model, err := e.NewModel(record)
	if err != nil {
		return summary, errors.WithMessage(err, "evaluator creating model")
	}
	player := NewModelPlayer(model, 1, true)
	opponent, err := e.opponent(cc)
	if err != nil {
		return summary, err
	}
	summary.Opponent = opponent.String()
	aWins, bWins, draws, err := e.runMatches(ctx, cc.Cycle, [2]Player{player, opponent})
	if err != nil {
		return summary, err
	}
	summary.Wins, summary.Losses, summary.Draws = aWins, bWins, draws
	klog.Infof("Cycle %d: evaluation %s", cc.Cycle, summary)
	return summary, nil
}

func (e *Evaluator) opponent(cc *workers.CycleContext) (Player, error) {
	switch e.Opponent {
	case "", OpponentRandom:
		return RandomPlayer{}, nil
	case OpponentPrevious:
		model, err := e.NewModel(cc.Checkpoint)
		if err != nil {
			return nil, errors.WithMessage(err, "evaluator creating previous model")
		}
		p := NewModelPlayer(model, 1, true)
		p.name = "previous"
		return p, nil
	}
	weights, err := os.ReadFile(e.Opponent)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read opponent weights %q", e.Opponent)
	}
	model, err := e.NewModel(&checkpoints.Record{CycleID: -1, Weights: weights})
	if err != nil {
		return nil, errors.WithMessagef(err, "evaluator loading opponent %q", e.Opponent)
	}
	p := NewModelPlayer(model, 1, true)
	p.name = e.Opponent
	return p, nil
}

// runMatches between players A and B, alternating who plays first.
func (e *Evaluator) runMatches(ctx context.Context, cycle int, players [2]Player) (aWins, bWins, draws int, err error) {
	var mu sync.Mutex
	var wg errgroup.Group
	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	wg.SetLimit(parallelism)
	for matchIdx := range e.NumMatches {
		wg.Go(func() error {
			matchPlayers := players
			isSwapped := matchIdx%2 == 1
			if isSwapped {
				matchPlayers[0], matchPlayers[1] = matchPlayers[1], matchPlayers[0]
			}
			rng := rand.New(rand.NewPCG(e.Seed+uint64(cycle), uint64(matchIdx)))
			outcome, finished, err := PlayMatch(ctx, e.Game, matchPlayers, rng)
			if err != nil || !finished {
				return err
			}
			if isSwapped {
				outcome = -outcome
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case outcome > 0:
				aWins++
			case outcome < 0:
				bWins++
			default:
				draws++
			}
			return nil
		})
	}
	err = wg.Wait()
	return
}

// PlayMatch plays a match from the initial position of a clone of prototype. It returns the outcome for
// players[0]. It returns finished=false, with no error, if ctx is cancelled before the end.
func PlayMatch(ctx context.Context, prototype env.Game, players [2]Player, rng *rand.Rand) (outcome float32, finished bool, err error) {
	game := prototype.Clone()
	game.Reset()
	for !game.Finished() {
		if ctx.Err() != nil {
			return 0, false, nil
		}
		player := players[game.NextPlayer()]
		action, err := player.Play(game, rng)
		if err != nil {
			return 0, false, err
		}
		if err = game.Act(action); err != nil {
			return 0, false, errors.WithMessagef(err, "player %s", player)
		}
	}
	return game.Outcome(), true, nil
}

// String implements fmt.Stringer.
func (e *Evaluator) String() string {
	opponent := e.Opponent
	if opponent == "" {
		opponent = OpponentRandom
	}
	return fmt.Sprintf("evaluator(%d matches vs %s)", e.NumMatches, opponent)
}

// Package roles implements the tasks run by the worker pool in each cycle: collectors generating self-play
// trajectories, the trainer fitting a value model on them and the evaluator matching the new model
// against a baseline.
package roles

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/selfplay/internal/ai"
	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/generics"
	"github.com/pkg/errors"
)

// Player chooses the action for the next player of a game.
type Player interface {
	Play(game env.Game, rng *rand.Rand) (action int, err error)
	String() string
}

// ModelFactory creates the model for a checkpoint. A nil record means an untrained model.
type ModelFactory func(record *checkpoints.Record) (ai.ValueLearner, error)

// ModelPlayer plays by one step lookahead over a value model.
type ModelPlayer struct {
	policy *ai.PolicyProxy
	name   string

	// Greedy players always pick the best scored action. Otherwise actions are sampled from the policy.
	Greedy bool
}

// NewModelPlayer creates a player for scorer. scale multiplies the scores before the softmax that
// defines the policy: larger values play closer to greedy.
func NewModelPlayer(scorer ai.ValueScorer, scale float32, greedy bool) *ModelPlayer {
	return &ModelPlayer{policy: ai.NewPolicyProxy(scorer, scale), name: scorer.String(), Greedy: greedy}
}

func (p *ModelPlayer) String() string { return p.name }

// Play implements Player.
func (p *ModelPlayer) Play(game env.Game, rng *rand.Rand) (action int, err error) {
	err = exceptions.TryCatch[error](func() {
		if p.Greedy {
			actions, scores := p.policy.ActionScores(game)
			if len(actions) == 0 {
				exceptions.Panicf("no legal actions")
			}
			// Ties are broken at random.
			order := generics.SliceOrdering(scores, true)
			numTied := 1
			for numTied < len(order) && scores[order[numTied]] == scores[order[0]] {
				numTied++
			}
			action = actions[order[rng.IntN(numTied)]]
			return
		}
		actions, probs := p.policy.PolicyScore(game)
		if len(actions) == 0 {
			exceptions.Panicf("no legal actions")
		}
		action = actions[sample(probs, rng)]
	})
	if err != nil {
		err = errors.WithMessagef(err, "player %s failed to choose action", p)
	}
	return
}

// sample an index from the probabilities.
func sample(probs []float32, rng *rand.Rand) int {
	chance := rng.Float32()
	for ii, prob := range probs {
		if chance < prob {
			return ii
		}
		chance -= prob
	}
	// Rounding errors.
	return len(probs) - 1
}

// RandomPlayer plays uniformly at random among the legal actions. It is the default evaluation baseline.
type RandomPlayer struct{}

func (RandomPlayer) String() string { return "random" }

// Play implements Player.
func (RandomPlayer) Play(game env.Game, rng *rand.Rand) (int, error) {
	actions := game.Legal()
	if len(actions) == 0 {
		return 0, errors.New("random player: no legal actions")
	}
	return actions[rng.IntN(len(actions))], nil
}

package ai

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/selfplay/internal/env"
)

// PolicyProxy implement a PolicyScorer that wraps a common ValueScorer.
// It scores the policy by using the score of the state reached by each action, from the point of view of the
// player taking the action. Actions that finish the game are scored with the actual outcome.
type PolicyProxy struct {
	ValueScorer
	batchScorer BatchValueScorer
	scale       float32
}

// NewPolicyProxy returns a proxy PolicyScorer that takes a ValueScorer to score the states
// reached by each action, passes the output to a Softmax and return that probability as a policy.
// It also takes scale as a multiplier before the Softmax: larger values make the policy greedier.
func NewPolicyProxy(scorer ValueScorer, scale float32) *PolicyProxy {
	p := &PolicyProxy{
		ValueScorer: scorer,
		scale:       scale,
	}
	if batchScorer, ok := scorer.(BatchValueScorer); ok {
		p.batchScorer = batchScorer
	} else {
		p.batchScorer = BatchValueScorerProxy{scorer}
	}
	return p
}

// ActionScores returns the legal actions and their scores (before the softmax), from the point of view of
// the player to move.
func (p *PolicyProxy) ActionScores(game env.Game) (actions []int, scores []float32) {
	actions = game.Legal()
	if len(actions) == 0 {
		return
	}
	player := game.NextPlayer()
	scores = make([]float32, len(actions))
	var toScore [][]float32
	var toScoreIdx []int
	for ii, action := range actions {
		next := game.Clone()
		if err := next.Act(action); err != nil {
			exceptions.Panicf("PolicyProxy: legal action %d failed: %+v", action, err)
		}
		if isEnd, score := IsEndGameAndScore(next, player); isEnd {
			scores[ii] = score
			continue
		}
		toScore = append(toScore, next.Features(player))
		toScoreIdx = append(toScoreIdx, ii)
	}
	if len(toScore) > 0 {
		for ii, score := range p.batchScorer.BatchScore(toScore) {
			scores[toScoreIdx[ii]] = score
		}
	}
	return
}

// PolicyScore implements PolicyScorer.
func (p *PolicyProxy) PolicyScore(game env.Game) (actions []int, probs []float32) {
	actions, scores := p.ActionScores(game)
	if len(actions) == 0 {
		return
	}
	if p.scale != 1 {
		for ii := range scores {
			scores[ii] = p.scale * scores[ii]
		}
	}
	return actions, Softmax(scores)
}

// Softmax returns the Softmax of the given logits in a numerically stable way.
func Softmax(logits []float32) (probs []float32) {
	probs = make([]float32, len(logits))
	var sum float32

	// Subtract maxValue from all logits keep the probability the same, but makes for more numerically stable
	// logits.
	maxValue := slices.Max(logits)
	for ii, value := range logits {
		probs[ii] = math32.Exp(value - maxValue)
		sum += probs[ii]
	}
	for ii := range probs {
		probs[ii] /= sum
	}
	return
}

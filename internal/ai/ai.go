// Package ai (Artificial Intelligence) defines standard interfaces that AIs for the games
// have to implement.
package ai

import (
	"github.com/chewxy/math32"
	"github.com/janpfeifer/selfplay/internal/env"
)

// WinGameScore for the winning side. For the loosing side it is -WinGameScore.
// We make these +1 and -1, so it's easy to put a tanh(x) on the output of the model to get a
// value from +1 to -1.
const WinGameScore = float32(1)

// SquashScore converts any score to a value between +WinGameScore and -WinGameScore
// by using then tanh(x) function -- a type of S curve.
func SquashScore(x float32) float32 {
	return math32.Tanh(x) * WinGameScore
}

// ValueScorer returns a score (value) for the features of a position, from the point of view of
// the player the features were extracted for.
//
// A value score represents how likely that player is to win: +1 represents a sure win,
// -1 a sure loss, and 0 a draw.
type ValueScorer interface {
	Score(features []float32) float32
	String() string
}

// BatchValueScorer is a ValueScorer that handles batches.
type BatchValueScorer interface {
	ValueScorer

	// BatchScore aggregate scoring in batches, presumable more efficient.
	BatchScore(features [][]float32) []float32
}

// PolicyScorer returns a probability for each of the legal actions of a game.
type PolicyScorer interface {
	PolicyScore(game env.Game) (actions []int, probs []float32)
}

// ValueLearner is the interface used to train a ValueScorer model, based on value labels.
type ValueLearner interface {
	BatchValueScorer

	// Learn from the given batch of features and its associate value labels.
	// It returns the training loss -- mean over batch.
	Learn(features [][]float32, valueLabels []float32) (loss float32)

	// Loss returns a measure of loss for the model -- whatever it is.
	Loss(features [][]float32, valueLabels []float32) (loss float32)

	// Encode the model weights into an opaque blob, to be stored as a checkpoint.
	Encode() []byte

	// BatchSize returns the batch size used by the learner.
	// It is used only as an optimization hint for the trainer.
	BatchSize() int
}

// IsEndGameAndScore returns whether the game is finished, and the hard-coded score of a win/loss/draw
// for the player who made the last move.
// If isEnd is false, the score should be ignored.
func IsEndGameAndScore(game env.Game, lastPlayer int) (isEnd bool, score float32) {
	if !game.Finished() {
		return false, 0
	}
	return true, env.OutcomeFor(game, lastPlayer) * WinGameScore
}

package ai

import (
	"github.com/janpfeifer/selfplay/internal/generics"
)

// BatchValueScorerProxy is a trivial implementation of a BatchValueScorer, with no efficiency gains.
type BatchValueScorerProxy struct {
	ValueScorer
}

// BatchScore calls Score for each element of the batch.
func (s BatchValueScorerProxy) BatchScore(features [][]float32) (scores []float32) {
	scores = generics.SliceMap(features, func(f []float32) float32 {
		return s.Score(f)
	})
	return
}

func (s BatchValueScorerProxy) String() string {
	return s.ValueScorer.String()
}

// Assert BatchValueScorerProxy implements BatchValueScorer
var _ BatchValueScorer = &BatchValueScorerProxy{}

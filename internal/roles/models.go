package roles

import (
	"github.com/janpfeifer/selfplay/internal/ai"
	"github.com/janpfeifer/selfplay/internal/ai/linear"
	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/parameters"
)

// LinearModels returns a ModelFactory of linear models for the game's features, with hyperparameters
// from modelParams (see linear.NewFromParams). Unknown parameters are an error.
func LinearModels(game env.Game, modelParams parameters.Params) ModelFactory {
	return func(record *checkpoints.Record) (ai.ValueLearner, error) {
		params := parameters.Merge(modelParams, nil)
		var blob []byte
		if record != nil {
			blob = record.Weights
		}
		m, err := linear.NewFromParams(params, game.NumFeatures(), blob)
		if err != nil {
			return nil, err
		}
		if err = parameters.CheckAllUsed(params, "linear model"); err != nil {
			return nil, err
		}
		return m, nil
	}
}

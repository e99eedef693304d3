package linear

import (
	"github.com/janpfeifer/selfplay/internal/parameters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NewFromParams creates the model from a checkpoint blob, or a fresh zero-initialized one for numFeatures
// if blob is nil, and sets its hyperparameters from params.
//
// Recognized params: "learning_rate", "l2_reg", "clip", "steps" and "batch_size". They are popped from
// params, so the caller can check for unknown keys.
func NewFromParams(params parameters.Params, numFeatures int, blob []byte) (*Model, error) {
	var m *Model
	if blob == nil {
		m = New(numFeatures)
	} else {
		var err error
		m, err = Decode(blob)
		if err != nil {
			return nil, err
		}
		if m.NumFeatures() != numFeatures {
			return nil, errors.Errorf("linear model has %d features, but the game uses %d features",
				m.NumFeatures(), numFeatures)
		}
	}

	var err error
	if m.LearningRate, err = parameters.PopParamOr(params, "learning_rate", m.LearningRate); err != nil {
		return nil, err
	}
	if m.L2Reg, err = parameters.PopParamOr(params, "l2_reg", m.L2Reg); err != nil {
		return nil, err
	}
	if m.GradientL2Clip, err = parameters.PopParamOr(params, "clip", m.GradientL2Clip); err != nil {
		return nil, err
	}
	if m.NumSteps, err = parameters.PopParamOr(params, "steps", m.NumSteps); err != nil {
		return nil, err
	}
	if m.batchSize, err = parameters.PopParamOr(params, "batch_size", m.batchSize); err != nil {
		return nil, err
	}
	if m.batchSize <= 0 {
		return nil, errors.Errorf("invalid batch_size=%d for linear model", m.batchSize)
	}
	klog.V(1).Infof("Linear model %s: learning_rate=%g, l2_reg=%g, clip=%g, steps=%d, batch_size=%d",
		m, m.LearningRate, m.L2Reg, m.GradientL2Clip, m.NumSteps, m.batchSize)
	return m, nil
}

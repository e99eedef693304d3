// Package linear implements a pure Go linear value model that can be used to play as well as
// training -- it defines its own gradient for that, and can be used for a simple SGD.
package linear

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/selfplay/internal/ai"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// encodingHeader is the first line of an encoded model.
const encodingHeader = "# linear"

// Model is a linear model (one weight per feature + bias) on the feature set, squashed by tanh.
// It implements ai.ValueLearner.
type Model struct {
	weights []float32
	name    string

	// LearningRate to use when training the linear model and L2Reg to use.
	LearningRate, L2Reg float32

	// GradientL2Clip clips the gradient to this l2 length before applying.
	GradientL2Clip float32

	// NumSteps to do gradient descent when Learn is called.
	NumSteps int

	// batchSize hint returned by BatchSize.
	batchSize int

	// Linearize training.
	muLearning sync.Mutex
}

var (
	// Assert Model is an ai.ValueLearner.
	_ ai.ValueLearner = (*Model)(nil)
)

// NewWithWeights creates a new Model with the given weights, the last one being the bias.
// Ownership of the weights is transferred.
func NewWithWeights(weights ...float32) *Model {
	return &Model{
		weights:        weights,
		LearningRate:   0.01,
		L2Reg:          1e-3,
		GradientL2Clip: 10.0,
		NumSteps:       1,
		batchSize:      100,
	}
}

// New creates a zero initialized model for numFeatures features.
func New(numFeatures int) *Model {
	return NewWithWeights(make([]float32, numFeatures+1)...)
}

// WithName sets the name of the model and returns itself.
func (m *Model) WithName(name string) *Model {
	m.name = name
	return m
}

// Clone returns a deep copy of the model, including hyperparameters.
func (m *Model) Clone() *Model {
	clone := NewWithWeights(slices.Clone(m.weights)...)
	clone.name = m.name
	clone.LearningRate = m.LearningRate
	clone.L2Reg = m.L2Reg
	clone.GradientL2Clip = m.GradientL2Clip
	clone.NumSteps = m.NumSteps
	clone.batchSize = m.batchSize
	return clone
}

// String implements ai.ValueScorer.
func (m *Model) String() string {
	if m.name == "" {
		return fmt.Sprintf("linear(%d features)", m.NumFeatures())
	}
	return fmt.Sprintf("linear:%s", m.name)
}

// NumFeatures the model operates on.
func (m *Model) NumFeatures() int {
	return len(m.weights) - 1
}

// Weights returns a copy of the weights, with the bias as the last element.
func (m *Model) Weights() []float32 {
	return slices.Clone(m.weights)
}

// BatchSize implements ai.ValueLearner.
func (m *Model) BatchSize() int {
	return m.batchSize
}

func (m *Model) logitScore(features []float32) float32 {
	// Sum start with bias.
	sum := m.weights[len(m.weights)-1]

	// Dot product of weights and features.
	if len(m.weights)-1 != len(features) {
		exceptions.Panicf("features dimension is %d, but weights dimension is %d (+1 bias)",
			len(features), len(m.weights)-1)
	}
	for ii, feature := range features {
		sum += feature * m.weights[ii]
	}
	return sum
}

// Score implements ai.ValueScorer.
func (m *Model) Score(features []float32) float32 {
	return ai.SquashScore(m.logitScore(features))
}

// BatchScore implements ai.BatchValueScorer.
func (m *Model) BatchScore(features [][]float32) (scores []float32) {
	scores = make([]float32, len(features))
	for ii, x := range features {
		scores[ii] = m.Score(x)
	}
	return
}

// l2RegularizationLoss is the regularization term for the loss.
func (m *Model) l2RegularizationLoss() float32 {
	if m.L2Reg == 0 {
		return 0
	}
	sum := float32(0)
	for _, param := range m.weights {
		sum += param * param
	}
	return sum * m.L2Reg
}

// Learn implements ai.ValueLearner, and trains model with the features and its labels.
// It returns the loss.
func (m *Model) Learn(features [][]float32, labels []float32) (loss float32) {
	m.muLearning.Lock()
	defer m.muLearning.Unlock()

	grad := make([]float32, len(m.weights))
	for range m.NumSteps {
		m.calculateGradient(features, labels, grad)

		// Clip gradient.
		if m.GradientL2Clip > 0 {
			clipL2(grad, m.GradientL2Clip)
		}

		// Apply gradient with the learning rate.
		for ii := range grad {
			m.weights[ii] -= m.LearningRate * grad[ii]
		}
	}
	return m.Loss(features, labels)
}

// calculateGradient of the MSE (MeanSquaredError) loss:
//
//	  x, x_i: input (features) and x term i
//	  w, w_i: weights, and weight term i
//	  b: bias term of the model
//	  score: tanh(w*x+b)
//	Loss = (label - score)^2/N
//	  dLoss/dw_i = (2*(score-label)*d(score)/dw_i)/N
//	  dLoss/db = (2*(score-label)*d(score)/db)/N
//	  d(score)/dw_i = (1-score^2)*x_i
//	  d(score)/db = (1-score^2)
func (m *Model) calculateGradient(inputs [][]float32, labels []float32, gradient []float32) {
	clear(gradient)
	N := float32(len(inputs))
	for exampleIdx, x := range inputs {
		score := m.Score(x)
		c := 2 * (score - labels[exampleIdx]) * (1 - score*score)
		for i, x_i := range x {
			// dLoss/dw_i
			gradient[i] += c * x_i
		}
		// gradient of the bias term (the last)
		gradient[len(gradient)-1] += c
	}

	// Take the mean:
	for ii := range gradient {
		gradient[ii] /= N
	}
	if m.L2Reg > 0 {
		// L2 regularization
		for ii := range m.weights {
			gradient[ii] += 2 * m.weights[ii] * m.L2Reg
		}
	}
}

// Loss implements ai.ValueLearner: the MSE of the scores plus the L2 regularization term.
func (m *Model) Loss(features [][]float32, labels []float32) (loss float32) {
	if len(labels) == 0 {
		return 0
	}
	for ii, x := range features {
		diff := labels[ii] - m.Score(x)
		loss += diff * diff
	}
	loss /= float32(len(labels))
	loss += m.l2RegularizationLoss()
	return
}

func l2Len(vec []float32) float32 {
	total := float32(0.0)
	for _, value := range vec {
		total += value * value
	}
	return math32.Sqrt(total)
}

// clipL2 clips the L2 length of the vector.
func clipL2(vec []float32, maxLen float32) {
	l2 := l2Len(vec)
	if l2 > maxLen {
		ratio := maxLen / l2
		klog.V(3).Infof("clip: l2=%g, maxLen=%g, ratio=%g", l2, maxLen, ratio)
		for ii := range vec {
			vec[ii] *= ratio
		}
	}
}

// Encode implements ai.ValueLearner: a text header followed by one weight per line, bias last.
func (m *Model) Encode() []byte {
	m.muLearning.Lock()
	defer m.muLearning.Unlock()
	lines := make([]string, 0, len(m.weights)+1)
	lines = append(lines, fmt.Sprintf("%s features=%d", encodingHeader, m.NumFeatures()))
	for _, value := range m.weights {
		lines = append(lines, strconv.FormatFloat(float64(value), 'g', -1, 32))
	}
	return []byte(strings.Join(lines, "\n"))
}

// Decode a model encoded with Encode. Empty lines and comments ("#" or "//") are ignored.
func Decode(blob []byte) (*Model, error) {
	valuesStr := strings.Split(string(blob), "\n")
	weights := make([]float32, 0, len(valuesStr))
	for lineNum, valueStr := range valuesStr {
		valueStr = strings.TrimSpace(valueStr)
		if valueStr == "" || strings.HasPrefix(valueStr, "#") || strings.HasPrefix(valueStr, "//") {
			// Skip empty lines and comments.
			continue
		}
		f64, err := strconv.ParseFloat(valueStr, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse linear model weight at line #%d", lineNum+1)
		}
		weights = append(weights, float32(f64))
	}
	if len(weights) == 0 {
		return nil, errors.New("linear model blob has no weights")
	}
	return NewWithWeights(weights...), nil
}

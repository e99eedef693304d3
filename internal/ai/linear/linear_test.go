package linear

import (
	"math/rand/v2"
	"testing"

	"github.com/janpfeifer/selfplay/internal/parameters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAndGradient(t *testing.T) {
	model := NewWithWeights(
		// Weights:
		2, -1, 4,
		// Bias:
		3)
	model.L2Reg = 0
	model.GradientL2Clip = 0

	grad := make([]float32, len(model.weights))
	for ii, test := range []struct {
		inputs             []float32
		label, score, loss float32
		grad               []float32
	}{
		// Examples generated using GoMLX:
		{inputs: []float32{0, 0, 0}, label: 0.9, score: 0.995055, loss: 0.009035,
			grad: []float32{0, 0, 0, 0.001876}},
		{inputs: []float32{0.1, 0.1, 0.1}, label: 0.9, score: 0.998178, loss: 0.009639,
			grad: []float32{7.14887e-05, 7.14887e-05, 7.14887e-05, 0.000715}},
		{inputs: []float32{-0.9, -0.9, -0.9}, label: 0.9, score: -0.905148, loss: 3.258560,
			grad: []float32{0.58716404, 0.58716404, 0.58716404, -0.652404}},
		{inputs: []float32{0.2, -0.1, -0.5}, label: 0.9, score: 0.905148, loss: 0.000027,
			grad: []float32{0.00037213214, -0.00018606607, -0.00093033037, 0.001861}},
	} {
		score := model.Score(test.inputs)
		loss := model.Loss([][]float32{test.inputs}, []float32{test.label})
		model.calculateGradient([][]float32{test.inputs}, []float32{test.label}, grad)
		assert.InDelta(t, test.score, score, 1e-4, "example #%d", ii)
		assert.InDelta(t, test.loss, loss, 1e-4, "example #%d", ii)
		assert.InDeltaSlice(t, test.grad, grad, 1e-4, "example #%d", ii)
	}
}

// TestLearn checks that is is able to learn our "want" linear model from examples.
func TestLearn(t *testing.T) {
	want := NewWithWeights(
		// Weights:
		0.5, -0.25, 0.3,
		// Bias:
		0.1)

	// The model being trained:
	got := New(3)
	got.LearningRate = 0.1
	got.L2Reg = 0

	rng := rand.New(rand.NewPCG(42, 0)) // Ensure reproducibility
	numExamples := 2_000
	numFeatures := 3
	examples := make([][]float32, numExamples)
	labels := make([]float32, numExamples)
	for i := range numExamples {
		examples[i] = make([]float32, numFeatures)
		for j := range numFeatures {
			examples[i][j] = float32(rng.NormFloat64()) // Mean 0, Std 1
		}
		labels[i] = want.Score(examples[i])
	}

	batchSize := 100
	numEpochs := 200
	var finalLoss float32
	for range numEpochs {
		for i := 0; i < numExamples; i += batchSize {
			end := min(i+batchSize, numExamples)
			finalLoss = got.Learn(examples[i:end], labels[i:end])
		}
	}
	assert.Less(t, finalLoss, float32(1e-3))
	assert.InDeltaSlice(t, want.weights, got.weights, 0.1)
}

func TestEncodeDecode(t *testing.T) {
	m := NewWithWeights(0.5, -1.25, 1e-7, 3)
	blob := m.Encode()
	assert.Contains(t, string(blob), "# linear features=3")
	decoded, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, m.weights, decoded.weights)

	_, err = Decode([]byte("# nothing here\n"))
	assert.Error(t, err)
	_, err = Decode([]byte("1.0\nabc\n"))
	assert.Error(t, err)
}

func TestNewFromParams(t *testing.T) {
	params := parameters.NewFromConfigString("learning_rate=0.5,batch_size=32,other=1")
	m, err := NewFromParams(params, 18, nil)
	require.NoError(t, err)
	assert.Equal(t, 18, m.NumFeatures())
	assert.Equal(t, float32(0.5), m.LearningRate)
	assert.Equal(t, 32, m.BatchSize())
	assert.Equal(t, parameters.Params{"other": "1"}, params)

	// Blob with the wrong number of features.
	_, err = NewFromParams(parameters.Params{}, 4, m.Encode())
	assert.Error(t, err)

	clone := m.Clone().WithName("copy")
	assert.Equal(t, "linear:copy", clone.String())
	assert.Equal(t, m.Weights(), clone.Weights())
}

package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/stopsignal"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollingCollector collects one "episode" per poll until stopped.
type pollingCollector struct {
	maxEpisodes int
}

func (c *pollingCollector) Collect(ctx context.Context, cc *CycleContext, _ int) (CollectorResult, error) {
	var r CollectorResult
	for r.Episodes < c.maxEpisodes {
		if cc.Stop.Poll() || ctx.Err() != nil {
			r.Dropped++
			return r, nil
		}
		r.Episodes++
		time.Sleep(time.Millisecond)
	}
	return r, nil
}

type fakeTrainer struct {
	err        error
	panicValue any
	stops      bool
}

func (t *fakeTrainer) Train(_ context.Context, cc *CycleContext) (TrainerResult, error) {
	if t.panicValue != nil {
		panic(t.panicValue)
	}
	if t.err != nil {
		return TrainerResult{}, t.err
	}
	if t.stops {
		cc.Stop.Set()
	}
	return TrainerResult{Examples: 10, Checkpoint: &checkpoints.Record{CycleID: cc.Cycle, Weights: []byte("new")}}, nil
}

type fakeEvaluator struct {
	evaluated atomic.Pointer[checkpoints.Record]
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, cc *CycleContext) (EvalSummary, error) {
	record, err := cc.AwaitPublished(ctx)
	if err != nil {
		return EvalSummary{}, err
	}
	e.evaluated.Store(record)
	cc.Stop.Set()
	return EvalSummary{Opponent: "fake", Wins: 3, Draws: 2, Losses: 1}, nil
}

func TestPoolRun(t *testing.T) {
	evaluator := &fakeEvaluator{}
	pool := &Pool{
		Collector:     &pollingCollector{maxEpisodes: 1_000_000},
		NumCollectors: 2,
		Trainer:       &fakeTrainer{},
		Evaluator:     evaluator,
	}
	assert.Equal(t, 4, pool.NumTasks())
	cc := NewCycleContext(3, stopsignal.New())
	cc.Checkpoint = &checkpoints.Record{CycleID: 2, Weights: []byte("old")}
	result, err := pool.Run(context.Background(), cc)
	require.NoError(t, err)
	assert.True(t, result.Stopped)
	require.Len(t, result.Collectors, 2)
	for _, c := range result.Collectors {
		assert.Equal(t, 1, c.Dropped)
	}
	require.NotNil(t, result.Trainer)
	assert.Equal(t, 10, result.Trainer.Examples)
	require.NotNil(t, result.Eval)
	assert.InDelta(t, (3+1.0)/6, result.Eval.WinRate(), 1e-9)

	// Evaluator must have seen the newly published checkpoint.
	evaluated := evaluator.evaluated.Load()
	require.NotNil(t, evaluated)
	assert.Equal(t, 3, evaluated.CycleID)
}

func TestPoolTrainerStops(t *testing.T) {
	pool := &Pool{
		Collector:     &pollingCollector{maxEpisodes: 1_000_000},
		NumCollectors: 2,
		Trainer:       &fakeTrainer{stops: true},
	}
	result, err := pool.Run(context.Background(), NewCycleContext(0, stopsignal.New()))
	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Nil(t, result.Eval)
}

func TestPoolEvaluatorWithoutTrainer(t *testing.T) {
	evaluator := &fakeEvaluator{}
	pool := &Pool{Evaluator: evaluator}
	cc := NewCycleContext(0, stopsignal.New())
	cc.Checkpoint = &checkpoints.Record{CycleID: 7}
	_, err := pool.Run(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, 7, evaluator.evaluated.Load().CycleID)
}

func TestPoolFailure(t *testing.T) {
	for name, trainer := range map[string]*fakeTrainer{
		"error":        {err: errors.New("disk full")},
		"panic":        {panicValue: errors.New("index out of range")},
		"string panic": {panicValue: "weights exploded"},
	} {
		pool := &Pool{
			Collector:     &pollingCollector{maxEpisodes: 1_000_000},
			NumCollectors: 3,
			Trainer:       trainer,
			Evaluator:     &fakeEvaluator{},
		}
		stop := stopsignal.New()
		done := make(chan struct{})
		var err error
		go func() {
			_, err = pool.Run(context.Background(), NewCycleContext(1, stop))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatalf("%s: pool didn't join after a task failure", name)
		}
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "trainer failed in cycle 1", name)
		assert.True(t, stop.Poll(), name)
		if msg, ok := trainer.panicValue.(string); ok {
			assert.Contains(t, err.Error(), "panic: "+msg, name)
		}
	}
}

func TestPoolNoRoles(t *testing.T) {
	_, err := (&Pool{}).Run(context.Background(), NewCycleContext(0, stopsignal.New()))
	assert.ErrorIs(t, err, ErrNoRoles)
	_, err = (&Pool{Collector: &pollingCollector{}}).Run(context.Background(), NewCycleContext(0, stopsignal.New()))
	assert.ErrorIs(t, err, ErrNoRoles)
}

package roles

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/env/tictactoe"
	"github.com/janpfeifer/selfplay/internal/generations"
	"github.com/janpfeifer/selfplay/internal/parameters"
	"github.com/janpfeifer/selfplay/internal/scheduler"
	"github.com/janpfeifer/selfplay/internal/stopsignal"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollector(episodes int) *Collector {
	game := tictactoe.New()
	return &Collector{
		Game:     game,
		NewModel: LinearModels(game, parameters.Params{"batch_size": "16"}),
		Episodes: episodes,
		Scale:    1,
		Seed:     42,
	}
}

func TestCollector(t *testing.T) {
	c := newCollector(3)
	cc := workers.NewCycleContext(0, stopsignal.New())
	cc.WriteDir = t.TempDir()
	result, err := c.Collect(context.Background(), cc, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Episodes)
	assert.Zero(t, result.Dropped)
	assert.Greater(t, result.Bytes, int64(0))

	files, err := trajectory.List(cc.WriteDir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	trajectories, skipped, err := trajectory.ReadAll(files, trajectory.FormatVersion, tictactoe.Version)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, trajectories, 3)
	var numSteps int
	for _, traj := range trajectories {
		assert.Equal(t, 1, traj.CollectorID)
		assert.NotEmpty(t, traj.ID)
		numSteps += len(traj.Steps)
		for ii, step := range traj.Steps {
			assert.Equal(t, int8(ii%2), step.Player)
			want := traj.Outcome
			if step.Player == 1 {
				want = -want
			}
			assert.Equal(t, want, step.Label)
			assert.Len(t, step.Features, 18)
		}
	}
	assert.Equal(t, result.Steps, numSteps)
}

func TestCollectorOnlyWins(t *testing.T) {
	c := newCollector(10)
	c.OnlyWins = true
	cc := workers.NewCycleContext(0, stopsignal.New())
	cc.WriteDir = t.TempDir()
	_, err := c.Collect(context.Background(), cc, 0)
	require.NoError(t, err)
	files, err := trajectory.List(cc.WriteDir)
	require.NoError(t, err)
	trajectories, _, err := trajectory.ReadAll(files, trajectory.FormatVersion, tictactoe.Version)
	require.NoError(t, err)
	require.Len(t, trajectories, 10)
	for _, traj := range trajectories {
		for _, step := range traj.Steps {
			if traj.Outcome == 0 {
				assert.Zero(t, step.Label)
			} else {
				assert.Equal(t, float32(1), step.Label, "only winner's steps")
			}
		}
	}
}

func TestCollectorStops(t *testing.T) {
	c := newCollector(0) // Until stopped.
	stop := stopsignal.New()
	stop.Set()
	cc := workers.NewCycleContext(0, stop)
	cc.WriteDir = t.TempDir()
	result, err := c.Collect(context.Background(), cc, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Episodes)
	assert.Equal(t, 1, result.Dropped)
	files, err := trajectory.List(cc.WriteDir)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = c.Collect(context.Background(), workers.NewCycleContext(0, stopsignal.New()), 0)
	assert.Error(t, err, "collector without write directory")
}

func TestTrainer(t *testing.T) {
	dir := t.TempDir()
	cc := workers.NewCycleContext(0, stopsignal.New())
	cc.WriteDir = dir
	_, err := newCollector(20).Collect(context.Background(), cc, 0)
	require.NoError(t, err)

	// A batch of another game version is skipped.
	other := trajectory.NewBatch("othergame-v0")
	other.Add(trajectory.Trajectory{Steps: []trajectory.Step{{Features: []float32{1, 2}}}})
	_, _, err = trajectory.WriteBatch(dir, "other", other)
	require.NoError(t, err)

	files, err := trajectory.List(dir)
	require.NoError(t, err)
	game := tictactoe.New()
	store := checkpoints.NewMemoryStore()
	trainer := &Trainer{
		NewModel:        LinearModels(game, parameters.Params{"batch_size": "8", "learning_rate": "0.1"}),
		Checkpoints:     store,
		FormatVersion:   trajectory.FormatVersion,
		EnvVersion:      game.Version(),
		Passes:          3,
		StopsCollection: true,
		Seed:            1,
	}
	trainCC := workers.NewCycleContext(5, stopsignal.New())
	trainCC.TrainFiles = files
	result, err := trainer.Train(context.Background(), trainCC)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedBatches)
	assert.Greater(t, result.Examples, 20*4)
	require.NotNil(t, result.Checkpoint)
	assert.Equal(t, 5, result.Checkpoint.CycleID)
	assert.True(t, trainCC.Stop.Poll())

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 5, latest.CycleID)
	_, err = trainer.NewModel(latest)
	require.NoError(t, err)

	// Same cycle again: the checkpoint already exists.
	_, err = trainer.Train(context.Background(), trainCC)
	assert.ErrorIs(t, err, checkpoints.ErrExists)

	// No examples: no checkpoint, no error.
	emptyCC := workers.NewCycleContext(6, stopsignal.New())
	result, err = trainer.Train(context.Background(), emptyCC)
	require.NoError(t, err)
	assert.Nil(t, result.Checkpoint)
}

func TestTrainerSavesCurrent(t *testing.T) {
	dir := t.TempDir()
	cc := workers.NewCycleContext(0, stopsignal.New())
	cc.WriteDir = dir
	_, err := newCollector(2).Collect(context.Background(), cc, 0)
	require.NoError(t, err)
	files, err := trajectory.List(dir)
	require.NoError(t, err)

	game := tictactoe.New()
	dirStore, err := checkpoints.NewDirStore(filepath.Join(t.TempDir(), "weights"))
	require.NoError(t, err)
	trainer := &Trainer{
		NewModel:    LinearModels(game, nil),
		Checkpoints: dirStore,
		Current:     dirStore,
	}
	cc = workers.NewCycleContext(0, stopsignal.New())
	cc.TrainFiles = files
	result, err := trainer.Train(context.Background(), cc)
	require.NoError(t, err)
	current, err := dirStore.LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, result.Checkpoint.Weights, current)
}

func TestModelPlayerGreedyTakesWin(t *testing.T) {
	game := tictactoe.New()
	for _, action := range []int{0, 3, 1, 4} {
		require.NoError(t, game.Act(action))
	}
	model, err := LinearModels(game, nil)(nil)
	require.NoError(t, err)
	player := NewModelPlayer(model, 1, true)
	rng := rand.New(rand.NewPCG(42, 0))
	for range 10 {
		action, err := player.Play(game, rng)
		require.NoError(t, err)
		assert.Equal(t, 2, action)
	}
}

func TestEvaluator(t *testing.T) {
	game := tictactoe.New()
	newModel := LinearModels(game, nil)
	weightsPath := filepath.Join(t.TempDir(), "opponent.ckpt")
	m, err := newModel(nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(weightsPath, m.Encode(), 0o644))

	for _, opponent := range []string{"", OpponentPrevious, weightsPath} {
		e := &Evaluator{
			Game:            game,
			NewModel:        newModel,
			Opponent:        opponent,
			NumMatches:      20,
			Parallelism:     4,
			StopsCollection: true,
			Seed:            3,
		}
		cc := workers.NewCycleContext(1, stopsignal.New())
		summary, err := e.Evaluate(context.Background(), cc)
		require.NoError(t, err, opponent)
		assert.Equal(t, 20, summary.Matches(), opponent)
		assert.True(t, cc.Stop.Poll())

		// Deterministic given the seed.
		again, err := e.Evaluate(context.Background(), workers.NewCycleContext(1, stopsignal.New()))
		require.NoError(t, err)
		assert.Equal(t, summary, again, opponent)
	}

	e := &Evaluator{Game: game, NewModel: newModel, Opponent: "/nonexistent/weights.ckpt", NumMatches: 2}
	_, err = e.Evaluate(context.Background(), workers.NewCycleContext(1, stopsignal.New()))
	assert.Error(t, err)
}

func TestSelfPlayCycles(t *testing.T) {
	game := tictactoe.New()
	newModel := LinearModels(game, parameters.Params{"batch_size": "16"})
	store := checkpoints.NewMemoryStore()
	policy, err := generations.NewFixedWindow(3, generations.SeedMatchRotating)
	require.NoError(t, err)
	s := &scheduler.Scheduler{
		Policy:      policy,
		Generations: generations.NewStore(t.TempDir(), 3, ""),
		Checkpoints: store,
		Pool: &workers.Pool{
			Collector:     &Collector{Game: game, NewModel: newModel, Episodes: 10, Scale: 1, Seed: 1},
			NumCollectors: 2,
			Trainer: &Trainer{NewModel: newModel, Checkpoints: store, FormatVersion: trajectory.FormatVersion,
				EnvVersion: game.Version(), Passes: 2},
			Evaluator: &Evaluator{Game: game, NewModel: newModel, NumMatches: 10, Parallelism: 2},
		},
		NumCycles: 3,
		Seed:      7,
	}
	var reports []*scheduler.CycleReport
	s.OnCycle = func(report *scheduler.CycleReport) { reports = append(reports, report) }
	require.NoError(t, s.Run(context.Background()))
	require.Len(t, reports, 3)
	for _, report := range reports {
		assert.Equal(t, 20, report.Result.Episodes())
		require.NotNil(t, report.Result.Eval)
		assert.Equal(t, 10, report.Result.Eval.Matches())
	}
	// Cycle 0 had nothing to train on, the following ones trained on the previous cycle's episodes.
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, 1, reports[2].InputCheckpoint)
}

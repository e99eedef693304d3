package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/generations"
	"github.com/janpfeifer/selfplay/internal/stopsignal"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchCollector writes numEpisodes batches into the write slot.
type batchCollector struct {
	numEpisodes int
}

func (c *batchCollector) Collect(_ context.Context, cc *workers.CycleContext, collectorIdx int) (workers.CollectorResult, error) {
	var r workers.CollectorResult
	for episode := range c.numEpisodes {
		if cc.Stop.Poll() {
			r.Dropped++
			break
		}
		batch := trajectory.NewBatch("test")
		batch.Add(trajectory.Trajectory{CollectorID: collectorIdx, Episode: episode})
		_, size, err := trajectory.WriteBatch(cc.WriteDir, fmt.Sprintf("c%d-e%d-%d", cc.Cycle, collectorIdx, episode), batch)
		if err != nil {
			return r, err
		}
		r.Episodes++
		r.Bytes += size
	}
	return r, nil
}

// storingTrainer puts a checkpoint with the cycle id, holding the input checkpoint id.
type storingTrainer struct {
	store     checkpoints.Store
	failCycle int

	mu     sync.Mutex
	inputs []int
	files  [][]string
}

func (t *storingTrainer) Train(ctx context.Context, cc *workers.CycleContext) (workers.TrainerResult, error) {
	if cc.Cycle == t.failCycle {
		return workers.TrainerResult{}, errors.New("out of memory")
	}
	input := -1
	if cc.Checkpoint != nil {
		input = cc.Checkpoint.CycleID
	}
	t.mu.Lock()
	t.inputs = append(t.inputs, input)
	t.files = append(t.files, cc.TrainFiles)
	t.mu.Unlock()
	record := &checkpoints.Record{CycleID: cc.Cycle, Weights: []byte{byte(cc.Cycle)}}
	if err := t.store.Put(ctx, *record); err != nil {
		return workers.TrainerResult{}, err
	}
	return workers.TrainerResult{Examples: len(cc.TrainFiles), Checkpoint: record}, nil
}

func newScheduler(t *testing.T, policy *generations.Policy, numCycles int) (*Scheduler, *storingTrainer) {
	store := checkpoints.NewMemoryStore()
	trainer := &storingTrainer{store: store, failCycle: -1}
	s := &Scheduler{
		Policy:      policy,
		Generations: generations.NewStore(t.TempDir(), policy.NumSlots, ""),
		Checkpoints: store,
		Pool: &workers.Pool{
			Collector:     &batchCollector{numEpisodes: 3},
			NumCollectors: 2,
			Trainer:       trainer,
		},
		NumCycles: numCycles,
		Seed:      42,
	}
	return s, trainer
}

func TestStateOrder(t *testing.T) {
	evicting, err := generations.NewEvictingSlidingWindow(4, generations.SeedNone)
	require.NoError(t, err)
	sliding, err := generations.NewSlidingWindow(4, generations.SeedNone)
	require.NoError(t, err)
	for _, tc := range []struct {
		policy *generations.Policy
		want   []State
	}{
		{evicting, []State{LoadCheckpoint, AssignSlots, Evict, Dispatch, Running, Join, RotatePolicyState}},
		{sliding, []State{LoadCheckpoint, AssignSlots, Dispatch, Running, Join, RotatePolicyState}},
	} {
		s, _ := newScheduler(t, tc.policy, 2)
		var states []State
		s.OnState = func(cycle int, state State) {
			if cycle == 0 {
				states = append(states, state)
			}
		}
		require.NoError(t, s.Run(context.Background()))
		assert.Equal(t, tc.want, states, tc.policy.String())
	}
	assert.Equal(t, "RotatePolicyState", RotatePolicyState.String())
	assert.Equal(t, "State(99)", State(99).String())
}

func TestEvictedBeforeDispatch(t *testing.T) {
	const numSlots = 3
	policy, err := generations.NewEvictingSlidingWindow(numSlots, generations.SeedNone)
	require.NoError(t, err)
	s, _ := newScheduler(t, policy, 3*numSlots)
	s.OnState = func(cycle int, state State) {
		if state != Dispatch {
			return
		}
		count, err := s.Generations.Count((cycle + 1) % numSlots)
		require.NoError(t, err)
		assert.Zero(t, count, "write slot of cycle %d not empty at dispatch", cycle)
	}
	var evicted int
	s.OnCycle = func(report *CycleReport) {
		evicted += report.EvictedFiles
		assert.Equal(t, 6, report.Result.Episodes())
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Greater(t, evicted, 0)

	// Slot contents bounded by the eviction: each slot has at most the batches of one cycle.
	for slot := range numSlots {
		count, err := s.Generations.Count(slot)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, 6)
	}
}

func TestNonEvictingAccumulates(t *testing.T) {
	policy, err := generations.NewSlidingWindow(3, generations.SeedNone)
	require.NoError(t, err)
	s, _ := newScheduler(t, policy, 6)
	require.NoError(t, s.Run(context.Background()))
	// Slot 1 was written by cycles 0 and 3.
	count, err := s.Generations.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}

func TestCheckpointChain(t *testing.T) {
	policy, err := generations.NewFixedWindow(3, generations.SeedNone)
	require.NoError(t, err)
	s, trainer := newScheduler(t, policy, 4)
	require.NoError(t, s.Run(context.Background()))
	// Cold start then each cycle starts from the previous cycle's checkpoint.
	assert.Equal(t, []int{-1, 0, 1, 2}, trainer.inputs)
	// Training files never include the slot being written.
	for cycle, files := range trainer.files {
		writeDir := s.Generations.SlotDir((cycle + 1) % 3)
		for _, f := range files {
			assert.NotContains(t, f, writeDir)
		}
	}

	// Resuming continues the ids.
	first, err := ResumeCycle(context.Background(), s.Checkpoints)
	require.NoError(t, err)
	assert.Equal(t, 4, first)
	s.FirstCycle = first
	s.NumCycles = 2
	require.NoError(t, s.Run(context.Background()))
	ids, err := s.Checkpoints.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, ids)
}

func TestColdStartUsesInitial(t *testing.T) {
	policy, err := generations.NewFixedWindow(3, generations.SeedNone)
	require.NoError(t, err)
	s, trainer := newScheduler(t, policy, 1)
	s.Initial = &checkpoints.Record{CycleID: 99, Weights: []byte("current")}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []int{99}, trainer.inputs)
}

func TestFailureAbortsLoop(t *testing.T) {
	policy, err := generations.NewFixedWindow(3, generations.SeedNone)
	require.NoError(t, err)
	s, trainer := newScheduler(t, policy, 10)
	trainer.failCycle = 2
	var completed []int
	var lastState State
	s.OnCycle = func(report *CycleReport) { completed = append(completed, report.Cycle) }
	s.OnState = func(_ int, state State) { lastState = state }
	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle 2")
	assert.Contains(t, err.Error(), "out of memory")
	assert.Equal(t, []int{0, 1}, completed)
	assert.Equal(t, Terminate, lastState)
}

func TestStopResetEachCycle(t *testing.T) {
	policy, err := generations.NewFixedWindow(3, generations.SeedNone)
	require.NoError(t, err)
	s, _ := newScheduler(t, policy, 3)
	s.Stop = stopsignal.New()
	s.Stop.Set() // Left over from a previous run.
	var episodes []int
	s.OnCycle = func(report *CycleReport) { episodes = append(episodes, report.Result.Episodes()) }
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []int{6, 6, 6}, episodes)
}

func TestInterrupted(t *testing.T) {
	policy, err := generations.NewFixedWindow(3, generations.SeedNone)
	require.NoError(t, err)
	s, _ := newScheduler(t, policy, 100)
	ctx, cancel := context.WithCancel(context.Background())
	var cycles int
	s.OnCycle = func(report *CycleReport) {
		cycles++
		if cycles == 2 {
			cancel()
		}
	}
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 2, cycles)
}

func TestFixedFilesWithoutPolicy(t *testing.T) {
	store := checkpoints.NewMemoryStore()
	trainer := &storingTrainer{store: store, failCycle: -1}
	s := &Scheduler{
		FixedTrainFiles: []string{"a.traj", "b.traj"},
		Checkpoints:     store,
		Pool:            &workers.Pool{Trainer: trainer},
		NumCycles:       1,
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, [][]string{{"a.traj", "b.traj"}}, trainer.files)
}

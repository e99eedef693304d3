// Package scheduler drives the outer self-play loop: one cycle at a time, it loads the latest checkpoint,
// assigns the generation slots, evicts the write slot if the policy requires it, runs the worker pool and
// rotates the retention policy.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/generations"
	"github.com/janpfeifer/selfplay/internal/stopsignal"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// State of the scheduler within a cycle.
type State int

const (
	LoadCheckpoint State = iota
	AssignSlots
	Evict
	Dispatch
	Running
	Join
	RotatePolicyState
	Cooldown
	Terminate
)

var stateNames = []string{"LoadCheckpoint", "AssignSlots", "Evict", "Dispatch", "Running", "Join",
	"RotatePolicyState", "Cooldown", "Terminate"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// CycleReport is what happened in one cycle, passed to Scheduler.OnCycle.
type CycleReport struct {
	Cycle int

	// Assignment of slots, nil for plans without rotation.
	Assignment *generations.Assignment

	// InputCheckpoint is the cycle id of the checkpoint the cycle started from, -1 for an untrained model.
	InputCheckpoint int

	EvictedFiles int
	EvictedBytes int64

	// TrainingSet sampled for the trainer.
	TrainingSet generations.TrainingSet

	Result *workers.CycleResult
}

// Scheduler runs cycles of the worker pool.
type Scheduler struct {
	// Policy of retention of the generation slots. Nil for plans that don't rotate: then the trainer reads
	// FixedTrainFiles and collectors write into FixedWriteDir.
	Policy      *generations.Policy
	Generations *generations.Store

	FixedTrainFiles []string
	FixedWriteDir   string

	Checkpoints checkpoints.Store

	// Initial is the checkpoint used when the store is still empty. If nil too, the cycle starts
	// from an untrained model.
	Initial *checkpoints.Record

	Pool *workers.Pool

	// Stop is the signal shared with the tasks. It is reset at the start of every cycle.
	Stop *stopsignal.Signal

	// FirstCycle is the index of the first cycle run, see ResumeCycle. NumCycles is the number of cycles to run.
	FirstCycle, NumCycles int

	// Cooldown is the pause between cycles.
	Cooldown time.Duration

	// Seed of the training set sampling. Each cycle uses its own deterministic random stream.
	Seed uint64

	// OnState, if set, is called when the scheduler enters each state.
	OnState func(cycle int, state State)

	// OnCycle, if set, is called after each cycle completed successfully.
	OnCycle func(report *CycleReport)
}

// ResumeCycle returns the cycle a run should start at: one past the latest checkpoint, or 0 if there is none.
// This keeps checkpoint ids increasing across restarts.
func ResumeCycle(ctx context.Context, store checkpoints.Store) (int, error) {
	latest, err := store.Latest(ctx)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return latest.CycleID + 1, nil
}

func (s *Scheduler) enter(cycle int, state State) {
	klog.V(2).Infof("Cycle %d: %s", cycle, state)
	if s.OnState != nil {
		s.OnState(cycle, state)
	}
}

// Run the cycles. It returns the first error of any cycle, after the cycle's tasks all finished: there is
// no retry nor rollback of what the cycle already committed.
//
// If ctx is cancelled, the current cycle's tasks are asked to stop and Run returns nil once they joined.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Pool == nil {
		return errors.New("scheduler has no worker pool")
	}
	if s.Checkpoints == nil {
		return errors.New("scheduler has no checkpoint store")
	}
	if s.Stop == nil {
		s.Stop = stopsignal.New()
	}
	if s.Policy != nil {
		if s.Generations == nil {
			return errors.Errorf("policy %s requires a generations store", s.Policy)
		}
		if s.Generations.NumSlots != s.Policy.NumSlots {
			return errors.Errorf("policy %s doesn't match the %d slots of the generations store",
				s.Policy, s.Generations.NumSlots)
		}
		if err := s.Generations.Init(); err != nil {
			return err
		}
		s.Policy.FastForward(s.FirstCycle)
	}
	klog.Infof("Running %d cycles from cycle %d, policy=%v, %s", s.NumCycles, s.FirstCycle, s.Policy, s.Pool)

	lastCycle := s.FirstCycle
	for cycle := s.FirstCycle; cycle < s.FirstCycle+s.NumCycles; cycle++ {
		lastCycle = cycle
		if ctx.Err() != nil {
			break
		}
		report, err := s.runCycle(ctx, cycle)
		if err != nil {
			s.enter(cycle, Terminate)
			return errors.WithMessagef(err, "cycle %d", cycle)
		}
		if ctx.Err() != nil {
			klog.Infof("Interrupted during cycle %d: %v", cycle, ctx.Err())
			break
		}
		if s.OnCycle != nil {
			s.OnCycle(report)
		}
		if s.Cooldown > 0 && cycle+1 < s.FirstCycle+s.NumCycles {
			s.enter(cycle, Cooldown)
			select {
			case <-ctx.Done():
			case <-time.After(s.Cooldown):
			}
		}
	}
	s.enter(lastCycle, Terminate)
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context, cycle int) (*CycleReport, error) {
	report := &CycleReport{Cycle: cycle, InputCheckpoint: -1}

	s.enter(cycle, LoadCheckpoint)
	checkpoint, err := s.Checkpoints.Latest(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "loading latest checkpoint")
	}
	if checkpoint == nil {
		checkpoint = s.Initial
		if checkpoint == nil {
			klog.Infof("Cycle %d: no checkpoint available, starting from an untrained model", cycle)
		}
	}
	if checkpoint != nil {
		report.InputCheckpoint = checkpoint.CycleID
	}

	s.enter(cycle, AssignSlots)
	cc := workers.NewCycleContext(cycle, s.Stop)
	cc.Checkpoint = checkpoint
	var assignment generations.Assignment
	if s.Policy != nil {
		assignment = s.Policy.SlotForCycle(cycle)
		report.Assignment = &assignment
		cc.Assignment = assignment
		cc.WriteDir = s.Generations.SlotDir(assignment.WriteSlot)
		if s.Pool.Trainer != nil {
			report.TrainingSet, err = s.Policy.TrainingSet(s.Generations, assignment, generations.NewRand(s.Seed, cycle))
			if err != nil {
				return nil, err
			}
			cc.TrainFiles = report.TrainingSet.Files
		}
		klog.V(1).Infof("Cycle %d: %s, %d training files (%d from seed pool)", cycle, assignment,
			len(cc.TrainFiles), report.TrainingSet.SeedCount)
	} else {
		cc.TrainFiles = s.FixedTrainFiles
		cc.WriteDir = s.FixedWriteDir
		report.TrainingSet = generations.TrainingSet{Files: s.FixedTrainFiles, RotatingCount: len(s.FixedTrainFiles)}
	}

	if s.Policy != nil && s.Policy.Evicts {
		s.enter(cycle, Evict)
		report.EvictedFiles, report.EvictedBytes, err = s.Generations.Evict(assignment.WriteSlot)
		if err != nil {
			return nil, err
		}
		if report.EvictedFiles > 0 {
			klog.Infof("Cycle %d: evicted %d batches (%s) from slot %d", cycle, report.EvictedFiles,
				humanize.Bytes(uint64(report.EvictedBytes)), assignment.WriteSlot)
		}
	}

	s.enter(cycle, Dispatch)
	s.Stop.Reset()

	s.enter(cycle, Running)
	result, err := s.Pool.Run(ctx, cc)
	report.Result = result

	s.enter(cycle, Join)
	if err != nil {
		return nil, err
	}

	if s.Policy != nil {
		s.enter(cycle, RotatePolicyState)
		s.Policy.Rotate(assignment)
	}
	return report, nil
}

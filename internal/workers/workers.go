// Package workers runs the tasks of one cycle (collectors, trainer and evaluator) concurrently and
// joins them.
//
// A failure of any task sets the cycle's stop signal and cancels the context of the others, so the cycle
// ends as soon as every task noticed. There is no retry: the first error is returned and the caller aborts.
package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
)

// Collector generates trajectories into the cycle's write slot until its episodes are done or the stop
// signal is set.
type Collector interface {
	Collect(ctx context.Context, cc *CycleContext, collectorIdx int) (CollectorResult, error)
}

// Trainer consumes the cycle's training files, stores a new checkpoint and publishes it.
type Trainer interface {
	Train(ctx context.Context, cc *CycleContext) (TrainerResult, error)
}

// Evaluator plays the cycle's checkpoint against a baseline.
type Evaluator interface {
	Evaluate(ctx context.Context, cc *CycleContext) (EvalSummary, error)
}

// CollectorResult reports the work of one collector.
type CollectorResult struct {
	// Episodes committed to the write slot.
	Episodes int

	// Dropped episodes, interrupted by the stop signal.
	Dropped int

	Steps int
	Bytes int64
}

// TrainerResult reports the work of the trainer.
type TrainerResult struct {
	// Examples used for training, and batches skipped because of version mismatch.
	Examples, SkippedBatches int

	// Loss is the average loss of the last pass.
	Loss float32

	// Checkpoint stored by the trainer, or nil if there was nothing to train on.
	Checkpoint *checkpoints.Record
}

// EvalSummary is the outcome of the evaluation matches, from the point of view of the evaluated model.
type EvalSummary struct {
	Opponent            string
	Wins, Losses, Draws int
}

// Matches returns the total number of matches played.
func (s EvalSummary) Matches() int { return s.Wins + s.Losses + s.Draws }

// WinRate returns the fraction of matches won, counting draws as half a win. It is 0 if no matches were played.
func (s EvalSummary) WinRate() float64 {
	n := s.Matches()
	if n == 0 {
		return 0
	}
	return (float64(s.Wins) + 0.5*float64(s.Draws)) / float64(n)
}

func (s EvalSummary) String() string {
	return fmt.Sprintf("vs %s: %d wins / %d losses / %d draws (win rate %.1f%%)",
		s.Opponent, s.Wins, s.Losses, s.Draws, 100*s.WinRate())
}

// CycleResult aggregates the results of the tasks of one cycle.
type CycleResult struct {
	Cycle int

	Collectors []CollectorResult
	Trainer    *TrainerResult
	Eval       *EvalSummary

	// Stopped is true if the stop signal was set during the cycle.
	Stopped bool

	Elapsed time.Duration
}

// Episodes returns the total number of episodes committed by the collectors.
func (r *CycleResult) Episodes() (episodes int) {
	for _, c := range r.Collectors {
		episodes += c.Episodes
	}
	return
}

// Bytes returns the total number of bytes written by the collectors.
func (r *CycleResult) Bytes() (bytes int64) {
	for _, c := range r.Collectors {
		bytes += c.Bytes
	}
	return
}

func (r *CycleResult) String() string {
	parts := []string{fmt.Sprintf("cycle %d: %s", r.Cycle, r.Elapsed.Round(time.Millisecond))}
	if len(r.Collectors) > 0 {
		parts = append(parts, fmt.Sprintf("%d episodes collected", r.Episodes()))
	}
	if r.Trainer != nil {
		parts = append(parts, fmt.Sprintf("trained on %d examples (loss=%.4f)", r.Trainer.Examples, r.Trainer.Loss))
	}
	if r.Eval != nil {
		parts = append(parts, r.Eval.String())
	}
	return strings.Join(parts, ", ")
}

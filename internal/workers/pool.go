package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// ErrNoRoles is returned by Pool.Run if the pool has no task configured.
var ErrNoRoles = errors.New("worker pool has no roles configured")

// Pool of the tasks run in each cycle. Any of the roles can be nil, but at least one must be set.
type Pool struct {
	Collector     Collector
	NumCollectors int

	Trainer   Trainer
	Evaluator Evaluator
}

// NumTasks returns the number of concurrent tasks started by Run.
func (p *Pool) NumTasks() int {
	n := 0
	if p.Collector != nil {
		n += p.NumCollectors
	}
	if p.Trainer != nil {
		n++
	}
	if p.Evaluator != nil {
		n++
	}
	return n
}

// String implements fmt.Stringer.
func (p *Pool) String() string {
	numCollectors := 0
	if p.Collector != nil {
		numCollectors = p.NumCollectors
	}
	return fmt.Sprintf("pool(collectors=%d, trainer=%v, evaluator=%v)", numCollectors, p.Trainer != nil, p.Evaluator != nil)
}

// Run starts all tasks of the cycle concurrently and waits for all of them to finish.
//
// Panics in tasks are converted to errors. On the first task failure, the cycle's stop signal is set and
// the context passed to the other tasks is cancelled. The first error is returned, along with whatever
// results were gathered.
func (p *Pool) Run(ctx context.Context, cc *CycleContext) (*CycleResult, error) {
	if p.NumTasks() == 0 {
		return nil, ErrNoRoles
	}
	start := time.Now()
	result := &CycleResult{Cycle: cc.Cycle}
	if p.Trainer != nil {
		cc.expectPublish()
	}

	g, gCtx := errgroup.WithContext(ctx)
	spawn := func(name string, task func() error) {
		g.Go(func() error {
			var err error
			if panicValue := exceptions.TryCatch[any](func() { err = task() }); panicValue != nil {
				if panicErr, ok := panicValue.(error); ok {
					err = errors.WithMessage(panicErr, "panic")
				} else {
					err = errors.Errorf("panic: %v", panicValue)
				}
			}
			if err != nil {
				if cc.Stop != nil {
					cc.Stop.Set()
				}
				klog.Errorf("Cycle %d: %s failed: %v", cc.Cycle, name, err)
				return errors.WithMessagef(err, "%s failed in cycle %d", name, cc.Cycle)
			}
			klog.V(2).Infof("Cycle %d: %s finished", cc.Cycle, name)
			return nil
		})
	}

	if p.Collector != nil {
		result.Collectors = make([]CollectorResult, p.NumCollectors)
		for collectorIdx := range p.NumCollectors {
			spawn(fmt.Sprintf("collector #%d", collectorIdx), func() (err error) {
				result.Collectors[collectorIdx], err = p.Collector.Collect(gCtx, cc, collectorIdx)
				return
			})
		}
	}
	var trainerResult TrainerResult
	if p.Trainer != nil {
		spawn("trainer", func() (err error) {
			trainerResult, err = p.Trainer.Train(gCtx, cc)
			if err == nil {
				cc.Publish(trainerResult.Checkpoint)
			}
			return
		})
	}
	var evalSummary EvalSummary
	if p.Evaluator != nil {
		spawn("evaluator", func() (err error) {
			evalSummary, err = p.Evaluator.Evaluate(gCtx, cc)
			return
		})
	}

	err := g.Wait()
	if err == nil {
		if p.Trainer != nil {
			result.Trainer = &trainerResult
		}
		if p.Evaluator != nil {
			result.Eval = &evalSummary
		}
	}
	result.Stopped = cc.Stop != nil && cc.Stop.Poll()
	result.Elapsed = time.Since(start)
	return result, err
}

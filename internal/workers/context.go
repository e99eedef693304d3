package workers

import (
	"context"
	"sync"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/generations"
	"github.com/janpfeifer/selfplay/internal/stopsignal"
)

// CycleContext is everything the tasks of one cycle need. It is built by the scheduler and is read-only
// for the tasks, except for the stop signal and Publish.
type CycleContext struct {
	Cycle int

	// Assignment of slots for the cycle. Zero for plans without rotation.
	Assignment generations.Assignment

	// Checkpoint the cycle starts from. Nil means cold start with an untrained model.
	Checkpoint *checkpoints.Record

	// TrainFiles are the batches sampled for the trainer.
	TrainFiles []string

	// WriteDir is the directory collectors write their batches into. Empty if the cycle has no collectors.
	WriteDir string

	// Stop is polled by collectors and set by whoever decides the cycle is done.
	Stop *stopsignal.Signal

	publishOnce     sync.Once
	published       chan struct{}
	publishedRecord *checkpoints.Record
}

// NewCycleContext returns a CycleContext for the cycle with the given stop signal.
func NewCycleContext(cycle int, stop *stopsignal.Signal) *CycleContext {
	return &CycleContext{Cycle: cycle, Stop: stop}
}

// expectPublish is called by the pool before starting the tasks, when a trainer runs in the cycle.
func (cc *CycleContext) expectPublish() {
	cc.published = make(chan struct{})
}

// Publish makes the new checkpoint produced by the trainer available to AwaitPublished.
// Only the first call has an effect. A nil record means the trainer produced nothing new.
func (cc *CycleContext) Publish(record *checkpoints.Record) {
	if cc.published == nil {
		return
	}
	cc.publishOnce.Do(func() {
		cc.publishedRecord = record
		close(cc.published)
	})
}

// AwaitPublished waits for the trainer of the cycle to publish its checkpoint and returns it.
// If no trainer runs in the cycle, or it published nothing, it returns the cycle's input Checkpoint.
func (cc *CycleContext) AwaitPublished(ctx context.Context) (*checkpoints.Record, error) {
	if cc.published == nil {
		return cc.Checkpoint, nil
	}
	select {
	case <-cc.published:
		if cc.publishedRecord == nil {
			return cc.Checkpoint, nil
		}
		return cc.publishedRecord, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

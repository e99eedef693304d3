package roles

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CurrentSaver saves the "current" weights blob, see checkpoints.DirStore.
type CurrentSaver interface {
	SaveCurrent(weights []byte) error
}

// Trainer fits the value model of the cycle's checkpoint on the cycle's training files, stores the result as
// the checkpoint of the cycle and publishes it.
type Trainer struct {
	NewModel    ModelFactory
	Checkpoints checkpoints.Store

	// Current, if set, also receives the trained weights.
	Current CurrentSaver

	// FormatVersion and EnvVersion that batches must match to be used. Others are skipped.
	FormatVersion int
	EnvVersion    string

	// Passes over the training examples.
	Passes int

	// StopsCollection makes the trainer set the stop signal once done, ending the cycle's collection.
	StopsCollection bool

	Seed uint64
}

var _ workers.Trainer = (*Trainer)(nil)

// Examples flattens the steps of the trajectories into features and labels.
func Examples(trajectories []trajectory.Trajectory) (features [][]float32, labels []float32) {
	for _, traj := range trajectories {
		for _, step := range traj.Steps {
			features = append(features, step.Features)
			labels = append(labels, step.Label)
		}
	}
	return
}

// Train implements workers.Trainer.
func (t *Trainer) Train(ctx context.Context, cc *workers.CycleContext) (result workers.TrainerResult, err error) {
	if t.StopsCollection {
		defer func() {
			if cc.Stop.Set() {
				klog.V(1).Infof("Cycle %d: trainer stopped collection", cc.Cycle)
			}
		}()
	}
	trajectories, skipped, err := trajectory.ReadAll(cc.TrainFiles, t.FormatVersion, t.EnvVersion)
	result.SkippedBatches = skipped
	if err != nil {
		return result, err
	}
	features, labels := Examples(trajectories)
	if len(features) == 0 {
		klog.Warningf("Cycle %d: trainer has no examples (%d files, %d skipped), no checkpoint produced",
			cc.Cycle, len(cc.TrainFiles), skipped)
		return result, nil
	}
	result.Examples = len(features)

	model, err := t.NewModel(cc.Checkpoint)
	if err != nil {
		return result, errors.WithMessage(err, "trainer creating model")
	}
	batchSize := model.BatchSize()
	passes := max(t.Passes, 1)
	rng := rand.New(rand.NewPCG(t.Seed, uint64(cc.Cycle)))
	order := rng.Perm(len(features))
	featuresBatch := make([][]float32, 0, batchSize)
	labelsBatch := make([]float32, 0, batchSize)

	start := time.Now()
	var numSteps int
	printUpdate := func(pass int) {
		if klog.V(1).Enabled() {
			fmt.Printf("\r\tCycle %d training: pass %d/%d, %d steps, loss=%.4f, elapsed=%s\x1b[0K",
				cc.Cycle, pass+1, passes, numSteps, result.Loss, time.Since(start).Round(time.Millisecond))
		}
	}
	for pass := range passes {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var passLoss float32
		var passSteps int
		for batchStart := 0; batchStart < len(order); batchStart += batchSize {
			if ctx.Err() != nil {
				// Interrupted: no checkpoint is produced.
				klog.Infof("Cycle %d: training interrupted", cc.Cycle)
				return result, nil
			}
			featuresBatch, labelsBatch = featuresBatch[:0], labelsBatch[:0]
			for _, idx := range order[batchStart:min(batchStart+batchSize, len(order))] {
				featuresBatch = append(featuresBatch, features[idx])
				labelsBatch = append(labelsBatch, labels[idx])
			}
			passLoss += model.Learn(featuresBatch, labelsBatch)
			passSteps++
			numSteps++
		}
		result.Loss = passLoss / float32(passSteps)
		printUpdate(pass)
	}
	if klog.V(1).Enabled() {
		fmt.Println()
	}

	record := &checkpoints.Record{CycleID: cc.Cycle, Weights: model.Encode()}
	if err = t.Checkpoints.Put(ctx, *record); err != nil {
		return result, errors.WithMessagef(err, "storing checkpoint of cycle %d", cc.Cycle)
	}
	if t.Current != nil {
		if err = t.Current.SaveCurrent(record.Weights); err != nil {
			return result, err
		}
	}
	result.Checkpoint = record
	klog.Infof("Cycle %d: trained %s on %d examples (%d batches skipped), loss=%.4f", cc.Cycle, model,
		result.Examples, skipped, result.Loss)
	return result, nil
}

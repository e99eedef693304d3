package generations

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NewRand returns the deterministic random number generator used to sample the training set of a cycle.
func NewRand(seed uint64, cycle int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(cycle)))
}

// SampleTrainingSet mixes seedSize samples of seedPool (drawn with replacement) with all files of the
// rotating slots read. The result lists the seed samples first, followed by the rotating files in the
// order given.
//
// It is deterministic for a given rng state and inputs.
func SampleTrainingSet(rotatingFiles [][]string, seedPool []string, seedSize int, rng *rand.Rand) []string {
	total := seedSize
	for _, files := range rotatingFiles {
		total += len(files)
	}
	out := make([]string, 0, total)
	if len(seedPool) > 0 {
		for range seedSize {
			out = append(out, seedPool[rng.IntN(len(seedPool))])
		}
	}
	for _, files := range rotatingFiles {
		out = append(out, files...)
	}
	return out
}

// TrainingSet is the outcome of sampling the training files of a cycle.
type TrainingSet struct {
	Files []string

	// RotatingCount is the number of batches read from the rotating slots, SeedCount the number
	// of samples taken from the seed pool.
	RotatingCount, SeedCount int
}

// TrainingSet lists the read slots of the assignment in the store and samples the seed pool
// according to the policy.
func (p *Policy) TrainingSet(store *Store, a Assignment, rng *rand.Rand) (TrainingSet, error) {
	var ts TrainingSet
	rotating, err := store.FilesOf(a.ReadSlots)
	if err != nil {
		return ts, errors.WithMessagef(err, "listing read slots for %s", a)
	}
	for _, files := range rotating {
		ts.RotatingCount += len(files)
	}
	var seedPool []string
	if p.Seed != SeedNone {
		seedPool, err = store.SeedFiles()
		if err != nil {
			return ts, errors.WithMessage(err, "listing seed pool")
		}
		if len(seedPool) == 0 {
			klog.Warningf("Seed pool %q is empty, training only on rotating slots", store.SeedDir())
		}
	}
	ts.SeedCount = p.Seed.SeedSize(ts.RotatingCount, len(seedPool))
	ts.Files = SampleTrainingSet(rotating, seedPool, ts.SeedCount, rng)
	return ts, nil
}

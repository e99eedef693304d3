// Package trajectory defines the self-play records stored in the generation slots, and how batches of them
// are encoded on disk.
//
// A batch file is a gob encoded Batch compressed with zstd. Batches are staged under a temporary name and
// renamed into place once fully written and synced, so a reader listing a directory only ever sees complete
// batches: see WriteBatch and List.
package trajectory

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// FormatVersion of the batch encoding written by this package.
	FormatVersion = 1

	// Extension of committed batch files.
	Extension = ".traj"

	// stagingSuffix is appended to batches still being written.
	stagingSuffix = ".tmp"
)

// Step is one decision point of an episode, seen from the player that took the action.
type Step struct {
	// Features of the position reached by the action, from the point of view of Player.
	Features []float32

	// Player that acted: 0 or 1.
	Player int8

	// Action index taken.
	Action int

	// Label to learn: the final outcome of the episode for Player (+1 win, -1 loss, 0 draw).
	Label float32
}

// Trajectory is a full episode.
type Trajectory struct {
	ID            string
	FormatVersion int
	EnvVersion    string
	CollectorID   int
	Episode       int

	// Outcome of the episode for player 0: +1 win, -1 loss, 0 draw.
	Outcome float32

	Steps []Step
}

// Batch is the unit written to a generation slot. Usually a collector writes one Batch per episode.
type Batch struct {
	FormatVersion int
	EnvVersion    string
	Trajectories  []Trajectory
}

// NewBatch creates an empty batch tagged with the current FormatVersion and the given environment version.
func NewBatch(envVersion string) *Batch {
	return &Batch{FormatVersion: FormatVersion, EnvVersion: envVersion}
}

// Add trajectory to the batch, tagging it with the batch versions if not yet set.
func (b *Batch) Add(t Trajectory) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.FormatVersion == 0 {
		t.FormatVersion = b.FormatVersion
	}
	if t.EnvVersion == "" {
		t.EnvVersion = b.EnvVersion
	}
	b.Trajectories = append(b.Trajectories, t)
}

// LabelWithOutcome sets the label of each step to the final Outcome from the point of view of the player
// who took the step.
func (t *Trajectory) LabelWithOutcome() {
	for ii := range t.Steps {
		step := &t.Steps[ii]
		step.Label = t.Outcome
		if step.Player == 1 {
			step.Label = -t.Outcome
		}
	}
}

// NumSteps returns the total number of steps in all trajectories of the batch.
func (b *Batch) NumSteps() (n int) {
	for _, t := range b.Trajectories {
		n += len(t.Steps)
	}
	return
}

// NewBatchName returns a unique batch file base name (without extension) for the given prefix.
// E.g.: "collector-1_ep-0003_1b4e28ba".
func NewBatchName(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", prefix, id.String()[:8])
}

package roles

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Collector plays self-play episodes with the cycle's checkpoint and commits each finished episode as one
// batch into the cycle's write directory.
//
// It polls the stop signal once per step: when set, the episode in progress is dropped and the collector
// returns.
type Collector struct {
	// Game prototype, cloned for each episode.
	Game env.Game

	NewModel ModelFactory

	// Episodes to play per collector. If <= 0, collectors play until stopped.
	Episodes int

	// Scale of the policy softmax, see NewModelPlayer.
	Scale float32

	// OnlyWins keeps only the steps of the winner of each episode (all steps on a draw).
	OnlyWins bool

	Seed uint64
}

var _ workers.Collector = (*Collector)(nil)

// Collect implements workers.Collector.
func (c *Collector) Collect(ctx context.Context, cc *workers.CycleContext, collectorIdx int) (result workers.CollectorResult, err error) {
	if cc.WriteDir == "" {
		return result, errors.Errorf("collector #%d has no write directory", collectorIdx)
	}
	model, err := c.NewModel(cc.Checkpoint)
	if err != nil {
		return result, errors.WithMessagef(err, "collector #%d creating model", collectorIdx)
	}
	player := NewModelPlayer(model, c.Scale, false)
	rng := rand.New(rand.NewPCG(c.Seed+uint64(cc.Cycle), uint64(collectorIdx)))
	prefix := fmt.Sprintf("c%05d-w%02d", cc.Cycle, collectorIdx)

	for episode := 0; c.Episodes <= 0 || episode < c.Episodes; episode++ {
		traj, finished, err := c.playEpisode(ctx, cc, player, rng)
		if err != nil {
			return result, errors.WithMessagef(err, "collector #%d episode %d", collectorIdx, episode)
		}
		if !finished {
			result.Dropped++
			klog.V(1).Infof("Collector #%d stopped in cycle %d after %d episodes", collectorIdx, cc.Cycle, result.Episodes)
			return result, nil
		}
		traj.CollectorID = collectorIdx
		traj.Episode = episode
		batch := trajectory.NewBatch(c.Game.Version())
		batch.Add(traj)
		path, size, err := trajectory.WriteBatch(cc.WriteDir, trajectory.NewBatchName(prefix), batch)
		if err != nil {
			return result, err
		}
		result.Episodes++
		result.Steps += len(traj.Steps)
		result.Bytes += size
		klog.V(2).Infof("Collector #%d: episode %d (%d steps, outcome %g) saved to %q (%s)",
			collectorIdx, episode, len(traj.Steps), traj.Outcome, path, humanize.Bytes(uint64(size)))
	}
	return result, nil
}

// playEpisode plays one self-play match. It returns finished=false if the stop signal was set or the context
// cancelled before the end of the match.
func (c *Collector) playEpisode(ctx context.Context, cc *workers.CycleContext, player Player, rng *rand.Rand) (
	traj trajectory.Trajectory, finished bool, err error) {
	game := c.Game.Clone()
	game.Reset()
	for !game.Finished() {
		if cc.Stop.Poll() || ctx.Err() != nil {
			return traj, false, nil
		}
		mover := game.NextPlayer()
		action, err := player.Play(game, rng)
		if err != nil {
			return traj, false, err
		}
		if err = game.Act(action); err != nil {
			return traj, false, err
		}
		traj.Steps = append(traj.Steps, trajectory.Step{
			Features: game.Features(mover),
			Player:   int8(mover),
			Action:   action,
		})
	}
	traj.Outcome = game.Outcome()
	traj.LabelWithOutcome()
	if c.OnlyWins && traj.Outcome != 0 {
		traj.Steps = slices.DeleteFunc(traj.Steps, func(step trajectory.Step) bool { return step.Label < 0 })
	}
	return traj, true, nil
}

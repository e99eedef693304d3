// Package scraper converts replays of finished matches, as published by game servers in JSON, into trajectory
// batches that can be used as the fixed seed pool of imitation or reinforcement learning.
//
// A replay looks like:
//
//	{
//	  "version": "tictactoe-v1",
//	  "info": {"TeamNames": ["alpha", "beta"]},
//	  "rewards": [1, null],
//	  "steps": [[{"action": null}, {"action": null}], [{"action": 4}, {"action": null}], ...]
//	}
//
// Each step holds one entry per player, and at most one of them (the player to move) has a non-null action.
// A null reward is taken as -1 (the player errored out).
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/generics"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// DrawName is used in place of the winning team name for output files of drawn matches.
const DrawName = "Draw"

// Replay is the JSON document describing one finished match.
type Replay struct {
	Version string `json:"version"`
	Info    struct {
		TeamNames []string `json:"TeamNames"`
	} `json:"info"`
	Rewards []*float64    `json:"rewards"`
	Steps   [][]AgentStep `json:"steps"`
}

// AgentStep is the entry of one player in one step of a Replay.
type AgentStep struct {
	Action *int   `json:"action"`
	Status string `json:"status,omitempty"`
}

// Reward of player, with missing rewards counted as -1.
func (r *Replay) Reward(player int) float64 {
	if player >= len(r.Rewards) || r.Rewards[player] == nil {
		return -1
	}
	return *r.Rewards[player]
}

// ReadReplay parses the replay JSON file.
func ReadReplay(path string) (*Replay, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read replay %q", path)
	}
	replay := &Replay{}
	if err = json.Unmarshal(contents, replay); err != nil {
		return nil, errors.Wrapf(err, "failed to parse replay %q", path)
	}
	if len(replay.Info.TeamNames) != 2 {
		return nil, errors.Errorf("replay %q has %d team names, expected 2", path, len(replay.Info.TeamNames))
	}
	return replay, nil
}

// Scraper converts replay files into trajectory batches written to OutputDir.
type Scraper struct {
	// Game prototype used to replay the matches. Replays of other versions are skipped.
	Game env.Game

	OutputDir string

	// TeamName, if set, restricts the scraped steps to the ones of this team, and skips replays where
	// it didn't play.
	TeamName string

	// OnlyWins keeps only the steps of the winner (both players on a draw). It takes precedence over TeamName
	// for the selection of steps.
	OnlyWins bool

	// TopTeams, if not empty, skips replays unless both teams are in it.
	TopTeams generics.Set[string]

	// FilesToSave is the maximum number of files to save in one Run. If <= 0 there is no limit.
	FilesToSave int

	// ParallelCalls is the number of replays processed concurrently. 1 or less means sequential.
	ParallelCalls int

	// Progress, if set, receives a progress bar.
	Progress io.Writer
}

// Stats of one Run.
type Stats struct {
	Scanned, Saved, AlreadySaved, WrongVersion, NoTeam, NotTopTeams, Invalid int

	Steps int
	Bytes int64
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d scanned, %d saved (%d steps, %s), %d already saved, %d wrong version, "+
		"%d without team, %d not top teams, %d invalid",
		s.Scanned, s.Saved, s.Steps, humanize.Bytes(uint64(s.Bytes)), s.AlreadySaved, s.WrongVersion,
		s.NoTeam, s.NotTopTeams, s.Invalid)
}

// SubmissionID is the part of a file stem that identifies the match: everything before the first "_".
func SubmissionID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id, _, _ := strings.Cut(stem, "_")
	return id
}

// AlreadySaved returns the submission ids with a batch in dir.
func AlreadySaved(dir string) (generics.Set[string], error) {
	files, err := trajectory.List(dir)
	if err != nil {
		return nil, err
	}
	saved := generics.MakeSet[string](len(files))
	for _, file := range files {
		saved.Insert(SubmissionID(file))
	}
	return saved, nil
}

// Run scrapes the given replay files, in order, skipping those already present in OutputDir.
func (s *Scraper) Run(ctx context.Context, replayFiles []string) (stats Stats, err error) {
	if err = os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return stats, errors.Wrapf(err, "failed to create scraper output directory %q", s.OutputDir)
	}
	saved, err := AlreadySaved(s.OutputDir)
	if err != nil {
		return stats, err
	}
	pending := make([]string, 0, len(replayFiles))
	for _, file := range replayFiles {
		stats.Scanned++
		if saved.Has(SubmissionID(file)) {
			klog.V(1).Infof("Replay %q is already saved", file)
			stats.AlreadySaved++
			continue
		}
		pending = append(pending, file)
	}

	var bar *progressbar.ProgressBar
	if s.Progress != nil {
		bar = progressbar.NewOptions(len(pending),
			progressbar.OptionSetWriter(s.Progress),
			progressbar.OptionSetDescription("scraping"),
			progressbar.OptionShowCount())
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.ParallelCalls, 1))
	for _, file := range pending {
		mu.Lock()
		done := s.FilesToSave > 0 && stats.Saved >= s.FilesToSave
		mu.Unlock()
		if done || gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			batch, name, reason := s.convert(file)
			mu.Lock()
			defer mu.Unlock()
			if bar != nil {
				_ = bar.Add(1)
			}
			switch {
			case reason != keep:
				reason.count(&stats)
				return nil
			case s.FilesToSave > 0 && stats.Saved >= s.FilesToSave:
				return nil
			}
			// Writing while holding the lock keeps the FilesToSave limit exact.
			path, size, err := trajectory.WriteBatch(s.OutputDir, name, batch)
			if err != nil {
				return err
			}
			stats.Saved++
			stats.Steps += batch.NumSteps()
			stats.Bytes += size
			klog.V(1).Infof("Replay %q saved to %q", file, path)
			return nil
		})
	}
	err = g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	if err == nil && ctx.Err() != nil {
		klog.Infof("Scraping interrupted")
	}
	if s.FilesToSave > 0 && stats.Saved >= s.FilesToSave {
		klog.Infof("%d files saved, limit reached", stats.Saved)
	}
	return stats, err
}

// skipReason tells why a replay was not saved.
type skipReason int

const (
	keep skipReason = iota
	skipWrongVersion
	skipNoTeam
	skipNotTopTeams
	skipInvalid
)

func (r skipReason) count(stats *Stats) {
	switch r {
	case skipWrongVersion:
		stats.WrongVersion++
	case skipNoTeam:
		stats.NoTeam++
	case skipNotTopTeams:
		stats.NotTopTeams++
	case skipInvalid:
		stats.Invalid++
	}
}

// convert a replay file into a batch and its output name. If the replay is not to be saved it returns the
// reason instead.
func (s *Scraper) convert(path string) (batch *trajectory.Batch, name string, reason skipReason) {
	replay, err := ReadReplay(path)
	if err != nil {
		klog.Warningf("Skipping invalid replay: %+v", err)
		return nil, "", skipInvalid
	}
	if replay.Version != s.Game.Version() {
		klog.Warningf("Replay %q has an inappropriate version %q, expected %q", path, replay.Version, s.Game.Version())
		return nil, "", skipWrongVersion
	}
	teams := replay.Info.TeamNames
	if len(s.TopTeams) > 0 && !(s.TopTeams.Has(teams[0]) && s.TopTeams.Has(teams[1])) {
		klog.V(1).Infof("Replay %q is not between top teams", path)
		return nil, "", skipNotTopTeams
	}
	players, ok := s.playersOfInterest(replay)
	if !ok {
		klog.V(1).Infof("Replay %q does not have the required team %q", path, s.TeamName)
		return nil, "", skipNoTeam
	}
	traj, err := Scrape(s.Game, replay, players)
	if err != nil {
		klog.Warningf("Skipping invalid replay %q: %+v", path, err)
		return nil, "", skipInvalid
	}
	batch = trajectory.NewBatch(s.Game.Version())
	batch.Add(traj)
	return batch, SubmissionID(path) + "_" + s.outputTeamName(replay), keep
}

// playersOfInterest returns the players whose steps are kept. It returns false if TeamName is set and
// didn't play the match.
func (s *Scraper) playersOfInterest(replay *Replay) (players generics.Set[int], ok bool) {
	teams := replay.Info.TeamNames
	players = generics.SetWith(0, 1)
	if s.TeamName != "" {
		players = generics.MakeSet[int](2)
		for player, team := range teams {
			if team == s.TeamName {
				players.Insert(player)
			}
		}
		if len(players) == 0 {
			return nil, false
		}
	}
	if s.OnlyWins {
		r0, r1 := replay.Reward(0), replay.Reward(1)
		switch {
		case r0 > r1:
			players = generics.SetWith(0)
		case r0 < r1:
			players = generics.SetWith(1)
		default:
			players = generics.SetWith(0, 1)
		}
	}
	return players, true
}

// outputTeamName is TeamName if set, otherwise the winner's team name, or DrawName.
func (s *Scraper) outputTeamName(replay *Replay) string {
	if s.TeamName != "" {
		return s.TeamName
	}
	r0, r1 := replay.Reward(0), replay.Reward(1)
	switch {
	case r0 > r1:
		return replay.Info.TeamNames[0]
	case r0 < r1:
		return replay.Info.TeamNames[1]
	}
	return DrawName
}

// Scrape replays the match in game (which is reset first) and returns the trajectory with the steps of the
// given players. The outcome is taken from the rewards, since a replay may end before the game is finished
// (e.g. a player timing out).
func Scrape(game env.Game, replay *Replay, players generics.Set[int]) (traj trajectory.Trajectory, err error) {
	game = game.Clone()
	game.Reset()
	for stepIdx, agents := range replay.Steps {
		for player, agent := range agents {
			if agent.Action == nil {
				continue
			}
			if game.Finished() {
				return traj, errors.Errorf("step %d: action for player %d after the end of the game", stepIdx, player)
			}
			if player != game.NextPlayer() {
				return traj, errors.Errorf("step %d: action for player %d, but player %d is to move",
					stepIdx, player, game.NextPlayer())
			}
			action := *agent.Action
			if err = game.Act(action); err != nil {
				return traj, errors.WithMessagef(err, "step %d", stepIdx)
			}
			if !players.Has(player) {
				continue
			}
			traj.Steps = append(traj.Steps, trajectory.Step{
				Features: game.Features(player),
				Player:   int8(player),
				Action:   action,
			})
		}
	}
	r0, r1 := replay.Reward(0), replay.Reward(1)
	switch {
	case r0 > r1:
		traj.Outcome = 1
	case r0 < r1:
		traj.Outcome = -1
	}
	traj.LabelWithOutcome()
	return traj, nil
}

// ListReplays returns the files matching the glob pattern, sorted.
func ListReplays(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid replays pattern %q", pattern)
	}
	slices.Sort(files)
	return files, nil
}

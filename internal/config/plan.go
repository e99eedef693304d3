package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/janpfeifer/selfplay/internal/generations"
	"github.com/pkg/errors"
)

// Plan is what a run mode resolves to: which roles run, for how many cycles and over which data.
type Plan struct {
	Name string

	// Root of the generations store.
	Root string

	// Policy of retention for plans that rotate generation slots, with the slot ring under Root and the seed
	// pool in SeedDirName. Nil otherwise.
	Policy      *generations.Policy
	SeedDirName string

	// TrainDirs hold the training files of plans that don't rotate.
	TrainDirs []string

	// WriteDir is where collectors write in plans that don't rotate.
	WriteDir string

	Trainer, Evaluator bool
	Collectors         int
	Cycles             int

	// SaveCurrent makes the trainer also update the current weights.
	SaveCurrent bool
}

// String implements fmt.Stringer.
func (p *Plan) String() string {
	var roles []string
	if p.Trainer {
		roles = append(roles, "trainer")
	}
	if p.Evaluator {
		roles = append(roles, "evaluator")
	}
	if p.Collectors > 0 {
		roles = append(roles, fmt.Sprintf("%d collectors", p.Collectors))
	}
	data := fmt.Sprintf("train dirs %q", p.TrainDirs)
	if p.Policy != nil {
		data = fmt.Sprintf("policy %s", p.Policy)
	}
	return fmt.Sprintf("%s: %d cycles, %s, %s", p.Name, p.Cycles, strings.Join(roles, "+"), data)
}

// NumSlots of the generations store, 0 for plans that don't rotate.
func (p *Plan) NumSlots() int {
	if p.Policy == nil {
		return 0
	}
	return p.Policy.NumSlots
}

func (c *Config) cycles(planDefault int) int {
	if c.Cycles > 0 {
		return c.Cycles
	}
	return planDefault
}

func slotDirs(root string, numSlots int) []string {
	dirs := make([]string, numSlots)
	for slot := range numSlots {
		dirs[slot] = filepath.Join(root, fmt.Sprintf("storage_%d", slot))
	}
	return dirs
}

// Plan resolves the configured setup. The "scrape" setup has no plan and returns an error.
func (c *Config) Plan() (*Plan, error) {
	switch c.Setup {
	case SetupCollect:
		return c.collectPlan(), nil
	case SetupEvaluate:
		return &Plan{Name: "evaluate", Root: c.RLDir(), Evaluator: true, Cycles: 1}, nil
	case SetupImitate:
		return c.imitatePlan()
	case SetupRL:
		return c.rlPlan()
	}
	return nil, errors.Errorf("setup %q has no cycle plan", c.Setup)
}

func (c *Config) collectPlan() *Plan {
	root := c.RLDir()
	if c.IsForImitator {
		root = c.ImitatorDir()
	}
	return &Plan{
		Name:       "collect",
		Root:       root,
		WriteDir:   slotDirs(root, 1)[0],
		Collectors: c.Collectors,
		Cycles:     1,
	}
}

func (c *Config) imitatePlan() (*Plan, error) {
	root := c.ImitatorDir()
	train := filepath.Join(root, generations.ImitationSeedDirName)
	switch {
	case c.SelfImitation:
		policy, err := generations.NewFixedWindow(3, generations.SeedMatchRotating)
		if err != nil {
			return nil, err
		}
		return &Plan{
			Name: "self_imitation", Root: root, Policy: policy, SeedDirName: generations.ImitationSeedDirName,
			Trainer: true, Evaluator: true, Collectors: c.Collectors, Cycles: c.cycles(10),
		}, nil
	case c.WithEvaluation:
		return &Plan{
			Name: "imitate_with_evaluation", Root: root, TrainDirs: []string{train},
			Trainer: true, Evaluator: true, Cycles: c.cycles(1), SaveCurrent: true,
		}, nil
	}
	return &Plan{
		Name: "imitate", Root: root, TrainDirs: []string{train}, Trainer: true, Cycles: c.cycles(1),
		SaveCurrent: true,
	}, nil
}

func (c *Config) rlPlan() (*Plan, error) {
	root := c.RLDir()
	seedPool := filepath.Join(root, generations.DefaultSeedDirName)
	plan := &Plan{Name: c.RLType.String(), Root: root, Trainer: true}
	var err error
	switch c.RLType {
	case RLSingle, RLSinglePg:
		plan.TrainDirs = []string{seedPool}
		plan.Cycles = c.cycles(1)
		plan.SaveCurrent = true
	case RLSingleAcMc:
		plan.TrainDirs = slotDirs(root, 10)
		plan.Cycles = c.cycles(1)
		plan.SaveCurrent = true
	case RLWithEvaluation:
		plan.TrainDirs = []string{seedPool}
		plan.Evaluator = true
		plan.Cycles = c.cycles(10)
	case RLContinuousPg:
		plan.Policy, err = generations.NewFixedWindow(5, generations.SeedMatchRotating)
		plan.Evaluator = true
		plan.Collectors = c.Collectors
		plan.Cycles = c.cycles(10)
	case RLFromScratchPg:
		plan.Policy, err = generations.NewSlidingWindow(20, generations.SeedNone)
		plan.Collectors = c.Collectors
		plan.Cycles = c.cycles(100)
	case RLContinuousAcMc:
		plan.Policy, err = generations.NewEvictingSlidingWindow(10, generations.SeedHalfRotating)
		plan.Evaluator = true
		plan.Collectors = c.Collectors
		plan.Cycles = c.cycles(100)
	default:
		return nil, errors.Errorf("rl_type %s not implemented", c.RLType)
	}
	if err != nil {
		return nil, err
	}
	if plan.Policy != nil {
		plan.SeedDirName = generations.DefaultSeedDirName
	}
	return plan, nil
}

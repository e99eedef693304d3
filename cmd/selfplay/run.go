package main

import (
	"context"
	"os"

	"github.com/janpfeifer/must"
	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/config"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/generations"
	"github.com/janpfeifer/selfplay/internal/profilers"
	"github.com/janpfeifer/selfplay/internal/roles"
	"github.com/janpfeifer/selfplay/internal/scheduler"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/janpfeifer/selfplay/internal/ui/report"
	"github.com/janpfeifer/selfplay/internal/ui/spinning"
	"github.com/janpfeifer/selfplay/internal/workers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// loadConfig from the -config file and -set overrides. If setup is not empty it overrides the configured one.
func loadConfig(setup string) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err = cfg.ApplyOverrides(flagSet); err != nil {
		return nil, err
	}
	if setup != "" {
		cfg.Setup = setup
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("Configuration:\n%s", cfg)
	return cfg, nil
}

// run the given setup, or the configured one if empty.
func run(ctx context.Context, setup string) error {
	cfg, err := loadConfig(setup)
	if err != nil {
		return err
	}
	must.M(profilers.Setup(ctx))
	defer profilers.OnQuit()

	game, err := env.New(cfg.Game)
	if err != nil {
		return err
	}
	if cfg.Setup == config.SetupScrape {
		return runScrape(ctx, cfg, game)
	}
	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	return runPlan(ctx, cfg, game, plan)
}

// runPlan builds the checkpoint store, the roles and the scheduler for plan, and runs its cycles.
func runPlan(ctx context.Context, cfg *config.Config, game env.Game, plan *config.Plan) (err error) {
	klog.Infof("Plan %s", plan)
	if plan.Trainer || plan.Evaluator {
		klog.V(1).Infof("Resources requested: %d GPU(s) per trainer, %d GPU(s) per evaluator (tasks run in-process)",
			cfg.GPUsPerTrainer, cfg.GPUsPerEvaluator)
	}
	store, err := checkpoints.Open(ctx, cfg.CheckpointBackend, cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := checkpoints.Close(store); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// The current weights, if any, are the starting point while no checkpoint exists.
	current, err := checkpoints.NewDirStore(cfg.WeightsDir())
	if err != nil {
		return err
	}
	var initial *checkpoints.Record
	if blob, err := current.LoadCurrent(); err != nil {
		return err
	} else if blob != nil {
		initial = &checkpoints.Record{CycleID: -1, Weights: blob}
		klog.Infof("Loaded current weights from %q", current.Dir)
	}
	firstCycle, err := scheduler.ResumeCycle(ctx, store)
	if err != nil {
		return err
	}

	newModel := roles.LinearModels(game, cfg.ModelParams())
	if _, err = newModel(initial); err != nil {
		return errors.WithMessage(err, "invalid model configuration")
	}
	envVersion := cfg.EnvVersion
	if envVersion == "" {
		envVersion = game.Version()
	}
	seed := uint64(cfg.Seed)
	pool := &workers.Pool{}
	if plan.Collectors > 0 {
		pool.Collector = &roles.Collector{
			Game:     game,
			NewModel: newModel,
			Episodes: cfg.EpisodesPerCollector,
			Scale:    float32(cfg.PolicyScale),
			OnlyWins: cfg.OnlyWins,
			Seed:     seed,
		}
		pool.NumCollectors = plan.Collectors
	}
	if plan.Trainer {
		trainer := &roles.Trainer{
			NewModel:        newModel,
			Checkpoints:     store,
			FormatVersion:   cfg.FormatVersion,
			EnvVersion:      envVersion,
			Passes:          cfg.TrainPasses,
			StopsCollection: cfg.TrainerStopsCollection,
			Seed:            seed,
		}
		if plan.SaveCurrent {
			trainer.Current = current
		}
		pool.Trainer = trainer
	}
	if plan.Evaluator {
		pool.Evaluator = &roles.Evaluator{
			Game:            game,
			NewModel:        newModel,
			Opponent:        cfg.EvalCompareAgent,
			NumMatches:      cfg.EvalMatches,
			StopsCollection: cfg.EvaluatorStopsCollection,
			Seed:            seed,
		}
	}

	s := &scheduler.Scheduler{
		Checkpoints: store,
		Initial:     initial,
		Pool:        pool,
		FirstCycle:  firstCycle,
		NumCycles:   plan.Cycles,
		Cooldown:    cfg.Cooldown,
		Seed:        seed,
	}
	if plan.Policy != nil {
		s.Policy = plan.Policy
		s.Generations = generations.NewStore(plan.Root, plan.NumSlots(), plan.SeedDirName)
	} else {
		if s.FixedTrainFiles, err = listBatches(plan.TrainDirs); err != nil {
			return err
		}
		if plan.WriteDir != "" {
			if err = os.MkdirAll(plan.WriteDir, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %q", plan.WriteDir)
			}
			s.FixedWriteDir = plan.WriteDir
		}
	}

	var spinner *spinning.Spinning
	s.OnState = func(_ int, state scheduler.State) {
		switch state {
		case scheduler.Running:
			if !klog.V(1).Enabled() {
				spinner = spinning.New(ctx)
			}
		case scheduler.Join:
			if spinner != nil {
				spinner.Done()
				spinner = nil
			}
		}
	}
	s.OnCycle = func(r *scheduler.CycleReport) {
		report.Print(os.Stdout, r)
	}
	return s.Run(ctx)
}

// listBatches in all dirs.
func listBatches(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		dirFiles, err := trajectory.List(dir)
		if err != nil {
			return nil, err
		}
		files = append(files, dirFiles...)
	}
	return files, nil
}

// Package config holds the configuration of the selfplay program: defaults, the YAML configuration file and
// the command line overrides, and the resolution of each run mode into a Plan.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/janpfeifer/selfplay/internal/checkpoints"
	"github.com/janpfeifer/selfplay/internal/parameters"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	SetupScrape   = "scrape"
	SetupCollect  = "collect"
	SetupEvaluate = "evaluate"
	SetupImitate  = "imitate"
	SetupRL       = "rl"
)

// Setups lists the valid run modes.
var Setups = []string{SetupScrape, SetupCollect, SetupEvaluate, SetupImitate, SetupRL}

// Scrape types.
const (
	ScrapeSingle = "single"
	ScrapeMulti  = "multi"
)

// Config of a run. The yaml tags are also the keys accepted by ApplyOverrides.
type Config struct {
	Setup   string `yaml:"setup"`
	Game    string `yaml:"game"`
	DataDir string `yaml:"data_dir"`
	Seed    int    `yaml:"seed"`

	// CheckpointBackend is one of checkpoints.BackendDir or checkpoints.BackendSQLite.
	CheckpointBackend string `yaml:"checkpoint_backend"`

	// Model hyperparameters, as a "key=value,..." string, see linear.NewFromParams.
	Model string `yaml:"model"`

	// FormatVersion and EnvVersion that trajectory batches must match to be trained on. EnvVersion defaults
	// to the game's version.
	FormatVersion int    `yaml:"format_version"`
	EnvVersion    string `yaml:"env_version"`

	BatchSize            int     `yaml:"batch_size"`
	LearningRate         float64 `yaml:"learning_rate"`
	TrainPasses          int     `yaml:"train_passes"`
	Collectors           int     `yaml:"collectors"`
	EpisodesPerCollector int     `yaml:"episodes_per_collector"`
	PolicyScale          float64 `yaml:"policy_scale"`

	// GPUsPerTrainer and GPUsPerEvaluator are resource requests. They are only reported, tasks run in-process.
	GPUsPerTrainer   int `yaml:"gpus_per_trainer"`
	GPUsPerEvaluator int `yaml:"gpus_per_evaluator"`

	// Cycles overrides the number of cycles of the plan, if > 0.
	Cycles   int           `yaml:"cycles"`
	Cooldown time.Duration `yaml:"cooldown"`

	EvalMatches              int    `yaml:"eval_matches"`
	EvalCompareAgent         string `yaml:"eval_compare_agent"`
	EvaluatorStopsCollection bool   `yaml:"evaluator_stops_collection"`
	TrainerStopsCollection   bool   `yaml:"trainer_stops_collection"`

	// Imitation.
	SelfImitation  bool `yaml:"self_imitation"`
	WithEvaluation bool `yaml:"with_evaluation"`

	// Reinforcement learning.
	RLType RLType `yaml:"rl_type"`

	// Scraping.
	ScrapeType    string   `yaml:"scrape_type"`
	ParallelCalls int      `yaml:"parallel_calls"`
	IsForRL       bool     `yaml:"is_for_rl"`
	TeamName      string   `yaml:"team_name"`
	OnlyWins      bool     `yaml:"only_wins"`
	OnlyTopTeams  bool     `yaml:"only_top_teams"`
	TopTeams      []string `yaml:"top_teams"`
	FilesToSave   int      `yaml:"files_to_save"`
	ReplaysGlob   string   `yaml:"replays_glob"`

	// Collection.
	IsForImitator bool `yaml:"is_for_imitator"`
}

// Default configuration.
func Default() *Config {
	return &Config{
		Setup:                    SetupRL,
		Game:                     "tictactoe",
		DataDir:                  "data",
		Seed:                     42,
		CheckpointBackend:        checkpoints.BackendDir,
		FormatVersion:            1,
		BatchSize:                100,
		LearningRate:             0.01,
		TrainPasses:              3,
		Collectors:               2,
		EpisodesPerCollector:     10,
		PolicyScale:              1,
		GPUsPerTrainer:           1,
		Cooldown:                 time.Second,
		EvalMatches:              20,
		EvalCompareAgent:         "random",
		EvaluatorStopsCollection: true,
		WithEvaluation:           true,
		RLType:                   RLSingleAcMc,
		ScrapeType:               ScrapeSingle,
		ParallelCalls:            8,
		IsForRL:                  true,
		FilesToSave:              3,
		ReplaysGlob:              "data/replays/*.json",
	}
}

// Load the configuration file at path over the defaults. If path is empty the defaults are returned.
// Unknown keys in the file are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration %q", path)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err = decoder.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration %q", path)
	}
	return cfg, nil
}

// ApplyOverrides from a "key=value,key2=value2" string, as given with the -set flag. Keys are the yaml names
// of the fields. List values (top_teams) are separated by ";". Unknown keys are an error.
func (c *Config) ApplyOverrides(overrides string) (err error) {
	params := parameters.NewFromConfigString(overrides)
	if len(params) == 0 {
		return nil
	}
	pop := func(key string, target any) {
		if err != nil {
			return
		}
		switch v := target.(type) {
		case *string:
			*v, err = parameters.PopParamOr(params, key, *v)
		case *int:
			*v, err = parameters.PopParamOr(params, key, *v)
		case *float64:
			*v, err = parameters.PopParamOr(params, key, *v)
		case *bool:
			*v, err = parameters.PopParamOr(params, key, *v)
		case *time.Duration:
			var s string
			s, err = parameters.PopParamOr(params, key, v.String())
			if err == nil {
				*v, err = time.ParseDuration(s)
				err = errors.Wrapf(err, "failed to parse configuration %s=%q to duration", key, s)
			}
		case *RLType:
			var s string
			s, err = parameters.PopParamOr(params, key, v.String())
			if err == nil {
				*v, err = RLTypeString(s)
			}
		case *[]string:
			var s string
			s, err = parameters.PopParamOr(params, key, strings.Join(*v, ";"))
			if err == nil {
				*v = splitList(s)
			}
		default:
			err = errors.Errorf("configuration key %q has unsupported type %T", key, target)
		}
	}
	pop("setup", &c.Setup)
	pop("game", &c.Game)
	pop("data_dir", &c.DataDir)
	pop("seed", &c.Seed)
	pop("checkpoint_backend", &c.CheckpointBackend)
	pop("model", &c.Model)
	pop("format_version", &c.FormatVersion)
	pop("env_version", &c.EnvVersion)
	pop("batch_size", &c.BatchSize)
	pop("learning_rate", &c.LearningRate)
	pop("train_passes", &c.TrainPasses)
	pop("collectors", &c.Collectors)
	pop("episodes_per_collector", &c.EpisodesPerCollector)
	pop("policy_scale", &c.PolicyScale)
	pop("gpus_per_trainer", &c.GPUsPerTrainer)
	pop("gpus_per_evaluator", &c.GPUsPerEvaluator)
	pop("cycles", &c.Cycles)
	pop("cooldown", &c.Cooldown)
	pop("eval_matches", &c.EvalMatches)
	pop("eval_compare_agent", &c.EvalCompareAgent)
	pop("evaluator_stops_collection", &c.EvaluatorStopsCollection)
	pop("trainer_stops_collection", &c.TrainerStopsCollection)
	pop("self_imitation", &c.SelfImitation)
	pop("with_evaluation", &c.WithEvaluation)
	pop("rl_type", &c.RLType)
	pop("scrape_type", &c.ScrapeType)
	pop("parallel_calls", &c.ParallelCalls)
	pop("is_for_rl", &c.IsForRL)
	pop("team_name", &c.TeamName)
	pop("only_wins", &c.OnlyWins)
	pop("only_top_teams", &c.OnlyTopTeams)
	pop("top_teams", &c.TopTeams)
	pop("files_to_save", &c.FilesToSave)
	pop("replays_glob", &c.ReplaysGlob)
	pop("is_for_imitator", &c.IsForImitator)
	if err != nil {
		return err
	}
	return parameters.CheckAllUsed(params, "-set")
}

func splitList(s string) []string {
	var list []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}

// Validate the configuration values.
func (c *Config) Validate() error {
	if !slices.Contains(Setups, c.Setup) {
		return errors.Errorf("invalid setup %q, valid values are %q", c.Setup, Setups)
	}
	if !c.RLType.IsARLType() {
		return errors.Errorf("invalid rl_type %s, valid values are %q", c.RLType, RLTypeStrings())
	}
	switch c.CheckpointBackend {
	case checkpoints.BackendDir, checkpoints.BackendSQLite, checkpoints.BackendMemory:
	default:
		return errors.Errorf("invalid checkpoint_backend %q, valid values are %q, %q or %q", c.CheckpointBackend,
			checkpoints.BackendDir, checkpoints.BackendSQLite, checkpoints.BackendMemory)
	}
	switch c.ScrapeType {
	case ScrapeSingle, ScrapeMulti:
	default:
		return errors.Errorf("invalid scrape_type %q, valid values are %q or %q", c.ScrapeType, ScrapeSingle, ScrapeMulti)
	}
	if c.OnlyTopTeams && len(c.TopTeams) == 0 {
		return errors.New("only_top_teams requires top_teams to be set")
	}
	for key, value := range map[string]int{
		"batch_size": c.BatchSize, "train_passes": c.TrainPasses, "eval_matches": c.EvalMatches,
		"parallel_calls": c.ParallelCalls,
	} {
		if value <= 0 {
			return errors.Errorf("%s must be > 0, got %d", key, value)
		}
	}
	for key, value := range map[string]int{
		"collectors": c.Collectors, "cycles": c.Cycles, "gpus_per_trainer": c.GPUsPerTrainer,
		"gpus_per_evaluator": c.GPUsPerEvaluator,
	} {
		if value < 0 {
			return errors.Errorf("%s must be >= 0, got %d", key, value)
		}
	}
	if c.Cooldown < 0 {
		return errors.Errorf("cooldown must be >= 0, got %s", c.Cooldown)
	}
	return nil
}

// ModelParams returns the model hyperparameters: the model string plus batch_size and learning_rate.
// Values in the model string take precedence.
func (c *Config) ModelParams() parameters.Params {
	return parameters.Merge(parameters.Params{
		"batch_size":    strconv.Itoa(c.BatchSize),
		"learning_rate": strconv.FormatFloat(c.LearningRate, 'g', -1, 64),
	}, parameters.NewFromConfigString(c.Model))
}

// TrajectoriesDir holds the generation stores for reinforcement learning and imitation.
func (c *Config) TrajectoriesDir() string { return filepath.Join(c.DataDir, "trajectories") }

// RLDir is the generations root for reinforcement learning.
func (c *Config) RLDir() string { return filepath.Join(c.TrajectoriesDir(), "rl") }

// ImitatorDir is the generations root for imitation learning.
func (c *Config) ImitatorDir() string { return filepath.Join(c.TrajectoriesDir(), "imitator") }

// WeightsDir holds the checkpoints and the current weights.
func (c *Config) WeightsDir() string { return filepath.Join(c.DataDir, checkpoints.WeightsDirName) }

// ScrapeOutputDir is where scraped replays are written: the reinforcement learning seed pool, or the imitation
// training set.
func (c *Config) ScrapeOutputDir() string {
	if c.IsForRL {
		return filepath.Join(c.RLDir(), "storage")
	}
	return filepath.Join(c.ImitatorDir(), "train")
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

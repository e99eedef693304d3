// selfplay trains a game playing value model by alternating self-play collection, training and evaluation,
// cycle after cycle.
//
// Run modes are subcommands:
//
//   - scrape: converts replays of matches into trajectory batches.
//   - collect: plays self-play episodes into the first generation slot.
//   - evaluate: matches the latest checkpoint against the compare agent.
//   - imitate: trains on the imitation set, optionally with self-imitation cycles.
//   - rl: reinforcement learning cycles, as selected by rl_type.
//
// Without a subcommand it runs the "setup" of the configuration.
//
// Configuration is loaded from the -config YAML file, over the defaults, and then overridden by -set:
//
//	selfplay rl --config=selfplay.yaml --set="rl_type=continuous_ac_mc,cycles=20"
package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/janpfeifer/selfplay/internal/env/tictactoe"
	"github.com/janpfeifer/selfplay/internal/config"
	"github.com/janpfeifer/selfplay/internal/profilers"
	"github.com/janpfeifer/selfplay/internal/ui/spinning"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// Flags
var (
	flagConfig string
	flagSet    string
)

// Globals
var (
	// globalCtx used everywhere. It is cancelled when the program is about to exit either by
	// an interrupt (ctrl+C) or by reaching the end.
	globalCtx = context.Background()
)

var setupDescriptions = map[string]string{
	config.SetupScrape:   "Convert replays of matches into trajectory batches",
	config.SetupCollect:  "Collect self-play episodes into the first generation slot",
	config.SetupEvaluate: "Evaluate the latest checkpoint against the compare agent",
	config.SetupImitate:  "Train on the imitation set, optionally with self-imitation cycles",
	config.SetupRL:       "Run reinforcement learning cycles as selected by rl_type",
}

var rootCmd = &cobra.Command{
	Use:          "selfplay",
	Short:        "Generational self-play trainer",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), "")
	},
}

func setupCmd(setup string) *cobra.Command {
	return &cobra.Command{
		Use:   setup,
		Short: setupDescriptions[setup],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), setup)
		},
	}
}

func init() {
	goFlags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	klog.InitFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML configuration file. Keys not set use the defaults.")
	rootCmd.PersistentFlags().StringVar(&flagSet, "set", "",
		"Configuration overrides, as a comma-separated list of key=value, e.g. \"rl_type=continuous_pg,cycles=3\".")
	profilers.AddFlags(rootCmd.PersistentFlags())
	for _, setup := range config.Setups {
		rootCmd.AddCommand(setupCmd(setup))
	}
}

func main() {
	// Capture Control+C
	var globalCancel func()
	globalCtx, globalCancel = context.WithCancel(context.Background())
	spinning.SafeInterrupt(globalCancel, 5*time.Second)
	defer globalCancel()

	err := rootCmd.ExecuteContext(globalCtx)
	klog.Flush()
	if err != nil {
		klog.Fatalf("Failed: %+v", err)
	}
}

package main

import (
	"context"
	"os"

	"github.com/janpfeifer/selfplay/internal/config"
	"github.com/janpfeifer/selfplay/internal/env"
	"github.com/janpfeifer/selfplay/internal/generics"
	"github.com/janpfeifer/selfplay/internal/scraper"
	"github.com/janpfeifer/selfplay/internal/ui/spinning"
	"k8s.io/klog/v2"
)

// runScrape converts the replays matching replays_glob into the seed pool (is_for_rl) or the imitation
// training set.
func runScrape(ctx context.Context, cfg *config.Config, game env.Game) error {
	files, err := scraper.ListReplays(cfg.ReplaysGlob)
	if err != nil {
		return err
	}
	s := &scraper.Scraper{
		Game:          game,
		OutputDir:     cfg.ScrapeOutputDir(),
		TeamName:      cfg.TeamName,
		OnlyWins:      cfg.OnlyWins,
		FilesToSave:   cfg.FilesToSave,
		ParallelCalls: 1,
	}
	if cfg.ScrapeType == config.ScrapeMulti {
		s.ParallelCalls = cfg.ParallelCalls
	}
	if cfg.OnlyTopTeams {
		s.TopTeams = generics.SetWith(cfg.TopTeams...)
	}
	if spinning.Enabled() {
		s.Progress = os.Stderr
	}
	klog.Infof("Scraping %d replays matching %q into %q (%s)", len(files), cfg.ReplaysGlob, s.OutputDir, cfg.ScrapeType)
	stats, err := s.Run(ctx, files)
	if err != nil {
		return err
	}
	klog.Infof("Scraping done: %s", stats)
	return nil
}

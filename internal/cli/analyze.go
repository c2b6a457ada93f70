package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftlab/driftwatch/internal/logging"
	"github.com/driftlab/driftwatch/internal/profiler"
	"github.com/driftlab/driftwatch/internal/tracker"
)

func newAnalyzeCmd() *cobra.Command {
	var flags coreFlags

	cmd := &cobra.Command{
		Use:   "analyze <heap-profile>...",
		Short: "Analyze a series of heap profiles for leak candidates",
		Long: `Analyze one or more pprof heap profiles taken from the same process.

Profiles are folded in, in argument order, as successive snapshots of the
heap. Per-site statistics come from every profile; leak detection needs at
least two, since a site only becomes suspicious by growing across
snapshots.

Examples:
  driftwatch analyze heap.pb.gz
  driftwatch analyze snap1.pb.gz snap2.pb.gz snap3.pb.gz --format json
  driftwatch analyze snaps/*.pb.gz --alpha 0.05 --seed 42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.New(logging.Config{
				Level:  cfg.Logging.Level,
				Pretty: cfg.Logging.Pretty,
			})

			seed := sessionSeed(cfg)
			tracked, err := tracker.New(tracker.Config{
				Capacity: cfg.Sampling.Capacity,
				Seed:     seed,
			}, logger)
			if err != nil {
				return err
			}
			detector, err := newDetector(cfg, seed)
			if err != nil {
				return err
			}

			ctx := context.Background()
			for _, path := range args {
				source := &profiler.FileSource{Path: path}
				samples, err := source.Snapshot(ctx)
				if err != nil {
					return err
				}
				for _, s := range samples {
					tracked.Observe(s.Site, float64(s.Bytes))
				}
				logger.Debug().
					Str("profile", path).
					Int("sample_count", len(samples)).
					Msg("Folded in heap profile")
			}

			if len(args) < 2 {
				logger.Warn().Msg("Single profile given; leak detection needs at least two snapshots")
			}

			leaks := tracked.LeakReport(detector)
			if err := renderReport(cmd.OutOrStdout(), flags.format, tracked.Snapshot(), leaks); err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

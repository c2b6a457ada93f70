package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/driftlab/driftwatch/internal/config"
	dwerrors "github.com/driftlab/driftwatch/internal/errors"
	"github.com/driftlab/driftwatch/internal/logging"
	"github.com/driftlab/driftwatch/internal/profiler"
	"github.com/driftlab/driftwatch/internal/tracker"
)

func newWatchCmd() *cobra.Command {
	var (
		flags    coreFlags
		pid      int32
		addr     string
		interval time.Duration
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously watch a live process for leak candidates",
		Long: `Continuously snapshot a live target and report leak candidates.

The target is either a pprof debug endpoint (--addr host:port, sampled per
allocation site) or a bare PID (--pid, sampled as whole-process RSS via the
OS). Snapshots are taken every --interval until interrupted; the final
report is written on shutdown. With --db, per-site aggregates and leak
candidates are also persisted to DuckDB after every snapshot.

Examples:
  driftwatch watch --addr localhost:6060 --interval 10s
  driftwatch watch --pid 1234 --interval 5s --db driftwatch.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pid == 0) == (addr == "") {
				return fmt.Errorf("exactly one of --pid or --addr is required")
			}

			cfg, err := flags.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Profile.Interval = interval
			}
			if err := cfg.Validate(); err != nil {
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

			var source profiler.HeapSource
			if addr != "" {
				source = &profiler.HTTPSource{Addr: addr}
			} else {
				source = &profiler.ProcessSource{PID: pid}
			}

			dbPath = resolveDBPath(cmd.Flags(), dbPath, cfg)

			var storage *profiler.Storage
			if dbPath != "" {
				db, err := sql.Open("duckdb", dbPath)
				if err != nil {
					return fmt.Errorf("failed to open database %q: %w", dbPath, err)
				}
				defer dwerrors.DeferClose(logger, db, "failed to close database")

				storage, err = profiler.NewStorage(db, logger)
				if err != nil {
					return err
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cont, err := profiler.NewContinuous(ctx, source, tracked, detector, storage, logger, profiler.Config{
				Interval:  cfg.Profile.Interval,
				Retention: cfg.Profile.Retention,
			})
			if err != nil {
				return err
			}

			cont.Start()
			<-ctx.Done()
			cont.Stop()

			leaks := tracked.LeakReport(detector)
			if err := renderReport(cmd.OutOrStdout(), flags.format, tracked.Snapshot(), leaks); err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().Int32Var(&pid, "pid", 0, "Process ID to watch via OS memory accounting")
	cmd.Flags().StringVar(&addr, "addr", "", "pprof debug endpoint (host:port)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Snapshot interval")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB file for persisting aggregates")
	return cmd
}

// resolveDBPath applies the flag-over-file precedence to the persistence
// target: an explicitly set --db wins (including an explicit empty value to
// disable persistence), otherwise the config file's storage.path applies.
func resolveDBPath(fs *pflag.FlagSet, flagValue string, cfg config.Config) string {
	if fs.Changed("db") {
		return flagValue
	}
	return cfg.Storage.Path
}

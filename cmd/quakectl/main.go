// Command quakectl manages and queries the earthquake catalog from the
// command line: schema migration, CSV loading, searches, clustering,
// statistics, benchmarks and fixture maintenance.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-search-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/quake-search-service/internal/config"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/search"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the configuration shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var driver, dsn, logLevel, logFormat string

	root := &cobra.Command{
		Use:           "quakectl",
		Short:         "search and cluster an earthquake catalog",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("driver") {
				cfg.StoreDriver = driver
			}
			if flags.Changed("dsn") {
				cfg.StoreDSN = dsn
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), cfg)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&driver, "driver", "", "record store driver: sqlite or duckdb (overrides STORE_DRIVER)")
	pf.StringVar(&dsn, "dsn", "", "record store DSN (overrides STORE_DSN)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")

	root.AddCommand(
		newMigrateCmd(a),
		newLoadCmd(a),
		newSearchCmd(a),
		newClustersCmd(a),
		newStatsCmd(a),
		newBenchCmd(a),
		newFixtureCmd(a),
		newValidateCmd(a),
	)
	return root
}

// openStore opens and migrates the configured record store.
func (a *app) openStore(ctx context.Context) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(ctx, a.cfg.StoreDriver, a.cfg.StoreDSN,
		sqlstore.BreakerSettings{Failures: a.cfg.BreakerFailures, Timeout: a.cfg.BreakerTimeout}, a.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newService builds an uncached search service over store.
func (a *app) newService(store *sqlstore.Store) *search.Service {
	return search.NewService(store, nil, a.logger, observability.NewUnregisteredMetrics(), search.Options{
		MaxCandidates: a.cfg.SearchMaxCandidates,
	})
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create the earthquakes table and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s %s)\n", a.cfg.StoreDriver, a.cfg.StoreDSN)
			return nil
		},
	}
}

// closeQuietly is used for read-only files where a close error is meaningless.
func closeQuietly(c io.Closer) { _ = c.Close() }

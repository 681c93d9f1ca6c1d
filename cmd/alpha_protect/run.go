package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alpha_protect/internal/config"
	"alpha_protect/internal/journal"
	"alpha_protect/internal/logger"
	"alpha_protect/internal/market/alpaca"
	"alpha_protect/internal/protector"
	"alpha_protect/internal/risk"
)

var (
	runDryRun   bool
	runInterval int
	runOnce     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live protection loop",
	RunE:  runLoop,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log decisions without touching orders")
	runCmd.Flags().IntVar(&runInterval, "interval", 0, "cycle interval in seconds (overrides policy)")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
}

func runLoop(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	pol, err := config.LoadPolicy(policyPath)
	if err != nil {
		return err
	}

	log := logger.Setup(logger.Options{
		Level:      pol.Logging.Level,
		JSON:       pol.Logging.JSON,
		Filename:   pol.Logging.File,
		MaxSizeMB:  pol.Logging.MaxSizeMB,
		MaxBackups: pol.Logging.MaxBackups,
	})

	provider := alpaca.NewProvider()

	jnl, err := openJournal(pol, log)
	if err != nil {
		return err
	}
	defer jnl.Close()

	opts, err := engineOptions(pol)
	if err != nil {
		return err
	}
	if runDryRun {
		opts.DryRun = true
	}
	engine := protector.New(provider, exitParams(pol), opts, jnl, log)

	// Load once at startup so the rebuilt counters are visible
	// immediately and persisted back with today's date.
	store := risk.NewStore(pol.Risk.StateFile, provider, log)
	state := store.Load()
	if err := store.Save(state); err != nil {
		log.Warn().Err(err).Msg("risk state save failed")
	}
	log.Info().
		Str("date", state.Date).
		Float64("spent_usd", state.SpentTodayUSD).
		Int("new_positions", state.NewPositionsToday).
		Msg("daily risk state loaded")

	interval := time.Duration(pol.Protect.IntervalSec) * time.Second
	if runInterval > 0 {
		interval = time.Duration(runInterval) * time.Second
	}
	if interval <= 0 {
		interval = time.Minute
	}

	log.Info().
		Dur("interval", interval).
		Bool("dry_run", opts.DryRun).
		Str("time_in_force", opts.TimeInForce).
		Msg("protection loop starting")

	engine.Protect()
	if runOnce {
		return nil
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigs:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return nil
		case <-ticker.C:
			engine.Protect()
		}
	}
}

func openJournal(pol config.Policy, log zerolog.Logger) (journal.Journal, error) {
	if pol.Journal.Path == "" {
		return journal.Nop{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(pol.Journal.Path), 0755); err != nil {
		return nil, err
	}
	jnl, err := journal.NewSQLite(pol.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	log.Info().Str("path", pol.Journal.Path).Msg("journal opened")
	return jnl, nil
}

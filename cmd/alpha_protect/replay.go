package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"alpha_protect/internal/config"
	"alpha_protect/internal/indicators"
	"alpha_protect/internal/sim"
)

var (
	replayBars     string
	replaySymbol   string
	replayEntry    int
	replayCooldown int
	replayMaxHold  int
	replayVerbose  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the exit policy over historical daily bars",
	Long: `Replay runs the same stop and take-profit logic the live loop
uses against a CSV of daily bars, either for one entry bar (--entry) or
across the whole file with a cooldown between entries.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayBars, "bars", "", "CSV file with date,open,high,low,close[,volume]")
	replayCmd.Flags().StringVar(&replaySymbol, "symbol", "SIM", "symbol label for the report")
	replayCmd.Flags().IntVar(&replayEntry, "entry", -1, "simulate a single entry at this bar index")
	replayCmd.Flags().IntVar(&replayCooldown, "cooldown", 10, "bars to wait between entries")
	replayCmd.Flags().IntVar(&replayMaxHold, "max-hold", 30, "maximum holding days per trade")
	replayCmd.Flags().BoolVar(&replayVerbose, "verbose", false, "print every simulated trade")
	replayCmd.MarkFlagRequired("bars")
}

func runReplay(cmd *cobra.Command, args []string) error {
	pol, err := config.LoadPolicy(policyPath)
	if err != nil {
		return err
	}
	bars, err := sim.LoadBarsCSV(replayBars)
	if err != nil {
		return err
	}

	simulator := sim.New(exitParams(pol))
	simulator.MaxHoldDays = replayMaxHold

	var results []sim.Result
	if replayEntry >= 0 {
		atr := indicators.ATRSeries(bars, simulator.ATRPeriod)
		r, ok := simulator.Simulate(replaySymbol, bars, atr, replayEntry)
		if !ok {
			return fmt.Errorf("no usable entry at bar %d", replayEntry)
		}
		results = []sim.Result{r}
	} else {
		// Enter wherever the ATR warmup allows; the point is to see the
		// exit policy's behavior across regimes, not to test an entry
		// signal.
		results = simulator.Replay(replaySymbol, bars, nil, replayCooldown)
	}

	if replayVerbose {
		for _, r := range results {
			fmt.Printf("%s  %s -> %s  entry=%.2f exit=%.2f stop=%.2f->%.2f  %s  %+.2f%%  R=%+.2f\n",
				r.Symbol,
				r.EntryTime.Format("2006-01-02"), r.ExitTime.Format("2006-01-02"),
				r.EntryPrice, r.ExitPrice, r.InitialStop, r.FinalStop,
				r.ExitReason, r.PnLPct, r.RMultiple)
		}
	}

	summary := sim.Summarize(results)
	fmt.Printf("trades: %d  win rate: %.1f%%  avg pnl: %+.2f%%  avg R: %+.2f\n",
		summary.Trades, summary.WinRate*100, summary.AvgPnLPct, summary.AvgR)

	reasons := make([]string, 0, len(summary.ByReason))
	for r := range summary.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("  %-10s %d\n", r, summary.ByReason[r])
	}
	return nil
}

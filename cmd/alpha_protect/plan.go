package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"alpha_protect/internal/config"
	"alpha_protect/internal/journal"
	"alpha_protect/internal/logger"
	"alpha_protect/internal/market/alpaca"
	"alpha_protect/internal/models"
	"alpha_protect/internal/risk"
)

var planCmd = &cobra.Command{
	Use:   "plan SYMBOL[:PRICE[:ATR]] ...",
	Short: "Size candidate entries against the daily risk budget",
	Long: `Plan sizes each candidate and checks it against the daily spend
cap, position limits, exposure caps and cooldowns, using live account
state. Nothing is submitted; approved plans are printed and journaled.
Price and ATR are fetched from the broker when not given inline.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	pol, err := config.LoadPolicy(policyPath)
	if err != nil {
		return err
	}
	log := logger.Setup(logger.Options{Level: pol.Logging.Level, JSON: pol.Logging.JSON})

	provider := alpaca.NewProvider()

	var candidates []models.Candidate
	for _, arg := range args {
		c, err := parseCandidate(arg)
		if err != nil {
			return err
		}
		if c.Price <= 0 {
			if c.Price, err = provider.GetPrice(c.Symbol); err != nil {
				return fmt.Errorf("%s: %w", c.Symbol, err)
			}
		}
		if c.ATR <= 0 {
			if c.ATR, err = provider.GetATR(c.Symbol); err != nil {
				log.Warn().Err(err).Str("symbol", c.Symbol).Msg("no atr, percent stop only")
				c.ATR = 0
			}
		}
		candidates = append(candidates, c)
	}

	store := risk.NewStore(pol.Risk.StateFile, provider, log)
	planner := risk.NewPlanner(provider, store, riskCaps(pol), riskSizing(pol), exitParams(pol), log)
	plans, rejected := planner.PlanTrades(candidates)

	jnl, err := openJournal(pol, log)
	if err != nil {
		return err
	}
	defer jnl.Close()

	now := time.Now()
	for _, p := range plans {
		fmt.Printf("%-6s qty=%.0f @ %.2f  notional=%.2f  stop=%.2f  tp=%.2f  rr=%.2f\n",
			p.Symbol, p.Qty, p.Price, p.Notional, p.StopLoss, p.TakeProfit, p.RRRatio)
		err := jnl.RecordPlannedTrade(journal.PlannedTrade{
			Time: now, Symbol: p.Symbol, Qty: p.Qty, Price: p.Price,
			Notional: p.Notional, StopLoss: p.StopLoss,
			TakeProfit: p.TakeProfit, RRRatio: p.RRRatio,
		})
		if err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("journal write failed")
		}
	}
	for _, r := range rejected {
		fmt.Printf("%-6s rejected: %s\n", r.Symbol, strings.Join(r.Reasons, ", "))
	}
	return nil
}

// parseCandidate accepts SYMBOL, SYMBOL:PRICE or SYMBOL:PRICE:ATR.
func parseCandidate(arg string) (models.Candidate, error) {
	parts := strings.Split(arg, ":")
	c := models.Candidate{Symbol: strings.ToUpper(strings.TrimSpace(parts[0]))}
	if c.Symbol == "" {
		return c, fmt.Errorf("empty symbol in %q", arg)
	}
	var err error
	if len(parts) > 1 {
		if c.Price, err = strconv.ParseFloat(parts[1], 64); err != nil {
			return c, fmt.Errorf("bad price in %q: %w", arg, err)
		}
	}
	if len(parts) > 2 {
		if c.ATR, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return c, fmt.Errorf("bad atr in %q: %w", arg, err)
		}
	}
	if len(parts) > 3 {
		return c, fmt.Errorf("too many fields in %q", arg)
	}
	return c, nil
}

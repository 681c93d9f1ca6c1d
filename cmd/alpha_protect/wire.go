package main

import (
	"fmt"
	"time"

	"alpha_protect/internal/config"
	"alpha_protect/internal/policy"
	"alpha_protect/internal/protector"
	"alpha_protect/internal/risk"
	"alpha_protect/internal/ticks"
)

// exitParams maps the YAML policy onto the exit math parameters.
func exitParams(pol config.Policy) policy.Params {
	return policy.Params{
		ATRMultiple:               pol.Exit.ATRMultiple,
		MinStopPercent:            pol.Exit.MinStopPct,
		TakeProfitATRMultiple:     pol.Exit.TakeProfitATRMult,
		MinRRRatio:                pol.Exit.MinRRRatio,
		BreakEvenR:                pol.Safeguards.BreakEvenR,
		BreakEvenBufferPercent:    pol.Safeguards.BreakEvenBufferPct,
		TrailingEnable:            pol.Safeguards.TrailingEnable,
		TrailingATRMultiple:       pol.Exit.TrailingStopATRMult,
		TrailingProfitATRMultiple: pol.Exit.TrailingStopProfitATRMult,
		TrailingTightenAtR:        pol.Exit.TrailingTightenAtR,
		TrailingFallbackPercent:   pol.Exit.TrailingFallbackPct,
		TrailingFallbackProfitPct: pol.Exit.TrailingFallbackProfitPct,
		MinImprovementPercent:     pol.Protect.MinImprovementPct,
		MinImprovementUSD:         pol.Protect.MinImprovementUSD,
		StopLimitBufferPercent:    pol.Exit.StopLimitBufferPct,
		Ticks: ticks.Table{
			EquityGE1: pol.Exit.MinTickEquityGE1,
			EquityLT1: pol.Exit.MinTickEquityLT1,
		},
	}
}

func engineOptions(pol config.Policy) (protector.Options, error) {
	opts := protector.Options{
		SafeguardsEnabled: pol.Safeguards.Enabled,
		TTLDays:           pol.Safeguards.TTLDays,
		TimeInForce:       pol.Protect.TimeInForce,
		DryRun:            pol.Protect.DryRun,
		PriceTTL:          time.Duration(pol.Protect.PriceTTLSec) * time.Second,
		ATRTTL:            time.Duration(pol.Protect.ATRTTLSec) * time.Second,
		SuppressFor:       time.Duration(pol.Protect.SuppressSec) * time.Second,
	}
	if pol.Safeguards.StartedAtUTC != "" {
		t, err := time.Parse(time.RFC3339, pol.Safeguards.StartedAtUTC)
		if err != nil {
			return opts, fmt.Errorf("safeguards.started_at_utc: %w", err)
		}
		opts.StartedAt = t
	}
	return opts, nil
}

func riskCaps(pol config.Policy) risk.Caps {
	return risk.Caps{
		DailyMaxSpendUSD:            pol.Risk.DailyMaxSpendUSD,
		DailyMaxSpendPctBuyingPower: pol.Risk.DailyMaxSpendPctBuyingPower,
		DailyMaxNewPositions:        pol.Risk.DailyMaxNewPositions,
		MaxTotalOpenPositions:       pol.Risk.MaxTotalOpenPositions,
		MaxExposurePctEquity:        pol.Risk.MaxExposurePctEquity,
		MaxSymbolExposurePctEquity:  pol.Risk.MaxSymbolExposurePctEquity,
		CashBufferPct:               pol.Risk.CashBufferPct,
		SymbolCooldownDays:          pol.Risk.SymbolCooldownDays,
		IfPositionOpenSkip:          pol.Risk.IfPositionOpenSkip,
		SkipIfOrderPending:          pol.Risk.SkipIfOrderPending,
	}
}

func riskSizing(pol config.Policy) risk.Sizing {
	return risk.Sizing{
		MaxPositionSizeUSD: pol.Sizing.MaxPositionSizeUSD,
		MinPositionSizeUSD: pol.Sizing.MinPositionSizeUSD,
		SlippageBufferPct:  pol.Sizing.SlippageBufferPct,
		MaxSymbolRiskPct:   pol.Sizing.MaxSymbolRiskPct,
		UseBracket:         pol.Sizing.UseBracket,
		TimeInForce:        pol.Protect.TimeInForce,
	}
}

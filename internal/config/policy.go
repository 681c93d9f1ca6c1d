package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the full operating configuration, loaded from YAML. Absent
// keys keep the defaults, so a minimal file only overrides what it names.
type Policy struct {
	Risk       RiskConfig       `yaml:"risk"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Exit       ExitConfig       `yaml:"exit"`
	Protect    ProtectConfig    `yaml:"protect"`
	Safeguards SafeguardsConfig `yaml:"safeguards"`
	Journal    JournalConfig    `yaml:"journal"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RiskConfig caps daily and aggregate exposure. Zero disables a cap.
type RiskConfig struct {
	DailyMaxSpendUSD            float64 `yaml:"daily_max_spend_usd"`
	DailyMaxSpendPctBuyingPower float64 `yaml:"daily_max_spend_pct_buying_power"`
	DailyMaxNewPositions        int     `yaml:"daily_max_new_positions"`
	MaxTotalOpenPositions       int     `yaml:"max_total_open_positions"`
	MaxExposurePctEquity        float64 `yaml:"max_exposure_pct_equity"`
	MaxSymbolExposurePctEquity  float64 `yaml:"max_symbol_exposure_pct_equity"`
	CashBufferPct               float64 `yaml:"cash_buffer_pct"`
	SymbolCooldownDays          int     `yaml:"symbol_cooldown_days"`
	IfPositionOpenSkip          bool    `yaml:"if_position_open_skip"`
	SkipIfOrderPending          bool    `yaml:"skip_if_order_pending"`
	StateFile                   string  `yaml:"state_file"`
}

// SizingConfig controls per-trade position sizing.
type SizingConfig struct {
	MaxPositionSizeUSD float64 `yaml:"max_position_size_usd"`
	MinPositionSizeUSD float64 `yaml:"min_position_size_usd"`
	SlippageBufferPct  float64 `yaml:"slippage_buffer_pct"`
	MaxSymbolRiskPct   float64 `yaml:"max_symbol_risk_pct"`
	UseBracket         bool    `yaml:"use_bracket"`
}

// ExitConfig parameterizes the stop and take-profit math.
type ExitConfig struct {
	ATRMultiple               float64 `yaml:"atr_k"`
	MinStopPct                float64 `yaml:"min_stop_pct"`
	TakeProfitATRMult         float64 `yaml:"take_profit_atr_mult"`
	MinRRRatio                float64 `yaml:"min_rr_ratio"`
	TrailingStopATRMult       float64 `yaml:"trailing_stop_atr_mult"`
	TrailingStopProfitATRMult float64 `yaml:"trailing_stop_profit_atr_mult"`
	TrailingTightenAtR        float64 `yaml:"trailing_tighten_at_r"`
	TrailingFallbackPct       float64 `yaml:"trailing_fallback_pct"`
	TrailingFallbackProfitPct float64 `yaml:"trailing_fallback_profit_pct"`
	StopLimitBufferPct        float64 `yaml:"stop_limit_buffer_pct"`
	MinTickEquityGE1          float64 `yaml:"min_tick_equity_ge_1"`
	MinTickEquityLT1          float64 `yaml:"min_tick_equity_lt_1"`
}

// ProtectConfig tunes the live reconciliation loop.
type ProtectConfig struct {
	IntervalSec       int     `yaml:"interval_sec"`
	MinImprovementPct float64 `yaml:"min_improvement_pct"`
	MinImprovementUSD float64 `yaml:"min_improvement_usd"`
	TimeInForce       string  `yaml:"time_in_force"`
	PriceTTLSec       int     `yaml:"price_ttl_sec"`
	ATRTTLSec         int     `yaml:"atr_ttl_sec"`
	SuppressSec       int     `yaml:"suppress_sec"`
	DryRun            bool    `yaml:"dry_run"`
}

// SafeguardsConfig is the master switch for automated protection, with
// an optional TTL so a forgotten deployment goes quiet instead of
// trading stale parameters forever.
type SafeguardsConfig struct {
	Enabled            bool    `yaml:"enabled"`
	BreakEvenR         float64 `yaml:"break_even_r"`
	BreakEvenBufferPct float64 `yaml:"break_even_buffer_pct"`
	TrailingEnable     bool    `yaml:"trailing_enable"`
	TTLDays            float64 `yaml:"ttl_days"`
	StartedAtUTC       string  `yaml:"started_at_utc"` // RFC 3339
}

type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int64  `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultPolicy returns the production baseline.
func DefaultPolicy() Policy {
	return Policy{
		Risk: RiskConfig{
			DailyMaxSpendUSD:            5000,
			DailyMaxSpendPctBuyingPower: 0,
			DailyMaxNewPositions:        3,
			MaxTotalOpenPositions:       10,
			MaxExposurePctEquity:        0.60,
			MaxSymbolExposurePctEquity:  0.20,
			CashBufferPct:               0.10,
			SymbolCooldownDays:          5,
			IfPositionOpenSkip:          true,
			SkipIfOrderPending:          true,
			StateFile:                   "data/daily_risk_state.json",
		},
		Sizing: SizingConfig{
			MaxPositionSizeUSD: 2500,
			MinPositionSizeUSD: 200,
			SlippageBufferPct:  0.002,
			MaxSymbolRiskPct:   0.01,
			UseBracket:         true,
		},
		Exit: ExitConfig{
			ATRMultiple:               2.0,
			MinStopPct:                0.05,
			TakeProfitATRMult:         3.0,
			MinRRRatio:                1.5,
			TrailingStopATRMult:       2.0,
			TrailingStopProfitATRMult: 1.5,
			TrailingTightenAtR:        2.0,
			TrailingFallbackPct:       0.03,
			TrailingFallbackProfitPct: 0.02,
			StopLimitBufferPct:        0,
			MinTickEquityGE1:          0.01,
			MinTickEquityLT1:          0.0001,
		},
		Protect: ProtectConfig{
			IntervalSec:       60,
			MinImprovementPct: 0.01,
			MinImprovementUSD: 0.10,
			TimeInForce:       "gtc",
			PriceTTLSec:       15,
			ATRTTLSec:         300,
			SuppressSec:       1800,
		},
		Safeguards: SafeguardsConfig{
			Enabled:            true,
			BreakEvenR:         1.0,
			BreakEvenBufferPct: 0.001,
			TrailingEnable:     true,
		},
		Journal: JournalConfig{Path: "data/journal.db"},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return p, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

func (p Policy) validate() error {
	if p.Exit.MinStopPct <= 0 || p.Exit.MinStopPct >= 1 {
		return fmt.Errorf("exit.min_stop_pct must be in (0, 1), got %v", p.Exit.MinStopPct)
	}
	if p.Exit.ATRMultiple <= 0 {
		return fmt.Errorf("exit.atr_k must be positive, got %v", p.Exit.ATRMultiple)
	}
	if p.Protect.TimeInForce != "gtc" && p.Protect.TimeInForce != "day" {
		return fmt.Errorf("protect.time_in_force must be gtc or day, got %q", p.Protect.TimeInForce)
	}
	if p.Risk.CashBufferPct < 0 || p.Risk.CashBufferPct >= 1 {
		return fmt.Errorf("risk.cash_buffer_pct must be in [0, 1), got %v", p.Risk.CashBufferPct)
	}
	return nil
}

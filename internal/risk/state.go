// Package risk enforces the daily budget: how much may be spent, how
// many new positions opened, and which symbols are off limits. The
// counters are rebuilt from the broker's filled buy orders on every
// load, so a crash or restart cannot forget money already spent.
package risk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"alpha_protect/internal/market"
)

const dateLayout = "2006-01-02"

// State is the persisted daily ledger. Date is a trading day on the
// exchange calendar (America/New_York), not UTC.
type State struct {
	Date               string            `json:"date"`
	SpentTodayUSD      float64           `json:"spent_today_usd"`
	NewPositionsToday  int               `json:"new_positions_today"`
	SymbolsTradedToday []string          `json:"symbols_traded_today"`
	SymbolLastTrade    map[string]string `json:"symbol_last_trade"`
	LastTradeTime      string            `json:"last_trade_time,omitempty"`
	BlockedReason      string            `json:"blocked_reason,omitempty"`
}

// Clone deep-copies the state so the planner can reserve budget on a
// working copy without touching the persisted one.
func (s State) Clone() State {
	c := s
	c.SymbolsTradedToday = append([]string(nil), s.SymbolsTradedToday...)
	c.SymbolLastTrade = make(map[string]string, len(s.SymbolLastTrade))
	for k, v := range s.SymbolLastTrade {
		c.SymbolLastTrade[k] = v
	}
	return c
}

// TradedToday reports whether the symbol already got a fill today.
func (s State) TradedToday(symbol string) bool {
	for _, t := range s.SymbolsTradedToday {
		if t == symbol {
			return true
		}
	}
	return false
}

// Reserve books a planned trade against the working state so later
// candidates in the same batch see the reduced budget.
func (s *State) Reserve(symbol string, notional float64) {
	s.SpentTodayUSD += notional
	if !s.TradedToday(symbol) {
		s.SymbolsTradedToday = append(s.SymbolsTradedToday, symbol)
		s.NewPositionsToday++
	}
	if s.SymbolLastTrade == nil {
		s.SymbolLastTrade = map[string]string{}
	}
	s.SymbolLastTrade[symbol] = s.Date
}

// Store loads and saves daily risk state and reconciles it against the
// broker.
type Store struct {
	path     string
	provider market.MarketProvider
	loc      *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

func NewStore(path string, provider market.MarketProvider, log zerolog.Logger) *Store {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
		log.Warn().Err(err).Msg("risk: tz database unavailable, using fixed EST")
	}
	return &Store{
		path:     path,
		provider: provider,
		loc:      loc,
		log:      log.With().Str("component", "risk").Logger(),
		now:      time.Now,
	}
}

// Today returns the current trading-day key.
func (s *Store) Today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// Load reads the state file, rolls counters to zero when the stored
// date is not today, then rebuilds the spend counters from the broker's
// filled buy orders. Cooldown stamps survive the rollover. A missing or
// corrupt file starts from a clean state, never an error.
func (s *Store) Load() State {
	today := s.Today()
	st := State{Date: today, SymbolLastTrade: map[string]string{}}

	if b, err := os.ReadFile(s.path); err == nil {
		var onDisk State
		if err := json.Unmarshal(b, &onDisk); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting clean")
		} else {
			stored := onDisk.Date
			onDisk.Date = today
			if onDisk.SymbolLastTrade == nil {
				onDisk.SymbolLastTrade = map[string]string{}
			}
			if stored != today {
				onDisk.SpentTodayUSD = 0
				onDisk.NewPositionsToday = 0
				onDisk.SymbolsTradedToday = nil
				onDisk.BlockedReason = ""
			}
			st = onDisk
		}
	}
	return s.reconcile(today, st)
}

// reconcile overwrites the daily counters with ground truth from the
// broker. When the broker is unreachable the file counters stand.
func (s *Store) reconcile(day string, st State) State {
	fills, err := s.provider.ListFilledBuyOrders(day)
	if err != nil {
		s.log.Warn().Err(err).Msg("fill fetch failed, keeping file counters")
		return st
	}
	spent := 0.0
	seen := map[string]bool{}
	var symbols []string
	for _, o := range fills {
		spent += o.FilledQty.InexactFloat64() * o.FilledAvgPrice.InexactFloat64()
		if o.Symbol != "" && !seen[o.Symbol] {
			seen[o.Symbol] = true
			symbols = append(symbols, o.Symbol)
			st.SymbolLastTrade[o.Symbol] = day
		}
	}
	st.SpentTodayUSD = spent
	st.NewPositionsToday = len(symbols)
	st.SymbolsTradedToday = symbols
	s.log.Info().
		Float64("spent_usd", spent).
		Int("new_positions", len(symbols)).
		Strs("symbols", symbols).
		Msg("daily counters rebuilt from broker fills")
	return st
}

// Save writes the state atomically: temp file in the same directory,
// then rename over the target.
func (s *Store) Save(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".risk-state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// RecordTrade books a filled entry into the persisted state.
func (s *Store) RecordTrade(symbol string, notional float64) error {
	st := s.Load()
	st.Reserve(symbol, notional)
	st.LastTradeTime = s.now().In(s.loc).Format(time.RFC3339)
	return s.Save(st)
}

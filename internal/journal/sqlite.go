package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = (*SQLiteJournal)(nil)

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordDecision(d Decision) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(time, symbol, entry, last, atr, old_stop, new_stop, reason, dry_run, order_id, client_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Time, d.Symbol, d.Entry, d.Last, d.ATR, d.OldStop, d.NewStop,
		d.Reason, d.DryRun, d.OrderID, d.ClientID,
	)
	return err
}

func (j *SQLiteJournal) RecordPlannedTrade(t PlannedTrade) error {
	_, err := j.db.Exec(`
		INSERT INTO planned_trades
		(time, symbol, qty, price, notional, stop_loss, take_profit, rr_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Time, t.Symbol, t.Qty, t.Price, t.Notional,
		t.StopLoss, t.TakeProfit, t.RRRatio,
	)
	return err
}

// Decisions returns the most recent decisions for a symbol, newest
// first. Empty symbol returns across all symbols.
func (j *SQLiteJournal) Decisions(symbol string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT time, symbol, entry, last, atr, old_stop, new_stop, reason, dry_run, order_id, client_id
	      FROM decisions`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.Time, &d.Symbol, &d.Entry, &d.Last, &d.ATR,
			&d.OldStop, &d.NewStop, &d.Reason, &d.DryRun, &d.OrderID, &d.ClientID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

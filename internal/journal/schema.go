package journal

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    time        TIMESTAMP NOT NULL,
    symbol      TEXT NOT NULL,
    entry       REAL,
    last        REAL,
    atr         REAL,
    old_stop    REAL,
    new_stop    REAL,
    reason      TEXT NOT NULL,
    dry_run     INTEGER NOT NULL DEFAULT 0,
    order_id    TEXT,
    client_id   TEXT
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol_time ON decisions(symbol, time);

CREATE TABLE IF NOT EXISTS planned_trades (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    time        TIMESTAMP NOT NULL,
    symbol      TEXT NOT NULL,
    qty         REAL NOT NULL,
    price       REAL NOT NULL,
    notional    REAL NOT NULL,
    stop_loss   REAL,
    take_profit REAL,
    rr_ratio    REAL
);

CREATE INDEX IF NOT EXISTS idx_planned_trades_symbol_time ON planned_trades(symbol, time);
`

package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the journal to a SQLite database. Money columns are TEXT holding
// exact decimal strings; indicator columns are REAL.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so botctl can read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			outcome         TEXT NOT NULL,
			phase           TEXT,
			reason          TEXT,
			price           TEXT,
			exec_price      TEXT,
			watch_reference TEXT,
			budget          TEXT,
			qty             TEXT,
			cost            TEXT,
			fee             TEXT,
			order_id        TEXT,
			available       TEXT,
			reserved        TEXT,
			lock_wait_ms    INTEGER,
			duration_ms     INTEGER,
			recent_high     REAL,
			sma_short       REAL,
			sma_long        REAL,
			daily_rsi       REAL,
			atr             REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(timestamp)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			side        TEXT NOT NULL,
			pair        TEXT,
			order_id    TEXT,
			position_id TEXT,
			qty         TEXT,
			price       TEXT,
			cost        TEXT,
			fee         TEXT,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,

		`CREATE TABLE IF NOT EXISTS fund_history (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			event_type       TEXT,
			available_before TEXT,
			available_after  TEXT,
			reserved_before  TEXT,
			reserved_after   TEXT,
			amount           TEXT,
			note             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fund_ts ON fund_history(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func (r *SQLiteRecorder) RecordCycle(rec *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO cycles
		(timestamp, outcome, phase, reason, price, exec_price, watch_reference,
		 budget, qty, cost, fee, order_id, available, reserved,
		 lock_wait_ms, duration_ms, recent_high, sma_short, sma_long, daily_rsi, atr)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		unixOrNow(rec.Time), rec.Outcome, rec.Phase, rec.Reason,
		rec.Price.String(), rec.ExecPrice.String(), rec.WatchReference.String(),
		rec.Budget.String(), rec.Qty.String(), rec.Cost.String(), rec.Fee.String(), rec.OrderID,
		rec.Available.String(), rec.Reserved.String(),
		rec.LockWait.Milliseconds(), rec.Duration.Milliseconds(),
		rec.RecentHigh, rec.SMAShort, rec.SMALong, rec.DailyRSI, rec.ATR,
	)
	return err
}

func (r *SQLiteRecorder) RecordTrade(rec *TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO trades
		(timestamp, side, pair, order_id, position_id, qty, price, cost, fee, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		unixOrNow(rec.Time), rec.Side, rec.Pair, rec.OrderID, rec.PositionID,
		rec.Qty.String(), rec.Price.String(), rec.Cost.String(), rec.Fee.String(), rec.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecordFundEvent(evt *FundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO fund_history
		(timestamp, event_type, available_before, available_after, reserved_before, reserved_after, amount, note)
		VALUES (?,?,?,?,?,?,?,?)`,
		unixOrNow(evt.Time), evt.EventType,
		evt.AvailableBefore.String(), evt.AvailableAfter.String(),
		evt.ReservedBefore.String(), evt.ReservedAfter.String(),
		evt.Amount.String(), evt.Note,
	)
	return err
}

// RecentTrades returns up to limit trades, newest first.
func (r *SQLiteRecorder) RecentTrades(limit int) ([]TradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, side, pair, order_id, position_id, qty, price, cost, fee, reason
		FROM trades ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var (
			ts                    int64
			t                     TradeRecord
			qty, price, cost, fee string
		)
		if err := rows.Scan(&ts, &t.Side, &t.Pair, &t.OrderID, &t.PositionID, &qty, &price, &cost, &fee, &t.Reason); err != nil {
			return nil, err
		}
		t.Time = time.Unix(ts, 0)
		t.Qty, _ = decimal.NewFromString(qty)
		t.Price, _ = decimal.NewFromString(price)
		t.Cost, _ = decimal.NewFromString(cost)
		t.Fee, _ = decimal.NewFromString(fee)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}

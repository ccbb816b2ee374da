// Package storage persists trades and equity snapshots to a local
// pure-Go SQLite file (modernc.org/sqlite, WAL mode), implementing
// core.TradeJournal and core.SnapshotStore.
package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"memecore/internal/core"
	"memecore/internal/ids"
)

// DB wraps a SQLite connection and implements core.TradeJournal and
// core.SnapshotStore.
type DB struct {
	db *sql.DB
}

// NewDB opens (creating if absent) the SQLite database at path in WAL
// mode and ensures its schema exists.
func NewDB(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		mint TEXT NOT NULL,
		symbol TEXT NOT NULL,
		entry_time INTEGER NOT NULL,
		entry_price_sol REAL NOT NULL,
		entry_amount_sol REAL NOT NULL,
		entry_tokens REAL NOT NULL,
		exit_time INTEGER NOT NULL DEFAULT 0,
		exit_reason TEXT NOT NULL DEFAULT '',
		realized_pnl REAL NOT NULL DEFAULT 0,
		closed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
	CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades(closed);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		wallet_sol REAL NOT NULL,
		positions_value_sol REAL NOT NULL,
		total_equity_sol REAL NOT NULL,
		unrealized_pnl_sol REAL NOT NULL,
		position_count INTEGER NOT NULL,
		source INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);
	`

	_, err := db.Exec(schema)
	return err
}

// Open records a newly opened position in the trade journal.
func (d *DB) Open(ctx context.Context, record core.TradeRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO trades
		(id, mint, symbol, entry_time, entry_price_sol, entry_amount_sol, entry_tokens, exit_time, exit_reason, realized_pnl, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', 0, 0)`,
		record.ID, string(record.Mint), record.Symbol, int64(record.EntryTime),
		record.EntryPriceSOL, record.EntryAmount, record.EntryTokens)
	return err
}

// Close records a position's exit against its journal entry.
func (d *DB) Close(ctx context.Context, id string, exit core.ExitRecord) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE trades
		SET exit_time = ?, exit_reason = ?, realized_pnl = ?, closed = 1
		WHERE id = ?`,
		int64(exit.ExitTime), exit.Reason, exit.RealizedPnL, id)
	return err
}

// Recent returns the most recently opened trades, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]core.TradeRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, mint, symbol, entry_time, entry_price_sol, entry_amount_sol, entry_tokens,
			exit_time, exit_reason, realized_pnl, closed
		FROM trades ORDER BY entry_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// ForTraining returns every trade opened within the last `weeks`
// weeks, oldest first, for offline analysis or threshold tuning.
func (d *DB) ForTraining(ctx context.Context, weeks int) ([]core.TradeRecord, error) {
	cutoffMs := core.Timestamp(0)
	if weeks > 0 {
		const msPerWeek = int64(7 * 24 * 60 * 60 * 1000)
		cutoffMs = core.Timestamp(int64(core.Now()) - int64(weeks)*msPerWeek)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, mint, symbol, entry_time, entry_price_sol, entry_amount_sol, entry_tokens,
			exit_time, exit_reason, realized_pnl, closed
		FROM trades WHERE entry_time >= ? ORDER BY entry_time ASC`, int64(cutoffMs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func scanTradeRecords(rows *sql.Rows) ([]core.TradeRecord, error) {
	var out []core.TradeRecord
	for rows.Next() {
		var (
			r         core.TradeRecord
			mint      string
			entryTime int64
			exitTime  int64
			closed    int
		)
		if err := rows.Scan(&r.ID, &mint, &r.Symbol, &entryTime, &r.EntryPriceSOL, &r.EntryAmount,
			&r.EntryTokens, &exitTime, &r.ExitReason, &r.RealizedPnL, &closed); err != nil {
			return nil, err
		}
		r.Mint = ids.TokenId(mint)
		r.EntryTime = core.Timestamp(entryTime)
		r.ExitTime = core.Timestamp(exitTime)
		r.Closed = closed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Put persists a point-in-time equity snapshot.
func (d *DB) Put(ctx context.Context, snap core.EquitySnapshot) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(timestamp, wallet_sol, positions_value_sol, total_equity_sol, unrealized_pnl_sol, position_count, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(snap.Timestamp), snap.WalletSOL, snap.PositionsValueSOL, snap.TotalEquitySOL,
		snap.UnrealizedPnLSOL, snap.PositionCount, int(snap.Source))
	return err
}

// History returns snapshots taken within the last `hours` hours,
// oldest first.
func (d *DB) History(ctx context.Context, hours int) ([]core.EquitySnapshot, error) {
	cutoffMs := int64(0)
	if hours > 0 {
		cutoffMs = int64(hours) * 3600 * 1000
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT timestamp, wallet_sol, positions_value_sol, total_equity_sol, unrealized_pnl_sol, position_count, source
		FROM snapshots
		WHERE ? = 0 OR timestamp >= (SELECT MAX(timestamp) FROM snapshots) - ?
		ORDER BY timestamp ASC`, hours, cutoffMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.EquitySnapshot
	for rows.Next() {
		var (
			s         core.EquitySnapshot
			timestamp int64
			source    int
		)
		if err := rows.Scan(&timestamp, &s.WalletSOL, &s.PositionsValueSOL, &s.TotalEquitySOL,
			&s.UnrealizedPnLSOL, &s.PositionCount, &source); err != nil {
			return nil, err
		}
		s.Timestamp = core.Timestamp(timestamp)
		s.Source = core.SnapshotSource(source)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Shutdown closes the underlying database connection.
func (d *DB) Shutdown() error {
	return d.db.Close()
}

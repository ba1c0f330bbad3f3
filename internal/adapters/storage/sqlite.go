package storage

// sqlite.go — cycle history and restart recovery.
//
// Tables:
//   cycles          — one row per tick, completed or skipped
//   cycle_winners   — successful payouts of each completed tick
//   published_state — single row with the last published snapshot, so the
//                     cumulative buyback and the last draw survive restarts
//
// Amounts are stored as decimal TEXT (lamports), times as unix milliseconds.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id                 TEXT PRIMARY KEY,
    outcome            TEXT    NOT NULL,
    skip_reason        TEXT    NOT NULL DEFAULT '',
    scenario           TEXT    NOT NULL DEFAULT '',
    roll               INTEGER NOT NULL DEFAULT 0,
    pool               TEXT    NOT NULL DEFAULT '0',
    distributable      TEXT    NOT NULL DEFAULT '0',
    buyback            TEXT    NOT NULL DEFAULT '0',
    failed             INTEGER NOT NULL DEFAULT 0,
    cumulative_buyback TEXT    NOT NULL DEFAULT '0',
    next_draw_at       INTEGER NOT NULL DEFAULT 0,
    started_at         INTEGER NOT NULL,
    finished_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_winners (
    cycle_id  TEXT    NOT NULL,
    position  INTEGER NOT NULL,
    recipient TEXT    NOT NULL,
    amount    TEXT    NOT NULL,
    PRIMARY KEY (cycle_id, position)
);

CREATE TABLE IF NOT EXISTS published_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    token_mint         TEXT    NOT NULL DEFAULT '',
    market_symbol      TEXT    NOT NULL DEFAULT '',
    market_valuation   TEXT    NOT NULL DEFAULT '0',
    market_observed_at INTEGER NOT NULL DEFAULT 0,
    last_scenario      TEXT    NOT NULL DEFAULT '',
    last_roll          INTEGER NOT NULL DEFAULT 0,
    last_pool          TEXT    NOT NULL DEFAULT '0',
    last_winners       TEXT    NOT NULL DEFAULT '[]',
    last_cycle_at      INTEGER NOT NULL DEFAULT 0,
    next_draw_at       INTEGER NOT NULL DEFAULT 0,
    cumulative_buyback TEXT    NOT NULL DEFAULT '0',
    pool_balance       TEXT    NOT NULL DEFAULT '0',
    published_at       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at DESC);
`

const retentionCycles = 90 * 24 * time.Hour

// SQLiteStorage implements ports.CycleStorage using SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path, applies the
// schema and prunes old history.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// winnerRow is the JSON form of a winner inside published_state.
type winnerRow struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// SaveCycle stores the record, its winners and the published state in one
// transaction.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, rec domain.CycleRecord, st domain.PublishedState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles
			(id, outcome, skip_reason, scenario, roll, pool, distributable, buyback,
			 failed, cumulative_buyback, next_draw_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Outcome),
		string(rec.SkipReason),
		string(rec.Scenario),
		rec.Roll,
		rec.PoolAtStart.String(),
		rec.Distributable.String(),
		rec.BuybackAmount.String(),
		rec.FailedInstructions,
		rec.CumulativeBuyback.String(),
		toMillis(rec.NextDrawAt),
		toMillis(rec.StartedAt),
		toMillis(rec.FinishedAt),
	); err != nil {
		return fmt.Errorf("storage.SaveCycle: insert cycle %s: %w", rec.ID, err)
	}

	for i, w := range rec.Winners {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cycle_winners (cycle_id, position, recipient, amount) VALUES (?, ?, ?, ?)`,
			rec.ID, i, w.Recipient, w.Amount.String(),
		); err != nil {
			return fmt.Errorf("storage.SaveCycle: insert winner %d: %w", i, err)
		}
	}

	if err := saveState(ctx, tx, st); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveCycle: commit: %w", err)
	}
	return nil
}

func saveState(ctx context.Context, tx *sql.Tx, st domain.PublishedState) error {
	winners := make([]winnerRow, 0, len(st.LastCycle.Winners))
	for _, w := range st.LastCycle.Winners {
		winners = append(winners, winnerRow{Recipient: w.Recipient, Amount: w.Amount})
	}
	blob, err := json.Marshal(winners)
	if err != nil {
		return fmt.Errorf("storage.saveState: marshal winners: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO published_state
			(id, token_mint, market_symbol, market_valuation, market_observed_at,
			 last_scenario, last_roll, last_pool, last_winners, last_cycle_at,
			 next_draw_at, cumulative_buyback, pool_balance, published_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token_mint         = excluded.token_mint,
			market_symbol      = excluded.market_symbol,
			market_valuation   = excluded.market_valuation,
			market_observed_at = excluded.market_observed_at,
			last_scenario      = excluded.last_scenario,
			last_roll          = excluded.last_roll,
			last_pool          = excluded.last_pool,
			last_winners       = excluded.last_winners,
			last_cycle_at      = excluded.last_cycle_at,
			next_draw_at       = excluded.next_draw_at,
			cumulative_buyback = excluded.cumulative_buyback,
			pool_balance       = excluded.pool_balance,
			published_at       = excluded.published_at`,
		string(st.TokenMint),
		st.Market.Symbol,
		st.Market.Valuation.String(),
		toMillis(st.Market.ObservedAt),
		string(st.LastCycle.Scenario),
		st.LastCycle.Roll,
		st.LastCycle.PoolAtStart.String(),
		string(blob),
		toMillis(st.LastCycle.Timestamp),
		toMillis(st.NextDrawAt),
		st.CumulativeBuyback.String(),
		st.PoolBalance.String(),
		toMillis(st.PublishedAt),
	); err != nil {
		return fmt.Errorf("storage.saveState: upsert: %w", err)
	}
	return nil
}

// LoadLastState returns the last saved snapshot. ok is false on a fresh database.
func (s *SQLiteStorage) LoadLastState(ctx context.Context) (domain.PublishedState, bool, error) {
	var (
		st                                    domain.PublishedState
		mint, scenario, blob                  string
		valuation, lastPool, cumulative, pool string
		observedAt, lastCycleAt, nextDraw     int64
		publishedAt                           int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token_mint, market_symbol, market_valuation, market_observed_at,
		       last_scenario, last_roll, last_pool, last_winners, last_cycle_at,
		       next_draw_at, cumulative_buyback, pool_balance, published_at
		FROM published_state WHERE id = 1`,
	).Scan(
		&mint, &st.Market.Symbol, &valuation, &observedAt,
		&scenario, &st.LastCycle.Roll, &lastPool, &blob, &lastCycleAt,
		&nextDraw, &cumulative, &pool, &publishedAt,
	)
	if err == sql.ErrNoRows {
		return domain.PublishedState{}, false, nil
	}
	if err != nil {
		return domain.PublishedState{}, false, fmt.Errorf("storage.LoadLastState: query: %w", err)
	}

	var rows []winnerRow
	if err := json.Unmarshal([]byte(blob), &rows); err != nil {
		return domain.PublishedState{}, false, fmt.Errorf("storage.LoadLastState: decode winners: %w", err)
	}
	for _, r := range rows {
		st.LastCycle.Winners = append(st.LastCycle.Winners, domain.Winner{Recipient: r.Recipient, Amount: r.Amount})
	}

	st.TokenMint = domain.Account(mint)
	st.Market.Valuation = parseDecimal(valuation)
	st.Market.ObservedAt = fromMillis(observedAt)
	st.LastCycle.Scenario = domain.Scenario(scenario)
	st.LastCycle.PoolAtStart = parseDecimal(lastPool)
	st.LastCycle.Timestamp = fromMillis(lastCycleAt)
	st.NextDrawAt = fromMillis(nextDraw)
	st.CumulativeBuyback = parseDecimal(cumulative)
	st.PoolBalance = parseDecimal(pool)
	st.PublishedAt = fromMillis(publishedAt)
	return st, true, nil
}

// RecentCycles returns the last limit records, newest first.
func (s *SQLiteStorage) RecentCycles(ctx context.Context, limit int) ([]domain.CycleRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outcome, skip_reason, scenario, roll, pool, distributable, buyback,
		       failed, cumulative_buyback, next_draw_at, started_at, finished_at
		FROM cycles
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}

	var records []domain.CycleRecord
	for rows.Next() {
		var (
			rec                                 domain.CycleRecord
			outcome, reason, scenario           string
			pool, distributable, buyback, cumul string
			nextDraw, startedAt, finishedAt     int64
		)
		if err := rows.Scan(
			&rec.ID, &outcome, &reason, &scenario, &rec.Roll,
			&pool, &distributable, &buyback, &rec.FailedInstructions, &cumul,
			&nextDraw, &startedAt, &finishedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.RecentCycles: scan row: %w", err)
		}
		rec.Outcome = domain.CycleOutcome(outcome)
		rec.SkipReason = domain.SkipReason(reason)
		rec.Scenario = domain.Scenario(scenario)
		rec.PoolAtStart = parseDecimal(pool)
		rec.Distributable = parseDecimal(distributable)
		rec.BuybackAmount = parseDecimal(buyback)
		rec.CumulativeBuyback = parseDecimal(cumul)
		rec.NextDrawAt = fromMillis(nextDraw)
		rec.StartedAt = fromMillis(startedAt)
		rec.FinishedAt = fromMillis(finishedAt)
		records = append(records, rec)
	}
	err = rows.Err()
	rows.Close() // single connection: release it before loading winners
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: rows: %w", err)
	}

	for i := range records {
		winners, err := s.winners(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Winners = winners
	}
	return records, nil
}

func (s *SQLiteStorage) winners(ctx context.Context, cycleID string) ([]domain.Winner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient, amount FROM cycle_winners WHERE cycle_id = ? ORDER BY position`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("storage.winners: query %s: %w", cycleID, err)
	}
	defer rows.Close()

	var out []domain.Winner
	for rows.Next() {
		var w domain.Winner
		var amount string
		if err := rows.Scan(&w.Recipient, &amount); err != nil {
			return nil, fmt.Errorf("storage.winners: scan: %w", err)
		}
		w.Amount = parseDecimal(amount)
		out = append(out, w)
	}
	return out, rows.Err()
}

// pruneOld drops history beyond the retention window.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := toMillis(time.Now().Add(-retentionCycles))
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cycle_winners WHERE cycle_id IN (SELECT id FROM cycles WHERE started_at < ?)`, cutoff); err != nil {
		slog.Warn("storage: prune winners failed", "err", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff)
	if err != nil {
		slog.Warn("storage: prune cycles failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("storage: pruned old cycles", "rows", n)
	}
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

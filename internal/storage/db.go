package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"signal-tracker/internal/signal"
)

// DB wraps SQLite database
type DB struct {
	db *sql.DB
}

// NewDB creates a new database connection
func NewDB(path string) (*DB, error) {
	// _pragma=journal_mode(WAL) & _pragma=synchronous(NORMAL)
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
	// Single writer keeps SQLite lock contention out of the sweep
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at INTEGER NOT NULL,
		channel_id INTEGER NOT NULL DEFAULT 0,
		channel_name TEXT NOT NULL DEFAULT '',
		message_id INTEGER NOT NULL DEFAULT 0,
		address TEXT NOT NULL DEFAULT '',
		token_name TEXT NOT NULL DEFAULT '',
		chain TEXT NOT NULL DEFAULT '',
		entry_price REAL NOT NULL DEFAULT 0,
		entry_mc REAL NOT NULL DEFAULT 0,
		liquidity REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		bundles_pct REAL NOT NULL DEFAULT 0,
		snipers_pct REAL NOT NULL DEFAULT 0,
		dev_pct REAL NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		peak_mc REAL NOT NULL DEFAULT 0,
		peak_multiplier REAL NOT NULL DEFAULT 1,
		last_alert REAL NOT NULL DEFAULT 0,
		live_price REAL,
		live_mc REAL,
		live_gain_pct REAL,
		live_at INTEGER,
		update_count INTEGER NOT NULL DEFAULT 0,
		ath_price REAL,
		ath_mc REAL,
		ath_gain_pct REAL,
		ath_at INTEGER,
		history TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		error_log TEXT NOT NULL DEFAULT '',
		dex_url TEXT NOT NULL DEFAULT '',
		pump_url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS signal_samples (
		row_id INTEGER NOT NULL REFERENCES signals(id),
		minute INTEGER NOT NULL,
		price REAL,
		market_cap REAL,
		change_pct REAL,
		PRIMARY KEY (row_id, minute)
	);

	CREATE TABLE IF NOT EXISTS signal_marks (
		row_id INTEGER NOT NULL REFERENCES signals(id),
		kind TEXT NOT NULL,
		mark REAL NOT NULL,
		at INTEGER NOT NULL,
		PRIMARY KEY (row_id, kind, mark)
	);

	CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
	CREATE INDEX IF NOT EXISTS idx_signals_message ON signals(channel_id, message_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_active_address
		ON signals(address) WHERE status = 'active' AND address <> '';
	`

	_, err := db.Exec(schema)
	return err
}

const signalColumns = `id, received_at, channel_id, channel_name, message_id, address, token_name, chain,
	entry_price, entry_mc, liquidity, volume_24h, bundles_pct, snipers_pct, dev_pct, confidence,
	peak_mc, peak_multiplier, last_alert, live_price, live_mc, live_gain_pct, live_at, update_count,
	ath_price, ath_mc, ath_gain_pct, ath_at, history, status, error_log, dex_url, pump_url`

// Append inserts a new signal row and returns its id
func (d *DB) Append(ctx context.Context, s *signal.Signal) (int64, error) {
	if s.Address != "" {
		var id int64
		err := d.db.QueryRowContext(ctx,
			`SELECT id FROM signals WHERE address = ? AND status = 'active' LIMIT 1`, s.Address).Scan(&id)
		if err == nil {
			return 0, fmt.Errorf("%w: address %s tracked by row %d", ErrDuplicateKey, s.Address, id)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
	}

	status := s.Status
	if status == "" {
		status = signal.StatusActive
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO signals
		(received_at, channel_id, channel_name, message_id, address, token_name, chain,
		 entry_price, entry_mc, liquidity, volume_24h, bundles_pct, snipers_pct, dev_pct, confidence,
		 peak_mc, peak_multiplier, last_alert, history, status, error_log, dex_url, pump_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ReceivedAt.UnixMilli(), s.ChannelID, s.ChannelName, s.MessageID, s.Address, s.TokenName, s.Chain,
		s.EntryPrice, s.EntryMC, s.Liquidity, s.Volume24h, s.BundlesPct, s.SnipersPct, s.DevPct, s.Confidence,
		s.PeakMC, s.PeakMultiplier, s.LastAlert, s.History, string(status), s.ErrorLog, s.DexURL, s.PumpURL)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%w: address %s", ErrDuplicateKey, s.Address)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// ListActive returns every signal still being tracked
func (d *DB) ListActive(ctx context.Context) ([]*signal.Signal, error) {
	return d.query(ctx, `SELECT `+signalColumns+` FROM signals WHERE status = 'active' ORDER BY id`)
}

// Recent returns the newest signals regardless of status
func (d *DB) Recent(ctx context.Context, limit int) ([]*signal.Signal, error) {
	return d.query(ctx, `SELECT `+signalColumns+` FROM signals ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
}

// Get loads one signal by row id
func (d *DB) Get(ctx context.Context, rowID int64) (*signal.Signal, error) {
	return d.one(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, rowID)
}

// FindByMessage resolves a signal by its origin message. A zero channel
// matches the message id in any channel.
func (d *DB) FindByMessage(ctx context.Context, channelID, messageID int64) (*signal.Signal, error) {
	if channelID == 0 {
		return d.one(ctx, `SELECT `+signalColumns+` FROM signals WHERE message_id = ? ORDER BY id DESC LIMIT 1`, messageID)
	}
	return d.one(ctx, `SELECT `+signalColumns+` FROM signals WHERE channel_id = ? AND message_id = ? ORDER BY id DESC LIMIT 1`,
		channelID, messageID)
}

// FindByAddress resolves a signal by address, preferring active rows
func (d *DB) FindByAddress(ctx context.Context, address string) (*signal.Signal, error) {
	if address == "" {
		return nil, ErrNotFound
	}
	return d.one(ctx, `SELECT `+signalColumns+` FROM signals WHERE address = ?
		ORDER BY (status = 'active') DESC, id DESC LIMIT 1`, address)
}

// UpdateFields writes the named fields of one row
func (d *DB) UpdateFields(ctx context.Context, rowID int64, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM signals WHERE id = ?`, rowID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: row %d", ErrNotFound, rowID)
		}
		return err
	}

	// Sorted for deterministic statements
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, string(f))
	}
	sort.Strings(names)

	var (
		sets []string
		args []any
	)
	for _, name := range names {
		f := Field(name)
		v := fields[f]
		kind, ok := KindOf(f)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, f)
		}

		if sl, ok := parseSlot(f); ok {
			if err := d.writeSlot(ctx, tx, rowID, sl, kind, v); err != nil {
				return fmt.Errorf("write %s: %w", f, err)
			}
			continue
		}

		if line, ok := v.(AppendLine); ok {
			if kind != KindString {
				return fmt.Errorf("%w: %s: append to non-text field", ErrInvalidInput, f)
			}
			sets = append(sets, name+" = CASE WHEN COALESCE("+name+", '') = '' THEN ? ELSE "+name+" || char(10) || ? END")
			args = append(args, string(line), string(line))
			continue
		}

		dv, err := dbValue(kind, v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInput, f, err)
		}
		if Monotonic(f) {
			// Concurrent writers never lower peak or last alert
			sets = append(sets, name+" = MAX(COALESCE("+name+", 0), ?)")
		} else {
			sets = append(sets, name+" = ?")
		}
		args = append(args, dv)
	}

	if len(sets) > 0 {
		args = append(args, rowID)
		if _, err := tx.ExecContext(ctx, `UPDATE signals SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// writeSlot fills checkpoint and mark slots. Existing values are kept.
func (d *DB) writeSlot(ctx context.Context, tx *sql.Tx, rowID int64, sl slot, kind Kind, v any) error {
	dv, err := dbValue(kind, v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch sl.kind {
	case "interval":
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signal_samples (row_id, minute) VALUES (?, ?) ON CONFLICT DO NOTHING`, rowID, sl.minute); err != nil {
			return err
		}
		col := map[string]string{"price": "price", "mc": "market_cap", "change": "change_pct"}[sl.part]
		_, err := tx.ExecContext(ctx,
			`UPDATE signal_samples SET `+col+` = COALESCE(`+col+`, ?) WHERE row_id = ? AND minute = ?`, dv, rowID, sl.minute)
		return err
	case "alert", "pump":
		mark := sl.mult
		if sl.kind == "pump" {
			mark = float64(sl.minute)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO signal_marks (row_id, kind, mark, at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			rowID, sl.kind, mark, dv)
		return err
	}
	return fmt.Errorf("%w: slot %s", ErrUnknownField, sl.kind)
}

// GetField reads one named field of a row
func (d *DB) GetField(ctx context.Context, rowID int64, field Field) (any, error) {
	if _, ok := KindOf(field); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	s, err := d.Get(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return Value(s, field)
}

// Ping checks the connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) one(ctx context.Context, query string, args ...any) (*signal.Signal, error) {
	list, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (d *DB) query(ctx context.Context, query string, args ...any) ([]*signal.Signal, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var signals []*signal.Signal
	byID := make(map[int64]*signal.Signal)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		signals = append(signals, s)
		byID[s.RowID] = s
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(signals) == 0 {
		return nil, nil
	}
	if err := d.loadSlots(ctx, byID); err != nil {
		return nil, err
	}
	return signals, nil
}

func (d *DB) loadSlots(ctx context.Context, byID map[int64]*signal.Signal) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, fmt.Sprint(id))
	}
	in := strings.Join(ids, ",")

	rows, err := d.db.QueryContext(ctx,
		`SELECT row_id, minute, price, market_cap, change_pct FROM signal_samples WHERE row_id IN (`+in+`)`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			id, minute        int64
			price, mc, change sql.NullFloat64
		)
		if err := rows.Scan(&id, &minute, &price, &mc, &change); err != nil {
			rows.Close()
			return err
		}
		byID[id].Intervals[int(minute)] = &signal.Sample{
			Price: price.Float64, MarketCap: mc.Float64, ChangePct: change.Float64,
		}
	}
	rows.Close()

	rows, err = d.db.QueryContext(ctx, `SELECT row_id, kind, mark, at FROM signal_marks WHERE row_id IN (`+in+`)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, at int64
			kind   string
			mark   float64
		)
		if err := rows.Scan(&id, &kind, &mark, &at); err != nil {
			return err
		}
		s := byID[id]
		switch kind {
		case "alert":
			s.AlertTimes[mark] = time.UnixMilli(at)
		case "pump":
			s.PumpTimes[int(mark)] = time.UnixMilli(at)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(r scanner) (*signal.Signal, error) {
	var (
		s                           = signal.New(signal.Meta{})
		receivedAt                  int64
		status                      string
		livePrice, liveMC, liveGain sql.NullFloat64
		athPrice, athMC, athGain    sql.NullFloat64
		liveAt, athAt               sql.NullInt64
	)
	err := r.Scan(&s.RowID, &receivedAt, &s.ChannelID, &s.ChannelName, &s.MessageID, &s.Address, &s.TokenName, &s.Chain,
		&s.EntryPrice, &s.EntryMC, &s.Liquidity, &s.Volume24h, &s.BundlesPct, &s.SnipersPct, &s.DevPct, &s.Confidence,
		&s.PeakMC, &s.PeakMultiplier, &s.LastAlert, &livePrice, &liveMC, &liveGain, &liveAt, &s.UpdateCount,
		&athPrice, &athMC, &athGain, &athAt, &s.History, &status, &s.ErrorLog, &s.DexURL, &s.PumpURL)
	if err != nil {
		return nil, err
	}

	s.ReceivedAt = time.UnixMilli(receivedAt)
	s.Status = signal.Status(status)
	if liveAt.Valid {
		s.Live = &signal.Sample{
			Price: livePrice.Float64, MarketCap: liveMC.Float64, ChangePct: liveGain.Float64,
			At: time.UnixMilli(liveAt.Int64),
		}
	}
	if athAt.Valid {
		s.ATH = &signal.Sample{
			Price: athPrice.Float64, MarketCap: athMC.Float64, ChangePct: athGain.Float64,
			At: time.UnixMilli(athAt.Int64),
		}
	}
	return s, nil
}

func dbValue(kind Kind, v any) (any, error) {
	switch kind {
	case KindFloat:
		return asFloat(v)
	case KindInt:
		return asInt(v)
	case KindTime:
		t, err := asTime(v)
		if err != nil || t.IsZero() {
			return nil, err
		}
		return t.UnixMilli(), nil
	default:
		return asString(v)
	}
}

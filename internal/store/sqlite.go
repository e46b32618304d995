// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nscan/internal/analysis"
	"nscan/internal/errors"
	"nscan/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dbError("failed to open database", err)
	}

	// Configure connection pool for concurrent scan workers
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("failed to initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily bars imported from exports
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, date)
	);

	-- Confirmed patterns from scan runs
	CREATE TABLE IF NOT EXISTS patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		classification TEXT NOT NULL,
		s1_index INTEGER, s1_date DATETIME, s1_price REAL,
		h1_index INTEGER, h1_date DATETIME, h1_price REAL,
		s2_index INTEGER, s2_date DATETIME, s2_price REAL,
		h2_index INTEGER, h2_date DATETIME, h2_price REAL,
		first_leg REAL,
		retracement REAL,
		breakout_ratio REAL,
		vol1 REAL, vol2 REAL, vol3 REAL,
		confirm_date DATETIME NOT NULL,
		zone_start DATETIME,
		zone_end DATETIME,
		zone_low REAL,
		zone_high REAL,
		entry REAL NOT NULL,
		stop REAL NOT NULL,
		target REAL NOT NULL,
		risk_reward REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, type, confirm_date)
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_date ON bars(symbol, date);
	CREATE INDEX IF NOT EXISTS idx_patterns_confirm ON patterns(confirm_date);
	CREATE INDEX IF NOT EXISTS idx_patterns_symbol ON patterns(symbol);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Bars Methods
// ============================================================================

// SaveBars upserts bars for a symbol in a single transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, symbol, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return dbError("failed to insert bar", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// GetBars retrieves bars for a symbol within [from, to], oldest first.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, dbError("failed to query bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, dbError("failed to scan bar", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating bars", err)
	}

	return bars, nil
}

// GetBarsFreshness returns the date of the most recent stored bar.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, symbol string) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(date) FROM bars WHERE symbol = ?
	`, symbol).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, dbError("failed to get bars freshness", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return parseStoredTime(latest.String)
}

// ListSymbols returns every symbol with stored bars in lexical order.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, dbError("failed to query symbols", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, dbError("failed to scan symbol", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating symbols", err)
	}
	return symbols, nil
}

// ============================================================================
// Patterns Methods
// ============================================================================

// SavePatterns upserts patterns keyed by symbol, type and confirmation date.
func (s *SQLiteStore) SavePatterns(ctx context.Context, patterns []analysis.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO patterns (
			symbol, type, classification,
			s1_index, s1_date, s1_price, h1_index, h1_date, h1_price,
			s2_index, s2_date, s2_price, h2_index, h2_date, h2_price,
			first_leg, retracement, breakout_ratio, vol1, vol2, vol3,
			confirm_date, zone_start, zone_end, zone_low, zone_high,
			entry, stop, target, risk_reward
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, p := range patterns {
		var zoneStart, zoneEnd sql.NullTime
		var zoneLow, zoneHigh, rr sql.NullFloat64
		if p.Zone != nil {
			zoneStart = sql.NullTime{Time: p.Zone.StartDate.UTC(), Valid: true}
			zoneEnd = sql.NullTime{Time: p.Zone.EndDate.UTC(), Valid: true}
			zoneLow = sql.NullFloat64{Float64: p.Zone.Low, Valid: true}
			zoneHigh = sql.NullFloat64{Float64: p.Zone.High, Valid: true}
		}
		if p.RiskReward != nil {
			rr = sql.NullFloat64{Float64: *p.RiskReward, Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			p.Symbol, string(p.Type), p.Classification,
			p.S1.Index, p.S1.Date.UTC(), p.S1.Price, p.H1.Index, p.H1.Date.UTC(), p.H1.Price,
			p.S2.Index, p.S2.Date.UTC(), p.S2.Price, p.H2.Index, p.H2.Date.UTC(), p.H2.Price,
			p.FirstLeg, p.Retracement, p.BreakoutRatio, p.Vol1, p.Vol2, p.Vol3,
			p.ConfirmDate.UTC(), zoneStart, zoneEnd, zoneLow, zoneHigh,
			p.Entry, p.Stop, p.Target, rr,
		)
		if err != nil {
			return dbError("failed to insert pattern", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// GetPatterns retrieves stored patterns ordered by confirmation date then symbol.
func (s *SQLiteStore) GetPatterns(ctx context.Context, filter PatternFilter) ([]analysis.Pattern, error) {
	query := `
		SELECT symbol, type, classification,
			s1_index, s1_date, s1_price, h1_index, h1_date, h1_price,
			s2_index, s2_date, s2_price, h2_index, h2_date, h2_price,
			first_leg, retracement, breakout_ratio, vol1, vol2, vol3,
			confirm_date, zone_start, zone_end, zone_low, zone_high,
			entry, stop, target, risk_reward
		FROM patterns WHERE 1=1
	`
	var conditions []string
	var args []interface{}

	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.StartDate.IsZero() {
		conditions = append(conditions, "confirm_date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		conditions = append(conditions, "confirm_date <= ?")
		args = append(args, filter.EndDate.UTC())
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY confirm_date ASC, symbol ASC, type ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query patterns", err)
	}
	defer rows.Close()

	var patterns []analysis.Pattern
	for rows.Next() {
		var p analysis.Pattern
		var typ string
		var zoneStart, zoneEnd sql.NullTime
		var zoneLow, zoneHigh, rr sql.NullFloat64

		if err := rows.Scan(
			&p.Symbol, &typ, &p.Classification,
			&p.S1.Index, &p.S1.Date, &p.S1.Price, &p.H1.Index, &p.H1.Date, &p.H1.Price,
			&p.S2.Index, &p.S2.Date, &p.S2.Price, &p.H2.Index, &p.H2.Date, &p.H2.Price,
			&p.FirstLeg, &p.Retracement, &p.BreakoutRatio, &p.Vol1, &p.Vol2, &p.Vol3,
			&p.ConfirmDate, &zoneStart, &zoneEnd, &zoneLow, &zoneHigh,
			&p.Entry, &p.Stop, &p.Target, &rr,
		); err != nil {
			return nil, dbError("failed to scan pattern", err)
		}

		p.Type = analysis.PatternType(typ)
		p.ConfirmDate = p.ConfirmDate.UTC()
		p.SuggestedBuyDate = p.ConfirmDate
		p.SuggestedBuyPrice = p.Entry
		if zoneEnd.Valid {
			p.Zone = &analysis.ConsolidationZone{
				StartDate: zoneStart.Time.UTC(),
				EndDate:   zoneEnd.Time.UTC(),
				Low:       zoneLow.Float64,
				High:      zoneHigh.Float64,
			}
		}
		if rr.Valid {
			v := rr.Float64
			p.RiskReward = &v
		}
		patterns = append(patterns, p)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating patterns", err)
	}

	return patterns, nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return dbError("failed to set last sync", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}

// dbError tags a driver failure with ErrDatabaseError and keeps the cause.
func dbError(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, errors.ErrDatabaseError, err)
}

// parseStoredTime parses the text form go-sqlite3 writes for time values.
// Aggregates such as MAX lose the column type, so the driver returns text.
func parseStoredTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised stored time %q", s)
}

var _ DataStore = (*SQLiteStore)(nil)

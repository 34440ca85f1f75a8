package reportstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/equityscope/research-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for scraped symbols, generated
// reports and batch-run history. Exactly-once report saves are enforced
// here through the report_saves ledger, not assumed of the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSymbol inserts or updates a scraped symbol record
func (s *Store) SaveSymbol(rec *domain.SymbolRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO symbols (symbol, screener_symbol, last_updated, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			screener_symbol = excluded.screener_symbol,
			last_updated = excluded.last_updated,
			updated_at = excluded.updated_at
	`, rec.Symbol, rec.ScreenerSymbol, rec.LastUpdated, time.Now())
	return err
}

// GetSymbol retrieves a scraped symbol record, nil when the symbol is unknown
func (s *Store) GetSymbol(symbol string) (*domain.SymbolRecord, error) {
	var rec domain.SymbolRecord
	var lastUpdated sql.NullTime
	err := s.db.QueryRow(`
		SELECT symbol, screener_symbol, last_updated FROM symbols WHERE symbol = ?
	`, symbol).Scan(&rec.Symbol, &rec.ScreenerSymbol, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		rec.LastUpdated = lastUpdated.Time
	}
	return &rec, nil
}

// SaveReport persists a report exactly once per (symbol, version). The
// returned bool is false when that identity was already saved, in which case
// the stored report is left untouched.
func (s *Store) SaveReport(r *domain.Report) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// claim the idempotency key first; a duplicate save loses the claim
	res, err := tx.Exec(`
		INSERT INTO report_saves (symbol, version) VALUES (?, ?)
		ON CONFLICT(symbol, version) DO NOTHING
	`, r.Symbol, r.Version)
	if err != nil {
		return false, err
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if claimed == 0 {
		return false, nil
	}

	now := time.Now()
	_, err = tx.Exec(`
		INSERT INTO reports (symbol, version, research, metrics, sections, degraded, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			version = excluded.version,
			research = excluded.research,
			metrics = excluded.metrics,
			sections = excluded.sections,
			degraded = excluded.degraded,
			updated_at = excluded.updated_at
	`, r.Symbol, r.Version, r.Research, r.Metrics, r.Sections, r.Degraded, now, now)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// GetReport retrieves the current report for a symbol, nil when none exists
func (s *Store) GetReport(symbol string) (*domain.Report, error) {
	var r domain.Report
	var metrics sql.NullString
	err := s.db.QueryRow(`
		SELECT symbol, version, research, metrics, sections, degraded, created_at, updated_at
		FROM reports WHERE symbol = ?
	`, symbol).Scan(&r.Symbol, &r.Version, &r.Research, &metrics, &r.Sections, &r.Degraded, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if metrics.Valid {
		r.Metrics = metrics.String
	}
	return &r, nil
}

// ListReports returns all reports, most recently updated first
func (s *Store) ListReports() ([]*domain.Report, error) {
	rows, err := s.db.Query(`
		SELECT symbol, version, research, metrics, sections, degraded, created_at, updated_at
		FROM reports ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		var r domain.Report
		var metrics sql.NullString
		if err := rows.Scan(&r.Symbol, &r.Version, &r.Research, &metrics, &r.Sections, &r.Degraded, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if metrics.Valid {
			r.Metrics = metrics.String
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// StaleSymbols returns scraped symbols whose report is missing or older
// than the cutoff
func (s *Store) StaleSymbols(maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge)
	rows, err := s.db.Query(`
		SELECT s.symbol FROM symbols s
		LEFT JOIN reports r ON r.symbol = s.symbol
		WHERE r.symbol IS NULL OR r.updated_at < ?
		ORDER BY s.symbol
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// SaveBatch inserts or updates a batch-run history row
func (s *Store) SaveBatch(rec *domain.BatchRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO batches (id, kind, state, total, succeeded, failed, degraded, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			total = excluded.total,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			degraded = excluded.degraded,
			finished_at = excluded.finished_at
	`, rec.ID, string(rec.Kind), string(rec.State), rec.Total, rec.Succeeded, rec.Failed, rec.Degraded,
		rec.StartedAt, rec.FinishedAt)
	return err
}

// ListBatches returns the most recent batch runs
func (s *Store) ListBatches(limit int) ([]*domain.BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, kind, state, total, succeeded, failed, degraded, started_at, finished_at
		FROM batches ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.BatchRecord
	for rows.Next() {
		var rec domain.BatchRecord
		var kind, state string
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &kind, &state, &rec.Total, &rec.Succeeded, &rec.Failed, &rec.Degraded,
			&rec.StartedAt, &finished); err != nil {
			return nil, err
		}
		rec.Kind = domain.BatchKind(kind)
		rec.State = domain.RunState(state)
		if finished.Valid {
			rec.FinishedAt = &finished.Time
		}
		batches = append(batches, &rec)
	}
	return batches, rows.Err()
}

// AppendLog persists one run log line
func (s *Store) AppendLog(runID string, ts time.Time, level domain.LogLevel, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO batch_logs (run_id, timestamp, level, message) VALUES (?, ?, ?, ?)
	`, runID, ts, string(level), message)
	return err
}

// BatchLogs returns a run's persisted log lines in order
func (s *Store) BatchLogs(runID string, limit int) ([]*domain.LogEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message FROM batch_logs
		WHERE run_id = ? ORDER BY id LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var level string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &level, &e.Message); err != nil {
			return nil, err
		}
		e.Level = domain.LogLevel(level)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

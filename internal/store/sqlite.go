package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gem-assistant/internal/errors"
	"gem-assistant/internal/models"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Signals table, one row per evaluation date
	CREATE TABLE IF NOT EXISTS signals (
		evaluation_date DATE PRIMARY KEY,
		instrument_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		rationale TEXT,
		created_at DATETIME NOT NULL
	);

	-- Ranking scores per evaluation date and instrument
	CREATE TABLE IF NOT EXISTS rankings (
		evaluation_date DATE NOT NULL,
		instrument_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		total_return REAL NOT NULL,
		lookback_months INTEGER NOT NULL,
		skip_months INTEGER NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(evaluation_date, instrument_id)
	);

	-- Research cache, one row per composite key
	CREATE TABLE IF NOT EXISTS research_cache (
		cache_key TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		scope TEXT NOT NULL,
		snippets TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	-- Workflow checkpoints, one row per run
	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	CREATE INDEX IF NOT EXISTS idx_signals_instrument ON signals(instrument_id);
	CREATE INDEX IF NOT EXISTS idx_rankings_date ON rankings(evaluation_date);
	CREATE INDEX IF NOT EXISTS idx_research_expires ON research_cache(expires_at);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Ranking Methods
// ============================================================================

// SaveRanking stores all scores of a ranking in one transaction.
func (s *SQLiteStore) SaveRanking(ctx context.Context, ranking models.Ranking) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistenceError("save_ranking", ranking.EvaluationDate.Format(dateLayout), err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO rankings (evaluation_date, instrument_id, rank, total_return, lookback_months, skip_months, period_start, period_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewPersistenceError("save_ranking", ranking.EvaluationDate.Format(dateLayout), err)
	}
	defer stmt.Close()

	for _, score := range ranking.Scores {
		_, err := stmt.ExecContext(ctx,
			ranking.EvaluationDate.Format(dateLayout), score.InstrumentID, score.Rank, score.Return,
			score.LookbackMonths, score.SkipMonths,
			ranking.PeriodStart.Format(dateLayout), ranking.PeriodEnd.Format(dateLayout))
		if err != nil {
			return errors.NewPersistenceError("save_ranking", score.InstrumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewPersistenceError("save_ranking", ranking.EvaluationDate.Format(dateLayout), err)
	}
	return nil
}

// GetRanking retrieves the ranking for an evaluation date.
func (s *SQLiteStore) GetRanking(ctx context.Context, evaluationDate time.Time) (*models.Ranking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_id, rank, total_return, lookback_months, skip_months, period_start, period_end
		FROM rankings WHERE evaluation_date = ? ORDER BY rank ASC
	`, evaluationDate.Format(dateLayout))
	if err != nil {
		return nil, errors.NewPersistenceError("get_ranking", evaluationDate.Format(dateLayout), err)
	}
	defer rows.Close()

	ranking := models.Ranking{EvaluationDate: evaluationDate}
	for rows.Next() {
		var score models.MomentumScore
		// DATE columns come back from the driver as time.Time.
		if err := rows.Scan(&score.InstrumentID, &score.Rank, &score.Return,
			&score.LookbackMonths, &score.SkipMonths, &ranking.PeriodStart, &ranking.PeriodEnd); err != nil {
			return nil, errors.NewPersistenceError("get_ranking", evaluationDate.Format(dateLayout), err)
		}
		ranking.Scores = append(ranking.Scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("get_ranking", evaluationDate.Format(dateLayout), err)
	}
	if len(ranking.Scores) == 0 {
		return nil, nil
	}
	return &ranking, nil
}

// ============================================================================
// Signal Methods
// ============================================================================

// SaveSignal stores a signal, replacing any prior row for the same
// evaluation date.
func (s *SQLiteStore) SaveSignal(ctx context.Context, signal models.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (evaluation_date, instrument_id, kind, rationale, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, signal.EvaluationDate.Format(dateLayout), signal.InstrumentID, string(signal.Kind), signal.Rationale, signal.CreatedAt)
	if err != nil {
		return errors.NewPersistenceError("save_signal", signal.EvaluationDate.Format(dateLayout), err)
	}
	return nil
}

// LatestSignal returns the signal with the most recent evaluation date.
func (s *SQLiteStore) LatestSignal(ctx context.Context) (*models.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT evaluation_date, instrument_id, kind, rationale, created_at
		FROM signals ORDER BY evaluation_date DESC LIMIT 1
	`)
	signal, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("latest_signal", "", err)
	}
	return signal, nil
}

// SignalHistory returns signals newest first, optionally filtered.
func (s *SQLiteStore) SignalHistory(ctx context.Context, filter SignalFilter) ([]models.Signal, error) {
	query := "SELECT evaluation_date, instrument_id, kind, rationale, created_at FROM signals WHERE 1=1"
	args := []interface{}{}

	if filter.InstrumentID != "" {
		query += " AND instrument_id = ?"
		args = append(args, filter.InstrumentID)
	}
	if !filter.Since.IsZero() {
		query += " AND evaluation_date >= ?"
		args = append(args, filter.Since.Format(dateLayout))
	}

	query += " ORDER BY evaluation_date DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("signal_history", "", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("signal_history", "", err)
		}
		signals = append(signals, *signal)
	}
	return signals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var signal models.Signal
	var kind string
	// evaluation_date is declared DATE, so the driver hands back a
	// time.Time, not the stored string.
	if err := row.Scan(&signal.EvaluationDate, &signal.InstrumentID, &kind, &signal.Rationale, &signal.CreatedAt); err != nil {
		return nil, err
	}
	signal.Kind = models.SignalKind(kind)
	return &signal, nil
}

// ============================================================================
// Research Cache Methods
// ============================================================================

// GetResearch retrieves a cached research result by key.
func (s *SQLiteStore) GetResearch(ctx context.Context, key string) (*models.ResearchResult, error) {
	var result models.ResearchResult
	var snippetsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT subject, scope, snippets, generated_at, expires_at
		FROM research_cache WHERE cache_key = ?
	`, key).Scan(&result.Subject, &result.Scope, &snippetsJSON, &result.GeneratedAt, &result.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("get_research", key, err)
	}

	if err := json.Unmarshal([]byte(snippetsJSON), &result.Snippets); err != nil {
		return nil, errors.NewPersistenceError("get_research", key, err)
	}
	return &result, nil
}

// PutResearch stores a research result, replacing any prior entry.
func (s *SQLiteStore) PutResearch(ctx context.Context, key string, result models.ResearchResult) error {
	snippets, err := json.Marshal(result.Snippets)
	if err != nil {
		return errors.NewPersistenceError("put_research", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO research_cache (cache_key, subject, scope, snippets, generated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, result.Subject, result.Scope, string(snippets), result.GeneratedAt, result.ExpiresAt)
	if err != nil {
		return errors.NewPersistenceError("put_research", key, err)
	}
	return nil
}

// DeleteResearch removes a cached research result.
func (s *SQLiteStore) DeleteResearch(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM research_cache WHERE cache_key = ?`, key)
	if err != nil {
		return errors.NewPersistenceError("delete_research", key, err)
	}
	return nil
}

// ============================================================================
// Checkpoint Methods
// ============================================================================

// SaveCheckpoint replaces the checkpoint row for a run. INSERT OR
// REPLACE keeps the write atomic, so a crash never leaves a run with
// a half-written checkpoint.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, record CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (run_id, stage, state, updated_at)
		VALUES (?, ?, ?, ?)
	`, record.RunID, record.Stage, string(record.State), record.UpdatedAt)
	if err != nil {
		return errors.NewPersistenceError("save_checkpoint", record.RunID, err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a run.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, runID string) (*CheckpointRecord, error) {
	var record CheckpointRecord
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, stage, state, updated_at FROM checkpoints WHERE run_id = ?
	`, runID).Scan(&record.RunID, &record.Stage, &state, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("get_checkpoint", runID, err)
	}
	record.State = []byte(state)
	return &record, nil
}

// ListCheckpoints returns checkpoints newest first.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, limit int) ([]CheckpointRecord, error) {
	query := `SELECT run_id, stage, state, updated_at FROM checkpoints ORDER BY updated_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("list_checkpoints", "", err)
	}
	defer rows.Close()

	var records []CheckpointRecord
	for rows.Next() {
		var record CheckpointRecord
		var state string
		if err := rows.Scan(&record.RunID, &record.Stage, &state, &record.UpdatedAt); err != nil {
			return nil, errors.NewPersistenceError("list_checkpoints", "", err)
		}
		record.State = []byte(state)
		records = append(records, record)
	}
	return records, rows.Err()
}

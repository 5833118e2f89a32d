package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for mirror probe history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Store initialized successfully", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SaveProbeResult inserts a new ProbeRecord and sets its ID
func (s *Store) SaveProbeResult(rec *ProbeRecord) error {
	const query = `
		INSERT INTO probe_results (url, region, latency_ms, speed_bps, probed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query, rec.URL, rec.Region, rec.LatencyMs, rec.SpeedBps, rec.ProbedAt)
	if err != nil {
		return fmt.Errorf("failed to insert probe result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// ListProbeResults retrieves probe records, optionally filtered by region,
// newest first
func (s *Store) ListProbeResults(region string, limit int) ([]ProbeRecord, error) {
	query := `
		SELECT id, url, region, latency_ms, speed_bps, probed_at
		FROM probe_results
	`
	var args []interface{}

	if region != "" {
		query += " WHERE region = ?"
		args = append(args, region)
	}

	query += " ORDER BY probed_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query probe results: %w", err)
	}
	defer rows.Close()

	var records []ProbeRecord
	for rows.Next() {
		rec := ProbeRecord{}
		err := rows.Scan(&rec.ID, &rec.URL, &rec.Region, &rec.LatencyMs, &rec.SpeedBps, &rec.ProbedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan probe result: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating probe results: %w", err)
	}

	return records, nil
}

// LatestProbeResult retrieves the most recent probe record for a mirror URL
func (s *Store) LatestProbeResult(url string) (*ProbeRecord, error) {
	const query = `
		SELECT id, url, region, latency_ms, speed_bps, probed_at
		FROM probe_results WHERE url = ?
		ORDER BY probed_at DESC LIMIT 1
	`

	rec := &ProbeRecord{}
	err := s.db.QueryRow(query, url).Scan(
		&rec.ID, &rec.URL, &rec.Region, &rec.LatencyMs, &rec.SpeedBps, &rec.ProbedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("probe result not found: %s", url)
		}
		return nil, fmt.Errorf("failed to query probe result: %w", err)
	}

	return rec, nil
}

// CountProbeResults returns the count of probe records, optionally filtered
// by region
func (s *Store) CountProbeResults(region string) (int, error) {
	query := "SELECT COUNT(*) FROM probe_results"
	var args []interface{}

	if region != "" {
		query += " WHERE region = ?"
		args = append(args, region)
	}

	var count int
	err := s.db.QueryRow(query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count probe results: %w", err)
	}

	return count, nil
}

// PruneProbeResults deletes probe records older than the cutoff, returning
// the number of rows removed
func (s *Store) PruneProbeResults(before time.Time) (int64, error) {
	const query = "DELETE FROM probe_results WHERE probed_at < ?"

	result, err := s.db.Exec(query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune probe results: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

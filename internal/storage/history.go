package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddExportRecord saves one successful export to the history table.
func (s *Store) AddExportRecord(r ExportRecord) (ExportRecord, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	r.CreatedAt = r.CreatedAt.UTC().Truncate(time.Microsecond)
	_, err := s.db.Exec(`
		INSERT INTO export_history (id, path, format, entry_count, record_count, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Path, r.Format, r.EntryCount, r.RecordCount, r.Skipped, formatTime(r.CreatedAt),
	)
	if err != nil {
		return ExportRecord{}, fmt.Errorf("inserting export record: %w", err)
	}
	return r, nil
}

// ListExportHistory returns the most recent exports first.
func (s *Store) ListExportHistory(limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, path, format, entry_count, record_count, skipped, created_at
		FROM export_history ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ExportRecord
	for rows.Next() {
		var r ExportRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Path, &r.Format, &r.EntryCount, &r.RecordCount, &r.Skipped, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}

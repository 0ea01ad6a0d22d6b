// Package history persists built reports in an append-only store, layered
// behind the report builder. The evaluation core never reads it.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"slareport/internal/report"
)

// ErrNotFound is returned when no report exists for the requested id.
var ErrNotFound = errors.New("report not found")

// Store archives compliance reports. Saving is best-effort from the caller's
// point of view; a failed save never fails the cycle.
type Store interface {
	Save(r report.Report) error
	Get(id string) (report.Report, error)
	Recent(limit int) ([]report.Report, error)
	Close() error
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(r report.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (id, generated_at, status, payload_json) VALUES (?, ?, ?, ?)`,
		r.ID, r.GeneratedAt, string(r.Status), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (report.Report, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload_json FROM reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("query report %s: %w", id, err)
	}
	var r report.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return report.Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteStore) Recent(limit int) ([]report.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT payload_json FROM reports ORDER BY generated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent reports: %w", err)
	}
	defer rows.Close()

	var reports []report.Report
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		var r report.Report
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode report row: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
